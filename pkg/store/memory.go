package store

import (
	"context"
	"sync"

	"github.com/waweb-dev/waweb/pkg/signal"
)

// MemoryStore keeps everything in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	identity *signal.IdentityKeyPair
	preKeys  *signal.PreKeyState
	sessions map[string]*signal.Session
	closed   bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*signal.Session)}
}

// LoadIdentity returns the stored identity.
func (m *MemoryStore) LoadIdentity(ctx context.Context) (*signal.IdentityKeyPair, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrStoreClosed
	}
	return m.identity, nil
}

// SaveIdentity stores the identity.
func (m *MemoryStore) SaveIdentity(ctx context.Context, id *signal.IdentityKeyPair) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrStoreClosed
	}
	m.identity = id
	return nil
}

// LoadPreKeys returns the stored prekey pool.
func (m *MemoryStore) LoadPreKeys(ctx context.Context) (*signal.PreKeyState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrStoreClosed
	}
	return m.preKeys, nil
}

// SavePreKeys stores the prekey pool.
func (m *MemoryStore) SavePreKeys(ctx context.Context, st *signal.PreKeyState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrStoreClosed
	}
	m.preKeys = st
	return nil
}

// LoadSession returns a copy of the session for peerID.
func (m *MemoryStore) LoadSession(ctx context.Context, peerID string) (*signal.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrStoreClosed
	}
	return copySession(m.sessions[peerID]), nil
}

// SaveSession stores a copy of sess.
func (m *MemoryStore) SaveSession(ctx context.Context, sess *signal.Session) error {
	if _, err := sessionDocName(sess.PeerID); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrStoreClosed
	}
	m.sessions[sess.PeerID] = copySession(sess)
	return nil
}

// DeleteSession removes the session for peerID.
func (m *MemoryStore) DeleteSession(ctx context.Context, peerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrStoreClosed
	}
	delete(m.sessions, peerID)
	return nil
}

// ListSessions returns the peers with a stored session.
func (m *MemoryStore) ListSessions(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrStoreClosed
	}
	peers := make([]string, 0, len(m.sessions))
	for p := range m.sessions {
		peers = append(peers, p)
	}
	return peers, nil
}

// Close releases the stored data.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.sessions = nil
	return nil
}
