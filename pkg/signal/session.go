package signal

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Session is the per-peer key state.
type Session struct {
	PeerID         string    `json:"peerId"`
	Agreement      string    `json:"agreement"`
	LocalIdentity  []byte    `json:"localIdentity"`
	RemoteIdentity []byte    `json:"remoteIdentity"`
	RootKey        []byte    `json:"rootKey"`
	ChainKey       []byte    `json:"chainKey"`
	Initiator      bool      `json:"initiator"`
	Sent           uint64    `json:"sent"`
	Received       uint64    `json:"received"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// KeyStore persists identity and prekey material.
// Load methods return (nil, nil) when nothing has been stored yet.
type KeyStore interface {
	LoadIdentity(ctx context.Context) (*IdentityKeyPair, error)
	SaveIdentity(ctx context.Context, identity *IdentityKeyPair) error
	LoadPreKeys(ctx context.Context) (*PreKeyState, error)
	SavePreKeys(ctx context.Context, state *PreKeyState) error
}

// SessionStore persists sessions keyed by peer id.
// LoadSession returns (nil, nil) for an unknown peer and DeleteSession is a
// no-op for one.
type SessionStore interface {
	LoadSession(ctx context.Context, peerID string) (*Session, error)
	SaveSession(ctx context.Context, s *Session) error
	DeleteSession(ctx context.Context, peerID string) error
	ListSessions(ctx context.Context) ([]string, error)
}

// Option configures a Manager.
type Option func(*Manager)

// WithAgreement selects the DH primitive. Default: X25519.
func WithAgreement(agr Agreement) Option {
	return func(m *Manager) {
		m.agr = agr
	}
}

// WithRandom sets the entropy source. Default: crypto/rand.
func WithRandom(r io.Reader) Option {
	return func(m *Manager) {
		m.rand = r
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithPreKeyCount sets how many one-time prekeys a fresh identity gets.
// Default: DefaultPreKeyCount.
func WithPreKeyCount(n int) Option {
	return func(m *Manager) {
		m.preKeyCount = n
	}
}

// Manager owns the local identity and all peer sessions.
// It is safe for concurrent use; operations on the same peer are serialized
// and different peers proceed independently.
type Manager struct {
	agr         Agreement
	rand        io.Reader
	logger      *slog.Logger
	preKeyCount int

	keys     KeyStore
	sessions SessionStore

	identity *IdentityKeyPair

	preKeyMu sync.Mutex
	preKeys  *PreKeyState

	mu        sync.Mutex
	cache     map[string]*Session
	peerLocks map[string]*sync.Mutex
}

// NewManager loads the identity and prekeys from keys, generating and
// persisting them on first use.
func NewManager(ctx context.Context, keys KeyStore, sessions SessionStore, opts ...Option) (*Manager, error) {
	m := &Manager{
		agr:         X25519,
		rand:        rand.Reader,
		logger:      slog.Default(),
		preKeyCount: DefaultPreKeyCount,
		keys:        keys,
		sessions:    sessions,
		cache:       make(map[string]*Session),
		peerLocks:   make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(m)
	}
	if err := m.loadKeys(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Manager) loadKeys(ctx context.Context) error {
	identity, err := m.keys.LoadIdentity(ctx)
	if err != nil {
		return newCryptoError("load identity", "", err)
	}
	if identity == nil {
		identity, err = GenerateIdentityKeyPair(m.agr, m.rand)
		if err != nil {
			return err
		}
		if err := m.keys.SaveIdentity(ctx, identity); err != nil {
			return newCryptoError("save identity", "", err)
		}
		m.logger.Info("generated identity key", "agreement", identity.Agreement, "registration_id", identity.RegistrationID)
	}
	if identity.Agreement != m.agr.Name() || !identity.Valid() {
		return newCryptoError("load identity", "", ErrInvalidKey)
	}
	m.identity = identity

	state, err := m.keys.LoadPreKeys(ctx)
	if err != nil {
		return newCryptoError("load prekeys", "", err)
	}
	if state == nil {
		state, err = NewPreKeyState(m.agr, m.rand, identity, m.preKeyCount)
		if err != nil {
			return err
		}
		if err := m.keys.SavePreKeys(ctx, state); err != nil {
			return newCryptoError("save prekeys", "", err)
		}
		m.logger.Info("generated prekeys", "count", len(state.PreKeys))
	}
	m.preKeys = state
	return nil
}

// Identity returns the local identity.
func (m *Manager) Identity() *IdentityKeyPair {
	return m.identity
}

// Agreement returns the DH primitive in use.
func (m *Manager) Agreement() Agreement {
	return m.agr
}

// PreKeyCount returns the number of unused one-time prekeys.
func (m *Manager) PreKeyCount() int {
	m.preKeyMu.Lock()
	defer m.preKeyMu.Unlock()
	return len(m.preKeys.PreKeys)
}

// Bundle returns the local public bundle, offering the first unused
// one-time prekey if any remain.
func (m *Manager) Bundle(deviceID uint32) *Bundle {
	m.preKeyMu.Lock()
	defer m.preKeyMu.Unlock()

	spk := m.preKeys.SignedPreKey
	b := &Bundle{
		RegistrationID:        m.identity.RegistrationID,
		DeviceID:              deviceID,
		IdentityKey:           m.identity.DH.Public,
		SigningKey:            m.identity.SigningPublic,
		SignedPreKeyID:        spk.ID,
		SignedPreKey:          spk.KeyPair.Public,
		SignedPreKeySignature: spk.Signature,
	}
	if len(m.preKeys.PreKeys) > 0 {
		pk := m.preKeys.PreKeys[0]
		id := pk.ID
		b.PreKeyID = &id
		b.PreKey = pk.KeyPair.Public
	}
	return b
}

// RefillPreKeys tops the one-time pool back up to the configured count and
// persists it. It returns the number of keys added.
func (m *Manager) RefillPreKeys(ctx context.Context) (int, error) {
	m.preKeyMu.Lock()
	defer m.preKeyMu.Unlock()

	missing := m.preKeyCount - len(m.preKeys.PreKeys)
	if missing <= 0 {
		return 0, nil
	}
	fresh, err := GeneratePreKeys(m.agr, m.rand, m.preKeys.NextID, missing)
	if err != nil {
		return 0, err
	}
	m.preKeys.PreKeys = append(m.preKeys.PreKeys, fresh...)
	m.preKeys.NextID += uint32(missing)
	if err := m.keys.SavePreKeys(ctx, m.preKeys); err != nil {
		return 0, newCryptoError("save prekeys", "", err)
	}
	return missing, nil
}

// EstablishSession runs the initiator side of the key agreement against a
// peer's bundle, stores the session and returns the message the peer needs
// to derive the same keys. An existing session for the peer is replaced.
func (m *Manager) EstablishSession(ctx context.Context, peerID string, b *Bundle) (*InitialMessage, error) {
	if err := VerifyBundle(b); err != nil {
		return nil, newCryptoError("establish", peerID, err)
	}

	unlock := m.lockPeer(peerID)
	defer unlock()

	secret, ephemeral, err := initiatorSecret(m.agr, m.rand, m.identity.DH, b)
	if err != nil {
		return nil, newCryptoError("establish", peerID, err)
	}
	defer wipe(secret)
	defer wipe(ephemeral.Private)

	root, chain, err := deriveSessionKeys(secret)
	if err != nil {
		return nil, newCryptoError("establish", peerID, err)
	}

	now := time.Now().UTC()
	s := &Session{
		PeerID:         peerID,
		Agreement:      m.agr.Name(),
		LocalIdentity:  m.identity.DH.Public,
		RemoteIdentity: b.IdentityKey,
		RootKey:        root,
		ChainKey:       chain,
		Initiator:      true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := m.storeSession(ctx, s); err != nil {
		return nil, newCryptoError("establish", peerID, err)
	}

	m.logger.Debug("session established", "peer", peerID, "one_time_prekey", b.PreKeyID != nil)
	return &InitialMessage{
		RegistrationID: m.identity.RegistrationID,
		IdentityKey:    m.identity.DH.Public,
		SigningKey:     m.identity.SigningPublic,
		EphemeralKey:   ephemeral.Public,
		SignedPreKeyID: b.SignedPreKeyID,
		PreKeyID:       b.PreKeyID,
	}, nil
}

// AcceptSession runs the responder side for an InitialMessage. A one-time
// prekey it references is consumed and the pool persisted.
func (m *Manager) AcceptSession(ctx context.Context, peerID string, msg *InitialMessage) error {
	if msg == nil || len(msg.IdentityKey) == 0 || len(msg.EphemeralKey) == 0 {
		return newCryptoError("accept", peerID, ErrInvalidKey)
	}

	unlock := m.lockPeer(peerID)
	defer unlock()

	m.preKeyMu.Lock()
	spk := m.preKeys.SignedPreKey
	if msg.SignedPreKeyID != spk.ID {
		m.preKeyMu.Unlock()
		return newCryptoError("accept", peerID, ErrUnknownPreKey)
	}
	var oneTime *KeyPair
	if msg.PreKeyID != nil {
		pk, ok := m.preKeys.Find(*msg.PreKeyID)
		if !ok {
			m.preKeyMu.Unlock()
			return newCryptoError("accept", peerID, ErrUnknownPreKey)
		}
		kp := pk.KeyPair
		oneTime = &kp
	}
	m.preKeyMu.Unlock()

	secret, err := responderSecret(m.agr, m.identity.DH, spk.KeyPair, oneTime, msg)
	if err != nil {
		return newCryptoError("accept", peerID, err)
	}
	defer wipe(secret)

	root, chain, err := deriveSessionKeys(secret)
	if err != nil {
		return newCryptoError("accept", peerID, err)
	}

	if msg.PreKeyID != nil {
		m.preKeyMu.Lock()
		m.preKeys.Remove(*msg.PreKeyID)
		err := m.keys.SavePreKeys(ctx, m.preKeys)
		m.preKeyMu.Unlock()
		if err != nil {
			return newCryptoError("accept", peerID, err)
		}
	}

	now := time.Now().UTC()
	s := &Session{
		PeerID:         peerID,
		Agreement:      m.agr.Name(),
		LocalIdentity:  m.identity.DH.Public,
		RemoteIdentity: msg.IdentityKey,
		RootKey:        root,
		ChainKey:       chain,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := m.storeSession(ctx, s); err != nil {
		return newCryptoError("accept", peerID, err)
	}
	return nil
}

// HasSession reports whether a session exists for peerID, in memory or in
// the store. A session that exists but cannot be loaded is an error, not
// a missing session.
func (m *Manager) HasSession(ctx context.Context, peerID string) (bool, error) {
	unlock := m.lockPeer(peerID)
	defer unlock()
	s, err := m.session(ctx, peerID)
	if err != nil {
		return false, newCryptoError("load session", peerID, err)
	}
	return s != nil, nil
}

// Session returns a copy of the session for peerID.
func (m *Manager) Session(ctx context.Context, peerID string) (*Session, error) {
	unlock := m.lockPeer(peerID)
	defer unlock()
	s, err := m.session(ctx, peerID)
	if err != nil {
		return nil, newCryptoError("load session", peerID, err)
	}
	if s == nil {
		return nil, newCryptoError("load session", peerID, ErrNoSession)
	}
	c := *s
	return &c, nil
}

// Sessions lists the peers with a persisted session.
func (m *Manager) Sessions(ctx context.Context) ([]string, error) {
	peers, err := m.sessions.ListSessions(ctx)
	if err != nil {
		return nil, newCryptoError("list sessions", "", err)
	}
	sort.Strings(peers)
	return peers, nil
}

// DeleteSession forgets the session for peerID.
func (m *Manager) DeleteSession(ctx context.Context, peerID string) error {
	unlock := m.lockPeer(peerID)
	defer unlock()

	m.mu.Lock()
	delete(m.cache, peerID)
	m.mu.Unlock()
	if err := m.sessions.DeleteSession(ctx, peerID); err != nil {
		return newCryptoError("delete session", peerID, err)
	}
	return nil
}

// Encrypt seals plaintext for peerID and returns nonce || ciphertext || tag.
// A missing session is ErrNoSession; no key agreement is attempted.
func (m *Manager) Encrypt(ctx context.Context, peerID string, plaintext []byte) ([]byte, error) {
	unlock := m.lockPeer(peerID)
	defer unlock()

	s, err := m.session(ctx, peerID)
	if err != nil {
		return nil, newCryptoError("encrypt", peerID, err)
	}
	if s == nil {
		return nil, newCryptoError("encrypt", peerID, ErrNoSession)
	}
	key, err := deriveMessageKey(s.ChainKey)
	if err != nil {
		return nil, newCryptoError("encrypt", peerID, err)
	}
	defer wipe(key)

	blob, err := Seal(key, plaintext, m.rand)
	if err != nil {
		return nil, newCryptoError("encrypt", peerID, err)
	}
	s.Sent++
	s.UpdatedAt = time.Now().UTC()
	if err := m.storeSession(ctx, s); err != nil {
		return nil, newCryptoError("encrypt", peerID, err)
	}
	return blob, nil
}

// Decrypt authenticates and opens a blob from peerID. A failure affects only
// this blob; the session is left untouched.
func (m *Manager) Decrypt(ctx context.Context, peerID string, blob []byte) ([]byte, error) {
	unlock := m.lockPeer(peerID)
	defer unlock()

	s, err := m.session(ctx, peerID)
	if err != nil {
		return nil, newCryptoError("decrypt", peerID, err)
	}
	if s == nil {
		return nil, newCryptoError("decrypt", peerID, ErrNoSession)
	}
	key, err := deriveMessageKey(s.ChainKey)
	if err != nil {
		return nil, newCryptoError("decrypt", peerID, err)
	}
	defer wipe(key)

	pt, err := Open(key, blob)
	if err != nil {
		return nil, newCryptoError("decrypt", peerID, err)
	}
	s.Received++
	s.UpdatedAt = time.Now().UTC()
	if err := m.storeSession(ctx, s); err != nil {
		return nil, newCryptoError("decrypt", peerID, err)
	}
	return pt, nil
}

// lockPeer serializes operations on one peer's session.
func (m *Manager) lockPeer(peerID string) func() {
	m.mu.Lock()
	l, ok := m.peerLocks[peerID]
	if !ok {
		l = &sync.Mutex{}
		m.peerLocks[peerID] = l
	}
	m.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// session returns the cached session or loads it. Callers hold the peer lock.
func (m *Manager) session(ctx context.Context, peerID string) (*Session, error) {
	m.mu.Lock()
	s, ok := m.cache[peerID]
	m.mu.Unlock()
	if ok {
		return s, nil
	}
	s, err := m.sessions.LoadSession(ctx, peerID)
	if err != nil || s == nil {
		return nil, err
	}
	if s.PeerID != peerID {
		return nil, fmt.Errorf("%w: stored session belongs to %q", ErrInvalidKey, s.PeerID)
	}
	if s.Agreement != m.agr.Name() || len(s.ChainKey) != KeySize {
		return nil, ErrInvalidKey
	}
	m.mu.Lock()
	m.cache[peerID] = s
	m.mu.Unlock()
	return s, nil
}

func (m *Manager) storeSession(ctx context.Context, s *Session) error {
	if err := m.sessions.SaveSession(ctx, s); err != nil {
		return err
	}
	m.mu.Lock()
	m.cache[s.PeerID] = s
	m.mu.Unlock()
	return nil
}
