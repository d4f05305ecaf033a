package store

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/waweb-dev/waweb/pkg/signal"
)

// File permissions for persisted key material.
const (
	dirPerm  fs.FileMode = 0o700
	filePerm fs.FileMode = 0o600
)

// FileStore keeps JSON documents under a root directory.
type FileStore struct {
	root   string
	mu     sync.RWMutex
	closed bool
}

// NewFileStore creates the directory layout under root.
func NewFileStore(root string) (*FileStore, error) {
	for _, dir := range []string{"keys", "sessions"} {
		if err := os.MkdirAll(filepath.Join(root, dir), dirPerm); err != nil {
			return nil, err
		}
	}
	return &FileStore{root: root}, nil
}

// Root returns the storage directory.
func (s *FileStore) Root() string {
	return s.root
}

func (s *FileStore) path(doc string) string {
	return filepath.Join(s.root, filepath.FromSlash(doc))
}

func (s *FileStore) sessionPath(peerID string) (string, error) {
	name, err := sessionDocName(peerID)
	if err != nil {
		return "", err
	}
	return s.path(sessionsDir + name + docSuffix), nil
}

// LoadIdentity reads keys/identity_key.json.
func (s *FileStore) LoadIdentity(ctx context.Context) (*signal.IdentityKeyPair, error) {
	var id signal.IdentityKeyPair
	ok, err := s.read(s.path(identityDoc), &id)
	if err != nil || !ok {
		return nil, err
	}
	return &id, nil
}

// SaveIdentity writes keys/identity_key.json.
func (s *FileStore) SaveIdentity(ctx context.Context, id *signal.IdentityKeyPair) error {
	return s.write(s.path(identityDoc), id)
}

// LoadPreKeys reads keys/prekeys.json.
func (s *FileStore) LoadPreKeys(ctx context.Context) (*signal.PreKeyState, error) {
	var st signal.PreKeyState
	ok, err := s.read(s.path(preKeysDoc), &st)
	if err != nil || !ok {
		return nil, err
	}
	return &st, nil
}

// SavePreKeys writes keys/prekeys.json.
func (s *FileStore) SavePreKeys(ctx context.Context, st *signal.PreKeyState) error {
	return s.write(s.path(preKeysDoc), st)
}

// LoadSession reads sessions/<peer>.json.
func (s *FileStore) LoadSession(ctx context.Context, peerID string) (*signal.Session, error) {
	p, err := s.sessionPath(peerID)
	if err != nil {
		return nil, err
	}
	var sess signal.Session
	ok, err := s.read(p, &sess)
	if err != nil || !ok {
		return nil, err
	}
	return &sess, nil
}

// SaveSession writes sessions/<peer>.json.
func (s *FileStore) SaveSession(ctx context.Context, sess *signal.Session) error {
	p, err := s.sessionPath(sess.PeerID)
	if err != nil {
		return err
	}
	return s.write(p, sess)
}

// DeleteSession removes sessions/<peer>.json if present.
func (s *FileStore) DeleteSession(ctx context.Context, peerID string) error {
	p, err := s.sessionPath(peerID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// ListSessions returns the peer ids recorded in the session documents.
func (s *FileStore) ListSessions(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	entries, err := os.ReadDir(s.path(sessionsDir))
	if err != nil {
		return nil, err
	}
	peers := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), docSuffix) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.path(sessionsDir), e.Name()))
		if err != nil {
			return nil, err
		}
		var head struct {
			PeerID string `json:"peerId"`
		}
		if err := json.Unmarshal(data, &head); err != nil || head.PeerID == "" {
			continue
		}
		peers = append(peers, head.PeerID)
	}
	return peers, nil
}

// Close marks the store closed.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *FileStore) read(path string, v any) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false, ErrStoreClosed
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, err
	}
	return true, nil
}

// write replaces path atomically: temp file in the same directory, fsync,
// rename.
func (s *FileStore) write(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() { os.Remove(tmpName) }

	if err := tmp.Chmod(filePerm); err != nil {
		tmp.Close()
		cleanup()
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return err
	}
	return nil
}
