package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	// Pure Go SQLite driver, registered as "sqlite".
	_ "modernc.org/sqlite"

	"github.com/waweb-dev/waweb/pkg/signal"
)

// SQLStore keeps key material and sessions in SQLite.
// Schema (created by Migrate):
//
//	CREATE TABLE waweb_keys (
//	    name TEXT PRIMARY KEY,
//	    data BLOB NOT NULL,
//	    updated_at TEXT NOT NULL
//	);
//	CREATE TABLE waweb_sessions (
//	    peer_id TEXT PRIMARY KEY,
//	    data BLOB NOT NULL,
//	    updated_at TEXT NOT NULL
//	);
type SQLStore struct {
	db        *sql.DB
	ownsDB    bool
	keysTable string
	sessTable string
	mu        sync.RWMutex
	closed    bool
}

// SQLStoreOption configures SQLStore behavior.
type SQLStoreOption func(*sqlStoreConfig)

type sqlStoreConfig struct {
	tablePrefix string
}

// WithSQLTablePrefix sets the table name prefix.
// Default: "waweb_".
func WithSQLTablePrefix(prefix string) SQLStoreOption {
	return func(c *sqlStoreConfig) {
		c.tablePrefix = prefix
	}
}

// NewSQLStore wraps an open SQLite handle. The caller keeps ownership of db.
func NewSQLStore(ctx context.Context, db *sql.DB, opts ...SQLStoreOption) (*SQLStore, error) {
	cfg := &sqlStoreConfig{tablePrefix: "waweb_"}
	for _, opt := range opts {
		opt(cfg)
	}
	s := &SQLStore{
		db:        db,
		keysTable: cfg.tablePrefix + "keys",
		sessTable: cfg.tablePrefix + "sessions",
	}
	if err := s.Migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// OpenSQLite opens (or creates) the database file at path.
func OpenSQLite(ctx context.Context, path string, opts ...SQLStoreOption) (*SQLStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)
	s, err := NewSQLStore(ctx, db, opts...)
	if err != nil {
		db.Close()
		return nil, err
	}
	s.ownsDB = true
	return s, nil
}

// Migrate creates the tables if they do not exist.
func (s *SQLStore) Migrate(ctx context.Context) error {
	for _, q := range []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			name TEXT PRIMARY KEY,
			data BLOB NOT NULL,
			updated_at TEXT NOT NULL
		)`, s.keysTable),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			peer_id TEXT PRIMARY KEY,
			data BLOB NOT NULL,
			updated_at TEXT NOT NULL
		)`, s.sessTable),
	} {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("store: migrate: %w", err)
		}
	}
	return nil
}

// LoadIdentity returns the stored identity.
func (s *SQLStore) LoadIdentity(ctx context.Context) (*signal.IdentityKeyPair, error) {
	var id signal.IdentityKeyPair
	ok, err := s.loadKey(ctx, identityDoc, &id)
	if err != nil || !ok {
		return nil, err
	}
	return &id, nil
}

// SaveIdentity stores the identity.
func (s *SQLStore) SaveIdentity(ctx context.Context, id *signal.IdentityKeyPair) error {
	return s.saveKey(ctx, identityDoc, id)
}

// LoadPreKeys returns the stored prekey pool.
func (s *SQLStore) LoadPreKeys(ctx context.Context) (*signal.PreKeyState, error) {
	var st signal.PreKeyState
	ok, err := s.loadKey(ctx, preKeysDoc, &st)
	if err != nil || !ok {
		return nil, err
	}
	return &st, nil
}

// SavePreKeys stores the prekey pool.
func (s *SQLStore) SavePreKeys(ctx context.Context, st *signal.PreKeyState) error {
	return s.saveKey(ctx, preKeysDoc, st)
}

// LoadSession returns the session for peerID.
func (s *SQLStore) LoadSession(ctx context.Context, peerID string) (*signal.Session, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT data FROM %s WHERE peer_id = ?`, s.sessTable)
	var data []byte
	err := s.db.QueryRowContext(ctx, query, peerID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var sess signal.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// SaveSession upserts the session.
func (s *SQLStore) SaveSession(ctx context.Context, sess *signal.Session) error {
	if err := s.check(); err != nil {
		return err
	}
	if _, err := sessionDocName(sess.PeerID); err != nil {
		return err
	}
	data, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`
		INSERT OR REPLACE INTO %s (peer_id, data, updated_at)
		VALUES (?, ?, ?)
	`, s.sessTable)
	_, err = s.db.ExecContext(ctx, query, sess.PeerID, data, now())
	return err
}

// DeleteSession removes the session for peerID.
func (s *SQLStore) DeleteSession(ctx context.Context, peerID string) error {
	if err := s.check(); err != nil {
		return err
	}
	query := fmt.Sprintf(`DELETE FROM %s WHERE peer_id = ?`, s.sessTable)
	_, err := s.db.ExecContext(ctx, query, peerID)
	return err
}

// ListSessions returns all peers with a session, ordered by id.
func (s *SQLStore) ListSessions(ctx context.Context) ([]string, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`SELECT peer_id FROM %s ORDER BY peer_id`, s.sessTable))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var peers []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		peers = append(peers, p)
	}
	return peers, rows.Err()
}

// Close marks the store closed and closes the database if OpenSQLite
// created it.
func (s *SQLStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.ownsDB {
		return s.db.Close()
	}
	return nil
}

func (s *SQLStore) check() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

func (s *SQLStore) loadKey(ctx context.Context, name string, v any) (bool, error) {
	if err := s.check(); err != nil {
		return false, err
	}
	query := fmt.Sprintf(`SELECT data FROM %s WHERE name = ?`, s.keysTable)
	var data []byte
	err := s.db.QueryRowContext(ctx, query, name).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, json.Unmarshal(data, v)
}

func (s *SQLStore) saveKey(ctx context.Context, name string, v any) error {
	if err := s.check(); err != nil {
		return err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`
		INSERT OR REPLACE INTO %s (name, data, updated_at)
		VALUES (?, ?, ?)
	`, s.keysTable)
	_, err = s.db.ExecContext(ctx, query, name, data, now())
	return err
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
