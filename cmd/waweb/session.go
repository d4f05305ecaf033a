package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/waweb-dev/waweb/internal/config"
	waerrors "github.com/waweb-dev/waweb/internal/errors"
	"github.com/waweb-dev/waweb/pkg/client"
	"github.com/waweb-dev/waweb/pkg/signal"
	"github.com/waweb-dev/waweb/pkg/store"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// cachedStore puts a TTL session cache in front of a backend.
type cachedStore struct {
	store.Store
	sessions *store.CachedSessionStore
}

func (c *cachedStore) LoadSession(ctx context.Context, peerID string) (*signal.Session, error) {
	return c.sessions.LoadSession(ctx, peerID)
}

func (c *cachedStore) SaveSession(ctx context.Context, sess *signal.Session) error {
	return c.sessions.SaveSession(ctx, sess)
}

func (c *cachedStore) DeleteSession(ctx context.Context, peerID string) error {
	return c.sessions.DeleteSession(ctx, peerID)
}

func (c *cachedStore) ListSessions(ctx context.Context) ([]string, error) {
	return c.sessions.ListSessions(ctx)
}

func (c *cachedStore) Close() error {
	c.sessions.Flush()
	return c.Store.Close()
}

// openStore opens the configured key and session backend.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch cfg.Store.Backend {
	case config.BackendMemory:
		st = store.NewMemoryStore()
	case config.BackendFile:
		st, err = store.NewFileStore(cfg.DataDir)
	case config.BackendSQLite:
		if err := os.MkdirAll(filepath.Dir(cfg.Store.SQLitePath), 0o700); err != nil {
			return nil, waerrors.New("W600").Wrap(err)
		}
		st, err = store.OpenSQLite(ctx, cfg.Store.SQLitePath)
	case config.BackendS3:
		st, err = store.NewS3StoreFromConfig(ctx, store.S3Config{
			Bucket:   cfg.Store.S3.Bucket,
			Prefix:   cfg.Store.S3.Prefix,
			Region:   cfg.Store.S3.Region,
			Endpoint: cfg.Store.S3.Endpoint,
		})
	default:
		return nil, waerrors.New("W103").WithDetail(fmt.Sprintf("store.backend %q is not supported", cfg.Store.Backend))
	}
	if err != nil {
		return nil, waerrors.Classify(err, "W600")
	}
	if cfg.Store.CacheTTL > 0 && cfg.Store.Backend != config.BackendMemory {
		st = &cachedStore{
			Store:    st,
			sessions: store.NewCachedSessionStore(st, cfg.Store.CacheTTL, 2*cfg.Store.CacheTTL),
		}
	}
	return st, nil
}

// session bundles the pieces of a running login.
type session struct {
	store   store.Store
	manager *signal.Manager
	client  *client.Client
}

func (s *session) Close() error {
	var errs []error
	if s.client != nil {
		errs = append(errs, s.client.Close())
	}
	if s.store != nil {
		errs = append(errs, s.store.Close())
	}
	return stderrors.Join(errs...)
}

// openKeys opens the key store and the signal manager on top of it.
func (a *app) openKeys(ctx context.Context) (*session, error) {
	st, err := openStore(ctx, a.cfg)
	if err != nil {
		return nil, err
	}
	s := &session{store: st}

	sigOpts := append(a.cfg.SignalOptions(), signal.WithLogger(a.logger))
	s.manager, err = signal.NewManager(ctx, st, st, sigOpts...)
	if err != nil {
		_ = s.Close()
		return nil, waerrors.Classify(err, "W600")
	}
	return s, nil
}

// openSession opens the key store, the signal manager and a client that
// restores saved credentials if any.
func (a *app) openSession(ctx context.Context, opts ...client.Option) (*session, error) {
	s, err := a.openKeys(ctx)
	if err != nil {
		return nil, err
	}

	creds, err := loadCredentials(a.cfg.CredentialsPath())
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	clientOpts := append([]client.Option{
		client.WithLogger(a.logger),
		client.WithCipher(s.manager),
	}, opts...)
	s.client, err = client.New(a.cfg.ClientConfig(creds), clientOpts...)
	if err != nil {
		_ = s.Close()
		return nil, waerrors.New("W101").Wrap(err)
	}
	return s, nil
}

// loadCredentials reads saved login tokens. A missing file is not an error.
func loadCredentials(path string) (*client.Credentials, error) {
	data, err := os.ReadFile(path)
	if stderrors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, waerrors.New("W600").Wrap(err)
	}
	var creds client.Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, waerrors.New("W600").Wrap(err)
	}
	if !creds.Valid() {
		return nil, nil
	}
	return &creds, nil
}

// saveCredentials writes login tokens readable only by the owner.
func saveCredentials(path string, creds *client.Credentials) error {
	if creds == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return waerrors.New("W600").Wrap(err)
	}
	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return waerrors.New("W600").Wrap(err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return waerrors.New("W600").Wrap(err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return waerrors.New("W600").Wrap(err)
	}
	return nil
}

// removeCredentials deletes saved tokens after a logout or expiry.
func removeCredentials(path string) error {
	if err := os.Remove(path); err != nil && !stderrors.Is(err, os.ErrNotExist) {
		return waerrors.New("W600").Wrap(err)
	}
	return nil
}

// connectAuthenticated connects with saved credentials and waits until the
// server accepts them.
func (a *app) connectAuthenticated(ctx context.Context, s *session, wait time.Duration) error {
	if s.client.Config().Credentials == nil {
		return waerrors.New("W302").WithSuggestion("Run 'waweb connect' or 'waweb pair' first")
	}
	if err := s.client.Connect(ctx); err != nil {
		if stderrors.Is(err, client.ErrSessionExpired) {
			_ = removeCredentials(a.cfg.CredentialsPath())
		}
		return waerrors.Classify(err, "W201")
	}
	if !s.client.WaitForAuthentication(wait) {
		if s.client.State() == client.StateDisconnected {
			_ = removeCredentials(a.cfg.CredentialsPath())
			return waerrors.New("W301")
		}
		return waerrors.New("W202").WithDetail("the server did not confirm the saved login in time")
	}
	return nil
}
