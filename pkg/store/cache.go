package store

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/waweb-dev/waweb/pkg/signal"
)

// CachedSessionStore is a read-through TTL cache in front of a SessionStore.
// Writes go to the backing store first and then refresh the cache.
type CachedSessionStore struct {
	next  signal.SessionStore
	cache *gocache.Cache
}

// NewCachedSessionStore caches sessions from next for ttl. Expired entries
// are purged every cleanup interval.
func NewCachedSessionStore(next signal.SessionStore, ttl, cleanup time.Duration) *CachedSessionStore {
	return &CachedSessionStore{
		next:  next,
		cache: gocache.New(ttl, cleanup),
	}
}

// LoadSession serves from the cache, falling back to the backing store.
func (c *CachedSessionStore) LoadSession(ctx context.Context, peerID string) (*signal.Session, error) {
	if v, ok := c.cache.Get(peerID); ok {
		return copySession(v.(*signal.Session)), nil
	}
	sess, err := c.next.LoadSession(ctx, peerID)
	if err != nil || sess == nil {
		return sess, err
	}
	c.cache.SetDefault(peerID, copySession(sess))
	return sess, nil
}

// SaveSession writes through to the backing store.
func (c *CachedSessionStore) SaveSession(ctx context.Context, sess *signal.Session) error {
	if err := c.next.SaveSession(ctx, sess); err != nil {
		c.cache.Delete(sess.PeerID)
		return err
	}
	c.cache.SetDefault(sess.PeerID, copySession(sess))
	return nil
}

// DeleteSession removes the session from both layers.
func (c *CachedSessionStore) DeleteSession(ctx context.Context, peerID string) error {
	c.cache.Delete(peerID)
	return c.next.DeleteSession(ctx, peerID)
}

// ListSessions always asks the backing store.
func (c *CachedSessionStore) ListSessions(ctx context.Context) ([]string, error) {
	return c.next.ListSessions(ctx)
}

// Len returns the number of cached sessions, including expired entries not
// yet purged.
func (c *CachedSessionStore) Len() int {
	return c.cache.ItemCount()
}

// Flush empties the cache.
func (c *CachedSessionStore) Flush() {
	c.cache.Flush()
}
