// Package store persists key material and peer sessions.
//
// Every backend implements signal.KeyStore and signal.SessionStore. Load
// methods return (nil, nil) for entries that were never saved.
//
// Available backends:
//
//   - FileStore: JSON documents under a directory (keys/identity_key.json,
//     keys/prekeys.json, sessions/<peer>.json), written atomically with
//     owner-only permissions.
//   - SQLStore: a pure Go SQLite database.
//   - S3Store: the same JSON documents as objects under a bucket prefix.
//   - MemoryStore: process memory, for tests and throwaway runs.
//
// CachedSessionStore wraps any SessionStore with an in-memory TTL cache.
package store
