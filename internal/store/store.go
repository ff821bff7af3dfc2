// Package store abstracts the external key-value service shared by the
// result cache and the rate limiter. Implementations expose the narrow
// command surface the proxy actually uses so callers never depend on a
// concrete client library.
package store

import (
	"context"
	"time"
)

// ErrNotFound is returned by Get when the key does not exist or has expired.
type ErrNotFound struct{ Key string }

func (e ErrNotFound) Error() string { return "store: key not found: " + e.Key }

// Store is the minimal key-value contract the proxy relies on. Single-key
// operations are atomic at the store level; that atomicity is the only
// cross-request coordination the system needs.
type Store interface {
	// Get returns the value at key, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)
	// SetEx stores value at key with the given time-to-live.
	SetEx(ctx context.Context, key, value string, ttl time.Duration) error
	// Incr atomically increments the integer at key, creating it at 1.
	Incr(ctx context.Context, key string) (int64, error)
	// Expire sets or refreshes the time-to-live of an existing key.
	Expire(ctx context.Context, key string, ttl time.Duration) error
	// Keys lists keys matching a glob pattern. Operational use only.
	Keys(ctx context.Context, pattern string) ([]string, error)
	// Del removes the given keys, returning how many existed.
	Del(ctx context.Context, keys ...string) (int64, error)
	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}
