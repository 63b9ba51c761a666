package port

import (
	"context"
	"time"
)

// CacheBackend is a best-effort byte cache. Every method may fail
// independently; callers treat failures as misses and never propagate them.
type CacheBackend interface {
	// Get returns the cached value, or (nil, nil) on a miss.
	Get(ctx context.Context, key string) ([]byte, error)

	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	Remove(ctx context.Context, keys ...string) error

	RemoveByPrefix(ctx context.Context, prefix string) error
}
