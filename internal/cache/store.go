package cache

import (
	"context"
	"time"
)

// Store is the backing key/value store behind a Cache. Keys reaching a Store
// are already namespaced. Implementations must be safe for concurrent use and
// provide single-key atomicity; nothing stronger is assumed.
type Store interface {
	// Get returns the raw value and whether it was present.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores value. A non-positive ttl stores it without expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Del removes keys and reports how many existed.
	Del(ctx context.Context, keys ...string) (int, error)
	// TTL returns the remaining lifetime of key. The boolean is false when the
	// key is absent or has no expiry.
	TTL(ctx context.Context, key string) (time.Duration, bool, error)
	Exists(ctx context.Context, key string) (bool, error)
	// Scan returns one page of keys matching a glob pattern and the cursor of
	// the next page. A zero next cursor ends the iteration.
	Scan(ctx context.Context, cursor uint64, match string, count int) ([]string, uint64, error)
	// Ping checks that the store is reachable.
	Ping(ctx context.Context) error
	Close() error
}
