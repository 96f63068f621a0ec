// Package cache provides a namespaced, TTL-bounded JSON cache shared by all
// runs. It sits on a pluggable Store (Redis or an in-process LRU) and never
// turns a store failure into a caller-visible error: failed reads are misses,
// failed writes are no-ops, and both are counted and logged.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sync/atomic"
	"time"

	"github.com/ahrav/go-promptloop/internal/configuration"
)

// ErrSerialization is returned by Set when a value cannot be encoded as JSON.
var ErrSerialization = errors.New("cache value not serializable")

// Cache is safe for concurrent use. Construct one per process and pass it by
// reference.
type Cache struct {
	store     Store
	prefix    string
	batchSize int
	opTimeout time.Duration
	logger    *slog.Logger

	hits    atomic.Int64
	misses  atomic.Int64
	sets    atomic.Int64
	deletes atomic.Int64
	errors  atomic.Int64
}

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets the logger; the cache tags it with its component name.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithClearBatchSize bounds how many keys Clear deletes per round trip.
func WithClearBatchSize(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.batchSize = n
		}
	}
}

// WithOperationTimeout bounds every call into the store.
func WithOperationTimeout(d time.Duration) Option {
	return func(c *Cache) { c.opTimeout = d }
}

// New wraps store, namespacing every key under prefix.
func New(store Store, prefix string, opts ...Option) *Cache {
	c := &Cache{
		store:     store,
		prefix:    prefix,
		batchSize: configuration.DefaultClearBatchSize,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "cache")
	return c
}

// NewFromConfig builds the store selected by cfg.Backend and wraps it.
func NewFromConfig(ctx context.Context, cfg configuration.CacheConfig, logger *slog.Logger) (*Cache, error) {
	var (
		store Store
		err   error
	)
	switch cfg.Backend {
	case configuration.CacheBackendMemory:
		store, err = NewMemoryStore(cfg.MemorySize)
		if err != nil {
			return nil, err
		}
	case configuration.CacheBackendRedis:
		store = NewRedisStore(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}

	return New(store, cfg.Prefix,
		WithLogger(logger),
		WithClearBatchSize(cfg.ClearBatchSize),
		WithOperationTimeout(cfg.OperationTimeout),
	), nil
}

// Key returns the namespaced form of key as stored in the backing store.
func (c *Cache) Key(key string) string {
	return c.prefix + ":" + key
}

func (c *Cache) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.opTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.opTimeout)
}

func (c *Cache) fail(msg, key string, err error) {
	c.errors.Add(1)
	c.logger.Warn(msg, "key", key, "error", err)
}

// Get decodes the value stored under key into dst and reports whether it
// did. On a miss, a store failure or a corrupt entry dst is left untouched,
// so a caller-initialized dst acts as the default.
func (c *Cache) Get(ctx context.Context, key string, dst any) bool {
	full := c.Key(key)
	opCtx, cancel := c.opContext(ctx)
	defer cancel()

	raw, ok, err := c.store.Get(opCtx, full)
	if err != nil {
		c.fail("cache get failed", full, err)
		return false
	}
	if !ok {
		c.misses.Add(1)
		return false
	}

	// A corrupt entry counts as an error only, never also as a miss.
	if err := decodeInto(raw, dst); err != nil {
		c.fail("cache entry corrupt", full, err)
		return false
	}

	c.hits.Add(1)
	return true
}

// decodeInto decodes into a fresh value of dst's element type and only
// assigns it on success, so a corrupt entry never partially overwrites dst.
func decodeInto(raw []byte, dst any) error {
	rv := reflect.ValueOf(dst)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("destination must be a non-nil pointer, got %T", dst)
	}
	scratch := reflect.New(rv.Elem().Type())
	if err := json.Unmarshal(raw, scratch.Interface()); err != nil {
		return err
	}
	rv.Elem().Set(scratch.Elem())
	return nil
}

// Set stores value as JSON under key. A non-positive ttl stores it without
// expiry. Only serialization failures are reported; store failures are
// counted, logged and swallowed.
func (c *Cache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	full := c.Key(key)
	raw, err := json.Marshal(value)
	if err != nil {
		c.fail("cache value not serializable", full, err)
		return fmt.Errorf("%w: %s: %w", ErrSerialization, key, err)
	}

	opCtx, cancel := c.opContext(ctx)
	defer cancel()
	if err := c.store.Set(opCtx, full, raw, ttl); err != nil {
		c.fail("cache set failed", full, err)
		return nil
	}
	c.sets.Add(1)
	return nil
}

// Delete removes key and reports whether it existed.
func (c *Cache) Delete(ctx context.Context, key string) bool {
	full := c.Key(key)
	opCtx, cancel := c.opContext(ctx)
	defer cancel()

	n, err := c.store.Del(opCtx, full)
	if err != nil {
		c.fail("cache delete failed", full, err)
		return false
	}
	c.deletes.Add(1)
	return n > 0
}

// Clear deletes every key matching the glob pattern within the namespace and
// returns how many were removed. Keys are walked with a cursor and deleted in
// batches so a large namespace never blocks the store in one call.
func (c *Cache) Clear(ctx context.Context, pattern string) int {
	if pattern == "" {
		pattern = "*"
	}
	match := c.Key(pattern)

	deleted := 0
	batch := make([]string, 0, c.batchSize)
	flush := func() bool {
		if len(batch) == 0 {
			return true
		}
		opCtx, cancel := c.opContext(ctx)
		defer cancel()
		n, err := c.store.Del(opCtx, batch...)
		batch = batch[:0]
		if err != nil {
			c.fail("cache clear batch failed", match, err)
			return false
		}
		deleted += n
		return true
	}

	var cursor uint64
	for {
		opCtx, cancel := c.opContext(ctx)
		keys, next, err := c.store.Scan(opCtx, cursor, match, c.batchSize)
		cancel()
		if err != nil {
			c.fail("cache scan failed", match, err)
			break
		}
		for _, k := range keys {
			batch = append(batch, k)
			if len(batch) >= c.batchSize && !flush() {
				return c.recordCleared(match, deleted)
			}
		}
		if next == 0 {
			break
		}
		cursor = next
	}
	flush()
	return c.recordCleared(match, deleted)
}

func (c *Cache) recordCleared(match string, n int) int {
	c.deletes.Add(int64(n))
	c.logger.Info("cache cleared", "pattern", match, "deleted", n)
	return n
}

// TTL returns the remaining lifetime of key. The boolean is false when the
// key is absent, has no expiry, or the store failed.
func (c *Cache) TTL(ctx context.Context, key string) (time.Duration, bool) {
	full := c.Key(key)
	opCtx, cancel := c.opContext(ctx)
	defer cancel()

	d, ok, err := c.store.TTL(opCtx, full)
	if err != nil {
		c.fail("cache ttl failed", full, err)
		return 0, false
	}
	return d, ok
}

// Exists reports whether key is present. Store failures report false.
func (c *Cache) Exists(ctx context.Context, key string) bool {
	full := c.Key(key)
	opCtx, cancel := c.opContext(ctx)
	defer cancel()

	ok, err := c.store.Exists(opCtx, full)
	if err != nil {
		c.fail("cache exists failed", full, err)
		return false
	}
	return ok
}

// Ping checks the backing store. Unlike the data operations it returns the
// failure so health checks can report it.
func (c *Cache) Ping(ctx context.Context) error {
	opCtx, cancel := c.opContext(ctx)
	defer cancel()
	return c.store.Ping(opCtx)
}

// Close releases the backing store.
func (c *Cache) Close() error { return c.store.Close() }

// Memoize returns the cached value under key, or computes it with fn and
// caches the result for ttl. Errors from fn are returned unchanged and
// nothing is cached for them.
func Memoize[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, fn func(context.Context) (T, error)) (T, error) {
	var cached T
	if c.Get(ctx, key, &cached) {
		return cached, nil
	}

	v, err := fn(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	if err := c.Set(ctx, key, v, ttl); err != nil {
		c.logger.Warn("memoized value not cached", "key", key, "error", err)
	}
	return v, nil
}
