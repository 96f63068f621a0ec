package cache_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-promptloop/internal/cache"
	"github.com/ahrav/go-promptloop/internal/configuration"
)

var errStoreDown = errors.New("store down")

type payload struct {
	Name  string `json:"name"`
	Score int    `json:"score"`
}

// fakeClock is a settable time source for expiry tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newMemoryCache(t *testing.T, opts ...cache.Option) (*cache.Cache, cache.Store, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	store, err := cache.NewMemoryStore(1000, cache.WithClock(clock.Now))
	require.NoError(t, err)
	return cache.New(store, "test", opts...), store, clock
}

// brokenStore fails every operation.
type brokenStore struct{}

func (brokenStore) Get(context.Context, string) ([]byte, bool, error) { return nil, false, errStoreDown }
func (brokenStore) Set(context.Context, string, []byte, time.Duration) error {
	return errStoreDown
}
func (brokenStore) Del(context.Context, ...string) (int, error) { return 0, errStoreDown }
func (brokenStore) TTL(context.Context, string) (time.Duration, bool, error) {
	return 0, false, errStoreDown
}
func (brokenStore) Exists(context.Context, string) (bool, error) { return false, errStoreDown }
func (brokenStore) Scan(context.Context, uint64, string, int) ([]string, uint64, error) {
	return nil, 0, errStoreDown
}
func (brokenStore) Ping(context.Context) error { return errStoreDown }
func (brokenStore) Close() error { return nil }

func TestCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	c, _, _ := newMemoryCache(t)

	require.NoError(t, c.Set(ctx, "a", payload{Name: "x", Score: 7}, time.Minute))

	var got payload
	require.True(t, c.Get(ctx, "a", &got))
	assert.Equal(t, payload{Name: "x", Score: 7}, got)
	assert.True(t, c.Exists(ctx, "a"))
}

func TestCachePrefixesKeys(t *testing.T) {
	ctx := context.Background()
	c, store, _ := newMemoryCache(t)

	require.NoError(t, c.Set(ctx, "run:abc", 1, 0))

	_, ok, err := store.Get(ctx, "test:run:abc")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "test:run:abc", c.Key("run:abc"))
}

// Set with a short TTL, read before and after expiry.
func TestCacheExpiry(t *testing.T) {
	ctx := context.Background()
	c, _, clock := newMemoryCache(t)

	require.NoError(t, c.Set(ctx, "a", map[string]int{"x": 1}, 2*time.Second))

	var got map[string]int
	require.True(t, c.Get(ctx, "a", &got))
	assert.Equal(t, map[string]int{"x": 1}, got)

	clock.Advance(3 * time.Second)

	def := map[string]int{"default": 0}
	assert.False(t, c.Get(ctx, "a", &def))
	assert.Equal(t, map[string]int{"default": 0}, def, "miss leaves the default untouched")

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(1), stats.Sets)
}

func TestCacheMissIsNotAnError(t *testing.T) {
	ctx := context.Background()
	c, _, _ := newMemoryCache(t)

	got := payload{Name: "default"}
	assert.False(t, c.Get(ctx, "never-set", &got))
	assert.Equal(t, "default", got.Name)
	assert.Equal(t, int64(0), c.Stats().Errors)
}

func TestCacheCorruptEntryIsMiss(t *testing.T) {
	ctx := context.Background()
	c, store, _ := newMemoryCache(t)

	require.NoError(t, store.Set(ctx, "test:bad", []byte("{not json"), 0))
	require.NoError(t, store.Set(ctx, "test:wrongtype", []byte(`"a string"`), 0))

	got := payload{Name: "default"}
	assert.False(t, c.Get(ctx, "bad", &got))
	assert.Equal(t, "default", got.Name)

	assert.False(t, c.Get(ctx, "wrongtype", &got))
	assert.Equal(t, "default", got.Name)

	stats := c.Stats()
	assert.Equal(t, int64(2), stats.Errors)
	assert.Zero(t, stats.Misses, "each lookup bumps exactly one counter")
	assert.Zero(t, stats.Hits)
}

func TestCacheSetSerializationFailure(t *testing.T) {
	ctx := context.Background()
	c, _, _ := newMemoryCache(t)

	err := c.Set(ctx, "nan", math.NaN(), 0)
	require.ErrorIs(t, err, cache.ErrSerialization)

	err = c.Set(ctx, "chan", make(chan int), 0)
	require.ErrorIs(t, err, cache.ErrSerialization)

	assert.Equal(t, int64(2), c.Stats().Errors)
	assert.Zero(t, c.Stats().Sets)
	assert.False(t, c.Exists(ctx, "nan"))
}

func TestCacheDegradesWhenStoreFails(t *testing.T) {
	ctx := context.Background()
	c := cache.New(brokenStore{}, "test")

	got := payload{Name: "default"}
	assert.False(t, c.Get(ctx, "a", &got))
	assert.Equal(t, "default", got.Name)
	assert.NoError(t, c.Set(ctx, "a", got, time.Minute))
	assert.False(t, c.Delete(ctx, "a"))
	assert.Zero(t, c.Clear(ctx, "*"))
	assert.False(t, c.Exists(ctx, "a"))
	_, ok := c.TTL(ctx, "a")
	assert.False(t, ok)

	stats := c.Stats()
	assert.Equal(t, int64(6), stats.Errors)
	assert.Zero(t, stats.Hits)
	assert.Zero(t, stats.Sets)
}

func TestCacheDelete(t *testing.T) {
	ctx := context.Background()
	c, _, _ := newMemoryCache(t)

	require.NoError(t, c.Set(ctx, "a", 1, 0))
	assert.True(t, c.Delete(ctx, "a"))
	assert.False(t, c.Delete(ctx, "a"))
	assert.Equal(t, int64(2), c.Stats().Deletes)
}

func TestCacheTTL(t *testing.T) {
	ctx := context.Background()
	c, _, clock := newMemoryCache(t)

	require.NoError(t, c.Set(ctx, "short", 1, time.Minute))
	require.NoError(t, c.Set(ctx, "forever", 1, 0))

	clock.Advance(15 * time.Second)
	d, ok := c.TTL(ctx, "short")
	require.True(t, ok)
	assert.Equal(t, 45*time.Second, d)

	_, ok = c.TTL(ctx, "forever")
	assert.False(t, ok, "no expiry reports absent TTL")

	_, ok = c.TTL(ctx, "missing")
	assert.False(t, ok)
}

func TestCacheClearInBatches(t *testing.T) {
	ctx := context.Background()
	c, _, _ := newMemoryCache(t, cache.WithClearBatchSize(3))

	for i := range 10 {
		require.NoError(t, c.Set(ctx, fmt.Sprintf("eval:%02d", i), i, 0))
	}
	require.NoError(t, c.Set(ctx, "run:keep", 1, 0))

	assert.Equal(t, 10, c.Clear(ctx, "eval:*"))
	assert.False(t, c.Exists(ctx, "eval:00"))
	assert.True(t, c.Exists(ctx, "run:keep"))

	assert.Equal(t, 1, c.Clear(ctx, ""))
	assert.Equal(t, int64(11), c.Stats().Deletes)
}

func TestCacheClearLeavesOtherNamespaces(t *testing.T) {
	ctx := context.Background()
	store, err := cache.NewMemoryStore(100)
	require.NoError(t, err)

	a := cache.New(store, "a")
	b := cache.New(store, "b")
	require.NoError(t, a.Set(ctx, "k", 1, 0))
	require.NoError(t, b.Set(ctx, "k", 2, 0))

	assert.Equal(t, 1, a.Clear(ctx, "*"))

	var v int
	assert.True(t, b.Get(ctx, "k", &v))
	assert.Equal(t, 2, v)
}

func TestCacheClearSpansSlashes(t *testing.T) {
	ctx := context.Background()
	c, _, _ := newMemoryCache(t)

	require.NoError(t, c.Set(ctx, "task:a/b", 1, 0))
	require.NoError(t, c.Set(ctx, "task:plain", 1, 0))
	require.NoError(t, c.Set(ctx, "run:a/b", 1, 0))

	assert.Equal(t, 2, c.Clear(ctx, "task:*"))
	assert.False(t, c.Exists(ctx, "task:a/b"))
	assert.True(t, c.Exists(ctx, "run:a/b"))
}

func TestCachePing(t *testing.T) {
	ctx := context.Background()
	c, _, _ := newMemoryCache(t)
	assert.NoError(t, c.Ping(ctx))

	broken := cache.New(brokenStore{}, "test")
	assert.ErrorIs(t, broken.Ping(ctx), errStoreDown)
}

func TestCacheResetStats(t *testing.T) {
	ctx := context.Background()
	c, _, _ := newMemoryCache(t)

	require.NoError(t, c.Set(ctx, "a", 1, 0))
	var v int
	c.Get(ctx, "a", &v)
	c.Get(ctx, "b", &v)

	stats := c.Stats()
	assert.InDelta(t, 0.5, stats.HitRate, 1e-9)

	c.ResetStats()
	assert.Equal(t, cache.Stats{}, c.Stats())
}

func TestMemoize(t *testing.T) {
	ctx := context.Background()
	c, _, _ := newMemoryCache(t)

	calls := 0
	compute := func(context.Context) (payload, error) {
		calls++
		return payload{Name: "computed", Score: calls}, nil
	}

	first, err := cache.Memoize(ctx, c, "m", time.Minute, compute)
	require.NoError(t, err)
	second, err := cache.Memoize(ctx, c, "m", time.Minute, compute)
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
	assert.Equal(t, first, second)
}

func TestMemoizeDoesNotCacheErrors(t *testing.T) {
	ctx := context.Background()
	c, _, _ := newMemoryCache(t)

	boom := errors.New("boom")
	_, err := cache.Memoize(ctx, c, "m", time.Minute, func(context.Context) (int, error) { return 0, boom })
	require.ErrorIs(t, err, boom)
	assert.False(t, c.Exists(ctx, "m"))
}

func TestNewFromConfigMemory(t *testing.T) {
	cfg := configuration.DefaultConfig().Cache
	cfg.Backend = configuration.CacheBackendMemory

	c, err := cache.NewFromConfig(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	require.NoError(t, c.Set(context.Background(), "k", "v", 0))
	assert.True(t, c.Exists(context.Background(), "k"))
}

func TestContentKeyIsStable(t *testing.T) {
	a := cache.ContentKey("run", "write a haiku")
	b := cache.ContentKey("run", "write a haiku")
	c := cache.ContentKey("run", "write a limerick")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Regexp(t, `^run:[0-9a-f]{64}$`, a)
}

func TestCacheConcurrentCounters(t *testing.T) {
	ctx := context.Background()
	c, _, _ := newMemoryCache(t)
	require.NoError(t, c.Set(ctx, "shared", 1, 0))

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				var v int
				c.Get(ctx, "shared", &v)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(1000), c.Stats().Hits)
}
