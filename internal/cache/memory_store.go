package cache

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time // zero means no expiry
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// memoryStore is a bounded in-process Store. The LRU evicts by size; expiry
// is checked lazily on access.
type memoryStore struct {
	mu      sync.Mutex
	entries *lru.Cache[string, memoryEntry]
	now     func() time.Time
}

// MemoryOption configures a memory store.
type MemoryOption func(*memoryStore)

// WithClock overrides the time source used for expiry.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *memoryStore) { s.now = now }
}

// NewMemoryStore returns a Store holding at most size entries.
func NewMemoryStore(size int, opts ...MemoryOption) (Store, error) {
	entries, err := lru.New[string, memoryEntry](size)
	if err != nil {
		return nil, fmt.Errorf("memory cache of size %d: %w", size, err)
	}
	s := &memoryStore{entries: entries, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// live returns the entry for key, dropping it when expired. Callers hold mu.
func (s *memoryStore) live(key string) (memoryEntry, bool) {
	e, ok := s.entries.Get(key)
	if !ok {
		return memoryEntry{}, false
	}
	if e.expired(s.now()) {
		s.entries.Remove(key)
		return memoryEntry{}, false
	}
	return e, true
}

func (s *memoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.live(key)
	if !ok {
		return nil, false, nil
	}
	return slices.Clone(e.value), true, nil
}

func (s *memoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	e := memoryEntry{value: slices.Clone(value)}
	if ttl > 0 {
		e.expiresAt = s.now().Add(ttl)
	}

	s.mu.Lock()
	s.entries.Add(key, e)
	s.mu.Unlock()
	return nil
}

func (s *memoryStore) Del(_ context.Context, keys ...string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, k := range keys {
		if _, ok := s.live(k); ok {
			s.entries.Remove(k)
			n++
		}
	}
	return n, nil
}

func (s *memoryStore) TTL(_ context.Context, key string) (time.Duration, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.live(key)
	if !ok || e.expiresAt.IsZero() {
		return 0, false, nil
	}
	return e.expiresAt.Sub(s.now()), true, nil
}

func (s *memoryStore) Exists(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.live(key)
	return ok, nil
}

// Scan returns every live matching key in one page. Like Redis, count is
// only a hint; a single page keeps the iteration stable while the caller
// deletes what it has seen.
func (s *memoryStore) Scan(_ context.Context, _ uint64, match string, _ int) ([]string, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []string
	now := s.now()
	for _, k := range s.entries.Keys() {
		e, ok := s.entries.Peek(k)
		if !ok || e.expired(now) {
			continue
		}
		if globMatch(match, k) {
			matched = append(matched, k)
		}
	}
	slices.Sort(matched)
	return matched, 0, nil
}

func (s *memoryStore) Ping(context.Context) error { return nil }

func (s *memoryStore) Close() error {
	s.mu.Lock()
	s.entries.Purge()
	s.mu.Unlock()
	return nil
}
