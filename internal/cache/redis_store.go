package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ahrav/go-promptloop/internal/configuration"
)

const (
	defaultPoolSize   = 10
	connectionTimeout = 5 * time.Second
)

// redisClient is the subset of *redis.Client the store relies on.
type redisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	TTL(ctx context.Context, key string) *redis.DurationCmd
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
	Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
}

type redisStore struct {
	client redisClient
}

// NewRedisStore connects to the configured Redis instance and pings it. An
// unreachable server is logged, not fatal: every later operation fails and
// the Cache above degrades to misses.
func NewRedisStore(ctx context.Context, cfg configuration.CacheConfig, logger *slog.Logger) Store {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		PoolSize: defaultPoolSize,
	})

	if logger == nil {
		logger = slog.Default()
	}
	pingCtx, cancel := context.WithTimeout(ctx, connectionTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis ping failed, cache operations will degrade to misses",
			"addr", cfg.RedisAddr, "error", err)
	}
	return &redisStore{client: client}
}

func newRedisStoreWithClient(client redisClient) *redisStore {
	return &redisStore{client: client}
}

func (s *redisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return b, true, nil
}

func (s *redisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (s *redisStore) Del(ctx context.Context, keys ...string) (int, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	n, err := s.client.Del(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("redis del: %w", err)
	}
	return int(n), nil
}

// TTL maps the Redis -2 (absent) and -1 (no expiry) replies to false.
func (s *redisStore) TTL(ctx context.Context, key string) (time.Duration, bool, error) {
	d, err := s.client.TTL(ctx, key).Result()
	if err != nil {
		return 0, false, fmt.Errorf("redis ttl %s: %w", key, err)
	}
	if d < 0 {
		return 0, false, nil
	}
	return d, true, nil
}

func (s *redisStore) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists %s: %w", key, err)
	}
	return n > 0, nil
}

func (s *redisStore) Scan(ctx context.Context, cursor uint64, match string, count int) ([]string, uint64, error) {
	keys, next, err := s.client.Scan(ctx, cursor, match, int64(count)).Result()
	if err != nil {
		return nil, 0, fmt.Errorf("redis scan %s: %w", match, err)
	}
	return keys, next, nil
}

func (s *redisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

func (s *redisStore) Close() error { return s.client.Close() }
