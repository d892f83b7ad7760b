package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is a Store backed by Redis atomic increment and expiry
// primitives, correct across multiple gateway instances.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a Redis-backed store. Keys are namespaced under
// the given prefix ("ratelimit" when empty).
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) counterKey(key string) string {
	return fmt.Sprintf("%s:count:%s", s.prefix, key)
}

func (s *RedisStore) blockKey(key string) string {
	return fmt.Sprintf("%s:block:%s", s.prefix, key)
}

// Increment implements Store. INCR and ExpireNX run in one pipeline so the
// window TTL is set exactly once, by whichever request starts the window.
func (s *RedisStore) Increment(ctx context.Context, key string, window time.Duration) (int, time.Time, error) {
	counterKey := s.counterKey(key)

	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, counterKey)
	pipe.ExpireNX(ctx, counterKey, window)
	ttl := pipe.PTTL(ctx, counterKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, time.Time{}, fmt.Errorf("increment %s: %w", key, err)
	}

	resetAt := time.Now().Add(ttl.Val())
	return int(incr.Val()), resetAt, nil
}

// Block implements Store.
func (s *RedisStore) Block(ctx context.Context, key string, d time.Duration) error {
	if err := s.client.Set(ctx, s.blockKey(key), 1, d).Err(); err != nil {
		return fmt.Errorf("block %s: %w", key, err)
	}
	return nil
}

// IsBlocked implements Store. The block key expires on its own, so a
// missing key or non-positive TTL means the block has cleared.
func (s *RedisStore) IsBlocked(ctx context.Context, key string) (bool, time.Time, error) {
	ttl, err := s.client.PTTL(ctx, s.blockKey(key)).Result()
	if err != nil {
		return false, time.Time{}, fmt.Errorf("isblocked %s: %w", key, err)
	}
	if ttl <= 0 {
		return false, time.Time{}, nil
	}
	return true, time.Now().Add(ttl), nil
}

// Reset implements Store.
func (s *RedisStore) Reset(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.counterKey(key), s.blockKey(key)).Err(); err != nil {
		return fmt.Errorf("reset %s: %w", key, err)
	}
	return nil
}

// Cleanup implements Store. Redis TTLs expire entries natively.
func (s *RedisStore) Cleanup(context.Context) error {
	return nil
}
