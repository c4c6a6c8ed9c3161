package server

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisTokenStore implements a fixed-window counter shared across instances.
type redisTokenStore struct {
	client  *redis.Client
	timeout time.Duration
}

func newRedisTokenStore(addr, password string, db int, timeout time.Duration) *redisTokenStore {
	return &redisTokenStore{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
		timeout: timeout,
	}
}

func (s *redisTokenStore) Allow(key string, limit int, window time.Duration) (bool, time.Duration, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	pipe := s.client.TxPipeline()
	count := pipe.Incr(ctx, key)
	// NX keeps the original window when the key already has a TTL.
	pipe.ExpireNX(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, err
	}
	if count.Val() <= int64(limit) {
		return true, 0, nil
	}
	ttl, err := s.client.TTL(ctx, key).Result()
	if err != nil {
		return false, 0, err
	}
	if ttl < 0 {
		return false, window, nil
	}
	return false, ttl, nil
}
