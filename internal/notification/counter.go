package notification

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

// RedisCounter backs Counter with Redis.
type RedisCounter struct {
	client *redis.Client
}

// NewRedisCounter wraps a Redis client as a Counter.
func NewRedisCounter(client *redis.Client) *RedisCounter {
	return &RedisCounter{client: client}
}

func (r *RedisCounter) Incr(ctx context.Context, key string) error {
	return r.client.Incr(ctx, key).Err()
}

func (r *RedisCounter) Set(ctx context.Context, key string, value int64) error {
	return r.client.Set(ctx, key, value, 0).Err()
}

func (r *RedisCounter) Get(ctx context.Context, key string) (int64, bool, error) {
	count, err := r.client.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return count, true, nil
}
