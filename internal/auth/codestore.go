package auth

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCodeStore backs CodeStore with Redis
type RedisCodeStore struct {
	client *redis.Client
}

// NewRedisCodeStore wraps a Redis client as a CodeStore
func NewRedisCodeStore(client *redis.Client) *RedisCodeStore {
	return &RedisCodeStore{client: client}
}

func (r *RedisCodeStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r *RedisCodeStore) Get(ctx context.Context, key string) (string, error) {
	return r.client.Get(ctx, key).Result()
}

func (r *RedisCodeStore) Del(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}
