package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "storefront:"

// RedisProvider shares markers between replicas.
type RedisProvider struct {
	client redis.UniversalClient
}

func NewRedisProvider(connectionString string) (*RedisProvider, error) {
	if connectionString == "" {
		return nil, fmt.Errorf("redis connection string is required")
	}
	opts, err := redis.ParseURL(connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis connection string: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close() //nolint
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return newRedisProvider(client), nil
}

func newRedisProvider(client redis.UniversalClient) *RedisProvider {
	return &RedisProvider{client: client}
}

func (r *RedisProvider) Seen(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, redisCacheKey(key)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check redis key: %w", err)
	}
	return n > 0, nil
}

func (r *RedisProvider) Remember(ctx context.Context, key string, ttl time.Duration) error {
	if err := r.client.Set(ctx, redisCacheKey(key), "1", ttl).Err(); err != nil {
		return fmt.Errorf("failed to set redis key: %w", err)
	}
	return nil
}

func (r *RedisProvider) Close() error {
	return r.client.Close()
}

func redisCacheKey(key string) string {
	return redisKeyPrefix + key
}
