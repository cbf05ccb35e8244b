// Package cache remembers processed webhook deliveries so provider retries
// can be acknowledged without running them again.
package cache

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Provider stores delivery markers with a TTL. A marker is an optimisation:
// losing one only means a redelivery reaches the order store, which is
// idempotent on its own.
type Provider interface {
	Seen(ctx context.Context, key string) (bool, error)
	Remember(ctx context.Context, key string, ttl time.Duration) error
	Close() error
}

type Config struct {
	Provider              string
	RedisConnectionString string
}

func NewProvider(cfg Config) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "memory", "":
		return NewMemoryProvider(defaultMemoryCacheSize)
	case "redis":
		return NewRedisProvider(cfg.RedisConnectionString)
	default:
		return nil, fmt.Errorf("unsupported cache provider: %s", cfg.Provider)
	}
}

// EventKey names the marker for one provider event delivery.
func EventKey(provider, eventID string) string {
	return fmt.Sprintf("event:%s:%s", provider, eventID)
}
