package cache

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultMemoryCacheSize = 10_000

// MemoryProvider keeps markers in a bounded LRU. The oldest markers are
// evicted first once the size is reached.
type MemoryProvider struct {
	cache *lru.Cache[string, time.Time]
	now   func() time.Time
}

func NewMemoryProvider(size int) (*MemoryProvider, error) {
	if size <= 0 {
		size = defaultMemoryCacheSize
	}
	c, err := lru.New[string, time.Time](size)
	if err != nil {
		return nil, err
	}
	return &MemoryProvider{cache: c, now: time.Now}, nil
}

func (m *MemoryProvider) Seen(_ context.Context, key string) (bool, error) {
	expiresAt, ok := m.cache.Get(key)
	if !ok {
		return false, nil
	}
	if !m.now().Before(expiresAt) {
		m.cache.Remove(key)
		return false, nil
	}
	return true, nil
}

func (m *MemoryProvider) Remember(_ context.Context, key string, ttl time.Duration) error {
	m.cache.Add(key, m.now().Add(ttl))
	return nil
}

func (m *MemoryProvider) Close() error {
	m.cache.Purge()
	return nil
}
