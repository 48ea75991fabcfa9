package cache

import (
	"time"

	gocache "github.com/patrickmn/go-cache"

	"funpay-agent/internal/domain"
)

const memoryCleanupInterval = time.Minute

// MemoryCache — domain.Cache в памяти процесса, когда Redis не настроен.
// Просроченные ключи вычищает фоновый janitor go-cache.
type MemoryCache struct {
	items *gocache.Cache
}

var _ domain.Cache = (*MemoryCache)(nil)

// NewMemory создаёт кэш в памяти.
func NewMemory() *MemoryCache {
	return &MemoryCache{items: gocache.New(gocache.NoExpiration, memoryCleanupInterval)}
}

func expiration(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return gocache.NoExpiration
	}
	return ttl
}

// Once выполняет функцию, если ключ ещё не задан.
func (c *MemoryCache) Once(key string, ttl time.Duration, fn func() error) error {
	if err := c.items.Add(key, []byte("1"), expiration(ttl)); err != nil {
		return nil
	}
	if err := fn(); err != nil {
		c.items.Delete(key)
		return err
	}
	return nil
}

// Set задаёт значение.
func (c *MemoryCache) Set(key string, value []byte, ttl time.Duration) error {
	stored := make([]byte, len(value))
	copy(stored, value)
	c.items.Set(key, stored, expiration(ttl))
	return nil
}

// Get возвращает значение или domain.ErrCacheMiss.
func (c *MemoryCache) Get(key string) ([]byte, error) {
	v, ok := c.items.Get(key)
	if !ok {
		return nil, domain.ErrCacheMiss
	}
	value := v.([]byte)
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

// Delete удаляет ключ.
func (c *MemoryCache) Delete(key string) error {
	c.items.Delete(key)
	return nil
}
