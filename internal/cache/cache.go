// Package cache holds upstream weather responses for a short TTL so repeated
// lookups of the same city do not hit OpenWeatherMap.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/kjstillabower/weather-lookup/internal/models"
	"github.com/kjstillabower/weather-lookup/internal/observability"
)

// Backend names accepted by config.
const (
	BackendInMemory  = "in_memory"
	BackendMemcached = "memcached"
	BackendRedis     = "redis"
)

// Cache defines the interface for weather response caching implementations.
// Get returns cached data if present and not expired, Set stores data with TTL.
type Cache interface {
	Get(ctx context.Context, key string) (models.Payload, bool, error)
	Set(ctx context.Context, key string, value models.Payload, ttl time.Duration) error
}

// InMemoryCache keeps entries in a map. Expired entries are removed on access.
type InMemoryCache struct {
	mu   sync.Mutex
	data map[string]cacheEntry
	now  func() time.Time
}

type cacheEntry struct {
	value     models.Payload
	expiresAt time.Time
}

func NewInMemoryCache() *InMemoryCache {
	return &InMemoryCache{
		data: make(map[string]cacheEntry),
		now:  time.Now,
	}
}

// Get returns (data, true, nil) on a hit and (zero, false, nil) on a miss or expiry.
func (c *InMemoryCache) Get(ctx context.Context, key string) (models.Payload, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.data[key]
	if !ok {
		return models.Payload{}, false, nil
	}
	if !c.now().Before(entry.expiresAt) {
		delete(c.data, key)
		return models.Payload{}, false, nil
	}
	return entry.value, true, nil
}

func (c *InMemoryCache) Set(ctx context.Context, key string, value models.Payload, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.data[key] = cacheEntry{
		value:     value,
		expiresAt: c.now().Add(ttl),
	}
	return nil
}

// Len reports the number of stored entries, expired ones included.
func (c *InMemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.data)
}

// Instrumented counts lookups per backend in cacheLookupsTotal.
type Instrumented struct {
	Cache
	backend string
}

func Instrument(c Cache, backend string) *Instrumented {
	return &Instrumented{Cache: c, backend: backend}
}

func (c *Instrumented) Get(ctx context.Context, key string) (models.Payload, bool, error) {
	v, ok, err := c.Cache.Get(ctx, key)
	result := "miss"
	switch {
	case err != nil:
		result = "error"
	case ok:
		result = "hit"
	}
	observability.CacheLookupsTotal.WithLabelValues(c.backend, result).Inc()
	return v, ok, err
}
