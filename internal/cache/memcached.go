package cache

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"

	"github.com/kjstillabower/weather-lookup/internal/models"
)

const keyPrefix = "weather:"

// maxKeyLen is memcached's limit on key length.
const maxKeyLen = 250

type MemcachedCache struct {
	client *memcache.Client
}

// NewMemcachedCache creates a MemcachedCache. addrs is a comma-separated list
// (e.g. "localhost:11211" or "host1:11211,host2:11211"). timeout and maxIdleConns
// use package defaults if zero.
func NewMemcachedCache(addrs string, timeout time.Duration, maxIdleConns int) (*MemcachedCache, error) {
	servers := parseAddrs(addrs)
	if len(servers) == 0 {
		servers = []string{"localhost:11211"}
	}
	client := memcache.New(servers...)
	if timeout > 0 {
		client.Timeout = timeout
	}
	if maxIdleConns > 0 {
		client.MaxIdleConns = maxIdleConns
	}
	return &MemcachedCache{client: client}, nil
}

func parseAddrs(s string) []string {
	var out []string
	for _, a := range strings.Split(s, ",") {
		a = strings.TrimSpace(a)
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}

// memcachedKey escapes the city so keys never contain spaces or control
// characters ("new york" becomes "weather:new+york").
func memcachedKey(k string) string {
	key := keyPrefix + url.QueryEscape(k)
	if len(key) > maxKeyLen {
		key = key[:maxKeyLen]
	}
	return key
}

// Get returns false, nil on a miss and false, err on error.
func (c *MemcachedCache) Get(ctx context.Context, key string) (models.Payload, bool, error) {
	if ctx.Err() != nil {
		return models.Payload{}, false, ctx.Err()
	}
	item, err := c.client.Get(memcachedKey(key))
	if err != nil {
		if errors.Is(err, memcache.ErrCacheMiss) {
			return models.Payload{}, false, nil
		}
		return models.Payload{}, false, err
	}
	var data models.Payload
	if err := json.Unmarshal(item.Value, &data); err != nil {
		return models.Payload{}, false, err
	}
	return data, true, nil
}

func (c *MemcachedCache) Set(ctx context.Context, key string, value models.Payload, ttl time.Duration) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(&memcache.Item{
		Key:        memcachedKey(key),
		Value:      raw,
		Expiration: expirationSeconds(ttl),
	})
}

// expirationSeconds rounds ttl up to whole seconds; memcached has no finer unit.
func expirationSeconds(ttl time.Duration) int32 {
	const maxRelativeExp = 30 * 24 * 60 * 60
	sec := int32((ttl + time.Second - 1) / time.Second)
	if sec <= 0 || sec > maxRelativeExp {
		return 10
	}
	return sec
}

// Ping checks if memcached is reachable. Used for health checks.
func (c *MemcachedCache) Ping() error {
	return c.client.Ping()
}

func (c *MemcachedCache) Close() error {
	return c.client.Close()
}
