// Package citycache keeps the ordered list of previously searched cities and
// mirrors it into a suggestion list for autocomplete.
package citycache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Key is the store key holding the JSON-encoded city list.
const Key = "cachedCities"

// Store is a persistent string key-value store.
// Get returns ("", false, nil) when the key is absent.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// SuggestionList is the autocomplete element fed from the cache.
type SuggestionList interface {
	Clear()
	Add(city string)
}

// Cache is a deduplicated, order-preserving city list backed by a Store.
// Entries are never pruned.
type Cache struct {
	mu          sync.Mutex
	store       Store
	suggestions SuggestionList
	logger      *zap.Logger
}

// New returns a Cache. suggestions may be nil when no autocomplete is shown.
func New(store Store, suggestions SuggestionList, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{store: store, suggestions: suggestions, logger: logger}
}

// Updater is implemented by stores that can apply a read-modify-write of one
// key atomically, so processes sharing the store do not lose each other's
// writes. fn may run more than once; write=false leaves the key untouched.
type Updater interface {
	Update(ctx context.Context, key string, fn func(raw string, ok bool) (next string, write bool, err error)) error
}

// Load returns the cached cities in stored order. Missing, unreadable, or
// malformed data yields an empty list.
func (c *Cache) Load(ctx context.Context) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	cities, err := c.loadLocked(ctx)
	if err != nil {
		c.logger.Debug("city cache read failed", zap.Error(err))
		return []string{}
	}
	return cities
}

// loadLocked returns an empty list for absent or malformed data and an error
// only when the store itself could not be read.
func (c *Cache) loadLocked(ctx context.Context) ([]string, error) {
	raw, ok, err := c.store.Get(ctx, Key)
	if err != nil {
		return nil, fmt.Errorf("read city cache: %w", err)
	}
	return c.decode(raw, ok), nil
}

func (c *Cache) decode(raw string, ok bool) []string {
	if !ok || raw == "" {
		return []string{}
	}
	var cities []string
	if err := json.Unmarshal([]byte(raw), &cities); err != nil {
		c.logger.Debug("city cache unparseable, treating as empty", zap.Error(err))
		return []string{}
	}
	if cities == nil {
		return []string{}
	}
	return cities
}

// Save appends city if it is not already cached, persists the list and
// refreshes the suggestions. Saving a city already present is a no-op. A
// failed read returns an error without writing, so history is never replaced.
func (c *Cache) Save(ctx context.Context, city string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var cities []string
	var added bool
	apply := func(raw string, ok bool) (string, bool, error) {
		cities = c.decode(raw, ok)
		added = false
		for _, existing := range cities {
			if existing == city {
				return "", false, nil
			}
		}
		cities = append(cities, city)
		added = true
		next, err := json.Marshal(cities)
		if err != nil {
			return "", false, fmt.Errorf("encode city cache: %w", err)
		}
		return string(next), true, nil
	}

	if u, ok := c.store.(Updater); ok {
		if err := u.Update(ctx, Key, apply); err != nil {
			return fmt.Errorf("persist city cache: %w", err)
		}
	} else {
		raw, ok, err := c.store.Get(ctx, Key)
		if err != nil {
			return fmt.Errorf("read city cache: %w", err)
		}
		next, write, err := apply(raw, ok)
		if err != nil {
			return err
		}
		if write {
			if err := c.store.Set(ctx, Key, next); err != nil {
				return fmt.Errorf("persist city cache: %w", err)
			}
		}
	}
	if !added {
		return nil
	}
	c.logger.Debug("city cached", zap.String("city", city), zap.Int("size", len(cities)))
	c.refreshLocked(cities)
	return nil
}

// RefreshSuggestions clears the suggestion list and repopulates it from the
// cache in stored order.
func (c *Cache) RefreshSuggestions(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cities, err := c.loadLocked(ctx)
	if err != nil {
		c.logger.Debug("city cache read failed", zap.Error(err))
		cities = []string{}
	}
	c.refreshLocked(cities)
}

func (c *Cache) refreshLocked(cities []string) {
	if c.suggestions == nil {
		return
	}
	c.suggestions.Clear()
	for _, city := range cities {
		c.suggestions.Add(city)
	}
}
