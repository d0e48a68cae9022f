package sheets

import (
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultCacheTTL bounds reference-data staleness between explicit
// invalidations.
const DefaultCacheTTL = 300 * time.Second

type cacheEntry struct {
	value     any
	fetchedAt time.Time
}

// Cache is a process-wide TTL cache keyed by logical dataset name. Reads
// either hit a fresh entry or trigger the fetch; concurrent fetches of the
// same key are collapsed into one upstream call.
type Cache struct {
	ttl     time.Duration
	mu      sync.Mutex
	entries map[string]cacheEntry
	group   singleflight.Group
}

// NewCache creates a cache with the given TTL; zero means DefaultCacheTTL.
func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
	}
}

// Get returns the cached value for key, fetching and storing it when the
// entry is missing or expired. Fetch errors are not cached.
func (c *Cache) Get(key string, fetch func() (any, error)) (any, error) {
	c.mu.Lock()
	if e, ok := c.entries[key]; ok && time.Since(e.fetchedAt) < c.ttl {
		c.mu.Unlock()
		return e.value, nil
	}
	c.mu.Unlock()

	v, err, _ := c.group.Do(key, func() (any, error) {
		val, err := fetch()
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.entries[key] = cacheEntry{value: val, fetchedAt: time.Now()}
		c.mu.Unlock()
		return val, nil
	})
	return v, err
}

// Invalidate drops the listed keys.
func (c *Cache) Invalidate(keys ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.entries, k)
	}
}

// cached is a typed wrapper over Cache.Get.
func cached[T any](c *Cache, key string, fetch func() (T, error)) (T, error) {
	v, err := c.Get(key, func() (any, error) {
		return fetch()
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}
