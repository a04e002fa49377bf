package cache

import (
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/Badsworth/pfml-scripts-sub007/internal/model"
)

// MemoryCache implements in-memory expiring caching
type MemoryCache struct {
	cache *gocache.Cache
}

// NewMemoryCache creates a new memory cache
func NewMemoryCache(defaultTTL time.Duration, cleanupInterval time.Duration) *MemoryCache {
	return &MemoryCache{
		cache: gocache.New(defaultTTL, cleanupInterval),
	}
}

// Get retrieves an entry from the cache
func (c *MemoryCache) Get(key string) (model.TrackerEntry, bool) {
	if val, found := c.cache.Get(CacheKey(key)); found {
		return val.(model.TrackerEntry), true
	}
	return model.TrackerEntry{}, false
}

// Set stores an entry with the given TTL (0 uses the default TTL)
func (c *MemoryCache) Set(key string, entry model.TrackerEntry, ttl time.Duration) {
	if ttl == 0 {
		ttl = gocache.DefaultExpiration
	}
	c.cache.Set(CacheKey(key), entry, ttl)
}

// Delete removes an entry from the cache
func (c *MemoryCache) Delete(key string) {
	c.cache.Delete(CacheKey(key))
}

// Clear removes all entries from the cache
func (c *MemoryCache) Clear() {
	c.cache.Flush()
}

// Len returns the number of cached entries, including expired ones not yet evicted
func (c *MemoryCache) Len() int {
	return c.cache.ItemCount()
}
