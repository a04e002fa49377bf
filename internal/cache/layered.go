package cache

import (
	"context"
	"time"

	"github.com/Badsworth/pfml-scripts-sub007/internal/model"
)

// Backing is the durable store behind a layered cache
type Backing interface {
	Get(ctx context.Context, key string) (model.TrackerEntry, bool, error)
	Put(ctx context.Context, entry model.TrackerEntry) error
}

// LayeredCache reads through memory to a durable backing store and writes
// through to both. Memory is only updated after the backing write succeeds.
type LayeredCache struct {
	memory  Cache
	backing Backing
	ttl     time.Duration
}

// NewLayeredCache creates a new layered cache
func NewLayeredCache(backing Backing, memoryTTL time.Duration) *LayeredCache {
	return &LayeredCache{
		memory:  NewMemoryCache(memoryTTL, 10*time.Minute),
		backing: backing,
		ttl:     memoryTTL,
	}
}

// Get retrieves an entry (checks memory first, then the backing store)
func (c *LayeredCache) Get(ctx context.Context, key string) (model.TrackerEntry, bool, error) {
	if entry, found := c.memory.Get(key); found {
		return entry, true, nil
	}

	entry, found, err := c.backing.Get(ctx, key)
	if err != nil || !found {
		return model.TrackerEntry{}, false, err
	}

	// Promote to memory cache
	c.memory.Set(key, entry, c.ttl)
	return entry, true, nil
}

// Put writes the entry to the backing store, then to memory
func (c *LayeredCache) Put(ctx context.Context, entry model.TrackerEntry) error {
	if err := c.backing.Put(ctx, entry); err != nil {
		c.memory.Delete(entry.Key)
		return err
	}
	c.memory.Set(entry.Key, entry, c.ttl)
	return nil
}
