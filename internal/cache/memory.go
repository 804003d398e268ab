package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryCache is an in-process answer cache for single-instance
// deployments and tests.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	ttl     time.Duration
}

type memoryEntry struct {
	entry     Entry
	expiresAt time.Time
}

// NewMemoryCache creates an in-memory cache.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = time.Hour
	}

	return &MemoryCache{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
	}
}

// Get fetches a cached entry, honoring expiry.
func (c *MemoryCache) Get(ctx context.Context, key string) (*Entry, bool, error) {
	c.mu.RLock()
	me, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return nil, false, nil
	}
	if time.Now().After(me.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return nil, false, nil
	}

	entry := me.entry
	return &entry, true, nil
}

// Set stores an entry.
func (c *MemoryCache) Set(ctx context.Context, key string, entry Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = memoryEntry{
		entry:     entry,
		expiresAt: time.Now().Add(c.ttl),
	}
	return nil
}

// Invalidate drops everything.
func (c *MemoryCache) Invalidate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]memoryEntry)
	return nil
}

// Close is a no-op.
func (c *MemoryCache) Close() error {
	return nil
}
