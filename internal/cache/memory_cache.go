package cache

import (
	"context"
	"sync"
	"time"

	"portfolio-host-service/internal/models"
)

type memoryItem struct {
	entry     models.ResolvedHost
	expiresAt time.Time
}

// MemoryHostCache is a process-local HostCache used when Redis is not configured.
// It is only consistent with a single replica.
type MemoryHostCache struct {
	mu      sync.RWMutex
	items   map[string]memoryItem
	gens    map[string]int64 // one counter per key ever deleted
	maxSize int
	now     func() time.Time
}

// NewMemoryHostCache creates a local cache holding at most maxSize entries
func NewMemoryHostCache(maxSize int) *MemoryHostCache {
	if maxSize <= 0 {
		maxSize = 10000
	}
	return &MemoryHostCache{
		items:   make(map[string]memoryItem),
		gens:    make(map[string]int64),
		maxSize: maxSize,
		now:     time.Now,
	}
}

func (c *MemoryHostCache) Get(ctx context.Context, key string) (*models.ResolvedHost, error) {
	c.mu.RLock()
	item, ok := c.items[key]
	c.mu.RUnlock()

	if !ok || !c.now().Before(item.expiresAt) {
		return nil, ErrCacheMiss
	}
	entry := item.entry
	return &entry, nil
}

func (c *MemoryHostCache) Set(ctx context.Context, key string, entry *models.ResolvedHost, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.setLocked(key, entry, ttl)
	return nil
}

func (c *MemoryHostCache) Delete(ctx context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, k := range keys {
		delete(c.items, k)
		c.gens[k]++
	}
	return nil
}

func (c *MemoryHostCache) Generation(ctx context.Context, key string) (int64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gens[key], nil
}

func (c *MemoryHostCache) SetIfGeneration(ctx context.Context, key string, entry *models.ResolvedHost, ttl time.Duration, gen int64) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.gens[key] != gen {
		return false, nil
	}
	c.setLocked(key, entry, ttl)
	return true, nil
}

func (c *MemoryHostCache) setLocked(key string, entry *models.ResolvedHost, ttl time.Duration) {
	if _, exists := c.items[key]; !exists && len(c.items) >= c.maxSize {
		c.evictLocked()
	}
	c.items[key] = memoryItem{entry: *entry, expiresAt: c.now().Add(ttl)}
}

// evictLocked drops expired entries, or an arbitrary one if none expired
func (c *MemoryHostCache) evictLocked() {
	now := c.now()
	for k, item := range c.items {
		if !now.Before(item.expiresAt) {
			delete(c.items, k)
		}
	}
	if len(c.items) < c.maxSize {
		return
	}
	for k := range c.items {
		delete(c.items, k)
		return
	}
}

// Len returns the number of stored entries, expired ones included
func (c *MemoryHostCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
