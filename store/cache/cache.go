// Package cache provides a small TTL cache used by the store layer to keep
// hot rows out of the database. Entries expire after their TTL and a
// background janitor sweeps expired entries on a fixed interval.
package cache

import (
	"sync"
	"time"
)

// Config controls cache behavior.
type Config struct {
	// DefaultTTL applies to entries stored via Set.
	DefaultTTL time.Duration
	// CleanupInterval is how often the janitor sweeps expired entries.
	// Zero disables the janitor; expired entries are then dropped lazily on Get.
	CleanupInterval time.Duration
	// MaxItems bounds the cache size. When full, the entry closest to expiry
	// is evicted to make room.
	MaxItems int
	// OnEviction, if set, is invoked for entries removed by capacity eviction
	// or the janitor (not for explicit Delete calls).
	OnEviction func(key string, value any)
}

type item struct {
	value     any
	expiresAt time.Time
}

// Cache is a thread-safe TTL cache with bounded capacity.
type Cache struct {
	config Config

	mu    sync.RWMutex
	items map[string]item

	done      chan struct{}
	closeOnce sync.Once
}

// New creates a cache and starts its cleanup goroutine when
// CleanupInterval is set.
func New(config Config) *Cache {
	if config.DefaultTTL <= 0 {
		config.DefaultTTL = 10 * time.Minute
	}
	if config.MaxItems <= 0 {
		config.MaxItems = 1000
	}

	c := &Cache{
		config: config,
		items:  make(map[string]item),
		done:   make(chan struct{}),
	}
	if config.CleanupInterval > 0 {
		go c.cleanupLoop()
	}
	return c
}

// Get returns the value for key if present and not expired.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.RLock()
	it, ok := c.items[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if time.Now().After(it.expiresAt) {
		c.mu.Lock()
		// Re-check under the write lock; another goroutine may have replaced it.
		if cur, ok := c.items[key]; ok && time.Now().After(cur.expiresAt) {
			delete(c.items, key)
		}
		c.mu.Unlock()
		return nil, false
	}
	return it.value, true
}

// Set stores value under key with the default TTL.
func (c *Cache) Set(key string, value any) {
	c.SetWithTTL(key, value, c.config.DefaultTTL)
}

// SetWithTTL stores value under key with an explicit TTL.
func (c *Cache) SetWithTTL(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.config.DefaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.items[key]; !exists && len(c.items) >= c.config.MaxItems {
		c.evictSoonest()
	}
	c.items[key] = item{value: value, expiresAt: time.Now().Add(ttl)}
}

// Delete removes key from the cache.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
}

// Len returns the number of entries, including not-yet-swept expired ones.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Close stops the cleanup goroutine. The cache remains usable afterwards;
// expired entries are then only dropped lazily.
func (c *Cache) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// evictSoonest removes the entry closest to expiry. Must be called with the
// write lock held.
func (c *Cache) evictSoonest() {
	var (
		victim string
		at     time.Time
		found  bool
	)
	for key, it := range c.items {
		if !found || it.expiresAt.Before(at) {
			victim, at, found = key, it.expiresAt, true
		}
	}
	if !found {
		return
	}
	value := c.items[victim].value
	delete(c.items, victim)
	if c.config.OnEviction != nil {
		c.config.OnEviction(victim, value)
	}
}

func (c *Cache) cleanupLoop() {
	ticker := time.NewTicker(c.config.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.cleanupExpired()
		}
	}
}

func (c *Cache) cleanupExpired() {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	for key, it := range c.items {
		if now.After(it.expiresAt) {
			delete(c.items, key)
			if c.config.OnEviction != nil {
				c.config.OnEviction(key, it.value)
			}
		}
	}
}
