package cache

import (
	"sync"
	"time"
)

type item struct {
	value     string
	expiresAt time.Time
}

func (it *item) expired(now time.Time) bool {
	return now.After(it.expiresAt)
}

// StringCache is a thread-safe in-memory string cache with TTL support,
// used for identity display names when no Redis backend is configured.
type StringCache struct {
	mu         sync.RWMutex
	items      map[string]item
	defaultTTL time.Duration
	stop       chan struct{}
	stopOnce   sync.Once
}

// New creates a cache with the given default TTL and starts a background
// cleanup goroutine.
func New(defaultTTL time.Duration) *StringCache {
	c := &StringCache{
		items:      make(map[string]item),
		defaultTTL: defaultTTL,
		stop:       make(chan struct{}),
	}

	go c.cleanup()

	return c
}

// Get retrieves a value; expired entries read as missing.
func (c *StringCache) Get(key string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	it, ok := c.items[key]
	if !ok || it.expired(time.Now()) {
		return "", false
	}
	return it.value, true
}

// Set stores a value with the default TTL.
func (c *StringCache) Set(key, value string) {
	c.SetWithTTL(key, value, c.defaultTTL)
}

// SetWithTTL stores a value with an explicit TTL.
func (c *StringCache) SetWithTTL(key, value string, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = item{value: value, expiresAt: time.Now().Add(ttl)}
}

// Delete removes a key.
func (c *StringCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

// Len returns the number of stored entries, including not-yet-collected
// expired ones.
func (c *StringCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Stop terminates the cleanup goroutine.
func (c *StringCache) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *StringCache) cleanup() {
	interval := c.defaultTTL / 2
	if interval <= 0 {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			now := time.Now()
			c.mu.Lock()
			for key, it := range c.items {
				if it.expired(now) {
					delete(c.items, key)
				}
			}
			c.mu.Unlock()
		case <-c.stop:
			return
		}
	}
}
