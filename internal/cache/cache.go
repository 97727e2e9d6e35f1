// Package cache is a small TTL cache for expensive reads served by
// the API, so bursts of requests do not hammer gopsutil or the Docker
// daemon.
package cache

import (
	"sync"
	"time"
)

type item struct {
	value      interface{}
	expiration int64
}

// Cache is a thread-safe in-memory TTL cache.
type Cache struct {
	items map[string]item
	mu    sync.RWMutex
	ttl   time.Duration
}

// New creates a cache with the given default TTL and starts its
// background sweeper.
func New(ttl time.Duration) *Cache {
	c := &Cache{
		items: make(map[string]item),
		ttl:   ttl,
	}
	go c.sweep()
	return c
}

// Set stores a value with the default TTL.
func (c *Cache) Set(key string, value interface{}) {
	c.SetWithTTL(key, value, c.ttl)
}

// SetWithTTL stores a value with a custom TTL.
func (c *Cache) SetWithTTL(key string, value interface{}, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = item{
		value:      value,
		expiration: time.Now().Add(ttl).UnixNano(),
	}
}

// Get returns the cached value, or false when missing or expired.
func (c *Cache) Get(key string) (interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	it, found := c.items[key]
	if !found || time.Now().UnixNano() > it.expiration {
		return nil, false
	}
	return it.value, true
}

// GetOrSet returns the cached value or computes and stores it.
func (c *Cache) GetOrSet(key string, fn func() (interface{}, error)) (interface{}, error) {
	if value, found := c.Get(key); found {
		return value, nil
	}

	value, err := fn()
	if err != nil {
		return nil, err
	}
	c.Set(key, value)
	return value, nil
}

// Delete removes a key.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

func (c *Cache) sweep() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		c.mu.Lock()
		now := time.Now().UnixNano()
		for key, it := range c.items {
			if now > it.expiration {
				delete(c.items, key)
			}
		}
		c.mu.Unlock()
	}
}

// Keys for API-served reads.
const (
	KeyMetrics    = "system:metrics"
	KeyContainers = "docker:containers"
)

// MetricsTTL keeps metrics fresh enough for dashboards while bounding
// gopsutil sampling to once per window.
const MetricsTTL = 2 * time.Second

// ContainersTTL bounds Docker stats collection, which takes one round
// trip per container.
const ContainersTTL = 5 * time.Second
