package tools

import (
	"container/list"
	"strings"
	"sync"
	"time"
)

type (
	// Cache is a bounded TTL cache for idempotent read-only tool lookups.
	// Entries expire after the configured TTL; when the capacity is reached
	// the oldest entry is evicted. Keys are normalized query+location pairs.
	Cache struct {
		mu      sync.Mutex
		ttl     time.Duration
		cap     int
		entries map[string]*list.Element
		order   *list.List // oldest first
		now     func() time.Time
	}

	cacheEntry struct {
		key       string
		value     any
		expiresAt time.Time
	}
)

// Cache defaults mirror the production lookup traffic: repeated searches for
// the same query/location pair within a session.
const (
	DefaultCacheTTL     = 15 * time.Minute
	DefaultCacheEntries = 100
)

// NewCache builds a cache with the given TTL and capacity. Non-positive
// values select the defaults.
func NewCache(ttl time.Duration, capacity int) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if capacity <= 0 {
		capacity = DefaultCacheEntries
	}
	return &Cache{
		ttl:     ttl,
		cap:     capacity,
		entries: make(map[string]*list.Element),
		order:   list.New(),
		now:     time.Now,
	}
}

// CacheKey normalizes a query/location pair into a cache key.
func CacheKey(query, location string) string {
	return strings.ToLower(strings.TrimSpace(query)) + "::" + strings.ToLower(strings.TrimSpace(location))
}

// Get returns the cached value for key when present and unexpired.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	entry := el.Value.(*cacheEntry)
	if c.now().After(entry.expiresAt) {
		c.order.Remove(el)
		delete(c.entries, key)
		return nil, false
	}
	return entry.value, true
}

// Set stores value under key, evicting the oldest entry when full.
func (c *Cache) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[key]; ok {
		entry := el.Value.(*cacheEntry)
		entry.value = value
		entry.expiresAt = c.now().Add(c.ttl)
		return
	}
	if c.order.Len() >= c.cap {
		oldest := c.order.Front()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.entries, oldest.Value.(*cacheEntry).key)
		}
	}
	entry := &cacheEntry{key: key, value: value, expiresAt: c.now().Add(c.ttl)}
	c.entries[key] = c.order.PushBack(entry)
}

// Len reports the number of live entries, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
