// Package cache is a small capacity- and ttl-bounded string cache.
package cache

import (
	"sync"
	"time"
)

type entry struct {
	key string
	ts  time.Time
}

type value struct {
	data string
	ts   time.Time
}

// Cache keeps the most recent values up to capacity, each for at most ttl.
type Cache struct {
	mu       sync.Mutex
	items    map[string]value
	order    []entry
	capacity int
	ttl      time.Duration
	now      func() time.Time
}

// New creates a cache with the provided capacity and ttl.
func New(capacity int, ttl time.Duration) *Cache {
	if capacity <= 0 {
		capacity = 1
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Cache{
		items:    make(map[string]value, capacity),
		order:    make([]entry, 0, capacity),
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Get returns the live value stored under key.
func (c *Cache) Get(key string) (string, bool) {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.items[key]
	if !ok || now.Sub(v.ts) > c.ttl {
		return "", false
	}
	return v.data, true
}

// Contains reports whether key holds a live value.
func (c *Cache) Contains(key string) bool {
	_, ok := c.Get(key)
	return ok
}

// Put stores data under key, evicting the oldest entries beyond capacity or ttl.
func (c *Cache) Put(key, data string) {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.items[key] = value{data: data, ts: now}
	c.order = append(c.order, entry{key: key, ts: now})
	c.compact(now)
}

// Len returns the number of stored keys, including ones not yet compacted away.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *Cache) compact(now time.Time) {
	cutoff := now.Add(-c.ttl)

	for len(c.order) > 0 && (len(c.items) > c.capacity || c.order[0].ts.Before(cutoff)) {
		oldest := c.order[0]
		c.order = c.order[1:]

		// a newer Put for the same key left a later entry in order
		if v, ok := c.items[oldest.key]; ok && v.ts.Equal(oldest.ts) {
			delete(c.items, oldest.key)
		}
	}
}
