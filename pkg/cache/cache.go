// Package cache provides the bounded TTL caches that back the AI
// enrichment operations. Each operation family (motivation text, task
// metadata, template kits, task breakdowns) owns one Cache instance;
// entries expire by TTL and the least-recently-used entries are evicted
// once a family exceeds its capacity.
package cache

import (
	"container/list"
	"sync"
	"time"
)

// Cache is a bounded in-memory cache with LRU eviction and per-entry TTL.
// A read moves the entry to the most-recently-used position, so capacity
// eviction always removes the least-recently-touched entry.
type Cache[V any] struct {
	mu       sync.Mutex
	items    map[string]*list.Element
	lru      *list.List
	capacity int
	ttl      time.Duration
	stats    Stats
	now      func() time.Time
}

type entry[V any] struct {
	key       string
	value     V
	expiresAt time.Time
}

// Stats holds cache counters.
type Stats struct {
	Hits        int64
	Misses      int64
	Sets        int64
	Evictions   int64
	Expirations int64
	Entries     int
}

// HitRate returns the hit rate in [0, 1].
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// New creates a cache holding at most capacity entries, each living for
// ttl unless overwritten.
func New[V any](capacity int, ttl time.Duration) *Cache[V] {
	if capacity <= 0 {
		capacity = 100
	}
	return &Cache[V]{
		items:    make(map[string]*list.Element),
		lru:      list.New(),
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Get returns the live value for key. Expired entries are deleted on
// read and reported as misses. A hit refreshes the entry's LRU position.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		c.stats.Misses++
		var zero V
		return zero, false
	}

	e := el.Value.(*entry[V])
	if c.now().After(e.expiresAt) {
		c.removeLocked(el)
		c.stats.Misses++
		c.stats.Expirations++
		var zero V
		return zero, false
	}

	c.lru.MoveToFront(el)
	c.stats.Hits++
	return e.value, true
}

// Set stores value under key with the cache's TTL, evicting the
// least-recently-used entries if the capacity is exceeded.
func (c *Cache[V]) Set(key string, value V) {
	c.SetWithExpiry(key, value, c.now().Add(c.ttl))
}

// SetWithExpiry stores value under key with an explicit expiry instant.
// Used by the persistence layer to restore entries without extending
// their original lifetime.
func (c *Cache[V]) SetWithExpiry(key string, value V, expiresAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stats.Sets++
	if el, ok := c.items[key]; ok {
		e := el.Value.(*entry[V])
		e.value = value
		e.expiresAt = expiresAt
		c.lru.MoveToFront(el)
		return
	}

	el := c.lru.PushFront(&entry[V]{key: key, value: value, expiresAt: expiresAt})
	c.items[key] = el

	for c.lru.Len() > c.capacity {
		c.evictOldestLocked()
	}
}

// Delete removes a single key.
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		c.removeLocked(el)
	}
}

// Clear removes all entries.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*list.Element)
	c.lru.Init()
}

// Len returns the number of entries, including any not yet swept expired ones.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Stats returns a snapshot of the cache counters.
func (c *Cache[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Entries = len(c.items)
	return s
}

// Entry is an exported view of a cached value, used by the persistence
// layer to snapshot and restore a cache across process restarts.
type Entry[V any] struct {
	Key       string    `json:"key"`
	Value     V         `json:"value"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Entries returns the live entries in LRU order, least recently used
// first. Expired entries are skipped.
func (c *Cache[V]) Entries() []Entry[V] {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	out := make([]Entry[V], 0, c.lru.Len())
	for el := c.lru.Back(); el != nil; el = el.Prev() {
		e := el.Value.(*entry[V])
		if now.After(e.expiresAt) {
			continue
		}
		out = append(out, Entry[V]{Key: e.key, Value: e.value, ExpiresAt: e.expiresAt})
	}
	return out
}

// Restore replaces the cache contents with the given entries, preserving
// their expiry instants. Entries are applied in order, so when they
// exceed capacity the earliest ones are the first evicted. Already
// expired entries are dropped.
func (c *Cache[V]) Restore(entries []Entry[V]) {
	c.Clear()
	now := c.now()
	for _, e := range entries {
		if !now.Before(e.ExpiresAt) {
			continue
		}
		c.SetWithExpiry(e.Key, e.Value, e.ExpiresAt)
	}
}

func (c *Cache[V]) removeLocked(el *list.Element) {
	e := el.Value.(*entry[V])
	delete(c.items, e.key)
	c.lru.Remove(el)
}

func (c *Cache[V]) evictOldestLocked() {
	el := c.lru.Back()
	if el == nil {
		return
	}
	c.removeLocked(el)
	c.stats.Evictions++
}
