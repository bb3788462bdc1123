// Package cache provides tenant-scoped byte caches used by Sentinel to
// reuse reputation and domain age answers between analyses.
package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// LRUCache is an in-process, size-bounded cache with per-entry expiry.
// It serves the community tier alone and sits in front of Redis in a
// TwoPhaseCache.
type LRUCache struct {
	mu      sync.Mutex
	maxSize int
	items   map[string]*list.Element
	order   *list.List // front is most recently used
	hits    uint64
	misses  uint64
	now     func() time.Time
}

type cacheEntry struct {
	key       string
	value     []byte
	expiresAt time.Time
}

// Stats is a point-in-time view of an LRUCache.
type Stats struct {
	Entries  int
	Capacity int
	Hits     uint64
	Misses   uint64
}

// NewLRUCache returns a cache holding at most maxSize entries.
// A non-positive maxSize defaults to 10000.
func NewLRUCache(maxSize int) *LRUCache {
	if maxSize <= 0 {
		maxSize = 10000
	}
	return &LRUCache{
		maxSize: maxSize,
		items:   make(map[string]*list.Element),
		order:   list.New(),
		now:     time.Now,
	}
}

// Get returns the cached value or nil. Expired entries are dropped on read.
func (c *LRUCache) Get(ctx context.Context, tenantID string, key string) ([]byte, error) {
	if tenantID == "" {
		return nil, ErrTenantRequired
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[makeKey(tenantID, key)]
	if !ok {
		c.misses++
		return nil, nil
	}
	entry := elem.Value.(*cacheEntry)
	if !c.now().Before(entry.expiresAt) {
		c.remove(elem)
		c.misses++
		return nil, nil
	}

	c.order.MoveToFront(elem)
	c.hits++
	return entry.value, nil
}

// Set stores value until ttl elapses. A non-positive ttl is a no-op.
func (c *LRUCache) Set(ctx context.Context, tenantID string, key string, value []byte, ttl time.Duration) error {
	if tenantID == "" {
		return ErrTenantRequired
	}
	if ttl <= 0 {
		return nil
	}

	fullKey := makeKey(tenantID, key)
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[fullKey]; ok {
		entry := elem.Value.(*cacheEntry)
		entry.value = value
		entry.expiresAt = now.Add(ttl)
		c.order.MoveToFront(elem)
		return nil
	}

	c.items[fullKey] = c.order.PushFront(&cacheEntry{
		key:       fullKey,
		value:     value,
		expiresAt: now.Add(ttl),
	})

	if c.order.Len() > c.maxSize {
		c.sweep(now)
	}
	for c.order.Len() > c.maxSize {
		c.remove(c.order.Back())
	}
	return nil
}

// Delete removes a key. Missing keys are not an error.
func (c *LRUCache) Delete(ctx context.Context, tenantID string, key string) error {
	if tenantID == "" {
		return ErrTenantRequired
	}
	c.evict(makeKey(tenantID, key))
	return nil
}

// Ping always succeeds.
func (c *LRUCache) Ping(ctx context.Context) error {
	return nil
}

// Close drops every entry.
func (c *LRUCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*list.Element)
	c.order.Init()
	return nil
}

// Stats reports occupancy and hit counts.
func (c *LRUCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Entries:  c.order.Len(),
		Capacity: c.maxSize,
		Hits:     c.hits,
		Misses:   c.misses,
	}
}

// evict removes an entry by its tenant-qualified key.
func (c *LRUCache) evict(fullKey string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.items[fullKey]; ok {
		c.remove(elem)
	}
}

// sweep drops expired entries, oldest first. Caller holds mu.
func (c *LRUCache) sweep(now time.Time) {
	for elem := c.order.Back(); elem != nil; {
		prev := elem.Prev()
		if !now.Before(elem.Value.(*cacheEntry).expiresAt) {
			c.remove(elem)
		}
		elem = prev
	}
}

func (c *LRUCache) remove(elem *list.Element) {
	c.order.Remove(elem)
	delete(c.items, elem.Value.(*cacheEntry).key)
}
