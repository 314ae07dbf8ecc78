// Package typecache provides the small LRU the data management model
// consults to avoid re-querying a resource's rdf:type set on every
// mutation, adapted from the teacher's QueryCache (pkg/cache/query_cache.go).
package typecache

import (
	"container/list"
	"sync"
	"sync/atomic"
	"time"
)

// TypeCache is a thread-safe LRU cache mapping a resource URI to its
// current set of rdf:type URIs.
type TypeCache struct {
	mu sync.RWMutex

	maxSize int
	ttl     time.Duration
	enabled bool

	list  *list.List
	items map[string]*list.Element

	hits   uint64
	misses uint64
}

type cacheEntry struct {
	key       string
	types     []string
	expiresAt time.Time
}

// New creates a type cache holding up to maxSize resources, each entry
// valid for ttl (0 = no expiration).
func New(maxSize int, ttl time.Duration) *TypeCache {
	if maxSize <= 0 {
		maxSize = 1000
	}
	return &TypeCache{
		maxSize: maxSize,
		ttl:     ttl,
		enabled: true,
		list:    list.New(),
		items:   make(map[string]*list.Element, maxSize),
	}
}

// Get returns the cached type set for resource, if present and unexpired.
func (c *TypeCache) Get(resource string) ([]string, bool) {
	if !c.enabled {
		atomic.AddUint64(&c.misses, 1)
		return nil, false
	}

	c.mu.RLock()
	elem, ok := c.items[resource]
	c.mu.RUnlock()
	if !ok {
		atomic.AddUint64(&c.misses, 1)
		return nil, false
	}

	entry := elem.Value.(*cacheEntry)
	if c.ttl > 0 && time.Now().After(entry.expiresAt) {
		c.mu.Lock()
		c.removeElement(elem)
		c.mu.Unlock()
		atomic.AddUint64(&c.misses, 1)
		return nil, false
	}

	c.mu.Lock()
	c.list.MoveToFront(elem)
	c.mu.Unlock()
	atomic.AddUint64(&c.hits, 1)
	return entry.types, true
}

// Put caches resource's type set, evicting the least-recently-used entry
// if the cache is at capacity.
func (c *TypeCache) Put(resource string, types []string) {
	if !c.enabled {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[resource]; ok {
		entry := elem.Value.(*cacheEntry)
		entry.types = types
		if c.ttl > 0 {
			entry.expiresAt = time.Now().Add(c.ttl)
		}
		c.list.MoveToFront(elem)
		return
	}

	for c.list.Len() >= c.maxSize {
		c.evictOldest()
	}

	entry := &cacheEntry{key: resource, types: types}
	if c.ttl > 0 {
		entry.expiresAt = time.Now().Add(c.ttl)
	}
	elem := c.list.PushFront(entry)
	c.items[resource] = elem
}

// Invalidate drops the cached entry for resource, used after any mutation
// that may have changed its type set (addProperty/removeProperty of
// rdf:type, or resource removal).
func (c *TypeCache) Invalidate(resource string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.items[resource]; ok {
		c.removeElement(elem)
	}
}

// Clear removes all entries, used after an ontology reload since a
// resource's effective type closure may have changed.
func (c *TypeCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.list.Init()
	c.items = make(map[string]*list.Element, c.maxSize)
}

// Len returns the number of cached entries.
func (c *TypeCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.list.Len()
}

// Stats reports cache hit/miss performance.
type Stats struct {
	Size    int
	MaxSize int
	Hits    uint64
	Misses  uint64
	HitRate float64
}

func (c *TypeCache) Stats() Stats {
	hits := atomic.LoadUint64(&c.hits)
	misses := atomic.LoadUint64(&c.misses)

	c.mu.RLock()
	size := c.list.Len()
	c.mu.RUnlock()

	var hitRate float64
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}
	return Stats{Size: size, MaxSize: c.maxSize, Hits: hits, Misses: misses, HitRate: hitRate}
}

func (c *TypeCache) evictOldest() {
	if elem := c.list.Back(); elem != nil {
		c.removeElement(elem)
	}
}

func (c *TypeCache) removeElement(elem *list.Element) {
	c.list.Remove(elem)
	entry := elem.Value.(*cacheEntry)
	delete(c.items, entry.key)
}
