// Package cache provides the report memoization layer: a thread-safe LRU
// with TTL, plus typed wrappers for single-user reports and batch network
// scans. Entries expire passively on access; nothing refreshes on a timer.
package cache

import (
	"container/list"
	"sync"
	"time"
)

type entry struct {
	key    string
	value  interface{}
	expiry time.Time
}

func (e *entry) expired() bool {
	return !e.expiry.IsZero() && time.Now().After(e.expiry)
}

// LRUCache is a thread-safe least-recently-used cache with per-cache TTL.
type LRUCache struct {
	capacity int
	ttl      time.Duration
	items    map[string]*list.Element
	order    *list.List
	mutex    sync.Mutex

	hits   int64
	misses int64
}

// NewLRUCache creates a cache holding at most capacity entries, each valid
// for ttl after insertion. A zero ttl disables expiry.
func NewLRUCache(capacity int, ttl time.Duration) *LRUCache {
	return &LRUCache{
		capacity: capacity,
		ttl:      ttl,
		items:    make(map[string]*list.Element),
		order:    list.New(),
	}
}

// Get retrieves a live value, expiring it in place when stale.
func (c *LRUCache) Get(key string) (interface{}, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	elem, exists := c.items[key]
	if !exists {
		c.misses++
		return nil, false
	}

	ent := elem.Value.(*entry)
	if ent.expired() {
		c.remove(elem)
		c.misses++
		return nil, false
	}

	c.order.MoveToFront(elem)
	c.hits++
	return ent.value, true
}

// Set stores a value, restarting its TTL and evicting the LRU entry when
// the cache is over capacity.
func (c *LRUCache) Set(key string, value interface{}) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	var expiry time.Time
	if c.ttl > 0 {
		expiry = time.Now().Add(c.ttl)
	}

	if elem, exists := c.items[key]; exists {
		ent := elem.Value.(*entry)
		ent.value = value
		ent.expiry = expiry
		c.order.MoveToFront(elem)
		return
	}

	elem := c.order.PushFront(&entry{key: key, value: value, expiry: expiry})
	c.items[key] = elem

	if c.order.Len() > c.capacity {
		if back := c.order.Back(); back != nil {
			c.remove(back)
		}
	}
}

// Delete removes a key, reporting whether it was present.
func (c *LRUCache) Delete(key string) bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if elem, exists := c.items[key]; exists {
		c.remove(elem)
		return true
	}
	return false
}

// Clear removes all entries and resets statistics.
func (c *LRUCache) Clear() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.items = make(map[string]*list.Element)
	c.order.Init()
	c.hits = 0
	c.misses = 0
}

// Size returns the current number of entries, counting expired ones not
// yet touched.
func (c *LRUCache) Size() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.order.Len()
}

// Stats returns hit/miss counters.
func (c *LRUCache) Stats() Stats {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	total := c.hits + c.misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(c.hits) / float64(total)
	}

	return Stats{
		Hits:     c.hits,
		Misses:   c.misses,
		HitRate:  hitRate,
		Size:     c.order.Len(),
		Capacity: c.capacity,
	}
}

func (c *LRUCache) remove(elem *list.Element) {
	ent := elem.Value.(*entry)
	delete(c.items, ent.key)
	c.order.Remove(elem)
}

// Stats describes cache effectiveness.
type Stats struct {
	Hits     int64   `json:"hits"`
	Misses   int64   `json:"misses"`
	HitRate  float64 `json:"hit_rate"`
	Size     int     `json:"size"`
	Capacity int     `json:"capacity"`
}
