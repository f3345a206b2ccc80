// Package cache provides the key/value stores behind rate limiting and
// async submission results.
package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

const defaultLocalSize = 10000

// LRUCache is an in-process Cache bounded by entry count. Expired entries are
// dropped lazily on read. Counters live in their own map so a burst of
// rate-limit keys never evicts stored submission results.
type LRUCache struct {
	mu       sync.RWMutex
	maxSize  int
	entries  map[string]*list.Element
	recency  *list.List // front is most recently used
	counters map[string]*window
}

type entry struct {
	key       string
	value     []byte
	expiresAt time.Time
}

// window is one fixed rate-limit window.
type window struct {
	count int64
	ends  time.Time
}

// NewLRUCache returns a cache holding at most maxSize values and maxSize
// live counters.
func NewLRUCache(maxSize int) *LRUCache {
	if maxSize <= 0 {
		maxSize = defaultLocalSize
	}
	c := &LRUCache{maxSize: maxSize}
	c.reset()
	return c
}

func (c *LRUCache) reset() {
	c.entries = make(map[string]*list.Element)
	c.recency = list.New()
	c.counters = make(map[string]*window)
}

// Get returns the value stored under key, or nil on a miss.
func (c *LRUCache) Get(ctx context.Context, namespace string, key string) ([]byte, error) {
	k, err := storageKey(namespace, key)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[k]
	if !ok {
		return nil, nil
	}
	e := elem.Value.(*entry)
	if time.Now().After(e.expiresAt) {
		c.drop(elem)
		return nil, nil
	}
	c.recency.MoveToFront(elem)
	return e.value, nil
}

// Set stores value for ttl, evicting the least recently used entries when full.
func (c *LRUCache) Set(ctx context.Context, namespace string, key string, value []byte, ttl time.Duration) error {
	k, err := storageKey(namespace, key)
	if err != nil {
		return err
	}
	expiresAt := time.Now().Add(ttl)

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[k]; ok {
		e := elem.Value.(*entry)
		e.value, e.expiresAt = value, expiresAt
		c.recency.MoveToFront(elem)
		return nil
	}

	c.entries[k] = c.recency.PushFront(&entry{key: k, value: value, expiresAt: expiresAt})
	for c.recency.Len() > c.maxSize {
		c.drop(c.recency.Back())
	}
	return nil
}

// Delete removes key. Missing keys are not an error.
func (c *LRUCache) Delete(ctx context.Context, namespace string, key string) error {
	k, err := storageKey(namespace, key)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[k]; ok {
		c.drop(elem)
	}
	return nil
}

// IncrementCounter counts hits in a fixed window that opens on the first hit.
func (c *LRUCache) IncrementCounter(ctx context.Context, namespace string, key string, win time.Duration) (int64, error) {
	k, err := storageKey(namespace, counterPrefix+key)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if w, ok := c.counters[k]; ok && !now.After(w.ends) {
		w.count++
		return w.count, nil
	}

	if len(c.counters) >= c.maxSize {
		c.pruneCounters(now)
	}
	c.counters[k] = &window{count: 1, ends: now.Add(win)}
	return 1, nil
}

// Ping always succeeds.
func (c *LRUCache) Ping(ctx context.Context) error {
	return nil
}

// Close discards all values and counters.
func (c *LRUCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reset()
	return nil
}

// Stats reports the number of stored values and the capacity.
func (c *LRUCache) Stats() (size int, capacity int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.recency.Len(), c.maxSize
}

// pruneCounters drops closed windows. Caller holds c.mu.
func (c *LRUCache) pruneCounters(now time.Time) {
	for k, w := range c.counters {
		if now.After(w.ends) {
			delete(c.counters, k)
		}
	}
}

func (c *LRUCache) drop(elem *list.Element) {
	if elem == nil {
		return
	}
	c.recency.Remove(elem)
	delete(c.entries, elem.Value.(*entry).key)
}
