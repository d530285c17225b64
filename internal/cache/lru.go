package cache

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/zlog/internal/resource"
)

// LRU implements a size-bounded LRU Cache.
type LRU struct {
	mu        sync.Mutex
	capacity  int64
	size      int64
	items     map[Key]*list.Element
	evictList *list.List
	rc        *resource.Controller

	hits   atomic.Int64
	misses atomic.Int64
}

type entry struct {
	key   Key
	value []byte
}

// NewLRU creates a new LRU cache with the given capacity in bytes.
// If rc is provided, it will be used to track memory usage.
func NewLRU(capacity int64, rc *resource.Controller) *LRU {
	return &LRU{
		capacity:  capacity,
		items:     make(map[Key]*list.Element),
		evictList: list.New(),
		rc:        rc,
	}
}

// Get returns a cached value.
func (c *LRU) Get(ctx context.Context, key Key) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ent, ok := c.items[key]; ok {
		c.hits.Add(1)
		c.evictList.MoveToFront(ent)
		return ent.Value.(*entry).value, true
	}
	c.misses.Add(1)
	return nil, false
}

// Set caches a value.
func (c *LRU) Set(ctx context.Context, key Key, b []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Check if already exists
	if ent, ok := c.items[key]; ok {
		c.evictList.MoveToFront(ent)
		// Update value
		oldSize := int64(len(ent.Value.(*entry).value))
		newSize := int64(len(b))
		if c.rc != nil && newSize > oldSize {
			// Keep the old value if the controller denies the growth.
			if !c.rc.TryAcquireMemory(newSize - oldSize) {
				return
			}
		}

		c.size += newSize - oldSize
		if c.rc != nil && newSize < oldSize {
			c.rc.ReleaseMemory(oldSize - newSize)
		}

		ent.Value.(*entry).value = b
		c.evict()
		return
	}

	// Add new item
	itemSize := int64(len(b))

	// Check capacity before adding
	// If item is larger than capacity, don't cache
	if itemSize > c.capacity {
		return
	}

	// Evict first so freed memory returns to the controller.
	for c.size+itemSize > c.capacity {
		ent := c.evictList.Back()
		if ent == nil {
			break
		}
		c.removeElement(ent)
	}

	// If the controller says no, don't cache.
	if c.rc != nil && !c.rc.TryAcquireMemory(itemSize) {
		return
	}

	ent := &entry{key, b}
	element := c.evictList.PushFront(ent)
	c.items[key] = element
	c.size += itemSize
}

// Invalidate removes entries matching the predicate.
func (c *LRU) Invalidate(predicate func(key Key) bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var toRemove []*list.Element

	for key, element := range c.items {
		if predicate(key) {
			toRemove = append(toRemove, element)
		}
	}

	for _, e := range toRemove {
		c.removeElement(e)
	}
}

// Delete removes a single entry.
func (c *LRU) Delete(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if element, ok := c.items[key]; ok {
		c.removeElement(element)
	}
}

// Len returns the number of cached entries.
func (c *LRU) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *LRU) evict() {
	for c.size > c.capacity {
		if c.evictList.Len() == 0 {
			break
		}
		element := c.evictList.Back()
		if element != nil {
			c.removeElement(element)
		}
	}
}

// Stats returns hit and miss counts.
func (c *LRU) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *LRU) removeElement(e *list.Element) {
	c.evictList.Remove(e)
	kv := e.Value.(*entry)
	delete(c.items, kv.key)
	itemSize := int64(len(kv.value))
	c.size -= itemSize
	if c.rc != nil {
		c.rc.ReleaseMemory(itemSize)
	}
}

// Size returns the current size of the cache in bytes.
func (c *LRU) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

var _ Cache = (*LRU)(nil)
