// ABOUTME: In-process cache backed by a map and an insertion-ordered list
// ABOUTME: Optionally bounded; the oldest write is evicted when full

package cache

import (
	"container/list"
	"context"
	"sync"
)

type memoryEntry struct {
	entry   Entry
	element *list.Element
}

// MemoryCache is a thread-safe in-memory Cache. It never sweeps in the
// background; stale entries stay until overwritten, removed or evicted.
type MemoryCache struct {
	mu         sync.RWMutex
	items      map[string]*memoryEntry
	order      *list.List // keys, oldest write at front
	maxEntries int
}

// NewMemory creates a cache holding at most maxEntries values. A
// non-positive maxEntries means unbounded.
func NewMemory(maxEntries int) *MemoryCache {
	return &MemoryCache{
		items:      make(map[string]*memoryEntry),
		order:      list.New(),
		maxEntries: maxEntries,
	}
}

// Store writes entry at key, replacing any previous value.
func (c *MemoryCache) Store(_ context.Context, key string, entry Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.items[key]; ok {
		existing.entry = entry
		c.order.MoveToBack(existing.element)
		return nil
	}

	if c.maxEntries > 0 && len(c.items) >= c.maxEntries {
		c.evictOldest()
	}

	c.items[key] = &memoryEntry{
		entry:   entry,
		element: c.order.PushBack(key),
	}
	return nil
}

// Retrieve returns the entry at key.
func (c *MemoryCache) Retrieve(_ context.Context, key string) (Entry, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	item, ok := c.items[key]
	if !ok {
		return Entry{}, false, nil
	}
	return item.entry, true, nil
}

// Remove deletes key. Removing a missing key is not an error.
func (c *MemoryCache) Remove(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if item, ok := c.items[key]; ok {
		c.order.Remove(item.element)
		delete(c.items, key)
	}
	return nil
}

// Clear deletes every entry.
func (c *MemoryCache) Clear(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*memoryEntry)
	c.order.Init()
	return nil
}

// Len returns the number of stored entries.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// evictOldest must be called with mu held.
func (c *MemoryCache) evictOldest() {
	front := c.order.Front()
	if front == nil {
		return
	}

	key, _ := front.Value.(string)
	c.order.Remove(front)
	delete(c.items, key)
}
