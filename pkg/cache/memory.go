package cache

import (
	"container/list"
	"sync"
)

// MemoryStore is the in-memory tier. Implementations must be safe for
// concurrent use and must only ever return the entry last stored for an id,
// or nothing.
type MemoryStore[T any] interface {
	Get(id string) (Entry[T], bool)
	Set(id string, e Entry[T])
	Remove(id string)
	RemoveAll()
}

// LRU is a memory tier bounded by entry count with least-recently-used
// eviction.
type LRU[T any] struct {
	capacity int

	// LRU implementation
	items    map[string]*list.Element
	eviction *list.List

	mu sync.Mutex

	evictions int64
}

// lruEntry is an element of the eviction list.
type lruEntry[T any] struct {
	id    string
	entry Entry[T]
}

// NewLRU creates a store holding at most capacity entries. A capacity below
// one is treated as one.
func NewLRU[T any](capacity int) *LRU[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &LRU[T]{
		capacity: capacity,
		items:    make(map[string]*list.Element),
		eviction: list.New(),
	}
}

// Get returns the entry for id and marks it most recently used.
func (c *LRU[T]) Get(id string) (Entry[T], bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[id]
	if !ok {
		return Entry[T]{}, false
	}
	c.eviction.MoveToFront(elem)
	return elem.Value.(*lruEntry[T]).entry, true
}

// Set stores e under id, evicting the least recently used entry when full.
func (c *LRU[T]) Set(id string, e Entry[T]) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[id]; ok {
		c.eviction.MoveToFront(elem)
		elem.Value = &lruEntry[T]{id: id, entry: e}
		return
	}

	for c.eviction.Len() >= c.capacity {
		c.evictOldest()
	}

	c.items[id] = c.eviction.PushFront(&lruEntry[T]{id: id, entry: e})
}

// Remove deletes the entry for id, if any.
func (c *LRU[T]) Remove(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[id]; ok {
		c.removeElement(elem)
	}
}

// RemoveAll empties the store.
func (c *LRU[T]) RemoveAll() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*list.Element)
	c.eviction.Init()
}

// Len returns the number of stored entries.
func (c *LRU[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.items)
}

// Evictions returns how many entries were dropped to make room.
func (c *LRU[T]) Evictions() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.evictions
}

// evictOldest removes the least recently used entry (must be called with lock held).
func (c *LRU[T]) evictOldest() {
	if elem := c.eviction.Back(); elem != nil {
		c.removeElement(elem)
		c.evictions++
	}
}

// removeElement removes an element from the store (must be called with lock held).
func (c *LRU[T]) removeElement(elem *list.Element) {
	c.eviction.Remove(elem)
	delete(c.items, elem.Value.(*lruEntry[T]).id)
}
