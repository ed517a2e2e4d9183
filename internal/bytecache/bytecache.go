package bytecache

import (
	"container/list"
	"sync"
	"sync/atomic"

	"github.com/runsascoded/awair-sub000/internal/logger"
)

const DefaultMaxBytes = 10 * 1024 * 1024

// EvictFunc is called with each entry removed to make room for an insert.
type EvictFunc func(key string, blob []byte)

type entry struct {
	key  string
	blob []byte
}

// Cache is an LRU cache of binary blobs bounded by total byte size rather
// than entry count. Eviction is purely size-driven; entries never expire by
// age.
type Cache struct {
	mu       sync.Mutex
	entries  map[string]*list.Element
	order    *list.List // front = most recently used
	maxBytes int64
	curBytes int64
	onEvict  EvictFunc
	hits     atomic.Uint64
	misses   atomic.Uint64
}

type Stats struct {
	Entries int
	Bytes   int64
	Budget  int64
	Hits    uint64
	Misses  uint64
}

func New(maxBytes int64, onEvict EvictFunc) *Cache {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Cache{
		entries:  make(map[string]*list.Element),
		order:    list.New(),
		maxBytes: maxBytes,
		onEvict:  onEvict,
	}
}

// Get returns the blob for key and marks it most-recently-used.
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	c.order.MoveToFront(el)
	c.hits.Add(1)
	return el.Value.(*entry).blob, true
}

// Has reports presence without touching recency.
func (c *Cache) Has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[key]
	return ok
}

// Set stores blob under key, replacing any prior entry. Least-recently-used
// entries are evicted until the blob fits. A blob larger than the entire
// budget is skipped.
func (c *Cache) Set(key string, blob []byte) {
	size := int64(len(blob))
	if size > c.maxBytes {
		logger.Warning("cache: blob %q (%d bytes) exceeds budget %d, skipping", key, size, c.maxBytes)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		old := el.Value.(*entry)
		c.curBytes -= int64(len(old.blob))
		old.blob = blob
		c.curBytes += size
		c.order.MoveToFront(el)
		c.evictLocked()
		return
	}

	c.curBytes += size
	c.entries[key] = c.order.PushFront(&entry{key: key, blob: blob})
	c.evictLocked()
}

// evictLocked drops LRU entries (but never the just-touched front) until the
// tracked total is within budget.
func (c *Cache) evictLocked() {
	for c.curBytes > c.maxBytes && c.order.Len() > 1 {
		el := c.order.Back()
		e := el.Value.(*entry)
		c.order.Remove(el)
		delete(c.entries, e.key)
		c.curBytes -= int64(len(e.blob))
		if c.onEvict != nil {
			c.onEvict(e.key, e.blob)
		}
	}
}

func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return
	}
	c.order.Remove(el)
	delete(c.entries, key)
	c.curBytes -= int64(len(el.Value.(*entry).blob))
}

func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*list.Element)
	c.order.Init()
	c.curBytes = 0
}

func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Stats{
		Entries: len(c.entries),
		Bytes:   c.curBytes,
		Budget:  c.maxBytes,
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
	}
}
