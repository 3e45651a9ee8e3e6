package cache

import (
	"context"
	"sync"
	"time"

	"github.com/syurodev/system/query/executor"
)

// DefaultSize is used when an LRU cache is created with a non-positive size.
const DefaultSize = 1024

// LRUCache is an in-process LRU cache with TTL support.
type LRUCache struct {
	mu         sync.Mutex
	data       map[string]*cacheNode
	maxSize    int
	defaultTTL time.Duration
	head       *cacheNode
	tail       *cacheNode
	hits       int64
	misses     int64
	evictions  int64
	now        func() time.Time
}

// cacheNode is a node in the doubly-linked recency list
type cacheNode struct {
	key       string
	row       executor.RawRow
	expiresAt time.Time
	prev      *cacheNode
	next      *cacheNode
}

// NewLRUCache creates a new LRU cache
func NewLRUCache(maxSize int, defaultTTL time.Duration) *LRUCache {
	if maxSize <= 0 {
		maxSize = DefaultSize
	}
	return &LRUCache{
		data:       make(map[string]*cacheNode),
		maxSize:    maxSize,
		defaultTTL: defaultTTL,
		now:        time.Now,
	}
}

// Get retrieves a copy of the row stored under key.
func (c *LRUCache) Get(_ context.Context, key string) (executor.RawRow, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	node, ok := c.data[key]
	if !ok {
		c.misses++
		return nil, false, nil
	}
	if !node.expiresAt.IsZero() && c.now().After(node.expiresAt) {
		c.removeNode(node)
		c.misses++
		return nil, false, nil
	}

	c.moveToFront(node)
	c.hits++
	return cloneRow(node.row), true, nil
}

// Set stores a copy of row under key.
func (c *LRUCache) Set(_ context.Context, key string, row executor.RawRow, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ttl == 0 {
		ttl = c.defaultTTL
	}
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = c.now().Add(ttl)
	}

	if node, exists := c.data[key]; exists {
		node.row = cloneRow(row)
		node.expiresAt = expiresAt
		c.moveToFront(node)
		return nil
	}

	if len(c.data) >= c.maxSize {
		c.evictLRU()
	}

	node := &cacheNode{key: key, row: cloneRow(row), expiresAt: expiresAt}
	c.addToFront(node)
	c.data[key] = node
	return nil
}

// Invalidate removes a specific key from the cache
func (c *LRUCache) Invalidate(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if node, ok := c.data[key]; ok {
		c.removeNode(node)
	}
	return nil
}

// InvalidatePrefix removes all keys starting with prefix.
func (c *LRUCache) InvalidatePrefix(_ context.Context, prefix string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, node := range c.data {
		if hasPrefix(key, prefix) {
			c.removeNode(node)
		}
	}
	return nil
}

// Clear removes all entries and resets the counters.
func (c *LRUCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.data = make(map[string]*cacheNode)
	c.head = nil
	c.tail = nil
	c.hits, c.misses, c.evictions = 0, 0, 0
}

// Stats returns cache statistics
func (c *LRUCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Stats{
		Hits:      c.hits,
		Misses:    c.misses,
		Size:      len(c.data),
		MaxSize:   c.maxSize,
		Evictions: c.evictions,
		HitRate:   hitRate(c.hits, c.misses),
	}
}

// addToFront adds a node to the front of the list
func (c *LRUCache) addToFront(node *cacheNode) {
	node.prev = nil
	node.next = c.head
	if c.head != nil {
		c.head.prev = node
	}
	c.head = node
	if c.tail == nil {
		c.tail = node
	}
}

// moveToFront moves a node to the front of the list
func (c *LRUCache) moveToFront(node *cacheNode) {
	if node == c.head {
		return
	}
	c.unlink(node)
	c.addToFront(node)
}

func (c *LRUCache) unlink(node *cacheNode) {
	if node.prev != nil {
		node.prev.next = node.next
	} else {
		c.head = node.next
	}
	if node.next != nil {
		node.next.prev = node.prev
	} else {
		c.tail = node.prev
	}
	node.prev, node.next = nil, nil
}

// removeNode unlinks a node and drops it from the index
func (c *LRUCache) removeNode(node *cacheNode) {
	c.unlink(node)
	delete(c.data, node.key)
}

// evictLRU evicts the least recently used node
func (c *LRUCache) evictLRU() {
	if c.tail == nil {
		return
	}
	c.removeNode(c.tail)
	c.evictions++
}
