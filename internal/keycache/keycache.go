// Package keycache holds a bounded map from peer identifier to public key.
//
// Entries are evicted oldest-inserted-first once the capacity is reached.
// Reads do not refresh an entry's position. The cache is shared by the
// outbound send path and the inbound webhook path, so every operation takes
// the same lock.
package keycache

import (
	"strings"
	"sync"

	"keybridge/internal/domain"
)

// DefaultCapacity is used when New is given a non-positive capacity.
const DefaultCapacity = 1000

// Cache maps normalised identifiers to public keys.
type Cache struct {
	mu       sync.Mutex
	capacity int
	keys     map[string]domain.PublicKey
	order    []string // insertion order, oldest first
}

// New returns an empty cache holding at most capacity entries.
func New(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Cache{
		capacity: capacity,
		keys:     make(map[string]domain.PublicKey, capacity),
	}
}

func normalize(id string) string { return strings.ToUpper(strings.TrimSpace(id)) }

// Get returns the cached key for id.
func (c *Cache) Get(id string) (domain.PublicKey, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	k, ok := c.keys[normalize(id)]
	return k, ok
}

// Put stores key for id. Replacing the key of a cached id keeps its position;
// a new id evicts the oldest entry when the cache is full.
func (c *Cache) Put(id string, key domain.PublicKey) {
	id = normalize(id)
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.keys[id]; ok {
		c.keys[id] = key
		return
	}
	if len(c.order) >= c.capacity {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.keys, oldest)
	}
	c.keys[id] = key
	c.order = append(c.order, id)
}

// Evict removes id, reporting whether it was cached.
func (c *Cache) Evict(id string) bool {
	id = normalize(id)
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.keys[id]; !ok {
		return false
	}
	delete(c.keys, id)
	for i, v := range c.order {
		if v == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return true
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keys = make(map[string]domain.PublicKey, c.capacity)
	c.order = nil
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.keys)
}
