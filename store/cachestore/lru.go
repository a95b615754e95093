package cachestore

import lru "github.com/hashicorp/golang-lru/v2"

// LRUCache is a bounded Cache with listing support.
type LRUCache struct {
	inner *lru.Cache[string, []byte]
}

var (
	_ Cache      = (*LRUCache)(nil)
	_ Enumerable = (*LRUCache)(nil)
)

// NewLRU creates a bounded cache holding up to size records.
func NewLRU(size int) (*LRUCache, error) {
	inner, err := lru.New[string, []byte](size)
	if err != nil {
		return nil, err
	}
	return &LRUCache{inner: inner}, nil
}

func (c *LRUCache) Get(key string) ([]byte, bool) { return c.inner.Get(key) }

func (c *LRUCache) Set(key string, value []byte) { c.inner.Add(key, value) }

func (c *LRUCache) Remove(key string) { c.inner.Remove(key) }

func (c *LRUCache) Len() int { return c.inner.Len() }

func (c *LRUCache) Purge() { c.inner.Purge() }

func (c *LRUCache) Keys() []string { return c.inner.Keys() }

// MapCache is an unbounded Cache for embedded use and tests.
type MapCache struct {
	items map[string][]byte
	order []string
}

var (
	_ Cache      = (*MapCache)(nil)
	_ Enumerable = (*MapCache)(nil)
)

// NewMap creates an unbounded cache.
func NewMap() *MapCache {
	return &MapCache{items: make(map[string][]byte)}
}

func (c *MapCache) Get(key string) ([]byte, bool) {
	v, ok := c.items[key]
	return v, ok
}

func (c *MapCache) Set(key string, value []byte) {
	if _, ok := c.items[key]; !ok {
		c.order = append(c.order, key)
	}
	c.items[key] = value
}

func (c *MapCache) Remove(key string) {
	if _, ok := c.items[key]; !ok {
		return
	}
	delete(c.items, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

func (c *MapCache) Len() int { return len(c.items) }

func (c *MapCache) Purge() {
	c.items = make(map[string][]byte)
	c.order = nil
}

// Keys returns keys in insertion order.
func (c *MapCache) Keys() []string {
	return append([]string(nil), c.order...)
}
