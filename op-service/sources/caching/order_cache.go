package caching

import (
	"sync"

	"github.com/google/btree"
)

type item[V any] struct {
	number uint64
	value  V
}

func (a item[V]) Less(b btree.Item) bool {
	return a.number < b.(item[V]).number
}

// OrderCache is a bounded cache of values keyed by block number.
// When full, the lowest block number is evicted: old blocks fall out first.
type OrderCache[V any] struct {
	m       Metrics
	label   string
	lock    sync.Mutex
	data    *btree.BTree
	maxSize int
}

// NewOrderCache creates a cache of at most maxSize entries. Metrics may be nil.
func NewOrderCache[V any](m Metrics, label string, maxSize int) *OrderCache[V] {
	return &OrderCache[V]{
		m:       m,
		label:   label,
		data:    btree.New(32),
		maxSize: maxSize,
	}
}

// Add inserts or replaces the value at the given number.
// Entries below the current minimum are not admitted into a full cache.
func (c *OrderCache[V]) Add(key uint64, value V) (added bool) {
	if c.maxSize <= 0 {
		return false
	}
	c.lock.Lock()
	defer c.lock.Unlock()

	it := item[V]{number: key, value: value}
	if c.data.Has(it) {
		c.data.ReplaceOrInsert(it)
		return true
	}
	evicted := false
	if c.data.Len() >= c.maxSize {
		if key < c.data.Min().(item[V]).number {
			return false
		}
		c.data.DeleteMin()
		evicted = true
	}
	c.data.ReplaceOrInsert(it)
	if c.m != nil {
		c.m.CacheAdd(c.label, c.data.Len(), evicted)
	}
	return true
}

func (c *OrderCache[V]) Get(key uint64) (V, bool) {
	c.lock.Lock()
	defer c.lock.Unlock()

	i := c.data.Get(item[V]{number: key})
	if c.m != nil {
		c.m.CacheGet(c.label, i != nil)
	}
	if i == nil {
		var zero V
		return zero, false
	}
	return i.(item[V]).value, true
}

func (c *OrderCache[V]) Len() int {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.data.Len()
}
