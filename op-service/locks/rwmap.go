package locks

import (
	"sync"
)

// RWMap is a simple wrapper around a map, with global Read-Write protection.
// The RWMap does not have to be initialized,
// it is immediately ready for reads/writes.
type RWMap[K comparable, V any] struct {
	inner map[K]V
	mu    sync.RWMutex
}

func (m *RWMap[K, V]) Get(key K) (value V, ok bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok = m.inner[key]
	return
}

// LoadOrStore returns the existing value for the key if present.
// Otherwise, it stores and returns the given value. The loaded result is true if the value was loaded.
func (m *RWMap[K, V]) LoadOrStore(key K, value V) (actual V, loaded bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.inner[key]; ok {
		return existing, true
	}
	if m.inner == nil {
		m.inner = make(map[K]V)
	}
	m.inner[key] = value
	return value, false
}

func (m *RWMap[K, V]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.inner)
}

// Drain removes all key-value pairs from the map, and returns the removed values, unsorted.
func (m *RWMap[K, V]) Drain() (out []V) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out = make([]V, 0, len(m.inner))
	for _, v := range m.inner {
		out = append(out, v)
	}
	clear(m.inner)
	return out
}
