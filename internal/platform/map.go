package platform

import (
	"sync"
)

// Map is a thread-safe generic map.
type Map[K comparable, V any] struct {
	mutex sync.RWMutex
	data  map[K]V
}

// NewMap creates a new thread-safe generic map.
func NewMap[K comparable, V any]() *Map[K, V] {
	return &Map[K, V]{
		data: make(map[K]V),
	}
}

// Get retrieves a value from the map.
func (m *Map[K, V]) Get(key K) (V, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	val, ok := m.data[key]
	return val, ok
}

// Put stores a value in the map.
func (m *Map[K, V]) Put(key K, val V) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.data[key] = val
}

// Delete removes a value from the map.
// Returns false when the key is not present.
func (m *Map[K, V]) Delete(key K) bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if _, exists := m.data[key]; !exists {
		return false
	}
	delete(m.data, key)
	return true
}

// Len returns the number of entries in the map.
func (m *Map[K, V]) Len() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	return len(m.data)
}

// Snapshot returns a copy of the map contents.
// The copy is detached, mutating it does not affect the map.
func (m *Map[K, V]) Snapshot() map[K]V {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	data := make(map[K]V, len(m.data))
	for k, v := range m.data {
		data[k] = v
	}
	return data
}

// ForEach executes a function for each key-value pair in the map.
func (m *Map[K, V]) ForEach(fn func(K, V)) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	for k, v := range m.data {
		fn(k, v)
	}
}
