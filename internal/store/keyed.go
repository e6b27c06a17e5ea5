package store

import (
	"fmt"
	"sync"
)

// Keyed is an insertion-ordered map with replace-in-place semantics, safe
// for concurrent use.
//
// New keys are rejected once capacity is reached; existing keys can always
// be updated. A capacity of zero means unbounded.
type Keyed[K comparable, V any] struct {
	mu       sync.RWMutex
	order    []K
	items    map[K]V
	capacity int
}

// NewKeyed creates a [Keyed] store. capacity <= 0 means unbounded.
func NewKeyed[K comparable, V any](capacity int) *Keyed[K, V] {
	if capacity < 0 {
		capacity = 0
	}
	return &Keyed[K, V]{
		items:    make(map[K]V),
		capacity: capacity,
	}
}

// Upsert replaces the value stored under key with merge(prev, exists).
//
// merge runs under the store's write lock, so it sees the latest value and
// no other writer can interleave. merge must not call back into the store.
func (s *Keyed[K, V]) Upsert(key K, merge func(prev V, exists bool) V) (V, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, exists := s.items[key]
	if !exists && s.capacity > 0 && len(s.items) >= s.capacity {
		var zero V
		return zero, fmt.Errorf("%w: cannot add key %v, capacity %d reached", ErrCapacity, key, s.capacity)
	}

	next := merge(prev, exists)
	if !exists {
		s.order = append(s.order, key)
	}
	s.items[key] = next
	return next, nil
}

// Get returns the value stored under key.
func (s *Keyed[K, V]) Get(key K) (V, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.items[key]
	return v, ok
}

// Snapshot returns all values in insertion order.
func (s *Keyed[K, V]) Snapshot() []V {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]V, 0, len(s.order))
	for _, k := range s.order {
		out = append(out, s.items[k])
	}
	return out
}

// Len returns the number of stored keys.
func (s *Keyed[K, V]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}
