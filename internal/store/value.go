package store

import "sync"

// Value holds a single value that is replaced wholesale.
type Value[T any] struct {
	mu sync.RWMutex
	v  T
}

// NewValue creates a [Value] holding initial.
func NewValue[T any](initial T) *Value[T] {
	return &Value[T]{v: initial}
}

// Load returns the current value.
func (s *Value[T]) Load() T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.v
}

// Store replaces the current value.
func (s *Value[T]) Store(v T) {
	s.mu.Lock()
	s.v = v
	s.mu.Unlock()
}

// Update replaces the current value with fn(current) and returns the result.
// fn runs under the write lock and must not call back into the store.
func (s *Value[T]) Update(fn func(T) T) T {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.v = fn(s.v)
	return s.v
}
