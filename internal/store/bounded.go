package store

import (
	"errors"
	"fmt"
	"sync"
)

// ErrCapacity is the sentinel behind capacity invariant violations.
var ErrCapacity = errors.New("store capacity invariant violated")

// Bounded is a fixed-capacity sequence safe for concurrent use.
//
// A single Bounded should be used with either Prepend or Append, not both:
// Prepend keeps the newest item first and drops from the tail, Append keeps
// the oldest item first and drops from the head. In both cases the store
// holds the most recently inserted items.
type Bounded[T any] struct {
	mu       sync.RWMutex
	items    []T
	capacity int
}

// NewBounded creates a [Bounded] holding at most capacity items.
// It panics if capacity is not positive.
func NewBounded[T any](capacity int) *Bounded[T] {
	if capacity <= 0 {
		panic(fmt.Sprintf("store: capacity must be positive, got %d", capacity))
	}
	return &Bounded[T]{
		items:    make([]T, 0, capacity),
		capacity: capacity,
	}
}

// Prepend inserts v at the front, evicting the last item beyond capacity.
func (b *Bounded[T]) Prepend(v T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.items) < b.capacity {
		var zero T
		b.items = append(b.items, zero)
	}
	copy(b.items[1:], b.items)
	b.items[0] = v

	b.checkCapacity()
}

// Append inserts v at the back, evicting the first item beyond capacity.
func (b *Bounded[T]) Append(v T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.items) == b.capacity {
		copy(b.items, b.items[1:])
		b.items[len(b.items)-1] = v
	} else {
		b.items = append(b.items, v)
	}

	b.checkCapacity()
}

// Snapshot returns a copy of the items in store order.
func (b *Bounded[T]) Snapshot() []T {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]T, len(b.items))
	copy(out, b.items)
	return out
}

// Len returns the number of stored items.
func (b *Bounded[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.items)
}

// Cap returns the configured capacity.
func (b *Bounded[T]) Cap() int {
	return b.capacity
}

// checkCapacity panics if the invariant no longer holds. Callers hold b.mu.
func (b *Bounded[T]) checkCapacity() {
	if len(b.items) > b.capacity {
		panic(fmt.Errorf("%w: %d items, capacity %d", ErrCapacity, len(b.items), b.capacity))
	}
}
