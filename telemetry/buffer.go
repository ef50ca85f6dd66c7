package telemetry

import (
	"sync"
	"sync/atomic"
)

// Buffer is a bounded ring buffer shared by many instrumented call
// sites. Record never blocks beyond a constant-time critical section:
// at capacity the oldest item is evicted and a drop counter increments.
// The mutex is held only for index updates, never across I/O.
type Buffer[T any] struct {
	mu    sync.Mutex
	items []T
	head  int
	size  int

	drops atomic.Uint64
}

// NewBuffer creates a buffer with the given capacity.
func NewBuffer[T any](capacity int) *Buffer[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Buffer[T]{items: make([]T, capacity)}
}

// Record appends item, evicting the oldest entry when full. It returns
// false when an eviction occurred.
func (b *Buffer[T]) Record(item T) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.size == len(b.items) {
		// Drop-oldest: overwrite the head slot and advance.
		b.items[b.head] = item
		b.head = (b.head + 1) % len(b.items)
		b.drops.Add(1)
		return false
	}
	b.items[(b.head+b.size)%len(b.items)] = item
	b.size++
	return true
}

// Drain removes and returns up to max of the oldest items in insertion
// order. Draining swaps items out under the lock; callers then own the
// returned slice exclusively, so ingestion continues while a drained
// batch is being exported.
func (b *Buffer[T]) Drain(max int) []T {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.size
	if max > 0 && n > max {
		n = max
	}
	if n == 0 {
		return nil
	}

	var zero T
	out := make([]T, n)
	for i := 0; i < n; i++ {
		idx := (b.head + i) % len(b.items)
		out[i] = b.items[idx]
		b.items[idx] = zero
	}
	b.head = (b.head + n) % len(b.items)
	b.size -= n
	return out
}

// Len returns the number of queued items.
func (b *Buffer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// Drops returns the number of items evicted under capacity pressure.
func (b *Buffer[T]) Drops() uint64 {
	return b.drops.Load()
}
