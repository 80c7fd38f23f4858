// Package queue provides the bounded queue used as the protocol client's
// leftover-frame mailbox.
package queue

import "sync"

// Bounded is a fixed-capacity FIFO queue safe for concurrent use.
//
// Unlike an unbounded queue it never overwrites: Offer reports false when the
// queue is full and leaves the queued items untouched, so an overflow can be
// surfaced by the caller.
type Bounded[T any] struct {
	mu    sync.Mutex
	items []T
	limit int
}

// NewBounded creates a queue holding at most capacity items. A capacity
// below 1 is treated as 1.
func NewBounded[T any](capacity int) *Bounded[T] {
	if capacity < 1 {
		capacity = 1
	}

	return &Bounded[T]{items: make([]T, 0, capacity), limit: capacity}
}

// Offer adds item to the tail of the queue. It returns false if the queue is full.
func (q *Bounded[T]) Offer(item T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) >= q.limit {
		return false
	}
	q.items = append(q.items, item)

	return true
}

// Poll removes and returns the item at the head of the queue.
func (q *Bounded[T]) Poll() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T
	if len(q.items) == 0 {
		return zero, false
	}
	item := q.items[0]
	copy(q.items, q.items[1:])
	q.items[len(q.items)-1] = zero
	q.items = q.items[:len(q.items)-1]

	return item, true
}

// Peek returns the item at the head of the queue without removing it.
func (q *Bounded[T]) Peek() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		var zero T
		return zero, false
	}

	return q.items[0], true
}

// Drain empties the queue and returns the removed items in FIFO order.
func (q *Bounded[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil
	}
	out := make([]T, len(q.items))
	copy(out, q.items)
	clear(q.items)
	q.items = q.items[:0]

	return out
}

// Len returns the number of queued items.
func (q *Bounded[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.items)
}

// IsEmpty returns true if the queue is empty.
func (q *Bounded[T]) IsEmpty() bool {
	return q.Len() == 0
}

// Cap returns the queue capacity.
func (q *Bounded[T]) Cap() int {
	return q.limit
}
