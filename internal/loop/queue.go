package loop

import (
	"sync"
)

// Queue is an unbounded, thread-safe FIFO that doubles its capacity
// when it reaches 70% full. Push never blocks.
type Queue[T any] struct {
	mu       sync.Mutex
	cond     *sync.Cond
	buf      []T
	head     int // read position
	tail     int // write position
	count    int
	capacity int
	closed   bool
}

// NewQueue creates a new queue with the given initial capacity.
func NewQueue[T any](initialCapacity int) *Queue[T] {
	if initialCapacity < 1 {
		initialCapacity = 1
	}
	q := &Queue[T]{
		buf:      make([]T, initialCapacity),
		capacity: initialCapacity,
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push appends an item. Returns false if the queue is closed.
func (q *Queue[T]) Push(item T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	threshold := (q.capacity * 70) / 100
	if threshold < 1 {
		threshold = 1
	}
	if q.count+1 >= threshold {
		q.grow()
	}

	q.buf[q.tail] = item
	q.tail = (q.tail + 1) % q.capacity
	q.count++

	q.cond.Signal()
	return true
}

// Pop removes and returns the oldest item.
// Blocks until an item is available or the queue is closed and drained.
func (q *Queue[T]) Pop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.count == 0 && !q.closed {
		q.cond.Wait()
	}

	if q.count == 0 {
		var zero T
		return zero, false
	}

	return q.popLocked(), true
}

// Close closes the queue. Push returns false afterwards;
// Pop keeps returning queued items until the queue is empty.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	q.cond.Broadcast()
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// popLocked must be called with the lock held and count > 0.
func (q *Queue[T]) popLocked() T {
	item := q.buf[q.head]
	var zero T
	q.buf[q.head] = zero // Clear reference for GC
	q.head = (q.head + 1) % q.capacity
	q.count--
	return item
}

// grow doubles the capacity. Must be called with lock held.
func (q *Queue[T]) grow() {
	newCapacity := q.capacity * 2
	newBuf := make([]T, newCapacity)

	if q.count > 0 {
		if q.head < q.tail {
			copy(newBuf, q.buf[q.head:q.tail])
		} else {
			// Wrapped: [head...end) + [0...tail)
			n := copy(newBuf, q.buf[q.head:])
			copy(newBuf[n:], q.buf[:q.tail])
		}
	}

	q.buf = newBuf
	q.head = 0
	q.tail = q.count
	q.capacity = newCapacity
}
