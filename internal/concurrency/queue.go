// File: internal/concurrency/queue.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package concurrency

import (
	"sync"

	"github.com/eapache/queue"
)

// Queue is an unbounded FIFO safe for many producers. The engine uses it
// where a bounded ring could deadlock the tick loop: producers run inside
// the scheduler barrier while the single consumer drains after it.
type Queue[T any] struct {
	mu sync.Mutex
	q  *queue.Queue
}

// NewQueue returns an empty queue.
func NewQueue[T any]() *Queue[T] {
	return &Queue[T]{q: queue.New()}
}

// Push appends v.
func (q *Queue[T]) Push(v T) {
	q.mu.Lock()
	q.q.Add(v)
	q.mu.Unlock()
}

// Pop removes the oldest element.
func (q *Queue[T]) Pop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.q.Length() == 0 {
		var zero T
		return zero, false
	}
	return q.q.Remove().(T), true
}

// Drain removes every element queued at call time and returns them in order.
func (q *Queue[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := q.q.Length()
	if n == 0 {
		return nil
	}
	out := make([]T, n)
	for i := range out {
		out[i] = q.q.Remove().(T)
	}
	return out
}

// Len returns the number of queued elements.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.q.Length()
}
