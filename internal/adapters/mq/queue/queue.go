// Package queue is the bounded in-memory queue that carries commands from
// HTTP handlers to the capture loop.
package queue

import (
	"context"
	"fmt"
	"sync"

	"github.com/okian/posecap/pkg/metrics"
)

const defaultQueueCapacity = 64

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue[T any] interface {
	// Enqueue adds an item. It returns ErrQueueFull or ErrClosed instead of blocking.
	Enqueue(ctx context.Context, item T) error

	// Dequeue returns the receive side. It is closed after Close.
	Dequeue() <-chan T

	// Len returns the current number of queued items.
	Len() int

	// Close stops accepting items. Queued items can still be drained.
	Close() error

	// IsClosed reports whether Close was called.
	IsClosed() bool
}

// InMemoryQueue implements Queue with a buffered channel.
type InMemoryQueue[T any] struct {
	items    chan T
	capacity int

	mu     sync.RWMutex
	closed bool
}

// NewInMemoryQueue creates a queue.
func NewInMemoryQueue[T any](opts ...Option) *InMemoryQueue[T] {
	cfg := config{capacity: defaultQueueCapacity}
	for _, opt := range opts {
		opt(&cfg)
	}
	metrics.UpdateQueueCapacity(cfg.capacity)
	metrics.UpdateQueueSize(0)
	return &InMemoryQueue[T]{items: make(chan T, cfg.capacity), capacity: cfg.capacity}
}

// Enqueue adds item without blocking.
func (q *InMemoryQueue[T]) Enqueue(ctx context.Context, item T) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueRejected("closed")
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		metrics.RecordQueueRejected("context_cancelled")
		return fmt.Errorf("enqueue: %w", err)
	}

	select {
	case q.items <- item:
		metrics.RecordQueueEnqueue()
		metrics.UpdateQueueSize(len(q.items))
		return nil
	default:
		metrics.RecordQueueRejected("full")
		metrics.RecordErrorByComponent("queue", "queue_full")
		return ErrQueueFull
	}
}

// Dequeue returns the receive side of the queue.
func (q *InMemoryQueue[T]) Dequeue() <-chan T {
	return q.items
}

// Done records that a dequeued item was handled.
func (q *InMemoryQueue[T]) Done() {
	metrics.RecordQueueProcessed()
	metrics.UpdateQueueSize(len(q.items))
}

// Len returns the current number of queued items.
func (q *InMemoryQueue[T]) Len() int {
	return len(q.items)
}

// Capacity returns the configured capacity.
func (q *InMemoryQueue[T]) Capacity() int {
	return q.capacity
}

// Close stops accepting items.
func (q *InMemoryQueue[T]) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	close(q.items)
	q.closed = true
	return nil
}

// IsClosed reports whether Close was called.
func (q *InMemoryQueue[T]) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
