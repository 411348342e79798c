// Package queue provides the bounded inbox that serializes work onto the
// state machine goroutine.
package queue

import (
	"context"
	"sync"

	"github.com/okian/duel/pkg/metrics"
)

const defaultQueueCapacity = 256

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue[T any] interface {
	// Enqueue adds an item. It returns false if the queue is full or closed.
	Enqueue(ctx context.Context, item T) bool

	// Dequeue returns the receive side of the queue. It is closed by Close.
	Dequeue(ctx context.Context) <-chan T

	// TryDequeue pops one item without blocking.
	TryDequeue() (T, bool)

	// Len returns the current number of queued items.
	Len(ctx context.Context) int

	// Close stops accepting items. Items already queued can still be received.
	Close() error

	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue[T any] struct {
	items    chan T
	capacity int
	mu       sync.RWMutex
	closed   bool
}

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue[T any](opts ...Option) *InMemoryQueue[T] {
	cfg := options{capacity: defaultQueueCapacity}
	for _, opt := range opts {
		opt(&cfg)
	}

	q := &InMemoryQueue[T]{
		items:    make(chan T, cfg.capacity),
		capacity: cfg.capacity,
	}
	metrics.UpdateInboxCapacity(q.capacity)
	metrics.UpdateInboxSize(0)
	return q
}

func (q *InMemoryQueue[T]) Enqueue(ctx context.Context, item T) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordInboxEnqueueError()
		metrics.RecordErrorByComponent("inbox", "closed")
		return false
	}

	select {
	case q.items <- item:
		metrics.UpdateInboxSize(len(q.items))
		return true
	case <-ctx.Done():
		metrics.RecordInboxEnqueueError()
		metrics.RecordErrorByComponent("inbox", "context_cancelled")
		return false
	default:
		metrics.RecordInboxEnqueueError()
		metrics.RecordErrorByComponent("inbox", "queue_full")
		return false
	}
}

func (q *InMemoryQueue[T]) Dequeue(_ context.Context) <-chan T {
	return q.items
}

func (q *InMemoryQueue[T]) TryDequeue() (T, bool) {
	select {
	case item, ok := <-q.items:
		if ok {
			metrics.UpdateInboxSize(len(q.items))
		}
		return item, ok
	default:
		var zero T
		return zero, false
	}
}

func (q *InMemoryQueue[T]) Len(_ context.Context) int {
	size := len(q.items)
	metrics.UpdateInboxSize(size)
	return size
}

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

func (q *InMemoryQueue[T]) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
