// Package queue buffers accepted event submissions between the HTTP layer
// and the append workers.
package queue

import (
	"context"
	"sync"

	"github.com/okian/gridreplay/internal/domain/model"
	"github.com/okian/gridreplay/pkg/metrics"
)

const defaultQueueCapacity = 10_000

// Item is the payload flowing through the queue.
type Item = model.Submission

// Queue provides non-blocking enqueue and channel-based dequeue.
type Queue interface {
	// Enqueue adds an item without blocking. It returns ErrFull or ErrClosed
	// when the item was not accepted.
	Enqueue(ctx context.Context, item Item) error

	// Dequeue returns the channel items are delivered on. It is closed once
	// the queue is closed and drained.
	Dequeue() <-chan Item

	Len() int
	Cap() int
	Close() error
	IsClosed() bool
}

// InMemoryQueue implements Queue on a buffered channel.
type InMemoryQueue struct {
	items    chan Item
	capacity int

	mu     sync.RWMutex
	closed bool
}

// NewInMemoryQueue creates a bounded in-memory queue.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{capacity: defaultQueueCapacity}
	for _, opt := range opts {
		opt(q)
	}
	q.items = make(chan Item, q.capacity)

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)
	return q
}

func (q *InMemoryQueue) Enqueue(ctx context.Context, item Item) error { //nolint:gocritic // hugeParam: channel semantics
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueEnqueueError("closed")
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		metrics.RecordQueueEnqueueError("context_cancelled")
		return err
	}

	select {
	case q.items <- item:
		metrics.RecordQueueEnqueue()
		metrics.UpdateQueueSize(len(q.items))
		return nil
	default:
		metrics.RecordQueueEnqueueError("queue_full")
		return ErrFull
	}
}

func (q *InMemoryQueue) Dequeue() <-chan Item {
	return q.items
}

// Done reports a dequeued item to the queue metrics.
func (q *InMemoryQueue) Done() {
	metrics.RecordQueueDequeue()
	metrics.UpdateQueueSize(len(q.items))
}

func (q *InMemoryQueue) Len() int {
	return len(q.items)
}

func (q *InMemoryQueue) Cap() int {
	return q.capacity
}

// Close stops accepting items. Items already queued stay readable.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	close(q.items)
	q.closed = true
	return nil
}

func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
