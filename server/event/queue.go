// Copyright 2025 Nevermined AG
// SPDX-License-Identifier: Apache-2.0

package event

import (
	"context"
	"sync"

	payments "github.com/nevermined-io/payments-go"
)

// DefaultMaxQueueSize is the default queue capacity.
const DefaultMaxQueueSize = 1024

// Queue is a bounded FIFO of task events. Events enqueued to a queue are
// also propagated to every child created with Tap, which is how a late
// resubscriber attaches to an in-flight task without stealing events from
// the primary consumer.
type Queue struct {
	events    chan payments.Event
	maxSize   int
	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
	children  []*Queue
	done      chan struct{}
}

// NewQueue creates a queue with the given capacity. A capacity of 0 selects
// DefaultMaxQueueSize.
func NewQueue(maxSize int) (*Queue, error) {
	if maxSize < 0 {
		return nil, ErrInvalidQueueSize
	}
	if maxSize == 0 {
		maxSize = DefaultMaxQueueSize
	}
	return &Queue{
		events:  make(chan payments.Event, maxSize),
		maxSize: maxSize,
		done:    make(chan struct{}),
	}, nil
}

// Enqueue adds an event to the queue and propagates it to all children.
// Returns ErrQueueClosed when the queue is closed and ErrQueueFull when it
// is at capacity.
func (q *Queue) Enqueue(ctx context.Context, event payments.Event) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrQueueClosed
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case q.events <- event:
		// Propagate synchronously so every tap observes publication order
		// and the final event is buffered in each child before the parent
		// can be closed. Children never block: a full tap drops the event.
		for _, child := range q.children {
			_ = child.Enqueue(context.Background(), event)
		}
		return nil
	default:
		return ErrQueueFull
	}
}

// Dequeue retrieves the next event. With noWait set it returns immediately
// with ErrQueueEmpty when nothing is buffered; otherwise it blocks until an
// event arrives, the context is canceled, or the queue is closed and drained.
func (q *Queue) Dequeue(ctx context.Context, noWait bool) (payments.Event, error) {
	if noWait {
		select {
		case event := <-q.events:
			return event, nil
		default:
			if q.IsClosed() {
				return nil, ErrQueueClosed
			}
			return nil, ErrQueueEmpty
		}
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case event := <-q.events:
		return event, nil
	case <-q.done:
		// Drain anything enqueued before the close.
		select {
		case event := <-q.events:
			return event, nil
		default:
			return nil, ErrQueueClosed
		}
	}
}

// Tap creates a child queue that receives all future events enqueued here.
func (q *Queue) Tap() (*Queue, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil, ErrQueueClosed
	}

	child, err := NewQueue(q.maxSize)
	if err != nil {
		return nil, err
	}
	q.children = append(q.children, child)
	return child, nil
}

// Close closes the queue and all of its children. Pending events remain
// dequeueable; Close is idempotent.
func (q *Queue) Close() error {
	q.closeOnce.Do(func() {
		q.mu.Lock()
		defer q.mu.Unlock()

		q.closed = true
		close(q.done)
		for _, child := range q.children {
			_ = child.Close()
		}
	})
	return nil
}

// IsClosed reports whether the queue has been closed.
func (q *Queue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}

// Size returns the number of buffered events.
func (q *Queue) Size() int {
	return len(q.events)
}
