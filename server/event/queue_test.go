// Copyright 2025 Nevermined AG
// SPDX-License-Identifier: Apache-2.0

package event

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	payments "github.com/nevermined-io/payments-go"
)

func TestNewQueue(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		maxSize     int
		wantMaxSize int
		wantErr     error
	}{
		"default size": {
			maxSize:     0,
			wantMaxSize: DefaultMaxQueueSize,
		},
		"custom size": {
			maxSize:     100,
			wantMaxSize: 100,
		},
		"error: negative size": {
			maxSize: -1,
			wantErr: ErrInvalidQueueSize,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			queue, err := NewQueue(tt.maxSize)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("NewQueue() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if queue.maxSize != tt.wantMaxSize {
				t.Errorf("maxSize = %d, want %d", queue.maxSize, tt.wantMaxSize)
			}
			if queue.Size() != 0 {
				t.Errorf("new queue size = %d, want 0", queue.Size())
			}
		})
	}
}

func TestQueue_EnqueueDequeue(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	queue, err := NewQueue(10)
	if err != nil {
		t.Fatalf("NewQueue() error = %v", err)
	}
	defer queue.Close()

	event := payments.NewAgentTextMessage("hello", "task-1", "ctx-1")

	if err := queue.Enqueue(ctx, event); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if queue.Size() != 1 {
		t.Errorf("size = %d, want 1", queue.Size())
	}

	got, err := queue.Dequeue(ctx, false)
	if err != nil {
		t.Fatalf("Dequeue() error = %v", err)
	}
	if diff := cmp.Diff(event, got); diff != "" {
		t.Errorf("dequeued event mismatch (-want +got):\n%s", diff)
	}
}

func TestQueue_DequeueNoWait(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	queue, err := NewQueue(10)
	if err != nil {
		t.Fatalf("NewQueue() error = %v", err)
	}
	defer queue.Close()

	if _, err := queue.Dequeue(ctx, true); !errors.Is(err, ErrQueueEmpty) {
		t.Errorf("Dequeue(noWait) on empty queue error = %v, want ErrQueueEmpty", err)
	}
}

func TestQueue_EnqueueFull(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	queue, err := NewQueue(1)
	if err != nil {
		t.Fatalf("NewQueue() error = %v", err)
	}
	defer queue.Close()

	evt := payments.NewAgentTextMessage("a", "task-1", "ctx-1")
	if err := queue.Enqueue(ctx, evt); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if err := queue.Enqueue(ctx, evt); !errors.Is(err, ErrQueueFull) {
		t.Errorf("Enqueue() on full queue error = %v, want ErrQueueFull", err)
	}
}

func TestQueue_Close(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	queue, err := NewQueue(10)
	if err != nil {
		t.Fatalf("NewQueue() error = %v", err)
	}

	evt := payments.NewAgentTextMessage("a", "task-1", "ctx-1")
	if err := queue.Enqueue(ctx, evt); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	if err := queue.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !queue.IsClosed() {
		t.Error("queue should report closed")
	}

	// Close is idempotent.
	if err := queue.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}

	// Pending events remain dequeueable after close.
	if _, err := queue.Dequeue(ctx, false); err != nil {
		t.Errorf("Dequeue() after close error = %v, want buffered event", err)
	}
	if _, err := queue.Dequeue(ctx, false); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("Dequeue() on drained closed queue error = %v, want ErrQueueClosed", err)
	}

	if err := queue.Enqueue(ctx, evt); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("Enqueue() after close error = %v, want ErrQueueClosed", err)
	}
}

func TestQueue_Tap(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	queue, err := NewQueue(10)
	if err != nil {
		t.Fatalf("NewQueue() error = %v", err)
	}
	defer queue.Close()

	child, err := queue.Tap()
	if err != nil {
		t.Fatalf("Tap() error = %v", err)
	}

	evt := payments.NewAgentTextMessage("a", "task-1", "ctx-1")
	if err := queue.Enqueue(ctx, evt); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	// Propagation is synchronous: the event is buffered in the child
	// before Enqueue returns.
	got, err := child.Dequeue(ctx, true)
	if err != nil {
		t.Fatalf("child Dequeue() error = %v", err)
	}
	if diff := cmp.Diff(evt, got); diff != "" {
		t.Errorf("tapped event mismatch (-want +got):\n%s", diff)
	}

	// Closing the parent closes the child.
	queue.Close()
	if !child.IsClosed() {
		t.Error("child should be closed with its parent")
	}
}

func TestQueue_TapObservesPublicationOrder(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	queue, err := NewQueue(512)
	if err != nil {
		t.Fatalf("NewQueue() error = %v", err)
	}
	defer queue.Close()

	child, err := queue.Tap()
	if err != nil {
		t.Fatalf("Tap() error = %v", err)
	}

	const total = 500
	for i := range total {
		evt := payments.NewTaskStatusUpdateEvent("task-1", "ctx-1",
			payments.TaskStatus{State: payments.TaskStateWorking}, false)
		evt.Metadata = map[string]any{"seq": i}
		if err := queue.Enqueue(ctx, evt); err != nil {
			t.Fatalf("Enqueue(%d) error = %v", i, err)
		}
	}

	for want := range total {
		got, err := child.Dequeue(ctx, true)
		if err != nil {
			t.Fatalf("child Dequeue(%d) error = %v", want, err)
		}
		statusEvt, ok := got.(*payments.TaskStatusUpdateEvent)
		if !ok {
			t.Fatalf("event type = %T, want *payments.TaskStatusUpdateEvent", got)
		}
		if seq := statusEvt.Metadata["seq"]; seq != want {
			t.Fatalf("tap observed seq %v at position %d: publication order violated", seq, want)
		}
	}
}

func TestQueue_TapRetainsFinalEventAfterClose(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	queue, err := NewQueue(10)
	if err != nil {
		t.Fatalf("NewQueue() error = %v", err)
	}

	child, err := queue.Tap()
	if err != nil {
		t.Fatalf("Tap() error = %v", err)
	}

	final := payments.NewTaskStatusUpdateEvent("task-1", "ctx-1",
		payments.TaskStatus{State: payments.TaskStateCompleted}, true)
	if err := queue.Enqueue(ctx, final); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	// A consumer closing the parent right after the final event must not
	// cost the tap its copy.
	queue.Close()

	got, err := child.Dequeue(ctx, true)
	if err != nil {
		t.Fatalf("child Dequeue() after close error = %v", err)
	}
	if diff := cmp.Diff(payments.Event(final), got); diff != "" {
		t.Errorf("tapped final event mismatch (-want +got):\n%s", diff)
	}

	if _, err := child.Dequeue(ctx, true); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("drained child Dequeue() error = %v, want ErrQueueClosed", err)
	}
}

func TestQueue_TapAfterClose(t *testing.T) {
	t.Parallel()

	queue, err := NewQueue(10)
	if err != nil {
		t.Fatalf("NewQueue() error = %v", err)
	}
	queue.Close()

	if _, err := queue.Tap(); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("Tap() after close error = %v, want ErrQueueClosed", err)
	}
}

func TestQueue_DequeueContextCanceled(t *testing.T) {
	t.Parallel()

	queue, err := NewQueue(10)
	if err != nil {
		t.Fatalf("NewQueue() error = %v", err)
	}
	defer queue.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := queue.Dequeue(ctx, false); !errors.Is(err, context.Canceled) {
		t.Errorf("Dequeue() error = %v, want context.Canceled", err)
	}
}
