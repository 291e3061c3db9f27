// Copyright 2025 Nevermined AG
// SPDX-License-Identifier: Apache-2.0

// Package event provides the per-task event bus: bounded FIFO queues, a
// queue manager keyed by task id, and a consumer that drains a queue until
// the final event of the stream.
package event

import "errors"

var (
	// ErrQueueClosed is returned when attempting to use a closed queue.
	ErrQueueClosed = errors.New("event queue is closed")

	// ErrQueueEmpty is returned when attempting to dequeue from an empty
	// queue in non-blocking mode.
	ErrQueueEmpty = errors.New("event queue is empty")

	// ErrQueueFull is returned when enqueueing to a queue at capacity.
	ErrQueueFull = errors.New("event queue is full")

	// ErrInvalidQueueSize is returned when attempting to create a queue with
	// a negative size.
	ErrInvalidQueueSize = errors.New("max queue size must be greater than 0")

	// ErrNoQueue is returned when no live queue exists for a task, e.g.
	// when resubscribing after a process restart.
	ErrNoQueue = errors.New("no event queue for task")
)
