// Copyright 2025 Nevermined AG
// SPDX-License-Identifier: Apache-2.0

package event

import (
	"context"
	"errors"

	payments "github.com/nevermined-io/payments-go"
)

// Consumer drains a Queue into a channel, stopping after the final event of
// the stream. Exactly one Consumer drives a task's primary queue at a time;
// late subscribers consume from a Tap child instead.
type Consumer struct {
	queue *Queue
}

// NewConsumer creates a consumer for the given queue.
func NewConsumer(queue *Queue) *Consumer {
	return &Consumer{queue: queue}
}

// ConsumeOne attempts to consume a single buffered event without blocking.
func (c *Consumer) ConsumeOne(ctx context.Context) (payments.Event, error) {
	return c.queue.Dequeue(ctx, true)
}

// ConsumeAll returns a channel yielding events in publication order. The
// channel is closed after the final event is delivered, when the queue
// closes, or when the context is canceled. The queue itself is closed once
// the final event has been observed, releasing any taps.
func (c *Consumer) ConsumeAll(ctx context.Context) <-chan payments.Event {
	events := make(chan payments.Event)

	go func() {
		defer close(events)

		for {
			event, err := c.queue.Dequeue(ctx, false)
			if err != nil {
				if errors.Is(err, ErrQueueClosed) {
					return
				}
				// Context cancellation or other dequeue failure.
				return
			}

			select {
			case events <- event:
			case <-ctx.Done():
				return
			}

			if payments.IsFinalEvent(event) {
				_ = c.queue.Close()
				return
			}
		}
	}()

	return events
}
