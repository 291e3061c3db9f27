// Copyright 2025 Nevermined AG
// SPDX-License-Identifier: Apache-2.0

package execution

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	payments "github.com/nevermined-io/payments-go"
	"github.com/nevermined-io/payments-go/server/event"
)

// Bridge runs an AgentExecutor asynchronously against a task's event queue.
// If the executor returns an error or panics, the bridge synthesizes a
// failed terminal status update carrying the error message, so the caller
// never observes a dangling task with no terminal event. The original user
// message stays in task history either way.
type Bridge struct {
	executor AgentExecutor
	logger   *slog.Logger
}

// BridgeConfig holds configuration for creating a Bridge.
type BridgeConfig struct {
	Executor AgentExecutor
	Logger   *slog.Logger
}

// NewBridge creates a Bridge around the given executor.
func NewBridge(config BridgeConfig) (*Bridge, error) {
	if config.Executor == nil {
		return nil, fmt.Errorf("executor cannot be nil")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{executor: config.Executor, logger: logger}, nil
}

// Execute starts the executor in its own goroutine. The queue is closed
// once the executor returns and any synthesized failure event has been
// published.
func (b *Bridge) Execute(ctx context.Context, reqCtx *RequestContext, queue *event.Queue) {
	go func() {
		err := b.run(ctx, reqCtx, queue)
		if err != nil {
			b.logger.Error("executor failed", "task_id", reqCtx.TaskID, "error", err)
			b.publishFailure(reqCtx, queue, err)
		}
		_ = queue.Close()
	}()
}

// Cancel delegates cancellation to the executor's cancel hook.
func (b *Bridge) Cancel(ctx context.Context, reqCtx *RequestContext, queue *event.Queue) error {
	return b.executor.Cancel(ctx, reqCtx, queue)
}

func (b *Bridge) run(ctx context.Context, reqCtx *RequestContext, queue *event.Queue) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("executor panic: %v", r)
		}
	}()
	return b.executor.Execute(ctx, reqCtx, queue)
}

// publishFailure pushes a failed terminal status with an agent-authored
// error message. Enqueue uses a fresh context: the request context may
// already be canceled, and the terminal event must still go out.
func (b *Bridge) publishFailure(reqCtx *RequestContext, queue *event.Queue, execErr error) {
	status := payments.TaskStatus{
		State:     payments.TaskStateFailed,
		Message:   payments.NewAgentTextMessage(execErr.Error(), reqCtx.TaskID, reqCtx.ContextID),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	evt := payments.NewTaskStatusUpdateEvent(reqCtx.TaskID, reqCtx.ContextID, status, true)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := queue.Enqueue(ctx, evt); err != nil {
		b.logger.Error("failed to publish terminal failure event", "task_id", reqCtx.TaskID, "error", err)
	}
}
