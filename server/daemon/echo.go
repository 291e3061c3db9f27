// Copyright 2025 Nevermined AG
// SPDX-License-Identifier: Apache-2.0

package daemon

import (
	"context"

	"github.com/nevermined-io/payments-go/server/event"
	"github.com/nevermined-io/payments-go/server/execution"
	"github.com/nevermined-io/payments-go/server/task"
)

// EchoExecutor replies with the inbound message text and completes,
// charging the configured plan credits. Development and smoke tests only;
// production deployments wire their own executor into New.
type EchoExecutor struct {
	// Credits is reported as creditsUsed on the terminal event.
	Credits uint64
}

var _ execution.AgentExecutor = (*EchoExecutor)(nil)

// Execute echoes the user message back and completes the task. The task
// snapshot is published first so non-blocking sends have an event to resolve
// with.
func (e *EchoExecutor) Execute(ctx context.Context, reqCtx *execution.RequestContext, queue *event.Queue) error {
	if err := queue.Enqueue(ctx, reqCtx.Task); err != nil {
		return err
	}
	updater, err := task.NewUpdater(task.UpdaterConfig{
		TaskID:    reqCtx.TaskID,
		ContextID: reqCtx.ContextID,
		Queue:     queue,
	})
	if err != nil {
		return err
	}
	if err := updater.StartWork(ctx, ""); err != nil {
		return err
	}
	return updater.Complete(ctx, reqCtx.Message.Text(), e.Credits)
}

// Cancel publishes a canceled terminal status.
func (e *EchoExecutor) Cancel(ctx context.Context, reqCtx *execution.RequestContext, queue *event.Queue) error {
	updater, err := task.NewUpdater(task.UpdaterConfig{
		TaskID:    reqCtx.TaskID,
		ContextID: reqCtx.ContextID,
		Queue:     queue,
	})
	if err != nil {
		return err
	}
	return updater.Cancel(ctx, "canceled by caller")
}
