// Copyright 2025 Nevermined AG
// SPDX-License-Identifier: Apache-2.0

// Package execution defines the agent executor contract and the bridge that
// runs executors asynchronously, guaranteeing every task stream ends with a
// terminal event.
package execution

import (
	"context"
	"time"

	payments "github.com/nevermined-io/payments-go"
	"github.com/nevermined-io/payments-go/server/event"
	"github.com/nevermined-io/payments-go/server/payment"
)

// AgentExecutor is the business-logic executor supplied by the host
// application. Execute publishes progress and results to the event queue;
// it reports credit consumption by attaching creditsUsed metadata to its
// terminal status event.
type AgentExecutor interface {
	// Execute processes the request and emits events until a terminal
	// status update.
	Execute(ctx context.Context, reqCtx *RequestContext, queue *event.Queue) error

	// Cancel attempts to stop a running task, publishing a canceled
	// terminal status on success.
	Cancel(ctx context.Context, reqCtx *RequestContext, queue *event.Queue) error
}

// RequestContext carries everything an executor needs to process one task.
type RequestContext struct {
	// TaskID is the unique identifier for the task being executed.
	TaskID string

	// ContextID aligns related interactions across tasks.
	ContextID string

	// Message is the inbound user message.
	Message *payments.Message

	// Task is the current task state.
	Task *payments.Task

	// Auth is the immutable authentication snapshot derived from the
	// validated HTTP request. It never changes for the task's lifetime.
	Auth *payment.AuthResult

	// CreatedAt records when this context was built.
	CreatedAt time.Time
}

// NewRequestContext creates a RequestContext for a task.
func NewRequestContext(task *payments.Task, message *payments.Message, auth *payment.AuthResult) *RequestContext {
	return &RequestContext{
		TaskID:    task.ID,
		ContextID: task.ContextID,
		Message:   message,
		Task:      task,
		Auth:      auth,
		CreatedAt: time.Now().UTC(),
	}
}
