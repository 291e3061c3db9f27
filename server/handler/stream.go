// Copyright 2025 Nevermined AG
// SPDX-License-Identifier: Apache-2.0

package handler

import (
	"context"

	payments "github.com/nevermined-io/payments-go"
	"github.com/nevermined-io/payments-go/server/event"
	"github.com/nevermined-io/payments-go/server/execution"
	"github.com/nevermined-io/payments-go/server/payment"
	"github.com/nevermined-io/payments-go/server/task"
)

// run holds the per-request state of one execution: the task manager
// applying events to the store and the consumer channel draining the
// task's primary queue. Exactly one consumer drives a task's queue; the
// blocking, non-blocking, and streaming paths differ only in how they drain
// this struct.
type run struct {
	taskID  string
	manager task.Manager
	events  <-chan payments.Event
}

// startExecution correlates the inbound message with its HTTP request
// context, persists the new task, migrates the context registry entry to
// the task id, and starts the executor through the bridge.
func (h *RequestHandler) startExecution(ctx context.Context, params *payments.MessageSendParams) (*run, error) {
	message := params.Message

	// The HTTP boundary registered the context before dispatch. A miss
	// here means the boundaries are out of sync; never silently execute.
	reqCtx, err := payment.Resolve(ctx, h.contexts, message.TaskID, message.MessageID)
	if err != nil {
		return nil, payments.InternalError{
			Detail: "no request context registered for message " + message.MessageID,
		}
	}

	current, err := payments.NewTask(message)
	if err != nil {
		return nil, payments.InvalidParamsError{Detail: err.Error()}
	}

	if message.TaskID == "" {
		if err := h.contexts.Migrate(ctx, message.MessageID, current.ID); err != nil {
			return nil, payments.InternalError{
				Detail: "failed to migrate request context to task " + current.ID,
			}
		}
	}

	if params.Configuration != nil && params.Configuration.PushNotificationConfig != nil {
		if err := h.pushConfigs.Set(ctx, current.ID, params.Configuration.PushNotificationConfig); err != nil {
			return nil, payments.InvalidParamsError{Detail: err.Error()}
		}
	}

	if err := h.store.Save(ctx, current); err != nil {
		return nil, payments.InternalError{Detail: err.Error()}
	}

	manager, err := task.NewManager(task.ManagerConfig{
		TaskID:    current.ID,
		ContextID: current.ContextID,
		Store:     h.store,
		Logger:    h.logger,
	})
	if err != nil {
		return nil, payments.InternalError{Detail: err.Error()}
	}

	queue, err := h.queues.Get(current.ID)
	if err != nil {
		return nil, payments.InternalError{Detail: err.Error()}
	}

	auth := h.authResult(reqCtx)
	execCtx := execution.NewRequestContext(current, message, auth)
	h.bridge.Execute(ctx, execCtx, queue)

	// The consumer is detached from the request context: the task must be
	// driven to its terminal event and settled even if the caller
	// disconnects mid-stream.
	consumer := event.NewConsumer(queue)
	return &run{
		taskID:  current.ID,
		manager: manager,
		events:  consumer.ConsumeAll(context.WithoutCancel(ctx)),
	}, nil
}

// authResult derives the task-scoped authentication snapshot from the
// validated HTTP request context.
func (h *RequestHandler) authResult(reqCtx *payment.HTTPRequestContext) *payment.AuthResult {
	auth := &payment.AuthResult{
		Token:   reqCtx.BearerToken,
		AgentID: h.extension.AgentID,
		AgentRequest: map[string]any{
			"url":    reqCtx.URLRequested,
			"method": reqCtx.HTTPMethodRequested,
		},
	}
	if reqCtx.Validation != nil {
		auth.RequestID = reqCtx.Validation.RequestID
	}
	return auth
}

// consumeBlocking drains the stream to completion and returns the resolved
// task, or the final message when the executor answered with one.
func (h *RequestHandler) consumeBlocking(ctx context.Context, r *run) (payments.Event, error) {
	var lastMessage *payments.Message
	for evt := range r.events {
		h.processEvent(ctx, r, evt)
		if h.isTerminal(evt) {
			h.finalizeEvent(ctx, r, evt)
		}
		if msg, ok := evt.(*payments.Message); ok {
			lastMessage = msg
		}
	}
	if lastMessage != nil {
		return lastMessage, nil
	}
	return r.manager.GetTask(ctx)
}

// consumeNonBlocking resolves with the first message or task event and
// drains the remainder of the stream in the background. The background
// drain is detached from the request context: the HTTP response returns
// while the task keeps running.
func (h *RequestHandler) consumeNonBlocking(ctx context.Context, r *run) (payments.Event, error) {
	for evt := range r.events {
		h.processEvent(ctx, r, evt)
		if h.isTerminal(evt) {
			h.finalizeEvent(ctx, r, evt)
		}

		switch first := evt.(type) {
		case *payments.Message:
			go h.drainBackground(r)
			return first, nil
		case *payments.Task:
			go h.drainBackground(r)
			return first, nil
		}
	}
	return nil, payments.InternalError{
		Detail: "stream completed without producing a message or task for " + r.taskID,
	}
}

// drainBackground finishes processing and finalizing a stream after the
// non-blocking response has been returned.
func (h *RequestHandler) drainBackground(r *run) {
	ctx := context.Background()
	for evt := range r.events {
		h.processEvent(ctx, r, evt)
		if h.isTerminal(evt) {
			h.finalizeEvent(ctx, r, evt)
		}
	}
}

// processRemainder finalizes an event that was already persisted but not
// yet finalized when the caller disconnected, then drains the rest.
func (h *RequestHandler) processRemainder(r *run, evt payments.Event) {
	ctx := context.Background()
	if h.isTerminal(evt) {
		h.finalizeEvent(ctx, r, evt)
	}
	h.drainBackground(r)
}

// processEvent persists the event into task state. Store failures are
// logged: the stream must keep flowing toward its terminal event.
func (h *RequestHandler) processEvent(ctx context.Context, r *run, evt payments.Event) {
	if err := r.manager.Process(ctx, evt); err != nil {
		h.logger.Error("failed to persist event", "task_id", r.taskID, "error", err)
	}
}

// finalizeEvent runs settlement and webhook dispatch for a terminal event.
func (h *RequestHandler) finalizeEvent(ctx context.Context, r *run, evt payments.Event) {
	current, err := r.manager.GetTask(ctx)
	if err != nil {
		h.logger.Error("failed to load task for finalization", "task_id", r.taskID, "error", err)
		current = nil
	}
	h.finalizer.HandleEvent(ctx, evt, current)
}

func (h *RequestHandler) isTerminal(evt payments.Event) bool {
	statusEvt, ok := evt.(*payments.TaskStatusUpdateEvent)
	return ok && statusEvt.Final && statusEvt.Status.State.Terminal()
}
