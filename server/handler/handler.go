// Copyright 2025 Nevermined AG
// SPDX-License-Identifier: Apache-2.0

// Package handler wires the payment middleware into the JSON-RPC surface:
// message sends in blocking, non-blocking, and streamed modes, task
// retrieval, push notification configuration, and late resubscription.
package handler

import (
	"context"
	"fmt"
	"log/slog"

	payments "github.com/nevermined-io/payments-go"
	"github.com/nevermined-io/payments-go/server/event"
	"github.com/nevermined-io/payments-go/server/execution"
	"github.com/nevermined-io/payments-go/server/payment"
	"github.com/nevermined-io/payments-go/server/task"
)

// RequestHandler executes protocol operations against the task core. It is
// assembled by composition: the payment behavior arrives through the
// injected context store, finalizer, and bridge rather than through
// subclassing a transport base.
type RequestHandler struct {
	store       task.Store
	queues      event.Manager
	contexts    payment.ContextStore
	finalizer   *payment.Finalizer
	bridge      *execution.Bridge
	pushConfigs task.PushConfigStore
	extension   *payments.PaymentExtension
	logger      *slog.Logger
}

// RequestHandlerConfig holds the collaborators of a RequestHandler.
type RequestHandlerConfig struct {
	Store       task.Store
	Queues      event.Manager
	Contexts    payment.ContextStore
	Finalizer   *payment.Finalizer
	Bridge      *execution.Bridge
	PushConfigs task.PushConfigStore
	Extension   *payments.PaymentExtension
	Logger      *slog.Logger
}

// NewRequestHandler creates a RequestHandler with the given collaborators.
func NewRequestHandler(config RequestHandlerConfig) (*RequestHandler, error) {
	switch {
	case config.Store == nil:
		return nil, fmt.Errorf("task store cannot be nil")
	case config.Queues == nil:
		return nil, fmt.Errorf("queue manager cannot be nil")
	case config.Contexts == nil:
		return nil, fmt.Errorf("context store cannot be nil")
	case config.Finalizer == nil:
		return nil, fmt.Errorf("finalizer cannot be nil")
	case config.Bridge == nil:
		return nil, fmt.Errorf("execution bridge cannot be nil")
	case config.PushConfigs == nil:
		return nil, fmt.Errorf("push config store cannot be nil")
	case config.Extension == nil:
		return nil, fmt.Errorf("payment extension cannot be nil")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &RequestHandler{
		store:       config.Store,
		queues:      config.Queues,
		contexts:    config.Contexts,
		finalizer:   config.Finalizer,
		bridge:      config.Bridge,
		pushConfigs: config.PushConfigs,
		extension:   config.Extension,
		logger:      logger,
	}, nil
}

// OnMessageSend handles message/send. In blocking mode it drains the event
// stream internally and returns the resolved task or message. In
// non-blocking mode it returns the first message or task event observed and
// drains the remainder, finalization included, in the background.
func (h *RequestHandler) OnMessageSend(ctx context.Context, params *payments.MessageSendParams) (payments.Event, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	run, err := h.startExecution(ctx, params)
	if err != nil {
		return nil, err
	}

	if params.Blocking() {
		return h.consumeBlocking(ctx, run)
	}
	return h.consumeNonBlocking(ctx, run)
}

// OnMessageStream handles message/stream. Every event is yielded in
// publication order; finalization side effects run inline after the
// terminal event is yielded.
func (h *RequestHandler) OnMessageStream(ctx context.Context, params *payments.MessageSendParams) (<-chan payments.Event, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	run, err := h.startExecution(ctx, params)
	if err != nil {
		return nil, err
	}

	out := make(chan payments.Event)
	go func() {
		defer close(out)
		for evt := range run.events {
			h.processEvent(ctx, run, evt)
			// Finalize before yielding so the terminal frame carries the
			// settlement outcome in its metadata.
			if h.isTerminal(evt) {
				h.finalizeEvent(ctx, run, evt)
			}
			select {
			case out <- evt:
			case <-ctx.Done():
				// Caller went away; keep draining so the task still
				// reaches settlement.
				h.processRemainder(run, evt)
				return
			}
		}
	}()
	return out, nil
}

// OnGetTask handles tasks/get.
func (h *RequestHandler) OnGetTask(ctx context.Context, params *payments.TaskIDParams) (*payments.Task, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return h.store.Get(ctx, params.ID)
}

// OnCancelTask handles tasks/cancel, delegating to the executor's cancel
// hook. Settlement already in flight is never interrupted.
func (h *RequestHandler) OnCancelTask(ctx context.Context, params *payments.TaskIDParams) (*payments.Task, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	current, err := h.store.Get(ctx, params.ID)
	if err != nil {
		return nil, err
	}

	queue, err := h.queues.Lookup(params.ID)
	if err != nil {
		return nil, payments.TaskNotFoundError{TaskID: params.ID}
	}
	reqCtx := execution.NewRequestContext(current, nil, nil)
	if err := h.bridge.Cancel(ctx, reqCtx, queue); err != nil {
		return nil, payments.InternalError{Detail: fmt.Sprintf("cancel failed: %v", err)}
	}
	return h.store.Get(ctx, params.ID)
}

// OnSetPushConfig handles tasks/pushNotificationConfig/set.
func (h *RequestHandler) OnSetPushConfig(ctx context.Context, params *payments.SetPushConfigParams) (*payments.SetPushConfigParams, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if _, err := h.store.Get(ctx, params.TaskID); err != nil {
		return nil, err
	}
	if err := h.pushConfigs.Set(ctx, params.TaskID, params.PushNotificationConfig); err != nil {
		return nil, payments.InternalError{Detail: err.Error()}
	}
	return params, nil
}

// OnGetPushConfig handles tasks/pushNotificationConfig/get.
func (h *RequestHandler) OnGetPushConfig(ctx context.Context, params *payments.TaskIDParams) (*payments.PushNotificationConfig, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return h.pushConfigs.Get(ctx, params.ID)
}

// OnResubscribe handles tasks/resubscribe. The last persisted task snapshot
// is yielded first; a terminal task ends the stream there. Otherwise the
// stream attaches to the task's live queue via a tap, re-running
// finalization for any terminal event it observes. The context registry
// entry still exists in that case, since it is only deleted after a
// finalization pass completes.
func (h *RequestHandler) OnResubscribe(ctx context.Context, params *payments.TaskIDParams) (<-chan payments.Event, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	current, err := h.store.Get(ctx, params.ID)
	if err != nil {
		return nil, err
	}

	out := make(chan payments.Event)

	if current.Status.State.Terminal() {
		go func() {
			defer close(out)
			select {
			case out <- current:
			case <-ctx.Done():
			}
		}()
		return out, nil
	}

	tap, err := h.queues.Tap(params.ID)
	if err != nil {
		// No live queue, e.g. after a process restart. Yield the snapshot
		// and end the stream rather than failing the call.
		h.logger.Warn("resubscribe found no live event queue", "task_id", params.ID, "error", err)
		go func() {
			defer close(out)
			select {
			case out <- current:
			case <-ctx.Done():
			}
		}()
		return out, nil
	}

	consumer := event.NewConsumer(tap)
	events := consumer.ConsumeAll(ctx)

	go func() {
		defer close(out)
		select {
		case out <- current:
		case <-ctx.Done():
			return
		}
		for evt := range events {
			// The primary consumer usually settles first; this is the
			// idempotent fallback for streams with no other reader. The
			// task is reloaded so a late pass never persists the
			// pre-subscription snapshot over newer state.
			if h.isTerminal(evt) {
				latest, err := h.store.Get(ctx, params.ID)
				if err != nil {
					latest = current
				}
				h.finalizer.HandleEvent(ctx, evt, latest)
			}
			select {
			case out <- evt:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
