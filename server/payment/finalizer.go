// Copyright 2025 Nevermined AG
// SPDX-License-Identifier: Apache-2.0

package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	payments "github.com/nevermined-io/payments-go"
	"github.com/nevermined-io/payments-go/server/metrics"
	"github.com/nevermined-io/payments-go/server/push"
	"github.com/nevermined-io/payments-go/server/task"
)

// Finalizer observes terminal status events and runs the settlement and
// webhook side effects exactly once per task.
//
// Exactly-once is enforced through the context store: the task-keyed entry
// exists until a finalization pass completes, and is deleted as that pass's
// last step. A second pass over the same terminal event (e.g. a resubscribe
// replay) finds no entry and returns without side effects. Settlement and
// webhook failures are swallowed; the caller still receives the terminal
// task either way.
type Finalizer struct {
	contexts    ContextStore
	facilitator Facilitator
	extension   *payments.PaymentExtension
	store       task.Store
	pushConfigs task.PushConfigStore
	dispatcher  push.Dispatcher
	pending     *PendingStore
	metrics     *metrics.Metrics
	logger      *slog.Logger

	// onSettlementError lets a host observe swallowed settlement failures,
	// e.g. to queue a retry. The task outcome is unaffected either way.
	onSettlementError func(taskID string, err error)
}

// FinalizerConfig holds configuration for creating a Finalizer.
type FinalizerConfig struct {
	Contexts          ContextStore
	Facilitator       Facilitator
	Extension         *payments.PaymentExtension
	Store             task.Store
	PushConfigs       task.PushConfigStore
	Dispatcher        push.Dispatcher
	Pending           *PendingStore
	Metrics           *metrics.Metrics
	Logger            *slog.Logger
	OnSettlementError func(taskID string, err error)
}

// NewFinalizer creates a Finalizer with the given collaborators.
func NewFinalizer(config FinalizerConfig) (*Finalizer, error) {
	if config.Contexts == nil {
		return nil, fmt.Errorf("context store cannot be nil")
	}
	if config.Facilitator == nil {
		return nil, fmt.Errorf("facilitator cannot be nil")
	}
	if config.Extension == nil {
		return nil, fmt.Errorf("payment extension cannot be nil")
	}
	if config.Store == nil {
		return nil, fmt.Errorf("task store cannot be nil")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	pending := config.Pending
	if pending == nil {
		pending = NewPendingStore()
	}
	return &Finalizer{
		contexts:          config.Contexts,
		facilitator:       config.Facilitator,
		extension:         config.Extension,
		store:             config.Store,
		pushConfigs:       config.PushConfigs,
		dispatcher:        config.Dispatcher,
		pending:           pending,
		metrics:           config.Metrics,
		logger:            logger,
		onSettlementError: config.OnSettlementError,
	}, nil
}

// HandleEvent runs finalization when the event is a final terminal status
// update; all other events pass through untouched. The task argument is the
// persisted state after the event has been applied.
func (f *Finalizer) HandleEvent(ctx context.Context, evt payments.Event, current *payments.Task) {
	statusEvt, ok := evt.(*payments.TaskStatusUpdateEvent)
	if !ok || !statusEvt.Final || !statusEvt.Status.State.Terminal() {
		return
	}
	f.finalize(ctx, statusEvt, current)
}

func (f *Finalizer) finalize(ctx context.Context, evt *payments.TaskStatusUpdateEvent, current *payments.Task) {
	taskID := evt.TaskID

	// Claiming the context removes it in the same atomic step. Concurrent
	// passes over the same terminal event race for the entry and exactly one
	// proceeds; the rest see a miss and back off.
	reqCtx, err := f.contexts.TakeForTask(ctx, taskID)
	if err != nil {
		if errors.Is(err, ErrContextNotFound) {
			// A prior pass already finalized this task.
			f.logger.Debug("skipping finalization, task already settled", "task_id", taskID)
			return
		}
		f.logger.Error("context lookup failed during finalization", "task_id", taskID, "error", err)
		return
	}

	if f.metrics != nil {
		f.metrics.TasksTotal.WithLabelValues(string(evt.Status.State)).Inc()
	}

	f.settle(ctx, evt, current, reqCtx)
	f.notify(ctx, evt, current)
}

// settle redeems the credits reported on the terminal event. Every failure
// path logs and returns; a bookkeeping failure must never withhold the
// user's result.
func (f *Finalizer) settle(ctx context.Context, evt *payments.TaskStatusUpdateEvent, current *payments.Task, reqCtx *HTTPRequestContext) {
	raw, ok := evt.Metadata[payments.MetadataCreditsUsed]
	if !ok {
		return
	}
	creditsUsed, ok := ParseCredits(raw)
	if !ok {
		f.logger.Warn("ignoring malformed creditsUsed metadata", "task_id", evt.TaskID, "value", raw)
		return
	}

	method := ResolveMethod(f.extension.RedemptionConfig)
	strategy, err := NewStrategy(method, f.facilitator, f.extension, f.pending)
	if err != nil {
		f.settlementFailed(evt.TaskID, method, err)
		return
	}

	result, err := strategy.Settle(ctx, current, reqCtx, creditsUsed)
	if err != nil {
		f.settlementFailed(evt.TaskID, method, err)
		return
	}

	if f.metrics != nil {
		f.metrics.SettlementsTotal.WithLabelValues(string(method), "ok").Inc()
	}
	f.logger.Info("settlement completed",
		"task_id", evt.TaskID,
		"method", method,
		"credits_used", creditsUsed,
		"credits_charged", result.CreditsCharged,
		"deferred", result.Deferred,
	)

	f.mergeResult(ctx, evt, current, result)
}

// mergeResult writes the settlement outcome into the event and task
// metadata and persists the task.
func (f *Finalizer) mergeResult(ctx context.Context, evt *payments.TaskStatusUpdateEvent, current *payments.Task, result *SettlementResult) {
	if result.Deferred {
		return
	}
	if evt.Metadata == nil {
		evt.Metadata = make(map[string]any)
	}
	evt.Metadata[payments.MetadataTxHash] = result.TxHash
	evt.Metadata[payments.MetadataCreditsCharged] = result.CreditsCharged

	if current == nil {
		return
	}
	if current.Metadata == nil {
		current.Metadata = make(map[string]any)
	}
	current.Metadata[payments.MetadataTxHash] = result.TxHash
	current.Metadata[payments.MetadataCreditsCharged] = result.CreditsCharged

	if err := f.store.Save(ctx, current); err != nil {
		f.logger.Error("failed to persist settlement result", "task_id", current.ID, "error", err)
	}
}

func (f *Finalizer) settlementFailed(taskID string, method Method, err error) {
	f.logger.Error("settlement failed", "task_id", taskID, "method", method, "error", err)
	if f.metrics != nil {
		f.metrics.SettlementsTotal.WithLabelValues(string(method), "error").Inc()
		f.metrics.SettlementFailures.Inc()
	}
	if f.onSettlementError != nil {
		f.onSettlementError(taskID, err)
	}
}

// notify delivers the terminal-state webhook when the caller registered
// one. Delivery failures are logged and never fail the task.
func (f *Finalizer) notify(ctx context.Context, evt *payments.TaskStatusUpdateEvent, current *payments.Task) {
	if f.pushConfigs == nil || f.dispatcher == nil {
		return
	}

	config, err := f.pushConfigs.Get(ctx, evt.TaskID)
	if err != nil {
		var notFound payments.TaskNotFoundError
		if !errors.As(err, &notFound) {
			f.logger.Error("push config lookup failed", "task_id", evt.TaskID, "error", err)
		}
		return
	}

	var payload any
	if current != nil {
		payload = current
	}
	if err := f.dispatcher.Notify(ctx, evt.TaskID, evt.Status.State, config, payload); err != nil {
		f.logger.Warn("webhook delivery failed", "task_id", evt.TaskID, "error", err)
		if f.metrics != nil {
			f.metrics.WebhookDeliveriesTotal.WithLabelValues("error").Inc()
		}
		return
	}
	if f.metrics != nil {
		f.metrics.WebhookDeliveriesTotal.WithLabelValues("ok").Inc()
	}
}
