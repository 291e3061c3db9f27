// Copyright 2025 Nevermined AG
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"context"
	"fmt"
	"sync"
	"time"

	payments "github.com/nevermined-io/payments-go"
	"github.com/nevermined-io/payments-go/server/event"
)

// Updater is the executor-facing handle for publishing task events. It
// refuses updates after a terminal transition has been published.
type Updater struct {
	taskID    string
	contextID string
	queue     *event.Queue

	mu       sync.Mutex
	terminal bool
}

// UpdaterConfig holds configuration for creating an Updater.
type UpdaterConfig struct {
	TaskID    string
	ContextID string
	Queue     *event.Queue
}

// NewUpdater creates an Updater publishing to the given queue.
func NewUpdater(config UpdaterConfig) (*Updater, error) {
	if config.TaskID == "" {
		return nil, fmt.Errorf("task ID cannot be empty")
	}
	if config.ContextID == "" {
		return nil, fmt.Errorf("context ID cannot be empty")
	}
	if config.Queue == nil {
		return nil, fmt.Errorf("event queue cannot be nil")
	}
	return &Updater{
		taskID:    config.TaskID,
		contextID: config.ContextID,
		queue:     config.Queue,
	}, nil
}

// UpdateStatus publishes a status transition. The optional message is
// attributed to the agent. Metadata rides on the event, which is how an
// executor reports creditsUsed alongside its terminal status.
func (u *Updater) UpdateStatus(ctx context.Context, state payments.TaskState, message string, final bool, metadata map[string]any) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.terminal {
		return NotUpdatableError{TaskID: u.taskID, State: state}
	}
	if final || state.Terminal() {
		u.terminal = true
	}

	status := payments.TaskStatus{
		State:     state,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if message != "" {
		status.Message = payments.NewAgentTextMessage(message, u.taskID, u.contextID)
	}

	evt := payments.NewTaskStatusUpdateEvent(u.taskID, u.contextID, status, u.terminal)
	evt.Metadata = metadata

	if err := u.queue.Enqueue(ctx, evt); err != nil {
		return fmt.Errorf("failed to publish status update: %w", err)
	}
	return nil
}

// AddArtifact publishes an artifact update.
func (u *Updater) AddArtifact(ctx context.Context, artifact *payments.Artifact, appendTo bool) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.terminal {
		return NotUpdatableError{TaskID: u.taskID}
	}
	if artifact == nil {
		return fmt.Errorf("artifact cannot be nil")
	}
	if err := artifact.Validate(); err != nil {
		return fmt.Errorf("invalid artifact: %w", err)
	}

	evt := &payments.TaskArtifactUpdateEvent{
		Kind:      payments.EventKindArtifactUpdate,
		TaskID:    u.taskID,
		ContextID: u.contextID,
		Artifact:  artifact,
		Append:    appendTo,
	}
	if err := u.queue.Enqueue(ctx, evt); err != nil {
		return fmt.Errorf("failed to publish artifact update: %w", err)
	}
	return nil
}

// StartWork marks the task as working.
func (u *Updater) StartWork(ctx context.Context, message string) error {
	return u.UpdateStatus(ctx, payments.TaskStateWorking, message, false, nil)
}

// Complete marks the task as completed, reporting the credits consumed.
func (u *Updater) Complete(ctx context.Context, message string, creditsUsed any) error {
	var metadata map[string]any
	if creditsUsed != nil {
		metadata = map[string]any{payments.MetadataCreditsUsed: creditsUsed}
	}
	return u.UpdateStatus(ctx, payments.TaskStateCompleted, message, true, metadata)
}

// Failed marks the task as failed.
func (u *Updater) Failed(ctx context.Context, message string) error {
	return u.UpdateStatus(ctx, payments.TaskStateFailed, message, true, nil)
}

// Reject marks the task as rejected.
func (u *Updater) Reject(ctx context.Context, message string) error {
	return u.UpdateStatus(ctx, payments.TaskStateRejected, message, true, nil)
}

// Cancel marks the task as canceled.
func (u *Updater) Cancel(ctx context.Context, message string) error {
	return u.UpdateStatus(ctx, payments.TaskStateCanceled, message, true, nil)
}

// RequiresInput marks the task as waiting for caller input.
func (u *Updater) RequiresInput(ctx context.Context, message string) error {
	return u.UpdateStatus(ctx, payments.TaskStateInputRequired, message, false, nil)
}

// TaskID returns the task id this updater publishes for.
func (u *Updater) TaskID() string { return u.taskID }

// IsTerminal reports whether a terminal transition has been published.
func (u *Updater) IsTerminal() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.terminal
}
