// Copyright 2025 Nevermined AG
// SPDX-License-Identifier: Apache-2.0

// Package payments provides the protocol types for payment-metered agent
// tasks: tasks and their lifecycle states, messages, streamed events, and
// the payment extension metadata carried on an agent card.
//
// The wire format follows JSON-RPC 2.0 over HTTP POST; streaming responses
// are delivered as server-sent events. Server-side plumbing lives under the
// server packages.
package payments

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TaskState represents the lifecycle state of a task.
type TaskState string

// Task lifecycle states. A task enters StateSubmitted on creation and leaves
// only through one of the terminal states.
const (
	TaskStateSubmitted     TaskState = "submitted"
	TaskStateWorking       TaskState = "working"
	TaskStateInputRequired TaskState = "input-required"
	TaskStateCompleted     TaskState = "completed"
	TaskStateFailed        TaskState = "failed"
	TaskStateCanceled      TaskState = "canceled"
	TaskStateRejected      TaskState = "rejected"
)

// Terminal reports whether the state admits no further transitions.
func (s TaskState) Terminal() bool {
	switch s {
	case TaskStateCompleted, TaskStateFailed, TaskStateCanceled, TaskStateRejected:
		return true
	default:
		return false
	}
}

// Valid reports whether s is a known task state.
func (s TaskState) Valid() bool {
	switch s {
	case TaskStateSubmitted, TaskStateWorking, TaskStateInputRequired,
		TaskStateCompleted, TaskStateFailed, TaskStateCanceled, TaskStateRejected:
		return true
	default:
		return false
	}
}

// TaskStatus captures the current state of a task together with the agent
// message that produced it.
type TaskStatus struct {
	State     TaskState `json:"state"`
	Message   *Message  `json:"message,omitzero"`
	Timestamp string    `json:"timestamp,omitzero"`
}

// Validate ensures the TaskStatus is valid.
func (s TaskStatus) Validate() error {
	if !s.State.Valid() {
		return fmt.Errorf("invalid task state: %q", s.State)
	}
	return nil
}

// Task is a unit of asynchronous work progressing through states to a
// terminal state. Metadata carries payment bookkeeping such as the credits
// reported by the executor and, after settlement, the transaction id and the
// credits actually charged.
type Task struct {
	ID        string         `json:"id"`
	ContextID string         `json:"contextId"`
	Kind      EventKind      `json:"kind"`
	Status    TaskStatus     `json:"status"`
	History   []*Message     `json:"history,omitzero"`
	Artifacts []*Artifact    `json:"artifacts,omitzero"`
	Metadata  map[string]any `json:"metadata,omitzero"`
}

// Metadata keys used for payment bookkeeping on tasks and status events.
const (
	MetadataCreditsUsed    = "creditsUsed"
	MetadataCreditsCharged = "creditsCharged"
	MetadataTxHash         = "txHash"
)

// Validate ensures the Task is valid.
func (t *Task) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("task ID cannot be empty")
	}
	if t.ContextID == "" {
		return fmt.Errorf("task context ID cannot be empty")
	}
	return t.Status.Validate()
}

// NewTask creates a Task in the submitted state from an inbound user message.
// Task and context ids are taken from the message when present, otherwise
// generated. The originating message is recorded as the first history entry.
func NewTask(message *Message) (*Task, error) {
	if message == nil {
		return nil, fmt.Errorf("message cannot be nil")
	}
	if err := message.Validate(); err != nil {
		return nil, fmt.Errorf("invalid request message: %w", err)
	}

	taskID := message.TaskID
	if taskID == "" {
		taskID = uuid.NewString()
	}
	contextID := message.ContextID
	if contextID == "" {
		contextID = uuid.NewString()
	}

	history := message.clone()
	history.TaskID = taskID
	history.ContextID = contextID

	return &Task{
		ID:        taskID,
		ContextID: contextID,
		Kind:      EventKindTask,
		Status: TaskStatus{
			State:     TaskStateSubmitted,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		},
		History: []*Message{history},
	}, nil
}
