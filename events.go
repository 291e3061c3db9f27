// Copyright 2025 Nevermined AG
// SPDX-License-Identifier: Apache-2.0

package payments

import (
	"fmt"
	"time"
)

// EventKind discriminates the event union on the wire.
type EventKind string

// Event kinds.
const (
	EventKindMessage        EventKind = "message"
	EventKindTask           EventKind = "task"
	EventKindStatusUpdate   EventKind = "status-update"
	EventKindArtifactUpdate EventKind = "artifact-update"
)

// Event is the union of everything a task execution can publish: a message,
// a task snapshot, a status update, or an artifact update.
type Event interface {
	// GetEventKind returns the event kind for type discrimination.
	GetEventKind() EventKind
	// GetTaskID returns the task ID associated with this event.
	GetTaskID() string
}

// Artifact is a unit of output produced by a task.
type Artifact struct {
	ArtifactID string         `json:"artifactId"`
	Name       string         `json:"name,omitzero"`
	Parts      []Part         `json:"parts"`
	Metadata   map[string]any `json:"metadata,omitzero"`
}

// Validate ensures the Artifact is valid.
func (a *Artifact) Validate() error {
	if a.ArtifactID == "" {
		return fmt.Errorf("artifact ID cannot be empty")
	}
	if len(a.Parts) == 0 {
		return fmt.Errorf("artifact must contain at least one part")
	}
	return nil
}

// TaskStatusUpdateEvent reports a task state transition. Final marks the last
// status event of the stream; a final event with a terminal state moves the
// task toward settlement.
type TaskStatusUpdateEvent struct {
	Kind      EventKind      `json:"kind"`
	TaskID    string         `json:"taskId"`
	ContextID string         `json:"contextId"`
	Status    TaskStatus     `json:"status"`
	Final     bool           `json:"final"`
	Metadata  map[string]any `json:"metadata,omitzero"`
}

// NewTaskStatusUpdateEvent creates a status update event for the given task,
// stamping the status with the current time.
func NewTaskStatusUpdateEvent(taskID, contextID string, status TaskStatus, final bool) *TaskStatusUpdateEvent {
	if status.Timestamp == "" {
		status.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	return &TaskStatusUpdateEvent{
		Kind:      EventKindStatusUpdate,
		TaskID:    taskID,
		ContextID: contextID,
		Status:    status,
		Final:     final,
	}
}

// TaskArtifactUpdateEvent reports a produced or updated artifact.
type TaskArtifactUpdateEvent struct {
	Kind      EventKind      `json:"kind"`
	TaskID    string         `json:"taskId"`
	ContextID string         `json:"contextId"`
	Artifact  *Artifact      `json:"artifact"`
	Append    bool           `json:"append,omitzero"`
	Metadata  map[string]any `json:"metadata,omitzero"`
}

// GetEventKind implements Event.
func (m *Message) GetEventKind() EventKind { return EventKindMessage }

// GetTaskID implements Event.
func (m *Message) GetTaskID() string { return m.TaskID }

// GetEventKind implements Event.
func (t *Task) GetEventKind() EventKind { return EventKindTask }

// GetTaskID implements Event.
func (t *Task) GetTaskID() string { return t.ID }

// GetEventKind implements Event.
func (e *TaskStatusUpdateEvent) GetEventKind() EventKind { return EventKindStatusUpdate }

// GetTaskID implements Event.
func (e *TaskStatusUpdateEvent) GetTaskID() string { return e.TaskID }

// GetEventKind implements Event.
func (e *TaskArtifactUpdateEvent) GetEventKind() EventKind { return EventKindArtifactUpdate }

// GetTaskID implements Event.
func (e *TaskArtifactUpdateEvent) GetTaskID() string { return e.TaskID }

var (
	_ Event = (*Message)(nil)
	_ Event = (*Task)(nil)
	_ Event = (*TaskStatusUpdateEvent)(nil)
	_ Event = (*TaskArtifactUpdateEvent)(nil)
)

// IsFinalEvent determines if an event terminates its stream. A final event is
// a status update with Final set, a message, or a task snapshot already in a
// terminal state.
func IsFinalEvent(event Event) bool {
	switch e := event.(type) {
	case *TaskStatusUpdateEvent:
		return e.Final
	case *Message:
		return true
	case *Task:
		return e.Status.State.Terminal()
	default:
		return false
	}
}
