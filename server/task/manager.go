// Copyright 2025 Nevermined AG
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	payments "github.com/nevermined-io/payments-go"
)

// Manager maintains one task's persisted state during request execution,
// applying events from the executor as they arrive.
type Manager interface {
	// GetTask retrieves the current task from memory or storage.
	GetTask(ctx context.Context) (*payments.Task, error)

	// Process applies a task-related event: merges it into the task state
	// and persists the result. Non task-related events are ignored.
	Process(ctx context.Context, event payments.Event) error

	// TaskID returns the task id this manager drives.
	TaskID() string
}

// ManagerConfig holds configuration for creating a Manager.
type ManagerConfig struct {
	TaskID    string
	ContextID string
	Store     Store
	Logger    *slog.Logger
}

type defaultManager struct {
	taskID    string
	contextID string
	store     Store
	logger    *slog.Logger

	mu   sync.Mutex
	task *payments.Task
}

var _ Manager = (*defaultManager)(nil)

// NewManager creates a Manager for one task.
func NewManager(config ManagerConfig) (Manager, error) {
	if config.TaskID == "" {
		return nil, fmt.Errorf("task ID cannot be empty")
	}
	if config.Store == nil {
		return nil, fmt.Errorf("task store cannot be nil")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &defaultManager{
		taskID:    config.TaskID,
		contextID: config.ContextID,
		store:     config.Store,
		logger:    logger,
	}, nil
}

// GetTask retrieves the current task from memory or storage.
func (m *defaultManager) GetTask(ctx context.Context) (*payments.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getTaskLocked(ctx)
}

func (m *defaultManager) getTaskLocked(ctx context.Context) (*payments.Task, error) {
	if m.task != nil {
		return m.task, nil
	}
	task, err := m.store.Get(ctx, m.taskID)
	if err != nil {
		return nil, err
	}
	m.task = task
	return task, nil
}

// Process applies a task-related event and persists the updated state.
func (m *defaultManager) Process(ctx context.Context, event payments.Event) error {
	if event.GetTaskID() != "" && event.GetTaskID() != m.taskID {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	switch e := event.(type) {
	case *payments.Task:
		m.task = e
		return m.saveLocked(ctx)

	case *payments.TaskStatusUpdateEvent:
		task, err := m.getTaskLocked(ctx)
		if err != nil {
			return err
		}
		if task.Status.State.Terminal() {
			return NotUpdatableError{TaskID: task.ID, State: task.Status.State}
		}
		task.Status = e.Status
		if e.Status.Message != nil {
			task.History = append(task.History, e.Status.Message)
		}
		if len(e.Metadata) > 0 {
			if task.Metadata == nil {
				task.Metadata = make(map[string]any, len(e.Metadata))
			}
			for k, v := range e.Metadata {
				task.Metadata[k] = v
			}
		}
		return m.saveLocked(ctx)

	case *payments.TaskArtifactUpdateEvent:
		task, err := m.getTaskLocked(ctx)
		if err != nil {
			return err
		}
		if e.Append {
			task.Artifacts = append(task.Artifacts, e.Artifact)
		} else {
			task.Artifacts = replaceArtifact(task.Artifacts, e.Artifact)
		}
		return m.saveLocked(ctx)

	case *payments.Message:
		task, err := m.getTaskLocked(ctx)
		if err != nil {
			var notFound payments.TaskNotFoundError
			if errors.As(err, &notFound) {
				// A bare message stream never materialized a task.
				return nil
			}
			return err
		}
		task.History = append(task.History, e)
		return m.saveLocked(ctx)

	default:
		m.logger.Debug("ignoring unknown event kind", "task_id", m.taskID)
		return nil
	}
}

func (m *defaultManager) saveLocked(ctx context.Context) error {
	if err := m.store.Save(ctx, m.task); err != nil {
		return StoreError{Operation: "save", TaskID: m.taskID, Err: err}
	}
	return nil
}

// TaskID returns the task id this manager drives.
func (m *defaultManager) TaskID() string { return m.taskID }

func replaceArtifact(artifacts []*payments.Artifact, artifact *payments.Artifact) []*payments.Artifact {
	for i, a := range artifacts {
		if a.ArtifactID == artifact.ArtifactID {
			artifacts[i] = artifact
			return artifacts
		}
	}
	return append(artifacts, artifact)
}
