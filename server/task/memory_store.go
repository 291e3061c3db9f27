// Copyright 2025 Nevermined AG
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"context"
	"fmt"
	"sync"

	payments "github.com/nevermined-io/payments-go"
)

// InMemoryStore is a map-backed Store. Task data is lost when the process
// stops; use DatabaseStore for durable deployments.
type InMemoryStore struct {
	mu    sync.RWMutex
	tasks map[string]*payments.Task
}

var _ Store = (*InMemoryStore)(nil)

// NewInMemoryStore creates an empty in-memory task store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		tasks: make(map[string]*payments.Task),
	}
}

// Save persists a task.
func (s *InMemoryStore) Save(ctx context.Context, task *payments.Task) error {
	if task == nil {
		return fmt.Errorf("task cannot be nil")
	}
	if err := task.Validate(); err != nil {
		return StoreError{Operation: "save", TaskID: task.ID, Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[task.ID] = task
	return nil
}

// Get retrieves a task by its ID.
func (s *InMemoryStore) Get(ctx context.Context, taskID string) (*payments.Task, error) {
	if taskID == "" {
		return nil, fmt.Errorf("task ID cannot be empty")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	task, exists := s.tasks[taskID]
	if !exists {
		return nil, payments.TaskNotFoundError{TaskID: taskID}
	}
	return task, nil
}

// Delete removes a task.
func (s *InMemoryStore) Delete(ctx context.Context, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tasks, taskID)
	return nil
}

// InMemoryPushConfigStore is a map-backed PushConfigStore.
type InMemoryPushConfigStore struct {
	mu      sync.RWMutex
	configs map[string]*payments.PushNotificationConfig
}

var _ PushConfigStore = (*InMemoryPushConfigStore)(nil)

// NewInMemoryPushConfigStore creates an empty in-memory push config store.
func NewInMemoryPushConfigStore() *InMemoryPushConfigStore {
	return &InMemoryPushConfigStore{
		configs: make(map[string]*payments.PushNotificationConfig),
	}
}

// Set saves or replaces the push notification config for a task.
func (s *InMemoryPushConfigStore) Set(ctx context.Context, taskID string, config *payments.PushNotificationConfig) error {
	if taskID == "" {
		return fmt.Errorf("task ID cannot be empty")
	}
	if config == nil {
		return fmt.Errorf("push notification config cannot be nil")
	}
	if err := config.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.configs[taskID] = config
	return nil
}

// Get retrieves the push notification config for a task.
func (s *InMemoryPushConfigStore) Get(ctx context.Context, taskID string) (*payments.PushNotificationConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	config, exists := s.configs[taskID]
	if !exists {
		return nil, payments.TaskNotFoundError{TaskID: taskID}
	}
	return config, nil
}

// Delete removes the push notification config for a task.
func (s *InMemoryPushConfigStore) Delete(ctx context.Context, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.configs, taskID)
	return nil
}
