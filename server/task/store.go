// Copyright 2025 Nevermined AG
// SPDX-License-Identifier: Apache-2.0

// Package task provides task persistence, the event-applying task manager
// helpers, and storage for push notification configurations.
package task

import (
	"context"

	payments "github.com/nevermined-io/payments-go"
)

// Store defines the interface for task persistence.
type Store interface {
	// Save persists a task, creating or updating it.
	Save(ctx context.Context, task *payments.Task) error

	// Get retrieves a task by its ID. Returns payments.TaskNotFoundError
	// when the task does not exist.
	Get(ctx context.Context, taskID string) (*payments.Task, error)

	// Delete removes a task. Deleting an absent task is not an error.
	Delete(ctx context.Context, taskID string) error
}

// PushConfigStore stores caller-registered webhook targets keyed by task id.
type PushConfigStore interface {
	// Set saves or replaces the push notification config for a task.
	Set(ctx context.Context, taskID string, config *payments.PushNotificationConfig) error

	// Get retrieves the push notification config for a task. Returns
	// payments.TaskNotFoundError when no config is registered.
	Get(ctx context.Context, taskID string) (*payments.PushNotificationConfig, error)

	// Delete removes the push notification config for a task.
	Delete(ctx context.Context, taskID string) error
}
