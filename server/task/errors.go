// Copyright 2025 Nevermined AG
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"fmt"

	payments "github.com/nevermined-io/payments-go"
)

// NotUpdatableError indicates an attempt to update a task already in a
// terminal state.
type NotUpdatableError struct {
	TaskID string
	State  payments.TaskState
}

func (e NotUpdatableError) Error() string {
	return fmt.Sprintf("task %s in state %s cannot be updated", e.TaskID, e.State)
}

// StoreError wraps a failure of the underlying task store.
type StoreError struct {
	Operation string
	TaskID    string
	Err       error
}

func (e StoreError) Error() string {
	return fmt.Sprintf("task store %s failed for task %s: %v", e.Operation, e.TaskID, e.Err)
}

// Unwrap returns the underlying error.
func (e StoreError) Unwrap() error {
	return e.Err
}
