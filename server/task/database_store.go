// Copyright 2025 Nevermined AG
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	payments "github.com/nevermined-io/payments-go"
)

// DatabaseStore is a Store backed by a GORM database connection. The caller
// owns the connection and its driver.
type DatabaseStore struct {
	db *gorm.DB
}

var _ Store = (*DatabaseStore)(nil)

// DatabaseStoreConfig holds configuration for DatabaseStore.
type DatabaseStoreConfig struct {
	DB *gorm.DB
	// Migrate creates the tasks table when set.
	Migrate bool
}

// NewDatabaseStore creates a database-backed task store.
func NewDatabaseStore(config DatabaseStoreConfig) (*DatabaseStore, error) {
	if config.DB == nil {
		return nil, fmt.Errorf("database connection cannot be nil")
	}
	if config.Migrate {
		if err := config.DB.AutoMigrate(&TaskModel{}); err != nil {
			return nil, fmt.Errorf("failed to migrate tasks table: %w", err)
		}
	}
	return &DatabaseStore{db: config.DB}, nil
}

// Save persists a task.
func (s *DatabaseStore) Save(ctx context.Context, task *payments.Task) error {
	if task == nil {
		return fmt.Errorf("task cannot be nil")
	}
	if err := task.Validate(); err != nil {
		return StoreError{Operation: "save", TaskID: task.ID, Err: err}
	}

	model, err := NewTaskModel(task)
	if err != nil {
		return StoreError{Operation: "save", TaskID: task.ID, Err: err}
	}
	if err := s.db.WithContext(ctx).Save(model).Error; err != nil {
		return StoreError{Operation: "save", TaskID: task.ID, Err: err}
	}
	return nil
}

// Get retrieves a task by its ID.
func (s *DatabaseStore) Get(ctx context.Context, taskID string) (*payments.Task, error) {
	if taskID == "" {
		return nil, fmt.Errorf("task ID cannot be empty")
	}

	var model TaskModel
	if err := s.db.WithContext(ctx).Where("id = ?", taskID).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, payments.TaskNotFoundError{TaskID: taskID}
		}
		return nil, StoreError{Operation: "get", TaskID: taskID, Err: err}
	}
	return model.ToTask()
}

// Delete removes a task.
func (s *DatabaseStore) Delete(ctx context.Context, taskID string) error {
	if err := s.db.WithContext(ctx).Where("id = ?", taskID).Delete(&TaskModel{}).Error; err != nil {
		return StoreError{Operation: "delete", TaskID: taskID, Err: err}
	}
	return nil
}
