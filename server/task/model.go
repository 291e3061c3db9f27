// Copyright 2025 Nevermined AG
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	payments "github.com/nevermined-io/payments-go"
)

// StatusColumn serializes a TaskStatus into a JSON database column.
type StatusColumn struct {
	payments.TaskStatus
}

// Value implements driver.Valuer.
func (c StatusColumn) Value() (driver.Value, error) {
	return json.Marshal(c.TaskStatus)
}

// Scan implements sql.Scanner.
func (c *StatusColumn) Scan(value any) error {
	bytes, err := columnBytes(value, "StatusColumn")
	if err != nil {
		return err
	}
	if bytes == nil {
		*c = StatusColumn{}
		return nil
	}
	return json.Unmarshal(bytes, &c.TaskStatus)
}

// MessagesColumn serializes a message history into a JSON database column.
type MessagesColumn struct {
	Messages []*payments.Message
}

// Value implements driver.Valuer.
func (c MessagesColumn) Value() (driver.Value, error) {
	if c.Messages == nil {
		return nil, nil
	}
	return json.Marshal(c.Messages)
}

// Scan implements sql.Scanner.
func (c *MessagesColumn) Scan(value any) error {
	bytes, err := columnBytes(value, "MessagesColumn")
	if err != nil {
		return err
	}
	if bytes == nil {
		*c = MessagesColumn{}
		return nil
	}
	return json.Unmarshal(bytes, &c.Messages)
}

// ArtifactsColumn serializes task artifacts into a JSON database column.
type ArtifactsColumn struct {
	Artifacts []*payments.Artifact
}

// Value implements driver.Valuer.
func (c ArtifactsColumn) Value() (driver.Value, error) {
	if c.Artifacts == nil {
		return nil, nil
	}
	return json.Marshal(c.Artifacts)
}

// Scan implements sql.Scanner.
func (c *ArtifactsColumn) Scan(value any) error {
	bytes, err := columnBytes(value, "ArtifactsColumn")
	if err != nil {
		return err
	}
	if bytes == nil {
		*c = ArtifactsColumn{}
		return nil
	}
	return json.Unmarshal(bytes, &c.Artifacts)
}

// MetadataColumn serializes task metadata into a JSON database column.
type MetadataColumn struct {
	Metadata map[string]any
}

// Value implements driver.Valuer.
func (c MetadataColumn) Value() (driver.Value, error) {
	if c.Metadata == nil {
		return nil, nil
	}
	return json.Marshal(c.Metadata)
}

// Scan implements sql.Scanner.
func (c *MetadataColumn) Scan(value any) error {
	bytes, err := columnBytes(value, "MetadataColumn")
	if err != nil {
		return err
	}
	if bytes == nil {
		*c = MetadataColumn{}
		return nil
	}
	return json.Unmarshal(bytes, &c.Metadata)
}

func columnBytes(value any, column string) ([]byte, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("cannot scan %T into %s", value, column)
	}
}

// TaskModel is the database row representation of a task.
type TaskModel struct {
	ID        string          `gorm:"primaryKey;column:id"`
	ContextID string          `gorm:"column:context_id;index"`
	Status    StatusColumn    `gorm:"column:status;type:json"`
	History   MessagesColumn  `gorm:"column:history;type:json"`
	Artifacts ArtifactsColumn `gorm:"column:artifacts;type:json"`
	Metadata  MetadataColumn  `gorm:"column:metadata;type:json"`
	UpdatedAt time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName implements the gorm table name convention.
func (TaskModel) TableName() string { return "tasks" }

// NewTaskModel converts a protocol task into its database row.
func NewTaskModel(task *payments.Task) (*TaskModel, error) {
	if task == nil {
		return nil, fmt.Errorf("task cannot be nil")
	}
	return &TaskModel{
		ID:        task.ID,
		ContextID: task.ContextID,
		Status:    StatusColumn{TaskStatus: task.Status},
		History:   MessagesColumn{Messages: task.History},
		Artifacts: ArtifactsColumn{Artifacts: task.Artifacts},
		Metadata:  MetadataColumn{Metadata: task.Metadata},
	}, nil
}

// ToTask converts a database row back into a protocol task.
func (m *TaskModel) ToTask() (*payments.Task, error) {
	task := &payments.Task{
		ID:        m.ID,
		ContextID: m.ContextID,
		Kind:      payments.EventKindTask,
		Status:    m.Status.TaskStatus,
		History:   m.History.Messages,
		Artifacts: m.Artifacts.Artifacts,
		Metadata:  m.Metadata.Metadata,
	}
	if err := task.Validate(); err != nil {
		return nil, fmt.Errorf("invalid task row %s: %w", m.ID, err)
	}
	return task, nil
}
