// Copyright 2025 Nevermined AG
// SPDX-License-Identifier: Apache-2.0

package payments

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Role represents the role of a message sender.
type Role string

// Role constants for message senders.
const (
	RoleAgent Role = "agent"
	RoleUser  Role = "user"
)

// Part kinds.
const (
	PartKindText = "text"
	PartKindData = "data"
)

// Part is one element of a message's content.
type Part struct {
	Kind string         `json:"kind"`
	Text string         `json:"text,omitzero"`
	Data map[string]any `json:"data,omitzero"`
}

// NewTextPart creates a text part with the given content.
func NewTextPart(text string) Part {
	return Part{Kind: PartKindText, Text: text}
}

// Validate ensures the Part is valid.
func (p Part) Validate() error {
	switch p.Kind {
	case PartKindText:
		if p.Text == "" {
			return fmt.Errorf("text part content cannot be empty")
		}
	case PartKindData:
		if p.Data == nil {
			return fmt.Errorf("data part content cannot be nil")
		}
	default:
		return fmt.Errorf("invalid part kind: %q", p.Kind)
	}
	return nil
}

// Message is a single user or agent utterance exchanged over the protocol.
type Message struct {
	Kind      EventKind      `json:"kind"`
	MessageID string         `json:"messageId"`
	Role      Role           `json:"role"`
	Parts     []Part         `json:"parts"`
	TaskID    string         `json:"taskId,omitzero"`
	ContextID string         `json:"contextId,omitzero"`
	Metadata  map[string]any `json:"metadata,omitzero"`
}

// Validate ensures the Message is valid.
func (m *Message) Validate() error {
	if m.MessageID == "" {
		return fmt.Errorf("message ID cannot be empty")
	}
	if m.Role != RoleAgent && m.Role != RoleUser {
		return fmt.Errorf("invalid message role: %q", m.Role)
	}
	if len(m.Parts) == 0 {
		return fmt.Errorf("message must contain at least one part")
	}
	for i, part := range m.Parts {
		if err := part.Validate(); err != nil {
			return fmt.Errorf("message part at index %d is invalid: %w", i, err)
		}
	}
	return nil
}

// Text returns the concatenated content of all text parts, separated by
// newlines.
func (m *Message) Text() string {
	var texts []string
	for _, part := range m.Parts {
		if part.Kind == PartKindText {
			texts = append(texts, part.Text)
		}
	}
	return strings.Join(texts, "\n")
}

func (m *Message) clone() *Message {
	dup := *m
	dup.Parts = make([]Part, len(m.Parts))
	copy(dup.Parts, m.Parts)
	return &dup
}

// NewAgentTextMessage creates an agent message containing a single text part,
// attributed to the given task and context.
func NewAgentTextMessage(text, taskID, contextID string) *Message {
	return &Message{
		Kind:      EventKindMessage,
		MessageID: uuid.NewString(),
		Role:      RoleAgent,
		Parts:     []Part{NewTextPart(text)},
		TaskID:    taskID,
		ContextID: contextID,
	}
}
