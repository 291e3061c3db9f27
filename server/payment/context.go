// Copyright 2025 Nevermined AG
// SPDX-License-Identifier: Apache-2.0

// Package payment implements the payment-metered middleware core: the
// correlation store binding HTTP auth contexts to asynchronous tasks, the
// entitlement validator, the redemption strategies, and the finalizer that
// settles credits exactly once when a task reaches a terminal state.
package payment

import (
	"context"
	"errors"
	"sync"
)

// ErrContextNotFound is returned when no HTTP request context is registered
// for a task or message. Where a context is structurally required this is an
// internal consistency failure, never a user error.
var ErrContextNotFound = errors.New("no request context registered")

// HTTPRequestContext is the short-lived correlation record created at the
// HTTP boundary, before the task id is known. It is keyed by message id
// first, migrated to the task id once the task exists, and claimed
// atomically by the finalization pass that settles the task.
type HTTPRequestContext struct {
	BearerToken         string
	URLRequested        string
	HTTPMethodRequested string
	Validation          *ValidationResult
}

// AuthResult is the immutable per-task authentication snapshot handed to the
// executor.
type AuthResult struct {
	RequestID    string
	Token        string
	AgentID      string
	AgentRequest map[string]any
}

// ContextStore correlates message and task identifiers with their
// originating HTTP request context.
type ContextStore interface {
	// SetForMessage registers a context under a client-supplied message id.
	SetForMessage(ctx context.Context, messageID string, reqCtx *HTTPRequestContext) error

	// SetForTask registers a context under a server-assigned task id.
	SetForTask(ctx context.Context, taskID string, reqCtx *HTTPRequestContext) error

	// GetForMessage returns the context registered for a message id, or
	// ErrContextNotFound.
	GetForMessage(ctx context.Context, messageID string) (*HTTPRequestContext, error)

	// GetForTask returns the context registered for a task id, or
	// ErrContextNotFound.
	GetForTask(ctx context.Context, taskID string) (*HTTPRequestContext, error)

	// Migrate re-keys a message-scoped context to its task id and removes
	// the message-keyed entry.
	Migrate(ctx context.Context, messageID, taskID string) error

	// TakeForTask removes and returns the task-keyed entry in one atomic
	// step, or ErrContextNotFound. Concurrent callers racing over the same
	// task id see exactly one winner; the finalizer relies on this for its
	// exactly-once settlement guarantee.
	TakeForTask(ctx context.Context, taskID string) (*HTTPRequestContext, error)

	// DeleteForTask removes the task-keyed entry.
	DeleteForTask(ctx context.Context, taskID string) error
}

// InMemoryContextStore is a map-backed ContextStore for single-process
// deployments. Horizontally scaled deployments need a shared backend with
// the same contract.
type InMemoryContextStore struct {
	mu        sync.RWMutex
	byMessage map[string]*HTTPRequestContext
	byTask    map[string]*HTTPRequestContext
}

var _ ContextStore = (*InMemoryContextStore)(nil)

// NewInMemoryContextStore creates an empty context store.
func NewInMemoryContextStore() *InMemoryContextStore {
	return &InMemoryContextStore{
		byMessage: make(map[string]*HTTPRequestContext),
		byTask:    make(map[string]*HTTPRequestContext),
	}
}

// SetForMessage registers a context under a message id.
func (s *InMemoryContextStore) SetForMessage(ctx context.Context, messageID string, reqCtx *HTTPRequestContext) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byMessage[messageID] = reqCtx
	return nil
}

// SetForTask registers a context under a task id.
func (s *InMemoryContextStore) SetForTask(ctx context.Context, taskID string, reqCtx *HTTPRequestContext) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byTask[taskID] = reqCtx
	return nil
}

// GetForMessage returns the context registered for a message id.
func (s *InMemoryContextStore) GetForMessage(ctx context.Context, messageID string) (*HTTPRequestContext, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	reqCtx, exists := s.byMessage[messageID]
	if !exists {
		return nil, ErrContextNotFound
	}
	return reqCtx, nil
}

// GetForTask returns the context registered for a task id.
func (s *InMemoryContextStore) GetForTask(ctx context.Context, taskID string) (*HTTPRequestContext, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	reqCtx, exists := s.byTask[taskID]
	if !exists {
		return nil, ErrContextNotFound
	}
	return reqCtx, nil
}

// Migrate re-keys a message-scoped context to its task id.
func (s *InMemoryContextStore) Migrate(ctx context.Context, messageID, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	reqCtx, exists := s.byMessage[messageID]
	if !exists {
		return ErrContextNotFound
	}
	s.byTask[taskID] = reqCtx
	delete(s.byMessage, messageID)
	return nil
}

// TakeForTask removes and returns the task-keyed entry under a single lock.
func (s *InMemoryContextStore) TakeForTask(ctx context.Context, taskID string) (*HTTPRequestContext, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reqCtx, exists := s.byTask[taskID]
	if !exists {
		return nil, ErrContextNotFound
	}
	delete(s.byTask, taskID)
	return reqCtx, nil
}

// DeleteForTask removes the task-keyed entry.
func (s *InMemoryContextStore) DeleteForTask(ctx context.Context, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byTask, taskID)
	return nil
}

// Resolve looks a context up by task id first, falling back to the message
// id. A miss on both means the HTTP boundary and the task-processing
// boundary are out of sync and must never silently proceed.
func Resolve(ctx context.Context, store ContextStore, taskID, messageID string) (*HTTPRequestContext, error) {
	if taskID != "" {
		if reqCtx, err := store.GetForTask(ctx, taskID); err == nil {
			return reqCtx, nil
		}
	}
	if messageID != "" {
		if reqCtx, err := store.GetForMessage(ctx, messageID); err == nil {
			return reqCtx, nil
		}
	}
	return nil, ErrContextNotFound
}
