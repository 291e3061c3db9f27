// Copyright 2025 Nevermined AG
// SPDX-License-Identifier: Apache-2.0

package event

import "sync"

// Manager tracks the live event queue of each in-flight task.
type Manager interface {
	// Get returns the queue for a task, creating it if necessary.
	Get(taskID string) (*Queue, error)
	// Lookup returns the queue for a task, or ErrNoQueue when none exists.
	// Used by resubscribe, which must not create a queue for a task it is
	// not driving.
	Lookup(taskID string) (*Queue, error)
	// Tap creates a child queue receiving copies of all events enqueued to
	// the task's queue.
	Tap(taskID string) (*Queue, error)
	// Close closes and removes the queue for a task.
	Close(taskID string) error
	// CloseAll closes all managed queues.
	CloseAll() error
}

// InMemoryManager is a map-backed Manager for single-process deployments.
type InMemoryManager struct {
	mu      sync.RWMutex
	queues  map[string]*Queue
	maxSize int
}

var _ Manager = (*InMemoryManager)(nil)

// NewInMemoryManager creates a manager whose queues have the given capacity.
func NewInMemoryManager(maxQueueSize int) *InMemoryManager {
	if maxQueueSize <= 0 {
		maxQueueSize = DefaultMaxQueueSize
	}
	return &InMemoryManager{
		queues:  make(map[string]*Queue),
		maxSize: maxQueueSize,
	}
}

// Get returns the queue for a task, creating it if necessary.
func (m *InMemoryManager) Get(taskID string) (*Queue, error) {
	m.mu.RLock()
	queue, exists := m.queues[taskID]
	m.mu.RUnlock()
	if exists {
		return queue, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if queue, exists = m.queues[taskID]; exists {
		return queue, nil
	}
	queue, err := NewQueue(m.maxSize)
	if err != nil {
		return nil, err
	}
	m.queues[taskID] = queue
	return queue, nil
}

// Lookup returns the queue for a task without creating one.
func (m *InMemoryManager) Lookup(taskID string) (*Queue, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	queue, exists := m.queues[taskID]
	if !exists {
		return nil, ErrNoQueue
	}
	return queue, nil
}

// Tap creates a child queue for the specified task.
func (m *InMemoryManager) Tap(taskID string) (*Queue, error) {
	queue, err := m.Lookup(taskID)
	if err != nil {
		return nil, err
	}
	return queue.Tap()
}

// Close closes and removes the queue for a task.
func (m *InMemoryManager) Close(taskID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	queue, exists := m.queues[taskID]
	if !exists {
		return nil
	}
	delete(m.queues, taskID)
	return queue.Close()
}

// CloseAll closes all managed queues.
func (m *InMemoryManager) CloseAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var firstErr error
	for taskID, queue := range m.queues {
		if err := queue.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(m.queues, taskID)
	}
	return firstErr
}

// Size returns the number of managed queues.
func (m *InMemoryManager) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.queues)
}
