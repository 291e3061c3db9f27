// Copyright 2025 Nevermined AG
// SPDX-License-Identifier: Apache-2.0

package payment

import "sync"

// PendingSettlement is a settlement queued by a batch redemption strategy,
// waiting for the batch-settlement job to consume it.
type PendingSettlement struct {
	PaymentProof string
	AccessToken  string
	CreditsUsed  uint64
}

// PendingStore holds queued batch settlements keyed by operation name or
// task id. Entries are consumed exactly once via Take, or discarded on
// error.
type PendingStore struct {
	mu      sync.Mutex
	entries map[string]PendingSettlement
}

// NewPendingStore creates an empty pending settlement store.
func NewPendingStore() *PendingStore {
	return &PendingStore{
		entries: make(map[string]PendingSettlement),
	}
}

// Put queues a settlement under the given key, replacing any previous entry.
func (s *PendingStore) Put(key string, entry PendingSettlement) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = entry
}

// Take removes and returns the settlement queued under key.
func (s *PendingStore) Take(key string) (PendingSettlement, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.entries[key]
	if exists {
		delete(s.entries, key)
	}
	return entry, exists
}

// Discard drops the settlement queued under key, if any.
func (s *PendingStore) Discard(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
}

// Drain removes and returns all queued settlements, for consumption by a
// batch-settlement job.
func (s *PendingStore) Drain() map[string]PendingSettlement {
	s.mu.Lock()
	defer s.mu.Unlock()

	drained := s.entries
	s.entries = make(map[string]PendingSettlement)
	return drained
}
