// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package store holds the in-memory task record map and answers
// point-in-time queries about it. Writes come only from the orchestrator;
// every read hands out an independent copy. See docs/ARCHITECTURE § Query
// Surface.
package store

import (
	"errors"
	"sync"

	"github.com/pdiddy/docmark/pkg/types"
)

// ErrNotFound is returned when no record exists for a task id.
var ErrNotFound = errors.New("task not found")

// Store is the id -> record map shared between the orchestrator (writer)
// and any number of readers.
type Store struct {
	mu      sync.RWMutex
	records map[string]types.TaskRecord
	order   []string // ids in insertion order
}

// New creates an empty store.
func New() *Store {
	return &Store{records: make(map[string]types.TaskRecord)}
}

// Put inserts or replaces the record for rec.ID with a snapshot copy.
func (s *Store) Put(rec types.TaskRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[rec.ID]; !exists {
		s.order = append(s.order, rec.ID)
	}
	s.records[rec.ID] = rec.Clone()
}

// Get returns a copy of the record for id, or ErrNotFound.
func (s *Store) Get(id string) (types.TaskRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return types.TaskRecord{}, ErrNotFound
	}
	return rec.Clone(), nil
}

// List returns copies of all records in insertion order.
func (s *Store) List() []types.TaskRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.TaskRecord, 0, len(s.order))
	for _, id := range s.order {
		if rec, ok := s.records[id]; ok {
			out = append(out, rec.Clone())
		}
	}
	return out
}

// Aggregate counts current records by status. Computed on demand from the
// records themselves, so it can never drift from them.
func (s *Store) Aggregate() types.Aggregate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var agg types.Aggregate
	for _, rec := range s.records {
		agg.Add(rec.Status)
	}
	return agg
}

// Forget removes the record for id. Used when evicting finished tasks.
func (s *Store) Forget(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return
	}
	delete(s.records, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}
