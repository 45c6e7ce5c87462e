package store

import (
	"context"
	"sync"

	"github.com/mediflow/triage-engine/internal/model"
)

// MemoryStore keeps records in a map, with the same conditional-write
// semantics as the Postgres store. Used in development mode and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*model.ConversationRecord
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*model.ConversationRecord)}
}

// Load returns a deep copy so callers cannot mutate stored state.
func (s *MemoryStore) Load(_ context.Context, sessionID string) (*model.ConversationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	return rec.Clone(), nil
}

// Create inserts a new record at version 1.
func (s *MemoryStore) Create(_ context.Context, rec *model.ConversationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[rec.SessionID]; ok {
		return ErrVersionConflict
	}
	rec.Version = 1
	s.records[rec.SessionID] = rec.Clone()
	return nil
}

// Save writes conditionally against the stored version.
func (s *MemoryStore) Save(_ context.Context, previousVersion int64, rec *model.ConversationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.records[rec.SessionID]
	if !ok {
		return ErrNotFound
	}
	if cur.Version != previousVersion {
		return ErrVersionConflict
	}
	rec.Version = previousVersion + 1
	s.records[rec.SessionID] = rec.Clone()
	return nil
}

// Ping always succeeds for the in-memory store.
func (s *MemoryStore) Ping(context.Context) error {
	return nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}
