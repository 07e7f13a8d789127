package decisions

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory implementation of Store for demo/test use.
type MemoryStore struct {
	mu      sync.RWMutex
	byID    map[string]*Record
	byEvent map[string]string // eventID → record ID
	order   []string          // insertion order of record IDs
}

// NewMemoryStore creates an in-memory decision record store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:    make(map[string]*Record),
		byEvent: make(map[string]string),
	}
}

func (s *MemoryStore) Create(_ context.Context, rec *Record) (*Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existingID, ok := s.byEvent[rec.EventID]; ok {
		cp := *s.byID[existingID]
		return &cp, false, nil
	}

	cp := *rec
	s.byID[rec.ID] = &cp
	s.byEvent[rec.EventID] = rec.ID
	s.order = append(s.order, rec.ID)

	out := cp
	return &out, true, nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.byID[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	cp := *rec
	return &cp, nil
}

func (s *MemoryStore) GetByEvent(_ context.Context, eventID string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEvent[eventID]
	if !ok {
		return nil, ErrRecordNotFound
	}
	cp := *s.byID[id]
	return &cp, nil
}

func (s *MemoryStore) RecordOutcome(_ context.Context, id string, outcome Outcome) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	if rec.Outcome != OutcomeUnknown && rec.Outcome != "" {
		return nil, &DuplicateOutcomeError{RecordID: id, Existing: rec.Outcome}
	}

	now := time.Now().UTC()
	rec.Outcome = outcome
	rec.OutcomeAt = &now

	cp := *rec
	return &cp, nil
}

func (s *MemoryStore) ListByTenant(_ context.Context, tenantID string, limit int) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*Record
	// Most recent first.
	for i := len(s.order) - 1; i >= 0 && (limit <= 0 || len(result) < limit); i-- {
		rec := s.byID[s.order[i]]
		if rec.TenantID == tenantID {
			cp := *rec
			result = append(result, &cp)
		}
	}
	return result, nil
}

var _ Store = (*MemoryStore)(nil)
