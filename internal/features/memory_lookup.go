package features

import (
	"context"
	"sync"
)

// MemoryLookup is an in-memory feature store for demo/test use.
// Safe for concurrent use.
type MemoryLookup struct {
	mu       sync.RWMutex
	entities map[string]map[string]Value // entityID → feature name → value
}

// NewMemoryLookup creates an empty in-memory feature store.
func NewMemoryLookup() *MemoryLookup {
	return &MemoryLookup{entities: make(map[string]map[string]Value)}
}

// Set stores one feature value for an entity.
func (m *MemoryLookup) Set(entityID, name string, v Value) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.entities[entityID] == nil {
		m.entities[entityID] = make(map[string]Value)
	}
	m.entities[entityID][name] = v
}

// Get returns the requested features for an entity. Unknown features and
// unknown entities come back absent, never as errors.
func (m *MemoryLookup) Get(_ context.Context, entityID string, names []string) (map[string]Value, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stored := m.entities[entityID]
	result := make(map[string]Value, len(names))
	for _, name := range names {
		if v, ok := stored[name]; ok {
			result[name] = v
		} else {
			result[name] = Absent()
		}
	}
	return result, nil
}

// Compile-time assertion.
var _ Lookup = (*MemoryLookup)(nil)
