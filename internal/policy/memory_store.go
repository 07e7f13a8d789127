package policy

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory implementation of Store for demo/test use.
type MemoryStore struct {
	mu       sync.RWMutex
	policies map[string]*Policy // tenantID + "/" + module
}

// NewMemoryStore creates an in-memory policy store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{policies: make(map[string]*Policy)}
}

func key(tenantID, module string) string { return tenantID + "/" + module }

func (s *MemoryStore) Get(_ context.Context, tenantID, module string) (*Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.policies[key(tenantID, module)]
	if !ok {
		return nil, &UnknownPolicyError{TenantID: tenantID, Module: module}
	}
	cp := clone(p)
	return cp, nil
}

func (s *MemoryStore) Put(_ context.Context, p *Policy) error {
	if err := p.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policies[key(p.TenantID, p.Module)] = clone(p)
	return nil
}

func (s *MemoryStore) ListByTenant(_ context.Context, tenantID string) ([]*Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*Policy
	for _, p := range s.policies {
		if p.TenantID == tenantID {
			result = append(result, clone(p))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Module < result[j].Module })
	return result, nil
}

// clone deep-copies a policy so callers cannot mutate stored state.
func clone(p *Policy) *Policy {
	cp := *p
	cp.SourceWeights = make(map[string]float64, len(p.SourceWeights))
	for k, v := range p.SourceWeights {
		cp.SourceWeights[k] = v
	}
	if p.MinSurvivingWeight != nil {
		w := *p.MinSurvivingWeight
		cp.MinSurvivingWeight = &w
	}
	return &cp
}

var _ Store = (*MemoryStore)(nil)
