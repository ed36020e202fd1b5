// Package store provides organization persistence. The memory implementation
// backs unit tests and development; postgres backs production.
package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"certportal/internal/org/models"
	id "certportal/pkg/domain"
	"certportal/pkg/platform/sentinel"
)

// MemoryStore keeps organizations in process memory.
type MemoryStore struct {
	mu   sync.RWMutex
	orgs map[id.OrganizationID]*models.Organization
}

func NewMemory() *MemoryStore {
	return &MemoryStore{orgs: make(map[id.OrganizationID]*models.Organization)}
}

// CreateIfNameAvailable inserts the organization unless its legal name is
// already taken (case-insensitive), in which case sentinel.ErrConflict is
// returned.
func (s *MemoryStore) CreateIfNameAvailable(_ context.Context, org *models.Organization) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.orgs {
		if strings.EqualFold(existing.LegalName, org.LegalName) {
			return sentinel.ErrConflict
		}
	}
	cp := *org
	s.orgs[org.ID] = &cp
	return nil
}

func (s *MemoryStore) FindByID(_ context.Context, orgID id.OrganizationID) (*models.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	org, ok := s.orgs[orgID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *org
	return &cp, nil
}

func (s *MemoryStore) Update(_ context.Context, org *models.Organization) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.orgs[org.ID]; !ok {
		return sentinel.ErrNotFound
	}
	cp := *org
	s.orgs[org.ID] = &cp
	return nil
}

// List returns all organizations ordered by legal name.
func (s *MemoryStore) List(_ context.Context) ([]*models.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Organization, 0, len(s.orgs))
	for _, org := range s.orgs {
		cp := *org
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].LegalName) < strings.ToLower(out[j].LegalName)
	})
	return out, nil
}
