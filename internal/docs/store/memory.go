// Package store provides document tree persistence. The memory implementation
// backs unit tests and development; postgres backs production. Both apply the
// visibility scope inside the query so no caller can list around it.
package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"certportal/internal/docs/models"
	id "certportal/pkg/domain"
	"certportal/pkg/platform/sentinel"
)

// MemoryStore keeps document nodes in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	nodes map[id.NodeID]*models.DocumentNode
}

func NewMemory() *MemoryStore {
	return &MemoryStore{nodes: make(map[id.NodeID]*models.DocumentNode)}
}

func (s *MemoryStore) Insert(_ context.Context, node *models.DocumentNode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.nodes[node.ID]; ok {
		return sentinel.ErrConflict
	}
	s.nodes[node.ID] = copyNode(node)
	return nil
}

func (s *MemoryStore) FindByID(_ context.Context, nodeID id.NodeID) (*models.DocumentNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	node, ok := s.nodes[nodeID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return copyNode(node), nil
}

func (s *MemoryStore) Update(_ context.Context, node *models.DocumentNode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.nodes[node.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.nodes[node.ID] = copyNode(node)
	return nil
}

// ChildByName finds a direct child of parentID by case-insensitive name.
func (s *MemoryStore) ChildByName(_ context.Context, parentID id.NodeID, name string) (*models.DocumentNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, node := range s.nodes {
		if node.ParentID == parentID && strings.EqualFold(node.Name, name) {
			return copyNode(node), nil
		}
	}
	return nil, sentinel.ErrNotFound
}

// ListChildren returns the visible children of parentID, folders first, then
// lexicographically by name. The zero parentID lists the tree roots.
func (s *MemoryStore) ListChildren(_ context.Context, parentID id.NodeID, scope models.Scope, page models.PageRequest) (*models.Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*models.DocumentNode
	for _, node := range s.nodes {
		if node.ParentID == parentID && scope.Allows(node) {
			matched = append(matched, copyNode(node))
		}
	}
	return window(matched, page.Normalize()), nil
}

// Search returns visible nodes whose name contains the query,
// case-insensitive, ordered like ListChildren.
func (s *MemoryStore) Search(_ context.Context, query string, scope models.Scope, page models.PageRequest) (*models.Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	needle := strings.ToLower(query)
	var matched []*models.DocumentNode
	for _, node := range s.nodes {
		if strings.Contains(strings.ToLower(node.Name), needle) && scope.Allows(node) {
			matched = append(matched, copyNode(node))
		}
	}
	return window(matched, page.Normalize()), nil
}

// Subtree returns the node and all of its descendants in breadth-first order.
func (s *MemoryStore) Subtree(_ context.Context, rootID id.NodeID) ([]*models.DocumentNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	root, ok := s.nodes[rootID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}

	result := []*models.DocumentNode{copyNode(root)}
	frontier := []id.NodeID{rootID}
	for len(frontier) > 0 {
		next := frontier[:0:0]
		for _, node := range s.nodes {
			for _, parent := range frontier {
				if node.ParentID == parent {
					result = append(result, copyNode(node))
					next = append(next, node.ID)
					break
				}
			}
		}
		frontier = next
	}
	return result, nil
}

// DeleteSubtree removes the given nodes. Missing ids are ignored so a retry
// after a partial failure converges.
func (s *MemoryStore) DeleteSubtree(_ context.Context, ids []id.NodeID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, nodeID := range ids {
		delete(s.nodes, nodeID)
	}
	return nil
}

// CountByOwner reports how many nodes an organization owns.
func (s *MemoryStore) CountByOwner(_ context.Context, orgID id.OrganizationID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, node := range s.nodes {
		if node.OwnerOrganizationID == orgID {
			count++
		}
	}
	return count, nil
}

func window(nodes []*models.DocumentNode, page models.PageRequest) *models.Page {
	sortNodes(nodes)
	total := len(nodes)
	start := page.Offset
	if start > total {
		start = total
	}
	end := start + page.Limit
	if end > total {
		end = total
	}
	return &models.Page{
		Nodes:   nodes[start:end],
		Total:   total,
		HasMore: end < total,
	}
}

func sortNodes(nodes []*models.DocumentNode) {
	sort.Slice(nodes, func(i, j int) bool {
		if (nodes[i].Kind == models.KindFolder) != (nodes[j].Kind == models.KindFolder) {
			return nodes[i].Kind == models.KindFolder
		}
		return strings.ToLower(nodes[i].Name) < strings.ToLower(nodes[j].Name)
	})
}

func copyNode(node *models.DocumentNode) *models.DocumentNode {
	cp := *node
	if node.Compliance != nil {
		meta := *node.Compliance
		cp.Compliance = &meta
	}
	return &cp
}
