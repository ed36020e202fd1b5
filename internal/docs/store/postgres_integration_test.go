//go:build integration

package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certportal/internal/docs/models"
	"certportal/internal/docs/store"
	id "certportal/pkg/domain"
	"certportal/pkg/platform/sentinel"
	"certportal/pkg/testutil/containers"
)

func newStore(t *testing.T) *store.PostgresStore {
	t.Helper()
	pg := containers.NewPostgresContainer(t)
	pg.Apply(t, store.Schema)
	return store.NewPostgres(pg.DB)
}

func folder(name string) *models.DocumentNode {
	return &models.DocumentNode{
		ID:        id.NewNodeID(),
		Name:      name,
		Kind:      models.KindFolder,
		UpdatedAt: time.Now().UTC(),
	}
}

func file(parentID id.NodeID, name string, owner id.OrganizationID, status models.ComplianceStatus) *models.DocumentNode {
	return &models.DocumentNode{
		ID:                  id.NewNodeID(),
		ParentID:            parentID,
		Name:                name,
		Kind:                models.KindFile,
		OwnerOrganizationID: owner,
		SizeBytes:           1024,
		ContentType:         "application/pdf",
		StorageRef:          "documents/" + owner.String() + "/" + name,
		Compliance:          &models.ComplianceMetadata{Status: status, BatchNumber: "H-1"},
		UpdatedAt:           time.Now().UTC(),
	}
}

func TestPostgresStore_RoundTrip(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	root := folder("Certificates")
	require.NoError(t, s.Insert(ctx, root))

	owner := id.NewOrganizationID()
	doc := file(root.ID, "heat-77.pdf", owner, models.StatusApproved)
	require.NoError(t, s.Insert(ctx, doc))

	got, err := s.FindByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, root.ID, got.ParentID)
	assert.Equal(t, owner, got.OwnerOrganizationID)
	require.NotNil(t, got.Compliance)
	assert.Equal(t, models.StatusApproved, got.Compliance.Status)
	assert.Equal(t, "H-1", got.Compliance.BatchNumber)

	_, err = s.FindByID(ctx, id.NewNodeID())
	assert.True(t, errors.Is(err, sentinel.ErrNotFound))
}

func TestPostgresStore_SiblingNameIsCaseInsensitivelyUnique(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	root := folder("Certificates")
	require.NoError(t, s.Insert(ctx, root))
	require.NoError(t, s.Insert(ctx, file(root.ID, "Report.pdf", id.NewOrganizationID(), models.StatusPending)))

	err := s.Insert(ctx, file(root.ID, "report.pdf", id.NewOrganizationID(), models.StatusPending))
	assert.True(t, errors.Is(err, sentinel.ErrConflict))
}

func TestPostgresStore_ScopeCompiledIntoListing(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	root := folder("Certificates")
	require.NoError(t, s.Insert(ctx, root))

	acme := id.NewOrganizationID()
	rival := id.NewOrganizationID()
	require.NoError(t, s.Insert(ctx, file(root.ID, "own-approved.pdf", acme, models.StatusApproved)))
	require.NoError(t, s.Insert(ctx, file(root.ID, "own-pending.pdf", acme, models.StatusPending)))
	require.NoError(t, s.Insert(ctx, file(root.ID, "foreign.pdf", rival, models.StatusApproved)))

	sub := folder("Subfolder")
	sub.ParentID = root.ID
	require.NoError(t, s.Insert(ctx, sub))

	page, err := s.ListChildren(ctx, root.ID, models.Scope{OwnerOrganizationID: acme}, models.PageRequest{})
	require.NoError(t, err)
	require.Len(t, page.Nodes, 2)
	assert.Equal(t, "Subfolder", page.Nodes[0].Name, "folders sort first")
	assert.Equal(t, "own-approved.pdf", page.Nodes[1].Name)
	assert.Equal(t, 2, page.Total)

	all, err := s.ListChildren(ctx, root.ID, models.Scope{All: true}, models.PageRequest{})
	require.NoError(t, err)
	assert.Len(t, all.Nodes, 4)
}

func TestPostgresStore_SearchEscapesLikeMetacharacters(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	root := folder("Certificates")
	require.NoError(t, s.Insert(ctx, root))
	require.NoError(t, s.Insert(ctx, file(root.ID, "100%_tested.pdf", id.NewOrganizationID(), models.StatusApproved)))
	require.NoError(t, s.Insert(ctx, file(root.ID, "untested.pdf", id.NewOrganizationID(), models.StatusApproved)))

	page, err := s.Search(ctx, "100%", models.Scope{All: true}, models.PageRequest{})
	require.NoError(t, err)
	require.Len(t, page.Nodes, 1)
	assert.Equal(t, "100%_tested.pdf", page.Nodes[0].Name)
}

func TestPostgresStore_SubtreeAndDelete(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	root := folder("Certificates")
	require.NoError(t, s.Insert(ctx, root))
	child := folder("2026")
	child.ParentID = root.ID
	require.NoError(t, s.Insert(ctx, child))

	owner := id.NewOrganizationID()
	doc := file(child.ID, "heat-77.pdf", owner, models.StatusApproved)
	require.NoError(t, s.Insert(ctx, doc))

	nodes, err := s.Subtree(ctx, root.ID)
	require.NoError(t, err)
	assert.Len(t, nodes, 3)

	count, err := s.CountByOwner(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	ids := make([]id.NodeID, 0, len(nodes))
	for _, n := range nodes {
		ids = append(ids, n.ID)
	}
	require.NoError(t, s.DeleteSubtree(ctx, ids))

	_, err = s.FindByID(ctx, doc.ID)
	assert.True(t, errors.Is(err, sentinel.ErrNotFound))

	count, err = s.CountByOwner(ctx, owner)
	require.NoError(t, err)
	assert.Zero(t, count)
}
