package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"certportal/internal/audit"
	auditmemory "certportal/internal/audit/store/memory"
	"certportal/internal/docs/blob"
	"certportal/internal/docs/models"
	"certportal/internal/docs/store"
	"certportal/internal/identity"
	dErrors "certportal/pkg/domain-errors"
	id "certportal/pkg/domain"
	"certportal/pkg/testutil"
)

type ServiceSuite struct {
	suite.Suite

	store      *store.MemoryStore
	blobs      *blob.MemoryStorage
	auditStore *auditmemory.InMemoryStore
	svc        *Service

	admin  identity.Principal
	acme   id.OrganizationID
	client identity.Principal
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.store = store.NewMemory()
	s.blobs = blob.NewMemoryStorage("http://test", []byte("test-secret"))
	s.auditStore = auditmemory.NewInMemoryStore()
	recorder := audit.NewRecorder(s.auditStore)

	s.svc = New(s.store, s.blobs,
		WithRecorder(recorder),
		WithUploadLimits(1<<20, []string{"application/pdf"}),
	)

	s.admin = testutil.Admin()
	s.acme = id.NewOrganizationID()
	s.client = testutil.Client(s.acme)
}

func (s *ServiceSuite) mustCreateFolder(parent id.NodeID, name string) *models.DocumentNode {
	node, err := s.svc.CreateFolder(context.Background(), s.admin, parent, name, id.OrganizationID{})
	s.Require().NoError(err)
	return node
}

func (s *ServiceSuite) mustUpload(parent id.NodeID, name string, owner id.OrganizationID) *models.DocumentNode {
	node, err := s.svc.Upload(context.Background(), s.admin, UploadRequest{
		ParentID:            parent,
		Name:                name,
		ContentType:         "application/pdf",
		Data:                []byte("%PDF-1.4"),
		OwnerOrganizationID: owner,
	})
	s.Require().NoError(err)
	return node
}

func (s *ServiceSuite) approve(nodeID id.NodeID) {
	node, err := s.store.FindByID(context.Background(), nodeID)
	s.Require().NoError(err)
	node.Compliance.Status = models.StatusApproved
	s.Require().NoError(s.store.Update(context.Background(), node))
}

func (s *ServiceSuite) TestList_OrdersFoldersFirstThenByName() {
	s.mustUpload(id.NodeID{}, "alpha.pdf", s.acme)
	s.mustCreateFolder(id.NodeID{}, "zeta")
	s.mustCreateFolder(id.NodeID{}, "Certificates")
	s.mustUpload(id.NodeID{}, "Beta.pdf", s.acme)

	page, err := s.svc.List(context.Background(), s.admin, id.NodeID{}, models.PageRequest{})
	s.Require().NoError(err)
	s.Require().Len(page.Nodes, 4)

	names := make([]string, 0, 4)
	for _, n := range page.Nodes {
		names = append(names, n.Name)
	}
	s.Equal([]string{"Certificates", "zeta", "alpha.pdf", "Beta.pdf"}, names)
	s.Equal(4, page.Total)
	s.False(page.HasMore)
}

func (s *ServiceSuite) TestList_PaginationReportsHasMore() {
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		s.mustCreateFolder(id.NodeID{}, name)
	}

	page, err := s.svc.List(context.Background(), s.admin, id.NodeID{}, models.PageRequest{Offset: 0, Limit: 2})
	s.Require().NoError(err)
	s.Len(page.Nodes, 2)
	s.Equal(5, page.Total)
	s.True(page.HasMore)

	last, err := s.svc.List(context.Background(), s.admin, id.NodeID{}, models.PageRequest{Offset: 4, Limit: 2})
	s.Require().NoError(err)
	s.Len(last.Nodes, 1)
	s.False(last.HasMore)
}

func (s *ServiceSuite) TestList_ClientSeesOnlyOwnApprovedFiles() {
	folder := s.mustCreateFolder(id.NodeID{}, "shared")
	own := s.mustUpload(id.NodeID{}, "own.pdf", s.acme)
	s.approve(own.ID)
	s.mustUpload(id.NodeID{}, "pending.pdf", s.acme)
	foreign := s.mustUpload(id.NodeID{}, "foreign.pdf", id.NewOrganizationID())
	s.approve(foreign.ID)

	page, err := s.svc.List(context.Background(), s.client, id.NodeID{}, models.PageRequest{})
	s.Require().NoError(err)
	s.Require().Len(page.Nodes, 2)
	s.Equal(folder.ID, page.Nodes[0].ID)
	s.Equal(own.ID, page.Nodes[1].ID)
}

func (s *ServiceSuite) TestSearch_AppliesSameScopeAsList() {
	own := s.mustUpload(id.NodeID{}, "report-acme.pdf", s.acme)
	s.approve(own.ID)
	other := s.mustUpload(id.NodeID{}, "report-other.pdf", id.NewOrganizationID())
	s.approve(other.ID)

	page, err := s.svc.Search(context.Background(), s.client, "report", models.PageRequest{})
	s.Require().NoError(err)
	s.Require().Len(page.Nodes, 1)
	s.Equal(own.ID, page.Nodes[0].ID)
}

func (s *ServiceSuite) TestBreadcrumbs_RootFirstWithSyntheticHome() {
	top := s.mustCreateFolder(id.NodeID{}, "2026")
	mid := s.mustCreateFolder(top.ID, "Q1")
	file := s.mustUpload(mid.ID, "melt-42.pdf", s.acme)

	trail, err := s.svc.Breadcrumbs(context.Background(), s.admin, file.ID)
	s.Require().NoError(err)
	s.Require().Len(trail, 4)
	s.Equal("Home", trail[0].Name)
	s.True(trail[0].ID.IsNil())
	s.Equal("2026", trail[1].Name)
	s.Equal("Q1", trail[2].Name)
	s.Equal("melt-42.pdf", trail[3].Name)
}

func (s *ServiceSuite) TestBreadcrumbs_CycleFailsInsteadOfLooping() {
	a := s.mustCreateFolder(id.NodeID{}, "a")
	b := s.mustCreateFolder(a.ID, "b")

	// Corrupt the hierarchy directly in the store: a's parent becomes b.
	corrupted, err := s.store.FindByID(context.Background(), a.ID)
	s.Require().NoError(err)
	corrupted.ParentID = b.ID
	s.Require().NoError(s.store.Update(context.Background(), corrupted))

	_, err = s.svc.Breadcrumbs(context.Background(), s.admin, b.ID)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeCorruptHierarchy))
}

func (s *ServiceSuite) TestUpload_RejectsBeforeAnyStorageWrite() {
	s.Run("oversized payload", func() {
		_, err := s.svc.Upload(context.Background(), s.admin, UploadRequest{
			Name:                "big.pdf",
			ContentType:         "application/pdf",
			Data:                make([]byte, 2<<20),
			OwnerOrganizationID: s.acme,
		})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodePayloadTooLarge))
	})

	s.Run("disallowed content type", func() {
		_, err := s.svc.Upload(context.Background(), s.admin, UploadRequest{
			Name:                "script.exe",
			ContentType:         "application/octet-stream",
			Data:                []byte("MZ"),
			OwnerOrganizationID: s.acme,
		})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeUnsupportedMedia))
	})

	s.Run("client cannot upload", func() {
		_, err := s.svc.Upload(context.Background(), s.client, UploadRequest{
			Name:                "cert.pdf",
			ContentType:         "application/pdf",
			Data:                []byte("%PDF"),
			OwnerOrganizationID: s.acme,
		})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	page, err := s.svc.List(context.Background(), s.admin, id.NodeID{}, models.PageRequest{})
	s.Require().NoError(err)
	s.Empty(page.Nodes, "no rejected upload may leave a node behind")
}

func (s *ServiceSuite) TestUpload_StoresBlobAndStartsPending() {
	node := s.mustUpload(id.NodeID{}, "cert.pdf", s.acme)

	s.Require().NotNil(node.Compliance)
	s.Equal(models.StatusPending, node.Compliance.Status)

	data, ok := s.blobs.Get(node.StorageRef)
	s.True(ok)
	s.Equal([]byte("%PDF-1.4"), data)
}

func (s *ServiceSuite) TestRename_RefusesSiblingCollision() {
	s.mustCreateFolder(id.NodeID{}, "reports")
	victim := s.mustCreateFolder(id.NodeID{}, "archive")

	_, err := s.svc.Rename(context.Background(), s.admin, victim.ID, "Reports")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *ServiceSuite) TestMove_RefusesOwnSubtree() {
	parent := s.mustCreateFolder(id.NodeID{}, "parent")
	child := s.mustCreateFolder(parent.ID, "child")

	_, err := s.svc.Move(context.Background(), s.admin, parent.ID, child.ID)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *ServiceSuite) TestDelete_RemovesSubtreeAndBlobs() {
	folder := s.mustCreateFolder(id.NodeID{}, "batch")
	one := s.mustUpload(folder.ID, "one.pdf", s.acme)
	two := s.mustUpload(folder.ID, "two.pdf", s.acme)

	s.Require().NoError(s.svc.Delete(context.Background(), s.admin, folder.ID))

	_, err := s.svc.Fetch(context.Background(), s.admin, folder.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	_, ok := s.blobs.Get(one.StorageRef)
	s.False(ok)
	_, ok = s.blobs.Get(two.StorageRef)
	s.False(ok)
}

func (s *ServiceSuite) TestDownloadURL_HiddenFileLooksMissingAndIsAudited() {
	foreign := s.mustUpload(id.NodeID{}, "secret.pdf", id.NewOrganizationID())
	s.approve(foreign.ID)

	_, err := s.svc.DownloadURL(context.Background(), s.client, foreign.ID)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound), "denied access must be indistinguishable from absence")

	entries, listErr := s.auditStore.List(context.Background(), audit.Filter{Category: audit.CategorySecurity})
	s.Require().NoError(listErr)
	s.Require().Len(entries, 1)
	s.Equal(audit.ActionTenantViolation, entries[0].Action)
	s.Equal(audit.OutcomeFailure, entries[0].Outcome)
}

func (s *ServiceSuite) TestDownloadURL_SignedLinkForVisibleFile() {
	node := s.mustUpload(id.NodeID{}, "cert.pdf", s.acme)
	s.approve(node.ID)

	url, err := s.svc.DownloadURL(testutil.ContextAt(time.Now()), s.client, node.ID)
	s.Require().NoError(err)
	s.Contains(url, "signature=")
}
