package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"certportal/internal/audit"
	auditmemory "certportal/internal/audit/store/memory"
	"certportal/internal/org/models"
	orgstore "certportal/internal/org/store"
	dErrors "certportal/pkg/domain-errors"
	id "certportal/pkg/domain"
	"certportal/pkg/testutil"
)

type stubCounter struct {
	counts map[id.OrganizationID]int
}

func (c *stubCounter) CountByOwner(_ context.Context, orgID id.OrganizationID) (int, error) {
	return c.counts[orgID], nil
}

type ServiceSuite struct {
	suite.Suite

	store      *orgstore.MemoryStore
	counter    *stubCounter
	auditStore *auditmemory.InMemoryStore
	svc        *Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.store = orgstore.NewMemory()
	s.counter = &stubCounter{counts: map[id.OrganizationID]int{}}
	s.auditStore = auditmemory.NewInMemoryStore()
	s.svc = New(s.store, s.counter, WithRecorder(audit.NewRecorder(s.auditStore)))
}

func (s *ServiceSuite) create(name string) *models.Organization {
	org, err := s.svc.Create(context.Background(), testutil.Admin(), CreateRequest{
		LegalName:    name,
		TaxID:        "DE-123456",
		ContractDate: time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC),
	})
	s.Require().NoError(err)
	return org
}

func (s *ServiceSuite) TestCreate() {
	s.Run("client cannot onboard organizations", func() {
		_, err := s.svc.Create(context.Background(), testutil.Client(id.NewOrganizationID()), CreateRequest{
			LegalName: "Acme Steel", TaxID: "DE-1", ContractDate: time.Now(),
		})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("empty legal name is a validation error", func() {
		_, err := s.svc.Create(context.Background(), testutil.Admin(), CreateRequest{
			TaxID: "DE-1", ContractDate: time.Now(),
		})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("duplicate legal name conflicts", func() {
		s.create("Acme Steel GmbH")
		_, err := s.svc.Create(context.Background(), testutil.Admin(), CreateRequest{
			LegalName: "Acme Steel GmbH", TaxID: "DE-2", ContractDate: time.Now(),
		})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})
}

func (s *ServiceSuite) TestGet_ClientSeesOnlyItsOwn() {
	org := s.create("Acme Steel GmbH")

	got, err := s.svc.Get(context.Background(), testutil.Client(org.ID), org.ID)
	s.Require().NoError(err)
	s.Equal(org.ID, got.ID)

	_, err = s.svc.Get(context.Background(), testutil.Client(id.NewOrganizationID()), org.ID)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
}

func (s *ServiceSuite) TestUpdate_AssignsAnalyst() {
	org := s.create("Acme Steel GmbH")
	analyst := id.NewPrincipalID()

	updated, err := s.svc.Update(context.Background(), testutil.Quality(), org.ID, UpdateRequest{
		AssignedAnalystID: &analyst,
	})
	s.Require().NoError(err)
	s.Equal(analyst, updated.AssignedAnalystID)
}

func (s *ServiceSuite) TestDeactivate_RefusedWhileDocumentsRemain() {
	org := s.create("Acme Steel GmbH")
	s.counter.counts[org.ID] = 3

	err := s.svc.Deactivate(context.Background(), testutil.Admin(), org.ID)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))

	got, err := s.store.FindByID(context.Background(), org.ID)
	s.Require().NoError(err)
	s.Equal(models.OrganizationStatusActive, got.Status)
}

func (s *ServiceSuite) TestDeactivateReactivateRoundTrip() {
	org := s.create("Acme Steel GmbH")

	s.Require().NoError(s.svc.Deactivate(context.Background(), testutil.Admin(), org.ID))
	got, err := s.store.FindByID(context.Background(), org.ID)
	s.Require().NoError(err)
	s.Equal(models.OrganizationStatusInactive, got.Status)

	s.Require().NoError(s.svc.Reactivate(context.Background(), testutil.Admin(), org.ID))
	got, err = s.store.FindByID(context.Background(), org.ID)
	s.Require().NoError(err)
	s.Equal(models.OrganizationStatusActive, got.Status)

	entries, err := s.auditStore.List(context.Background(), audit.Filter{Category: audit.CategoryData})
	s.Require().NoError(err)
	s.Require().NotEmpty(entries)
	s.Equal(audit.ActionOrgReactivated, entries[0].Action, "newest first")
}
