package availability

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"certportal/internal/audit"
	auditmemory "certportal/internal/audit/store/memory"
	"certportal/internal/identity"
	"certportal/internal/notify"
	dErrors "certportal/pkg/domain-errors"
	id "certportal/pkg/domain"
	"certportal/pkg/requestcontext"
)

type ServiceSuite struct {
	suite.Suite

	store      *MemoryStore
	auditStore *auditmemory.InMemoryStore
	sink       *notify.MemorySink
	svc        *Service

	admin  identity.Principal
	client identity.Principal
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.store = NewMemoryStore()
	s.auditStore = auditmemory.NewInMemoryStore()
	s.sink = notify.NewMemorySink()

	s.svc = New(s.store,
		WithRecorder(audit.NewRecorder(s.auditStore)),
		WithDispatcher(notify.NewDispatcher(s.sink)),
	)

	s.admin = identity.Principal{
		ID: id.NewPrincipalID(), DisplayName: "Ada Admin",
		Role: identity.RoleAdmin, AccountStatus: identity.AccountActive,
	}
	s.client = identity.Principal{
		ID: id.NewPrincipalID(), Role: identity.RoleClient,
		OrganizationID: id.NewOrganizationID(), AccountStatus: identity.AccountActive,
	}
}

func at(t time.Time) context.Context {
	return requestcontext.WithTime(context.Background(), t)
}

func (s *ServiceSuite) schedule(start time.Time, d time.Duration) Status {
	status, err := s.svc.ScheduleMaintenance(at(start.Add(-time.Hour)), s.admin, start, d, "quarterly patching")
	s.Require().NoError(err)
	return status
}

func (s *ServiceSuite) TestScheduleMaintenance_Validation() {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	s.Run("client cannot schedule", func() {
		_, err := s.svc.ScheduleMaintenance(at(now), s.client, now.Add(time.Hour), time.Hour, "")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("start must be in the future", func() {
		_, err := s.svc.ScheduleMaintenance(at(now), s.admin, now.Add(-time.Minute), time.Hour, "")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("duration must be positive", func() {
		_, err := s.svc.ScheduleMaintenance(at(now), s.admin, now.Add(time.Hour), 0, "")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func (s *ServiceSuite) TestScheduledWindow_FlipsLazilyAndIdempotently() {
	start := time.Date(2026, 8, 30, 22, 0, 0, 0, time.UTC)
	s.schedule(start, 30*time.Minute)

	s.Equal(ModeScheduled, s.svc.Current(at(start.Add(-time.Second))).Mode,
		"before the window the portal stays advisory")

	first := s.svc.Current(at(start.Add(time.Second)))
	s.Equal(ModeMaintenance, first.Mode)

	// Subsequent reads keep returning MAINTENANCE without new side effects.
	for i := 0; i < 3; i++ {
		s.Equal(ModeMaintenance, s.svc.Current(at(start.Add(time.Minute))).Mode)
	}
	entries, err := s.auditStore.List(context.Background(), audit.Filter{Category: audit.CategorySystem})
	s.Require().NoError(err)

	flips := 0
	for _, e := range entries {
		if e.Action == audit.ActionMaintenanceEntered {
			flips++
		}
	}
	s.Equal(1, flips, "the flip happens exactly once")

	persisted, err := s.store.Load(context.Background())
	s.Require().NoError(err)
	s.Equal(ModeMaintenance, persisted.Mode)
}

func (s *ServiceSuite) TestConcurrentReadsFlipOnce() {
	start := time.Date(2026, 8, 30, 22, 0, 0, 0, time.UTC)
	s.schedule(start, time.Hour)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Equal(ModeMaintenance, s.svc.Current(at(start.Add(time.Minute))).Mode)
		}()
	}
	wg.Wait()

	entries, err := s.auditStore.List(context.Background(), audit.Filter{Category: audit.CategorySystem})
	s.Require().NoError(err)
	flips := 0
	for _, e := range entries {
		if e.Action == audit.ActionMaintenanceEntered {
			flips++
		}
	}
	s.Equal(1, flips)
}

func (s *ServiceSuite) TestAuthorize_GateBlocksNonAdminDuringMaintenance() {
	start := time.Date(2026, 8, 30, 22, 0, 0, 0, time.UTC)
	s.schedule(start, time.Hour)
	during := at(start.Add(time.Minute))

	err := s.svc.Authorize(during, s.client)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeServiceUnavailable))

	s.NoError(s.svc.Authorize(during, s.admin), "admin stays exempt")
}

func (s *ServiceSuite) TestAuthorize_ScheduledIsAdvisoryOnly() {
	start := time.Date(2026, 8, 30, 22, 0, 0, 0, time.UTC)
	s.schedule(start, time.Hour)

	s.NoError(s.svc.Authorize(at(start.Add(-time.Minute)), s.client))
}

func (s *ServiceSuite) TestSetOnline_FromMaintenanceBroadcastsRecovery() {
	start := time.Date(2026, 8, 30, 22, 0, 0, 0, time.UTC)
	s.schedule(start, time.Hour)
	s.svc.Current(at(start.Add(time.Minute)))

	status, err := s.svc.SetOnline(at(start.Add(30*time.Minute)), s.admin)
	s.Require().NoError(err)
	s.Equal(ModeOnline, status.Mode)

	entries, err := s.auditStore.List(context.Background(), audit.Filter{Category: audit.CategorySystem})
	s.Require().NoError(err)
	s.Equal(audit.ActionPortalOnline, entries[0].Action, "newest entry is the recovery")
}

func (s *ServiceSuite) TestSetOnline_CancellingScheduleIsNotARecovery() {
	start := time.Date(2026, 8, 30, 22, 0, 0, 0, time.UTC)
	s.schedule(start, time.Hour)

	_, err := s.svc.SetOnline(at(start.Add(-30*time.Minute)), s.admin)
	s.Require().NoError(err)

	entries, err := s.auditStore.List(context.Background(), audit.Filter{Category: audit.CategorySystem})
	s.Require().NoError(err)
	s.Equal(audit.ActionMaintenanceCancelled, entries[0].Action)
}

func (s *ServiceSuite) TestSubscribe_DeliversSnapshotFirst() {
	start := time.Date(2026, 8, 30, 22, 0, 0, 0, time.UTC)
	s.schedule(start, time.Hour)

	ctx, cancel := context.WithCancel(at(start.Add(-time.Minute)))
	defer cancel()

	updates := s.svc.Subscribe(ctx)
	snapshot := <-updates
	s.Equal(ModeScheduled, snapshot.Mode, "a late subscriber sees the current state immediately")

	_, err := s.svc.SetOnline(at(start.Add(-30*time.Second)), s.admin)
	s.Require().NoError(err)

	select {
	case next := <-updates:
		s.Equal(ModeOnline, next.Mode)
	case <-time.After(time.Second):
		s.Fail("expected a pushed transition")
	}
}

func (s *ServiceSuite) TestApplyRemote_UpdatesCacheWithoutRepersisting() {
	remote := Status{Mode: ModeMaintenance, Message: "from the other instance"}
	s.svc.ApplyRemote(remote)

	s.Equal(ModeMaintenance, s.svc.Current(context.Background()).Mode)
	_, err := s.store.Load(context.Background())
	s.Error(err, "the originating instance already persisted; the replica must not")
}
