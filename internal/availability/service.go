package availability

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"certportal/internal/audit"
	"certportal/internal/identity"
	"certportal/internal/notify"
	"certportal/internal/platform/metrics"
	dErrors "certportal/pkg/domain-errors"
	"certportal/pkg/platform/sentinel"
	"certportal/pkg/requestcontext"
)

// Channel relays status changes across processes. Implementations publish to
// other instances; incoming remote changes are applied via ApplyRemote.
type Channel interface {
	Publish(ctx context.Context, status Status) error
}

// Service owns the cached availability singleton and its subscriber list.
// It is an injected dependency, never an ambient global: every component that
// needs the status receives this service explicitly.
type Service struct {
	mu     sync.RWMutex
	cached Status

	subMu sync.Mutex
	subs  map[int]chan Status
	next  int

	store      Store
	channel    Channel
	dispatcher *notify.Dispatcher
	recorder   *audit.Recorder
	logger     *slog.Logger
	metrics    *metrics.Metrics

	storeTimeout time.Duration
}

// Option configures a Service.
type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithRecorder(recorder *audit.Recorder) Option {
	return func(s *Service) { s.recorder = recorder }
}

func WithDispatcher(d *notify.Dispatcher) Option {
	return func(s *Service) { s.dispatcher = d }
}

func WithChannel(c Channel) Option {
	return func(s *Service) { s.channel = c }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithStoreTimeout(d time.Duration) Option {
	return func(s *Service) { s.storeTimeout = d }
}

// New constructs the service with an ONLINE cached status. Call Restore to
// adopt the persisted singleton.
func New(store Store, opts ...Option) *Service {
	s := &Service{
		cached:       Online(),
		subs:         make(map[int]chan Status),
		store:        store,
		logger:       slog.Default(),
		storeTimeout: 8 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Restore loads the persisted singleton into the cache. A missing row means a
// fresh deployment and is not an error.
func (s *Service) Restore(ctx context.Context) error {
	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	status, err := s.store.Load(storeCtx)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil
		}
		return err
	}
	s.mu.Lock()
	s.cached = status
	s.mu.Unlock()
	return nil
}

// Current returns the availability status, lazily flipping SCHEDULED to
// MAINTENANCE once the window starts. Any reader can trigger the flip; the
// mutex plus the mode check make it idempotent, and only the winning reader
// persists, records, and broadcasts.
func (s *Service) Current(ctx context.Context) Status {
	now := requestcontext.Now(ctx)

	s.mu.RLock()
	cached := s.cached
	s.mu.RUnlock()
	if !cached.windowReached(now) {
		return cached
	}

	s.mu.Lock()
	if !s.cached.windowReached(now) {
		cached = s.cached
		s.mu.Unlock()
		return cached
	}
	flipped := s.cached
	flipped.Mode = ModeMaintenance
	s.cached = flipped
	s.mu.Unlock()

	s.persist(ctx, flipped)
	s.recorder.Record(ctx, nil, audit.ActionMaintenanceEntered, "portal",
		audit.WithSeverity(audit.SeverityWarning),
		audit.WithMetadata("message", flipped.Message))
	if s.metrics != nil {
		s.metrics.AvailabilityTransitions.WithLabelValues(string(ModeMaintenance)).Inc()
	}
	s.broadcast(ctx, flipped)
	return flipped
}

// ScheduleMaintenance announces a maintenance window. ADMIN only.
func (s *Service) ScheduleMaintenance(ctx context.Context, actor identity.Principal, start time.Time, duration time.Duration, message string) (Status, error) {
	if actor.Role != identity.RoleAdmin {
		return Status{}, dErrors.New(dErrors.CodeForbidden, "scheduling maintenance requires ADMIN role")
	}
	now := requestcontext.Now(ctx)
	if start.Before(now) {
		return Status{}, dErrors.New(dErrors.CodeValidation, "maintenance start must be in the future")
	}
	if duration <= 0 {
		return Status{}, dErrors.New(dErrors.CodeValidation, "maintenance duration must be positive")
	}

	status := Status{
		Mode:           ModeScheduled,
		Message:        message,
		ScheduledStart: start,
		ScheduledEnd:   start.Add(duration),
		ChangedBy:      actor.DisplayName,
	}

	s.mu.Lock()
	s.cached = status
	s.mu.Unlock()

	s.persist(ctx, status)
	s.recorder.Record(ctx, &actor, audit.ActionMaintenanceScheduled, "portal",
		audit.WithSeverity(audit.SeverityWarning),
		audit.WithMetadata("message", message, "start", start.Format(time.RFC3339)))
	if s.metrics != nil {
		s.metrics.AvailabilityTransitions.WithLabelValues(string(ModeScheduled)).Inc()
	}
	s.dispatcher.Enqueue(notify.Notification{
		Target:   notify.TargetBroadcast,
		Title:    "Scheduled maintenance",
		Body:     message,
		Severity: notify.SeverityWarning,
	})
	s.broadcast(ctx, status)
	return status, nil
}

// Restore to ONLINE, cancelling a scheduled window or ending maintenance.
// ADMIN only.
func (s *Service) SetOnline(ctx context.Context, actor identity.Principal) (Status, error) {
	if actor.Role != identity.RoleAdmin {
		return Status{}, dErrors.New(dErrors.CodeForbidden, "restoring service requires ADMIN role")
	}

	s.mu.Lock()
	previous := s.cached
	if previous.Mode == ModeOnline {
		s.mu.Unlock()
		return previous, nil
	}
	status := Status{Mode: ModeOnline, ChangedBy: actor.DisplayName}
	s.cached = status
	s.mu.Unlock()

	s.persist(ctx, status)
	if previous.Mode == ModeMaintenance {
		s.recorder.Record(ctx, &actor, audit.ActionPortalOnline, "portal")
		s.dispatcher.Enqueue(notify.Notification{
			Target:   notify.TargetBroadcast,
			Title:    "Portal is online again",
			Body:     "Maintenance has finished; all services are available.",
			Severity: notify.SeverityInfo,
		})
	} else {
		s.recorder.Record(ctx, &actor, audit.ActionMaintenanceCancelled, "portal")
	}
	if s.metrics != nil {
		s.metrics.AvailabilityTransitions.WithLabelValues(string(ModeOnline)).Inc()
	}
	s.broadcast(ctx, status)
	return status, nil
}

// Authorize rejects non-admin principals while the portal is in maintenance.
// SCHEDULED is advisory and never blocks.
func (s *Service) Authorize(ctx context.Context, principal identity.Principal) error {
	if principal.Role == identity.RoleAdmin {
		return nil
	}
	if s.Current(ctx).Mode == ModeMaintenance {
		return dErrors.New(dErrors.CodeServiceUnavailable, "the portal is under maintenance")
	}
	return nil
}

// Subscribe registers a subscriber. The current cached status is delivered
// first so a subscriber connecting after a transition cannot miss it; pushes
// are best-effort and dropped when the subscriber is slow. The channel closes
// when ctx ends.
func (s *Service) Subscribe(ctx context.Context) <-chan Status {
	ch := make(chan Status, 8)

	s.subMu.Lock()
	subID := s.next
	s.next++
	s.subs[subID] = ch
	s.subMu.Unlock()

	ch <- s.Current(ctx)

	go func() {
		<-ctx.Done()
		s.subMu.Lock()
		delete(s.subs, subID)
		close(ch)
		s.subMu.Unlock()
	}()

	return ch
}

// ApplyRemote adopts a status change propagated from another instance. It
// updates the cache and local subscribers without persisting or republishing.
func (s *Service) ApplyRemote(status Status) {
	s.mu.Lock()
	s.cached = status
	s.mu.Unlock()
	s.fanOut(status)
}

func (s *Service) persist(ctx context.Context, status Status) {
	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.storeTimeout)
	defer cancel()
	if err := s.store.Save(storeCtx, status); err != nil {
		s.logger.ErrorContext(ctx, "failed to persist availability status",
			"error", err,
			"mode", string(status.Mode),
		)
	}
}

func (s *Service) broadcast(ctx context.Context, status Status) {
	s.fanOut(status)
	if s.channel != nil {
		if err := s.channel.Publish(ctx, status); err != nil {
			s.logger.ErrorContext(ctx, "failed to publish availability change",
				"error", err,
				"mode", string(status.Mode),
			)
		}
	}
}

func (s *Service) fanOut(status Status) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- status:
		default:
			// Drop when subscriber is slow; clients re-fetch on reconnect.
		}
	}
}

