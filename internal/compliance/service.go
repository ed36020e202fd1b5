// Package compliance implements the quality-approval lifecycle of certificate
// documents: PENDING to APPROVED or REJECTED, with re-inspection allowed in
// both directions. Inspections on the same document are serialized so two
// simultaneous inspectors cannot produce a lost update.
package compliance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"certportal/internal/audit"
	"certportal/internal/docs/models"
	"certportal/internal/identity"
	"certportal/internal/notify"
	"certportal/internal/platform/metrics"
	dErrors "certportal/pkg/domain-errors"
	id "certportal/pkg/domain"
	"certportal/pkg/platform/sentinel"
	"certportal/pkg/requestcontext"
)

// Decision is the inspector's verdict.
type Decision string

const (
	DecisionApprove Decision = "APPROVE"
	DecisionReject  Decision = "REJECT"
)

// DocumentStore is the slice of document persistence the state machine needs.
type DocumentStore interface {
	FindByID(ctx context.Context, nodeID id.NodeID) (*models.DocumentNode, error)
	Update(ctx context.Context, node *models.DocumentNode) error
}

// Service applies inspection decisions to documents.
type Service struct {
	docs   DocumentStore
	tracer trace.Tracer

	logger     *slog.Logger
	recorder   *audit.Recorder
	dispatcher *notify.Dispatcher
	metrics    *metrics.Metrics

	storeTimeout time.Duration

	// lockMu guards locks; each document gets its own mutex so transitions
	// on one document are linearizable without blocking the rest.
	lockMu sync.Mutex
	locks  map[id.NodeID]*sync.Mutex
}

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

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithStoreTimeout(d time.Duration) Option {
	return func(s *Service) { s.storeTimeout = d }
}

// New constructs a Service.
func New(docs DocumentStore, opts ...Option) *Service {
	s := &Service{
		docs:         docs,
		tracer:       otel.Tracer("certportal/compliance"),
		logger:       slog.Default(),
		storeTimeout: 8 * time.Second,
		locks:        make(map[id.NodeID]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Inspect records an approval or rejection on a document. Validation happens
// strictly before any mutation: an invalid call leaves no state change, no
// audit entry, and no notification. On success the new metadata is persisted,
// one audit entry is recorded, and the owning organization is notified
// asynchronously; notification delivery never affects the transition.
func (s *Service) Inspect(ctx context.Context, actor identity.Principal, documentID id.NodeID, decision Decision, reason string) (*models.DocumentNode, error) {
	ctx, span := s.tracer.Start(ctx, "compliance.Inspect")
	defer span.End()

	if !actor.IsStaff() {
		return nil, dErrors.New(dErrors.CodeForbidden, "inspections require QUALITY or ADMIN role")
	}
	switch decision {
	case DecisionApprove, DecisionReject:
	default:
		return nil, dErrors.Newf(dErrors.CodeValidation, "unknown decision %q", decision)
	}
	if decision == DecisionReject && reason == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "a rejection requires a non-empty reason")
	}

	unlock := s.lockDocument(documentID)
	defer unlock()

	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	node, err := s.docs.FindByID(storeCtx, documentID)
	if err != nil {
		return nil, translateStoreErr(err, "document not found")
	}
	if node.Kind != models.KindFile {
		return nil, dErrors.New(dErrors.CodeValidation, "only files carry a compliance status")
	}

	previous := models.StatusPending
	meta := models.ComplianceMetadata{}
	if node.Compliance != nil {
		meta = *node.Compliance
		previous = meta.Status
	}

	now := requestcontext.Now(ctx).UTC()
	meta.InspectedAt = now
	meta.InspectedByName = actor.DisplayName
	switch decision {
	case DecisionApprove:
		meta.Status = models.StatusApproved
		meta.RejectionReason = ""
	case DecisionReject:
		meta.Status = models.StatusRejected
		meta.RejectionReason = reason
	}
	node.Compliance = &meta
	node.UpdatedAt = now

	if err := s.docs.Update(storeCtx, node); err != nil {
		return nil, translateStoreErr(err, "failed to persist inspection")
	}

	if s.metrics != nil {
		s.metrics.Inspections.WithLabelValues(string(decision)).Inc()
	}
	s.record(ctx, actor, node, decision, previous, reason)
	s.notifyOwner(node, decision, reason)
	return node, nil
}

// record emits the audit entry for a completed transition. Reversing a prior
// APPROVED is escalated to WARNING so investigations surface it.
func (s *Service) record(ctx context.Context, actor identity.Principal, node *models.DocumentNode, decision Decision, previous models.ComplianceStatus, reason string) {
	action := audit.ActionDocumentApproved
	opts := []audit.RecordOption{
		audit.WithMetadata(
			"name", node.Name,
			"previous_status", string(previous),
			"organization_id", node.OwnerOrganizationID.String(),
		),
	}
	if decision == DecisionReject {
		action = audit.ActionDocumentRejected
		opts = append(opts, audit.WithMetadata("reason", reason))
		if previous == models.StatusApproved {
			opts = append(opts, audit.WithSeverity(audit.SeverityWarning))
		}
	}
	s.recorder.Record(ctx, &actor, action, node.ID.String(), opts...)
}

// notifyOwner queues one notification to the owning organization's contacts.
func (s *Service) notifyOwner(node *models.DocumentNode, decision Decision, reason string) {
	n := notify.Notification{
		Target:   notify.OrgTarget(node.OwnerOrganizationID.String()),
		Severity: notify.SeverityInfo,
		Link:     "/documents/" + node.ID.String(),
	}
	if decision == DecisionApprove {
		n.Title = "Certificate approved"
		n.Body = fmt.Sprintf("%q passed quality inspection.", node.Name)
	} else {
		n.Title = "Certificate rejected"
		n.Body = fmt.Sprintf("%q was rejected: %s", node.Name, reason)
		n.Severity = notify.SeverityWarning
	}
	s.dispatcher.Enqueue(n)
}

// lockDocument acquires the per-document mutex, creating it on first use.
func (s *Service) lockDocument(documentID id.NodeID) func() {
	s.lockMu.Lock()
	mu, ok := s.locks[documentID]
	if !ok {
		mu = &sync.Mutex{}
		s.locks[documentID] = mu
	}
	s.lockMu.Unlock()

	mu.Lock()
	return mu.Unlock
}

func translateStoreErr(err error, message string) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, message)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, sentinel.ErrTimeout) {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "store operation timed out")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, message)
}
