// Package service orchestrates organization onboarding and lifecycle.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"certportal/internal/audit"
	"certportal/internal/identity"
	"certportal/internal/org/models"
	dErrors "certportal/pkg/domain-errors"
	id "certportal/pkg/domain"
	"certportal/pkg/platform/sentinel"
)

// OrganizationStore is the persistence surface the service depends on.
type OrganizationStore interface {
	CreateIfNameAvailable(ctx context.Context, org *models.Organization) error
	FindByID(ctx context.Context, orgID id.OrganizationID) (*models.Organization, error)
	Update(ctx context.Context, org *models.Organization) error
	List(ctx context.Context) ([]*models.Organization, error)
}

// DocumentCounter reports how many document nodes an organization still owns.
// Used to refuse deactivating cascades that would orphan documents.
type DocumentCounter interface {
	CountByOwner(ctx context.Context, orgID id.OrganizationID) (int, error)
}

// Service orchestrates organization management for QUALITY and ADMIN staff.
type Service struct {
	orgs         OrganizationStore
	docCounter   DocumentCounter
	logger       *slog.Logger
	recorder     *audit.Recorder
	storeTimeout time.Duration
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithRecorder(recorder *audit.Recorder) Option {
	return func(s *Service) { s.recorder = recorder }
}

func WithStoreTimeout(d time.Duration) Option {
	return func(s *Service) { s.storeTimeout = d }
}

// New constructs a Service.
func New(orgs OrganizationStore, docCounter DocumentCounter, opts ...Option) *Service {
	s := &Service{
		orgs:         orgs,
		docCounter:   docCounter,
		logger:       slog.Default(),
		storeTimeout: 8 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateRequest carries the onboarding fields.
type CreateRequest struct {
	LegalName    string
	TaxID        string
	ContractDate time.Time
}

// Create onboards a new organization. Staff only.
func (s *Service) Create(ctx context.Context, actor identity.Principal, req CreateRequest) (*models.Organization, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}

	org, err := models.NewOrganization(id.NewOrganizationID(), req.LegalName, req.TaxID, req.ContractDate)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			return nil, dErrors.New(dErrors.CodeValidation, dErrors.MessageOf(err))
		}
		return nil, err
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	if err := s.orgs.CreateIfNameAvailable(storeCtx, org); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "organization legal name must be unique")
		}
		return nil, translateStoreErr(err, "failed to create organization")
	}

	s.recorder.Record(ctx, &actor, audit.ActionOrgCreated, org.ID.String(),
		audit.WithMetadata("legal_name", org.LegalName))
	return org, nil
}

// Get fetches one organization. Staff only; a CLIENT may only see its own.
func (s *Service) Get(ctx context.Context, actor identity.Principal, orgID id.OrganizationID) (*models.Organization, error) {
	if !actor.IsStaff() && actor.OrganizationID != orgID {
		return nil, dErrors.New(dErrors.CodeForbidden, "cannot access another organization")
	}
	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	org, err := s.orgs.FindByID(storeCtx, orgID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "organization not found")
		}
		return nil, translateStoreErr(err, "failed to load organization")
	}
	return org, nil
}

// List returns all organizations. Staff only.
func (s *Service) List(ctx context.Context, actor identity.Principal) ([]*models.Organization, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	orgs, err := s.orgs.List(storeCtx)
	if err != nil {
		return nil, translateStoreErr(err, "failed to list organizations")
	}
	return orgs, nil
}

// UpdateRequest carries optional field updates.
type UpdateRequest struct {
	LegalName         *string
	TaxID             *string
	ContractDate      *time.Time
	AssignedAnalystID *id.PrincipalID
}

// Update edits mutable fields. Staff only.
func (s *Service) Update(ctx context.Context, actor identity.Principal, orgID id.OrganizationID, req UpdateRequest) (*models.Organization, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	org, err := s.orgs.FindByID(storeCtx, orgID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "organization not found")
		}
		return nil, translateStoreErr(err, "failed to load organization")
	}

	if req.LegalName != nil {
		if *req.LegalName == "" {
			return nil, dErrors.New(dErrors.CodeValidation, "legal name cannot be empty")
		}
		org.LegalName = *req.LegalName
	}
	if req.TaxID != nil {
		if *req.TaxID == "" {
			return nil, dErrors.New(dErrors.CodeValidation, "tax id cannot be empty")
		}
		org.TaxID = *req.TaxID
	}
	if req.ContractDate != nil {
		org.ContractDate = *req.ContractDate
	}
	if req.AssignedAnalystID != nil {
		org.AssignedAnalystID = *req.AssignedAnalystID
	}
	org.UpdatedAt = time.Now()

	if err := s.orgs.Update(storeCtx, org); err != nil {
		return nil, translateStoreErr(err, "failed to update organization")
	}

	s.recorder.Record(ctx, &actor, audit.ActionOrgUpdated, org.ID.String())
	return org, nil
}

// Deactivate retires an organization. Refused while it still owns documents
// so no document subtree is ever orphaned silently.
func (s *Service) Deactivate(ctx context.Context, actor identity.Principal, orgID id.OrganizationID) error {
	if err := requireStaff(actor); err != nil {
		return err
	}
	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	org, err := s.orgs.FindByID(storeCtx, orgID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "organization not found")
		}
		return translateStoreErr(err, "failed to load organization")
	}

	if s.docCounter != nil {
		count, err := s.docCounter.CountByOwner(storeCtx, orgID)
		if err != nil {
			return translateStoreErr(err, "failed to count organization documents")
		}
		if count > 0 {
			return dErrors.Newf(dErrors.CodeConflict, "organization still owns %d documents; remove them first", count)
		}
	}

	if err := org.Deactivate(); err != nil {
		return err
	}
	if err := s.orgs.Update(storeCtx, org); err != nil {
		return translateStoreErr(err, "failed to deactivate organization")
	}

	s.recorder.Record(ctx, &actor, audit.ActionOrgDeactivated, org.ID.String(),
		audit.WithSeverity(audit.SeverityWarning))
	return nil
}

// Reactivate restores a deactivated organization. Staff only.
func (s *Service) Reactivate(ctx context.Context, actor identity.Principal, orgID id.OrganizationID) error {
	if err := requireStaff(actor); err != nil {
		return err
	}
	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	org, err := s.orgs.FindByID(storeCtx, orgID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "organization not found")
		}
		return translateStoreErr(err, "failed to load organization")
	}
	if err := org.Reactivate(); err != nil {
		return err
	}
	if err := s.orgs.Update(storeCtx, org); err != nil {
		return translateStoreErr(err, "failed to reactivate organization")
	}

	s.recorder.Record(ctx, &actor, audit.ActionOrgReactivated, org.ID.String())
	return nil
}

func requireStaff(actor identity.Principal) error {
	if !actor.IsStaff() {
		return dErrors.New(dErrors.CodeForbidden, "operation requires QUALITY or ADMIN role")
	}
	return nil
}

// translateStoreErr maps infrastructure failures to domain errors, keeping
// timeouts distinct from definitive not-found/denied outcomes so callers can
// retry idempotent reads.
func translateStoreErr(err error, message string) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, sentinel.ErrTimeout) {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "store operation timed out")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, message)
}
