// Package service orchestrates the hierarchical certificate tree: tenant
// filtered listing and search, breadcrumbs, folder management, uploads, and
// recursive deletion with blob cleanup.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"certportal/internal/audit"
	"certportal/internal/docs/blob"
	"certportal/internal/docs/models"
	"certportal/internal/identity"
	"certportal/internal/platform/metrics"
	dErrors "certportal/pkg/domain-errors"
	id "certportal/pkg/domain"
	"certportal/pkg/platform/sentinel"
)

// maxBreadcrumbDepth bounds the parent-chain walk so a malformed cycle in
// parent links fails loudly instead of looping.
const maxBreadcrumbDepth = 32

// DocumentStore is the persistence surface the service depends on. Query
// methods take the visibility scope so filtering happens inside the store.
type DocumentStore interface {
	Insert(ctx context.Context, node *models.DocumentNode) error
	FindByID(ctx context.Context, nodeID id.NodeID) (*models.DocumentNode, error)
	Update(ctx context.Context, node *models.DocumentNode) error
	ChildByName(ctx context.Context, parentID id.NodeID, name string) (*models.DocumentNode, error)
	ListChildren(ctx context.Context, parentID id.NodeID, scope models.Scope, page models.PageRequest) (*models.Page, error)
	Search(ctx context.Context, query string, scope models.Scope, page models.PageRequest) (*models.Page, error)
	Subtree(ctx context.Context, rootID id.NodeID) ([]*models.DocumentNode, error)
	DeleteSubtree(ctx context.Context, ids []id.NodeID) error
	CountByOwner(ctx context.Context, orgID id.OrganizationID) (int, error)
}

// Service exposes the document tree operations. All mutations are staff only;
// reads are tenant scoped through models.Visibility.
type Service struct {
	docs   DocumentStore
	blobs  blob.Storage
	tracer trace.Tracer

	logger   *slog.Logger
	recorder *audit.Recorder
	metrics  *metrics.Metrics

	storeTimeout   time.Duration
	uploadMaxBytes int64
	allowedTypes   map[string]struct{}
	signedURLTTL   time.Duration
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithRecorder(recorder *audit.Recorder) Option {
	return func(s *Service) { s.recorder = recorder }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithStoreTimeout(d time.Duration) Option {
	return func(s *Service) { s.storeTimeout = d }
}

// WithUploadLimits overrides the size ceiling and content-type allow-list.
func WithUploadLimits(maxBytes int64, contentTypes []string) Option {
	return func(s *Service) {
		s.uploadMaxBytes = maxBytes
		s.allowedTypes = make(map[string]struct{}, len(contentTypes))
		for _, ct := range contentTypes {
			s.allowedTypes[ct] = struct{}{}
		}
	}
}

func WithSignedURLTTL(d time.Duration) Option {
	return func(s *Service) { s.signedURLTTL = d }
}

// New constructs a Service over the given store and blob backend.
func New(docs DocumentStore, blobs blob.Storage, opts ...Option) *Service {
	s := &Service{
		docs:           docs,
		blobs:          blobs,
		tracer:         otel.Tracer("certportal/docs"),
		logger:         slog.Default(),
		storeTimeout:   8 * time.Second,
		uploadMaxBytes: 10 << 20,
		allowedTypes: map[string]struct{}{
			"application/pdf": {},
			"image/jpeg":      {},
			"image/png":       {},
		},
		signedURLTTL: 15 * time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// List returns the visible children of parentID. The zero parentID lists the
// tree roots.
func (s *Service) List(ctx context.Context, actor identity.Principal, parentID id.NodeID, page models.PageRequest) (*models.Page, error) {
	ctx, span := s.tracer.Start(ctx, "docs.List")
	defer span.End()

	scope, err := models.Visibility(actor)
	if err != nil {
		return nil, err
	}
	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	result, err := s.docs.ListChildren(storeCtx, parentID, scope, page)
	if err != nil {
		return nil, translateStoreErr(err, "failed to list documents")
	}
	return result, nil
}

// Search returns visible nodes matching the query anywhere in the tree.
func (s *Service) Search(ctx context.Context, actor identity.Principal, query string, page models.PageRequest) (*models.Page, error) {
	ctx, span := s.tracer.Start(ctx, "docs.Search")
	defer span.End()

	if query == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "search query cannot be empty")
	}
	scope, err := models.Visibility(actor)
	if err != nil {
		return nil, err
	}
	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	result, err := s.docs.Search(storeCtx, query, scope, page)
	if err != nil {
		return nil, translateStoreErr(err, "failed to search documents")
	}
	return result, nil
}

// Breadcrumbs resolves the trail from the synthetic root down to nodeID. The
// walk is depth-bounded so a corrupted parent chain terminates with an error.
func (s *Service) Breadcrumbs(ctx context.Context, actor identity.Principal, nodeID id.NodeID) ([]models.Crumb, error) {
	ctx, span := s.tracer.Start(ctx, "docs.Breadcrumbs")
	defer span.End()

	node, err := s.visibleNode(ctx, actor, nodeID)
	if err != nil {
		return nil, err
	}
	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	trail := []models.Crumb{{ID: node.ID, Name: node.Name}}
	current := node
	for depth := 0; !current.ParentID.IsNil(); depth++ {
		if depth >= maxBreadcrumbDepth {
			return nil, dErrors.Newf(dErrors.CodeCorruptHierarchy,
				"parent chain of node %s exceeds %d steps", nodeID, maxBreadcrumbDepth)
		}
		parent, err := s.docs.FindByID(storeCtx, current.ParentID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return nil, dErrors.Newf(dErrors.CodeCorruptHierarchy,
					"node %s references missing parent %s", current.ID, current.ParentID)
			}
			return nil, translateStoreErr(err, "failed to resolve breadcrumbs")
		}
		trail = append(trail, models.Crumb{ID: parent.ID, Name: parent.Name})
		current = parent
	}
	trail = append(trail, models.Crumb{Name: "Home"})

	// Reverse into root-first order.
	for i, j := 0, len(trail)-1; i < j; i, j = i+1, j-1 {
		trail[i], trail[j] = trail[j], trail[i]
	}
	return trail, nil
}

// Fetch returns a single visible node.
func (s *Service) Fetch(ctx context.Context, actor identity.Principal, nodeID id.NodeID) (*models.DocumentNode, error) {
	ctx, span := s.tracer.Start(ctx, "docs.Fetch")
	defer span.End()
	return s.visibleNode(ctx, actor, nodeID)
}

// DownloadURL issues a signed URL for a visible FILE node. The same
// visibility check guards this path as list and search.
func (s *Service) DownloadURL(ctx context.Context, actor identity.Principal, nodeID id.NodeID) (string, error) {
	ctx, span := s.tracer.Start(ctx, "docs.DownloadURL")
	defer span.End()

	node, err := s.visibleNode(ctx, actor, nodeID)
	if err != nil {
		return "", err
	}
	if node.Kind != models.KindFile {
		return "", dErrors.New(dErrors.CodeValidation, "only files can be downloaded")
	}

	blobCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	url, err := s.blobs.SignedURL(blobCtx, node.StorageRef, s.signedURLTTL)
	if err != nil {
		return "", translateStoreErr(err, "failed to issue download URL")
	}
	return url, nil
}

// CreateFolder adds a folder under parentID. Staff only.
func (s *Service) CreateFolder(ctx context.Context, actor identity.Principal, parentID id.NodeID, name string, ownerOrg id.OrganizationID) (*models.DocumentNode, error) {
	ctx, span := s.tracer.Start(ctx, "docs.CreateFolder")
	defer span.End()

	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	if err := models.ValidateName(name); err != nil {
		return nil, err
	}
	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	if !parentID.IsNil() {
		parent, err := s.docs.FindByID(storeCtx, parentID)
		if err != nil {
			return nil, notFoundOr(err, "parent folder not found")
		}
		if parent.Kind != models.KindFolder {
			return nil, dErrors.New(dErrors.CodeValidation, "parent must be a folder")
		}
	}
	if err := s.requireNameFree(storeCtx, parentID, name); err != nil {
		return nil, err
	}

	node := &models.DocumentNode{
		ID:                  id.NewNodeID(),
		ParentID:            parentID,
		Name:                name,
		Kind:                models.KindFolder,
		OwnerOrganizationID: ownerOrg,
		UpdatedAt:           time.Now().UTC(),
	}
	if err := s.docs.Insert(storeCtx, node); err != nil {
		return nil, translateStoreErr(err, "failed to create folder")
	}

	s.recorder.Record(ctx, &actor, audit.ActionFolderCreated, node.ID.String(),
		audit.WithMetadata("name", name))
	return node, nil
}

// UploadRequest carries one certificate upload.
type UploadRequest struct {
	ParentID            id.NodeID
	Name                string
	ContentType         string
	Data                []byte
	OwnerOrganizationID id.OrganizationID
	BatchNumber         string
	ProductName         string
	InvoiceNumber       string
}

// Upload stores a certificate file. Size and content type are checked before
// any byte reaches storage; new files start their compliance lifecycle as
// PENDING. Staff only.
func (s *Service) Upload(ctx context.Context, actor identity.Principal, req UploadRequest) (*models.DocumentNode, error) {
	ctx, span := s.tracer.Start(ctx, "docs.Upload")
	defer span.End()

	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	if err := models.ValidateName(req.Name); err != nil {
		return nil, err
	}
	if int64(len(req.Data)) > s.uploadMaxBytes {
		return nil, dErrors.Newf(dErrors.CodePayloadTooLarge,
			"upload exceeds the %d byte limit", s.uploadMaxBytes)
	}
	if _, ok := s.allowedTypes[req.ContentType]; !ok {
		return nil, dErrors.Newf(dErrors.CodeUnsupportedMedia,
			"content type %q is not allowed", req.ContentType)
	}
	if req.OwnerOrganizationID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "uploaded certificates must belong to an organization")
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	if !req.ParentID.IsNil() {
		parent, err := s.docs.FindByID(storeCtx, req.ParentID)
		if err != nil {
			return nil, notFoundOr(err, "parent folder not found")
		}
		if parent.Kind != models.KindFolder {
			return nil, dErrors.New(dErrors.CodeValidation, "parent must be a folder")
		}
	}
	if err := s.requireNameFree(storeCtx, req.ParentID, req.Name); err != nil {
		return nil, err
	}

	node := &models.DocumentNode{
		ID:                  id.NewNodeID(),
		ParentID:            req.ParentID,
		Name:                req.Name,
		Kind:                models.KindFile,
		OwnerOrganizationID: req.OwnerOrganizationID,
		SizeBytes:           int64(len(req.Data)),
		ContentType:         req.ContentType,
		Compliance: &models.ComplianceMetadata{
			Status:        models.StatusPending,
			BatchNumber:   req.BatchNumber,
			ProductName:   req.ProductName,
			InvoiceNumber: req.InvoiceNumber,
		},
		UpdatedAt: time.Now().UTC(),
	}
	node.StorageRef = fmt.Sprintf("documents/%s/%s", req.OwnerOrganizationID, node.ID)

	if err := s.blobs.Upload(storeCtx, node.StorageRef, req.Data, req.ContentType); err != nil {
		return nil, translateStoreErr(err, "failed to store document bytes")
	}
	if err := s.docs.Insert(storeCtx, node); err != nil {
		// The row never landed; remove the blob so nothing is orphaned.
		if delErr := s.blobs.Delete(storeCtx, []string{node.StorageRef}); delErr != nil {
			s.logger.ErrorContext(ctx, "failed to clean up blob after insert failure",
				"error", delErr,
				"storage_ref", node.StorageRef,
			)
		}
		return nil, translateStoreErr(err, "failed to create document record")
	}

	if s.metrics != nil {
		s.metrics.DocumentsUploaded.Inc()
	}
	s.recorder.Record(ctx, &actor, audit.ActionDocumentUploaded, node.ID.String(),
		audit.WithMetadata(
			"name", req.Name,
			"organization_id", req.OwnerOrganizationID.String(),
			"content_type", req.ContentType,
		))
	return node, nil
}

// Rename changes a node's name, refusing sibling collisions. Staff only.
func (s *Service) Rename(ctx context.Context, actor identity.Principal, nodeID id.NodeID, newName string) (*models.DocumentNode, error) {
	ctx, span := s.tracer.Start(ctx, "docs.Rename")
	defer span.End()

	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	if err := models.ValidateName(newName); err != nil {
		return nil, err
	}
	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	node, err := s.docs.FindByID(storeCtx, nodeID)
	if err != nil {
		return nil, notFoundOr(err, "document node not found")
	}
	previous := node.Name
	if previous == newName {
		return node, nil
	}
	if err := s.requireNameFreeExcept(storeCtx, node.ParentID, newName, nodeID); err != nil {
		return nil, err
	}

	node.Name = newName
	node.UpdatedAt = time.Now().UTC()
	if err := s.docs.Update(storeCtx, node); err != nil {
		return nil, translateStoreErr(err, "failed to rename node")
	}

	s.recorder.Record(ctx, &actor, audit.ActionNodeRenamed, node.ID.String(),
		audit.WithMetadata("from", previous, "to", newName))
	return node, nil
}

// Move reparents a node. The target must be a folder outside the node's own
// subtree and must not already hold a child with the same name. Staff only.
func (s *Service) Move(ctx context.Context, actor identity.Principal, nodeID, newParentID id.NodeID) (*models.DocumentNode, error) {
	ctx, span := s.tracer.Start(ctx, "docs.Move")
	defer span.End()

	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	if nodeID == newParentID {
		return nil, dErrors.New(dErrors.CodeValidation, "cannot move a node into itself")
	}
	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	node, err := s.docs.FindByID(storeCtx, nodeID)
	if err != nil {
		return nil, notFoundOr(err, "document node not found")
	}
	if node.ParentID == newParentID {
		return node, nil
	}

	if !newParentID.IsNil() {
		parent, err := s.docs.FindByID(storeCtx, newParentID)
		if err != nil {
			return nil, notFoundOr(err, "target folder not found")
		}
		if parent.Kind != models.KindFolder {
			return nil, dErrors.New(dErrors.CodeValidation, "target must be a folder")
		}
		if err := s.ensureOutsideSubtree(storeCtx, nodeID, parent); err != nil {
			return nil, err
		}
	}
	if err := s.requireNameFree(storeCtx, newParentID, node.Name); err != nil {
		return nil, err
	}

	previous := node.ParentID
	node.ParentID = newParentID
	node.UpdatedAt = time.Now().UTC()
	if err := s.docs.Update(storeCtx, node); err != nil {
		return nil, translateStoreErr(err, "failed to move node")
	}

	s.recorder.Record(ctx, &actor, audit.ActionNodeMoved, node.ID.String(),
		audit.WithMetadata("from", previous.String(), "to", newParentID.String()))
	return node, nil
}

// Delete removes a node and, for folders, its whole subtree. Blob objects are
// removed before database rows so a partial failure leaves re-deletable blobs
// rather than unreachable ones; blob deletion is idempotent, so a retry
// converges. Staff only.
func (s *Service) Delete(ctx context.Context, actor identity.Principal, nodeID id.NodeID) error {
	ctx, span := s.tracer.Start(ctx, "docs.Delete")
	defer span.End()

	if err := requireStaff(actor); err != nil {
		return err
	}
	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	subtree, err := s.docs.Subtree(storeCtx, nodeID)
	if err != nil {
		return notFoundOr(err, "document node not found")
	}

	var (
		ids  = make([]id.NodeID, 0, len(subtree))
		refs []string
	)
	for _, node := range subtree {
		ids = append(ids, node.ID)
		if node.Kind == models.KindFile && node.StorageRef != "" {
			refs = append(refs, node.StorageRef)
		}
	}

	if len(refs) > 0 {
		if err := s.blobs.Delete(storeCtx, refs); err != nil {
			return translateStoreErr(err, "failed to delete document blobs")
		}
	}
	if err := s.docs.DeleteSubtree(storeCtx, ids); err != nil {
		return translateStoreErr(err, "failed to delete document records")
	}

	s.recorder.Record(ctx, &actor, audit.ActionNodeDeleted, nodeID.String(),
		audit.WithSeverity(audit.SeverityWarning),
		audit.WithMetadata("nodes_removed", fmt.Sprintf("%d", len(ids))))
	return nil
}

// visibleNode loads a node and applies the actor's visibility scope. A hit on
// an invisible node is indistinguishable from a missing one, and the attempt
// is recorded as a tenant isolation violation.
func (s *Service) visibleNode(ctx context.Context, actor identity.Principal, nodeID id.NodeID) (*models.DocumentNode, error) {
	scope, err := models.Visibility(actor)
	if err != nil {
		return nil, err
	}
	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	node, err := s.docs.FindByID(storeCtx, nodeID)
	if err != nil {
		return nil, notFoundOr(err, "document node not found")
	}
	if !scope.Allows(node) {
		s.recorder.Record(ctx, &actor, audit.ActionTenantViolation, nodeID.String(),
			audit.WithSeverity(audit.SeverityWarning),
			audit.WithOutcome(audit.OutcomeFailure))
		return nil, dErrors.New(dErrors.CodeNotFound, "document node not found")
	}
	return node, nil
}

// ensureOutsideSubtree walks up from the candidate parent and fails if it
// passes through nodeID, which would create a cycle.
func (s *Service) ensureOutsideSubtree(ctx context.Context, nodeID id.NodeID, candidate *models.DocumentNode) error {
	current := candidate
	for depth := 0; ; depth++ {
		if current.ID == nodeID {
			return dErrors.New(dErrors.CodeValidation, "cannot move a folder into its own subtree")
		}
		if current.ParentID.IsNil() {
			return nil
		}
		if depth >= maxBreadcrumbDepth {
			return dErrors.Newf(dErrors.CodeCorruptHierarchy,
				"parent chain of node %s exceeds %d steps", candidate.ID, maxBreadcrumbDepth)
		}
		parent, err := s.docs.FindByID(ctx, current.ParentID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.Newf(dErrors.CodeCorruptHierarchy,
					"node %s references missing parent %s", current.ID, current.ParentID)
			}
			return translateStoreErr(err, "failed to validate move target")
		}
		current = parent
	}
}

func (s *Service) requireNameFree(ctx context.Context, parentID id.NodeID, name string) error {
	return s.requireNameFreeExcept(ctx, parentID, name, id.NodeID{})
}

func (s *Service) requireNameFreeExcept(ctx context.Context, parentID id.NodeID, name string, except id.NodeID) error {
	existing, err := s.docs.ChildByName(ctx, parentID, name)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil
	}
	if err != nil {
		return translateStoreErr(err, "failed to check name availability")
	}
	if existing.ID == except {
		return nil
	}
	return dErrors.Newf(dErrors.CodeConflict, "a node named %q already exists here", name)
}

func requireStaff(actor identity.Principal) error {
	if !actor.IsStaff() {
		return dErrors.New(dErrors.CodeForbidden, "operation requires QUALITY or ADMIN role")
	}
	return nil
}

func notFoundOr(err error, message string) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, message)
	}
	return translateStoreErr(err, message)
}

func translateStoreErr(err error, message string) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, sentinel.ErrTimeout) {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "store operation timed out")
	}
	if errors.Is(err, sentinel.ErrConflict) {
		return dErrors.Wrap(err, dErrors.CodeConflict, message)
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, message)
}
