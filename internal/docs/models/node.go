// Package models defines the document tree entities and the tenant
// visibility scope applied to every query over them.
package models

import (
	"strings"
	"time"

	dErrors "certportal/pkg/domain-errors"
	id "certportal/pkg/domain"
)

// NodeKind distinguishes folders from files.
type NodeKind string

const (
	KindFolder NodeKind = "FOLDER"
	KindFile   NodeKind = "FILE"
)

// ComplianceStatus is the quality-approval lifecycle state of a certificate.
type ComplianceStatus string

const (
	StatusPending  ComplianceStatus = "PENDING"
	StatusApproved ComplianceStatus = "APPROVED"
	StatusRejected ComplianceStatus = "REJECTED"
)

// ComplianceMetadata is attached to FILE nodes. InspectedAt and
// InspectedByName are set together or not at all; REJECTED always carries a
// non-empty RejectionReason.
type ComplianceMetadata struct {
	Status          ComplianceStatus `json:"status"`
	BatchNumber     string           `json:"batchNumber,omitempty"`
	ProductName     string           `json:"productName,omitempty"`
	InvoiceNumber   string           `json:"invoiceNumber,omitempty"`
	RejectionReason string           `json:"rejectionReason,omitempty"`
	InspectedAt     time.Time        `json:"inspectedAt,omitempty"`
	InspectedByName string           `json:"inspectedByName,omitempty"`
}

// DocumentNode is one node of the shared document tree. ParentID is the zero
// id for roots. Folders owned by no organization (zero OwnerOrganizationID)
// are system folders visible to everyone.
type DocumentNode struct {
	ID                  id.NodeID           `json:"id"`
	ParentID            id.NodeID           `json:"parentId,omitempty"`
	Name                string              `json:"name"`
	Kind                NodeKind            `json:"kind"`
	OwnerOrganizationID id.OrganizationID   `json:"ownerOrganizationId,omitempty"`
	SizeBytes           int64               `json:"sizeBytes,omitempty"`
	ContentType         string              `json:"contentType,omitempty"`
	StorageRef          string              `json:"storageRef,omitempty"`
	Compliance          *ComplianceMetadata `json:"complianceMetadata,omitempty"`
	UpdatedAt           time.Time           `json:"updatedAt"`
}

// IsRoot reports whether the node sits directly under the synthetic root.
func (n *DocumentNode) IsRoot() bool { return n.ParentID.IsNil() }

// ValidateName rejects names that would break navigation or blob paths.
func ValidateName(name string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return dErrors.New(dErrors.CodeValidation, "name cannot be empty")
	}
	if len(trimmed) > 255 {
		return dErrors.New(dErrors.CodeValidation, "name cannot exceed 255 characters")
	}
	if strings.ContainsAny(trimmed, "/\\") {
		return dErrors.New(dErrors.CodeValidation, "name cannot contain path separators")
	}
	return nil
}

// Crumb is one step of a breadcrumb trail. The synthetic root crumb has the
// zero id.
type Crumb struct {
	ID   id.NodeID `json:"id,omitempty"`
	Name string    `json:"name"`
}

// PageRequest is an offset window over an ordered listing.
type PageRequest struct {
	Offset int
	Limit  int
}

// Normalize clamps the window to sane bounds.
func (p PageRequest) Normalize() PageRequest {
	if p.Offset < 0 {
		p.Offset = 0
	}
	if p.Limit <= 0 || p.Limit > 200 {
		p.Limit = 50
	}
	return p
}

// Page is one window of results plus the information needed to page further.
type Page struct {
	Nodes   []*DocumentNode `json:"nodes"`
	Total   int             `json:"total"`
	HasMore bool            `json:"hasMore"`
}
