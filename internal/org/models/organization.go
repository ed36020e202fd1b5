// Package models defines the organization (tenant) domain model.
package models

import (
	"strings"
	"time"

	dErrors "certportal/pkg/domain-errors"
	id "certportal/pkg/domain"
)

// OrganizationStatus is the lifecycle state of a client organization.
type OrganizationStatus string

const (
	OrganizationStatusActive   OrganizationStatus = "ACTIVE"
	OrganizationStatusInactive OrganizationStatus = "INACTIVE"
)

// Organization is a client company whose documents are isolated from other
// organizations. Created on onboarding by QUALITY/ADMIN; never hard-deleted
// while its document subtree exists.
type Organization struct {
	ID                id.OrganizationID
	LegalName         string
	TaxID             string
	ContractDate      time.Time
	Status            OrganizationStatus
	AssignedAnalystID id.PrincipalID // zero when unassigned
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// NewOrganization constructs an organization, enforcing creation invariants.
func NewOrganization(orgID id.OrganizationID, legalName, taxID string, contractDate time.Time) (*Organization, error) {
	legalName = strings.TrimSpace(legalName)
	taxID = strings.TrimSpace(taxID)

	if legalName == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "legal name cannot be empty")
	}
	if len(legalName) > 256 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "legal name must be 256 characters or less")
	}
	if taxID == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "tax id cannot be empty")
	}
	if contractDate.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "contract date is required")
	}

	now := time.Now()
	return &Organization{
		ID:           orgID,
		LegalName:    legalName,
		TaxID:        taxID,
		ContractDate: contractDate,
		Status:       OrganizationStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// IsActive reports whether the organization may be served.
func (o *Organization) IsActive() bool {
	return o.Status == OrganizationStatusActive
}

// Deactivate transitions the organization to INACTIVE.
func (o *Organization) Deactivate() error {
	if o.Status == OrganizationStatusInactive {
		return dErrors.New(dErrors.CodeInvariantViolation, "organization is already inactive")
	}
	o.Status = OrganizationStatusInactive
	o.UpdatedAt = time.Now()
	return nil
}

// Reactivate transitions the organization back to ACTIVE.
func (o *Organization) Reactivate() error {
	if o.Status == OrganizationStatusActive {
		return dErrors.New(dErrors.CodeInvariantViolation, "organization is already active")
	}
	o.Status = OrganizationStatusActive
	o.UpdatedAt = time.Now()
	return nil
}
