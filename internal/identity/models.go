// Package identity models the authenticated actors of the portal. Principals
// are owned by the identity provider; the core treats them as read-only
// ground truth for role and organization membership.
package identity

import (
	dErrors "certportal/pkg/domain-errors"
	id "certportal/pkg/domain"
)

// Role is the portal-wide access role of a principal.
type Role string

const (
	// RoleAdmin has full control plus operational governance.
	RoleAdmin Role = "ADMIN"
	// RoleQuality inspects and approves documents across all organizations.
	RoleQuality Role = "QUALITY"
	// RoleClient is restricted to its own organization's approved documents.
	RoleClient Role = "CLIENT"
)

// AccountStatus gates whether a principal may act at all.
type AccountStatus string

const (
	AccountActive  AccountStatus = "ACTIVE"
	AccountBlocked AccountStatus = "BLOCKED"
)

// Principal is an authenticated actor performing operations.
type Principal struct {
	ID             id.PrincipalID
	DisplayName    string
	Role           Role
	OrganizationID id.OrganizationID // zero for ADMIN/QUALITY
	AccountStatus  AccountStatus
}

// IsStaff reports whether the principal may act across organizations.
func (p Principal) IsStaff() bool {
	return p.Role == RoleAdmin || p.Role == RoleQuality
}

// Validate enforces the principal invariants at the trust boundary.
func (p Principal) Validate() error {
	switch p.Role {
	case RoleAdmin, RoleQuality, RoleClient:
	default:
		return dErrors.Newf(dErrors.CodeInvariantViolation, "unknown role %q", p.Role)
	}
	if p.Role == RoleClient && p.OrganizationID.IsNil() {
		return dErrors.New(dErrors.CodeOrphanedAccount, "client account has no organization assigned")
	}
	if p.AccountStatus == AccountBlocked {
		return dErrors.New(dErrors.CodeForbidden, "account is blocked")
	}
	return nil
}
