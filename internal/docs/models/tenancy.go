package models

import (
	"certportal/internal/identity"
	dErrors "certportal/pkg/domain-errors"
	id "certportal/pkg/domain"
)

// Scope is the visibility restriction computed once per request and applied
// to every access path over the document tree. Stores compile it into their
// query filter and services re-check it in memory, duplicating the store's
// row-level security on purpose.
type Scope struct {
	// All grants unrestricted visibility (ADMIN, QUALITY).
	All bool
	// OwnerOrganizationID is the only organization whose approved files a
	// restricted principal may see.
	OwnerOrganizationID id.OrganizationID
}

// Visibility computes the scope for a principal. A CLIENT with no
// organization is rejected before any predicate is computed.
func Visibility(principal identity.Principal) (Scope, error) {
	if principal.IsStaff() {
		return Scope{All: true}, nil
	}
	if principal.OrganizationID.IsNil() {
		return Scope{}, dErrors.New(dErrors.CodeOrphanedAccount, "client account has no organization assigned")
	}
	return Scope{OwnerOrganizationID: principal.OrganizationID}, nil
}

// Allows reports whether the node is visible under this scope. Folders are
// always traversable so structural navigation works; files require ownership
// and an APPROVED status.
func (s Scope) Allows(node *DocumentNode) bool {
	if s.All {
		return true
	}
	if node.Kind == KindFolder {
		return true
	}
	if node.OwnerOrganizationID != s.OwnerOrganizationID {
		return false
	}
	return node.Compliance != nil && node.Compliance.Status == StatusApproved
}
