// Package testutil provides shared fixtures for service and transport tests.
package testutil

import (
	"context"
	"time"

	"certportal/internal/identity"
	id "certportal/pkg/domain"
	"certportal/pkg/requestcontext"
)

// Admin returns an ADMIN principal fixture.
func Admin() identity.Principal {
	return identity.Principal{
		ID:            id.NewPrincipalID(),
		DisplayName:   "Ada Admin",
		Role:          identity.RoleAdmin,
		AccountStatus: identity.AccountActive,
	}
}

// Quality returns a QUALITY principal fixture.
func Quality() identity.Principal {
	return identity.Principal{
		ID:            id.NewPrincipalID(),
		DisplayName:   "Quinn Quality",
		Role:          identity.RoleQuality,
		AccountStatus: identity.AccountActive,
	}
}

// Client returns a CLIENT principal fixture bound to orgID.
func Client(orgID id.OrganizationID) identity.Principal {
	return identity.Principal{
		ID:             id.NewPrincipalID(),
		DisplayName:    "Carla Client",
		Role:           identity.RoleClient,
		OrganizationID: orgID,
		AccountStatus:  identity.AccountActive,
	}
}

// ContextAt returns a context whose request clock is pinned to now, so tests
// control time-dependent behavior deterministically.
func ContextAt(now time.Time) context.Context {
	return requestcontext.WithTime(context.Background(), now)
}
