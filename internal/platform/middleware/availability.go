package middleware

import (
	"context"
	"net/http"

	"certportal/internal/identity"
	"certportal/pkg/platform/httputil"
)

// AvailabilityGate rejects requests while the portal is locked for
// maintenance. ADMIN principals pass so they can end the window; everyone
// else gets a service_unavailable the UI renders as a full-screen block.
type AvailabilityGate interface {
	Authorize(ctx context.Context, principal identity.Principal) error
}

// Availability applies the maintenance gate. Must run after RequireAuth.
func Availability(gate AvailabilityGate) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := identity.PrincipalFromContext(r.Context())
			if ok {
				if err := gate.Authorize(r.Context(), principal); err != nil {
					httputil.WriteError(w, err)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
