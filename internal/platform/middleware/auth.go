package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"certportal/internal/identity"
	dErrors "certportal/pkg/domain-errors"
	"certportal/pkg/platform/httputil"
	"certportal/pkg/requestcontext"
)

// TokenVerifier validates bearer tokens and maps them to principals.
type TokenVerifier interface {
	Verify(tokenString string) (identity.Principal, error)
}

// RequireAuth validates the Authorization header and injects the principal
// into the request context. Blocked accounts and malformed principals are
// rejected here, before any service sees the request.
func RequireAuth(verifier TokenVerifier, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := requestcontext.RequestID(ctx)

			const bearerPrefix = "Bearer "
			authHeader := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(authHeader, bearerPrefix)
			if !ok || token == "" {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestID,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing or invalid Authorization header"))
				return
			}

			principal, err := verifier.Verify(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestID,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "invalid or expired token"))
				return
			}

			if err := principal.Validate(); err != nil {
				logger.WarnContext(ctx, "principal rejected",
					"error", err,
					"principal_id", principal.ID.String(),
					"request_id", requestID,
				)
				httputil.WriteError(w, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(identity.WithPrincipal(ctx, principal)))
		})
	}
}
