package httptransport

import (
	"encoding/json"
	"net/http"

	"certportal/internal/audit"
	"certportal/internal/identity"
	dErrors "certportal/pkg/domain-errors"
	"certportal/pkg/platform/httputil"
)

// AuthHandler exchanges credentials for a session token through the identity
// provider.
type AuthHandler struct {
	provider identity.Provider
	recorder *audit.Recorder
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

func (h *AuthHandler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	if req.Username == "" || req.Password == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "username and password are required"))
		return
	}

	token, err := h.provider.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		// Failed logins are unauthenticated events; the actor is unknown.
		h.recorder.Record(r.Context(), nil, audit.ActionLoginFailed, req.Username,
			audit.WithSeverity(audit.SeverityWarning),
			audit.WithOutcome(audit.OutcomeFailure))
		httputil.WriteError(w, err)
		return
	}

	h.recorder.Record(r.Context(), nil, audit.ActionLoginSucceeded, req.Username)
	httputil.WriteJSON(w, http.StatusOK, loginResponse{Token: token})
}
