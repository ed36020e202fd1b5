package httptransport

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"certportal/internal/audit"
	dErrors "certportal/pkg/domain-errors"
	id "certportal/pkg/domain"
	"certportal/pkg/platform/httputil"
)

// AuditHandler exposes the audit trail and forensic correlation to staff.
type AuditHandler struct {
	query *audit.Query
}

func (h *AuditHandler) handleList(w http.ResponseWriter, r *http.Request) {
	actor, ok := principal(w, r)
	if !ok {
		return
	}
	filter := audit.Filter{
		Category: audit.Category(r.URL.Query().Get("category")),
		ActorID:  r.URL.Query().Get("actorId"),
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			filter.Limit = n
		}
	}

	entries, err := h.query.Entries(r.Context(), actor, filter)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (h *AuditHandler) handleInvestigate(w http.ResponseWriter, r *http.Request) {
	actor, ok := principal(w, r)
	if !ok {
		return
	}
	entryID, err := id.ParseEntryID(chi.URLParam(r, "entryID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid entry id"))
		return
	}

	target, investigation, err := h.query.Investigate(r.Context(), actor, entryID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"entry":     target,
		"related":   investigation.Related,
		"riskScore": investigation.RiskScore,
	})
}
