package httptransport

import (
	"encoding/json"
	"net/http"

	"certportal/internal/compliance"
	dErrors "certportal/pkg/domain-errors"
	"certportal/pkg/platform/httputil"
)

// ComplianceHandler exposes the inspection operation.
type ComplianceHandler struct {
	compliance *compliance.Service
}

type inspectRequest struct {
	Decision string `json:"decision"`
	Reason   string `json:"reason,omitempty"`
}

func (h *ComplianceHandler) handleInspect(w http.ResponseWriter, r *http.Request) {
	actor, ok := principal(w, r)
	if !ok {
		return
	}
	nodeID, ok := nodeParam(w, r)
	if !ok {
		return
	}
	var req inspectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	node, err := h.compliance.Inspect(r.Context(), actor, nodeID, compliance.Decision(req.Decision), req.Reason)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, node)
}
