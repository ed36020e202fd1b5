package httptransport

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"certportal/internal/org/service"
	dErrors "certportal/pkg/domain-errors"
	id "certportal/pkg/domain"
	"certportal/pkg/platform/httputil"
)

// OrgHandler exposes organization onboarding and lifecycle to staff.
type OrgHandler struct {
	orgs *service.Service
}

type createOrgRequest struct {
	LegalName    string    `json:"legalName"`
	TaxID        string    `json:"taxId"`
	ContractDate time.Time `json:"contractDate"`
}

func (h *OrgHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	actor, ok := principal(w, r)
	if !ok {
		return
	}
	var req createOrgRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	org, err := h.orgs.Create(r.Context(), actor, service.CreateRequest{
		LegalName:    req.LegalName,
		TaxID:        req.TaxID,
		ContractDate: req.ContractDate,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, org)
}

func (h *OrgHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	actor, ok := principal(w, r)
	if !ok {
		return
	}
	orgID, ok := orgParam(w, r)
	if !ok {
		return
	}
	org, err := h.orgs.Get(r.Context(), actor, orgID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, org)
}

func (h *OrgHandler) handleList(w http.ResponseWriter, r *http.Request) {
	actor, ok := principal(w, r)
	if !ok {
		return
	}
	orgs, err := h.orgs.List(r.Context(), actor)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"organizations": orgs})
}

type updateOrgRequest struct {
	LegalName         *string    `json:"legalName,omitempty"`
	TaxID             *string    `json:"taxId,omitempty"`
	ContractDate      *time.Time `json:"contractDate,omitempty"`
	AssignedAnalystID *string    `json:"assignedAnalystId,omitempty"`
}

func (h *OrgHandler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	actor, ok := principal(w, r)
	if !ok {
		return
	}
	orgID, ok := orgParam(w, r)
	if !ok {
		return
	}
	var req updateOrgRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	update := service.UpdateRequest{
		LegalName:    req.LegalName,
		TaxID:        req.TaxID,
		ContractDate: req.ContractDate,
	}
	if req.AssignedAnalystID != nil {
		analystID, err := id.ParsePrincipalID(*req.AssignedAnalystID)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid analyst id"))
			return
		}
		update.AssignedAnalystID = &analystID
	}

	org, err := h.orgs.Update(r.Context(), actor, orgID, update)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, org)
}

func (h *OrgHandler) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	actor, ok := principal(w, r)
	if !ok {
		return
	}
	orgID, ok := orgParam(w, r)
	if !ok {
		return
	}
	if err := h.orgs.Deactivate(r.Context(), actor, orgID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *OrgHandler) handleReactivate(w http.ResponseWriter, r *http.Request) {
	actor, ok := principal(w, r)
	if !ok {
		return
	}
	orgID, ok := orgParam(w, r)
	if !ok {
		return
	}
	if err := h.orgs.Reactivate(r.Context(), actor, orgID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func orgParam(w http.ResponseWriter, r *http.Request) (id.OrganizationID, bool) {
	orgID, err := id.ParseOrganizationID(chi.URLParam(r, "orgID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid organization id"))
		return id.OrganizationID{}, false
	}
	return orgID, true
}
