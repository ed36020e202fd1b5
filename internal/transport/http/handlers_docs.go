package httptransport

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"certportal/internal/docs/models"
	docsservice "certportal/internal/docs/service"
	"certportal/internal/identity"
	dErrors "certportal/pkg/domain-errors"
	id "certportal/pkg/domain"
	"certportal/pkg/platform/httputil"
)

// uploadFormLimit caps how much multipart data is buffered in memory before
// the service-level size check runs.
const uploadFormLimit = 32 << 20

// DocsHandler exposes the document tree operations.
type DocsHandler struct {
	docs *docsservice.Service
}

func (h *DocsHandler) handleList(w http.ResponseWriter, r *http.Request) {
	actor, ok := principal(w, r)
	if !ok {
		return
	}
	parentID := id.NodeID{}
	if raw := r.URL.Query().Get("parent"); raw != "" {
		parsed, err := id.ParseNodeID(raw)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid parent id"))
			return
		}
		parentID = parsed
	}

	page, err := h.docs.List(r.Context(), actor, parentID, pageRequest(r))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, page)
}

func (h *DocsHandler) handleSearch(w http.ResponseWriter, r *http.Request) {
	actor, ok := principal(w, r)
	if !ok {
		return
	}
	page, err := h.docs.Search(r.Context(), actor, r.URL.Query().Get("q"), pageRequest(r))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, page)
}

func (h *DocsHandler) handleFetch(w http.ResponseWriter, r *http.Request) {
	actor, ok := principal(w, r)
	if !ok {
		return
	}
	nodeID, ok := nodeParam(w, r)
	if !ok {
		return
	}
	node, err := h.docs.Fetch(r.Context(), actor, nodeID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, node)
}

func (h *DocsHandler) handleBreadcrumbs(w http.ResponseWriter, r *http.Request) {
	actor, ok := principal(w, r)
	if !ok {
		return
	}
	nodeID, ok := nodeParam(w, r)
	if !ok {
		return
	}
	trail, err := h.docs.Breadcrumbs(r.Context(), actor, nodeID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"breadcrumbs": trail})
}

func (h *DocsHandler) handleDownloadURL(w http.ResponseWriter, r *http.Request) {
	actor, ok := principal(w, r)
	if !ok {
		return
	}
	nodeID, ok := nodeParam(w, r)
	if !ok {
		return
	}
	url, err := h.docs.DownloadURL(r.Context(), actor, nodeID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"url": url})
}

type createFolderRequest struct {
	ParentID            string `json:"parentId,omitempty"`
	Name                string `json:"name"`
	OwnerOrganizationID string `json:"ownerOrganizationId,omitempty"`
}

func (h *DocsHandler) handleCreateFolder(w http.ResponseWriter, r *http.Request) {
	actor, ok := principal(w, r)
	if !ok {
		return
	}
	var req createFolderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	parentID := id.NodeID{}
	if req.ParentID != "" {
		parsed, err := id.ParseNodeID(req.ParentID)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid parent id"))
			return
		}
		parentID = parsed
	}
	ownerID := id.OrganizationID{}
	if req.OwnerOrganizationID != "" {
		parsed, err := id.ParseOrganizationID(req.OwnerOrganizationID)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid organization id"))
			return
		}
		ownerID = parsed
	}

	node, err := h.docs.CreateFolder(r.Context(), actor, parentID, req.Name, ownerID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, node)
}

// handleUpload accepts a multipart form with a "file" part and the document
// metadata fields.
func (h *DocsHandler) handleUpload(w http.ResponseWriter, r *http.Request) {
	actor, ok := principal(w, r)
	if !ok {
		return
	}
	if err := r.ParseMultipartForm(uploadFormLimit); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "expected a multipart upload"))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "missing file part"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read upload"))
		return
	}

	req := docsservice.UploadRequest{
		Name:          header.Filename,
		ContentType:   header.Header.Get("Content-Type"),
		Data:          data,
		BatchNumber:   r.FormValue("batchNumber"),
		ProductName:   r.FormValue("productName"),
		InvoiceNumber: r.FormValue("invoiceNumber"),
	}
	if raw := r.FormValue("parentId"); raw != "" {
		parsed, err := id.ParseNodeID(raw)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid parent id"))
			return
		}
		req.ParentID = parsed
	}
	if raw := r.FormValue("ownerOrganizationId"); raw != "" {
		parsed, err := id.ParseOrganizationID(raw)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid organization id"))
			return
		}
		req.OwnerOrganizationID = parsed
	}

	node, err := h.docs.Upload(r.Context(), actor, req)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, node)
}

func (h *DocsHandler) handleRename(w http.ResponseWriter, r *http.Request) {
	actor, ok := principal(w, r)
	if !ok {
		return
	}
	nodeID, ok := nodeParam(w, r)
	if !ok {
		return
	}
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	node, err := h.docs.Rename(r.Context(), actor, nodeID, req.Name)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, node)
}

func (h *DocsHandler) handleMove(w http.ResponseWriter, r *http.Request) {
	actor, ok := principal(w, r)
	if !ok {
		return
	}
	nodeID, ok := nodeParam(w, r)
	if !ok {
		return
	}
	var req struct {
		ParentID string `json:"parentId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	newParent := id.NodeID{}
	if req.ParentID != "" {
		parsed, err := id.ParseNodeID(req.ParentID)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid parent id"))
			return
		}
		newParent = parsed
	}

	node, err := h.docs.Move(r.Context(), actor, nodeID, newParent)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, node)
}

func (h *DocsHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	actor, ok := principal(w, r)
	if !ok {
		return
	}
	nodeID, ok := nodeParam(w, r)
	if !ok {
		return
	}
	if err := h.docs.Delete(r.Context(), actor, nodeID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// principal pulls the authenticated actor injected by RequireAuth.
func principal(w http.ResponseWriter, r *http.Request) (identity.Principal, bool) {
	p, ok := identity.PrincipalFromContext(r.Context())
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return identity.Principal{}, false
	}
	return p, true
}

func nodeParam(w http.ResponseWriter, r *http.Request) (id.NodeID, bool) {
	nodeID, err := id.ParseNodeID(chi.URLParam(r, "nodeID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid node id"))
		return id.NodeID{}, false
	}
	return nodeID, true
}

func pageRequest(r *http.Request) models.PageRequest {
	page := models.PageRequest{}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			page.Offset = n
		}
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			page.Limit = n
		}
	}
	return page
}
