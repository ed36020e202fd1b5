package httptransport

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"certportal/internal/availability"
	dErrors "certportal/pkg/domain-errors"
	"certportal/pkg/platform/httputil"
)

// AvailabilityHandler exposes the portal availability state machine. The
// stream endpoint pushes transitions over server-sent events; clients re-fetch
// the status on reconnect because delivery is best-effort.
type AvailabilityHandler struct {
	availability *availability.Service
}

func (h *AvailabilityHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, h.availability.Current(r.Context()))
}

type scheduleRequest struct {
	Start           time.Time `json:"start"`
	DurationMinutes int       `json:"durationMinutes"`
	Message         string    `json:"message"`
}

func (h *AvailabilityHandler) handleSchedule(w http.ResponseWriter, r *http.Request) {
	actor, ok := principal(w, r)
	if !ok {
		return
	}
	var req scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	status, err := h.availability.ScheduleMaintenance(r.Context(), actor, req.Start,
		time.Duration(req.DurationMinutes)*time.Minute, req.Message)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, status)
}

func (h *AvailabilityHandler) handleSetOnline(w http.ResponseWriter, r *http.Request) {
	actor, ok := principal(w, r)
	if !ok {
		return
	}
	status, err := h.availability.SetOnline(r.Context(), actor)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, status)
}

func (h *AvailabilityHandler) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "streaming is not supported on this connection"))
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	updates := h.availability.Subscribe(r.Context())
	for status := range updates {
		payload, err := json.Marshal(status)
		if err != nil {
			continue
		}
		if _, err := fmt.Fprintf(w, "event: availability\ndata: %s\n\n", payload); err != nil {
			return
		}
		flusher.Flush()
	}
}
