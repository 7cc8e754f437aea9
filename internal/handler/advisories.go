package handler

import (
	"net/http"
	"time"

	"streetwatch/internal/realtime"
)

type advisoriesResponse struct {
	Alerts    []realtime.Alert `json:"alerts"`
	UpdatedAt *time.Time       `json:"updated_at,omitempty"`
}

// Advisories lists the active GTFS-RT alerts, optionally for one ?route=.
func (h *Handler) Advisories(w http.ResponseWriter, r *http.Request) {
	if h.alerts == nil {
		writeError(w, http.StatusNotFound, "advisories are not configured")
		return
	}
	resp := advisoriesResponse{Alerts: h.alerts.ActiveAlerts(r.URL.Query().Get("route"))}
	if t := h.alerts.UpdatedAt(); !t.IsZero() {
		resp.UpdatedAt = &t
	}
	writeJSON(w, http.StatusOK, resp)
}
