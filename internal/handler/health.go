package handler

import (
	"net/http"
	"time"
)

type healthResponse struct {
	Status          string     `json:"status"` // starting|ok|outage
	LastRefresh     *time.Time `json:"last_refresh,omitempty"`
	AlertsUpdatedAt *time.Time `json:"alerts_updated_at,omitempty"`
	Routes          int        `json:"routes"`
}

// Health reports whether refresh cycles are producing data.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	var alertsAt *time.Time
	if h.alerts != nil {
		if t := h.alerts.UpdatedAt(); !t.IsZero() {
			alertsAt = &t
		}
	}

	res := h.store.Latest()
	if res == nil {
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "starting", AlertsUpdatedAt: alertsAt})
		return
	}
	resp := healthResponse{Status: "ok", LastRefresh: &res.CompletedAt, AlertsUpdatedAt: alertsAt, Routes: len(res.Routes)}
	if res.TotalOutage {
		resp.Status = "outage"
	}
	writeJSON(w, http.StatusOK, resp)
}
