package handler

import (
	"encoding/json"
	"fmt"
	"net/http"

	"streetwatch/internal/refresh"
)

// SSERoute streams a route's snapshot via Server-Sent Events: once on
// connect, then after every refresh cycle. ?direction= narrows each event.
func (h *Handler) SSERoute(w http.ResponseWriter, r *http.Request) {
	tag := r.PathValue("tag")
	dirTag := r.URL.Query().Get("direction")
	ctx := r.Context()

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	updates, unsubscribe := h.store.Subscribe()
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	// Send current data immediately
	if res := h.store.Latest(); res != nil {
		h.sendRouteEvent(w, flusher, res, tag, dirTag)
	} else {
		flusher.Flush()
	}

	for {
		select {
		case res := <-updates:
			h.sendRouteEvent(w, flusher, res, tag, dirTag)
		case <-ctx.Done():
			return
		}
	}
}

// sendRouteEvent writes one "snapshot" event, or "outage" when every route is down.
func (h *Handler) sendRouteEvent(w http.ResponseWriter, flusher http.Flusher, res *refresh.Result, tag, dirTag string) {
	rs, ok := res.Route(tag)
	if !ok {
		return
	}
	data, err := json.Marshal(forDirection(rs, dirTag))
	if err != nil {
		h.logger.Error("encoding SSE snapshot", "route", tag, "error", err)
		return
	}

	event := "snapshot"
	if res.TotalOutage {
		event = "outage"
	}
	fmt.Fprintf(w, "event: %s\n", event)
	fmt.Fprintf(w, "data: %s\n\n", data)
	flusher.Flush()
}
