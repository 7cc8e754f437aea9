package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"streetwatch/internal/fetch"
	"streetwatch/internal/nextbus"
	"streetwatch/internal/realtime"
	"streetwatch/internal/refresh"
)

// OnDemand serves requests that bypass the polling cycle.
type OnDemand interface {
	RouteConfig(ctx context.Context, tag string) (*nextbus.RouteConfig, fetch.Source, error)
	Predictions(ctx context.Context, tag, stop string) ([]nextbus.PredictionGroup, error)
}

// Handler holds shared dependencies for all HTTP handlers.
type Handler struct {
	store  *refresh.Store
	demand OnDemand
	alerts *realtime.Store // nil when advisories are disabled
	logger *slog.Logger
}

// New creates a Handler. alerts may be nil.
func New(store *refresh.Store, demand OnDemand, alerts *realtime.Store, logger *slog.Logger) *Handler {
	return &Handler{store: store, demand: demand, alerts: alerts, logger: logger}
}

// writeJSON encodes v before writing the status. An unencodable value
// becomes a 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	data, err := json.Marshal(v)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"encoding response"}` + "\n"))
		return
	}
	w.WriteHeader(status)
	w.Write(append(data, '\n'))
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
