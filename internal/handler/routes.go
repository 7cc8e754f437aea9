package handler

import (
	"errors"
	"net/http"

	"streetwatch/internal/analysis"
	"streetwatch/internal/fetch"
	"streetwatch/internal/nextbus"
	"streetwatch/internal/refresh"
)

// RouteList serves every route snapshot of the latest cycle.
func (h *Handler) RouteList(w http.ResponseWriter, r *http.Request) {
	res := h.store.Latest()
	if res == nil {
		writeError(w, http.StatusServiceUnavailable, "no refresh has completed yet")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// RouteDetail serves the latest snapshot of one route. ?direction= narrows
// vehicles and alerts to one direction tag.
func (h *Handler) RouteDetail(w http.ResponseWriter, r *http.Request) {
	tag := r.PathValue("tag")
	rs, ok := h.store.Route(tag)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown route "+tag)
		return
	}
	writeJSON(w, http.StatusOK, forDirection(rs, r.URL.Query().Get("direction")))
}

// forDirection narrows a snapshot to dirTag. Status, vehicle count and wait
// estimate stay route-wide.
func forDirection(rs refresh.RouteSnapshot, dirTag string) refresh.RouteSnapshot {
	if dirTag == "" {
		return rs
	}
	rs.Vehicles = analysis.FilterByDirection(rs.Vehicles, dirTag)

	bunching := []analysis.BunchingAlert{}
	for _, a := range rs.BunchingAlerts {
		if a.DirectionTag == dirTag {
			bunching = append(bunching, a)
		}
	}
	rs.BunchingAlerts = bunching

	gaps := []analysis.GapAlert{}
	for _, g := range rs.GapAlerts {
		if g.Direction == dirTag {
			gaps = append(gaps, g)
		}
	}
	rs.GapAlerts = gaps
	return rs
}

type routeConfigResponse struct {
	Config *nextbus.RouteConfig `json:"config"`
	Source fetch.Source         `json:"source"`
}

// RouteConfig fetches a route config live, falling back to the cache.
func (h *Handler) RouteConfig(w http.ResponseWriter, r *http.Request) {
	tag := r.PathValue("tag")
	rc, src, err := h.demand.RouteConfig(r.Context(), tag)
	switch {
	case errors.Is(err, nextbus.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		h.logger.Warn("route config unavailable", "route", tag, "error", err)
		writeError(w, http.StatusServiceUnavailable, "route config unavailable")
		return
	}
	writeJSON(w, http.StatusOK, routeConfigResponse{Config: rc, Source: src})
}

type predictionsResponse struct {
	RouteTag    string                    `json:"route_tag"`
	StopTag     string                    `json:"stop_tag"`
	Groups      []nextbus.PredictionGroup `json:"groups"`
	Predictions []nextbus.Prediction      `json:"predictions"`
}

// Predictions fetches live predictions for ?stop=, optionally narrowed to
// one direction title with ?direction=.
func (h *Handler) Predictions(w http.ResponseWriter, r *http.Request) {
	tag := r.PathValue("tag")
	stop := r.URL.Query().Get("stop")
	if stop == "" {
		writeError(w, http.StatusBadRequest, "missing stop parameter")
		return
	}

	groups, err := h.demand.Predictions(r.Context(), tag, stop)
	switch {
	case errors.Is(err, nextbus.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		h.logger.Warn("predictions unavailable", "route", tag, "stop", stop, "error", err)
		writeError(w, http.StatusBadGateway, "predictions unavailable")
		return
	}

	preds := nextbus.FlattenPredictions(groups, r.URL.Query().Get("direction"))
	if preds == nil {
		preds = []nextbus.Prediction{}
	}
	writeJSON(w, http.StatusOK, predictionsResponse{
		RouteTag:    tag,
		StopTag:     stop,
		Groups:      groups,
		Predictions: preds,
	})
}
