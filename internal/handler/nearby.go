package handler

import (
	"math"
	"net/http"
	"strconv"

	"streetwatch/internal/analysis"
)

// Nearby lists the stops closest to ?lat=&lon= across every known route.
// Optional: limit (default 10), radius in meters.
func (h *Handler) Nearby(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lat, err1 := strconv.ParseFloat(q.Get("lat"), 64)
	lon, err2 := strconv.ParseFloat(q.Get("lon"), 64)
	if err1 != nil || err2 != nil || math.IsNaN(lat) || math.IsNaN(lon) ||
		lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		writeError(w, http.StatusBadRequest, "lat and lon are required")
		return
	}
	limit, _ := strconv.Atoi(q.Get("limit"))
	radius, err := strconv.ParseFloat(q.Get("radius"), 64)
	if err != nil || math.IsNaN(radius) || math.IsInf(radius, 0) {
		radius = 0
	}

	stops := analysis.NearbyStops(lat, lon, h.store.Configs(), limit, radius)
	writeJSON(w, http.StatusOK, map[string]any{"stops": stops})
}
