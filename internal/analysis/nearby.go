package analysis

import (
	"math"
	"sort"

	"streetwatch/internal/geo"
	"streetwatch/internal/nextbus"
)

// DefaultNearbyLimit is used when NearbyStops is called with limit <= 0.
const DefaultNearbyLimit = 10

// NearbyStop is a stop with its distance from a query point.
type NearbyStop struct {
	Stop           nextbus.Stop `json:"stop"`
	RouteTag       string       `json:"route_tag"`
	RouteTitle     string       `json:"route_title"`
	DistanceMeters float64      `json:"distance_meters"`
	WalkMinutes    float64      `json:"walk_minutes"`
}

// NearbyStops returns the stops of configs closest to (lat, lon). A stop tag
// served by several routes appears once, attached to whichever occurrence is
// closest. radiusMeters > 0 discards stops beyond that distance.
func NearbyStops(lat, lon float64, configs []*nextbus.RouteConfig, limit int, radiusMeters float64) []NearbyStop {
	if limit <= 0 {
		limit = DefaultNearbyLimit
	}

	// Cheap bounding box check before haversine.
	latDeg, lonDeg := math.Inf(1), math.Inf(1)
	if radiusMeters > 0 {
		latDeg, lonDeg = geo.BoundingBoxRadius(lat, radiusMeters)
	}

	best := make(map[string]NearbyStop)
	for _, rc := range configs {
		if rc == nil {
			continue
		}
		for _, s := range rc.Stops {
			if math.Abs(s.Lat-lat) > latDeg || math.Abs(s.Lon-lon) > lonDeg {
				continue
			}
			d := geo.Haversine(lat, lon, s.Lat, s.Lon)
			if radiusMeters > 0 && d > radiusMeters {
				continue
			}
			if prev, ok := best[s.Tag]; ok && prev.DistanceMeters <= d {
				continue
			}
			best[s.Tag] = NearbyStop{
				Stop:           s,
				RouteTag:       rc.Tag,
				RouteTitle:     rc.Title,
				DistanceMeters: d,
				WalkMinutes:    geo.WalkingMinutes(d),
			}
		}
	}

	out := make([]NearbyStop, 0, len(best))
	for _, ns := range best {
		out = append(out, ns)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DistanceMeters != out[j].DistanceMeters {
			return out[i].DistanceMeters < out[j].DistanceMeters
		}
		return out[i].Stop.Tag < out[j].Stop.Tag
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
