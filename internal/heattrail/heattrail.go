// Package heattrail colors a route path by the speed of the vehicle nearest
// to each segment.
package heattrail

import (
	"math"

	"streetwatch/internal/geo"
	"streetwatch/internal/nextbus"
)

// NearbyMeters is the radius within which a vehicle colors a segment.
const NearbyMeters = 500.0

// Band is a speed class.
type Band string

const (
	BandUnknown  Band = "unknown"
	BandSlow     Band = "slow"
	BandModerate Band = "moderate"
	BandFreeFlow Band = "free_flow"
)

// Color returns the display color for the band.
func (b Band) Color() string {
	switch b {
	case BandSlow:
		return "#FF3B30"
	case BandModerate:
		return "#FF9500"
	case BandFreeFlow:
		return "#34C759"
	default:
		return "#8E8E93"
	}
}

// BandForSpeed maps km/h to a band: 0 to 5 is slow, 6 to 15 moderate,
// anything else (negative speeds included) free flow.
func BandForSpeed(kmHr int) Band {
	switch {
	case kmHr >= 0 && kmHr <= 5:
		return BandSlow
	case kmHr >= 6 && kmHr <= 15:
		return BandModerate
	default:
		return BandFreeFlow
	}
}

// Segment is one colored edge of a path.
type Segment struct {
	Start nextbus.PathPoint `json:"start"`
	End   nextbus.PathPoint `json:"end"`
	Band  Band              `json:"band"`
	Color string            `json:"color"`
}

// Segments returns one segment per consecutive pair of path points. Paths
// with fewer than two points yield none.
func Segments(path []nextbus.PathPoint, vehicles []nextbus.Vehicle) []Segment {
	if len(path) < 2 {
		return []Segment{}
	}
	out := make([]Segment, 0, len(path)-1)
	for i := 0; i < len(path)-1; i++ {
		lat, lon := geo.Midpoint(path[i].Lat, path[i].Lon, path[i+1].Lat, path[i+1].Lon)
		band := bandAt(lat, lon, vehicles)
		out = append(out, Segment{
			Start: path[i],
			End:   path[i+1],
			Band:  band,
			Color: band.Color(),
		})
	}
	return out
}

// Trails computes Segments for every path of a route.
func Trails(paths [][]nextbus.PathPoint, vehicles []nextbus.Vehicle) [][]Segment {
	out := make([][]Segment, 0, len(paths))
	for _, p := range paths {
		out = append(out, Segments(p, vehicles))
	}
	return out
}

func bandAt(lat, lon float64, vehicles []nextbus.Vehicle) Band {
	nearest := -1
	nearestDist := math.MaxFloat64
	for i, v := range vehicles {
		if d := geo.Haversine(lat, lon, v.Lat, v.Lon); d < nearestDist {
			nearestDist = d
			nearest = i
		}
	}
	if nearest < 0 || nearestDist >= NearbyMeters {
		return BandUnknown
	}
	return BandForSpeed(vehicles[nearest].SpeedKmHr)
}
