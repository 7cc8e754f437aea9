// Package analysis derives service-health signals from one snapshot of
// vehicle positions. Every function here is pure.
package analysis

import (
	"sort"

	"streetwatch/internal/geo"
	"streetwatch/internal/nextbus"
)

const (
	// BunchingMeters: same-direction vehicles closer than this are bunched.
	BunchingMeters = 500.0
	// GapMinutes: an estimated headway above this is a gap.
	GapMinutes = 15.0
	// MinGapSpeedKmHr floors the leading vehicle's speed in gap estimates.
	MinGapSpeedKmHr = 15
	// LostServiceFactor scales the headway when a direction has at most one vehicle.
	LostServiceFactor = 3.0
)

// Status is the overall health of a route.
type Status string

const (
	StatusGood Status = "good"
	StatusFair Status = "fair"
	StatusPoor Status = "poor"
)

// BunchingAlert reports two vehicles of one direction running too close.
// ID is the vehicle pair, "A-B".
type BunchingAlert struct {
	ID             string          `json:"id"`
	DirectionTag   string          `json:"direction_tag"`
	VehicleA       nextbus.Vehicle `json:"vehicle_a"`
	VehicleB       nextbus.Vehicle `json:"vehicle_b"`
	DistanceMeters float64         `json:"distance_meters"`
}

// GapAlert reports an estimated headway above GapMinutes on one direction.
// Direction holds the direction tag.
type GapAlert struct {
	Direction  string  `json:"direction"`
	GapMinutes float64 `json:"gap_minutes"`
}

// Distance returns the haversine distance between two vehicles in meters.
func Distance(a, b nextbus.Vehicle) float64 {
	return geo.Haversine(a.Lat, a.Lon, b.Lat, b.Lon)
}

// byDirection groups vehicles by direction tag, dropping those without one.
// Input order is kept within each group. Keys are returned sorted.
func byDirection(vs []nextbus.Vehicle) (map[string][]nextbus.Vehicle, []string) {
	groups := make(map[string][]nextbus.Vehicle)
	for _, v := range vs {
		dir, ok := v.Direction()
		if !ok {
			continue
		}
		groups[dir] = append(groups[dir], v)
	}
	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return groups, keys
}

// Bunching returns one alert for every unordered pair of vehicles sharing a
// direction that are strictly less than BunchingMeters apart.
func Bunching(vs []nextbus.Vehicle) []BunchingAlert {
	groups, dirs := byDirection(vs)
	alerts := []BunchingAlert{}
	for _, dir := range dirs {
		g := groups[dir]
		for i := 0; i < len(g); i++ {
			for j := i + 1; j < len(g); j++ {
				d := Distance(g[i], g[j])
				if d < BunchingMeters {
					alerts = append(alerts, BunchingAlert{
						ID:             g[i].ID + "-" + g[j].ID,
						DirectionTag:   dir,
						VehicleA:       g[i],
						VehicleB:       g[j],
						DistanceMeters: d,
					})
				}
			}
		}
	}
	return alerts
}

// Gaps estimates the headway between adjacent vehicles of each direction.
//
// A direction with a single vehicle is treated as lost service and gets one
// alert at LostServiceFactor times the expected headway. Otherwise vehicles
// are ordered by latitude then longitude, which only approximates position
// along the route, and each adjacent pair whose distance divided by the
// leading vehicle's speed (floored at MinGapSpeedKmHr) exceeds GapMinutes
// yields an alert.
func Gaps(vs []nextbus.Vehicle, headwayMinutes float64) []GapAlert {
	groups, dirs := byDirection(vs)
	alerts := []GapAlert{}
	for _, dir := range dirs {
		g := groups[dir]
		if len(g) <= 1 {
			alerts = append(alerts, GapAlert{Direction: dir, GapMinutes: headwayMinutes * LostServiceFactor})
			continue
		}

		sorted := make([]nextbus.Vehicle, len(g))
		copy(sorted, g)
		sort.SliceStable(sorted, func(i, j int) bool {
			if sorted[i].Lat != sorted[j].Lat {
				return sorted[i].Lat < sorted[j].Lat
			}
			return sorted[i].Lon < sorted[j].Lon
		})

		for i := 0; i < len(sorted)-1; i++ {
			d := Distance(sorted[i], sorted[i+1])
			speed := max(sorted[i].SpeedKmHr, MinGapSpeedKmHr)
			metersPerMinute := float64(speed) * 1000 / 60
			if gap := d / metersPerMinute; gap > GapMinutes {
				alerts = append(alerts, GapAlert{Direction: dir, GapMinutes: gap})
			}
		}
	}
	return alerts
}

// Classify combines vehicle count and alerts into a Status. Gaps dominate
// bunching.
func Classify(vehicleCount int, gaps []GapAlert, bunching []BunchingAlert) Status {
	switch {
	case vehicleCount == 0:
		return StatusPoor
	case len(gaps) > 0:
		return StatusPoor
	case len(bunching) > 0:
		return StatusFair
	default:
		return StatusGood
	}
}

// Analyze runs gap and bunching detection and classifies the result.
func Analyze(vs []nextbus.Vehicle, headwayMinutes float64) (Status, []GapAlert, []BunchingAlert) {
	gaps := Gaps(vs, headwayMinutes)
	bunching := Bunching(vs)
	return Classify(len(vs), gaps, bunching), gaps, bunching
}

// AverageWait estimates the average wait in minutes from the number of
// vehicles in service.
func AverageWait(vehicleCount int, headwayMinutes float64) float64 {
	if vehicleCount <= 0 {
		return headwayMinutes * 2
	}
	expected := max(60/headwayMinutes, 1)
	return headwayMinutes * (expected / float64(vehicleCount))
}

// FilterByDirection returns the vehicles reporting dirTag. An empty dirTag
// returns all vehicles.
func FilterByDirection(vs []nextbus.Vehicle, dirTag string) []nextbus.Vehicle {
	if dirTag == "" {
		return vs
	}
	out := []nextbus.Vehicle{}
	for _, v := range vs {
		if d, ok := v.Direction(); ok && d == dirTag {
			out = append(out, v)
		}
	}
	return out
}
