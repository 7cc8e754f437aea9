package nextbus

import "sort"

// Vehicle is one reported position of one transit vehicle.
type Vehicle struct {
	ID              string  `json:"id"`
	RouteTag        string  `json:"route_tag"`
	DirTag          *string `json:"dir_tag,omitempty"` // nil when the feed reports no direction
	Lat             float64 `json:"lat"`
	Lon             float64 `json:"lon"`
	Heading         int     `json:"heading"`     // degrees, 0-359
	SpeedKmHr       int     `json:"speed_km_hr"` // >= 0
	SecsSinceReport int     `json:"secs_since_report"`
	Predictable     bool    `json:"predictable"`
}

// Direction returns the direction tag and whether one was reported.
func (v Vehicle) Direction() (string, bool) {
	if v.DirTag == nil {
		return "", false
	}
	return *v.DirTag, true
}

// VehicleLocations is the decoded vehicleLocations response.
type VehicleLocations struct {
	Vehicles []Vehicle
	LastTime int64 // watermark for incremental fetches, 0 when absent
}

// RouteConfig is the static geometry and metadata for one route.
type RouteConfig struct {
	Tag           string        `json:"tag"`
	Title         string        `json:"title"`
	Color         string        `json:"color"`
	OppositeColor string        `json:"opposite_color"`
	Stops         []Stop        `json:"stops"`
	Directions    []Direction   `json:"directions"`
	Paths         [][]PathPoint `json:"paths"`
}

// UIDirections returns the directions flagged for display.
func (rc *RouteConfig) UIDirections() []Direction {
	var out []Direction
	for _, d := range rc.Directions {
		if d.UseForUI {
			out = append(out, d)
		}
	}
	return out
}

// Stop returns the stop with the given tag.
func (rc *RouteConfig) Stop(tag string) (Stop, bool) {
	for _, s := range rc.Stops {
		if s.Tag == tag {
			return s, true
		}
	}
	return Stop{}, false
}

// RepresentativeStop picks the stop used for route-level predictions: the
// middle stop of the first UI direction with stops, else the first stop.
func (rc *RouteConfig) RepresentativeStop() (string, bool) {
	for _, d := range rc.UIDirections() {
		if len(d.StopTags) > 0 {
			return d.StopTags[len(d.StopTags)/2], true
		}
	}
	if len(rc.Stops) > 0 {
		return rc.Stops[0].Tag, true
	}
	return "", false
}

// Stop is one physical stop.
type Stop struct {
	Tag    string  `json:"tag"`
	Title  string  `json:"title"`
	Lat    float64 `json:"lat"`
	Lon    float64 `json:"lon"`
	StopID *string `json:"stop_id,omitempty"`
}

// Direction is one travel direction (branch) of a route. StopTags is the
// canonical stop order along it.
type Direction struct {
	Tag      string   `json:"tag"`
	Title    string   `json:"title"`
	Name     string   `json:"name"`
	UseForUI bool     `json:"use_for_ui"`
	StopTags []string `json:"stop_tags"`
}

// PathPoint is one vertex of a route polyline.
type PathPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Prediction is one arrival estimate for one vehicle at one stop.
type Prediction struct {
	EpochTime int64   `json:"epoch_time"` // ms
	Seconds   int     `json:"seconds"`
	Minutes   int     `json:"minutes"`
	Vehicle   string  `json:"vehicle"`
	DirTag    *string `json:"dir_tag,omitempty"`
	Branch    *string `json:"branch,omitempty"`
}

// PredictionGroup holds all predictions for one direction at one stop.
type PredictionGroup struct {
	DirectionTitle string       `json:"direction_title"`
	StopTitle      string       `json:"stop_title"`
	Predictions    []Prediction `json:"predictions"`
}

// FlattenPredictions merges the predictions of every group whose direction
// title matches (all groups when directionTitle is empty), soonest first.
func FlattenPredictions(groups []PredictionGroup, directionTitle string) []Prediction {
	var out []Prediction
	for _, g := range groups {
		if directionTitle != "" && g.DirectionTitle != directionTitle {
			continue
		}
		out = append(out, g.Predictions...)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Seconds < out[j].Seconds
	})
	return out
}

// ServiceMessage is one service advisory.
type ServiceMessage struct {
	ID       string `json:"id"`
	Text     string `json:"text"`
	Priority string `json:"priority"`
	RouteTag string `json:"route_tag"`
}
