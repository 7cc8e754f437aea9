// Package refresh turns one polling tick into a consistent per-route
// analysis snapshot.
package refresh

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"streetwatch/internal/analysis"
	"streetwatch/internal/config"
	"streetwatch/internal/fetch"
	"streetwatch/internal/heattrail"
	"streetwatch/internal/nextbus"
)

// Advisories supplies extra service messages per route.
type Advisories interface {
	MessagesForRoute(routeTag string) []nextbus.ServiceMessage
}

// RouteSnapshot is the analysed state of one route after a cycle.
type RouteSnapshot struct {
	Route config.RouteInfo `json:"route"`

	Vehicles       []nextbus.Vehicle `json:"vehicles"`
	VehicleCount   int               `json:"vehicle_count"`
	VehiclesSource fetch.Source      `json:"vehicles_source"`
	VehiclesStale  bool              `json:"vehicles_stale"`

	Status             analysis.Status          `json:"status"`
	BunchingAlerts     []analysis.BunchingAlert `json:"bunching_alerts"`
	GapAlerts          []analysis.GapAlert      `json:"gap_alerts"`
	AverageWaitMinutes float64                  `json:"average_wait_minutes"`

	PredictionStop      string                    `json:"prediction_stop,omitempty"`
	PredictionStopTitle string                    `json:"prediction_stop_title,omitempty"`
	PredictionGroups    []nextbus.PredictionGroup `json:"prediction_groups"`
	Messages            []nextbus.ServiceMessage  `json:"messages"`
	HeatTrails          [][]heattrail.Segment     `json:"heat_trails"`

	// Config is the route config the snapshot was analysed against, if any.
	Config *nextbus.RouteConfig `json:"-"`
}

// Result is the output of one cycle. Routes follow the requested order.
type Result struct {
	Routes      []RouteSnapshot `json:"routes"`
	TotalOutage bool            `json:"total_outage"`
	CompletedAt time.Time       `json:"completed_at"`
}

// Route returns the snapshot for tag.
func (r *Result) Route(tag string) (RouteSnapshot, bool) {
	for _, rs := range r.Routes {
		if rs.Route.Tag == tag {
			return rs, true
		}
	}
	return RouteSnapshot{}, false
}

// Cycle composes fetching, analysis and heat trails. Route configs are kept
// in memory and refetched each cycle until one has come from the live feed.
type Cycle struct {
	orch        *fetch.Orchestrator
	routes      *config.RouteTable
	advisories  Advisories
	predictions bool
	now         func() time.Time
	logger      *slog.Logger

	mu         sync.Mutex
	configs    map[string]*nextbus.RouteConfig
	configLive map[string]bool
}

// NewCycle creates a refresh cycle. advisories may be nil.
func NewCycle(orch *fetch.Orchestrator, routes *config.RouteTable, advisories Advisories, predictions bool, logger *slog.Logger) *Cycle {
	return &Cycle{
		orch:        orch,
		routes:      routes,
		advisories:  advisories,
		predictions: predictions,
		now:         time.Now,
		logger:      logger,
		configs:     make(map[string]*nextbus.RouteConfig),
		configLive:  make(map[string]bool),
	}
}

// Run refreshes every route in tags. It never fails: routes without any data
// come back with zero vehicles and poor status. TotalOutage is set when no
// route produced live or cached vehicles.
func (c *Cycle) Run(ctx context.Context, tags []string) *Result {
	reqs := make([]fetch.Request, len(tags))
	c.mu.Lock()
	for i, tag := range tags {
		reqs[i] = fetch.Request{RouteTag: tag, RouteConfig: !c.configLive[tag], Messages: true}
	}
	c.mu.Unlock()

	data := c.orch.Fetch(ctx, reqs)

	c.mu.Lock()
	for _, d := range data {
		if d.Config != nil {
			c.configs[d.RouteTag] = d.Config
			c.configLive[d.RouteTag] = d.ConfigSource == fetch.SourceLive
		}
	}
	configs := make(map[string]*nextbus.RouteConfig, len(tags))
	for _, tag := range tags {
		if rc, ok := c.configs[tag]; ok {
			configs[tag] = rc
		}
	}
	c.mu.Unlock()

	stops := make(map[string]string)
	var groups map[string][]nextbus.PredictionGroup
	if c.predictions {
		for tag, rc := range configs {
			if stop, ok := rc.RepresentativeStop(); ok {
				stops[tag] = stop
			}
		}
		groups = c.orch.FetchPredictions(ctx, stops)
	}

	res := &Result{Routes: make([]RouteSnapshot, 0, len(data)), TotalOutage: len(data) > 0}
	for _, d := range data {
		if d.HasVehicleData() {
			res.TotalOutage = false
		}
		res.Routes = append(res.Routes, c.snapshot(d, configs[d.RouteTag], stops[d.RouteTag], groups[d.RouteTag]))
	}
	res.CompletedAt = c.now()

	c.logger.Info("refresh cycle complete", "routes", len(res.Routes), "total_outage", res.TotalOutage)
	return res
}

func (c *Cycle) snapshot(d fetch.RouteData, rc *nextbus.RouteConfig, stop string, groups []nextbus.PredictionGroup) RouteSnapshot {
	info, ok := c.routes.Lookup(d.RouteTag)
	if !ok {
		c.logger.Warn("route not in table, using default headway", "route", d.RouteTag, "headway_minutes", config.DefaultHeadwayMinutes)
		info = config.RouteInfo{Tag: d.RouteTag, Name: d.RouteTag, HeadwayMinutes: config.DefaultHeadwayMinutes}
	}

	status, gaps, bunching := analysis.Analyze(d.Vehicles, info.HeadwayMinutes)

	trails := [][]heattrail.Segment{}
	var stopTitle string
	if rc != nil {
		trails = heattrail.Trails(rc.Paths, d.Vehicles)
		if s, ok := rc.Stop(stop); ok {
			stopTitle = s.Title
		}
	}
	if groups == nil {
		groups = []nextbus.PredictionGroup{}
	}

	return RouteSnapshot{
		Route:               info,
		Vehicles:            d.Vehicles,
		VehicleCount:        len(d.Vehicles),
		VehiclesSource:      d.VehiclesSource,
		VehiclesStale:       d.VehiclesStale,
		Status:              status,
		BunchingAlerts:      bunching,
		GapAlerts:           gaps,
		AverageWaitMinutes:  analysis.AverageWait(len(d.Vehicles), info.HeadwayMinutes),
		PredictionStop:      stop,
		PredictionStopTitle: stopTitle,
		PredictionGroups:    groups,
		Messages:            c.mergeMessages(d.RouteTag, d.Messages),
		HeatTrails:          trails,
		Config:              rc,
	}
}

// mergeMessages appends advisories whose text is not already present.
func (c *Cycle) mergeMessages(routeTag string, msgs []nextbus.ServiceMessage) []nextbus.ServiceMessage {
	out := make([]nextbus.ServiceMessage, 0, len(msgs))
	out = append(out, msgs...)
	if c.advisories == nil {
		return out
	}
	seen := make(map[string]bool, len(msgs))
	for _, m := range msgs {
		seen[m.Text] = true
	}
	for _, m := range c.advisories.MessagesForRoute(routeTag) {
		if seen[m.Text] {
			continue
		}
		seen[m.Text] = true
		out = append(out, m)
	}
	return out
}

// RouteConfig fetches a config on demand and remembers it for later cycles.
func (c *Cycle) RouteConfig(ctx context.Context, tag string) (*nextbus.RouteConfig, fetch.Source, error) {
	rc, src, err := c.orch.RouteConfig(ctx, tag)
	if err != nil {
		return nil, src, err
	}
	c.mu.Lock()
	c.configs[tag] = rc
	c.configLive[tag] = src == fetch.SourceLive
	c.mu.Unlock()
	return rc, src, nil
}

// Predictions fetches predictions for one stop on demand.
func (c *Cycle) Predictions(ctx context.Context, tag, stop string) ([]nextbus.PredictionGroup, error) {
	return c.orch.Predictions(ctx, tag, stop)
}
