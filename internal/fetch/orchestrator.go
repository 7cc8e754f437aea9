// Package fetch fans out live feed requests per route, joins them, and falls
// back to cached snapshots for whatever failed.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"streetwatch/internal/nextbus"
)

// ErrNoData is returned when neither a live fetch nor the cache can serve a request.
var ErrNoData = errors.New("no live or cached data")

// DefaultTaskTimeout bounds one (route, kind) fetch including body decoding.
const DefaultTaskTimeout = 30 * time.Second

// FeedClient is the subset of nextbus.Client the orchestrator uses.
type FeedClient interface {
	VehicleLocations(ctx context.Context, routeTag string, since int64) (*nextbus.VehicleLocations, error)
	RouteConfig(ctx context.Context, routeTag string) (*nextbus.RouteConfig, error)
	Predictions(ctx context.Context, routeTag, stopTag string) ([]nextbus.PredictionGroup, error)
	Messages(ctx context.Context, routeTag string) ([]nextbus.ServiceMessage, error)
}

// SnapshotCache is the fallback store; see cache.Cache.
type SnapshotCache interface {
	PutVehicles(ctx context.Context, routeTag string, vs []nextbus.Vehicle) error
	Vehicles(ctx context.Context, routeTag string) ([]nextbus.Vehicle, bool, bool)
	PutRouteConfig(ctx context.Context, routeTag string, rc *nextbus.RouteConfig) error
	RouteConfig(ctx context.Context, routeTag string) (*nextbus.RouteConfig, bool, bool)
}

// Source says where a piece of route data came from.
type Source string

const (
	SourceLive  Source = "live"
	SourceCache Source = "cache"
	SourceNone  Source = "none"
)

// Request selects the feeds fetched for one route.
type Request struct {
	RouteTag    string
	RouteConfig bool // also fetch the route config
	Messages    bool
}

// RouteData is the joined result for one route.
type RouteData struct {
	RouteTag string

	Vehicles       []nextbus.Vehicle
	VehiclesSource Source
	VehiclesStale  bool

	// Config is nil unless requested and available.
	Config       *nextbus.RouteConfig
	ConfigSource Source

	Messages []nextbus.ServiceMessage
}

// HasVehicleData reports whether any vehicle list, live or cached, backed this route.
func (d *RouteData) HasVehicleData() bool {
	return d.VehiclesSource != SourceNone
}

// Orchestrator runs per-route fetches concurrently against a FeedClient.
type Orchestrator struct {
	client  FeedClient
	cache   SnapshotCache
	timeout time.Duration
	logger  *slog.Logger
}

// New creates an orchestrator. A non-positive timeout uses DefaultTaskTimeout.
func New(client FeedClient, cache SnapshotCache, timeout time.Duration, logger *slog.Logger) *Orchestrator {
	if timeout <= 0 {
		timeout = DefaultTaskTimeout
	}
	return &Orchestrator{client: client, cache: cache, timeout: timeout, logger: logger}
}

// outcome holds one settled task. Only the field matching the task kind is set.
type outcome struct {
	vehicles []nextbus.Vehicle
	config   *nextbus.RouteConfig
	messages []nextbus.ServiceMessage
	err      error
}

type task struct {
	route int
	kind  string
	run   func(ctx context.Context) outcome
}

// Fetch performs one concurrent fetch per (route, kind) pair and returns one
// RouteData per request, in request order. Nothing is written to the cache
// or returned until every task has settled. A failed task never affects
// another route.
func (o *Orchestrator) Fetch(ctx context.Context, reqs []Request) []RouteData {
	var tasks []task
	for i, r := range reqs {
		tag := r.RouteTag
		tasks = append(tasks, task{route: i, kind: "vehicles", run: func(ctx context.Context) outcome {
			vl, err := o.client.VehicleLocations(ctx, tag, 0)
			if err != nil {
				return outcome{err: err}
			}
			return outcome{vehicles: vl.Vehicles}
		}})
		if r.RouteConfig {
			tasks = append(tasks, task{route: i, kind: "route_config", run: func(ctx context.Context) outcome {
				rc, err := o.client.RouteConfig(ctx, tag)
				return outcome{config: rc, err: err}
			}})
		}
		if r.Messages {
			tasks = append(tasks, task{route: i, kind: "messages", run: func(ctx context.Context) outcome {
				ms, err := o.client.Messages(ctx, tag)
				return outcome{messages: ms, err: err}
			}})
		}
	}

	outcomes := make([]outcome, len(tasks))
	o.fanOut(ctx, len(tasks), func(ctx context.Context, i int) {
		outcomes[i] = tasks[i].run(ctx)
	})

	results := make([]RouteData, len(reqs))
	for i, r := range reqs {
		results[i] = RouteData{
			RouteTag:       r.RouteTag,
			Vehicles:       []nextbus.Vehicle{},
			VehiclesSource: SourceNone,
			ConfigSource:   SourceNone,
			Messages:       []nextbus.ServiceMessage{},
		}
	}

	for i, t := range tasks {
		rd := &results[t.route]
		out := outcomes[i]
		if out.err != nil {
			o.logger.Warn("route fetch failed", "route", rd.RouteTag, "kind", t.kind, "error", out.err)
		}
		switch t.kind {
		case "vehicles":
			o.settleVehicles(ctx, rd, out)
		case "route_config":
			o.settleConfig(ctx, rd, out)
		case "messages":
			if out.err == nil && out.messages != nil {
				rd.Messages = out.messages
			}
		}
	}
	return results
}

func (o *Orchestrator) settleVehicles(ctx context.Context, rd *RouteData, out outcome) {
	if out.err == nil {
		rd.Vehicles = out.vehicles
		if rd.Vehicles == nil {
			rd.Vehicles = []nextbus.Vehicle{}
		}
		rd.VehiclesSource = SourceLive
		if err := o.cache.PutVehicles(ctx, rd.RouteTag, rd.Vehicles); err != nil {
			o.logger.Error("cache write failed", "route", rd.RouteTag, "kind", "vehicles", "error", err)
		}
		return
	}
	if vs, stale, ok := o.cache.Vehicles(ctx, rd.RouteTag); ok {
		o.logger.Info("using cached vehicles", "route", rd.RouteTag, "stale", stale)
		rd.Vehicles = vs
		if rd.Vehicles == nil {
			rd.Vehicles = []nextbus.Vehicle{}
		}
		rd.VehiclesSource = SourceCache
		rd.VehiclesStale = stale
	}
}

func (o *Orchestrator) settleConfig(ctx context.Context, rd *RouteData, out outcome) {
	if out.err == nil && out.config != nil {
		rd.Config = out.config
		rd.ConfigSource = SourceLive
		if err := o.cache.PutRouteConfig(ctx, rd.RouteTag, out.config); err != nil {
			o.logger.Error("cache write failed", "route", rd.RouteTag, "kind", "route_config", "error", err)
		}
		return
	}
	if rc, _, ok := o.cache.RouteConfig(ctx, rd.RouteTag); ok {
		o.logger.Info("using cached route config", "route", rd.RouteTag)
		rd.Config = rc
		rd.ConfigSource = SourceCache
	}
}

// FetchPredictions fetches predictions for every route -> stop pair
// concurrently. A failed fetch yields an empty list for that route.
func (o *Orchestrator) FetchPredictions(ctx context.Context, stops map[string]string) map[string][]nextbus.PredictionGroup {
	type job struct{ route, stop string }
	jobs := make([]job, 0, len(stops))
	for route, stop := range stops {
		jobs = append(jobs, job{route, stop})
	}

	groups := make([][]nextbus.PredictionGroup, len(jobs))
	o.fanOut(ctx, len(jobs), func(ctx context.Context, i int) {
		pg, err := o.client.Predictions(ctx, jobs[i].route, jobs[i].stop)
		if err != nil {
			o.logger.Warn("route fetch failed", "route", jobs[i].route, "kind", "predictions", "stop", jobs[i].stop, "error", err)
			return
		}
		groups[i] = pg
	})

	out := make(map[string][]nextbus.PredictionGroup, len(jobs))
	for i, j := range jobs {
		if groups[i] == nil {
			groups[i] = []nextbus.PredictionGroup{}
		}
		out[j.route] = groups[i]
	}
	return out
}

// RouteConfig fetches one route config on demand: live first, then cache.
func (o *Orchestrator) RouteConfig(ctx context.Context, routeTag string) (*nextbus.RouteConfig, Source, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	rc, err := o.client.RouteConfig(ctx, routeTag)
	if err == nil {
		if err := o.cache.PutRouteConfig(ctx, routeTag, rc); err != nil {
			o.logger.Error("cache write failed", "route", routeTag, "kind", "route_config", "error", err)
		}
		return rc, SourceLive, nil
	}
	if errors.Is(err, nextbus.ErrInvalidRequest) {
		return nil, SourceNone, err
	}
	o.logger.Warn("route fetch failed", "route", routeTag, "kind", "route_config", "error", err)

	if cached, _, ok := o.cache.RouteConfig(ctx, routeTag); ok {
		return cached, SourceCache, nil
	}
	return nil, SourceNone, fmt.Errorf("route config %s: %w: %w", routeTag, ErrNoData, err)
}

// Predictions fetches predictions for one stop on demand. Predictions are
// never cached, so a failure is returned as is.
func (o *Orchestrator) Predictions(ctx context.Context, routeTag, stopTag string) ([]nextbus.PredictionGroup, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()
	return o.client.Predictions(ctx, routeTag, stopTag)
}

// fanOut runs fn for 0..n-1 concurrently, each under its own timeout, and
// returns once all have finished.
func (o *Orchestrator) fanOut(ctx context.Context, n int, fn func(ctx context.Context, i int)) {
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tctx, cancel := context.WithTimeout(ctx, o.timeout)
			defer cancel()
			fn(tctx, i)
		}()
	}
	wg.Wait()
}
