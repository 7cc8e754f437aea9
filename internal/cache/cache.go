// Package cache keeps the last good vehicle and route-config snapshot per
// route so a failed live fetch can fall back to it.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"streetwatch/internal/nextbus"
)

// Kind identifies the record type stored under a route tag.
type Kind string

const (
	KindVehicles    Kind = "vehicles"
	KindRouteConfig Kind = "route_config"
)

// VehicleMaxAge is how long a vehicle snapshot stays fresh.
const VehicleMaxAge = 300 * time.Second

// MaxAge returns the staleness threshold for k. Zero means never stale.
func (k Kind) MaxAge() time.Duration {
	if k == KindVehicles {
		return VehicleMaxAge
	}
	return 0
}

// Entry is one persisted snapshot.
type Entry struct {
	Payload    []byte
	CapturedAt time.Time
}

// Backend stores entries keyed by kind and route tag. Store overwrites
// unconditionally; last writer wins.
type Backend interface {
	Load(ctx context.Context, kind Kind, routeTag string) (Entry, bool, error)
	Store(ctx context.Context, kind Kind, routeTag string, e Entry) error
}

// Cache encodes domain snapshots as JSON on top of a Backend and reports
// staleness against an injectable clock.
type Cache struct {
	backend Backend
	now     func() time.Time
	logger  *slog.Logger
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New creates a Cache over backend.
func New(backend Backend, logger *slog.Logger, opts ...Option) *Cache {
	c := &Cache{backend: backend, now: time.Now, logger: logger}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// PutVehicles stores the vehicles of one route stamped with the current time.
func (c *Cache) PutVehicles(ctx context.Context, routeTag string, vs []nextbus.Vehicle) error {
	if vs == nil {
		vs = []nextbus.Vehicle{}
	}
	return c.put(ctx, KindVehicles, routeTag, vs)
}

// Vehicles returns the last stored vehicles for a route. ok is false on a
// miss; stale reports whether the snapshot is older than VehicleMaxAge.
func (c *Cache) Vehicles(ctx context.Context, routeTag string) (vs []nextbus.Vehicle, stale, ok bool) {
	stale, ok = c.get(ctx, KindVehicles, routeTag, &vs)
	return vs, stale, ok
}

// PutRouteConfig stores a route config stamped with the current time.
func (c *Cache) PutRouteConfig(ctx context.Context, routeTag string, rc *nextbus.RouteConfig) error {
	if rc == nil {
		return fmt.Errorf("cache route config %s: nil config", routeTag)
	}
	return c.put(ctx, KindRouteConfig, routeTag, rc)
}

// RouteConfig returns the last stored config for a route. Route configs are
// never reported stale.
func (c *Cache) RouteConfig(ctx context.Context, routeTag string) (rc *nextbus.RouteConfig, stale, ok bool) {
	stale, ok = c.get(ctx, KindRouteConfig, routeTag, &rc)
	if ok && rc == nil {
		return nil, false, false
	}
	return rc, stale, ok
}

func (c *Cache) put(ctx context.Context, kind Kind, routeTag string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s %s: %w", kind, routeTag, err)
	}
	e := Entry{Payload: payload, CapturedAt: c.now()}
	if err := c.backend.Store(ctx, kind, routeTag, e); err != nil {
		return fmt.Errorf("store %s %s: %w", kind, routeTag, err)
	}
	return nil
}

// get treats backend and decode failures as a miss.
func (c *Cache) get(ctx context.Context, kind Kind, routeTag string, dst any) (stale, ok bool) {
	e, found, err := c.backend.Load(ctx, kind, routeTag)
	if err != nil {
		c.logger.Error("cache load failed", "kind", string(kind), "route", routeTag, "error", err)
		return false, false
	}
	if !found {
		return false, false
	}
	if err := json.Unmarshal(e.Payload, dst); err != nil {
		c.logger.Error("cache entry undecodable", "kind", string(kind), "route", routeTag, "error", err)
		return false, false
	}
	if maxAge := kind.MaxAge(); maxAge > 0 {
		stale = c.now().Sub(e.CapturedAt) > maxAge
	}
	return stale, true
}
