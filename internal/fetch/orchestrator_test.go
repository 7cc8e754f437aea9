package fetch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streetwatch/internal/cache"
	"streetwatch/internal/nextbus"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func strPtr(s string) *string { return &s }

// fakeFeed serves canned data per route; routes listed in fail return a
// transport error, routes in hang block until the context ends.
type fakeFeed struct {
	vehicles map[string][]nextbus.Vehicle
	configs  map[string]*nextbus.RouteConfig
	groups   map[string][]nextbus.PredictionGroup
	messages map[string][]nextbus.ServiceMessage
	fail     map[string]bool
	hang     map[string]bool

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func (f *fakeFeed) enter(ctx context.Context, cmd nextbus.Command, route string) error {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		m := f.maxInFlight.Load()
		if n <= m || f.maxInFlight.CompareAndSwap(m, n) {
			break
		}
	}
	if f.hang[route] {
		<-ctx.Done()
		return &nextbus.TransportError{Command: cmd, Err: ctx.Err()}
	}
	// Give sibling tasks a chance to overlap.
	time.Sleep(5 * time.Millisecond)
	if f.fail[route] {
		return &nextbus.TransportError{Command: cmd, Err: errors.New("connection refused")}
	}
	return nil
}

func (f *fakeFeed) VehicleLocations(ctx context.Context, route string, _ int64) (*nextbus.VehicleLocations, error) {
	if err := f.enter(ctx, nextbus.CommandVehicleLocations, route); err != nil {
		return nil, err
	}
	return &nextbus.VehicleLocations{Vehicles: f.vehicles[route]}, nil
}

func (f *fakeFeed) RouteConfig(ctx context.Context, route string) (*nextbus.RouteConfig, error) {
	if err := f.enter(ctx, nextbus.CommandRouteConfig, route); err != nil {
		return nil, err
	}
	rc, ok := f.configs[route]
	if !ok {
		return nil, &nextbus.ParseError{Command: nextbus.CommandRouteConfig, Err: errors.New("no root")}
	}
	return rc, nil
}

func (f *fakeFeed) Predictions(ctx context.Context, route, stop string) ([]nextbus.PredictionGroup, error) {
	if err := f.enter(ctx, nextbus.CommandPredictions, route); err != nil {
		return nil, err
	}
	return f.groups[route], nil
}

func (f *fakeFeed) Messages(ctx context.Context, route string) ([]nextbus.ServiceMessage, error) {
	if err := f.enter(ctx, nextbus.CommandMessages, route); err != nil {
		return nil, err
	}
	return f.messages[route], nil
}

func vehicle(id, route, dir string, lat, lon float64) nextbus.Vehicle {
	return nextbus.Vehicle{ID: id, RouteTag: route, DirTag: strPtr(dir), Lat: lat, Lon: lon, SpeedKmHr: 20}
}

func newFixture() (*fakeFeed, *cache.Cache) {
	feed := &fakeFeed{
		vehicles: map[string][]nextbus.Vehicle{
			"501": {vehicle("4500", "501", "501_0_501", 43.6487, -79.3853)},
			"504": {vehicle("4410", "504", "504_1_504A", 43.6450, -79.3920), vehicle("4411", "504", "504_1_504A", 43.6440, -79.4000)},
		},
		configs: map[string]*nextbus.RouteConfig{
			"504": {Tag: "504", Title: "504-King", Stops: []nextbus.Stop{{Tag: "8235", Title: "King St West At Spadina Ave"}}},
		},
		messages: map[string][]nextbus.ServiceMessage{
			"504": {{ID: "m1", Text: "Diversion at King and Bathurst", Priority: "Normal", RouteTag: "504"}},
		},
		fail: map[string]bool{},
		hang: map[string]bool{},
	}
	return feed, cache.New(cache.NewMemory(), testLogger())
}

func TestFetch_AllLive(t *testing.T) {
	feed, c := newFixture()
	o := New(feed, c, time.Second, testLogger())

	got := o.Fetch(context.Background(), []Request{
		{RouteTag: "501"},
		{RouteTag: "504", RouteConfig: true, Messages: true},
	})
	require.Len(t, got, 2)

	assert.Equal(t, "501", got[0].RouteTag)
	assert.Equal(t, SourceLive, got[0].VehiclesSource)
	assert.Len(t, got[0].Vehicles, 1)
	assert.Nil(t, got[0].Config)
	assert.Equal(t, SourceNone, got[0].ConfigSource)
	assert.Empty(t, got[0].Messages)

	assert.Equal(t, SourceLive, got[1].VehiclesSource)
	assert.Len(t, got[1].Vehicles, 2)
	require.NotNil(t, got[1].Config)
	assert.Equal(t, "504-King", got[1].Config.Title)
	assert.Equal(t, SourceLive, got[1].ConfigSource)
	assert.Len(t, got[1].Messages, 1)

	// Live results are written back.
	_, _, ok := c.Vehicles(context.Background(), "501")
	assert.True(t, ok)
	_, _, ok = c.RouteConfig(context.Background(), "504")
	assert.True(t, ok)
}

func TestFetch_RunsConcurrently(t *testing.T) {
	feed, c := newFixture()
	o := New(feed, c, time.Second, testLogger())

	o.Fetch(context.Background(), []Request{
		{RouteTag: "501", RouteConfig: true, Messages: true},
		{RouteTag: "504", RouteConfig: true, Messages: true},
	})
	assert.Greater(t, feed.maxInFlight.Load(), int32(1))
}

func TestFetch_RouteIsolation(t *testing.T) {
	t.Run("failed route without cache is empty", func(t *testing.T) {
		feed, c := newFixture()
		feed.fail["501"] = true
		o := New(feed, c, time.Second, testLogger())

		got := o.Fetch(context.Background(), []Request{{RouteTag: "501"}, {RouteTag: "504"}})
		require.Len(t, got, 2)

		assert.Equal(t, SourceNone, got[0].VehiclesSource)
		assert.Empty(t, got[0].Vehicles)
		assert.NotNil(t, got[0].Vehicles)
		assert.False(t, got[0].HasVehicleData())

		assert.Equal(t, SourceLive, got[1].VehiclesSource)
		assert.Len(t, got[1].Vehicles, 2)
	})

	t.Run("failed route falls back to cache", func(t *testing.T) {
		feed, c := newFixture()
		ctx := context.Background()
		cached := []nextbus.Vehicle{vehicle("4499", "501", "501_1_501", 43.65, -79.40)}
		require.NoError(t, c.PutVehicles(ctx, "501", cached))
		feed.fail["501"] = true
		o := New(feed, c, time.Second, testLogger())

		got := o.Fetch(ctx, []Request{{RouteTag: "501"}, {RouteTag: "504"}})
		assert.Equal(t, SourceCache, got[0].VehiclesSource)
		assert.False(t, got[0].VehiclesStale)
		assert.Equal(t, cached, got[0].Vehicles)
		assert.Equal(t, SourceLive, got[1].VehiclesSource)
	})

	t.Run("timed out route does not hold others", func(t *testing.T) {
		feed, c := newFixture()
		feed.hang["501"] = true
		o := New(feed, c, 50*time.Millisecond, testLogger())

		start := time.Now()
		got := o.Fetch(context.Background(), []Request{{RouteTag: "501"}, {RouteTag: "504"}})
		assert.Less(t, time.Since(start), 2*time.Second)
		assert.Equal(t, SourceNone, got[0].VehiclesSource)
		assert.Equal(t, SourceLive, got[1].VehiclesSource)
	})
}

func TestFetch_StaleFallbackStillUsed(t *testing.T) {
	feed, _ := newFixture()
	clock := time.Date(2026, 10, 16, 8, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	now := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return clock
	}
	c := cache.New(cache.NewMemory(), testLogger(), cache.WithClock(now))
	ctx := context.Background()
	require.NoError(t, c.PutVehicles(ctx, "501", []nextbus.Vehicle{vehicle("4499", "501", "501_1_501", 43.65, -79.40)}))

	mu.Lock()
	clock = clock.Add(10 * time.Minute)
	mu.Unlock()

	feed.fail["501"] = true
	o := New(feed, c, time.Second, testLogger())
	got := o.Fetch(ctx, []Request{{RouteTag: "501"}})
	assert.Equal(t, SourceCache, got[0].VehiclesSource)
	assert.True(t, got[0].VehiclesStale)
	assert.Len(t, got[0].Vehicles, 1)
}

func TestFetch_ConfigFallback(t *testing.T) {
	feed, c := newFixture()
	ctx := context.Background()
	require.NoError(t, c.PutRouteConfig(ctx, "501", &nextbus.RouteConfig{Tag: "501", Title: "501-Queen"}))
	o := New(feed, c, time.Second, testLogger())

	// 501 has no live config in the fake, so the parse error triggers fallback.
	got := o.Fetch(ctx, []Request{{RouteTag: "501", RouteConfig: true}})
	require.NotNil(t, got[0].Config)
	assert.Equal(t, "501-Queen", got[0].Config.Title)
	assert.Equal(t, SourceCache, got[0].ConfigSource)
}

func TestFetchPredictions(t *testing.T) {
	feed, c := newFixture()
	feed.groups = map[string][]nextbus.PredictionGroup{
		"504": {{DirectionTitle: "East", StopTitle: "King St West At Spadina Ave", Predictions: []nextbus.Prediction{{Seconds: 120, Minutes: 2, Vehicle: "4410"}}}},
	}
	feed.fail["501"] = true
	o := New(feed, c, time.Second, testLogger())

	got := o.FetchPredictions(context.Background(), map[string]string{"501": "14260", "504": "8235"})
	require.Len(t, got, 2)
	assert.Len(t, got["504"], 1)
	assert.NotNil(t, got["501"])
	assert.Empty(t, got["501"])
}

func TestRouteConfig_OnDemand(t *testing.T) {
	ctx := context.Background()

	t.Run("live", func(t *testing.T) {
		feed, c := newFixture()
		o := New(feed, c, time.Second, testLogger())
		rc, src, err := o.RouteConfig(ctx, "504")
		require.NoError(t, err)
		assert.Equal(t, SourceLive, src)
		assert.Equal(t, "504", rc.Tag)
	})

	t.Run("cache fallback", func(t *testing.T) {
		feed, c := newFixture()
		require.NoError(t, c.PutRouteConfig(ctx, "504", &nextbus.RouteConfig{Tag: "504", Title: "cached"}))
		feed.fail["504"] = true
		o := New(feed, c, time.Second, testLogger())
		rc, src, err := o.RouteConfig(ctx, "504")
		require.NoError(t, err)
		assert.Equal(t, SourceCache, src)
		assert.Equal(t, "cached", rc.Title)
	})

	t.Run("no data", func(t *testing.T) {
		feed, c := newFixture()
		feed.fail["504"] = true
		o := New(feed, c, time.Second, testLogger())
		_, src, err := o.RouteConfig(ctx, "504")
		assert.ErrorIs(t, err, ErrNoData)
		var te *nextbus.TransportError
		assert.True(t, errors.As(err, &te))
		assert.Equal(t, SourceNone, src)
	})
}

func TestPredictions_OnDemandNotCached(t *testing.T) {
	feed, c := newFixture()
	feed.fail["504"] = true
	o := New(feed, c, time.Second, testLogger())

	_, err := o.Predictions(context.Background(), "504", "8235")
	var te *nextbus.TransportError
	assert.True(t, errors.As(err, &te))
}
