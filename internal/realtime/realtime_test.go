package realtime

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	gtfs "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func translated(text string) *gtfs.TranslatedString {
	return &gtfs.TranslatedString{Translation: []*gtfs.TranslatedString_Translation{
		{Text: proto.String(text), Language: proto.String("en")},
	}}
}

func alertEntity(id string, effect gtfs.Alert_Effect, header, desc string, routes ...string) *gtfs.FeedEntity {
	a := &gtfs.Alert{
		Effect:     effect.Enum(),
		Cause:      gtfs.Alert_CONSTRUCTION.Enum(),
		HeaderText: translated(header),
	}
	if desc != "" {
		a.DescriptionText = translated(desc)
	}
	for _, r := range routes {
		a.InformedEntity = append(a.InformedEntity, &gtfs.EntitySelector{RouteId: proto.String(r)})
	}
	return &gtfs.FeedEntity{Id: proto.String(id), Alert: a}
}

func alertsFeed(t *testing.T, entities ...*gtfs.FeedEntity) []byte {
	t.Helper()
	msg := &gtfs.FeedMessage{
		Header: &gtfs.FeedHeader{
			GtfsRealtimeVersion: proto.String("2.0"),
			Timestamp:           proto.Uint64(1760600000),
		},
		Entity: entities,
	}
	b, err := proto.Marshal(msg)
	require.NoError(t, err)
	return b
}

func TestDecodeAlerts(t *testing.T) {
	body := alertsFeed(t,
		alertEntity("a1", gtfs.Alert_DETOUR, "504 King diverting", "Via Queen St", "504", "504", "501"),
		&gtfs.FeedEntity{Id: proto.String("not-an-alert")},
		alertEntity("a2", gtfs.Alert_REDUCED_SERVICE, "Fewer cars on 510", "", "510"),
	)

	alerts, err := DecodeAlerts(body)
	require.NoError(t, err)
	require.Len(t, alerts, 2)

	assert.Equal(t, "a1", alerts[0].ID)
	assert.Equal(t, "504 King diverting", alerts[0].HeaderText)
	assert.Equal(t, "Via Queen St", alerts[0].DescText)
	assert.Equal(t, "DETOUR", alerts[0].Effect)
	assert.Equal(t, "CONSTRUCTION", alerts[0].Cause)
	assert.Equal(t, []string{"504", "501"}, alerts[0].RouteIDs)

	_, err = DecodeAlerts([]byte("definitely not protobuf \xff\xff"))
	assert.Error(t, err)
}

func TestAlert_Message(t *testing.T) {
	tests := []struct {
		name         string
		alert        Alert
		wantText     string
		wantPriority string
	}{
		{
			name:         "detour is high",
			alert:        Alert{ID: "a1", HeaderText: "Diversion", DescText: "Via Queen", Effect: "DETOUR"},
			wantText:     "Diversion\nVia Queen",
			wantPriority: "High",
		},
		{
			name:         "no service is high",
			alert:        Alert{ID: "a2", HeaderText: "No service", Effect: "NO_SERVICE"},
			wantText:     "No service",
			wantPriority: "High",
		},
		{
			name:         "significant delays is high",
			alert:        Alert{ID: "a3", HeaderText: "Delays", DescText: "Delays", Effect: "SIGNIFICANT_DELAYS"},
			wantText:     "Delays",
			wantPriority: "High",
		},
		{
			name:         "other effects are normal",
			alert:        Alert{ID: "a4", DescText: "Stop moved 50m east", Effect: "STOP_MOVED"},
			wantText:     "Stop moved 50m east",
			wantPriority: "Normal",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := tt.alert.Message("504")
			assert.Equal(t, tt.alert.ID, m.ID)
			assert.Equal(t, tt.wantText, m.Text)
			assert.Equal(t, tt.wantPriority, m.Priority)
			assert.Equal(t, "504", m.RouteTag)
		})
	}
}

func TestAlert_ActiveAt(t *testing.T) {
	now := time.Unix(1_000_000, 0)
	tests := []struct {
		name    string
		periods []Period
		want    bool
	}{
		{"no periods", nil, true},
		{"inside", []Period{{Start: 999_000, End: 1_001_000}}, true},
		{"open end", []Period{{Start: 999_000}}, true},
		{"open start", []Period{{End: 1_001_000}}, true},
		{"expired", []Period{{Start: 1, End: 999_999}}, false},
		{"future", []Period{{Start: 1_000_001}}, false},
		{"any period matches", []Period{{Start: 1, End: 2}, {Start: 999_000}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Alert{Periods: tt.periods}.ActiveAt(now))
		})
	}
}

func TestStore_MessagesForRoute(t *testing.T) {
	s := NewStore()
	s.now = func() time.Time { return time.Unix(1_000_000, 0) }
	s.SetAlerts([]Alert{
		{ID: "a1", HeaderText: "Diversion", Effect: "DETOUR", RouteIDs: []string{"504", "501"}},
		{ID: "a2", HeaderText: "Old news", RouteIDs: []string{"504"}, Periods: []Period{{Start: 1, End: 2}}},
		{ID: "a3", RouteIDs: []string{"504"}},
		{ID: "a4", HeaderText: "Spadina", RouteIDs: []string{"510"}},
	})

	got := s.MessagesForRoute("504")
	require.Len(t, got, 1)
	assert.Equal(t, "a1", got[0].ID)
	assert.Equal(t, "504", got[0].RouteTag)

	assert.Empty(t, s.MessagesForRoute("512"))
	assert.Len(t, s.AllAlerts(), 4)
	assert.Equal(t, time.Unix(1_000_000, 0), s.UpdatedAt())
}

func TestStore_ActiveAlerts(t *testing.T) {
	s := NewStore()
	s.now = func() time.Time { return time.Unix(1_000_000, 0) }
	s.SetAlerts([]Alert{
		{ID: "a1", HeaderText: "Diversion", RouteIDs: []string{"504", "501"}},
		{ID: "a2", HeaderText: "Old news", RouteIDs: []string{"504"}, Periods: []Period{{Start: 1, End: 2}}},
		{ID: "a4", HeaderText: "Spadina", RouteIDs: []string{"510"}},
	})

	all := s.ActiveAlerts("")
	require.Len(t, all, 2)
	assert.Equal(t, "a1", all[0].ID)
	assert.Equal(t, "a4", all[1].ID)

	got := s.ActiveAlerts("501")
	require.Len(t, got, 1)
	assert.Equal(t, "a1", got[0].ID)

	assert.NotNil(t, s.ActiveAlerts("512"))
	assert.Empty(t, s.ActiveAlerts("512"))
}

func TestFetcher_Refresh(t *testing.T) {
	body := alertsFeed(t, alertEntity("a1", gtfs.Alert_NO_SERVICE, "No 511 service", "Shuttle buses running", "511"))
	var status atomic.Int32
	status.Store(http.StatusOK)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if code := int(status.Load()); code != http.StatusOK {
			w.WriteHeader(code)
			return
		}
		w.Header().Set("Content-Type", "application/x-protobuf")
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	store := NewStore()
	f := NewFetcher(srv.URL, store, 5*time.Second, testLogger())

	require.NoError(t, f.Refresh(context.Background()))
	got := store.MessagesForRoute("511")
	require.Len(t, got, 1)
	assert.Equal(t, "No 511 service\nShuttle buses running", got[0].Text)
	assert.Equal(t, PriorityHigh, got[0].Priority)

	// A failed refresh keeps the previous alerts.
	status.Store(http.StatusBadGateway)
	assert.Error(t, f.Refresh(context.Background()))
	assert.Len(t, store.MessagesForRoute("511"), 1)
}

func TestFetcher_StartStopsOnCancel(t *testing.T) {
	body := alertsFeed(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	store := NewStore()
	f := NewFetcher(srv.URL, store, time.Second, testLogger())
	f.interval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return !store.UpdatedAt().IsZero() }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start did not return after cancel")
	}
}
