package realtime

import (
	"slices"
	"strings"
	"sync"
	"time"

	"streetwatch/internal/nextbus"
)

// PriorityHigh marks advisories whose effect stops or diverts service.
const PriorityHigh = "High"

// Alert represents a parsed service alert.
type Alert struct {
	ID         string   `json:"id"`
	HeaderText string   `json:"header_text"`
	DescText   string   `json:"desc_text,omitempty"`
	RouteIDs   []string `json:"route_ids"`
	Effect     string   `json:"effect"` // "NO_SERVICE", "REDUCED_SERVICE", "DETOUR", etc.
	Cause      string   `json:"cause,omitempty"`
	Periods    []Period `json:"periods,omitempty"` // empty means always active
}

// Period is an active window in unix seconds. Zero bounds are open.
type Period struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

// ActiveAt reports whether the alert applies at t.
func (a Alert) ActiveAt(t time.Time) bool {
	if len(a.Periods) == 0 {
		return true
	}
	ts := t.Unix()
	for _, p := range a.Periods {
		if (p.Start == 0 || ts >= p.Start) && (p.End == 0 || ts <= p.End) {
			return true
		}
	}
	return false
}

// Message converts the alert into a service message for routeTag.
func (a Alert) Message(routeTag string) nextbus.ServiceMessage {
	text := a.HeaderText
	if a.DescText != "" && a.DescText != a.HeaderText {
		if text != "" {
			text += "\n"
		}
		text += a.DescText
	}
	priority := nextbus.DefaultPriority
	switch a.Effect {
	case "NO_SERVICE", "SIGNIFICANT_DELAYS", "DETOUR":
		priority = PriorityHigh
	}
	return nextbus.ServiceMessage{
		ID:       a.ID,
		Text:     strings.TrimSpace(text),
		Priority: priority,
		RouteTag: routeTag,
	}
}

// Store holds the latest alerts in a thread-safe manner.
type Store struct {
	mu        sync.RWMutex
	alerts    []Alert
	updatedAt time.Time
	now       func() time.Time
}

// NewStore creates an empty alert store.
func NewStore() *Store {
	return &Store{now: time.Now}
}

// SetAlerts replaces all alerts.
func (s *Store) SetAlerts(alerts []Alert) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = alerts
	s.updatedAt = s.now()
}

// UpdatedAt returns when alerts were last replaced; zero if never.
func (s *Store) UpdatedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updatedAt
}

// MessagesForRoute returns the currently active alerts affecting a route as
// service messages. Alerts with no text are skipped.
func (s *Store) MessagesForRoute(routeTag string) []nextbus.ServiceMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	var result []nextbus.ServiceMessage
	for _, a := range s.alerts {
		if !a.ActiveAt(now) {
			continue
		}
		for _, r := range a.RouteIDs {
			if r == routeTag {
				if m := a.Message(routeTag); m.Text != "" {
					result = append(result, m)
				}
				break
			}
		}
	}
	return result
}

// AllAlerts returns all stored alerts.
func (s *Store) AllAlerts() []Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Alert, len(s.alerts))
	copy(out, s.alerts)
	return out
}

// ActiveAlerts returns the alerts active now, narrowed to routeTag unless it
// is empty.
func (s *Store) ActiveAlerts(routeTag string) []Alert {
	now := s.now()
	out := []Alert{}
	for _, a := range s.AllAlerts() {
		if !a.ActiveAt(now) {
			continue
		}
		if routeTag == "" || slices.Contains(a.RouteIDs, routeTag) {
			out = append(out, a)
		}
	}
	return out
}
