package refresh

import (
	"sync"

	"streetwatch/internal/nextbus"
)

// Store holds the latest cycle result and fans it out to subscribers.
type Store struct {
	mu     sync.RWMutex
	latest *Result
	subs   map[chan *Result]struct{}
	ready  chan struct{}
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		subs:  make(map[chan *Result]struct{}),
		ready: make(chan struct{}),
	}
}

// Publish replaces the latest result and notifies subscribers. A subscriber
// that has not consumed the previous result only sees the newest one.
func (s *Store) Publish(r *Result) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.latest == nil {
		close(s.ready)
	}
	s.latest = r
	for ch := range s.subs {
		select {
		case <-ch:
		default:
		}
		ch <- r
	}
}

// Latest returns the most recent result, or nil before the first cycle.
func (s *Store) Latest() *Result {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest
}

// Route returns the latest snapshot for tag.
func (s *Store) Route(tag string) (RouteSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.latest == nil {
		return RouteSnapshot{}, false
	}
	return s.latest.Route(tag)
}

// Configs returns the route configs known to the latest result.
func (s *Store) Configs() []*nextbus.RouteConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.latest == nil {
		return nil
	}
	var out []*nextbus.RouteConfig
	for _, rs := range s.latest.Routes {
		if rs.Config != nil {
			out = append(out, rs.Config)
		}
	}
	return out
}

// Ready is closed once the first result is published.
func (s *Store) Ready() <-chan struct{} {
	return s.ready
}

// Subscribe registers for new results. The returned func unsubscribes.
func (s *Store) Subscribe() (<-chan *Result, func()) {
	ch := make(chan *Result, 1)
	s.mu.Lock()
	s.subs[ch] = struct{}{}
	s.mu.Unlock()

	return ch, func() {
		s.mu.Lock()
		delete(s.subs, ch)
		s.mu.Unlock()
	}
}
