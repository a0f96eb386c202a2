package realtime

import (
	"sort"
	"sync"
	"time"

	"subwaywatch/internal/transit"
)

// FeedStatus is the outcome of the latest fetch of one feed endpoint.
type FeedStatus struct {
	Name      string    `json:"name"`
	URL       string    `json:"url"`
	OK        bool      `json:"ok"`
	Routes    []string  `json:"routes"`
	Trips     int       `json:"trips"`
	FetchedAt time.Time `json:"fetchedAt"`
	LastError string    `json:"lastError,omitempty"`
}

// Store holds the current merged schedule in a thread-safe manner.
// Schedules handed out are never mutated; writers swap in new ones.
type Store struct {
	mu        sync.RWMutex
	schedule  transit.Schedule
	fetchedAt time.Time
	feeds     map[string]FeedStatus
}

// NewStore creates an empty realtime store.
func NewStore() *Store {
	return &Store{feeds: make(map[string]FeedStatus)}
}

// Replace swaps in the schedule from a full poll cycle.
func (s *Store) Replace(schedule transit.Schedule, at time.Time, statuses []FeedStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schedule = schedule
	s.fetchedAt = at
	for _, st := range statuses {
		s.feeds[st.Name] = st
	}
}

// Merge overlays the routes of a single feed onto the current schedule.
// Routes the feed carried last time, or the served routes given, that are
// missing from schedule are dropped.
func (s *Store) Merge(schedule transit.Schedule, at time.Time, status FeedStatus, served ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stale := append(append([]string(nil), s.feeds[status.Name].Routes...), served...)
	base := make(transit.Schedule, len(s.schedule))
	for route, fd := range s.schedule {
		base[route] = fd
	}
	for _, route := range stale {
		if _, ok := schedule[route]; !ok {
			delete(base, route)
		}
	}
	s.schedule = base.Merge(schedule)
	if at.After(s.fetchedAt) {
		s.fetchedAt = at
	}
	s.feeds[status.Name] = status
}

// SetFeedStatus records a fetch outcome without touching the schedule.
func (s *Store) SetFeedStatus(status FeedStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.feeds[status.Name] = status
}

// Snapshot returns the current schedule and when it was fetched.
func (s *Store) Snapshot() (transit.Schedule, time.Time) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.schedule, s.fetchedAt
}

// Route returns the trips for one route.
func (s *Store) Route(routeID string) (transit.FeedData, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fd, ok := s.schedule[routeID]
	return fd, ok
}

// Ready reports whether at least one poll has produced a schedule.
func (s *Store) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.schedule != nil
}

// Feeds returns the status of every known feed, ordered by name.
func (s *Store) Feeds() []FeedStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]FeedStatus, 0, len(s.feeds))
	for _, f := range s.feeds {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
