// Package transit infers live trip status from GTFS-Realtime trip updates.
package transit

import "fmt"

// Stop is a single predicted stop event within a trip.
// Raw times are Unix seconds; zero means the feed did not report one.
type Stop struct {
	StopID                string `json:"stopId,omitempty"`
	StopName              string `json:"stopName,omitempty"`
	ArrivalTime           string `json:"arrivalTime"`
	ArrivalTimeRaw        int64  `json:"arrivalTimeRaw,omitempty"`
	DepartureTime         string `json:"departureTime"`
	DepartureTimeRaw      int64  `json:"departureTimeRaw,omitempty"`
	FixedDepartureTimeRaw int64  `json:"fixedDepartureTimeRaw,omitempty"`
}

// Ref returns the id/name pair for the stop.
func (s Stop) Ref() StopRef {
	return StopRef{ID: s.StopID, Name: s.StopName}
}

// EffectiveDeparture is the departure used for at-station windows.
func (s Stop) EffectiveDeparture() int64 {
	if s.ArrivalTimeRaw == s.DepartureTimeRaw {
		return s.FixedDepartureTimeRaw
	}
	return s.DepartureTimeRaw
}

// Trip is one vehicle run with its stops in feed order.
type Trip struct {
	TripID    string `json:"tripId"`
	RouteID   string `json:"routeId"`
	StartDate string `json:"startDate"`
	StartTime string `json:"startTime,omitempty"`
	Stops     []Stop `json:"stops"`
}

// FeedData is the set of trips for one route.
type FeedData struct {
	Trips []Trip `json:"trips"`
}

// Schedule maps a route symbol to its trips. A schedule is rebuilt on every
// feed refresh and never mutated after construction.
type Schedule map[string]FeedData

// Merge returns a new schedule where routes from other replace routes in s.
func (s Schedule) Merge(other Schedule) Schedule {
	out := make(Schedule, len(s)+len(other))
	for k, v := range s {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}

// TripCount returns the number of trips across all routes.
func (s Schedule) TripCount() int {
	n := 0
	for _, fd := range s {
		n += len(fd.Trips)
	}
	return n
}

// StopRef identifies a stop on a route.
type StopRef struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// DisplayName returns the stop name, or a placeholder built from the id.
func (r StopRef) DisplayName() string {
	if r.Name != "" {
		return r.Name
	}
	return fmt.Sprintf("Stop (%s)", r.ID)
}

// StopInfo is a row of the static stop reference table.
type StopInfo struct {
	Name          string
	ParentStation string
}

// StopLookup resolves stop ids to reference data.
type StopLookup interface {
	LookupStop(id string) (StopInfo, bool)
}

// StopTable is an in-memory StopLookup keyed by exact stop id.
type StopTable map[string]StopInfo

// LookupStop implements StopLookup.
func (t StopTable) LookupStop(id string) (StopInfo, bool) {
	info, ok := t[id]
	return info, ok
}

// BaseStopID strips the N/S direction suffix, leaving the 3-character
// station code ("A02N" -> "A02"). Shorter ids are returned unchanged.
func BaseStopID(id string) string {
	if len(id) <= 3 {
		return id
	}
	return id[:3]
}
