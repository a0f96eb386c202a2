package transit

import "time"

// Thresholds tunes the classifier's time windows.
type Thresholds struct {
	// TerminalDeparting: a train at a terminal whose next arrival is at most
	// this far away is treated as already departed.
	TerminalDeparting time.Duration
	// TerminalStale: at or beyond this gap a terminal prediction is a future
	// schedule, not a live train.
	TerminalStale time.Duration
	// MaxEnRouteGap caps how far ahead an arrival may be for the trip to count
	// as travelling toward it.
	MaxEnRouteGap time.Duration
}

// DefaultThresholds returns the standard tuning: 5 min, 12 min, 15 min.
func DefaultThresholds() Thresholds {
	return Thresholds{
		TerminalDeparting: 300 * time.Second,
		TerminalStale:     720 * time.Second,
		MaxEnRouteGap:     900 * time.Second,
	}
}

// TerminalIndex reports whether a stop is a configured terminal of a route.
type TerminalIndex interface {
	IsTerminal(routeID, stopID string) bool
}

// TerminalMap is a TerminalIndex keyed by route and base stop id.
type TerminalMap map[string]map[string]struct{}

// NewTerminalMap builds a TerminalMap. Stop ids may be given with or without
// a direction suffix.
func NewTerminalMap(routes map[string][]string) TerminalMap {
	m := make(TerminalMap, len(routes))
	for route, stops := range routes {
		set := make(map[string]struct{}, len(stops))
		for _, id := range stops {
			set[BaseStopID(id)] = struct{}{}
		}
		m[route] = set
	}
	return m
}

// IsTerminal implements TerminalIndex.
func (m TerminalMap) IsTerminal(routeID, stopID string) bool {
	if stopID == "" {
		return false
	}
	_, ok := m[routeID][BaseStopID(stopID)]
	return ok
}

// Classifier assigns a TripStatus to trips.
type Classifier struct {
	Terminals  TerminalIndex
	Thresholds Thresholds
}

// NewClassifier returns a Classifier with the default thresholds.
func NewClassifier(terminals TerminalIndex) *Classifier {
	return &Classifier{Terminals: terminals, Thresholds: DefaultThresholds()}
}

// ClassifyAll classifies every trip in feed at now.
func (c *Classifier) ClassifyAll(feed FeedData, now time.Time) []TripStatus {
	out := make([]TripStatus, 0, len(feed.Trips))
	for _, trip := range feed.Trips {
		out = append(out, c.Classify(trip, now))
	}
	return out
}

// Classify derives the status of trip at now.
//
// Stops are scanned in trip order and the first rule that matches wins. At
// each index the terminal rule is tried before the at-station and en-route
// rules, and lastSeen always tracks the stop under examination.
func (c *Classifier) Classify(trip Trip, now time.Time) TripStatus {
	status := c.classify(trip, now.Unix())
	status.RouteID = trip.RouteID
	return status
}

func (c *Classifier) classify(trip Trip, now int64) TripStatus {
	stops := trip.Stops
	if len(stops) == 0 {
		return OutOfServiceStatus(trip.TripID)
	}

	departing := seconds(c.Thresholds.TerminalDeparting)
	stale := seconds(c.Thresholds.TerminalStale)
	maxGap := seconds(c.Thresholds.MaxEnRouteGap)

	for i := range stops {
		lastSeen := stops[i]
		var next *Stop
		if i+1 < len(stops) {
			next = &stops[i+1]
		}

		if c.isTerminal(trip.RouteID, lastSeen.StopID) {
			if next != nil {
				gap := next.ArrivalTimeRaw - now
				if gap > 0 && gap <= departing {
					return EnRouteStatus(trip.TripID, lastSeen, next, now)
				}
				if gap >= stale {
					return OutOfServiceStatus(trip.TripID)
				}
			}
			return IdlingStatus(trip.TripID, lastSeen, next, now)
		}

		if now >= lastSeen.ArrivalTimeRaw && now <= lastSeen.EffectiveDeparture() {
			return AtStationStatus(trip.TripID, lastSeen, next)
		}
		if now < lastSeen.ArrivalTimeRaw && lastSeen.ArrivalTimeRaw-now < maxGap {
			return EnRouteStatus(trip.TripID, lastSeen, next, now)
		}
	}
	return OutOfServiceStatus(trip.TripID)
}

func (c *Classifier) isTerminal(routeID, stopID string) bool {
	if c.Terminals == nil {
		return false
	}
	return c.Terminals.IsTerminal(routeID, stopID)
}

func seconds(d time.Duration) int64 {
	return int64(d / time.Second)
}
