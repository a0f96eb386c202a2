package transit

import "time"

// ResolveDirection infers which way a trip moves along canonical.
// Stops are matched by base id; a trip heading toward a later stop in the
// list is going DOWN, toward an earlier one UP.
func ResolveDirection(status TripStatus, canonical []StopRef) Direction {
	if status.LastSeen == nil || status.Next == nil ||
		status.LastSeen.StopID == "" || status.Next.StopID == "" {
		return NoDirection
	}

	last := indexOfBase(canonical, BaseStopID(status.LastSeen.StopID))
	next := indexOfBase(canonical, BaseStopID(status.Next.StopID))
	switch {
	case last < 0 || next < 0:
		return NoDirection
	case last < next:
		return Down
	case last > next:
		return Up
	default:
		return NoDirection
	}
}

func indexOfBase(stops []StopRef, base string) int {
	for i, s := range stops {
		if s.ID != "" && BaseStopID(s.ID) == base {
			return i
		}
	}
	return -1
}

// Board groups the trips at one stop by direction.
type Board struct {
	Stop StopRef      `json:"stop"`
	Down []TripStatus `json:"down"`
	Up   []TripStatus `json:"up"`
	None []TripStatus `json:"none"`
}

// Len returns the number of trips on the board.
func (b Board) Len() int {
	return len(b.Down) + len(b.Up) + len(b.None)
}

// BuildBoard selects the statuses at stop and sorts them into direction
// buckets, tagging each with its resolved direction.
func BuildBoard(stop StopRef, statuses []TripStatus, canonical []StopRef) Board {
	b := Board{Stop: stop, Down: []TripStatus{}, Up: []TripStatus{}, None: []TripStatus{}}
	for _, s := range StatusesAtStop(stop, statuses) {
		d := ResolveDirection(s, canonical)
		s = s.WithDirection(d)
		switch d {
		case Down:
			b.Down = append(b.Down, s)
		case Up:
			b.Up = append(b.Up, s)
		default:
			b.None = append(b.None, s)
		}
	}
	return b
}

// RouteView is the full display model for one route at a point in time.
type RouteView struct {
	RouteID  string         `json:"routeId"`
	At       time.Time      `json:"at"`
	Stops    []StopRef      `json:"stops"`
	Boards   []Board        `json:"boards"`
	Statuses []TripStatus   `json:"statuses"`
	Counts   map[string]int `json:"counts"`
}

// BuildRouteView classifies every trip of feed and builds a board per
// canonical stop.
func BuildRouteView(routeID string, feed FeedData, c *Classifier, now time.Time) RouteView {
	stops := StopsForRoute(feed.Trips)
	statuses := c.ClassifyAll(feed, now)

	v := RouteView{
		RouteID:  routeID,
		At:       now,
		Stops:    stops,
		Boards:   make([]Board, 0, len(stops)),
		Statuses: statuses,
		Counts:   make(map[string]int),
	}
	for _, stop := range stops {
		v.Boards = append(v.Boards, BuildBoard(stop, statuses, stops))
	}
	for k, n := range CountByKind(statuses) {
		v.Counts[k.String()] = n
	}
	return v
}
