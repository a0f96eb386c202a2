package transit

import "fmt"

// Kind is the operational state of a trip.
type Kind int

const (
	OutOfService Kind = iota
	Idling
	EnRoute
	AtStation
)

var kindNames = [...]string{
	OutOfService: "OUT_OF_SERVICE",
	Idling:       "IDLING",
	EnRoute:      "EN_ROUTE",
	AtStation:    "AT_STATION",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// MarshalText encodes the kind by name.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText parses a kind name.
func (k *Kind) UnmarshalText(b []byte) error {
	for i, name := range kindNames {
		if name == string(b) {
			*k = Kind(i)
			return nil
		}
	}
	return fmt.Errorf("unknown trip status %q", b)
}

// Direction is the travel direction of a trip relative to a route's stop list.
type Direction int

const (
	NoDirection Direction = iota
	Up
	Down
)

func (d Direction) String() string {
	switch d {
	case Up:
		return "UP"
	case Down:
		return "DOWN"
	default:
		return ""
	}
}

// MarshalText encodes the direction as UP, DOWN or an empty string.
func (d Direction) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText parses UP or DOWN; anything else is NoDirection.
func (d *Direction) UnmarshalText(b []byte) error {
	switch string(b) {
	case "UP":
		*d = Up
	case "DOWN":
		*d = Down
	default:
		*d = NoDirection
	}
	return nil
}

// TripStatus is the derived state of one trip at a point in time.
//
// LastSeen is set for every kind except OutOfService. Next is optional.
// SecondsUntilNext is only reported for EnRoute and Idling trips.
// Build values with the *Status constructors so these hold.
type TripStatus struct {
	TripID           string    `json:"tripId"`
	RouteID          string    `json:"routeId,omitempty"`
	Kind             Kind      `json:"status"`
	LastSeen         *Stop     `json:"lastSeenStop,omitempty"`
	Next             *Stop     `json:"nextStop,omitempty"`
	SecondsUntilNext int64     `json:"timeUntilNextStop,omitempty"`
	Direction        Direction `json:"direction,omitempty"`
}

// OutOfServiceStatus reports a trip with no live position.
func OutOfServiceStatus(tripID string) TripStatus {
	return TripStatus{TripID: tripID, Kind: OutOfService}
}

// AtStationStatus reports a trip stopped at lastSeen.
func AtStationStatus(tripID string, lastSeen Stop, next *Stop) TripStatus {
	return TripStatus{TripID: tripID, Kind: AtStation, LastSeen: &lastSeen, Next: copyStop(next)}
}

// EnRouteStatus reports a trip moving toward a stop. now is Unix seconds.
func EnRouteStatus(tripID string, lastSeen Stop, next *Stop, now int64) TripStatus {
	s := TripStatus{TripID: tripID, Kind: EnRoute, LastSeen: &lastSeen, Next: copyStop(next)}
	s.SecondsUntilNext = secondsUntil(next, now)
	return s
}

// IdlingStatus reports a trip waiting at a terminal. now is Unix seconds.
func IdlingStatus(tripID string, lastSeen Stop, next *Stop, now int64) TripStatus {
	s := TripStatus{TripID: tripID, Kind: Idling, LastSeen: &lastSeen, Next: copyStop(next)}
	s.SecondsUntilNext = secondsUntil(next, now)
	return s
}

// WithDirection returns a copy of s tagged with d.
func (s TripStatus) WithDirection(d Direction) TripStatus {
	s.Direction = d
	return s
}

func copyStop(s *Stop) *Stop {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

func secondsUntil(next *Stop, now int64) int64 {
	if next == nil || next.ArrivalTimeRaw <= now {
		return 0
	}
	return next.ArrivalTimeRaw - now
}
