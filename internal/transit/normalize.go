package transit

import (
	"errors"
	"fmt"
	"time"

	gtfs "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"
)

// ErrFeedUnavailable is returned when an endpoint could not be fetched or decoded.
var ErrFeedUnavailable = errors.New("feed unavailable")

// DisplayTimeLayout is the time-of-day format for display times.
const DisplayTimeLayout = "3:04:05 PM"

// Normalizer turns decoded GTFS-RT trip updates into a Schedule.
type Normalizer struct {
	Stops    StopLookup
	Location *time.Location
}

// ParseFeed decodes a GTFS-RT protobuf payload and normalizes it.
func ParseFeed(data []byte, stops StopLookup, loc *time.Location) (Schedule, error) {
	n := Normalizer{Stops: stops, Location: loc}
	return n.Parse(data)
}

// Parse decodes data and normalizes the resulting feed message.
func (n Normalizer) Parse(data []byte) (Schedule, error) {
	msg := &gtfs.FeedMessage{}
	if err := proto.Unmarshal(data, msg); err != nil {
		return nil, fmt.Errorf("%w: decode protobuf: %v", ErrFeedUnavailable, err)
	}
	return n.Normalize(msg), nil
}

// Normalize converts every usable trip update in msg into a Trip.
// When the same trip id appears more than once the last update wins,
// keeping the position of the first occurrence.
func (n Normalizer) Normalize(msg *gtfs.FeedMessage) Schedule {
	var order []string
	updates := make(map[string]*gtfs.TripUpdate)
	for _, entity := range msg.GetEntity() {
		tu := entity.GetTripUpdate()
		if tu == nil {
			continue
		}
		id := tu.GetTrip().GetTripId()
		if id == "" {
			continue
		}
		if _, seen := updates[id]; !seen {
			order = append(order, id)
		}
		updates[id] = tu
	}

	schedule := make(Schedule)
	for _, id := range order {
		tu := updates[id]
		if len(tu.GetStopTimeUpdate()) == 0 {
			continue
		}
		desc := tu.GetTrip()
		routeID, startDate := desc.GetRouteId(), desc.GetStartDate()
		if routeID == "" || startDate == "" {
			continue
		}

		trip := Trip{
			TripID:    id,
			RouteID:   routeID,
			StartDate: formatStartDate(startDate),
			StartTime: desc.GetStartTime(),
		}
		for _, stu := range tu.GetStopTimeUpdate() {
			stop := n.stop(stu)
			if stop.ArrivalTime == "" {
				continue
			}
			trip.Stops = append(trip.Stops, stop)
		}

		fd := schedule[routeID]
		fd.Trips = append(fd.Trips, trip)
		schedule[routeID] = fd
	}
	return schedule
}

func (n Normalizer) stop(stu *gtfs.TripUpdate_StopTimeUpdate) Stop {
	s := Stop{StopID: stu.GetStopId()}
	if s.StopID != "" && n.Stops != nil {
		if info, ok := n.Stops.LookupStop(s.StopID); ok {
			s.StopName = info.Name
		}
	}

	arrival := stu.GetArrival().GetTime()
	departure := stu.GetDeparture().GetTime()
	if arrival == 0 || departure == 0 {
		return s
	}

	s.ArrivalTimeRaw = arrival
	s.DepartureTimeRaw = departure
	s.ArrivalTime = n.displayTime(arrival)
	s.DepartureTime = n.displayTime(departure)
	s.FixedDepartureTimeRaw = RepairDeparture(arrival, departure)
	return s
}

func (n Normalizer) displayTime(unix int64) string {
	loc := n.Location
	if loc == nil {
		loc = time.UTC
	}
	return time.Unix(unix, 0).In(loc).Format(DisplayTimeLayout)
}

// formatStartDate rewrites YYYYMMDD as YYYY/MM/DD. Anything else passes through.
func formatStartDate(d string) string {
	if len(d) != 8 {
		return d
	}
	for _, c := range d {
		if c < '0' || c > '9' {
			return d
		}
	}
	return d[0:4] + "/" + d[4:6] + "/" + d[6:8]
}
