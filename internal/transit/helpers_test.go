package transit

import (
	"testing"

	gtfs "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
)

type stopTime struct {
	id                 string
	arrival, departure int64
}

func tripEntity(entityID, tripID, routeID, startDate string, stops ...stopTime) *gtfs.FeedEntity {
	tu := &gtfs.TripUpdate{
		Trip: &gtfs.TripDescriptor{
			TripId:    proto.String(tripID),
			StartTime: proto.String("08:00:00"),
		},
	}
	if routeID != "" {
		tu.Trip.RouteId = proto.String(routeID)
	}
	if startDate != "" {
		tu.Trip.StartDate = proto.String(startDate)
	}
	for _, st := range stops {
		stu := &gtfs.TripUpdate_StopTimeUpdate{}
		if st.id != "" {
			stu.StopId = proto.String(st.id)
		}
		if st.arrival != 0 {
			stu.Arrival = &gtfs.TripUpdate_StopTimeEvent{Time: proto.Int64(st.arrival)}
		}
		if st.departure != 0 {
			stu.Departure = &gtfs.TripUpdate_StopTimeEvent{Time: proto.Int64(st.departure)}
		}
		tu.StopTimeUpdate = append(tu.StopTimeUpdate, stu)
	}
	return &gtfs.FeedEntity{Id: proto.String(entityID), TripUpdate: tu}
}

func feedBytes(t *testing.T, entities ...*gtfs.FeedEntity) []byte {
	t.Helper()
	msg := &gtfs.FeedMessage{
		Header: &gtfs.FeedHeader{
			GtfsRealtimeVersion: proto.String("2.0"),
			Timestamp:           proto.Uint64(1700000000),
		},
		Entity: entities,
	}
	data, err := proto.Marshal(msg)
	require.NoError(t, err)
	return data
}

// stop builds a normalized stop with a repaired departure when needed.
func stop(id string, arrival, departure int64) Stop {
	return Stop{
		StopID:                id,
		ArrivalTime:           "x",
		ArrivalTimeRaw:        arrival,
		DepartureTime:         "x",
		DepartureTimeRaw:      departure,
		FixedDepartureTimeRaw: RepairDeparture(arrival, departure),
	}
}

func trip(id, route string, stops ...Stop) Trip {
	return Trip{TripID: id, RouteID: route, StartDate: "2024/01/02", Stops: stops}
}
