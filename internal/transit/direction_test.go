package transit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var canonical = []StopRef{{ID: "S1N"}, {ID: "S2N"}, {ID: "S3N"}}

func statusBetween(last, next string) TripStatus {
	l := stop(last, 0, 0)
	if next == "" {
		return EnRouteStatus("t", l, nil, 0)
	}
	n := stop(next, 0, 0)
	return EnRouteStatus("t", l, &n, 0)
}

func TestResolveDirection(t *testing.T) {
	tests := []struct {
		name       string
		last, next string
		want       Direction
	}{
		{"forward along list", "S1N", "S3N", Down},
		{"backward along list", "S3N", "S1N", Up},
		{"adjacent forward", "S2N", "S3N", Down},
		{"opposite suffix still matches base", "S3S", "S2S", Up},
		{"last unresolvable", "X9N", "S3N", NoDirection},
		{"next unresolvable", "S1N", "X9N", NoDirection},
		{"same station", "S2N", "S2S", NoDirection},
		{"no next stop", "S1N", "", NoDirection},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolveDirection(statusBetween(tt.last, tt.next), canonical)
			if got != tt.want {
				t.Errorf("ResolveDirection(%s -> %s) = %v, want %v", tt.last, tt.next, got, tt.want)
			}
		})
	}
}

func TestResolveDirection_MissingStops(t *testing.T) {
	assert.Equal(t, NoDirection, ResolveDirection(OutOfServiceStatus("t"), canonical))

	noID := statusBetween("S1N", "S3N")
	noID.LastSeen.StopID = ""
	assert.Equal(t, NoDirection, ResolveDirection(noID, canonical))
}

func TestResolveDirection_FirstMatchWins(t *testing.T) {
	loop := []StopRef{{ID: "S1N"}, {ID: "S2N"}, {ID: "S1S"}}
	// S1 resolves to index 0, so a trip from S2 toward S1 is going up
	assert.Equal(t, Up, ResolveDirection(statusBetween("S2N", "S1S"), loop))
}

func TestResolveDirection_EmptyCanonical(t *testing.T) {
	assert.Equal(t, NoDirection, ResolveDirection(statusBetween("S1N", "S2N"), nil))
}

func TestBuildBoard(t *testing.T) {
	s1, s2, s3 := stop("S1N", 0, 0), stop("S2N", 0, 0), stop("S3N", 0, 0)
	statuses := []TripStatus{
		EnRouteStatus("down", s1, &s2, 0),
		EnRouteStatus("up", s3, &s2, 0),
		AtStationStatus("here", s2, nil),
		IdlingStatus("idle", s3, nil, 0),
	}

	b := BuildBoard(StopRef{ID: "S2N"}, statuses, canonical)
	require.Len(t, b.Down, 1)
	require.Len(t, b.Up, 1)
	require.Len(t, b.None, 1)
	assert.Equal(t, "down", b.Down[0].TripID)
	assert.Equal(t, Down, b.Down[0].Direction)
	assert.Equal(t, "up", b.Up[0].TripID)
	assert.Equal(t, Up, b.Up[0].Direction)
	assert.Equal(t, "here", b.None[0].TripID)
	assert.Equal(t, 3, b.Len())

	// inputs keep their original direction
	assert.Equal(t, NoDirection, statuses[0].Direction)
}

func TestDirectionText(t *testing.T) {
	for _, d := range []Direction{Up, Down, NoDirection} {
		b, err := d.MarshalText()
		require.NoError(t, err)
		var got Direction
		require.NoError(t, got.UnmarshalText(b))
		assert.Equal(t, d, got)
	}
}
