package geo

import (
	"math"
	"testing"
)

// Times Sq-42 St and Grand Central-42 St platforms.
const (
	timesSqLat, timesSqLon   = 40.75529, -73.987495
	grandCenLat, grandCenLon = 40.751776, -73.976848
)

func TestHaversine_KnownDistances(t *testing.T) {
	tests := []struct {
		name                   string
		lat1, lon1, lat2, lon2 float64
		wantMeters             float64
		tolerance              float64 // allowed error in meters
	}{
		{
			name: "Times Sq to Grand Central (~970 m)",
			lat1: timesSqLat, lon1: timesSqLon,
			lat2: grandCenLat, lon2: grandCenLon,
			wantMeters: 970,
			tolerance:  30,
		},
		{
			name: "same point returns zero",
			lat1: timesSqLat, lon1: timesSqLon,
			lat2: timesSqLat, lon2: timesSqLon,
			wantMeters: 0,
			tolerance:  0.001,
		},
		{
			name: "Inwood-207 St to Far Rockaway (~32 km)",
			lat1: 40.868072, lon1: -73.919899,
			lat2: 40.603995, lon2: -73.755405,
			wantMeters: 32_500,
			tolerance:  500,
		},
		{
			name: "north pole to south pole",
			lat1: 90, lon1: 0,
			lat2: -90, lon2: 0,
			wantMeters: math.Pi * earthRadiusMeters,
			tolerance:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Haversine(tt.lat1, tt.lon1, tt.lat2, tt.lon2)
			if math.Abs(got-tt.wantMeters) > tt.tolerance {
				t.Errorf("Haversine() = %.1f m, want %.1f m (±%.0f)", got, tt.wantMeters, tt.tolerance)
			}
		})
	}
}

func TestHaversine_Symmetry(t *testing.T) {
	a := Haversine(timesSqLat, timesSqLon, grandCenLat, grandCenLon)
	b := Haversine(grandCenLat, grandCenLon, timesSqLat, timesSqLon)
	if a != b {
		t.Errorf("Haversine not symmetric: %f != %f", a, b)
	}
}

func TestManhattanDistance_ExceedsHaversine(t *testing.T) {
	m := ManhattanDistance(timesSqLat, timesSqLon, grandCenLat, grandCenLon)
	h := Haversine(timesSqLat, timesSqLon, grandCenLat, grandCenLon)
	if m <= h {
		t.Errorf("ManhattanDistance() = %.1f should be > Haversine() = %.1f", m, h)
	}
	if m > h*math.Sqrt2+1 {
		t.Errorf("ManhattanDistance() = %.1f exceeds sqrt(2) * Haversine() = %.1f", m, h*math.Sqrt2)
	}
}

func TestBoundingBoxRadius(t *testing.T) {
	// At the equator, 1 degree lat ≈ 111km and 1 degree lon ≈ 111km
	latDeg, lonDeg := BoundingBoxRadius(0, 111_000)
	if math.Abs(latDeg-1.0) > 0.01 || math.Abs(lonDeg-1.0) > 0.01 {
		t.Errorf("BoundingBoxRadius(0, 111km) = %f, %f, want ~1.0, ~1.0", latDeg, lonDeg)
	}

	// New York sits near 40.7°N, so a degree of longitude is shorter
	latNY, lonNY := BoundingBoxRadius(40.7, 1000)
	ratio := lonNY / latNY
	want := 1 / math.Cos(40.7*math.Pi/180)
	if math.Abs(ratio-want) > 0.001 {
		t.Errorf("lonDeg/latDeg ratio at 40.7° = %f, want %f", ratio, want)
	}
}

func TestWalkingMinutes(t *testing.T) {
	tests := []struct {
		meters float64
		want   int
	}{
		{0, 0},
		{-5, 0},
		{60, 1},
		{800, 13},
	}
	for _, tt := range tests {
		if got := WalkingMinutes(tt.meters); got != tt.want {
			t.Errorf("WalkingMinutes(%.0f) = %d, want %d", tt.meters, got, tt.want)
		}
	}
}

func TestMetersToMiles(t *testing.T) {
	if got := MetersToMiles(1609.344); math.Abs(got-1) > 0.0001 {
		t.Errorf("MetersToMiles(1609.344) = %f, want 1", got)
	}
}
