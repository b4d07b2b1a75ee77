package geo

import (
	"math"
	"testing"
)

var (
	chicago      = Point{Lat: 41.8781, Lon: -87.6298}
	indianapolis = Point{Lat: 39.7684, Lon: -86.1581}
	losAngeles   = Point{Lat: 34.0522, Lon: -118.2437}
)

func TestDistance_KnownPairs(t *testing.T) {
	tests := []struct {
		name     string
		p1, p2   Point
		unit     Unit
		expected float64
		tol      float64
	}{
		{"chicago to indianapolis miles", chicago, indianapolis, Miles, 165.0, 5.0},
		{"chicago to los angeles miles", chicago, losAngeles, Miles, 1745.0, 15.0},
		{"chicago to indianapolis km", chicago, indianapolis, Kilometers, 265.5, 8.0},
		{"same point", chicago, chicago, Miles, 0.0, 1e-9},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Distance(tt.p1, tt.p2, tt.unit)
			if math.Abs(got-tt.expected) > tt.tol {
				t.Errorf("Distance() = %v, want %v +/- %v", got, tt.expected, tt.tol)
			}
		})
	}
}

func TestDistance_Symmetry(t *testing.T) {
	pairs := [][2]Point{
		{chicago, indianapolis},
		{chicago, losAngeles},
		{{Lat: -33.86, Lon: 151.21}, {Lat: 51.5, Lon: -0.12}},
	}
	for _, pair := range pairs {
		ab := Distance(pair[0], pair[1], Kilometers)
		ba := Distance(pair[1], pair[0], Kilometers)
		if ab != ba {
			t.Errorf("Expected symmetric distance, got %v vs %v", ab, ba)
		}
	}
}

func TestDistanceMeters(t *testing.T) {
	// ~1.11 km per 0.01 degree of latitude.
	a := Point{Lat: 34.05, Lon: -118.24}
	b := Point{Lat: 34.06, Lon: -118.24}
	got := DistanceMeters(a, b)
	if math.Abs(got-1112) > 10 {
		t.Errorf("DistanceMeters() = %v, want ~1112", got)
	}
}

func TestBearing(t *testing.T) {
	tests := []struct {
		name     string
		p1, p2   Point
		expected float64
		tol      float64
	}{
		{"due north", Point{Lat: 40, Lon: -100}, Point{Lat: 41, Lon: -100}, 0, 0.01},
		{"due east at equator", Point{Lat: 0, Lon: 0}, Point{Lat: 0, Lon: 1}, 90, 0.01},
		{"due south", Point{Lat: 41, Lon: -100}, Point{Lat: 40, Lon: -100}, 180, 0.01},
		{"due west at equator", Point{Lat: 0, Lon: 1}, Point{Lat: 0, Lon: 0}, 270, 0.01},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Bearing(tt.p1, tt.p2)
			if math.Abs(got-tt.expected) > tt.tol {
				t.Errorf("Bearing() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestBearing_Range(t *testing.T) {
	points := []Point{chicago, indianapolis, losAngeles, {Lat: -10, Lon: 170}}
	for _, a := range points {
		for _, b := range points {
			if a == b {
				continue
			}
			got := Bearing(a, b)
			if got < 0 || got >= 360 {
				t.Errorf("Bearing(%v, %v) = %v, want [0, 360)", a, b, got)
			}
		}
	}
}

func TestMidpoint(t *testing.T) {
	mid := Midpoint(Point{Lat: 0, Lon: 0}, Point{Lat: 0, Lon: 10})
	if math.Abs(mid.Lat) > 1e-9 || math.Abs(mid.Lon-5) > 1e-9 {
		t.Errorf("Midpoint() = %v, want {0 5}", mid)
	}

	// Midpoint must be equidistant from both ends.
	m := Midpoint(chicago, losAngeles)
	d1 := Distance(chicago, m, Kilometers)
	d2 := Distance(m, losAngeles, Kilometers)
	if math.Abs(d1-d2) > 0.5 {
		t.Errorf("Expected equidistant midpoint, got %v vs %v", d1, d2)
	}
}

func TestDestination_RoundTrip(t *testing.T) {
	// distance(A, destination(A, bearing, d)) must be within 0.1% of d
	// for distances up to 500 km.
	tests := []struct {
		name    string
		start   Point
		bearing float64
		dist    float64
	}{
		{"short hop north", chicago, 0, 10},
		{"east 120km", chicago, 90, 120},
		{"southwest 350km", chicago, 225, 350},
		{"max contract distance", chicago, 135, 500},
		{"southern hemisphere", Point{Lat: -25.3, Lon: 133.8}, 300, 420},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dest := Destination(tt.start, tt.bearing, tt.dist, Kilometers)
			got := Distance(tt.start, dest, Kilometers)
			if math.Abs(got-tt.dist)/tt.dist > 0.001 {
				t.Errorf("round trip distance = %v, want %v within 0.1%%", got, tt.dist)
			}
		})
	}
}

func TestBoundingBox(t *testing.T) {
	box := BoundingBox(chicago, 50)

	if !box.Contains(chicago) {
		t.Error("Expected box to contain its center")
	}

	// Points just inside the radius must be inside the box.
	for _, bearing := range []float64{0, 90, 180, 270} {
		p := Destination(chicago, bearing, 49, Kilometers)
		if !box.Contains(p) {
			t.Errorf("Expected box to contain point at bearing %v within radius", bearing)
		}
	}

	// A point well outside must be excluded.
	if box.Contains(losAngeles) {
		t.Error("Expected box to exclude Los Angeles")
	}
}

func TestCirclePolygon(t *testing.T) {
	ring := CirclePolygon(chicago, 30, 24)
	if len(ring) != 24 {
		t.Fatalf("Expected 24 vertices, got %d", len(ring))
	}
	for i, v := range ring {
		d := Distance(chicago, v, Kilometers)
		if math.Abs(d-30) > 0.1 {
			t.Errorf("vertex %d at distance %v, want 30", i, d)
		}
	}
}

func TestPointToSegmentDistance(t *testing.T) {
	a := Point{Lat: 40, Lon: -100}
	b := Point{Lat: 40, Lon: -98}

	tests := []struct {
		name     string
		p        Point
		expected float64
		tol      float64
	}{
		{"on segment", Point{Lat: 40, Lon: -99}, 0, 0.5},
		{"north of midpoint", Point{Lat: 41, Lon: -99}, Distance(Point{Lat: 41, Lon: -99}, Point{Lat: 40, Lon: -99}, Kilometers), 1.0},
		{"beyond end clamps to endpoint", Point{Lat: 40, Lon: -96}, Distance(Point{Lat: 40, Lon: -96}, b, Kilometers), 1.0},
		{"before start clamps to start", Point{Lat: 40, Lon: -102}, Distance(Point{Lat: 40, Lon: -102}, a, Kilometers), 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PointToSegmentDistance(tt.p, a, b, Kilometers)
			if math.Abs(got-tt.expected) > tt.tol {
				t.Errorf("PointToSegmentDistance() = %v, want %v +/- %v", got, tt.expected, tt.tol)
			}
		})
	}
}

func TestPointToSegmentDistance_DegenerateSegment(t *testing.T) {
	a := Point{Lat: 40, Lon: -100}
	p := Point{Lat: 41, Lon: -100}
	got := PointToSegmentDistance(p, a, a, Kilometers)
	want := Distance(p, a, Kilometers)
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("Expected distance to the single vertex %v, got %v", want, got)
	}
}
