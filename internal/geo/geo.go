// Package geo provides the great-circle primitives the optimization
// components are built on. All functions take latitude/longitude in
// degrees, are deterministic, and allocate nothing beyond their results.
package geo

import (
	"math"
)

// Unit selects the distance unit for functions that return lengths.
type Unit string

const (
	Kilometers Unit = "km"
	Miles      Unit = "mi"
)

// WGS-84 mean Earth radius per unit.
const (
	EarthRadiusKm = 6371.0
	EarthRadiusMi = 3958.8
)

// Point is a geographic coordinate in degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Box is an axis-aligned latitude/longitude bounding box.
type Box struct {
	MinLat float64 `json:"min_lat"`
	MinLon float64 `json:"min_lon"`
	MaxLat float64 `json:"max_lat"`
	MaxLon float64 `json:"max_lon"`
}

// Contains reports whether p falls inside the box (closed bounds).
func (b Box) Contains(p Point) bool {
	return p.Lat >= b.MinLat && p.Lat <= b.MaxLat &&
		p.Lon >= b.MinLon && p.Lon <= b.MaxLon
}

// Pad grows the box by the given number of degrees on every side.
func (b Box) Pad(degrees float64) Box {
	return Box{
		MinLat: b.MinLat - degrees,
		MinLon: b.MinLon - degrees,
		MaxLat: b.MaxLat + degrees,
		MaxLon: b.MaxLon + degrees,
	}
}

func radius(unit Unit) float64 {
	if unit == Miles {
		return EarthRadiusMi
	}
	return EarthRadiusKm
}

func toRadians(deg float64) float64 { return deg * math.Pi / 180 }
func toDegrees(rad float64) float64 { return rad * 180 / math.Pi }

// Distance returns the haversine great-circle distance between two points.
func Distance(p1, p2 Point, unit Unit) float64 {
	lat1 := toRadians(p1.Lat)
	lat2 := toRadians(p2.Lat)
	dLat := toRadians(p2.Lat - p1.Lat)
	dLon := toRadians(p2.Lon - p1.Lon)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return radius(unit) * c
}

// DistanceMiles is shorthand for Distance in miles.
func DistanceMiles(p1, p2 Point) float64 { return Distance(p1, p2, Miles) }

// DistanceKm is shorthand for Distance in kilometers.
func DistanceKm(p1, p2 Point) float64 { return Distance(p1, p2, Kilometers) }

// DistanceMeters is shorthand for Distance in meters.
func DistanceMeters(p1, p2 Point) float64 { return Distance(p1, p2, Kilometers) * 1000 }

// Bearing returns the initial forward azimuth from p1 to p2, normalized
// to [0, 360).
func Bearing(p1, p2 Point) float64 {
	lat1 := toRadians(p1.Lat)
	lat2 := toRadians(p2.Lat)
	dLon := toRadians(p2.Lon - p1.Lon)

	y := math.Sin(dLon) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLon)

	deg := toDegrees(math.Atan2(y, x))
	return math.Mod(deg+360, 360)
}

// Midpoint returns the geographic midpoint of the great-circle arc p1→p2.
func Midpoint(p1, p2 Point) Point {
	lat1 := toRadians(p1.Lat)
	lat2 := toRadians(p2.Lat)
	lon1 := toRadians(p1.Lon)
	dLon := toRadians(p2.Lon - p1.Lon)

	bx := math.Cos(lat2) * math.Cos(dLon)
	by := math.Cos(lat2) * math.Sin(dLon)

	lat := math.Atan2(math.Sin(lat1)+math.Sin(lat2),
		math.Sqrt((math.Cos(lat1)+bx)*(math.Cos(lat1)+bx)+by*by))
	lon := lon1 + math.Atan2(by, math.Cos(lat1)+bx)

	return Point{Lat: toDegrees(lat), Lon: normalizeLon(toDegrees(lon))}
}

// Destination returns the point reached by travelling the given distance
// from start along the given initial bearing.
func Destination(start Point, bearingDeg, distance float64, unit Unit) Point {
	delta := distance / radius(unit)
	theta := toRadians(bearingDeg)
	lat1 := toRadians(start.Lat)
	lon1 := toRadians(start.Lon)

	lat2 := math.Asin(math.Sin(lat1)*math.Cos(delta) +
		math.Cos(lat1)*math.Sin(delta)*math.Cos(theta))
	lon2 := lon1 + math.Atan2(math.Sin(theta)*math.Sin(delta)*math.Cos(lat1),
		math.Cos(delta)-math.Sin(lat1)*math.Sin(lat2))

	return Point{Lat: toDegrees(lat2), Lon: normalizeLon(toDegrees(lon2))}
}

// BoundingBox returns the box that encloses a circle of the given radius
// around center. The longitude delta widens with latitude; at the poles it
// degenerates to the full circle.
func BoundingBox(center Point, radiusKm float64) Box {
	latDelta := radiusKm / EarthRadiusKm * 180 / math.Pi

	cosLat := math.Cos(toRadians(center.Lat))
	lonDelta := 180.0
	if cosLat > 1e-9 {
		lonDelta = latDelta / cosLat
	}

	return Box{
		MinLat: center.Lat - latDelta,
		MinLon: center.Lon - lonDelta,
		MaxLat: center.Lat + latDelta,
		MaxLon: center.Lon + lonDelta,
	}
}

// CirclePolygon approximates a circle of the given radius as a closed ring
// of n vertices sampled at uniform bearings.
func CirclePolygon(center Point, radiusKm float64, n int) []Point {
	if n < 3 {
		n = 3
	}
	ring := make([]Point, 0, n)
	for i := 0; i < n; i++ {
		bearing := float64(i) * 360.0 / float64(n)
		ring = append(ring, Destination(center, bearing, radiusKm, Kilometers))
	}
	return ring
}

// PointToSegmentDistance returns the great-circle distance from p to the
// nearest point of segment a→b. The projection runs in a local tangent
// plane around a, which keeps the error negligible at segment lengths the
// planner works with.
func PointToSegmentDistance(p, a, b Point, unit Unit) float64 {
	cosLat := math.Cos(toRadians(a.Lat))

	// Planar coordinates in degree units, longitude scaled by cos(lat).
	ax, ay := 0.0, 0.0
	bx := (b.Lon - a.Lon) * cosLat
	by := b.Lat - a.Lat
	px := (p.Lon - a.Lon) * cosLat
	py := p.Lat - a.Lat

	segLenSq := (bx-ax)*(bx-ax) + (by-ay)*(by-ay)
	t := 0.0
	if segLenSq > 0 {
		t = ((px-ax)*(bx-ax) + (py-ay)*(by-ay)) / segLenSq
		t = math.Max(0, math.Min(1, t))
	}

	foot := Point{
		Lat: a.Lat + t*(b.Lat-a.Lat),
		Lon: a.Lon + t*(b.Lon-a.Lon),
	}
	return Distance(p, foot, unit)
}

// normalizeLon wraps a longitude into [-180, 180).
func normalizeLon(lon float64) float64 {
	for lon >= 180 {
		lon -= 360
	}
	for lon < -180 {
		lon += 360
	}
	return lon
}
