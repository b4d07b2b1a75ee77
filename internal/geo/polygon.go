package geo

import (
	"math"
)

// PointInPolygon reports whether p lies inside the polygon by ray casting.
// The ring is open (the first vertex is not repeated); an odd number of
// edge crossings means inside. Points on south/west edges count as inside,
// which keeps adjacent regions non-overlapping.
func PointInPolygon(p Point, polygon []Point) bool {
	if len(polygon) < 3 {
		return false
	}

	inside := false
	j := len(polygon) - 1
	for i := 0; i < len(polygon); i++ {
		vi, vj := polygon[i], polygon[j]
		if (vi.Lat > p.Lat) != (vj.Lat > p.Lat) {
			crossLon := (vj.Lon-vi.Lon)*(p.Lat-vi.Lat)/(vj.Lat-vi.Lat) + vi.Lon
			if p.Lon < crossLon {
				inside = !inside
			}
		}
		j = i
	}
	return inside
}

// PolygonArea returns the geodesic area of the polygon in square units of
// the requested unit, using the spherical excess approximation. The ring
// is open and may wind in either direction; the result is non-negative.
func PolygonArea(polygon []Point, unit Unit) float64 {
	if len(polygon) < 3 {
		return 0
	}

	r := radius(unit)
	sum := 0.0
	j := len(polygon) - 1
	for i := 0; i < len(polygon); i++ {
		vi, vj := polygon[i], polygon[j]
		sum += toRadians(vi.Lon-vj.Lon) *
			(2 + math.Sin(toRadians(vi.Lat)) + math.Sin(toRadians(vj.Lat)))
		j = i
	}
	return math.Abs(sum * r * r / 2)
}

// Centroid returns the area-weighted centroid of the polygon. Degenerate
// rings (fewer than three vertices, or zero area) fall back to the vertex
// mean.
func Centroid(polygon []Point) Point {
	if len(polygon) == 0 {
		return Point{}
	}
	if len(polygon) < 3 {
		return vertexMean(polygon)
	}

	var areaSum, latSum, lonSum float64
	j := len(polygon) - 1
	for i := 0; i < len(polygon); i++ {
		vi, vj := polygon[i], polygon[j]
		cross := vj.Lon*vi.Lat - vi.Lon*vj.Lat
		areaSum += cross
		lonSum += (vj.Lon + vi.Lon) * cross
		latSum += (vj.Lat + vi.Lat) * cross
		j = i
	}

	if math.Abs(areaSum) < 1e-12 {
		return vertexMean(polygon)
	}
	return Point{
		Lat: latSum / (3 * areaSum),
		Lon: lonSum / (3 * areaSum),
	}
}

func vertexMean(points []Point) Point {
	var lat, lon float64
	for _, p := range points {
		lat += p.Lat
		lon += p.Lon
	}
	n := float64(len(points))
	return Point{Lat: lat / n, Lon: lon / n}
}

// Simplify reduces a polyline with Douglas-Peucker: vertices closer than
// toleranceKm to the chord between the retained endpoints are dropped.
// Endpoints are always kept.
func Simplify(line []Point, toleranceKm float64) []Point {
	if len(line) <= 2 {
		return line
	}

	// Find the vertex farthest from the chord.
	maxDist := 0.0
	maxIdx := 0
	first, last := line[0], line[len(line)-1]
	for i := 1; i < len(line)-1; i++ {
		d := PointToSegmentDistance(line[i], first, last, Kilometers)
		if d > maxDist {
			maxDist = d
			maxIdx = i
		}
	}

	if maxDist <= toleranceKm {
		return []Point{first, last}
	}

	left := Simplify(line[:maxIdx+1], toleranceKm)
	right := Simplify(line[maxIdx:], toleranceKm)
	return append(left[:len(left)-1], right...)
}
