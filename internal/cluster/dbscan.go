// Package cluster implements density-based clustering (DBSCAN) over
// geographic points with a great-circle metric. Hub discovery and demand
// hotspot analysis both run on it.
package cluster

import (
	"math"
	"sort"

	"freightflow/internal/geo"
)

// Params tune one DBSCAN run.
type Params struct {
	EpsilonMiles float64 // neighborhood radius
	MinPoints    int     // core-point threshold, including the point itself
}

// DefaultParams mirrors the engine's configuration defaults.
func DefaultParams() Params {
	return Params{EpsilonMiles: 25, MinPoints: 5}
}

// Cluster is one density-connected group of points.
type Cluster struct {
	Points   []geo.Point
	Centroid geo.Point
}

// Size returns the number of member points.
func (c Cluster) Size() int { return len(c.Points) }

// point labels during the scan.
const (
	unvisited = 0
	noise     = -1
)

// DBSCAN clusters points by density. Points with fewer than MinPoints
// neighbors within EpsilonMiles that are not reachable from a core point
// are discarded as noise. With MinPoints = 1 every point is a core point,
// so each location farther than epsilon from all others forms its own
// cluster. Output order is deterministic: clusters sorted by size
// descending, then by centroid latitude/longitude.
func DBSCAN(points []geo.Point, p Params) []Cluster {
	if len(points) == 0 {
		return nil
	}
	if p.MinPoints < 1 {
		p.MinPoints = 1
	}
	if p.EpsilonMiles <= 0 {
		p.EpsilonMiles = DefaultParams().EpsilonMiles
	}

	idx := newGridIndex(points, p.EpsilonMiles)
	labels := make([]int, len(points))
	nextCluster := 0

	for i := range points {
		if labels[i] != unvisited {
			continue
		}

		neighbors := idx.neighbors(i, p.EpsilonMiles)
		if len(neighbors) < p.MinPoints {
			labels[i] = noise
			continue
		}

		// New cluster: flood out from the core point. Noise points reached
		// here become border members.
		nextCluster++
		labels[i] = nextCluster

		queue := append([]int(nil), neighbors...)
		for qi := 0; qi < len(queue); qi++ {
			j := queue[qi]
			if labels[j] == noise {
				labels[j] = nextCluster
			}
			if labels[j] != unvisited {
				continue
			}
			labels[j] = nextCluster

			jn := idx.neighbors(j, p.EpsilonMiles)
			if len(jn) >= p.MinPoints {
				queue = append(queue, jn...)
			}
		}
	}

	if nextCluster == 0 {
		return nil
	}

	clusters := make([]Cluster, nextCluster)
	for i, label := range labels {
		if label > 0 {
			clusters[label-1].Points = append(clusters[label-1].Points, points[i])
		}
	}
	for i := range clusters {
		clusters[i].Centroid = meanPoint(clusters[i].Points)
	}

	sort.Slice(clusters, func(a, b int) bool {
		if len(clusters[a].Points) != len(clusters[b].Points) {
			return len(clusters[a].Points) > len(clusters[b].Points)
		}
		if clusters[a].Centroid.Lat != clusters[b].Centroid.Lat {
			return clusters[a].Centroid.Lat < clusters[b].Centroid.Lat
		}
		return clusters[a].Centroid.Lon < clusters[b].Centroid.Lon
	})
	return clusters
}

// meanPoint is the arithmetic centroid. Clusters are far smaller than a
// hemisphere, so the planar mean is accurate enough here.
func meanPoint(points []geo.Point) geo.Point {
	if len(points) == 0 {
		return geo.Point{}
	}
	var lat, lon float64
	for _, p := range points {
		lat += p.Lat
		lon += p.Lon
	}
	n := float64(len(points))
	return geo.Point{Lat: lat / n, Lon: lon / n}
}

// gridIndex buckets points into epsilon-sized latitude/longitude cells so
// neighbor queries only scan the 3x3 cell block around a point instead of
// the whole set.
type gridIndex struct {
	points  []geo.Point
	cells   map[[2]int][]int
	latStep float64
	lonStep float64
}

func newGridIndex(points []geo.Point, epsilonMiles float64) *gridIndex {
	// One cell spans at least epsilon in both axes at the densest latitude
	// of the input, so every neighbor lives in the adjacent cell block.
	latStep := epsilonMiles / 69.0 // ~69 statute miles per degree latitude
	maxCos := 0.0
	for _, p := range points {
		if c := math.Abs(math.Cos(p.Lat * math.Pi / 180)); c > maxCos {
			maxCos = c
		}
	}
	lonStep := latStep
	if maxCos > 1e-9 {
		lonStep = latStep / maxCos
	}

	g := &gridIndex{
		points:  points,
		cells:   make(map[[2]int][]int),
		latStep: latStep,
		lonStep: lonStep,
	}
	for i, p := range points {
		key := g.cellOf(p)
		g.cells[key] = append(g.cells[key], i)
	}
	return g
}

func (g *gridIndex) cellOf(p geo.Point) [2]int {
	return [2]int{
		int(math.Floor(p.Lat / g.latStep)),
		int(math.Floor(p.Lon / g.lonStep)),
	}
}

// neighbors returns the indexes of every point within epsilon of point i,
// including i itself, sorted ascending for deterministic expansion order.
func (g *gridIndex) neighbors(i int, epsilonMiles float64) []int {
	center := g.points[i]
	cell := g.cellOf(center)

	var out []int
	for dLat := -1; dLat <= 1; dLat++ {
		for dLon := -1; dLon <= 1; dLon++ {
			for _, j := range g.cells[[2]int{cell[0] + dLat, cell[1] + dLon}] {
				if geo.DistanceMiles(center, g.points[j]) <= epsilonMiles {
					out = append(out, j)
				}
			}
		}
	}
	sort.Ints(out)
	return out
}
