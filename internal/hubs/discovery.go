package hubs

import (
	"math"
	"sort"

	"freightflow/internal/cluster"
	"freightflow/internal/geo"
	"freightflow/internal/model"
)

// DiscoveryParams tune one potential-hub discovery pass.
type DiscoveryParams struct {
	EpsilonMiles        float64
	MinPoints           int
	MinHubDistanceMiles float64 // exclusion radius around existing hubs
	MaxResults          int
}

// DefaultDiscoveryParams mirrors the engine's configuration defaults.
func DefaultDiscoveryParams() DiscoveryParams {
	return DiscoveryParams{
		EpsilonMiles:        25,
		MinPoints:           5,
		MinHubDistanceMiles: 50,
		MaxResults:          10,
	}
}

// densityRadiusMiles is the radius whose bounding box derives cluster
// density (points per square mile).
const densityRadiusMiles = 10

// DiscoverCandidates clusters historical route points and returns scored
// candidate hub sites, densest first. Centroids within the exclusion
// radius of an existing active hub are dropped.
func DiscoverCandidates(points []geo.Point, existing []model.SmartHub, p DiscoveryParams) []model.HubRecommendation {
	if p.MaxResults <= 0 {
		p.MaxResults = DefaultDiscoveryParams().MaxResults
	}

	clusters := cluster.DBSCAN(points, cluster.Params{
		EpsilonMiles: p.EpsilonMiles,
		MinPoints:    p.MinPoints,
	})
	if len(clusters) == 0 {
		return nil
	}

	recs := make([]model.HubRecommendation, 0, len(clusters))
	for _, c := range clusters {
		nearest := nearestActiveHubMiles(c.Centroid, existing)
		if nearest >= 0 && nearest < p.MinHubDistanceMiles {
			continue
		}

		density := float64(c.Size()) / boundingBoxAreaSqMi(c.Centroid, densityRadiusMiles)
		rec := model.HubRecommendation{
			Location:    c.Centroid,
			Density:     density,
			ClusterSize: c.Size(),
			Score:       density*50 + float64(c.Size())/10,
		}
		if nearest >= 0 {
			rec.NearestHubMi = math.Round(nearest*10) / 10
		}
		recs = append(recs, rec)
	}

	sort.Slice(recs, func(i, j int) bool {
		if recs[i].Score != recs[j].Score {
			return recs[i].Score > recs[j].Score
		}
		if recs[i].ClusterSize != recs[j].ClusterSize {
			return recs[i].ClusterSize > recs[j].ClusterSize
		}
		return recs[i].Location.Lat < recs[j].Location.Lat
	})

	if len(recs) > p.MaxResults {
		recs = recs[:p.MaxResults]
	}
	return recs
}

// nearestActiveHubMiles returns the distance to the closest active hub, or
// -1 when there are none.
func nearestActiveHubMiles(p geo.Point, hubs []model.SmartHub) float64 {
	nearest := -1.0
	for _, h := range hubs {
		if !h.Active {
			continue
		}
		d := geo.DistanceMiles(p, h.Location)
		if nearest < 0 || d < nearest {
			nearest = d
		}
	}
	return nearest
}

// boundingBoxAreaSqMi is the area of the axis-aligned box enclosing a
// circle of the given radius around center.
func boundingBoxAreaSqMi(center geo.Point, radiusMi float64) float64 {
	box := geo.BoundingBox(center, radiusMi*1.609344)
	heightMi := geo.DistanceMiles(
		geo.Point{Lat: box.MinLat, Lon: center.Lon},
		geo.Point{Lat: box.MaxLat, Lon: center.Lon},
	)
	widthMi := geo.DistanceMiles(
		geo.Point{Lat: center.Lat, Lon: box.MinLon},
		geo.Point{Lat: center.Lat, Lon: box.MaxLon},
	)
	area := heightMi * widthMi
	if area < 1 {
		area = 1
	}
	return area
}
