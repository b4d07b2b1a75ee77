package hubs

import (
	"math/rand"
	"testing"

	"freightflow/internal/geo"
	"freightflow/internal/model"
)

// scatterAround produces n points uniformly within radiusMi of center.
func scatterAround(rng *rand.Rand, center geo.Point, n int, radiusMi float64) []geo.Point {
	points := make([]geo.Point, 0, n)
	for i := 0; i < n; i++ {
		bearing := rng.Float64() * 360
		dist := rng.Float64() * radiusMi
		points = append(points, geo.Destination(center, bearing, dist, geo.Miles))
	}
	return points
}

func TestDiscoverCandidates_ThreeDenseRegions(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	chicago := geo.Point{Lat: 41.8781, Lon: -87.6298}
	dallas := geo.Point{Lat: 32.7767, Lon: -96.7970}
	atlanta := geo.Point{Lat: 33.7490, Lon: -84.3880}

	// 1. Build 1000 route points: 500 near Chicago in a tight 8mi spread,
	// 300 near Dallas in 12mi, 200 near Atlanta in 15mi, plus 50 outliers
	// scattered across the continent.
	var points []geo.Point
	points = append(points, scatterAround(rng, chicago, 500, 8)...)
	points = append(points, scatterAround(rng, dallas, 300, 12)...)
	points = append(points, scatterAround(rng, atlanta, 200, 15)...)
	points = append(points, scatterAround(rng, geo.Point{Lat: 39.0, Lon: -105.0}, 50, 900)...)

	// 2. Discover with the default epsilon and minimum cluster size.
	recs := DiscoverCandidates(points, nil, DiscoveryParams{
		EpsilonMiles:        25,
		MinPoints:           5,
		MinHubDistanceMiles: 50,
		MaxResults:          10,
	})

	// 3. The three dense regions must surface as the top candidates.
	if len(recs) < 3 {
		t.Fatalf("Expected at least 3 candidates, got %d", len(recs))
	}
	top := recs[:3]

	centers := []geo.Point{chicago, dallas, atlanta}
	for _, want := range centers {
		found := false
		for _, rec := range top {
			if geo.DistanceMiles(rec.Location, want) < 20 {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("Expected a candidate near (%.2f, %.2f), top candidates: %+v", want.Lat, want.Lon, top)
		}
	}

	// 4. Ranking is score descending; the tightest biggest cluster wins.
	for i := 1; i < len(recs); i++ {
		if recs[i].Score > recs[i-1].Score {
			t.Errorf("Candidates not sorted by score: %.2f after %.2f", recs[i].Score, recs[i-1].Score)
		}
	}
	if geo.DistanceMiles(top[0].Location, chicago) > 20 {
		t.Errorf("Expected the Chicago cluster (500 points, 8mi spread) to rank first, got %+v", top[0])
	}

	for _, rec := range top {
		if rec.Density <= 0 {
			t.Errorf("Expected positive density, got %f", rec.Density)
		}
		if rec.ClusterSize < 5 {
			t.Errorf("Expected cluster size >= minPts, got %d", rec.ClusterSize)
		}
	}
}

func TestDiscoverCandidates_ExclusionRadius(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	center := geo.Point{Lat: 41.8781, Lon: -87.6298}
	points := scatterAround(rng, center, 100, 5)

	existing := []model.SmartHub{{
		ID:       "hub-1",
		Location: geo.Destination(center, 45, 10, geo.Miles),
		Active:   true,
	}}

	// A cluster 10mi from an active hub is inside the 50mi exclusion.
	recs := DiscoverCandidates(points, existing, DiscoveryParams{
		EpsilonMiles:        25,
		MinPoints:           5,
		MinHubDistanceMiles: 50,
		MaxResults:          10,
	})
	if len(recs) != 0 {
		t.Errorf("Expected cluster near existing hub to be excluded, got %d candidates", len(recs))
	}

	// An inactive hub does not exclude anything.
	existing[0].Active = false
	recs = DiscoverCandidates(points, existing, DiscoveryParams{
		EpsilonMiles:        25,
		MinPoints:           5,
		MinHubDistanceMiles: 50,
		MaxResults:          10,
	})
	if len(recs) != 1 {
		t.Fatalf("Expected 1 candidate when the nearby hub is inactive, got %d", len(recs))
	}
	if recs[0].NearestHubMi != 0 {
		t.Errorf("Expected NearestHubMi unset with no active hubs, got %f", recs[0].NearestHubMi)
	}
}

func TestDiscoverCandidates_MaxResults(t *testing.T) {
	rng := rand.New(rand.NewSource(11))

	// Five well separated clusters.
	var points []geo.Point
	for i := 0; i < 5; i++ {
		c := geo.Point{Lat: 35 + float64(i)*3, Lon: -100 + float64(i)*4}
		points = append(points, scatterAround(rng, c, 50, 5)...)
	}

	recs := DiscoverCandidates(points, nil, DiscoveryParams{
		EpsilonMiles:        25,
		MinPoints:           5,
		MinHubDistanceMiles: 50,
		MaxResults:          2,
	})
	if len(recs) != 2 {
		t.Errorf("Expected MaxResults to cap output at 2, got %d", len(recs))
	}
}

func TestDiscoverCandidates_NoPoints(t *testing.T) {
	recs := DiscoverCandidates(nil, nil, DefaultDiscoveryParams())
	if recs != nil {
		t.Errorf("Expected nil for empty input, got %+v", recs)
	}
}
