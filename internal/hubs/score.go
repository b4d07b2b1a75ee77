package hubs

import (
	"math"

	"freightflow/internal/geo"
	"freightflow/internal/model"
)

// DefaultAmenityWeights is the amenity-weight vector for coverage scoring.
// Weights sum to 1.
var DefaultAmenityWeights = map[model.Amenity]float64{
	model.AmenityParking:     0.20,
	model.AmenityRestrooms:   0.15,
	model.AmenityFood:        0.15,
	model.AmenityFuel:        0.20,
	model.AmenityMaintenance: 0.10,
	model.AmenityShower:      0.10,
	model.AmenityLodging:     0.05,
	model.AmenitySecurity:    0.05,
}

// Component weights for the network-state score. Sum to 1.
const (
	wTraffic    = 0.25
	wRouteMatch = 0.25
	wProximity  = 0.15
	wAmenities  = 0.20
	wEmptyMiles = 0.15
)

// routeMatchRadiusMiles is how close a route must pass to count as served
// by a hub.
const routeMatchRadiusMiles = 10

// trafficSaturation is the point count within the match radius at which
// the traffic component saturates.
const trafficSaturation = 50

// NetworkState is the snapshot a hub is scored against.
type NetworkState struct {
	// Trails are recent per-driver position traces.
	Trails [][]geo.Point
	// OtherHubs are the existing active hubs excluding the scored one.
	OtherHubs []model.SmartHub
	// EmptyMilesReduction is the predicted reduction potential in [0,1].
	EmptyMilesReduction float64
	// AmenityWeights overrides DefaultAmenityWeights when non-nil.
	AmenityWeights map[model.Amenity]float64
}

// Score rates a hub against the network state on [0,100]: traffic density
// nearby, fraction of routes passing within reach, spacing from existing
// hubs (too close is penalized), amenity coverage, and predicted
// empty-miles reduction.
func Score(h model.SmartHub, state NetworkState) float64 {
	weights := state.AmenityWeights
	if weights == nil {
		weights = DefaultAmenityWeights
	}

	pointsNear := 0
	routesNear := 0
	for _, trail := range state.Trails {
		matched := false
		for _, p := range trail {
			if geo.DistanceMiles(h.Location, p) <= routeMatchRadiusMiles {
				pointsNear++
				matched = true
			}
		}
		if matched {
			routesNear++
		}
	}

	traffic := math.Min(1, float64(pointsNear)/trafficSaturation)

	routeMatch := 0.0
	if len(state.Trails) > 0 {
		routeMatch = float64(routesNear) / float64(len(state.Trails))
	}

	// Full marks at DefaultDiscoveryParams' spacing or farther; linear
	// penalty as hubs crowd together. No other hubs means no penalty.
	proximity := 1.0
	if nearest := nearestActiveHubMiles(h.Location, state.OtherHubs); nearest >= 0 {
		proximity = math.Min(1, nearest/DefaultDiscoveryParams().MinHubDistanceMiles)
	}

	amenities := 0.0
	for _, a := range h.Amenities {
		amenities += weights[a]
	}
	amenities = math.Min(1, amenities)

	empty := math.Max(0, math.Min(1, state.EmptyMilesReduction))

	score := 100 * (wTraffic*traffic +
		wRouteMatch*routeMatch +
		wProximity*proximity +
		wAmenities*amenities +
		wEmptyMiles*empty)
	return math.Round(score*10) / 10
}
