package hubs

import (
	"testing"

	"freightflow/internal/geo"
	"freightflow/internal/model"
)

func TestScore_Bounds(t *testing.T) {
	loc := geo.Point{Lat: 40.0, Lon: -88.0}

	// Saturated state: heavy nearby traffic, every route matched, no
	// crowding, full amenities, maximum predicted reduction.
	var trails [][]geo.Point
	for i := 0; i < 10; i++ {
		var trail []geo.Point
		for j := 0; j < 10; j++ {
			trail = append(trail, geo.Destination(loc, float64(j*36), 2, geo.Miles))
		}
		trails = append(trails, trail)
	}
	full := model.SmartHub{
		Location: loc,
		Capacity: 50,
		Amenities: []model.Amenity{
			model.AmenityParking, model.AmenityRestrooms, model.AmenityFood,
			model.AmenityFuel, model.AmenityMaintenance, model.AmenityShower,
			model.AmenityLodging, model.AmenitySecurity,
		},
		Active: true,
	}
	high := Score(full, NetworkState{Trails: trails, EmptyMilesReduction: 1})
	if high < 99.9 || high > 100 {
		t.Errorf("Expected saturated state to score 100, got %f", high)
	}

	// Empty state scores only the no-crowding proximity component.
	bare := model.SmartHub{Location: loc, Capacity: 1, Active: true}
	low := Score(bare, NetworkState{})
	if low != 15 {
		t.Errorf("Expected isolated bare hub to score 15, got %f", low)
	}
}

func TestScore_RouteMatchComponent(t *testing.T) {
	loc := geo.Point{Lat: 40.0, Lon: -88.0}
	hub := model.SmartHub{Location: loc, Capacity: 10, Active: true}

	near := []geo.Point{geo.Destination(loc, 90, 5, geo.Miles)}
	far := []geo.Point{geo.Destination(loc, 90, 500, geo.Miles)}

	matched := Score(hub, NetworkState{Trails: [][]geo.Point{near, near}})
	half := Score(hub, NetworkState{Trails: [][]geo.Point{near, far}})
	none := Score(hub, NetworkState{Trails: [][]geo.Point{far, far}})

	if !(matched > half && half > none) {
		t.Errorf("Expected score to grow with route coverage: %f > %f > %f", matched, half, none)
	}
}

func TestScore_CrowdingPenalty(t *testing.T) {
	loc := geo.Point{Lat: 40.0, Lon: -88.0}
	hub := model.SmartHub{Location: loc, Capacity: 10, Active: true}

	crowded := NetworkState{OtherHubs: []model.SmartHub{{
		ID:       "neighbor",
		Location: geo.Destination(loc, 0, 5, geo.Miles),
		Active:   true,
	}}}
	spaced := NetworkState{OtherHubs: []model.SmartHub{{
		ID:       "neighbor",
		Location: geo.Destination(loc, 0, 100, geo.Miles),
		Active:   true,
	}}}

	if Score(hub, crowded) >= Score(hub, spaced) {
		t.Errorf("Expected crowding to lower the score: crowded=%f spaced=%f",
			Score(hub, crowded), Score(hub, spaced))
	}
}

func TestScore_AmenityWeights(t *testing.T) {
	loc := geo.Point{Lat: 40.0, Lon: -88.0}

	fueled := model.SmartHub{Location: loc, Capacity: 10, Active: true,
		Amenities: []model.Amenity{model.AmenityFuel}}
	lodged := model.SmartHub{Location: loc, Capacity: 10, Active: true,
		Amenities: []model.Amenity{model.AmenityLodging}}

	// Fuel carries weight 0.20, lodging 0.05.
	if Score(fueled, NetworkState{}) <= Score(lodged, NetworkState{}) {
		t.Errorf("Expected fuel to outweigh lodging: %f vs %f",
			Score(fueled, NetworkState{}), Score(lodged, NetworkState{}))
	}

	// Overridden weights flip the ranking.
	flipped := map[model.Amenity]float64{model.AmenityLodging: 1}
	state := NetworkState{AmenityWeights: flipped}
	if Score(lodged, state) <= Score(fueled, state) {
		t.Errorf("Expected custom weights to favor lodging: %f vs %f",
			Score(lodged, state), Score(fueled, state))
	}
}
