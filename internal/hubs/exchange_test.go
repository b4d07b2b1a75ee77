package hubs

import (
	"testing"
	"time"

	"freightflow/internal/apperrors"
	"freightflow/internal/geo"
	"freightflow/internal/model"
)

func activeHub(id string, loc geo.Point) model.SmartHub {
	return model.SmartHub{
		ID:       id,
		Name:     id,
		Location: loc,
		Capacity: 10,
		Active:   true,
	}
}

func TestSelectExchangePoint_PicksLowestDeviation(t *testing.T) {
	// Two opposing routes along a corridor; the midpoint hub barely bends
	// either path, a second hub sits well off to the side.
	r1 := Route{Origin: geo.Point{Lat: 40.0, Lon: -90.0}, Dest: geo.Point{Lat: 40.0, Lon: -86.0}}
	r2 := Route{Origin: geo.Point{Lat: 40.2, Lon: -86.0}, Dest: geo.Point{Lat: 40.2, Lon: -90.0}}

	onPath := activeHub("on-path", geo.Point{Lat: 40.1, Lon: -88.0})
	offPath := activeHub("off-path", geo.Point{Lat: 40.6, Lon: -88.0})

	best, options, err := SelectExchangePoint([]model.SmartHub{offPath, onPath}, r1, r2, DefaultExchangeParams())
	if err != nil {
		t.Fatalf("SelectExchangePoint failed: %v", err)
	}
	if best.Hub.ID != "on-path" {
		t.Errorf("Expected on-path hub to win, got %s", best.Hub.ID)
	}
	if len(options) != 2 {
		t.Fatalf("Expected 2 ranked options, got %d", len(options))
	}
	if options[0].TotalDeviationMiles > options[1].TotalDeviationMiles {
		t.Errorf("Expected ranking by deviation: %.1f then %.1f",
			options[0].TotalDeviationMiles, options[1].TotalDeviationMiles)
	}
	if best.TotalDeviationMiles < 0 {
		t.Errorf("Deviation cannot be negative, got %.1f", best.TotalDeviationMiles)
	}
}

func TestSelectExchangePoint_SegmentCaps(t *testing.T) {
	// ~318mi corridor. Through-hub legs can never be shorter than the
	// direct route, so a 300mi cap rejects even the midpoint hub.
	r1 := Route{Origin: geo.Point{Lat: 40.0, Lon: -90.0}, Dest: geo.Point{Lat: 40.0, Lon: -84.0}}
	r2 := Route{Origin: r1.Dest, Dest: r1.Origin}
	hub := activeHub("mid", geo.Midpoint(r1.Origin, r1.Dest))

	p := DefaultExchangeParams()
	p.MaxSegmentDistanceMiles = 300

	_, _, err := SelectExchangePoint([]model.SmartHub{hub}, r1, r2, p)
	if apperrors.CodeOf(err) != "NO_EXCHANGE_POINT" {
		t.Errorf("Expected NO_EXCHANGE_POINT under a 300mi cap, got %v", err)
	}

	// The same hub passes once the cap clears the through-hub length.
	p.MaxSegmentDistanceMiles = 400
	best, _, err := SelectExchangePoint([]model.SmartHub{hub}, r1, r2, p)
	if err != nil {
		t.Fatalf("Expected feasible selection with relaxed cap, got %v", err)
	}
	if best.Hub.ID != "mid" {
		t.Errorf("Expected mid hub, got %s", best.Hub.ID)
	}
}

func TestSelectExchangePoint_DurationCap(t *testing.T) {
	r1 := Route{Origin: geo.Point{Lat: 40.0, Lon: -90.0}, Dest: geo.Point{Lat: 40.0, Lon: -84.0}}
	r2 := Route{Origin: r1.Dest, Dest: r1.Origin}
	hub := activeHub("mid", geo.Midpoint(r1.Origin, r1.Dest))

	p := DefaultExchangeParams()
	// ~318mi through-hub legs need ~5.8h at 55mph; a 4h cap rejects them.
	p.MaxSegmentDuration = 4 * time.Hour

	_, _, err := SelectExchangePoint([]model.SmartHub{hub}, r1, r2, p)
	if apperrors.CodeOf(err) != "NO_EXCHANGE_POINT" {
		t.Errorf("Expected duration cap rejection, got %v", err)
	}
}

func TestSelectExchangePoint_SkipsInactiveAndRemote(t *testing.T) {
	r1 := Route{Origin: geo.Point{Lat: 40.0, Lon: -90.0}, Dest: geo.Point{Lat: 40.0, Lon: -86.0}}
	r2 := Route{Origin: r1.Dest, Dest: r1.Origin}

	inactive := activeHub("inactive", geo.Midpoint(r1.Origin, r1.Dest))
	inactive.Active = false
	// Far outside the 20% candidate radius around the midpoint anchor.
	remote := activeHub("remote", geo.Point{Lat: 47.0, Lon: -122.0})

	_, _, err := SelectExchangePoint([]model.SmartHub{inactive, remote}, r1, r2, DefaultExchangeParams())
	if apperrors.CodeOf(err) != "NO_EXCHANGE_POINT" {
		t.Errorf("Expected no feasible candidates, got %v", err)
	}
}

func TestSelectExchangePoint_AmenityBonusBreaksTie(t *testing.T) {
	r1 := Route{Origin: geo.Point{Lat: 40.0, Lon: -90.0}, Dest: geo.Point{Lat: 40.0, Lon: -86.0}}
	r2 := Route{Origin: r1.Dest, Dest: r1.Origin}
	mid := geo.Midpoint(r1.Origin, r1.Dest)

	plain := activeHub("plain", geo.Destination(mid, 0, 3, geo.Miles))
	stocked := activeHub("stocked", geo.Destination(mid, 180, 3, geo.Miles))
	stocked.Amenities = []model.Amenity{
		model.AmenityFuel, model.AmenityFood, model.AmenityParking, model.AmenityShower,
	}

	best, _, err := SelectExchangePoint([]model.SmartHub{plain, stocked}, r1, r2, DefaultExchangeParams())
	if err != nil {
		t.Fatalf("SelectExchangePoint failed: %v", err)
	}
	if best.Hub.ID != "stocked" {
		t.Errorf("Expected amenity-rich hub to win the near-tie, got %s", best.Hub.ID)
	}
}
