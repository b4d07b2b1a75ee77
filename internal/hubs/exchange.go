package hubs

import (
	"math"
	"sort"
	"time"

	"freightflow/internal/apperrors"
	"freightflow/internal/geo"
	"freightflow/internal/model"
)

// Route is one origin → destination great-circle leg.
type Route struct {
	Origin geo.Point
	Dest   geo.Point
}

// LengthMiles is the route's great-circle length.
func (r Route) LengthMiles() float64 { return geo.DistanceMiles(r.Origin, r.Dest) }

// ExchangeParams bound exchange-point feasibility.
type ExchangeParams struct {
	MaxSegmentDistanceMiles float64
	MaxSegmentDuration      time.Duration
	SpeedMPH                float64
}

// DefaultExchangeParams mirrors the engine's configuration defaults.
func DefaultExchangeParams() ExchangeParams {
	return ExchangeParams{
		MaxSegmentDistanceMiles: 500,
		MaxSegmentDuration:      8 * time.Hour,
		SpeedMPH:                55,
	}
}

// candidateRadiusFraction scopes candidates to hubs near the midpoint of
// the two routes' midpoints: within this fraction of the average route
// length.
const candidateRadiusFraction = 0.20

// Per-candidate bonuses. Deviation miles are reduced by these, so a hub
// with more amenities or docks wins a near-tie.
const (
	amenityBonusMiles  = 2.0
	capacityBonusMiles = 0.05
)

// ExchangeOption is one feasible exchange point, ranked by adjusted
// deviation ascending.
type ExchangeOption struct {
	Hub                 model.SmartHub `json:"hub"`
	Route1DetourMiles   float64        `json:"route1_detour_miles"`
	Route2DetourMiles   float64        `json:"route2_detour_miles"`
	TotalDeviationMiles float64        `json:"total_deviation_miles"`
	AdjustedDeviation   float64        `json:"adjusted_deviation"`
}

// SelectExchangePoint picks the best hub for two drivers to swap loads.
// Candidates are hubs near the midpoint of the two routes' midpoints; a
// candidate is feasible when neither driver's through-hub leg exceeds the
// segment distance and duration caps. Feasible candidates rank by total
// deviation from the original routes, ascending, with small bonuses for
// amenities and capacity. The full ranking is returned alongside the
// winner.
func SelectExchangePoint(candidates []model.SmartHub, r1, r2 Route, p ExchangeParams) (ExchangeOption, []ExchangeOption, error) {
	if p.SpeedMPH <= 0 {
		p.SpeedMPH = DefaultExchangeParams().SpeedMPH
	}

	len1 := r1.LengthMiles()
	len2 := r2.LengthMiles()
	avgLen := (len1 + len2) / 2
	anchor := geo.Midpoint(geo.Midpoint(r1.Origin, r1.Dest), geo.Midpoint(r2.Origin, r2.Dest))
	radius := avgLen * candidateRadiusFraction

	var options []ExchangeOption
	for _, h := range candidates {
		if !h.Active {
			continue
		}
		if geo.DistanceMiles(anchor, h.Location) > radius {
			continue
		}

		seg1 := geo.DistanceMiles(r1.Origin, h.Location) + geo.DistanceMiles(h.Location, r1.Dest)
		seg2 := geo.DistanceMiles(r2.Origin, h.Location) + geo.DistanceMiles(h.Location, r2.Dest)
		if seg1 > p.MaxSegmentDistanceMiles || seg2 > p.MaxSegmentDistanceMiles {
			continue
		}
		if segmentDuration(seg1, p.SpeedMPH) > p.MaxSegmentDuration ||
			segmentDuration(seg2, p.SpeedMPH) > p.MaxSegmentDuration {
			continue
		}

		deviation := (seg1 - len1) + (seg2 - len2)
		adjusted := deviation -
			amenityBonusMiles*float64(len(h.Amenities)) -
			capacityBonusMiles*float64(h.Capacity)

		options = append(options, ExchangeOption{
			Hub:                 h,
			Route1DetourMiles:   math.Round((seg1-len1)*10) / 10,
			Route2DetourMiles:   math.Round((seg2-len2)*10) / 10,
			TotalDeviationMiles: math.Round(deviation*10) / 10,
			AdjustedDeviation:   adjusted,
		})
	}

	if len(options) == 0 {
		return ExchangeOption{}, nil, apperrors.Validation("NO_EXCHANGE_POINT",
			"no feasible exchange hub between the routes")
	}

	sort.Slice(options, func(i, j int) bool {
		if options[i].AdjustedDeviation != options[j].AdjustedDeviation {
			return options[i].AdjustedDeviation < options[j].AdjustedDeviation
		}
		return options[i].Hub.ID < options[j].Hub.ID
	})
	return options[0], options, nil
}

// segmentDuration is the drive time for a leg at the given speed.
func segmentDuration(miles, speedMPH float64) time.Duration {
	return time.Duration(miles / speedMPH * float64(time.Hour))
}
