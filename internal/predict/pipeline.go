package predict

import (
	"fmt"
	"hash/fnv"
	"math"
	"time"

	"freightflow/internal/geo"
)

// preprocess reshapes a typed input into the flat feature vector models
// consume. Region names arrive already lowercased from the canonical form.
func preprocess(kind Kind, input Input) Request {
	req := Request{
		Kind:     kind,
		Features: make(map[string]float64),
		Labels:   make(map[string]string),
	}

	switch in := input.canonical().(type) {
	case DemandInput:
		if in.Region != "" {
			req.Labels["region"] = in.Region
			req.Features["region_seed"] = seed(in.Region)
		}
		if in.OriginRegion != "" || in.DestRegion != "" {
			req.Labels["origin"] = in.OriginRegion
			req.Labels["dest"] = in.DestRegion
			req.Features["lane_seed"] = seed(in.OriginRegion + ">" + in.DestRegion)
		}
		if in.Location != nil {
			req.Features["lat"] = in.Location.Lat
			req.Features["lon"] = in.Location.Lon
			req.Features["radius_miles"] = in.RadiusMiles
			req.Features["cell_seed"] = seed(cellKey(*in.Location))
		}
		req.Features["window_hours"] = windowHours(in.WindowStart, in.WindowEnd)

	case SupplyInput:
		req.Labels["region"] = in.Region
		req.Features["region_seed"] = seed(in.Region)
		req.Features["window_hours"] = windowHours(in.WindowStart, in.WindowEnd)

	case DriverBehaviorInput:
		req.Labels["driver_id"] = in.DriverID
		req.Features["driver_seed"] = seed(in.DriverID)
		req.Features["hos_minutes"] = in.HOSMinutes
		req.Features["recent_points"] = float64(len(in.RecentPositions))
		req.Features["activity_radius_miles"] = activityRadius(in.RecentPositions)

	case PriceInput:
		req.Labels["origin"] = in.OriginRegion
		req.Labels["dest"] = in.DestRegion
		req.Labels["equipment"] = string(in.Equipment)
		req.Features["lane_seed"] = seed(in.OriginRegion + ">" + in.DestRegion)
		req.Features["equipment_seed"] = seed(string(in.Equipment))
		req.Features["distance_miles"] = in.DistanceMiles
		if !in.PickupTime.IsZero() {
			req.Features["pickup_hour"] = float64(in.PickupTime.Hour())
			req.Features["pickup_weekday"] = float64(in.PickupTime.Weekday())
		}

	case NetworkEfficiencyInput:
		req.Labels["region"] = in.Region
		req.Features["total_loads"] = float64(in.TotalLoads)
		req.Features["total_drivers"] = float64(in.TotalDrivers)
		req.Features["empty_miles_pct"] = in.EmptyMilesPct
	}

	return req
}

// postprocess coerces a raw model response into the typed output contract
// for the kind, clamping every field onto its documented range.
func postprocess(kind Kind, input Input, resp Response) Output {
	out := Output{Kind: kind}
	v := resp.Values

	switch kind {
	case KindDemand:
		expected := math.Max(0, v["expected_loads"])
		out.Demand = &DemandOutput{
			ExpectedLoads: math.Round(expected*10) / 10,
			Level:         demandLevel(expected),
		}

	case KindSupply:
		out.Supply = &SupplyOutput{
			AvailableDrivers: math.Round(math.Max(0, v["available_drivers"])),
			UtilizationRate:  clamp01(v["utilization_rate"]),
		}

	case KindDriverBehavior:
		out.Behavior = &DriverBehaviorOutput{
			AcceptanceLikelihood: clamp01(v["acceptance_likelihood"]),
			RestProbability:      clamp01(v["rest_probability"]),
			LongHaulAffinity:     clamp01(v["long_haul_affinity"]),
		}

	case KindPrice:
		base := math.Max(0, v["base_rate_per_mile"])
		low, high := v["rate_low"], v["rate_high"]
		if low > high {
			low, high = high, low
		}
		low = math.Max(0, math.Min(low, base))
		high = math.Max(high, base)

		distance := 0.0
		if in, ok := input.(PriceInput); ok {
			distance = in.DistanceMiles
		}
		out.Price = &PriceOutput{
			BaseRatePerMile: round2(base),
			RateLow:         round2(low),
			RateHigh:        round2(high),
			TotalPrice:      round2(base * distance),
		}

	case KindNetworkEfficiency:
		out.Efficiency = &NetworkEfficiencyOutput{
			Score:              math.Min(100, math.Max(0, v["score"])),
			ReductionPotential: math.Max(0, v["reduction_potential"]),
		}
	}

	return out
}

// confidence scores an output in [0,1]: a model-provided score wins, then
// a probability vector's top class, then the kind heuristic.
func confidence(kind Kind, resp Response, out Output) float64 {
	// 1. Model-provided score.
	if resp.Confidence > 0 {
		return clamp01(resp.Confidence)
	}

	// 2. Probability vector: take the dominant class.
	if len(resp.Probabilities) > 0 {
		top := 0.0
		for _, p := range resp.Probabilities {
			if p > top {
				top = p
			}
		}
		return clamp01(top)
	}

	// 3. Kind heuristics. Price: a narrow quoted range means a confident
	// model; the width relative to the base rate is the uncertainty.
	if kind == KindPrice && out.Price != nil && out.Price.BaseRatePerMile > 0 {
		width := out.Price.RateHigh - out.Price.RateLow
		return clamp01(1 - width/out.Price.BaseRatePerMile)
	}

	return defaultConfidence[kind]
}

var defaultConfidence = map[Kind]float64{
	KindDemand:            0.75,
	KindSupply:            0.75,
	KindDriverBehavior:    0.65,
	KindPrice:             0.60,
	KindNetworkEfficiency: 0.80,
}

// demandLevel buckets an expected-loads estimate.
func demandLevel(expected float64) string {
	switch {
	case expected < 15:
		return "low"
	case expected > 45:
		return "high"
	default:
		return "moderate"
	}
}

// seed hashes a label into a stable [0,1) feature so models can vary
// smoothly across categorical inputs.
func seed(s string) float64 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return float64(h.Sum32()%10_000) / 10_000
}

// cellKey quantizes a location to a ~0.1 degree grid cell label.
func cellKey(p geo.Point) string {
	return fmt.Sprintf("%.1f:%.1f", p.Lat, p.Lon)
}

// windowHours measures a forecast window, defaulting to a day when the
// window is unset or inverted.
func windowHours(start, end time.Time) float64 {
	if start.IsZero() || end.IsZero() || !end.After(start) {
		return 24
	}
	return end.Sub(start).Hours()
}

// activityRadius is the great-circle span of a driver's recent positions,
// measured corner to corner of their bounding box.
func activityRadius(points []geo.Point) float64 {
	if len(points) < 2 {
		return 0
	}
	minLat, maxLat := points[0].Lat, points[0].Lat
	minLon, maxLon := points[0].Lon, points[0].Lon
	for _, p := range points[1:] {
		minLat = math.Min(minLat, p.Lat)
		maxLat = math.Max(maxLat, p.Lat)
		minLon = math.Min(minLon, p.Lon)
		maxLon = math.Max(maxLon, p.Lon)
	}
	return geo.DistanceMiles(
		geo.Point{Lat: minLat, Lon: minLon},
		geo.Point{Lat: maxLat, Lon: maxLon},
	)
}

func clamp01(x float64) float64 {
	return math.Max(0, math.Min(1, x))
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
