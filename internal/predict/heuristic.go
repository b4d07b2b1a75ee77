package predict

import (
	"context"
	"math"
)

// heuristicVersion tags outputs from the built-in model set.
const heuristicVersion = "heuristic-1"

// NewHeuristicModels returns the built-in deterministic model set used
// when no trained endpoints are wired. Outputs vary smoothly with the
// feature vector and are stable for identical requests, which keeps local
// runs and replayed captures reproducible.
func NewHeuristicModels() map[Kind]Model {
	models := make(map[Kind]Model, len(Kinds()))
	for _, k := range Kinds() {
		models[k] = heuristicModel{kind: k}
	}
	return models
}

type heuristicModel struct {
	kind Kind
}

func (m heuristicModel) Version() string { return heuristicVersion }

func (m heuristicModel) Infer(ctx context.Context, req Request) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}

	f := req.Features
	switch m.kind {
	case KindDemand:
		// Base volume per region, scaled by the window and pulled up for
		// drill-downs near dense cells.
		base := 18 + 45*f["region_seed"] + 30*f["lane_seed"]
		if _, ok := f["cell_seed"]; ok {
			base = 12 + 55*f["cell_seed"] + f["radius_miles"]/10
		}
		scale := math.Min(3, math.Max(0.25, f["window_hours"]/24))
		return Response{Values: map[string]float64{
			"expected_loads": base * scale,
		}}, nil

	case KindSupply:
		avail := 20 + 55*f["region_seed"]
		return Response{Values: map[string]float64{
			"available_drivers": avail,
			"utilization_rate":  0.45 + 0.5*f["region_seed"],
		}}, nil

	case KindDriverBehavior:
		hos := f["hos_minutes"]
		return Response{Values: map[string]float64{
			"acceptance_likelihood": 0.35 + 0.5*math.Min(1, hos/600),
			"rest_probability":      math.Max(0, 1-hos/660),
			"long_haul_affinity":    0.25 + 0.6*f["driver_seed"],
		}}, nil

	case KindPrice:
		// Long lanes quote slightly cheaper per mile; the quoted band is
		// a fixed +/-8% around base, which the scorer reads as confidence.
		base := 1.65 + 0.8*f["lane_seed"] + 0.25*f["equipment_seed"] -
			0.2*math.Min(1, f["distance_miles"]/2000)
		return Response{Values: map[string]float64{
			"base_rate_per_mile": base,
			"rate_low":           base * 0.92,
			"rate_high":          base * 1.08,
		}}, nil

	case KindNetworkEfficiency:
		emptyPct := f["empty_miles_pct"]
		balance := 0.0
		if f["total_drivers"] > 0 {
			balance = math.Min(1, f["total_loads"]/f["total_drivers"])
		}
		score := (100-emptyPct)*0.7 + balance*30
		return Response{Values: map[string]float64{
			"score":               score,
			"reduction_potential": emptyPct * 0.35,
		}}, nil
	}

	return Response{}, nil
}
