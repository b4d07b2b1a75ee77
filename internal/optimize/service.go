package optimize

import (
	"context"
	"math"

	"github.com/rs/zerolog/log"

	"freightflow/internal/fleet"
	"freightflow/internal/model"
)

// Outcome is one optimization pass: the accepted matches plus the
// aggregate network metrics. Reason explains an empty match list.
type Outcome struct {
	Matches []model.LoadMatch
	Network model.NetworkMetrics
	Reason  string
}

// Optimizer runs LOAD_MATCHING and NETWORK_OPTIMIZATION jobs over the
// fleet snapshot.
type Optimizer struct {
	drivers fleet.DriverRepository
	loads   fleet.LoadRepository
	solver  Solver
}

// NewOptimizer wires the optimizer over its collaborators. solver defaults
// to the in-process branch and bound when nil.
func NewOptimizer(drivers fleet.DriverRepository, loads fleet.LoadRepository, solver Solver) *Optimizer {
	if solver == nil {
		solver = &BranchBound{}
	}
	return &Optimizer{drivers: drivers, loads: loads, solver: solver}
}

// Optimize assembles the problem scope from the job parameters, solves the
// assignment, and derives match records and network metrics. progress is
// invoked at milestones with a [0,100] percentage.
func (o *Optimizer) Optimize(ctx context.Context, params model.JobParameters, progress func(float64)) (Outcome, error) {
	loads, scopeReason, err := o.scopeLoads(ctx, params)
	if err != nil {
		return Outcome{}, err
	}
	drivers, err := o.scopeDrivers(ctx, params)
	if err != nil {
		return Outcome{}, err
	}
	progress(15)
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}

	problem := BuildProblem(drivers, loads, params)
	progress(30)
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}

	sol, err := o.solver.Solve(ctx, problem)
	if err != nil {
		return Outcome{}, err
	}
	progress(80)

	out := buildOutcome(problem, sol)
	if out.Reason == ReasonNoFeasiblePairs && scopeReason != "" {
		out.Reason = scopeReason
	}
	progress(95)

	log.Info().
		Int("loads", len(loads)).
		Int("drivers", len(drivers)).
		Int("matches", len(out.Matches)).
		Int("nodes", sol.Nodes).
		Float64("empty_pct", out.Network.EmptyMilesPct).
		Msg("Optimization pass complete")
	return out, nil
}

// scopeLoads resolves the load set: one load when the job names it,
// otherwise every AVAILABLE load in the region. A named load in the wrong
// lifecycle state is an empty outcome, not an error.
func (o *Optimizer) scopeLoads(ctx context.Context, params model.JobParameters) ([]model.Load, string, error) {
	if params.LoadID != "" {
		l, err := o.loads.Get(ctx, params.LoadID)
		if err != nil {
			return nil, "", err
		}
		if l.Status != model.LoadAvailable {
			return nil, "load " + l.ID + " is " + string(l.Status) + ", not AVAILABLE", nil
		}
		return []model.Load{l}, "", nil
	}
	loads, err := o.loads.ListByStatus(ctx, model.LoadAvailable, params.Region)
	return loads, "", err
}

// scopeDrivers resolves the driver pool, narrowed to the job's explicit
// driver ids when present.
func (o *Optimizer) scopeDrivers(ctx context.Context, params model.JobParameters) ([]model.Driver, error) {
	available, err := o.drivers.ListAvailable(ctx, params.Region)
	if err != nil {
		return nil, err
	}
	if len(params.DriverIDs) == 0 {
		return available, nil
	}
	wanted := make(map[string]bool, len(params.DriverIDs))
	for _, id := range params.DriverIDs {
		wanted[id] = true
	}
	scoped := available[:0]
	for _, d := range available {
		if wanted[d.ID] {
			scoped = append(scoped, d)
		}
	}
	return scoped, nil
}

// buildOutcome converts a solver solution into match records and network
// metrics.
func buildOutcome(p *Problem, sol Solution) Outcome {
	out := Outcome{Reason: sol.Reason}

	var emptyMi, loadedMi float64
	for di, li := range sol.Assigned {
		if li < 0 {
			continue
		}
		pair, ok := findPair(p, di, li)
		if !ok {
			continue
		}
		load := p.Loads[li]

		rate := load.RatePerMile
		if rate <= 0 {
			rate = model.DefaultRatePerMile
		}

		out.Matches = append(out.Matches, model.LoadMatch{
			DriverID:            p.Drivers[di].ID,
			LoadID:              load.ID,
			Score:               round1(pair.Weight * 100),
			EmptyMiles:          round1(pair.EmptyMiles),
			LoadedMiles:         round1(pair.LoadedMiles),
			EmptyMilesSaved:     round1(pair.EmptyMilesSaved),
			NetworkContribution: round1(pair.Breakdown["network"] * 100),
			EstimatedEarnings:   math.Round(pair.LoadedMiles*rate*100) / 100,
			Breakdown:           pair.Breakdown,
		})
		emptyMi += pair.EmptyMiles
		loadedMi += pair.LoadedMiles
	}

	total := emptyMi + loadedMi
	pct := 0.0
	if total > 0 {
		pct = emptyMi / total * 100
	}

	out.Network = model.NetworkMetrics{
		TotalLoads:     len(p.Loads),
		MatchedLoads:   len(out.Matches),
		TotalDrivers:   len(p.Drivers),
		MatchedDrivers: len(out.Matches),
		TotalMiles:     round1(total),
		LoadedMiles:    round1(loadedMi),
		EmptyMiles:     round1(emptyMi),
		EmptyMilesPct:  round1(pct),
	}

	// Efficiency: match coverage scaled by the loaded share of miles.
	if len(p.Loads) > 0 {
		coverage := float64(len(out.Matches)) / float64(len(p.Loads))
		out.Network.EfficiencyScore = round1(coverage * (100 - pct))
	}

	if len(out.Matches) == 0 && out.Reason == "" {
		out.Reason = ReasonNoFeasiblePairs
	}
	return out
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }
