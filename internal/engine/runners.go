package engine

import (
	"context"
	"time"

	"freightflow/internal/config"
	"freightflow/internal/demand"
	"freightflow/internal/dispatch"
	"freightflow/internal/fleet"
	"freightflow/internal/hubs"
	"freightflow/internal/model"
	"freightflow/internal/optimize"
	"freightflow/internal/predict"
	"freightflow/internal/relay"
)

// fleetDeps bundles the repositories the algorithm services read.
type fleetDeps struct {
	drivers fleet.DriverRepository
	loads   fleet.LoadRepository
	history fleet.PositionHistory
	hubs    hubs.Repository
	relays  relay.Store
}

// buildRunners binds each job kind to its algorithm service. LOAD_MATCHING
// and NETWORK_OPTIMIZATION share the optimizer; only the job parameters
// scope them differently.
func buildRunners(cfg *config.AppConfig, deps fleetDeps, predictor *predict.Service, forecaster *demand.Predictor) map[model.JobKind]dispatch.Runner {
	optimizer := optimize.NewOptimizer(deps.drivers, deps.loads, nil)

	identifier := hubs.NewIdentifier(hubs.IdentifierConfig{
		Discovery: hubs.DiscoveryParams{
			EpsilonMiles:        cfg.ClusterEpsilonMiles,
			MinPoints:           cfg.ClusterMinPoints,
			MinHubDistanceMiles: cfg.MinHubDistanceMiles,
		},
	}, deps.hubs, deps.history, predictor)

	planner := relay.NewPlanner(relay.Config{
		MaxSegments:        cfg.MaxRelaySegments,
		MaxSegmentMiles:    cfg.MaxSegmentDistanceMiles,
		MaxSegmentDuration: cfg.MaxSegmentDuration,
		SpeedMPH:           cfg.RelaySegmentSpeedMPH,
		BufferFraction:     cfg.RelaySegmentBuffer,
	}, deps.hubs, deps.drivers, deps.loads, deps.relays)

	match := dispatch.RunnerFunc(func(ctx context.Context, j model.Job, progress func(float64)) (model.Result, error) {
		outcome, err := optimizer.Optimize(ctx, j.Params, progress)
		if err != nil {
			return model.Result{}, err
		}
		network := outcome.Network
		return model.Result{Matches: outcome.Matches, Network: &network}, nil
	})

	return map[model.JobKind]dispatch.Runner{
		model.JobLoadMatching:    match,
		model.JobNetworkOptimize: match,

		model.JobSmartHubID: dispatch.RunnerFunc(func(ctx context.Context, j model.Job, progress func(float64)) (model.Result, error) {
			recs, err := identifier.Identify(ctx, j.Params, progress)
			if err != nil {
				return model.Result{}, err
			}
			return model.Result{Hubs: recs}, nil
		}),

		model.JobRelayPlanning: dispatch.RunnerFunc(func(ctx context.Context, j model.Job, progress func(float64)) (model.Result, error) {
			plan, err := planner.Plan(ctx, j.Params, progress)
			if err != nil {
				return model.Result{}, err
			}
			return model.Result{Plans: []model.RelayPlan{plan}}, nil
		}),

		model.JobDemandPrediction: dispatch.RunnerFunc(func(ctx context.Context, j model.Job, progress func(float64)) (model.Result, error) {
			start, end := forecastWindow(j.Params)
			progress(10)
			var forecasts []model.DemandForecast
			if j.Params.Region != "" {
				f, err := forecaster.Regional(ctx, j.Params.Region, start, end)
				if err != nil {
					return model.Result{}, err
				}
				forecasts = []model.DemandForecast{f}
			} else {
				var err error
				forecasts, err = forecaster.Hotspots(ctx, start, end)
				if err != nil {
					return model.Result{}, err
				}
			}
			progress(90)
			return model.Result{Forecasts: forecasts}, nil
		}),
	}
}

// forecastWindow defaults an unset job window to the next 24 hours.
func forecastWindow(p model.JobParameters) (time.Time, time.Time) {
	if !p.WindowStart.IsZero() && !p.WindowEnd.IsZero() {
		return p.WindowStart, p.WindowEnd
	}
	now := time.Now().UTC()
	return now, now.Add(24 * time.Hour)
}
