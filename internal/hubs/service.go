package hubs

import (
	"context"

	"github.com/rs/zerolog/log"

	"freightflow/internal/fleet"
	"freightflow/internal/geo"
	"freightflow/internal/model"
	"freightflow/internal/predict"
)

// IdentifierConfig tunes identification runs.
type IdentifierConfig struct {
	Discovery DiscoveryParams
	// MaxRoutePoints caps how much history one run mines; 0 = all.
	MaxRoutePoints int
}

// Identifier runs Smart Hub identification: it mines the position history
// for dense route clusters, proposes new hub sites, and refreshes the
// derived metrics of the existing catalogue.
type Identifier struct {
	cfg       IdentifierConfig
	repo      Repository
	history   fleet.PositionHistory
	predictor *predict.Service
}

// NewIdentifier wires an identification service. Unset discovery knobs
// fall back to the defaults individually.
func NewIdentifier(cfg IdentifierConfig, repo Repository, history fleet.PositionHistory, predictor *predict.Service) *Identifier {
	def := DefaultDiscoveryParams()
	if cfg.Discovery.EpsilonMiles <= 0 {
		cfg.Discovery.EpsilonMiles = def.EpsilonMiles
	}
	if cfg.Discovery.MinPoints <= 0 {
		cfg.Discovery.MinPoints = def.MinPoints
	}
	if cfg.Discovery.MaxResults <= 0 {
		cfg.Discovery.MaxResults = def.MaxResults
	}
	return &Identifier{cfg: cfg, repo: repo, history: history, predictor: predictor}
}

// Identify executes one identification run. progress is invoked at
// milestones with a [0,100] percentage; ctx cancellation is honored
// between stages.
func (s *Identifier) Identify(ctx context.Context, params model.JobParameters, progress func(float64)) ([]model.HubRecommendation, error) {
	points := s.history.RoutePoints(ctx, s.cfg.MaxRoutePoints)
	existing, err := s.repo.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	progress(10)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if len(points) < s.cfg.Discovery.MinPoints {
		log.Info().Int("points", len(points)).Msg("Too little position history for hub discovery")
		progress(100)
		return nil, nil
	}

	discovery := s.cfg.Discovery
	if params.MaxIterations > 0 && params.MaxIterations < discovery.MaxResults {
		discovery.MaxResults = params.MaxIterations
	}
	recs := DiscoverCandidates(points, existing, discovery)
	progress(50)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Refresh derived metrics for the existing catalogue while the route
	// snapshot is hot. The prediction is best-effort context; a missing
	// model must not fail the run.
	reduction := s.predictedReduction(ctx, params, existing, points)
	trails := [][]geo.Point{points}
	for _, h := range existing {
		others := make([]model.SmartHub, 0, len(existing)-1)
		for _, o := range existing {
			if o.ID != h.ID {
				others = append(others, o)
			}
		}
		score := Score(h, NetworkState{
			Trails:              trails,
			OtherHubs:           others,
			EmptyMilesReduction: reduction,
		})

		metrics := model.HubMetrics{
			NetworkImpact:      score,
			GeographicCoverage: coverageFraction(h.Location, points),
			UtilizationRate:    utilization(h),
		}
		if err := s.repo.UpdateMetrics(ctx, h.ID, metrics); err != nil {
			log.Warn().Err(err).Str("hub_id", h.ID).Msg("Failed to refresh hub metrics")
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
	progress(90)

	log.Info().
		Int("route_points", len(points)).
		Int("existing_hubs", len(existing)).
		Int("candidates", len(recs)).
		Msg("Hub identification complete")
	return recs, nil
}

// predictedReduction asks the network-efficiency model for the current
// empty-miles reduction potential, normalized to [0,1].
func (s *Identifier) predictedReduction(ctx context.Context, params model.JobParameters, hubs []model.SmartHub, points []geo.Point) float64 {
	if s.predictor == nil {
		return 0
	}
	out, err := s.predictor.Predict(ctx, predict.KindNetworkEfficiency, predict.NetworkEfficiencyInput{
		Region:       params.Region,
		TotalLoads:   len(points) / 10,
		TotalDrivers: len(hubs) * 5,
	}, predict.Options{})
	if err != nil {
		log.Debug().Err(err).Msg("Network-efficiency prediction unavailable for hub scoring")
		return 0
	}
	if out.Efficiency == nil {
		return 0
	}
	return out.Efficiency.ReductionPotential / 100
}

// coverageFraction is the share of route points within the match radius.
func coverageFraction(loc geo.Point, points []geo.Point) float64 {
	if len(points) == 0 {
		return 0
	}
	near := 0
	for _, p := range points {
		if geo.DistanceMiles(loc, p) <= routeMatchRadiusMiles {
			near++
		}
	}
	return float64(near) / float64(len(points))
}

// utilization estimates how busy a hub runs relative to its capacity,
// from its accumulated exchange counters.
func utilization(h model.SmartHub) float64 {
	if h.Capacity <= 0 || h.Counters.ExchangeCount == 0 {
		return 0
	}
	perDock := float64(h.Counters.ExchangeCount) / float64(h.Capacity)
	if perDock > 1 {
		perDock = 1
	}
	return perDock
}
