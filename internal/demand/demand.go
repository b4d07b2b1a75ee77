// Package demand is the stateful demand-analysis layer over the predictor
// façade: regional, location, and lane forecasts, hotspot discovery across
// the configured regions, and trend analysis. Composite results are cached
// per method and parameters.
package demand

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog/log"

	"freightflow/internal/apperrors"
	"freightflow/internal/cluster"
	"freightflow/internal/geo"
	"freightflow/internal/metrics"
	"freightflow/internal/model"
	"freightflow/internal/predict"
)

const (
	// highDemandLoads mirrors the predictor's "high" bucket boundary.
	highDemandLoads = 45.0
	// trendThreshold is the ±10% band separating stable from moving.
	trendThreshold = 0.10

	// Hotspot drill-down pattern: each high-demand region is probed at
	// its center and a ring of eight points probeRingMiles out, each
	// probe covering probeRadiusMiles.
	probeRingMiles   = 100.0
	probeRadiusMiles = 75.0
	// Clustering reach for high-demand probe points: wide enough to join
	// a region's center to its ring and ring neighbors to each other.
	hotspotEpsilonMiles = 120.0
	hotspotMinPoints    = 2

	minTrendSamples = 3
	maxTrendSamples = 24
)

// regionCenters anchors the probe pattern for each operating region.
var regionCenters = map[string]geo.Point{
	"midwest":   {Lat: 41.2, Lon: -89.0},
	"northeast": {Lat: 41.5, Lon: -75.5},
	"southeast": {Lat: 33.5, Lon: -84.0},
	"southwest": {Lat: 32.5, Lon: -99.5},
	"west":      {Lat: 37.5, Lon: -119.5},
}

// DefaultRegions mirrors the DEMAND_REGIONS configuration default.
func DefaultRegions() []string {
	return []string{"midwest", "northeast", "southeast", "southwest", "west"}
}

// Config tunes the demand layer.
type Config struct {
	Regions   []string
	CacheTTL  time.Duration
	CacheSize int
	// Samples is the default trend sample count when the caller passes
	// none.
	Samples int
}

func (c Config) normalized() Config {
	if len(c.Regions) == 0 {
		c.Regions = DefaultRegions()
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = 5 * time.Minute
	}
	if c.CacheSize <= 0 {
		c.CacheSize = 256
	}
	if c.Samples <= 0 {
		c.Samples = 5
	}
	return c
}

// Predictor answers demand questions over the model façade. Safe for
// concurrent use.
type Predictor struct {
	cfg     Config
	models  *predict.Service
	cache   *expirable.LRU[string, []model.DemandForecast]
	metrics *metrics.Metrics
}

// NewPredictor builds the demand layer over the predictor façade.
func NewPredictor(cfg Config, models *predict.Service, m *metrics.Metrics) *Predictor {
	cfg = cfg.normalized()
	return &Predictor{
		cfg:     cfg,
		models:  models,
		cache:   expirable.NewLRU[string, []model.DemandForecast](cfg.CacheSize, nil, cfg.CacheTTL),
		metrics: m,
	}
}

// Regional forecasts load demand for one region over the window.
func (p *Predictor) Regional(ctx context.Context, region string, start, end time.Time) (model.DemandForecast, error) {
	region = strings.ToLower(region)
	if region == "" {
		return model.DemandForecast{}, apperrors.Validation("DEMAND_REGION", "region is required")
	}
	key := fmt.Sprintf("regional|%s|%d|%d", region, start.Unix(), end.Unix())
	if cached, ok := p.fromCache(key); ok && len(cached) == 1 {
		return cached[0], nil
	}

	out, err := p.models.Predict(ctx, predict.KindDemand, predict.DemandInput{
		Region:      region,
		WindowStart: start,
		WindowEnd:   end,
	}, predict.Options{})
	if err != nil {
		return model.DemandForecast{}, err
	}
	f := model.DemandForecast{
		Region:        region,
		ExpectedLoads: out.Demand.ExpectedLoads,
		Confidence:    out.ConfidenceScore,
		WindowStart:   start,
		WindowEnd:     end,
	}
	p.toCache(key, []model.DemandForecast{f})
	return f, nil
}

// AtLocation forecasts load demand within radiusMi of a point.
func (p *Predictor) AtLocation(ctx context.Context, loc geo.Point, radiusMi float64, start, end time.Time) (model.DemandForecast, error) {
	if radiusMi <= 0 {
		return model.DemandForecast{}, apperrors.Validation("DEMAND_RADIUS",
			"radius must be positive", "radius_miles", radiusMi)
	}
	key := fmt.Sprintf("location|%.4f|%.4f|%.1f|%d|%d", loc.Lat, loc.Lon, radiusMi, start.Unix(), end.Unix())
	if cached, ok := p.fromCache(key); ok && len(cached) == 1 {
		return cached[0], nil
	}

	out, err := p.models.Predict(ctx, predict.KindDemand, predict.DemandInput{
		Location:    &loc,
		RadiusMiles: radiusMi,
		WindowStart: start,
		WindowEnd:   end,
	}, predict.Options{})
	if err != nil {
		return model.DemandForecast{}, err
	}
	f := model.DemandForecast{
		Location:      &loc,
		RadiusMiles:   radiusMi,
		ExpectedLoads: out.Demand.ExpectedLoads,
		Confidence:    out.ConfidenceScore,
		WindowStart:   start,
		WindowEnd:     end,
	}
	p.toCache(key, []model.DemandForecast{f})
	return f, nil
}

// Lane forecasts demand on an origin-region → destination-region lane.
func (p *Predictor) Lane(ctx context.Context, originRegion, destRegion string, start, end time.Time) (model.DemandForecast, error) {
	originRegion = strings.ToLower(originRegion)
	destRegion = strings.ToLower(destRegion)
	if originRegion == "" || destRegion == "" {
		return model.DemandForecast{}, apperrors.Validation("DEMAND_LANE",
			"both lane regions are required", "origin", originRegion, "dest", destRegion)
	}
	key := fmt.Sprintf("lane|%s|%s|%d|%d", originRegion, destRegion, start.Unix(), end.Unix())
	if cached, ok := p.fromCache(key); ok && len(cached) == 1 {
		return cached[0], nil
	}

	out, err := p.models.Predict(ctx, predict.KindDemand, predict.DemandInput{
		OriginRegion: originRegion,
		DestRegion:   destRegion,
		WindowStart:  start,
		WindowEnd:    end,
	}, predict.Options{})
	if err != nil {
		return model.DemandForecast{}, err
	}
	f := model.DemandForecast{
		OriginRegion:  originRegion,
		DestRegion:    destRegion,
		ExpectedLoads: out.Demand.ExpectedLoads,
		Confidence:    out.ConfidenceScore,
		WindowStart:   start,
		WindowEnd:     end,
	}
	p.toCache(key, []model.DemandForecast{f})
	return f, nil
}

// Hotspots scans the configured regions, drills into the high-demand ones
// with location probes, and clusters the high-demand probe points into
// hotspot forecasts sorted by expected loads.
func (p *Predictor) Hotspots(ctx context.Context, start, end time.Time) ([]model.DemandForecast, error) {
	key := fmt.Sprintf("hotspots|%s|%d|%d", strings.Join(p.cfg.Regions, ","), start.Unix(), end.Unix())
	if cached, ok := p.fromCache(key); ok {
		return cached, nil
	}

	var points []geo.Point
	probes := make(map[geo.Point]model.DemandForecast)
	for _, region := range p.cfg.Regions {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		regional, err := p.Regional(ctx, region, start, end)
		if err != nil {
			return nil, err
		}
		if regional.ExpectedLoads <= highDemandLoads {
			continue
		}
		pattern := probePoints(region)
		if len(pattern) == 0 {
			log.Warn().Str("region", region).Msg("No probe pattern for high-demand region")
			continue
		}
		for _, pt := range pattern {
			f, err := p.AtLocation(ctx, pt, probeRadiusMiles, start, end)
			if err != nil {
				return nil, err
			}
			if f.ExpectedLoads > highDemandLoads {
				points = append(points, pt)
				probes[pt] = f
			}
		}
	}

	clusters := cluster.DBSCAN(points, cluster.Params{
		EpsilonMiles: hotspotEpsilonMiles,
		MinPoints:    hotspotMinPoints,
	})
	hotspots := make([]model.DemandForecast, 0, len(clusters))
	for _, c := range clusters {
		var loads, conf, radius float64
		for _, pt := range c.Points {
			f := probes[pt]
			loads += f.ExpectedLoads
			conf += f.Confidence
			if d := geo.DistanceMiles(c.Centroid, pt); d > radius {
				radius = d
			}
		}
		center := c.Centroid
		hotspots = append(hotspots, model.DemandForecast{
			Location:      &center,
			RadiusMiles:   round1(math.Max(radius, probeRadiusMiles)),
			ExpectedLoads: round1(loads),
			Confidence:    round2(conf / float64(c.Size())),
			WindowStart:   start,
			WindowEnd:     end,
		})
	}
	sort.Slice(hotspots, func(i, j int) bool {
		if hotspots[i].ExpectedLoads != hotspots[j].ExpectedLoads {
			return hotspots[i].ExpectedLoads > hotspots[j].ExpectedLoads
		}
		if hotspots[i].Location.Lat != hotspots[j].Location.Lat {
			return hotspots[i].Location.Lat < hotspots[j].Location.Lat
		}
		return hotspots[i].Location.Lon < hotspots[j].Location.Lon
	})

	p.toCache(key, hotspots)
	log.Info().
		Int("regions", len(p.cfg.Regions)).
		Int("hotspots", len(hotspots)).
		Msg("Hotspot scan complete")
	return hotspots, nil
}

// Trend samples regional demand at uniform intervals across the window
// and classifies the movement. samples <= 0 uses the configured default.
func (p *Predictor) Trend(ctx context.Context, region string, start, end time.Time, samples int) (model.DemandForecast, error) {
	region = strings.ToLower(region)
	if region == "" {
		return model.DemandForecast{}, apperrors.Validation("DEMAND_REGION", "region is required")
	}
	if !start.Before(end) {
		return model.DemandForecast{}, apperrors.Validation("DEMAND_WINDOW",
			"trend window start must precede end")
	}
	if samples <= 0 {
		samples = p.cfg.Samples
	}
	if samples < minTrendSamples {
		samples = minTrendSamples
	}
	if samples > maxTrendSamples {
		samples = maxTrendSamples
	}
	key := fmt.Sprintf("trend|%s|%d|%d|%d", region, start.Unix(), end.Unix(), samples)
	if cached, ok := p.fromCache(key); ok && len(cached) == 1 {
		return cached[0], nil
	}

	step := end.Sub(start) / time.Duration(samples)
	series := make([]float64, samples)
	var confSum float64
	for i := 0; i < samples; i++ {
		if err := ctx.Err(); err != nil {
			return model.DemandForecast{}, err
		}
		s0 := start.Add(step * time.Duration(i))
		f, err := p.Regional(ctx, region, s0, s0.Add(step))
		if err != nil {
			return model.DemandForecast{}, err
		}
		series[i] = f.ExpectedLoads
		confSum += f.Confidence
	}

	rate, accel := slope(series)
	f := model.DemandForecast{
		Region:         region,
		ExpectedLoads:  series[len(series)-1],
		Confidence:     round2(confSum / float64(samples)),
		WindowStart:    start,
		WindowEnd:      end,
		TrendDirection: direction(series[0], series[len(series)-1]),
		RateOfChange:   round2(rate),
		Acceleration:   round2(accel),
	}
	p.toCache(key, []model.DemandForecast{f})
	return f, nil
}

// ClearCache drops every cached method result.
func (p *Predictor) ClearCache() { p.cache.Purge() }

// CacheLen reports the number of live cache entries.
func (p *Predictor) CacheLen() int { return p.cache.Len() }

func (p *Predictor) fromCache(key string) ([]model.DemandForecast, bool) {
	if v, ok := p.cache.Get(key); ok {
		p.metrics.CacheHit()
		return v, true
	}
	p.metrics.CacheMiss()
	return nil, false
}

func (p *Predictor) toCache(key string, v []model.DemandForecast) {
	p.cache.Add(key, v)
}

// probePoints is the drill-down pattern for one region: the center plus a
// ring of eight points probeRingMiles out. Unknown regions have no
// pattern.
func probePoints(region string) []geo.Point {
	center, ok := regionCenters[strings.ToLower(region)]
	if !ok {
		return nil
	}
	points := make([]geo.Point, 0, 9)
	points = append(points, center)
	for bearing := 0.0; bearing < 360; bearing += 45 {
		points = append(points, geo.Destination(center, bearing, probeRingMiles, geo.Miles))
	}
	return points
}

// slope returns the average per-interval change and the difference
// between the second-half and first-half slopes.
func slope(series []float64) (rate, accel float64) {
	n := len(series)
	rate = (series[n-1] - series[0]) / float64(n-1)
	mid := n / 2
	firstHalf := (series[mid] - series[0]) / float64(mid)
	secondHalf := (series[n-1] - series[mid]) / float64(n-1-mid)
	return rate, secondHalf - firstHalf
}

// direction classifies the first-to-last relative change at the trend
// threshold.
func direction(first, last float64) string {
	if first <= 0 {
		if last > 0 {
			return "increasing"
		}
		return "stable"
	}
	change := (last - first) / first
	switch {
	case change > trendThreshold:
		return "increasing"
	case change < -trendThreshold:
		return "decreasing"
	default:
		return "stable"
	}
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }
func round2(v float64) float64 { return math.Round(v*100) / 100 }
