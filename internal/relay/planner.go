// Package relay plans multi-driver relay hauls. One long load is split at
// Smart Hubs into driver-sized segments with coordinated handoffs; the
// planner picks the junction hubs, assigns a driver per segment, schedules
// the exchange windows, and scores the plan against the direct haul.
package relay

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"freightflow/internal/apperrors"
	"freightflow/internal/fleet"
	"freightflow/internal/geo"
	"freightflow/internal/hubs"
	"freightflow/internal/model"
)

// Relay eligibility thresholds. Shorter or quicker hauls stay with a
// single driver.
const (
	MinRelayMiles    = 400.0
	MinRelayDuration = 6 * time.Hour
)

// Planner defaults, applied where Config fields are zero.
const (
	DefaultMaxSegments        = 3
	DefaultMaxSegmentMiles    = 500.0
	DefaultMaxSegmentDuration = 8 * time.Hour
	DefaultSpeedMPH           = 55.0
	DefaultBufferFraction     = 0.15
)

// Driver scoring weights: proximity to the segment start, segment end to
// home base, and HOS sufficiency.
const (
	weightStartProximity = 0.4
	weightHomeProximity  = 0.3
	weightHOS            = 0.3

	// driverRangeMiles normalizes the proximity terms; beyond it a term
	// contributes zero.
	driverRangeMiles = 500.0
)

const (
	// corridorPadFraction widens the hub query box around the route.
	corridorPadFraction = 0.20
	// minAdvanceMiles is the least forward progress a junction hub must
	// yield, keeping the greedy walk from stalling on co-located hubs.
	minAdvanceMiles = 1.0
	// handoffLead pads the exchange window start past both arrivals.
	handoffLead = 15 * time.Minute
	// deliveryReserve is held back from the delivery deadline.
	deliveryReserve = 30 * time.Minute

	// eligibilityEps absorbs float error so a haul measured at exactly
	// the distance threshold stays ineligible.
	eligibilityEps = 1e-6
	scoreEps       = 1e-9

	kmPerMile = geo.EarthRadiusKm / geo.EarthRadiusMi
)

// Config bounds the shape of produced plans. Zero fields fall back to the
// package defaults.
type Config struct {
	MaxSegments        int
	MaxSegmentMiles    float64
	MaxSegmentDuration time.Duration
	SpeedMPH           float64
	BufferFraction     float64
}

func (c Config) normalized() Config {
	if c.MaxSegments <= 0 {
		c.MaxSegments = DefaultMaxSegments
	}
	if c.MaxSegmentMiles <= 0 {
		c.MaxSegmentMiles = DefaultMaxSegmentMiles
	}
	if c.MaxSegmentDuration <= 0 {
		c.MaxSegmentDuration = DefaultMaxSegmentDuration
	}
	if c.SpeedMPH <= 0 {
		c.SpeedMPH = DefaultSpeedMPH
	}
	if c.BufferFraction <= 0 {
		c.BufferFraction = DefaultBufferFraction
	}
	return c
}

// leg is the geometry of one prospective segment before scheduling.
type leg struct {
	start, end geo.Point
	miles      float64
	duration   time.Duration
}

// Planner builds relay plans for eligible loads.
type Planner struct {
	cfg     Config
	hubs    hubs.Repository
	drivers fleet.DriverRepository
	loads   fleet.LoadRepository
	store   Store
}

// NewPlanner wires a planner over the hub catalogue and the fleet
// repositories. store may be nil when produced plans are not persisted.
func NewPlanner(cfg Config, hubRepo hubs.Repository, drivers fleet.DriverRepository, loads fleet.LoadRepository, store Store) *Planner {
	return &Planner{
		cfg:     cfg.normalized(),
		hubs:    hubRepo,
		drivers: drivers,
		loads:   loads,
		store:   store,
	}
}

// travel estimates driving time over a distance, buffered above the
// great-circle estimate.
func (p *Planner) travel(miles float64) time.Duration {
	hours := miles / p.cfg.SpeedMPH * (1 + p.cfg.BufferFraction)
	return time.Duration(hours * float64(time.Hour))
}

// maxStepMiles is the longest leg one segment may cover under both the
// distance cap and the duration cap.
func (p *Planner) maxStepMiles() float64 {
	byDuration := p.cfg.MaxSegmentDuration.Hours() * p.cfg.SpeedMPH / (1 + p.cfg.BufferFraction)
	return math.Min(p.cfg.MaxSegmentMiles, byDuration)
}

// Plan builds a relay plan for params.LoadID, persists it as a draft when
// a store is wired, and returns it. Ineligible or unroutable loads fail
// with classified validation errors.
func (p *Planner) Plan(ctx context.Context, params model.JobParameters, progress func(float64)) (model.RelayPlan, error) {
	report := func(pct float64) {
		if progress != nil {
			progress(pct)
		}
	}
	if params.LoadID == "" {
		return model.RelayPlan{}, apperrors.Validation("RELAY_LOAD_REQUIRED", "relay planning requires a load id")
	}
	load, err := p.loads.Get(ctx, params.LoadID)
	if err != nil {
		return model.RelayPlan{}, err
	}

	direct := load.DirectDistanceMiles()
	driveTime := time.Duration(direct / p.cfg.SpeedMPH * float64(time.Hour))
	if direct <= MinRelayMiles+eligibilityEps || driveTime < MinRelayDuration {
		return model.RelayPlan{}, apperrors.Validation("RELAY_NOT_APPLICABLE",
			"load is not a relay candidate",
			"load_id", load.ID,
			"distance_miles", round1(direct),
			"drive_hours", round1(driveTime.Hours()))
	}
	report(10)

	corridor, err := p.hubs.Within(ctx, corridorBox(load.Pickup.Location, load.Delivery.Location, direct))
	if err != nil {
		return model.RelayPlan{}, err
	}
	report(25)

	junctions, err := p.junctionWalk(load, corridor)
	if err != nil {
		return model.RelayPlan{}, err
	}
	legs := routeLegs(p, load, junctions)
	report(40)

	if err := ctx.Err(); err != nil {
		return model.RelayPlan{}, err
	}
	pool, err := p.candidateDrivers(ctx, params, load)
	if err != nil {
		return model.RelayPlan{}, err
	}
	if len(pool) < len(legs) {
		return model.RelayPlan{}, apperrors.Validation("RELAY_INSUFFICIENT_DRIVERS",
			"fewer candidate drivers than segments",
			"drivers", len(pool), "segments", len(legs))
	}
	assigned := p.assignDrivers(legs, pool)
	report(60)

	segments, handoffs, err := p.schedule(load, params, junctions, legs, assigned)
	if err != nil {
		return model.RelayPlan{}, err
	}
	report(80)

	now := time.Now().UTC()
	plan := model.RelayPlan{
		ID:        uuid.NewString(),
		LoadID:    load.ID,
		Status:    model.RelayDraft,
		Segments:  segments,
		Handoffs:  handoffs,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := p.validate(plan, assigned, load); err != nil {
		return model.RelayPlan{}, err
	}
	plan.Metrics = p.planMetrics(segments, assigned, load, direct)

	if p.store != nil {
		stored, err := p.store.Create(ctx, plan)
		if err != nil {
			return model.RelayPlan{}, err
		}
		plan = stored
	}
	report(95)

	log.Info().
		Str("plan_id", plan.ID).
		Str("load_id", plan.LoadID).
		Int("segments", len(plan.Segments)).
		Int("handoffs", len(plan.Handoffs)).
		Float64("total_miles", plan.Metrics.TotalDistanceMiles).
		Float64("efficiency", plan.Metrics.EfficiencyScore).
		Msg("Relay plan created")
	return plan, nil
}

// corridorBox covers the great-circle route plus a pad of 20% of its
// length on every side.
func corridorBox(origin, dest geo.Point, routeMiles float64) geo.Box {
	mid := geo.Midpoint(origin, dest)
	radiusMi := routeMiles/2 + corridorPadFraction*routeMiles
	return geo.BoundingBox(mid, radiusMi*kmPerMile)
}

// junctionWalk greedily picks the handoff hubs: each step takes the
// reachable corridor hub closest to the delivery, so the walk covers the
// route in the fewest hops the catalogue allows.
func (p *Planner) junctionWalk(load model.Load, corridor []model.SmartHub) ([]model.SmartHub, error) {
	maxStep := p.maxStepMiles()
	dest := load.Delivery.Location
	cur := load.Pickup.Location
	used := make(map[string]bool)
	var junctions []model.SmartHub

	for geo.DistanceMiles(cur, dest) > maxStep {
		if len(junctions)+2 > p.cfg.MaxSegments {
			return nil, apperrors.Validation("RELAY_TOO_MANY_SEGMENTS",
				"route does not fit the segment budget",
				"load_id", load.ID, "max_segments", p.cfg.MaxSegments)
		}
		toGo := geo.DistanceMiles(cur, dest)
		best := -1
		bestToGo := toGo - minAdvanceMiles
		for i, h := range corridor {
			if used[h.ID] || geo.DistanceMiles(cur, h.Location) > maxStep {
				continue
			}
			hubToGo := geo.DistanceMiles(h.Location, dest)
			if hubToGo < bestToGo-scoreEps {
				best, bestToGo = i, hubToGo
			} else if best >= 0 && math.Abs(hubToGo-bestToGo) <= scoreEps && h.ID < corridor[best].ID {
				best = i
			}
		}
		if best < 0 {
			return nil, apperrors.Validation("RELAY_NO_HUB_COVERAGE",
				"no reachable hub advances the route",
				"load_id", load.ID, "remaining_miles", round1(toGo))
		}
		used[corridor[best].ID] = true
		junctions = append(junctions, corridor[best])
		cur = corridor[best].Location
	}
	return junctions, nil
}

// routeLegs expands pickup → junctions → delivery into per-segment
// geometry.
func routeLegs(p *Planner, load model.Load, junctions []model.SmartHub) []leg {
	points := make([]geo.Point, 0, len(junctions)+2)
	points = append(points, load.Pickup.Location)
	for _, h := range junctions {
		points = append(points, h.Location)
	}
	points = append(points, load.Delivery.Location)

	legs := make([]leg, len(points)-1)
	for i := range legs {
		miles := geo.DistanceMiles(points[i], points[i+1])
		legs[i] = leg{
			start:    points[i],
			end:      points[i+1],
			miles:    miles,
			duration: p.travel(miles),
		}
	}
	return legs
}

// candidateDrivers resolves the driver pool: the explicit ids when given,
// otherwise every available driver in the job's region. Equipment must
// match the load.
func (p *Planner) candidateDrivers(ctx context.Context, params model.JobParameters, load model.Load) ([]model.Driver, error) {
	var pool []model.Driver
	if len(params.DriverIDs) > 0 {
		for _, id := range params.DriverIDs {
			d, err := p.drivers.Get(ctx, id)
			if err != nil {
				return nil, err
			}
			if d.Available {
				pool = append(pool, d)
			}
		}
	} else {
		all, err := p.drivers.ListAvailable(ctx, params.Region)
		if err != nil {
			return nil, err
		}
		pool = all
	}

	out := make([]model.Driver, 0, len(pool))
	for _, d := range pool {
		if load.RequiredEquipment != "" && d.Equipment != load.RequiredEquipment {
			continue
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// driverScore weighs how well a driver fits a segment: closeness to the
// start, how near home the segment drops them, and whether their
// remaining hours cover the leg.
func (p *Planner) driverScore(d model.Driver, lg leg) float64 {
	toStart := 1 - geo.DistanceMiles(d.Position, lg.start)/driverRangeMiles
	toHome := 1 - geo.DistanceMiles(lg.end, d.HomeBase)/driverRangeMiles
	hos := 0.0
	if d.DrivingMinutesRemaining >= lg.duration.Minutes() {
		hos = 1
	}
	return weightStartProximity*math.Max(0, toStart) +
		weightHomeProximity*math.Max(0, toHome) +
		weightHOS*hos
}

// assignDrivers solves the segment → driver assignment exactly. Each
// segment shortlists its |segments| best-scoring drivers; some optimal
// 1-to-1 assignment always lies inside the union of shortlists, because a
// segment assigned off its shortlist can swap onto an unused shortlisted
// driver without lowering the total. Ties on total score go to the
// lexicographically smallest driver-id tuple.
func (p *Planner) assignDrivers(legs []leg, pool []model.Driver) []model.Driver {
	n := len(legs)
	scores := make([][]float64, n)
	for i, lg := range legs {
		scores[i] = make([]float64, len(pool))
		for j, d := range pool {
			scores[i][j] = p.driverScore(d, lg)
		}
	}
	candidates := shortlist(scores, pool, n)

	best := make([]int, 0, n)
	cur := make([]int, 0, n)
	bestTotal := math.Inf(-1)
	used := make([]bool, len(pool))
	var walk func(seg int, total float64)
	walk = func(seg int, total float64) {
		if seg == n {
			if total > bestTotal+scoreEps ||
				(math.Abs(total-bestTotal) <= scoreEps && lowerIDs(cur, best, pool)) {
				bestTotal = total
				best = append(best[:0], cur...)
			}
			return
		}
		for _, j := range candidates {
			if used[j] {
				continue
			}
			used[j] = true
			cur = append(cur, j)
			walk(seg+1, total+scores[seg][j])
			cur = cur[:len(cur)-1]
			used[j] = false
		}
	}
	walk(0, 0)

	out := make([]model.Driver, n)
	for i, j := range best {
		out[i] = pool[j]
	}
	return out
}

// shortlist returns the union, in pool order, of each segment's top-k
// drivers by score, ties to the smaller id.
func shortlist(scores [][]float64, pool []model.Driver, k int) []int {
	keep := make(map[int]bool)
	idx := make([]int, len(pool))
	for i := range scores {
		for j := range idx {
			idx[j] = j
		}
		sort.SliceStable(idx, func(a, b int) bool {
			if math.Abs(scores[i][idx[a]]-scores[i][idx[b]]) > scoreEps {
				return scores[i][idx[a]] > scores[i][idx[b]]
			}
			return pool[idx[a]].ID < pool[idx[b]].ID
		})
		for j := 0; j < k && j < len(idx); j++ {
			keep[idx[j]] = true
		}
	}
	out := make([]int, 0, len(keep))
	for j := range pool {
		if keep[j] {
			out = append(out, j)
		}
	}
	return out
}

// lowerIDs reports whether assignment a's driver-id tuple orders before
// b's.
func lowerIDs(a, b []int, pool []model.Driver) bool {
	for i := range a {
		if i >= len(b) {
			return false
		}
		if pool[a[i]].ID != pool[b[i]].ID {
			return pool[a[i]].ID < pool[b[i]].ID
		}
	}
	return false
}

// schedule lays the segments onto the clock and computes each exchange
// window. The first segment departs at the pickup-earliest time (falling
// back to the job window start, then to now); every later segment departs
// at its handoff's scheduled moment, the window lower bound.
func (p *Planner) schedule(load model.Load, params model.JobParameters, junctions []model.SmartHub, legs []leg, assigned []model.Driver) ([]model.RelaySegment, []model.Handoff, error) {
	departure := load.Pickup.Earliest
	if departure.IsZero() {
		departure = params.WindowStart
	}
	if departure.IsZero() {
		departure = time.Now().UTC()
	}

	segments := make([]model.RelaySegment, len(legs))
	handoffs := make([]model.Handoff, 0, len(legs)-1)
	start := departure
	for i, lg := range legs {
		segments[i] = model.RelaySegment{
			Index:             i,
			Start:             lg.start,
			End:               lg.end,
			DistanceMiles:     round1(lg.miles),
			EstimatedDuration: lg.duration,
			PlannedStart:      start,
			PlannedEnd:        start.Add(lg.duration),
			DriverID:          assigned[i].ID,
			Status:            model.SegmentPlanned,
		}
		if i == len(legs)-1 {
			break
		}

		incoming := assigned[i+1]
		etaOut := segments[i].PlannedEnd
		etaIn := departure.Add(p.travel(geo.DistanceMiles(incoming.Position, junctions[i].Location)))
		winStart := etaOut
		if etaIn.After(winStart) {
			winStart = etaIn
		}
		winStart = winStart.Add(handoffLead)

		winEnd := winStart
		if !load.Delivery.Latest.IsZero() {
			var remaining time.Duration
			for _, rest := range legs[i+1:] {
				remaining += rest.duration
			}
			winEnd = load.Delivery.Latest.Add(-remaining - deliveryReserve)
		}
		if winEnd.Before(winStart) {
			return nil, nil, apperrors.Validation("RELAY_NO_EXCHANGE_WINDOW",
				"exchange window is empty",
				"handoff", i,
				"hub_id", junctions[i].ID,
				"window_start", winStart.Format(time.RFC3339),
				"window_end", winEnd.Format(time.RFC3339))
		}
		handoffs = append(handoffs, model.Handoff{
			Index:            i,
			HubID:            junctions[i].ID,
			HubName:          junctions[i].Name,
			HubLocation:      junctions[i].Location,
			Scheduled:        winStart,
			WindowStart:      winStart,
			WindowEnd:        winEnd,
			OutgoingDriverID: assigned[i].ID,
			IncomingDriverID: incoming.ID,
			Status:           model.HandoffScheduled,
		})
		start = winStart
	}
	return segments, handoffs, nil
}

// validate rejects plans that breach the segment caps, HOS, or the load
// windows. Structural invariants are the model's job.
func (p *Planner) validate(plan model.RelayPlan, assigned []model.Driver, load model.Load) error {
	if err := plan.Validate(); err != nil {
		return apperrors.Internal("RELAY_PLAN_MALFORMED", "planner produced a malformed plan", err)
	}
	for i, seg := range plan.Segments {
		if seg.DistanceMiles > p.cfg.MaxSegmentMiles+eligibilityEps {
			return apperrors.Validation("RELAY_SEGMENT_TOO_LONG",
				"segment exceeds the distance cap",
				"segment", i, "distance_miles", seg.DistanceMiles)
		}
		if seg.EstimatedDuration > p.cfg.MaxSegmentDuration {
			return apperrors.Validation("RELAY_SEGMENT_DURATION",
				"segment exceeds the duration cap",
				"segment", i, "hours", round1(seg.EstimatedDuration.Hours()))
		}
		if assigned[i].DrivingMinutesRemaining < seg.EstimatedDuration.Minutes() {
			return apperrors.Validation("RELAY_HOS_EXCEEDED",
				"assigned driver lacks hours of service for the segment",
				"segment", i, "driver_id", assigned[i].ID)
		}
	}
	first := plan.Segments[0]
	last := plan.Segments[len(plan.Segments)-1]
	if !load.Pickup.Latest.IsZero() && first.PlannedStart.After(load.Pickup.Latest) {
		return apperrors.Validation("RELAY_PICKUP_WINDOW",
			"first segment misses the pickup window", "load_id", load.ID)
	}
	if !load.Delivery.Latest.IsZero() && last.PlannedEnd.After(load.Delivery.Latest) {
		return apperrors.Validation("RELAY_DELIVERY_WINDOW",
			"plan misses the delivery deadline", "load_id", load.ID)
	}
	return nil
}

// planMetrics compares the relay against a direct haul run by the first
// segment's driver. Deadhead for either shape is the approach to the
// first wheel turn plus the run home after the last.
func (p *Planner) planMetrics(segments []model.RelaySegment, assigned []model.Driver, load model.Load, direct float64) model.RelayMetrics {
	var total, relayEmpty, homeGain float64
	for i, seg := range segments {
		d := assigned[i]
		total += seg.DistanceMiles
		relayEmpty += geo.DistanceMiles(d.Position, seg.Start) + geo.DistanceMiles(seg.End, d.HomeBase)
		homeGain += geo.DistanceMiles(d.Position, d.HomeBase) - geo.DistanceMiles(seg.End, d.HomeBase)
	}
	lead := assigned[0]
	directEmpty := geo.DistanceMiles(lead.Position, load.Pickup.Location) +
		geo.DistanceMiles(load.Delivery.Location, lead.HomeBase)

	reduction := 0.0
	if directEmpty > 0 {
		reduction = (directEmpty - relayEmpty) / directEmpty * 100
	}
	milesSaved := (direct + directEmpty) - (total + relayEmpty)

	detour := 0.0
	if total > 0 {
		detour = direct / total
	}
	saved := math.Min(1, math.Max(0, reduction/100))
	efficiency := 100 * (0.5*detour + 0.5*saved)

	return model.RelayMetrics{
		EmptyMilesReductionPct: round1(reduction),
		HomeTimeImprovement:    round1(homeGain),
		CostSavings:            math.Round(milesSaved*model.DefaultRatePerMile*100) / 100,
		CO2ReductionKg:         round1(milesSaved * model.CO2KgPerMile),
		TotalDistanceMiles:     round1(total),
		DirectDistanceMiles:    round1(direct),
		EfficiencyScore:        round1(math.Min(100, math.Max(0, efficiency))),
	}
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }
