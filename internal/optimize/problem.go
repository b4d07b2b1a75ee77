// Package optimize builds and solves the driver-load assignment problem: a
// binary program over (driver, load) pairs maximizing weighted pairing
// efficiency, solved by a branch-and-bound Solver. An infeasible problem is
// an answer (empty assignment with a reason), never an error.
package optimize

import (
	"math"
	"time"

	"freightflow/internal/geo"
	"freightflow/internal/model"
)

// DefaultSpeedMPH is the planning speed when the job carries none.
const DefaultSpeedMPH = 55.0

// Default objective weights, applied per factor when the job leaves it
// zero. They sum to 1.
const (
	DefaultWeightEmptyMiles = 0.4
	DefaultWeightNetwork    = 0.3
	DefaultWeightPreference = 0.2
	DefaultWeightHOS        = 0.1
)

// neutralPreference is the preference bonus for a driver with no stated
// region preferences.
const neutralPreference = 0.5

// softViolationDamping scales a pair's weight down per violated soft
// constraint, proportional to the constraint's weight.
const softViolationDamping = 0.5

// Pair is one feasible (driver, load) pairing with its objective weight
// and per-factor breakdown.
type Pair struct {
	DriverIdx   int
	LoadIdx     int
	Weight      float64
	EmptyMiles  float64
	LoadedMiles float64
	// EmptyMilesSaved is the approach-distance advantage over the worst
	// feasible candidate for the load.
	EmptyMilesSaved float64
	Breakdown       map[string]float64
}

// Problem is the assignment instance handed to a Solver. Pairs holds only
// feasible pairings; hard-infeasible combinations are absent.
type Problem struct {
	Drivers []model.Driver
	Loads   []model.Load
	// Pairs[d] lists driver d's feasible pairings, load index ascending.
	Pairs [][]Pair
	// MaxNodes carries the job's iteration cap to the solver; 0 = default.
	MaxNodes int
}

// PairCount is the number of feasible pairings across all drivers.
func (p *Problem) PairCount() int {
	n := 0
	for _, pairs := range p.Pairs {
		n += len(pairs)
	}
	return n
}

// effectiveWeights fills zero factors with the defaults.
func effectiveWeights(w model.Weights) model.Weights {
	if w.EmptyMiles == 0 && w.Network == 0 && w.Preference == 0 && w.HOS == 0 {
		return model.Weights{
			EmptyMiles: DefaultWeightEmptyMiles,
			Network:    DefaultWeightNetwork,
			Preference: DefaultWeightPreference,
			HOS:        DefaultWeightHOS,
		}
	}
	return w
}

// BuildProblem constructs the pair matrix for the given fleet snapshot.
// Feasibility applies the hard cuts: equipment equality, HOS sufficiency
// at the job speed, pickup/delivery window reachability from the window
// start, and hard constraints. Soft constraints dampen the pair weight
// instead of cutting it.
func BuildProblem(drivers []model.Driver, loads []model.Load, params model.JobParameters) *Problem {
	speed := params.SpeedFactorMPH
	if speed <= 0 {
		speed = DefaultSpeedMPH
	}
	weights := effectiveWeights(params.Weights)

	ref := params.WindowStart
	if ref.IsZero() {
		ref = time.Now().UTC()
	}

	p := &Problem{
		Drivers:  drivers,
		Loads:    loads,
		Pairs:    make([][]Pair, len(drivers)),
		MaxNodes: params.MaxIterations,
	}

	// Baseline empty miles per load: the worst feasible approach distance,
	// the reference the network component and savings are measured against.
	type approach struct {
		driverIdx int
		empty     float64
	}
	feasible := make([][]approach, len(loads))

	for di, d := range drivers {
		for li, l := range loads {
			empty := geo.DistanceMiles(d.Position, l.Pickup.Location)
			if !pairFeasible(d, l, empty, speed, ref, params.Constraints) {
				continue
			}
			feasible[li] = append(feasible[li], approach{driverIdx: di, empty: empty})
		}
	}

	worstEmpty := make([]float64, len(loads))
	for li, apps := range feasible {
		for _, a := range apps {
			if a.empty > worstEmpty[li] {
				worstEmpty[li] = a.empty
			}
		}
	}

	for li, apps := range feasible {
		l := loads[li]
		loaded := l.DirectDistanceMiles()
		for _, a := range apps {
			d := drivers[a.driverIdx]
			pair := scorePair(d, l, a.empty, loaded, worstEmpty[li], speed, weights, params.Constraints)
			pair.DriverIdx = a.driverIdx
			pair.LoadIdx = li
			p.Pairs[a.driverIdx] = append(p.Pairs[a.driverIdx], pair)
		}
	}

	// Deterministic order inside each driver's list.
	for di := range p.Pairs {
		pairs := p.Pairs[di]
		for i := 1; i < len(pairs); i++ {
			for j := i; j > 0 && pairs[j].LoadIdx < pairs[j-1].LoadIdx; j-- {
				pairs[j], pairs[j-1] = pairs[j-1], pairs[j]
			}
		}
	}
	return p
}

// pairFeasible applies the hard cuts for one (driver, load) combination.
func pairFeasible(d model.Driver, l model.Load, emptyMiles, speedMPH float64, ref time.Time, constraints []model.Constraint) bool {
	// 1. Equipment equality.
	if d.Equipment != l.RequiredEquipment {
		return false
	}

	// 2. HOS: reach pickup and deliver within remaining driving minutes.
	loaded := l.DirectDistanceMiles()
	requiredMin := (emptyMiles + loaded) / speedMPH * 60
	if d.DrivingMinutesRemaining < requiredMin {
		return false
	}

	// 3. Time windows, measured from the job window start.
	arriveAtPickup := ref.Add(minutesDur(emptyMiles / speedMPH * 60))
	if !l.Pickup.Latest.IsZero() && arriveAtPickup.After(l.Pickup.Latest) {
		return false
	}
	departPickup := arriveAtPickup
	if !l.Pickup.Earliest.IsZero() && departPickup.Before(l.Pickup.Earliest) {
		departPickup = l.Pickup.Earliest
	}
	arriveAtDelivery := departPickup.Add(minutesDur(loaded / speedMPH * 60))
	if !l.Delivery.Latest.IsZero() && arriveAtDelivery.After(l.Delivery.Latest) {
		return false
	}

	// 4. Hard constraints cut; soft ones are priced later.
	for _, c := range constraints {
		if !c.Hard {
			continue
		}
		if !constraintSatisfied(c, d, l, emptyMiles) {
			return false
		}
	}
	return true
}

// constraintSatisfied evaluates one constraint variant against a pairing.
func constraintSatisfied(c model.Constraint, d model.Driver, l model.Load, emptyMiles float64) bool {
	switch c.Kind {
	case model.ConstraintMaxWeight:
		return l.WeightLbs <= c.MaxWeightLbs
	case model.ConstraintMinHours:
		return d.DrivingMinutesRemaining >= c.MinHours*60
	case model.ConstraintEquipmentType:
		return l.RequiredEquipment == c.Equipment
	case model.ConstraintRegion:
		return l.Region == c.Region
	case model.ConstraintMaxEmptyMiles:
		return emptyMiles <= c.MaxEmptyMiles
	}
	return true
}

// scorePair computes the objective weight and its per-factor breakdown for
// a feasible pairing.
func scorePair(d model.Driver, l model.Load, empty, loaded, worstEmpty, speedMPH float64, w model.Weights, constraints []model.Constraint) Pair {
	// Empty-miles factor: share of the trip spent loaded.
	emptyFactor := 0.0
	if empty+loaded > 0 {
		emptyFactor = 1 - empty/(empty+loaded)
	}

	// Network factor: approach-distance advantage over the worst feasible
	// candidate for this load. The lone candidate scores zero.
	network := 0.0
	if worstEmpty > 0 {
		network = (worstEmpty - empty) / worstEmpty
	}

	// Preference factor: stated region preference, neutral when the driver
	// has none.
	pref := neutralPreference
	if len(d.PreferredRegions) > 0 {
		pref = 0
		if l.Region != "" && d.PrefersRegion(l.Region) {
			pref = 1
		}
	}

	// HOS factor: headroom left after the trip.
	hos := 0.0
	if d.DrivingMinutesRemaining > 0 {
		required := (empty + loaded) / speedMPH * 60
		hos = math.Max(0, 1-required/d.DrivingMinutesRemaining)
	}

	weight := emptyFactor*w.EmptyMiles + network*w.Network + pref*w.Preference + hos*w.HOS

	// Violated soft constraints dampen the pair rather than cutting it.
	for _, c := range constraints {
		if c.Hard || constraintSatisfied(c, d, l, empty) {
			continue
		}
		damp := c.Weight
		if damp <= 0 || damp > 1 {
			damp = 1
		}
		weight *= 1 - softViolationDamping*damp
	}

	return Pair{
		Weight:          weight,
		EmptyMiles:      empty,
		LoadedMiles:     loaded,
		EmptyMilesSaved: worstEmpty - empty,
		Breakdown: map[string]float64{
			"empty_miles": emptyFactor,
			"network":     network,
			"preference":  pref,
			"hos":         hos,
		},
	}
}

func minutesDur(min float64) time.Duration {
	return time.Duration(min * float64(time.Minute))
}
