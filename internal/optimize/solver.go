package optimize

import (
	"context"
	"sort"
)

// Solution is a solver's answer. Assigned[d] holds the load index taken by
// driver d, or -1. Reason is set when nothing could be assigned.
type Solution struct {
	Assigned  []int
	Objective float64
	Nodes     int
	Reason    string
}

// AssignedCount is the number of x=1 pairs in the solution.
func (s Solution) AssignedCount() int {
	n := 0
	for _, li := range s.Assigned {
		if li >= 0 {
			n++
		}
	}
	return n
}

// Solver finds a maximum-objective assignment for a Problem. The solver is
// a collaborator; implementations must treat an infeasible problem as a
// valid empty answer.
type Solver interface {
	Solve(ctx context.Context, p *Problem) (Solution, error)
}

// Infeasibility reasons.
const (
	ReasonNoFeasiblePairs = "no feasible driver-load pairs"
	ReasonBudgetExhausted = "node budget exhausted before a feasible assignment"
)

// DefaultMaxNodes bounds the search when the job sets no iteration cap.
const DefaultMaxNodes = 200_000

const objectiveEps = 1e-9

// BranchBound is the in-process exact solver: depth-first branch and bound
// over drivers with an admissible fractional bound (per-driver best pair,
// load conflicts ignored). Exact on the instance sizes jobs produce; the
// node budget caps pathological inputs.
type BranchBound struct {
	// MaxNodes limits explored nodes; <= 0 selects DefaultMaxNodes.
	MaxNodes int
}

func (s *BranchBound) Solve(ctx context.Context, p *Problem) (Solution, error) {
	n := len(p.Drivers)
	empty := Solution{Assigned: filledInt(n, -1)}

	if p.PairCount() == 0 {
		empty.Reason = ReasonNoFeasiblePairs
		return empty, nil
	}

	budget := p.MaxNodes
	if budget <= 0 {
		budget = s.MaxNodes
	}
	if budget <= 0 {
		budget = DefaultMaxNodes
	}

	// Branch order: best weight first so good incumbents arrive early and
	// tighten the bound; load index breaks weight ties deterministically.
	order := make([][]Pair, n)
	bestPair := make([]float64, n)
	for di, pairs := range p.Pairs {
		order[di] = append([]Pair(nil), pairs...)
		sort.SliceStable(order[di], func(a, b int) bool {
			if order[di][a].Weight != order[di][b].Weight {
				return order[di][a].Weight > order[di][b].Weight
			}
			return order[di][a].LoadIdx < order[di][b].LoadIdx
		})
		if len(order[di]) > 0 {
			bestPair[di] = order[di][0].Weight
		}
	}

	// suffix[i] = best possible additional objective from drivers i..n-1,
	// ignoring load conflicts. Admissible, so pruning is safe.
	suffix := make([]float64, n+1)
	for i := n - 1; i >= 0; i-- {
		suffix[i] = suffix[i+1] + bestPair[i]
	}

	var (
		best         Solution
		hasIncumbent bool
		nodes        int
		stopped      bool
		cur          = filledInt(n, -1)
		usedLoads    = make([]bool, len(p.Loads))
	)

	var walk func(i int, value float64) error
	walk = func(i int, value float64) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		nodes++
		if nodes > budget {
			stopped = true
			return nil
		}

		if hasIncumbent && value+suffix[i] < best.Objective-objectiveEps {
			return nil
		}

		if i == n {
			cand := Solution{Assigned: append([]int(nil), cur...), Objective: value}
			if !hasIncumbent || betterSolution(cand, best, p) {
				best = cand
				hasIncumbent = true
			}
			return nil
		}

		for _, pair := range order[i] {
			if usedLoads[pair.LoadIdx] {
				continue
			}
			usedLoads[pair.LoadIdx] = true
			cur[i] = pair.LoadIdx
			if err := walk(i+1, value+pair.Weight); err != nil {
				return err
			}
			cur[i] = -1
			usedLoads[pair.LoadIdx] = false
			if stopped {
				return nil
			}
		}

		// Leave driver i unassigned.
		return walk(i+1, value)
	}

	if err := walk(0, 0); err != nil {
		return empty, err
	}

	if !hasIncumbent {
		empty.Reason = ReasonBudgetExhausted
		empty.Nodes = nodes
		return empty, nil
	}
	best.Nodes = nodes
	if best.AssignedCount() == 0 {
		best.Reason = ReasonNoFeasiblePairs
	}
	return best, nil
}

// betterSolution orders candidate solutions: higher objective, then lower
// empty-miles percentage, then lexicographically smallest assignment taken
// over drivers sorted by id.
func betterSolution(a, b Solution, p *Problem) bool {
	switch {
	case a.Objective > b.Objective+objectiveEps:
		return true
	case a.Objective < b.Objective-objectiveEps:
		return false
	}

	aPct, bPct := emptyPct(a, p), emptyPct(b, p)
	switch {
	case aPct < bPct-objectiveEps:
		return true
	case aPct > bPct+objectiveEps:
		return false
	}

	byID := make([]int, len(p.Drivers))
	for i := range byID {
		byID[i] = i
	}
	sort.Slice(byID, func(x, y int) bool { return p.Drivers[byID[x]].ID < p.Drivers[byID[y]].ID })

	for _, di := range byID {
		al, bl := a.Assigned[di], b.Assigned[di]
		if al == bl {
			continue
		}
		if al < 0 {
			return false
		}
		if bl < 0 {
			return true
		}
		return p.Loads[al].ID < p.Loads[bl].ID
	}
	return false
}

// emptyPct is the solution's empty-miles share of total miles, in [0,1].
// A solution moving no miles scores 0.
func emptyPct(s Solution, p *Problem) float64 {
	var empty, loaded float64
	for di, li := range s.Assigned {
		if li < 0 {
			continue
		}
		if pair, ok := findPair(p, di, li); ok {
			empty += pair.EmptyMiles
			loaded += pair.LoadedMiles
		}
	}
	if empty+loaded == 0 {
		return 0
	}
	return empty / (empty + loaded)
}

// findPair looks up the pair for (driver, load) in the problem matrix.
func findPair(p *Problem, driverIdx, loadIdx int) (Pair, bool) {
	for _, pair := range p.Pairs[driverIdx] {
		if pair.LoadIdx == loadIdx {
			return pair, true
		}
	}
	return Pair{}, false
}

func filledInt(n, v int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = v
	}
	return out
}
