package optimize

import (
	"context"
	"testing"

	"freightflow/internal/model"
)

// handProblem builds a Problem from explicit weights; entries[d][l] < 0
// marks an infeasible pair.
func handProblem(entries [][]float64) *Problem {
	nd := len(entries)
	nl := 0
	if nd > 0 {
		nl = len(entries[0])
	}
	p := &Problem{
		Drivers: make([]model.Driver, nd),
		Loads:   make([]model.Load, nl),
		Pairs:   make([][]Pair, nd),
	}
	for d := 0; d < nd; d++ {
		p.Drivers[d] = model.Driver{ID: string(rune('a' + d))}
		for l := 0; l < nl; l++ {
			w := entries[d][l]
			if w < 0 {
				continue
			}
			p.Pairs[d] = append(p.Pairs[d], Pair{
				DriverIdx:   d,
				LoadIdx:     l,
				Weight:      w,
				EmptyMiles:  10,
				LoadedMiles: 100,
				Breakdown:   map[string]float64{},
			})
		}
	}
	for l := 0; l < nl; l++ {
		p.Loads[l] = model.Load{ID: string(rune('A' + l))}
	}
	return p
}

func TestBranchBound_BeatsGreedy(t *testing.T) {
	// Greedy takes a:A (0.9) and strands b; the optimum routes a to B.
	p := handProblem([][]float64{
		{0.90, 0.80, -1},
		{0.85, -1, -1},
		{-1, -1, 0.50},
	})

	sol, err := (&BranchBound{}).Solve(context.Background(), p)
	if err != nil {
		t.Fatalf("Solve failed: %v", err)
	}

	want := []int{1, 0, 2} // a:B, b:A, c:C
	for d, l := range want {
		if sol.Assigned[d] != l {
			t.Errorf("Expected driver %d on load %d, got %d", d, l, sol.Assigned[d])
		}
	}
	if diff := sol.Objective - 2.15; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("Expected objective 2.15, got %v", sol.Objective)
	}
}

func TestBranchBound_InfeasibleProblem(t *testing.T) {
	p := handProblem([][]float64{
		{-1, -1},
		{-1, -1},
	})

	sol, err := (&BranchBound{}).Solve(context.Background(), p)
	if err != nil {
		t.Fatalf("Solve failed: %v", err)
	}
	if sol.AssignedCount() != 0 {
		t.Errorf("Expected empty assignment, got %v", sol.Assigned)
	}
	if sol.Reason != ReasonNoFeasiblePairs {
		t.Errorf("Expected reason %q, got %q", ReasonNoFeasiblePairs, sol.Reason)
	}
}

func TestBranchBound_LexicographicTieBreak(t *testing.T) {
	// One load, two identical drivers. Objective and empty share tie, so
	// the lexicographically smaller driver id wins.
	p := handProblem([][]float64{
		{0.7},
		{0.7},
	})

	sol, err := (&BranchBound{}).Solve(context.Background(), p)
	if err != nil {
		t.Fatalf("Solve failed: %v", err)
	}
	if sol.Assigned[0] != 0 || sol.Assigned[1] != -1 {
		t.Errorf("Expected driver a to take the load, got %v", sol.Assigned)
	}
}

func TestBranchBound_EmptyPctTieBreak(t *testing.T) {
	// Same objective either way; the b:A pairing carries fewer empty miles.
	p := &Problem{
		Drivers: []model.Driver{{ID: "a"}, {ID: "b"}},
		Loads:   []model.Load{{ID: "A"}},
		Pairs: [][]Pair{
			{{DriverIdx: 0, LoadIdx: 0, Weight: 0.5, EmptyMiles: 50, LoadedMiles: 100}},
			{{DriverIdx: 1, LoadIdx: 0, Weight: 0.5, EmptyMiles: 5, LoadedMiles: 100}},
		},
	}

	sol, err := (&BranchBound{}).Solve(context.Background(), p)
	if err != nil {
		t.Fatalf("Solve failed: %v", err)
	}
	if sol.Assigned[1] != 0 {
		t.Errorf("Expected the lower-empty-miles driver b to win, got %v", sol.Assigned)
	}
}

func TestBranchBound_NodeBudget(t *testing.T) {
	p := handProblem([][]float64{
		{0.9, 0.8},
		{0.7, 0.6},
	})
	p.MaxNodes = 1

	sol, err := (&BranchBound{}).Solve(context.Background(), p)
	if err != nil {
		t.Fatalf("Solve failed: %v", err)
	}
	if sol.AssignedCount() != 0 {
		t.Errorf("Expected no assignment under a one-node budget, got %v", sol.Assigned)
	}
	if sol.Reason != ReasonBudgetExhausted {
		t.Errorf("Expected reason %q, got %q", ReasonBudgetExhausted, sol.Reason)
	}
}

func TestBranchBound_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := handProblem([][]float64{{0.9}})
	_, err := (&BranchBound{}).Solve(ctx, p)
	if err == nil {
		t.Error("Expected context error from cancelled solve")
	}
}

func TestBranchBound_LargerInstanceIsExact(t *testing.T) {
	// 6 drivers x 6 loads, diagonal dominance with decoys. The optimum is
	// the anti-diagonal at 0.9 each.
	entries := make([][]float64, 6)
	for d := range entries {
		entries[d] = make([]float64, 6)
		for l := range entries[d] {
			entries[d][l] = 0.10
		}
		entries[d][5-d] = 0.90
	}
	p := handProblem(entries)

	sol, err := (&BranchBound{}).Solve(context.Background(), p)
	if err != nil {
		t.Fatalf("Solve failed: %v", err)
	}
	if diff := sol.Objective - 5.4; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("Expected objective 5.4, got %v", sol.Objective)
	}
	for d := 0; d < 6; d++ {
		if sol.Assigned[d] != 5-d {
			t.Errorf("Expected driver %d on load %d, got %d", d, 5-d, sol.Assigned[d])
		}
	}
}
