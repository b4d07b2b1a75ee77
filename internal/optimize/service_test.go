package optimize

import (
	"context"
	"testing"
	"time"

	"freightflow/internal/fleet"
	"freightflow/internal/geo"
	"freightflow/internal/model"
)

func newFleet(t *testing.T, drivers []model.Driver, loads []model.Load) (*fleet.MemoryDrivers, *fleet.MemoryLoads) {
	t.Helper()
	ctx := context.Background()
	dr := fleet.NewMemoryDrivers()
	for _, d := range drivers {
		if err := dr.Upsert(ctx, d); err != nil {
			t.Fatalf("Upsert driver failed: %v", err)
		}
	}
	lr := fleet.NewMemoryLoads(dr)
	for _, l := range loads {
		if err := lr.Upsert(ctx, l); err != nil {
			t.Fatalf("Upsert load failed: %v", err)
		}
	}
	return dr, lr
}

func TestOptimizer_SimpleMatch(t *testing.T) {
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	d1 := tractorDriver("D1", geo.Point{Lat: 41.88, Lon: -87.63}, 600)
	l1 := tractorLoad("L1", geo.Point{Lat: 41.90, Lon: -87.60}, geo.Point{Lat: 39.76, Lon: -86.16}, start)

	dr, lr := newFleet(t, []model.Driver{d1}, []model.Load{l1})
	opt := NewOptimizer(dr, lr, nil)

	out, err := opt.Optimize(context.Background(), model.JobParameters{
		WindowStart: start,
		WindowEnd:   start.Add(time.Hour),
		Weights:     model.Weights{EmptyMiles: 0.6, Preference: 0.2, HOS: 0.2},
	}, func(float64) {})
	if err != nil {
		t.Fatalf("Optimize failed: %v", err)
	}

	if len(out.Matches) != 1 {
		t.Fatalf("Expected 1 match, got %d (reason %q)", len(out.Matches), out.Reason)
	}
	m := out.Matches[0]
	if m.DriverID != "D1" || m.LoadID != "L1" {
		t.Errorf("Expected D1 on L1, got %s on %s", m.DriverID, m.LoadID)
	}
	if m.EmptyMiles < 1.8 || m.EmptyMiles > 2.6 {
		t.Errorf("Expected empty miles near 2, got %f", m.EmptyMiles)
	}
	if m.Score <= 70 {
		t.Errorf("Expected score above 70, got %f", m.Score)
	}
	if m.EstimatedEarnings <= 0 {
		t.Errorf("Expected positive earnings, got %f", m.EstimatedEarnings)
	}

	n := out.Network
	if n.TotalLoads != 1 || n.MatchedLoads != 1 || n.TotalDrivers != 1 || n.MatchedDrivers != 1 {
		t.Errorf("Unexpected network counts: %+v", n)
	}
	if n.EmptyMilesPct <= 0 || n.EmptyMilesPct >= 5 {
		t.Errorf("Expected small positive empty pct, got %f", n.EmptyMilesPct)
	}
	if n.EfficiencyScore <= 90 {
		t.Errorf("Expected high efficiency for a full match, got %f", n.EfficiencyScore)
	}
}

func TestOptimizer_EquipmentRejection(t *testing.T) {
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	d := tractorDriver("D1", chicago, 600)
	d.Equipment = model.EquipmentFlatbed
	l := tractorLoad("L1", chicago, indianapolis, start)
	l.RequiredEquipment = model.EquipmentReefer

	dr, lr := newFleet(t, []model.Driver{d}, []model.Load{l})
	opt := NewOptimizer(dr, lr, nil)

	out, err := opt.Optimize(context.Background(), model.JobParameters{
		WindowStart: start,
		WindowEnd:   start.Add(time.Hour),
	}, func(float64) {})
	if err != nil {
		t.Fatalf("Optimize failed: %v", err)
	}

	if len(out.Matches) != 0 {
		t.Errorf("Expected no matches for mismatched equipment, got %d", len(out.Matches))
	}
	if out.Network.MatchedLoads != 0 {
		t.Errorf("Expected matched_loads 0, got %d", out.Network.MatchedLoads)
	}
	if out.Reason == "" {
		t.Error("Expected an infeasibility reason")
	}
}

func TestOptimizer_ScopedToLoadID(t *testing.T) {
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	d := tractorDriver("D1", chicago, 600)
	l1 := tractorLoad("L1", chicago, indianapolis, start)
	l2 := tractorLoad("L2", chicago, indianapolis, start)

	dr, lr := newFleet(t, []model.Driver{d}, []model.Load{l1, l2})
	opt := NewOptimizer(dr, lr, nil)

	out, err := opt.Optimize(context.Background(), model.JobParameters{
		WindowStart: start,
		WindowEnd:   start.Add(time.Hour),
		LoadID:      "L2",
	}, func(float64) {})
	if err != nil {
		t.Fatalf("Optimize failed: %v", err)
	}
	if len(out.Matches) != 1 || out.Matches[0].LoadID != "L2" {
		t.Errorf("Expected the job scoped to L2, got %+v", out.Matches)
	}
	if out.Network.TotalLoads != 1 {
		t.Errorf("Expected scope of 1 load, got %d", out.Network.TotalLoads)
	}
}

func TestOptimizer_NamedLoadNotAvailable(t *testing.T) {
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	d := tractorDriver("D1", chicago, 600)
	l := tractorLoad("L1", chicago, indianapolis, start)
	l.Status = model.LoadPending

	dr, lr := newFleet(t, []model.Driver{d}, []model.Load{l})
	opt := NewOptimizer(dr, lr, nil)

	out, err := opt.Optimize(context.Background(), model.JobParameters{
		WindowStart: start,
		WindowEnd:   start.Add(time.Hour),
		LoadID:      "L1",
	}, func(float64) {})
	if err != nil {
		t.Fatalf("Optimize failed: %v", err)
	}
	if len(out.Matches) != 0 {
		t.Errorf("Expected no matches for a PENDING load, got %d", len(out.Matches))
	}
	if out.Reason == "" {
		t.Error("Expected a reason naming the load state")
	}
}

func TestOptimizer_TwoDriversOneCloser(t *testing.T) {
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	near := tractorDriver("near", geo.Point{Lat: 41.90, Lon: -87.65}, 600)
	far := tractorDriver("far", geo.Point{Lat: 41.70, Lon: -87.90}, 600)
	l := tractorLoad("L1", geo.Point{Lat: 41.90, Lon: -87.60}, indianapolis, start)

	dr, lr := newFleet(t, []model.Driver{near, far}, []model.Load{l})
	opt := NewOptimizer(dr, lr, nil)

	out, err := opt.Optimize(context.Background(), model.JobParameters{
		WindowStart: start,
		WindowEnd:   start.Add(time.Hour),
	}, func(float64) {})
	if err != nil {
		t.Fatalf("Optimize failed: %v", err)
	}
	if len(out.Matches) != 1 {
		t.Fatalf("Expected 1 match, got %d", len(out.Matches))
	}
	m := out.Matches[0]
	if m.DriverID != "near" {
		t.Errorf("Expected the closer driver to win, got %s", m.DriverID)
	}
	// The winner's saving is measured against the worst feasible approach.
	if m.EmptyMilesSaved <= 0 {
		t.Errorf("Expected positive empty-miles saving, got %f", m.EmptyMilesSaved)
	}
	if m.NetworkContribution <= 0 {
		t.Errorf("Expected positive network contribution, got %f", m.NetworkContribution)
	}
}

func TestOptimizer_ProgressMilestones(t *testing.T) {
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	d := tractorDriver("D1", chicago, 600)
	l := tractorLoad("L1", chicago, indianapolis, start)

	dr, lr := newFleet(t, []model.Driver{d}, []model.Load{l})
	opt := NewOptimizer(dr, lr, nil)

	var seen []float64
	_, err := opt.Optimize(context.Background(), model.JobParameters{
		WindowStart: start,
		WindowEnd:   start.Add(time.Hour),
	}, func(pct float64) { seen = append(seen, pct) })
	if err != nil {
		t.Fatalf("Optimize failed: %v", err)
	}
	if len(seen) < 3 {
		t.Fatalf("Expected at least 3 progress milestones, got %v", seen)
	}
	for i := 1; i < len(seen); i++ {
		if seen[i] < seen[i-1] {
			t.Errorf("Progress went backwards: %v", seen)
		}
	}
}
