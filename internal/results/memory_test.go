package results

import (
	"context"
	"testing"

	"freightflow/internal/apperrors"
	"freightflow/internal/model"
)

func TestMemoryStoreWriteOnce(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	// 1. First result for the job lands.
	r, err := store.Create(ctx, model.Result{JobID: "J-1", Kind: model.JobLoadMatching})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if r.ID == "" {
		t.Error("Expected a minted result id")
	}
	if r.CreatedAt.IsZero() {
		t.Error("Expected created_at to be stamped")
	}

	// 2. A second result for the same job is a conflict.
	_, err = store.Create(ctx, model.Result{JobID: "J-1", Kind: model.JobLoadMatching})
	if apperrors.CategoryOf(err) != apperrors.CategoryConflict {
		t.Errorf("Expected conflict for duplicate job result, got %v", err)
	}

	// 3. Reusing a result id is a conflict too.
	_, err = store.Create(ctx, model.Result{ID: r.ID, JobID: "J-2", Kind: model.JobLoadMatching})
	if apperrors.CategoryOf(err) != apperrors.CategoryConflict {
		t.Errorf("Expected conflict for duplicate result id, got %v", err)
	}
}

func TestMemoryStoreLookups(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	r, err := store.Create(ctx, model.Result{
		JobID: "J-7",
		Kind:  model.JobNetworkOptimize,
		Matches: []model.LoadMatch{
			{DriverID: "D-1", LoadID: "L-1", Score: 0.91},
		},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	byID, err := store.Get(ctx, r.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(byID.Matches) != 1 || byID.Matches[0].DriverID != "D-1" {
		t.Errorf("Expected the stored match back, got %v", byID.Matches)
	}

	byJob, err := store.GetByJob(ctx, "J-7")
	if err != nil {
		t.Fatalf("GetByJob: %v", err)
	}
	if byJob.ID != r.ID {
		t.Errorf("Expected result %s via job index, got %s", r.ID, byJob.ID)
	}

	if _, err := store.Get(ctx, "missing"); apperrors.CategoryOf(err) != apperrors.CategoryResource {
		t.Errorf("Expected not-found for missing id, got %v", err)
	}
	if _, err := store.GetByJob(ctx, "missing"); apperrors.CategoryOf(err) != apperrors.CategoryResource {
		t.Errorf("Expected not-found for missing job, got %v", err)
	}
}

func TestMemoryStoreRejectsMissingJobID(t *testing.T) {
	store := NewMemoryStore()
	_, err := store.Create(context.Background(), model.Result{Kind: model.JobLoadMatching})
	if apperrors.CategoryOf(err) != apperrors.CategoryValidation {
		t.Errorf("Expected validation failure, got %v", err)
	}
}

func TestMemoryStoreSnapshotRoundTrip(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store := NewMemoryStore()
	r, err := store.Create(ctx, model.Result{
		JobID:   "J-1",
		Kind:    model.JobSmartHubID,
		Hubs:    []model.HubRecommendation{{Score: 72.5, ClusterSize: 9}},
		Network: &model.NetworkMetrics{TotalLoads: 12, MatchedLoads: 9},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := store.SaveSnapshot(dir); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}

	restored := NewMemoryStore()
	if err := restored.LoadSnapshot(dir); err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	got, err := restored.Get(ctx, r.ID)
	if err != nil {
		t.Fatalf("Get after restore: %v", err)
	}
	if len(got.Hubs) != 1 || got.Network == nil || got.Network.MatchedLoads != 9 {
		t.Errorf("Restored result mismatch: %+v", got)
	}

	// The job index is rebuilt, so write-once still holds after restore.
	if _, err := restored.Create(ctx, model.Result{JobID: "J-1", Kind: model.JobSmartHubID}); err == nil {
		t.Error("Expected write-once to survive the snapshot round trip")
	}
}
