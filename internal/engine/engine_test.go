package engine

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"freightflow/internal/api"
	"freightflow/internal/apperrors"
	"freightflow/internal/config"
	"freightflow/internal/geo"
	"freightflow/internal/jobs"
	"freightflow/internal/model"
	"freightflow/internal/pubsub"
)

var (
	chicago    = geo.Point{Lat: 41.8781, Lon: -87.6298}
	losAngeles = geo.Point{Lat: 34.0522, Lon: -118.2437}
)

func testConfig(t *testing.T) *config.AppConfig {
	t.Helper()
	return &config.AppConfig{
		StateDir:                t.TempDir(),
		MaxConcurrentJobs:       2,
		JobTimeout:              5 * time.Second,
		JobMaxAttempts:          2,
		RetryBase:               time.Millisecond,
		RetryCap:                5 * time.Millisecond,
		TriggerThresholdMeters:  5000,
		TriggerCooldown:         5 * time.Minute,
		QueueHighWatermark:      100,
		QueueLowWatermark:       50,
		PredictionCacheTTL:      time.Minute,
		PredictionCacheSize:     64,
		UsePredictionCache:      true,
		ConfidenceThreshold:     0.2,
		ModelTimeout:            time.Second,
		MinHubDistanceMiles:     50,
		ClusterEpsilonMiles:     25,
		ClusterMinPoints:        5,
		MaxRelaySegments:        3,
		RelaySegmentSpeedMPH:    55,
		RelaySegmentBuffer:      0.15,
		MaxSegmentDistanceMiles: 650,
		MaxSegmentDuration:      13 * time.Hour,
		DemandRegions:           []string{"midwest", "southwest"},
	}
}

func newEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := New(testConfig(t))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return e
}

// startEngine runs the engine for the test's lifetime and blocks until the
// ingress subscriptions are live.
func startEngine(t *testing.T, e *Engine) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Engine run returned error: %v", err)
			}
		case <-time.After(3 * time.Second):
			t.Error("Engine did not stop in time")
		}
	})
	select {
	case <-e.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("Engine never became ready")
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}

func waitForJobStatus(t *testing.T, e *Engine, id string, want model.JobStatus) model.Job {
	t.Helper()
	var j model.Job
	waitFor(t, "job "+id+" to reach "+string(want), func() bool {
		got, err := e.store.Get(context.Background(), id)
		if err != nil {
			return false
		}
		j = got
		return j.Status == want
	})
	return j
}

func countJobsBy(t *testing.T, e *Engine, createdBy string) int {
	t.Helper()
	all, err := e.store.List(context.Background(), jobs.Filter{})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	n := 0
	for _, j := range all {
		if j.CreatedBy == createdBy {
			n++
		}
	}
	return n
}

// eventCapture subscribes to the results topic and collects the decoded
// envelopes.
type eventCapture struct {
	mu     sync.Mutex
	events []model.ResultEvent
}

func captureResults(t *testing.T, e *Engine) *eventCapture {
	t.Helper()
	c := &eventCapture{}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	err := e.Bus().Subscribe(ctx, pubsub.TopicOptimizationResults, func(_ context.Context, msg pubsub.Message) error {
		var ev model.ResultEvent
		if err := json.Unmarshal(msg.Value, &ev); err != nil {
			return err
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		c.events = append(c.events, ev)
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	return c
}

func (c *eventCapture) byType(eventType string) []model.ResultEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []model.ResultEvent
	for _, ev := range c.events {
		if ev.Metadata.EventType == eventType {
			out = append(out, ev)
		}
	}
	return out
}

func positionRecord(t *testing.T, driverID string, p geo.Point, at time.Time) pubsub.Message {
	t.Helper()
	blob, err := json.Marshal(model.PositionUpdate{
		EntityType: model.EntityDriver,
		EntityID:   driverID,
		Position:   model.Position{Location: p, Timestamp: at, Source: "test"},
	})
	if err != nil {
		t.Fatalf("encoding position: %v", err)
	}
	return pubsub.Message{Topic: pubsub.TopicPositionUpdates, Key: driverID, Value: blob}
}

func loadEventRecord(t *testing.T, prev, next model.LoadStatus, load model.Load) pubsub.Message {
	t.Helper()
	blob, err := json.Marshal(model.LoadEvent{
		Metadata: model.EventMetadata{EventType: model.EventLoadStatusChanged},
		Payload:  model.LoadEventPayload{LoadID: load.ID, PreviousStatus: prev, NewStatus: next, Load: &load},
	})
	if err != nil {
		t.Fatalf("encoding load event: %v", err)
	}
	return pubsub.Message{Topic: pubsub.TopicLoadEvents, Key: load.ID, Value: blob}
}

func TestEngineCompletesLoadMatchingEndToEnd(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	// 1. Seed one driver and one nearby load
	err := e.drivers.Upsert(ctx, model.Driver{
		ID:                      "D1",
		Position:                geo.Point{Lat: 41.88, Lon: -87.63},
		HomeBase:                geo.Point{Lat: 41.88, Lon: -87.63},
		DrivingMinutesRemaining: 600,
		Equipment:               model.EquipmentTractor,
		Available:               true,
	})
	if err != nil {
		t.Fatalf("Seeding driver failed: %v", err)
	}
	err = e.loads.Upsert(ctx, model.Load{
		ID:                "L1",
		Pickup:            model.Stop{Location: geo.Point{Lat: 41.90, Lon: -87.60}, Earliest: start, Latest: start.Add(time.Hour)},
		Delivery:          model.Stop{Location: geo.Point{Lat: 39.76, Lon: -86.16}, Latest: start.Add(24 * time.Hour)},
		RequiredEquipment: model.EquipmentTractor,
		Status:            model.LoadAvailable,
	})
	if err != nil {
		t.Fatalf("Seeding load failed: %v", err)
	}

	capture := captureResults(t, e)
	startEngine(t, e)

	// 2. Submit the matching job through the control surface
	job, err := e.API().CreateJob(ctx, api.CreateJobRequest{
		Kind: model.JobLoadMatching,
		Params: model.JobParameters{
			WindowStart: start,
			WindowEnd:   start.Add(time.Hour),
			Weights:     model.Weights{EmptyMiles: 0.6, Preference: 0.2, HOS: 0.2},
		},
		CreatedBy: "e2e-test",
	})
	if err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}

	// 3. The pipeline drives it to COMPLETED with a dereferenceable result
	done := waitForJobStatus(t, e, job.ID, model.JobCompleted)
	if done.ResultID == "" {
		t.Fatal("Completed job carries no result id")
	}
	if done.Progress != 100 {
		t.Errorf("Expected progress 100, got %v", done.Progress)
	}

	result, err := e.API().GetJobResult(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJobResult failed: %v", err)
	}
	if result.ID != done.ResultID {
		t.Errorf("Result id mismatch: job says %s, store says %s", done.ResultID, result.ID)
	}
	if len(result.Matches) != 1 {
		t.Fatalf("Expected 1 match, got %d", len(result.Matches))
	}
	m := result.Matches[0]
	if m.DriverID != "D1" || m.LoadID != "L1" {
		t.Errorf("Expected D1 on L1, got %s on %s", m.DriverID, m.LoadID)
	}
	if m.Score <= 70 {
		t.Errorf("Expected score above 70, got %v", m.Score)
	}
	if result.Network == nil || result.Network.MatchedLoads != 1 {
		t.Errorf("Expected network metrics with 1 matched load, got %+v", result.Network)
	}

	// 4. Subscribers saw exactly one completion event with full metadata
	waitFor(t, "completion event", func() bool {
		return len(capture.byType(model.EventOptimizationComplete)) == 1
	})
	ev := capture.byType(model.EventOptimizationComplete)[0]
	if ev.Metadata.Producer != producerName {
		t.Errorf("Expected producer %s, got %s", producerName, ev.Metadata.Producer)
	}
	if ev.Metadata.CorrelationID != job.ID {
		t.Errorf("Expected correlation %s, got %s", job.ID, ev.Metadata.CorrelationID)
	}
	if ev.Metadata.Category != model.EventCategoryOptimization {
		t.Errorf("Expected category OPTIMIZATION, got %s", ev.Metadata.Category)
	}
	if ev.Result.JobID != job.ID {
		t.Errorf("Expected payload for job %s, got %s", job.ID, ev.Result.JobID)
	}
}

func TestEngineReportsUnmatchableLoad(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	// 1. The only driver pulls a flatbed; the load needs a reefer
	err := e.drivers.Upsert(ctx, model.Driver{
		ID:                      "D1",
		Position:                chicago,
		HomeBase:                chicago,
		DrivingMinutesRemaining: 600,
		Equipment:               model.EquipmentFlatbed,
		Available:               true,
	})
	if err != nil {
		t.Fatalf("Seeding driver failed: %v", err)
	}
	err = e.loads.Upsert(ctx, model.Load{
		ID:                "L1",
		Pickup:            model.Stop{Location: chicago, Earliest: start, Latest: start.Add(time.Hour)},
		Delivery:          model.Stop{Location: geo.Point{Lat: 39.76, Lon: -86.16}, Latest: start.Add(24 * time.Hour)},
		RequiredEquipment: model.EquipmentReefer,
		Status:            model.LoadAvailable,
	})
	if err != nil {
		t.Fatalf("Seeding load failed: %v", err)
	}

	startEngine(t, e)

	job, err := e.API().CreateJob(ctx, api.CreateJobRequest{
		Kind:      model.JobLoadMatching,
		Params:    model.JobParameters{WindowStart: start, WindowEnd: start.Add(time.Hour)},
		CreatedBy: "e2e-test",
	})
	if err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}

	// 2. The job still completes, reporting an empty match set
	waitForJobStatus(t, e, job.ID, model.JobCompleted)
	result, err := e.API().GetJobResult(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJobResult failed: %v", err)
	}
	if len(result.Matches) != 0 {
		t.Errorf("Expected no matches, got %d", len(result.Matches))
	}
	if result.Network == nil || result.Network.MatchedLoads != 0 {
		t.Errorf("Expected zero matched loads, got %+v", result.Network)
	}
}

func TestEngineDebouncesPositionUpdates(t *testing.T) {
	e := newEngine(t)
	startEngine(t, e)
	ctx := context.Background()
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	la := geo.Point{Lat: 34.05, Lon: -118.24}

	// 1. Four updates for D2: seed, small drift, cooldown violation, and
	// finally a real trigger
	updates := []pubsub.Message{
		positionRecord(t, "D2", la, base),
		positionRecord(t, "D2", geo.Point{Lat: 34.06, Lon: -118.24}, base.Add(10*time.Second)),
		positionRecord(t, "D2", geo.Point{Lat: 34.15, Lon: -118.24}, base.Add(60*time.Second)),
		positionRecord(t, "D2", geo.Point{Lat: 34.15, Lon: -118.24}, base.Add(6*time.Minute)),
	}
	// 2. A sentinel driver whose trigger fences the topic: once its job
	// exists, every D2 update has been consumed
	updates = append(updates,
		positionRecord(t, "D2-sentinel", chicago, base),
		positionRecord(t, "D2-sentinel", geo.Point{Lat: 42.10, Lon: -87.63}, base.Add(10*time.Minute)),
	)
	for _, msg := range updates {
		if err := e.bus.Publish(ctx, msg); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}
	}

	// 3. Exactly two position-triggered jobs: D2's fourth update plus the
	// sentinel
	waitFor(t, "both position triggers", func() bool {
		return countJobsBy(t, e, "ingress:position") >= 2
	})
	if n := countJobsBy(t, e, "ingress:position"); n != 2 {
		t.Errorf("Expected exactly 2 position-triggered jobs, got %d", n)
	}
}

func TestEngineBuildsRelayPlanFromLoadEvent(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	departure := time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC)

	// 1. Corridor hubs 580 miles in from each end and a driver staged for
	// each leg
	corridor := geo.Bearing(chicago, losAngeles)
	hub1 := geo.Destination(chicago, corridor, 580, geo.Miles)
	hub2 := geo.Destination(losAngeles, geo.Bearing(losAngeles, chicago), 580, geo.Miles)
	for _, h := range []model.SmartHub{
		{ID: "hub-plains", Name: "High Plains Exchange", FacilityType: model.FacilityTruckStop, Location: hub1, Capacity: 20, Hours: model.OperatingHours{Open: "00:00", Close: "23:59"}},
		{ID: "hub-desert", Name: "Desert Junction", FacilityType: model.FacilityTruckStop, Location: hub2, Capacity: 20, Hours: model.OperatingHours{Open: "00:00", Close: "23:59"}},
	} {
		if _, err := e.hubRepo.Create(ctx, h); err != nil {
			t.Fatalf("Seeding hub failed: %v", err)
		}
	}
	staging := []struct {
		id        string
		pos, home geo.Point
	}{
		{"d-chi", geo.Destination(chicago, 180, 25, geo.Miles), geo.Destination(hub1, 0, 40, geo.Miles)},
		{"d-mid", geo.Destination(hub1, 90, 30, geo.Miles), geo.Destination(hub2, 0, 50, geo.Miles)},
		{"d-west", geo.Destination(hub2, 90, 30, geo.Miles), geo.Destination(losAngeles, 45, 110, geo.Miles)},
	}
	for _, s := range staging {
		err := e.drivers.Upsert(ctx, model.Driver{
			ID:                      s.id,
			Position:                s.pos,
			HomeBase:                s.home,
			DrivingMinutesRemaining: 800,
			Equipment:               model.EquipmentDryVan,
			Available:               true,
		})
		if err != nil {
			t.Fatalf("Seeding driver failed: %v", err)
		}
	}

	capture := captureResults(t, e)
	startEngine(t, e)

	// 2. The transcontinental load turning AVAILABLE arrives over the bus
	load := model.Load{
		ID:                "L-transcon",
		Pickup:            model.Stop{Location: chicago, Earliest: departure, Latest: departure.Add(4 * time.Hour)},
		Delivery:          model.Stop{Location: losAngeles, Latest: departure.Add(48 * time.Hour)},
		WeightLbs:         30000,
		RequiredEquipment: model.EquipmentDryVan,
		Status:            model.LoadAvailable,
	}
	if err := e.bus.Publish(ctx, loadEventRecord(t, model.LoadPending, model.LoadAvailable, load)); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	// 3. Ingress enqueues relay planning, the dispatcher runs it
	var relayJob model.Job
	waitFor(t, "relay planning job", func() bool {
		all, err := e.store.List(ctx, jobs.Filter{Kind: model.JobRelayPlanning})
		if err != nil || len(all) != 1 {
			return false
		}
		relayJob = all[0]
		return relayJob.Status == model.JobCompleted
	})
	if relayJob.Params.LoadID != load.ID {
		t.Errorf("Expected relay job scoped to %s, got %q", load.ID, relayJob.Params.LoadID)
	}

	result, err := e.API().GetJobResult(ctx, relayJob.ID)
	if err != nil {
		t.Fatalf("GetJobResult failed: %v", err)
	}
	if len(result.Plans) != 1 {
		t.Fatalf("Expected 1 relay plan, got %d", len(result.Plans))
	}
	plan := result.Plans[0]
	if len(plan.Segments) != 3 {
		t.Errorf("Expected 3 segments, got %d", len(plan.Segments))
	}
	if len(plan.Handoffs) != len(plan.Segments)-1 {
		t.Errorf("Expected %d handoffs, got %d", len(plan.Segments)-1, len(plan.Handoffs))
	}
	if plan.Metrics.EfficiencyScore <= 0 {
		t.Errorf("Expected positive efficiency score, got %v", plan.Metrics.EfficiencyScore)
	}

	// 4. The draft is in the plan store and the event went out
	stored, err := e.relays.Get(ctx, plan.ID)
	if err != nil {
		t.Fatalf("Stored plan lookup failed: %v", err)
	}
	if stored.Status != model.RelayDraft {
		t.Errorf("Expected DRAFT plan, got %s", stored.Status)
	}
	waitFor(t, "relay plan event", func() bool {
		return len(capture.byType(model.EventRelayPlanCreated)) == 1
	})
}

func TestEngineIdentifiesHubClusters(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	// 1. Three dense route clusters of descending size plus far-flung
	// noise
	clusters := []struct {
		driver string
		center geo.Point
		count  int
	}{
		{"hist-1", chicago, 40},
		{"hist-2", geo.Point{Lat: 39.7684, Lon: -86.1581}, 25},
		{"hist-3", geo.Point{Lat: 38.6270, Lon: -90.1994}, 12},
	}
	for _, c := range clusters {
		for i := 0; i < c.count; i++ {
			p := geo.Destination(c.center, float64((i*47)%360), float64(i%9)*0.8, geo.Miles)
			e.history.Record(ctx, c.driver, model.Position{Location: p, Timestamp: base.Add(time.Duration(i) * time.Minute)})
		}
	}
	for i := 0; i < 6; i++ {
		p := geo.Destination(chicago, 200, 150+float64(i)*60, geo.Miles)
		e.history.Record(ctx, "hist-noise", model.Position{Location: p, Timestamp: base.Add(time.Duration(i) * time.Hour)})
	}

	startEngine(t, e)

	job, err := e.API().CreateJob(ctx, api.CreateJobRequest{
		Kind:      model.JobSmartHubID,
		CreatedBy: "e2e-test",
	})
	if err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}
	waitForJobStatus(t, e, job.ID, model.JobCompleted)

	// 2. Three candidate sites, densest first, noise excluded
	result, err := e.API().GetJobResult(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJobResult failed: %v", err)
	}
	if len(result.Hubs) != 3 {
		t.Fatalf("Expected 3 hub recommendations, got %d", len(result.Hubs))
	}
	for i := 1; i < len(result.Hubs); i++ {
		if result.Hubs[i].Density > result.Hubs[i-1].Density {
			t.Errorf("Recommendations not ranked by density: %v then %v",
				result.Hubs[i-1].Density, result.Hubs[i].Density)
		}
	}
	sizes := []int{result.Hubs[0].ClusterSize, result.Hubs[1].ClusterSize, result.Hubs[2].ClusterSize}
	if sizes[0] < sizes[1] || sizes[1] < sizes[2] {
		t.Errorf("Expected cluster sizes in descending order, got %v", sizes)
	}
}

func TestEngineForecastsRegionalDemand(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	start := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

	startEngine(t, e)
	job, err := e.API().CreateJob(ctx, api.CreateJobRequest{
		Kind: model.JobDemandPrediction,
		Params: model.JobParameters{
			Region:      "midwest",
			WindowStart: start,
			WindowEnd:   start.Add(6 * time.Hour),
		},
		CreatedBy: "e2e-test",
	})
	if err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}

	waitForJobStatus(t, e, job.ID, model.JobCompleted)
	result, err := e.API().GetJobResult(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJobResult failed: %v", err)
	}
	if len(result.Forecasts) != 1 {
		t.Fatalf("Expected 1 forecast, got %d", len(result.Forecasts))
	}
	f := result.Forecasts[0]
	if f.Region != "midwest" {
		t.Errorf("Expected midwest forecast, got %q", f.Region)
	}
	if f.ExpectedLoads <= 0 {
		t.Errorf("Expected positive demand, got %v", f.ExpectedLoads)
	}
}

func TestEngineCancelPendingJobLeavesNoTrace(t *testing.T) {
	// The engine is built but not running, so the job stays queued.
	e := newEngine(t)
	ctx := context.Background()

	job, err := e.API().CreateJob(ctx, api.CreateJobRequest{
		Kind:      model.JobNetworkOptimize,
		CreatedBy: "e2e-test",
	})
	if err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}
	if e.queue.Len() != 1 {
		t.Fatalf("Expected queued job, got depth %d", e.queue.Len())
	}

	// 1. Cancel settles the record and drains the queue
	cancelled, err := e.API().CancelJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("CancelJob failed: %v", err)
	}
	if cancelled.Status != model.JobCancelled {
		t.Errorf("Expected CANCELLED, got %s", cancelled.Status)
	}
	if e.queue.Len() != 0 {
		t.Errorf("Expected empty queue, got depth %d", e.queue.Len())
	}

	// 2. No result exists for the job
	if _, err := e.API().GetJobResult(ctx, job.ID); apperrors.CategoryOf(err) != apperrors.CategoryResource {
		t.Errorf("Expected no result for cancelled job, got %v", err)
	}

	// 3. A second cancel conflicts without changing state
	if _, err := e.API().CancelJob(ctx, job.ID); apperrors.CategoryOf(err) != apperrors.CategoryConflict {
		t.Errorf("Expected conflict on double cancel, got %v", err)
	}
	got, err := e.store.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != model.JobCancelled {
		t.Errorf("Double cancel mutated the job to %s", got.Status)
	}
}

func TestEngineRecoversQueuedJobsOnStartup(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	// 1. One job pending, one orphaned mid-run by a dead process
	pending, err := e.store.Create(ctx, model.Job{Kind: model.JobLoadMatching, Priority: 5, CreatedBy: "test"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	orphan, err := e.store.Create(ctx, model.Job{Kind: model.JobRelayPlanning, Priority: 7, CreatedBy: "test"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := e.store.Claim(ctx, orphan.ID); err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	if e.queue.Len() != 0 {
		t.Fatalf("Queue should start empty, got %d", e.queue.Len())
	}

	// 2. Recovery reseeds both
	if err := e.recoverJobs(ctx); err != nil {
		t.Fatalf("recoverJobs failed: %v", err)
	}
	if e.queue.Len() != 2 {
		t.Errorf("Expected 2 recovered jobs, got %d", e.queue.Len())
	}

	restored, err := e.store.Get(ctx, orphan.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if restored.Status != model.JobPending {
		t.Errorf("Expected orphan back in PENDING, got %s", restored.Status)
	}
	if restored.Attempts != 1 {
		t.Errorf("Expected attempt count preserved at 1, got %d", restored.Attempts)
	}
	if restored.Error == nil || restored.Error.Code != "SRV_ENGINE_RESTART" {
		t.Errorf("Expected restart marker on orphan, got %+v", restored.Error)
	}

	still, err := e.store.Get(ctx, pending.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if still.Status != model.JobPending {
		t.Errorf("Pending job should stay PENDING, got %s", still.Status)
	}
}

func TestEngineReplayStreamsCapture(t *testing.T) {
	e := newEngine(t)
	startEngine(t, e)
	ctx := context.Background()
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	// 1. Write a capture: a seeding position, a triggering position, and
	// a load landing on the board
	path := filepath.Join(t.TempDir(), "capture.jsonl")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Create capture failed: %v", err)
	}
	seed := positionRecord(t, "R1", chicago, base)
	trigger := positionRecord(t, "R1", geo.Point{Lat: 41.97, Lon: -87.63}, base.Add(6*time.Minute))
	board := loadEventRecord(t, model.LoadPending, model.LoadAvailable, model.Load{
		ID:       "L-replay",
		Pickup:   model.Stop{Location: chicago, Earliest: base, Latest: base.Add(2 * time.Hour)},
		Delivery: model.Stop{Location: geo.Point{Lat: 41.50, Lon: -87.60}, Latest: base.Add(8 * time.Hour)},
		Status:   model.LoadAvailable,
	})
	for i, msg := range []pubsub.Message{seed, trigger, board} {
		rec := pubsub.Record{Topic: msg.Topic, Key: msg.Key, At: base.Add(time.Duration(i) * time.Second), Value: msg.Value}
		if err := pubsub.WriteRecord(f, rec); err != nil {
			t.Fatalf("WriteRecord failed: %v", err)
		}
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// 2. Replay drives the same ingress paths as a live feed
	if err := e.Replay(ctx, path); err != nil {
		t.Fatalf("Replay failed: %v", err)
	}
	waitFor(t, "replayed position trigger", func() bool {
		return countJobsBy(t, e, "ingress:position") == 1
	})
	waitFor(t, "replayed load event trigger", func() bool {
		return countJobsBy(t, e, "ingress:load-event") == 1
	})

	// 3. Missing captures surface as not-found
	if err := e.Replay(ctx, filepath.Join(t.TempDir(), "absent.jsonl")); apperrors.CategoryOf(err) != apperrors.CategoryResource {
		t.Errorf("Expected not found for missing capture, got %v", err)
	}
}

func TestEngineSnapshotsStateAcrossRestart(t *testing.T) {
	cfg := testConfig(t)
	e, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()
	select {
	case <-e.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("Engine never became ready")
	}

	// 1. Complete one demand job, then stop the engine
	job, err := e.API().CreateJob(context.Background(), api.CreateJobRequest{
		Kind: model.JobDemandPrediction,
		Params: model.JobParameters{
			Region:      "midwest",
			WindowStart: time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC),
			WindowEnd:   time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC),
		},
		CreatedBy: "e2e-test",
	})
	if err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}
	waitForJobStatus(t, e, job.ID, model.JobCompleted)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Engine did not stop")
	}

	for _, name := range []string{"jobs.jsonl", "results.jsonl"} {
		if _, err := os.Stat(filepath.Join(cfg.StateDir, name)); err != nil {
			t.Errorf("Expected snapshot %s: %v", name, err)
		}
	}

	// 2. A fresh engine over the same state dir sees the finished job
	e2, err := New(cfg)
	if err != nil {
		t.Fatalf("New after restart failed: %v", err)
	}
	restored, err := e2.store.Get(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("Restored job lookup failed: %v", err)
	}
	if restored.Status != model.JobCompleted {
		t.Errorf("Expected restored COMPLETED job, got %s", restored.Status)
	}
	if _, err := e2.resultStore.GetByJob(context.Background(), job.ID); err != nil {
		t.Errorf("Restored result lookup failed: %v", err)
	}
}
