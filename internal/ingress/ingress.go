// Package ingress turns the raw event stream into optimization work. It
// subscribes to the position and load topics, keeps the fleet view fresh,
// debounces position churn into NETWORK_OPTIMIZATION jobs, and fans load
// lifecycle transitions out to the job kinds they warrant. A queue-depth
// backpressure gate pauses position-driven triggers under load; load-driven
// enqueues are never suppressed.
package ingress

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"freightflow/internal/apperrors"
	"freightflow/internal/fleet"
	"freightflow/internal/geo"
	"freightflow/internal/metrics"
	"freightflow/internal/model"
	"freightflow/internal/predict"
	"freightflow/internal/pubsub"
	"freightflow/internal/relay"
)

// Job priorities by trigger source. Relay planning outranks the rest
// because pickup windows erode while a plan waits.
const (
	priorityPosition = 4
	priorityLoadFlow = 6
	priorityHubStudy = 3
	priorityRelay    = 7
)

// CreatedBy stamps for jobs this package submits.
const (
	byPositionTrigger = "ingress:position"
	byLoadEvent       = "ingress:load-event"
)

// Submitter is the slice of the job service ingress needs: enqueue plus
// the depth signal backpressure watches.
type Submitter interface {
	Submit(ctx context.Context, kind model.JobKind, params model.JobParameters, priority int, createdBy string) (model.Job, error)
	Depth() int
}

// Config tunes debounce and backpressure.
type Config struct {
	TriggerThresholdMeters float64
	TriggerCooldown        time.Duration
	QueueHighWatermark     int
	QueueLowWatermark      int
	SpeedMPH               float64 // relay prefilter drive-time estimate
}

// Service consumes the inbound topics. Safe for concurrent use; the
// debounce map and pause flag share one mutex with short critical
// sections.
type Service struct {
	cfg       Config
	bus       pubsub.Subscriber
	jobs      Submitter
	drivers   fleet.DriverRepository
	loads     fleet.LoadRepository
	history   fleet.PositionHistory
	predictor *predict.Service
	metrics   *metrics.Metrics
	now       func() time.Time

	mu     sync.Mutex
	seen   map[string]debounceEntry
	paused bool
}

// debounceEntry is the last position that triggered (or seeded) a driver.
type debounceEntry struct {
	pos  geo.Point
	when time.Time
}

// New wires the ingress service. predictor may be nil to disable the
// opportunistic refreshes.
func New(cfg Config, bus pubsub.Subscriber, jobs Submitter, drivers fleet.DriverRepository, loads fleet.LoadRepository, history fleet.PositionHistory, predictor *predict.Service, m *metrics.Metrics) *Service {
	if cfg.SpeedMPH <= 0 {
		cfg.SpeedMPH = relay.DefaultSpeedMPH
	}
	return &Service{
		cfg:       cfg,
		bus:       bus,
		jobs:      jobs,
		drivers:   drivers,
		loads:     loads,
		history:   history,
		predictor: predictor,
		metrics:   m,
		now:       func() time.Time { return time.Now().UTC() },
		seen:      make(map[string]debounceEntry),
	}
}

// Start attaches the topic handlers. Subscriptions live until ctx is
// cancelled.
func (s *Service) Start(ctx context.Context) error {
	if err := s.bus.Subscribe(ctx, pubsub.TopicPositionUpdates, s.HandlePosition); err != nil {
		return apperrors.External("BUS_SUBSCRIBE", "failed to subscribe to position updates", err)
	}
	if err := s.bus.Subscribe(ctx, pubsub.TopicLoadEvents, s.HandleLoadEvent); err != nil {
		return apperrors.External("BUS_SUBSCRIBE", "failed to subscribe to load events", err)
	}
	log.Info().
		Float64("trigger_threshold_m", s.cfg.TriggerThresholdMeters).
		Dur("trigger_cooldown", s.cfg.TriggerCooldown).
		Int("high_watermark", s.cfg.QueueHighWatermark).
		Int("low_watermark", s.cfg.QueueLowWatermark).
		Msg("Event ingress started")
	return nil
}

// HandlePosition processes one position-updates record.
func (s *Service) HandlePosition(ctx context.Context, msg pubsub.Message) error {
	s.metrics.EventConsumed(msg.Topic)

	var update model.PositionUpdate
	if err := json.Unmarshal(msg.Value, &update); err != nil {
		return apperrors.Validation("EVENT_DECODE", "malformed position update", "key", msg.Key)
	}
	if update.EntityType != model.EntityDriver {
		log.Debug().Str("entity_type", string(update.EntityType)).Str("entity_id", update.EntityID).Msg("Ignoring non-driver position")
		return nil
	}

	if err := s.drivers.UpdatePosition(ctx, update.EntityID, update.Position); err != nil {
		log.Debug().Err(err).Str("driver_id", update.EntityID).Msg("Position update for unknown driver")
	}
	s.history.Record(ctx, update.EntityID, update.Position)

	if s.triggersPaused() {
		return nil
	}

	at := update.Position.Timestamp
	if at.IsZero() {
		at = s.now()
	}
	if !s.shouldTrigger(update.EntityID, update.Position.Location, at) {
		return nil
	}

	_, err := s.jobs.Submit(ctx, model.JobNetworkOptimize, model.JobParameters{}, priorityPosition, byPositionTrigger)
	if err != nil {
		return err
	}
	log.Debug().Str("driver_id", update.EntityID).Msg("Movement triggered network optimization")

	s.refreshPredictions(ctx, update.EntityID)
	return nil
}

// shouldTrigger applies the per-driver debounce. The first update for an
// unseen driver seeds the baseline without triggering; afterwards a
// trigger requires both the distance threshold and the cooldown, and only
// a trigger moves the baseline.
func (s *Service) shouldTrigger(driverID string, pos geo.Point, at time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.seen[driverID]
	if !ok {
		s.seen[driverID] = debounceEntry{pos: pos, when: at}
		return false
	}
	if geo.DistanceMeters(entry.pos, pos) <= s.cfg.TriggerThresholdMeters {
		return false
	}
	if at.Sub(entry.when) <= s.cfg.TriggerCooldown {
		return false
	}
	s.seen[driverID] = debounceEntry{pos: pos, when: at}
	return true
}

// triggersPaused applies the backpressure hysteresis: pause above the high
// watermark, resume below the low one.
func (s *Service) triggersPaused() bool {
	depth := s.jobs.Depth()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.paused {
		if depth < s.cfg.QueueLowWatermark {
			s.paused = false
			s.metrics.SetBackpressure(false)
			log.Info().Int("queue_depth", depth).Msg("Position triggers resumed")
		}
	} else {
		if depth > s.cfg.QueueHighWatermark {
			s.paused = true
			s.metrics.SetBackpressure(true)
			log.Warn().Int("queue_depth", depth).Msg("Position triggers paused, queue over high watermark")
		}
	}
	return s.paused
}

// refreshPredictions opportunistically warms the supply and behavior
// models after a movement trigger. Failures are logged, never surfaced.
func (s *Service) refreshPredictions(ctx context.Context, driverID string) {
	if s.predictor == nil {
		return
	}
	driver, err := s.drivers.Get(ctx, driverID)
	if err != nil {
		return
	}

	region := ""
	if len(driver.PreferredRegions) > 0 {
		region = driver.PreferredRegions[0]
	}
	now := s.now()
	if _, err := s.predictor.Predict(ctx, predict.KindSupply, predict.SupplyInput{
		Region:      region,
		WindowStart: now,
		WindowEnd:   now.Add(4 * time.Hour),
	}, predict.Options{}); err != nil {
		log.Debug().Err(err).Str("region", region).Msg("Supply refresh failed")
	}

	home := driver.HomeBase
	if _, err := s.predictor.Predict(ctx, predict.KindDriverBehavior, predict.DriverBehaviorInput{
		DriverID:        driver.ID,
		RecentPositions: s.history.DriverTrail(ctx, driver.ID),
		HOSMinutes:      driver.DrivingMinutesRemaining,
		HomeBase:        &home,
	}, predict.Options{}); err != nil {
		log.Debug().Err(err).Str("driver_id", driver.ID).Msg("Behavior refresh failed")
	}
}

// HandleLoadEvent processes one load-events record.
func (s *Service) HandleLoadEvent(ctx context.Context, msg pubsub.Message) error {
	s.metrics.EventConsumed(msg.Topic)

	var event model.LoadEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return apperrors.Validation("EVENT_DECODE", "malformed load event", "key", msg.Key)
	}
	if event.Metadata.EventType != model.EventLoadStatusChanged {
		log.Debug().Str("event_type", event.Metadata.EventType).Msg("Ignoring load event type")
		return nil
	}

	payload := event.Payload
	if payload.Load != nil {
		if err := s.loads.Upsert(ctx, *payload.Load); err != nil {
			log.Warn().Err(err).Str("load_id", payload.LoadID).Msg("Load upsert failed")
		}
	}

	region := ""
	if payload.Load != nil {
		region = payload.Load.Region
	}

	switch {
	case payload.PreviousStatus == model.LoadPending && payload.NewStatus == model.LoadAvailable:
		if err := s.submitLoadJob(ctx, model.JobNetworkOptimize, model.JobParameters{Region: region}, priorityLoadFlow, payload.LoadID); err != nil {
			return err
		}
		if payload.Load != nil && s.relayCandidate(*payload.Load) {
			return s.submitLoadJob(ctx, model.JobRelayPlanning,
				model.JobParameters{Region: region, LoadID: payload.LoadID}, priorityRelay, payload.LoadID)
		}
		return nil

	case payload.PreviousStatus == model.LoadAvailable && payload.NewStatus == model.LoadAssigned:
		return s.submitLoadJob(ctx, model.JobNetworkOptimize, model.JobParameters{Region: region}, priorityLoadFlow, payload.LoadID)

	case payload.PreviousStatus == model.LoadDelivered && payload.NewStatus == model.LoadCompleted:
		return s.submitLoadJob(ctx, model.JobSmartHubID, model.JobParameters{Region: region}, priorityHubStudy, payload.LoadID)
	}
	return nil
}

func (s *Service) submitLoadJob(ctx context.Context, kind model.JobKind, params model.JobParameters, priority int, loadID string) error {
	j, err := s.jobs.Submit(ctx, kind, params, priority, byLoadEvent)
	if err != nil {
		return err
	}
	log.Debug().
		Str("job_id", j.ID).
		Str("kind", string(kind)).
		Str("load_id", loadID).
		Msg("Load event enqueued job")
	return nil
}

// relayCandidate prefilters long hauls so the planner only sees loads it
// could plausibly split: strictly beyond the relay distance floor with a
// delivery window wide enough for the direct drive.
func (s *Service) relayCandidate(load model.Load) bool {
	direct := load.DirectDistanceMiles()
	if direct <= relay.MinRelayMiles {
		return false
	}
	driveTime := time.Duration(direct / s.cfg.SpeedMPH * float64(time.Hour))
	if driveTime < relay.MinRelayDuration {
		return false
	}
	window := load.Delivery.Latest.Sub(load.Pickup.Earliest)
	return window >= driveTime
}
