// Package engine composes the freight optimization pipeline: bus, stores,
// repositories, predictor, algorithm services, ingress, dispatcher, and
// watchdog are built once at startup and run as a single errgroup. There
// are no mutable globals; everything reaches its collaborators through
// the struct assembled here.
package engine

import (
	"context"
	"errors"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"freightflow/internal/api"
	"freightflow/internal/apperrors"
	"freightflow/internal/config"
	"freightflow/internal/demand"
	"freightflow/internal/dispatch"
	"freightflow/internal/fleet"
	"freightflow/internal/hubs"
	"freightflow/internal/ingress"
	"freightflow/internal/jobs"
	"freightflow/internal/metrics"
	"freightflow/internal/model"
	"freightflow/internal/predict"
	"freightflow/internal/pubsub"
	"freightflow/internal/relay"
	"freightflow/internal/results"
)

const (
	// busBuffer sizes each in-memory subscription; a full buffer drops
	// (the production broker redelivers, the bundled bus does not).
	busBuffer = 256

	producerName = "freightflow-engine"

	metricsShutdownTimeout = 5 * time.Second
)

// Engine owns the composed pipeline and its lifecycle.
type Engine struct {
	cfg     *config.AppConfig
	metrics *metrics.Metrics
	bus     *pubsub.MemoryBus

	queue       *jobs.Queue
	store       jobs.Store
	jobSvc      *jobs.Service
	resultStore results.Store

	drivers *fleet.MemoryDrivers
	loads   *fleet.MemoryLoads
	history *fleet.MemoryHistory
	hubRepo *hubs.MemoryRepository
	relays  *relay.MemoryStore

	predictor  *predict.Service
	forecaster *demand.Predictor

	ingress    *ingress.Service
	dispatcher *dispatch.Dispatcher
	watchdog   *jobs.Watchdog
	control    *api.Service

	rdb *redis.Client

	// Snapshot handles; nil when the job/result state lives on Redis.
	jobSnap    *jobs.MemoryStore
	resultSnap *results.MemoryStore

	// ready closes once the ingress subscriptions are live, so feeders
	// know the bus will not drop their first messages.
	ready     chan struct{}
	readyOnce sync.Once
}

// New assembles the engine from configuration. State is restored from the
// snapshot directory (memory mode) or left on Redis (REDIS_ADDR set);
// queued work is not recovered here, Run does that before starting the
// pool.
func New(cfg *config.AppConfig) (*Engine, error) {
	m := metrics.New()
	bus := pubsub.NewMemoryBus(busBuffer)

	var (
		store       jobs.Store
		resultStore results.Store
		rdb         *redis.Client
		jobSnap     *jobs.MemoryStore
		resultSnap  *results.MemoryStore
	)
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		store = jobs.NewRedisStore(rdb)
		resultStore = results.NewRedisStore(rdb)
		log.Info().Str("addr", cfg.RedisAddr).Msg("Job and result state on Redis")
	} else {
		memJobs := jobs.NewMemoryStore()
		if err := memJobs.LoadSnapshot(cfg.StateDir); err != nil {
			log.Warn().Err(err).Msg("Job snapshot not restored")
		}
		memResults := results.NewMemoryStore()
		if err := memResults.LoadSnapshot(cfg.StateDir); err != nil {
			log.Warn().Err(err).Msg("Result snapshot not restored")
		}
		store, resultStore = memJobs, memResults
		jobSnap, resultSnap = memJobs, memResults
	}

	drivers := fleet.NewMemoryDrivers()
	loads := fleet.NewMemoryLoads(drivers)
	history := fleet.NewMemoryHistory(0)
	hubRepo := hubs.NewMemoryRepository(nil)
	relayStore := relay.NewMemoryStore()

	predictor := predict.NewService(predict.Config{
		CacheTTL:            cfg.PredictionCacheTTL,
		CacheSize:           cfg.PredictionCacheSize,
		UseCache:            cfg.UsePredictionCache,
		ModelTimeout:        cfg.ModelTimeout,
		ConfidenceThreshold: cfg.ConfidenceThreshold,
	}, predict.NewHeuristicModels(), m)

	forecaster := demand.NewPredictor(demand.Config{
		Regions:   cfg.DemandRegions,
		CacheTTL:  cfg.PredictionCacheTTL,
		CacheSize: cfg.PredictionCacheSize,
	}, predictor, m)

	queue := jobs.NewQueue()
	jobSvc := jobs.NewService(store, queue, m)
	publisher := results.NewPublisher(bus, producerName, m)

	runners := buildRunners(cfg, fleetDeps{
		drivers: drivers,
		loads:   loads,
		history: history,
		hubs:    hubRepo,
		relays:  relayStore,
	}, predictor, forecaster)

	dispatcher := dispatch.New(dispatch.Config{
		MaxConcurrentJobs: cfg.MaxConcurrentJobs,
		JobTimeout:        cfg.JobTimeout,
		MaxAttempts:       cfg.JobMaxAttempts,
		RetryBase:         cfg.RetryBase,
		RetryCap:          cfg.RetryCap,
	}, jobSvc, queue, resultStore, publisher, runners, m)

	watchdog := jobs.NewWatchdog(store, cfg.JobTimeout, 0, dispatcher.FailStalled)

	ing := ingress.New(ingress.Config{
		TriggerThresholdMeters: cfg.TriggerThresholdMeters,
		TriggerCooldown:        cfg.TriggerCooldown,
		QueueHighWatermark:     cfg.QueueHighWatermark,
		QueueLowWatermark:      cfg.QueueLowWatermark,
		SpeedMPH:               cfg.RelaySegmentSpeedMPH,
	}, bus, jobSvc, drivers, loads, history, predictor, m)

	control := api.New(jobSvc, resultStore, dispatcher, hubRepo, relayStore, hubs.ExchangeParams{
		MaxSegmentDistanceMiles: cfg.MaxSegmentDistanceMiles,
		MaxSegmentDuration:      cfg.MaxSegmentDuration,
		SpeedMPH:                cfg.RelaySegmentSpeedMPH,
	})

	return &Engine{
		cfg:         cfg,
		metrics:     m,
		bus:         bus,
		queue:       queue,
		store:       store,
		jobSvc:      jobSvc,
		resultStore: resultStore,
		drivers:     drivers,
		loads:       loads,
		history:     history,
		hubRepo:     hubRepo,
		relays:      relayStore,
		predictor:   predictor,
		forecaster:  forecaster,
		ingress:     ing,
		dispatcher:  dispatcher,
		watchdog:    watchdog,
		control:     control,
		rdb:         rdb,
		jobSnap:     jobSnap,
		resultSnap:  resultSnap,
		ready:       make(chan struct{}),
	}, nil
}

// API is the in-process control surface for embedding callers.
func (e *Engine) API() *api.Service { return e.control }

// Bus is the event transport; external feeds and replay publish here.
func (e *Engine) Bus() pubsub.Bus { return e.bus }

// Ready closes once the ingress subscriptions are live. Feeders should
// wait on it before publishing, or their first messages race Run.
func (e *Engine) Ready() <-chan struct{} { return e.ready }

// Run starts ingress, dispatcher, watchdog, and the optional metrics
// listener, then blocks until ctx is cancelled or a component fails.
// Shutdown drains the workers and snapshots memory-backed stores.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.recoverJobs(ctx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := e.ingress.Start(gctx); err != nil {
			return err
		}
		e.readyOnce.Do(func() { close(e.ready) })
		return nil
	})
	g.Go(func() error { return e.dispatcher.Run(gctx) })
	g.Go(func() error { return e.watchdog.Run(gctx) })
	if e.cfg.MetricsAddr != "" {
		g.Go(func() error { return e.serveMetrics(gctx) })
	}
	log.Info().
		Int("workers", e.cfg.MaxConcurrentJobs).
		Bool("redis", e.rdb != nil).
		Msg("Engine running")

	err := g.Wait()
	e.shutdown()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Replay streams a JSONL capture through the bus in file order, feeding
// the live subscriptions exactly as the external broker would.
func (e *Engine) Replay(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return apperrors.NotFound("capture", path)
	}
	defer f.Close()

	count := 0
	err = pubsub.ReadCapture(f, func(rec pubsub.Record) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		count++
		return e.bus.Publish(ctx, pubsub.Message{Topic: rec.Topic, Key: rec.Key, Value: rec.Value})
	})
	if err != nil {
		return err
	}
	log.Info().Int("events", count).Str("path", path).Msg("Capture replayed")
	return nil
}

// recoverJobs reseeds the queue from the store: PENDING jobs return in
// priority order, and PROCESSING jobs orphaned by a previous run are
// requeued for a fresh attempt.
func (e *Engine) recoverJobs(ctx context.Context) error {
	pending, err := e.store.List(ctx, jobs.Filter{Status: model.JobPending})
	if err != nil {
		return err
	}
	for _, j := range pending {
		e.jobSvc.Resubmit(j)
	}

	orphaned, err := e.store.List(ctx, jobs.Filter{Status: model.JobProcessing})
	if err != nil {
		return err
	}
	recovered := 0
	for _, j := range orphaned {
		requeued, err := e.store.Requeue(ctx, j.ID, model.JobError{
			Code:    "SRV_ENGINE_RESTART",
			Message: "engine restarted while the job was running",
		})
		if err != nil {
			log.Warn().Err(err).Str("job_id", j.ID).Msg("Orphaned job not recovered")
			continue
		}
		e.jobSvc.Resubmit(requeued)
		recovered++
	}

	if len(pending)+recovered > 0 {
		log.Info().
			Int("pending", len(pending)).
			Int("orphaned", recovered).
			Msg("Recovered queued work from previous run")
	}
	return nil
}

// serveMetrics exposes the private registry until the group winds down.
func (e *Engine) serveMetrics(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", e.metrics.Handler())
	srv := &http.Server{Addr: e.cfg.MetricsAddr, Handler: mux}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	log.Info().Str("addr", e.cfg.MetricsAddr).Msg("Metrics listener started")

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("Metrics listener shutdown failed")
		}
		return ctx.Err()
	case err := <-errc:
		return apperrors.Network("METRICS_LISTEN", "metrics listener failed", err)
	}
}

// shutdown persists what the process owns before exit.
func (e *Engine) shutdown() {
	if e.jobSnap != nil {
		if err := e.jobSnap.SaveSnapshot(e.cfg.StateDir); err != nil {
			log.Error().Err(err).Msg("Job snapshot failed")
		}
	}
	if e.resultSnap != nil {
		if err := e.resultSnap.SaveSnapshot(e.cfg.StateDir); err != nil {
			log.Error().Err(err).Msg("Result snapshot failed")
		}
	}
	e.bus.Close()
	if e.rdb != nil {
		if err := e.rdb.Close(); err != nil {
			log.Warn().Err(err).Msg("Redis close failed")
		}
	}
	log.Info().Msg("Engine stopped")
}
