// Package dispatch drains the job queue through a bounded worker pool. A
// worker claims the job, routes it to the runner for its kind, streams
// progress into the store, and settles the terminal state: COMPLETED with
// a persisted result and a published event, FAILED after the retry budget,
// or CANCELLED. Retryable failures requeue with jittered exponential
// backoff.
package dispatch

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"freightflow/internal/apperrors"
	"freightflow/internal/jobs"
	"freightflow/internal/metrics"
	"freightflow/internal/model"
	"freightflow/internal/results"
)

// finalizeTimeout bounds the store writes that settle a job after its own
// context is spent.
const finalizeTimeout = 10 * time.Second

// Runner executes one job kind. The returned result carries only the
// payload collections; the dispatcher owns id, job id, kind, and
// timestamps. Implementations must honor ctx and may call progress at
// milestones.
type Runner interface {
	Run(ctx context.Context, job model.Job, progress func(float64)) (model.Result, error)
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(ctx context.Context, job model.Job, progress func(float64)) (model.Result, error)

// Run implements Runner.
func (f RunnerFunc) Run(ctx context.Context, job model.Job, progress func(float64)) (model.Result, error) {
	return f(ctx, job, progress)
}

// Config tunes the pool and the retry policy.
type Config struct {
	MaxConcurrentJobs int
	JobTimeout        time.Duration
	MaxAttempts       int
	RetryBase         time.Duration
	RetryCap          time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxConcurrentJobs <= 0 {
		c.MaxConcurrentJobs = 10
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = 5 * time.Minute
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.RetryBase <= 0 {
		c.RetryBase = time.Second
	}
	if c.RetryCap <= 0 {
		c.RetryCap = time.Minute
	}
	return c
}

// Dispatcher owns the worker pool.
type Dispatcher struct {
	cfg       Config
	jobs      *jobs.Service
	queue     *jobs.Queue
	store     jobs.Store
	results   results.Store
	publisher *results.Publisher
	runners   map[model.JobKind]Runner
	metrics   *metrics.Metrics
	sem       *semaphore.Weighted
	wg        sync.WaitGroup

	mu        sync.Mutex
	running   map[string]context.CancelFunc
	cancelled map[string]struct{}
	stalled   map[string]struct{}
}

// New builds a dispatcher over the job service's store and queue.
func New(cfg Config, svc *jobs.Service, queue *jobs.Queue, resultStore results.Store, publisher *results.Publisher, runners map[model.JobKind]Runner, m *metrics.Metrics) *Dispatcher {
	cfg = cfg.withDefaults()
	return &Dispatcher{
		cfg:       cfg,
		jobs:      svc,
		queue:     queue,
		store:     svc.Store(),
		results:   resultStore,
		publisher: publisher,
		runners:   runners,
		metrics:   m,
		sem:       semaphore.NewWeighted(int64(cfg.MaxConcurrentJobs)),
		running:   make(map[string]context.CancelFunc),
		cancelled: make(map[string]struct{}),
		stalled:   make(map[string]struct{}),
	}
}

// Run drains the queue until ctx is cancelled, then waits for in-flight
// workers to settle.
func (d *Dispatcher) Run(ctx context.Context) error {
	log.Info().
		Int("max_concurrent", d.cfg.MaxConcurrentJobs).
		Dur("job_timeout", d.cfg.JobTimeout).
		Int("max_attempts", d.cfg.MaxAttempts).
		Msg("Dispatcher started")

	for {
		if err := d.sem.Acquire(ctx, 1); err != nil {
			break
		}
		j, err := d.queue.Next(ctx)
		if err != nil {
			d.sem.Release(1)
			break
		}
		d.metrics.SetQueueDepth(d.queue.Len())

		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			defer d.sem.Release(1)
			d.execute(ctx, j)
		}()
	}

	d.wg.Wait()
	log.Info().Msg("Dispatcher stopped")
	return ctx.Err()
}

// execute runs one claimed job to a terminal state.
func (d *Dispatcher) execute(parent context.Context, queued model.Job) {
	ctx, cancel := context.WithTimeout(parent, d.cfg.JobTimeout)
	defer cancel()
	d.track(queued.ID, cancel)
	defer d.untrack(queued.ID)

	j, err := d.store.Claim(ctx, queued.ID)
	if err != nil {
		// Cancelled or otherwise settled between dequeue and claim.
		log.Debug().Err(err).Str("job_id", queued.ID).Msg("Job not claimable, skipping")
		return
	}

	d.metrics.WorkerStarted()
	defer d.metrics.WorkerStopped()
	log.Info().
		Str("job_id", j.ID).
		Str("kind", string(j.Kind)).
		Int("priority", j.Priority).
		Int("attempt", j.Attempts).
		Msg("Job started")

	runner, ok := d.runners[j.Kind]
	if !ok {
		d.failPermanently(j, apperrors.Internal("NO_RUNNER", "no runner registered for job kind", nil))
		return
	}

	progress := func(pct float64) {
		if _, err := d.store.Progress(ctx, j.ID, pct); err != nil {
			log.Debug().Err(err).Str("job_id", j.ID).Msg("Progress update dropped")
		}
	}

	result, err := runner.Run(ctx, j, progress)
	if err != nil {
		d.settleFailure(ctx, j, err)
		return
	}
	d.settleSuccess(j, result)
}

// settleSuccess persists the result and publishes its event. The job
// record transitions first: if that loses (the job was cancelled
// mid-flight) no result is written and no event goes out.
func (d *Dispatcher) settleSuccess(j model.Job, result model.Result) {
	ctx, cancel := context.WithTimeout(context.Background(), finalizeTimeout)
	defer cancel()

	result.ID = uuid.NewString()
	result.JobID = j.ID
	result.Kind = j.Kind

	done, err := d.store.Complete(ctx, j.ID, result.ID)
	if err != nil {
		log.Info().Err(err).Str("job_id", j.ID).Msg("Completion lost, discarding result")
		return
	}

	if _, err := d.results.Create(ctx, result); err != nil {
		log.Error().Err(err).Str("job_id", j.ID).Str("result_id", result.ID).Msg("Result persist failed")
		return
	}
	if err := d.publisher.Publish(ctx, result); err != nil {
		log.Warn().Err(err).Str("job_id", j.ID).Msg("Result event publish failed")
	}

	duration := time.Duration(done.ProcessingTimeMS) * time.Millisecond
	d.metrics.JobFinalized(string(j.Kind), string(model.JobCompleted), duration)
	log.Info().
		Str("job_id", j.ID).
		Str("kind", string(j.Kind)).
		Str("result_id", result.ID).
		Dur("took", duration).
		Msg("Job completed")
}

// settleFailure classifies the failure: user cancellation, stall, shutdown,
// retryable with budget left, or permanent.
func (d *Dispatcher) settleFailure(jobCtx context.Context, j model.Job, runErr error) {
	switch {
	case d.takeMark(d.cancelled, j.ID):
		// The canceller records CANCELLED; nothing more to write.
		log.Info().Str("job_id", j.ID).Msg("Job abandoned on cancellation")
		return

	case d.takeMark(d.stalled, j.ID):
		d.failPermanently(j, apperrors.Timeout("JOB_STALLED", "job made no progress within the stall window"))
		d.metrics.JobStalled()
		return

	case errors.Is(runErr, context.DeadlineExceeded), errors.Is(jobCtx.Err(), context.DeadlineExceeded):
		runErr = apperrors.Timeout("JOB_DEADLINE", "job exceeded its deadline")

	case errors.Is(runErr, context.Canceled):
		// Engine shutdown: back to PENDING so recovery resubmits it.
		d.requeueForRecovery(j, runErr)
		return
	}

	if apperrors.IsRetryable(runErr) && j.Attempts < d.cfg.MaxAttempts {
		d.retry(j, runErr)
		return
	}
	d.failPermanently(j, runErr)
}

// retry moves the job back to PENDING and re-enqueues it after a jittered
// exponential backoff.
func (d *Dispatcher) retry(j model.Job, runErr error) {
	ctx, cancel := context.WithTimeout(context.Background(), finalizeTimeout)
	defer cancel()

	requeued, err := d.store.Requeue(ctx, j.ID, jobError(runErr))
	if err != nil {
		log.Warn().Err(err).Str("job_id", j.ID).Msg("Requeue lost, leaving job settled")
		return
	}
	delay := d.backoff(j.Attempts)
	d.metrics.JobRetried()
	log.Warn().
		Err(runErr).
		Str("job_id", j.ID).
		Int("attempt", j.Attempts).
		Dur("backoff", delay).
		Msg("Job failed, retrying")

	time.AfterFunc(delay, func() {
		d.jobs.Resubmit(requeued)
	})
}

// requeueForRecovery returns an interrupted job to PENDING without
// scheduling an in-process retry; startup recovery picks it up.
func (d *Dispatcher) requeueForRecovery(j model.Job, runErr error) {
	ctx, cancel := context.WithTimeout(context.Background(), finalizeTimeout)
	defer cancel()
	if _, err := d.store.Requeue(ctx, j.ID, jobError(runErr)); err != nil {
		log.Warn().Err(err).Str("job_id", j.ID).Msg("Shutdown requeue failed")
		return
	}
	log.Info().Str("job_id", j.ID).Msg("Job interrupted by shutdown, returned to queue")
}

func (d *Dispatcher) failPermanently(j model.Job, runErr error) {
	ctx, cancel := context.WithTimeout(context.Background(), finalizeTimeout)
	defer cancel()

	failed, err := d.store.Fail(ctx, j.ID, jobError(runErr))
	if err != nil {
		log.Warn().Err(err).Str("job_id", j.ID).Msg("Failure record lost")
		return
	}
	duration := time.Duration(failed.ProcessingTimeMS) * time.Millisecond
	d.metrics.JobFinalized(string(j.Kind), string(model.JobFailed), duration)
	log.Error().
		Err(runErr).
		Str("job_id", j.ID).
		Str("kind", string(j.Kind)).
		Int("attempts", j.Attempts).
		Msg("Job failed")
}

// Cancel stops a job wherever it sits. Queued jobs are removed before the
// record transitions; running jobs have their context cancelled first so
// the worker abandons promptly. Terminal jobs yield a conflict.
func (d *Dispatcher) Cancel(ctx context.Context, jobID string) (model.Job, error) {
	d.mu.Lock()
	cancel, isRunning := d.running[jobID]
	if isRunning {
		d.cancelled[jobID] = struct{}{}
	}
	d.mu.Unlock()

	if isRunning {
		cancel()
	} else {
		d.queue.Remove(jobID)
		d.metrics.SetQueueDepth(d.queue.Len())
	}

	j, err := d.store.Cancel(ctx, jobID)
	if err != nil {
		// The worker may have settled the record first.
		if current, getErr := d.store.Get(ctx, jobID); getErr == nil && current.Status == model.JobCancelled {
			return current, nil
		}
		return model.Job{}, err
	}
	d.metrics.JobFinalized(string(j.Kind), string(model.JobCancelled), time.Duration(j.ProcessingTimeMS)*time.Millisecond)
	log.Info().Str("job_id", jobID).Str("kind", string(j.Kind)).Msg("Job cancelled")
	return j, nil
}

// FailStalled handles a watchdog stall signal. A locally running job has
// its context cancelled and is failed by its own worker; an orphaned
// PROCESSING record (from a previous process) is failed directly.
func (d *Dispatcher) FailStalled(ctx context.Context, jobID string) {
	d.mu.Lock()
	cancel, isRunning := d.running[jobID]
	if isRunning {
		d.stalled[jobID] = struct{}{}
	}
	d.mu.Unlock()

	if isRunning {
		cancel()
		return
	}
	if _, err := d.store.Fail(ctx, jobID, model.JobError{
		Code:    "TIME_JOB_STALLED",
		Message: "job made no progress within the stall window",
	}); err != nil {
		log.Debug().Err(err).Str("job_id", jobID).Msg("Stall fail skipped")
		return
	}
	d.metrics.JobStalled()
	log.Warn().Str("job_id", jobID).Msg("Orphaned job failed by stall watchdog")
}

// backoff computes the delay before retry n+1: base·2^(n−1) capped, with
// ±20% jitter.
func (d *Dispatcher) backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := d.cfg.RetryBase << (attempt - 1)
	if delay <= 0 || delay > d.cfg.RetryCap {
		delay = d.cfg.RetryCap
	}
	jitter := 0.8 + 0.4*rand.Float64()
	return time.Duration(float64(delay) * jitter)
}

func (d *Dispatcher) track(jobID string, cancel context.CancelFunc) {
	d.mu.Lock()
	d.running[jobID] = cancel
	d.mu.Unlock()
}

func (d *Dispatcher) untrack(jobID string) {
	d.mu.Lock()
	delete(d.running, jobID)
	delete(d.cancelled, jobID)
	delete(d.stalled, jobID)
	d.mu.Unlock()
}

// takeMark consumes a one-shot marker for the job if present.
func (d *Dispatcher) takeMark(set map[string]struct{}, jobID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := set[jobID]; !ok {
		return false
	}
	delete(set, jobID)
	return true
}

// jobError flattens a classified error onto the job record.
func jobError(err error) model.JobError {
	je := model.JobError{Code: apperrors.CodeOf(err), Message: err.Error()}
	if classified, ok := apperrors.As(err); ok && classified.Stack != "" {
		je.Stack = classified.Stack
	}
	return je
}
