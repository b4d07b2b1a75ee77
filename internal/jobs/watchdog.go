package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Watchdog scans for PROCESSING jobs whose progress clock has gone quiet
// and reports each once per scan to the stall callback. The callback (the
// dispatcher, in production wiring) decides the terminal transition.
type Watchdog struct {
	store    Store
	timeout  time.Duration
	interval time.Duration
	onStall  func(ctx context.Context, jobID string)
}

// NewWatchdog builds a watchdog. interval <= 0 defaults to a quarter of
// the timeout so a stall is noticed well within one extra timeout span.
func NewWatchdog(store Store, timeout, interval time.Duration, onStall func(ctx context.Context, jobID string)) *Watchdog {
	if interval <= 0 {
		interval = timeout / 4
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &Watchdog{store: store, timeout: timeout, interval: interval, onStall: onStall}
}

// Run scans until ctx is cancelled.
func (w *Watchdog) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.scan(ctx)
		}
	}
}

func (w *Watchdog) scan(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-w.timeout)
	stalled, err := w.store.Stalled(ctx, cutoff)
	if err != nil {
		log.Warn().Err(err).Msg("Stall scan failed")
		return
	}
	for _, j := range stalled {
		log.Warn().
			Str("job_id", j.ID).
			Str("kind", string(j.Kind)).
			Time("last_progress", j.LastProgressAt).
			Msg("Job stalled")
		w.onStall(ctx, j.ID)
	}
}
