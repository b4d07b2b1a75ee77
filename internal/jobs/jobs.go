// Package jobs owns the durable optimization job records and the
// in-process priority queue the dispatcher drains. The store enforces the
// lifecycle invariants around status transitions; the queue orders pending
// work by priority, then age.
package jobs

import (
	"context"
	"time"

	"freightflow/internal/model"
)

// Filter narrows a List query. Zero values match everything.
type Filter struct {
	Status model.JobStatus
	Kind   model.JobKind
	Region string
	// Limit caps the result count after ordering; <= 0 returns all.
	Limit int
}

// Store is the durable job record. Every transition method is atomic with
// respect to the job's status check, so the lifecycle invariants hold under
// concurrent workers: COMPLETED always carries a result id, FAILED always
// carries an error, and terminal jobs never mutate again.
type Store interface {
	// Create persists a new PENDING job. ID, CreatedAt, and Status are
	// assigned when zero; Priority is clamped into [1,10].
	Create(ctx context.Context, j model.Job) (model.Job, error)
	Get(ctx context.Context, id string) (model.Job, error)
	// List returns jobs matching the filter ordered by priority descending,
	// then created_at ascending, then id.
	List(ctx context.Context, f Filter) ([]model.Job, error)

	// Claim moves PENDING → PROCESSING, stamping started_at and counting
	// the attempt. Any other starting status is a conflict.
	Claim(ctx context.Context, id string) (model.Job, error)
	// Progress records forward progress on a PROCESSING job, clamped to
	// [0,100], and refreshes the stall clock.
	Progress(ctx context.Context, id string, pct float64) (model.Job, error)
	// Complete moves PROCESSING → COMPLETED with the result reference and
	// the processing time. resultID must be non-empty.
	Complete(ctx context.Context, id, resultID string) (model.Job, error)
	// Fail moves PROCESSING → FAILED recording the classified error.
	Fail(ctx context.Context, id string, jobErr model.JobError) (model.Job, error)
	// Cancel moves PENDING or PROCESSING → CANCELLED. Terminal jobs are a
	// conflict.
	Cancel(ctx context.Context, id string) (model.Job, error)
	// Requeue returns a PROCESSING job to PENDING after a retryable
	// failure, keeping the attempt count and recording the last error.
	Requeue(ctx context.Context, id string, jobErr model.JobError) (model.Job, error)

	// Stalled returns PROCESSING jobs whose last progress update is at or
	// before the cutoff, ordered by id.
	Stalled(ctx context.Context, cutoff time.Time) ([]model.Job, error)
}
