// Package results stores the write-once artifacts completed jobs produce
// and republishes them to downstream subscribers. A result is immutable
// once created and at most one result exists per job.
package results

import (
	"context"

	"freightflow/internal/model"
)

// Store persists results. Create enforces write-once semantics on both
// the result id and the owning job id.
type Store interface {
	Create(ctx context.Context, r model.Result) (model.Result, error)
	Get(ctx context.Context, id string) (model.Result, error)
	GetByJob(ctx context.Context, jobID string) (model.Result, error)
}
