package jobs

import (
	"context"

	"github.com/rs/zerolog/log"

	"freightflow/internal/metrics"
	"freightflow/internal/model"
)

// Service is the enqueue surface shared by ingress and the control API:
// one call persists the job and makes it schedulable.
type Service struct {
	store   Store
	queue   *Queue
	metrics *metrics.Metrics
}

// NewService wires the submit path over a store and queue.
func NewService(store Store, queue *Queue, m *metrics.Metrics) *Service {
	return &Service{store: store, queue: queue, metrics: m}
}

// Submit creates the job record and enqueues it.
func (s *Service) Submit(ctx context.Context, kind model.JobKind, params model.JobParameters, priority int, createdBy string) (model.Job, error) {
	j, err := s.store.Create(ctx, model.Job{
		Kind:      kind,
		Params:    params,
		Priority:  priority,
		CreatedBy: createdBy,
	})
	if err != nil {
		return model.Job{}, err
	}
	s.queue.Enqueue(j)
	s.metrics.SetQueueDepth(s.queue.Len())

	log.Debug().
		Str("job_id", j.ID).
		Str("kind", string(j.Kind)).
		Int("priority", j.Priority).
		Str("created_by", createdBy).
		Msg("Job submitted")
	return j, nil
}

// Resubmit puts an already-persisted PENDING job back on the queue. Used
// by the dispatcher's retry path and by startup recovery.
func (s *Service) Resubmit(j model.Job) {
	s.queue.Enqueue(j)
	s.metrics.SetQueueDepth(s.queue.Len())
}

// Depth reports the number of queued jobs, the backpressure signal ingress
// watches.
func (s *Service) Depth() int { return s.queue.Len() }

// Store exposes the underlying record store for read paths.
func (s *Service) Store() Store { return s.store }
