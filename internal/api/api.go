// Package api is the in-process control surface: job submission and
// lifecycle, result retrieval, the hub catalogue, and relay plan
// management. Transport (HTTP routing, auth, serialization) is an
// external collaborator; callers here receive classified errors they can
// map to status codes with apperrors.HTTPStatus.
package api

import (
	"context"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"freightflow/internal/apperrors"
	"freightflow/internal/hubs"
	"freightflow/internal/jobs"
	"freightflow/internal/model"
	"freightflow/internal/relay"
	"freightflow/internal/results"
)

// DefaultPriority applies when a create request leaves priority unset.
const DefaultPriority = 5

// Canceller stops a job wherever it sits in the pipeline. The dispatcher
// implements it.
type Canceller interface {
	Cancel(ctx context.Context, jobID string) (model.Job, error)
}

// Service exposes the control operations.
type Service struct {
	validate  *validator.Validate
	jobs      *jobs.Service
	results   results.Store
	canceller Canceller
	hubs      hubs.Repository
	relays    relay.Store
	exchange  hubs.ExchangeParams
}

// New wires the control surface over the engine's collaborators.
func New(jobSvc *jobs.Service, resultStore results.Store, canceller Canceller, hubRepo hubs.Repository, relayStore relay.Store, exchange hubs.ExchangeParams) *Service {
	return &Service{
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		jobs:      jobSvc,
		results:   resultStore,
		canceller: canceller,
		hubs:      hubRepo,
		relays:    relayStore,
		exchange:  exchange,
	}
}

// check runs struct validation and folds field failures into one
// classified validation error.
func (s *Service) check(req any) error {
	err := s.validate.Struct(req)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		details := make([]any, 0, len(fieldErrs)*2)
		for _, fe := range fieldErrs {
			details = append(details, fe.Field(), fe.Tag())
		}
		return apperrors.Validation("REQUEST", "invalid request", details...)
	}
	return apperrors.Validation("REQUEST", err.Error())
}

// CreateJobRequest is the validated job submission payload.
type CreateJobRequest struct {
	Kind      model.JobKind       `json:"kind" validate:"required,oneof=LOAD_MATCHING SMART_HUB_IDENTIFICATION RELAY_PLANNING NETWORK_OPTIMIZATION DEMAND_PREDICTION"`
	Params    model.JobParameters `json:"params"`
	Priority  int                 `json:"priority" validate:"omitempty,min=1,max=10"`
	CreatedBy string              `json:"created_by" validate:"required"`
}

// CreateJob validates and submits a job, returning the persisted record.
func (s *Service) CreateJob(ctx context.Context, req CreateJobRequest) (model.Job, error) {
	if err := s.check(req); err != nil {
		return model.Job{}, err
	}
	if req.Priority == 0 {
		req.Priority = DefaultPriority
	}
	j, err := s.jobs.Submit(ctx, req.Kind, req.Params, req.Priority, req.CreatedBy)
	if err != nil {
		return model.Job{}, err
	}
	log.Info().
		Str("job_id", j.ID).
		Str("kind", string(j.Kind)).
		Int("priority", j.Priority).
		Str("created_by", j.CreatedBy).
		Msg("Job created")
	return j, nil
}

// GetJobStatus returns the job record by id.
func (s *Service) GetJobStatus(ctx context.Context, jobID string) (model.Job, error) {
	if jobID == "" {
		return model.Job{}, apperrors.Validation("JOB_ID", "job id is required")
	}
	return s.jobs.Store().Get(ctx, jobID)
}

// ListJobs returns jobs matching the filter, priority desc then age.
func (s *Service) ListJobs(ctx context.Context, filter jobs.Filter) ([]model.Job, error) {
	return s.jobs.Store().List(ctx, filter)
}

// CancelJob stops the job. Terminal jobs yield a conflict.
func (s *Service) CancelJob(ctx context.Context, jobID string) (model.Job, error) {
	if jobID == "" {
		return model.Job{}, apperrors.Validation("JOB_ID", "job id is required")
	}
	return s.canceller.Cancel(ctx, jobID)
}

// GetResult returns a result by id.
func (s *Service) GetResult(ctx context.Context, resultID string) (model.Result, error) {
	if resultID == "" {
		return model.Result{}, apperrors.Validation("RESULT_ID", "result id is required")
	}
	return s.results.Get(ctx, resultID)
}

// GetJobResult returns the result owned by a job, if it has completed.
func (s *Service) GetJobResult(ctx context.Context, jobID string) (model.Result, error) {
	if jobID == "" {
		return model.Result{}, apperrors.Validation("JOB_ID", "job id is required")
	}
	return s.results.GetByJob(ctx, jobID)
}
