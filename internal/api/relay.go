package api

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"freightflow/internal/apperrors"
	"freightflow/internal/model"
)

// GetRelayPlan returns a plan by id.
func (s *Service) GetRelayPlan(ctx context.Context, planID string) (model.RelayPlan, error) {
	if planID == "" {
		return model.RelayPlan{}, apperrors.Validation("PLAN_ID", "plan id is required")
	}
	return s.relays.Get(ctx, planID)
}

// ListRelayPlans filters plans by status and load id; zero values match
// everything.
func (s *Service) ListRelayPlans(ctx context.Context, status model.RelayStatus, loadID string) ([]model.RelayPlan, error) {
	return s.relays.List(ctx, status, loadID)
}

// TransitionRelayPlan moves a plan along its lifecycle. Illegal edges
// yield a conflict.
func (s *Service) TransitionRelayPlan(ctx context.Context, planID string, to model.RelayStatus) (model.RelayPlan, error) {
	if planID == "" {
		return model.RelayPlan{}, apperrors.Validation("PLAN_ID", "plan id is required")
	}
	plan, err := s.relays.Transition(ctx, planID, to)
	if err != nil {
		return model.RelayPlan{}, err
	}
	log.Info().Str("plan_id", planID).Str("status", string(to)).Msg("Relay plan transitioned")
	return plan, nil
}

// MarkHandoffRequest records the actual outcome of one exchange.
type MarkHandoffRequest struct {
	PlanID string    `json:"plan_id" validate:"required"`
	Index  int       `json:"index" validate:"min=0"`
	Actual time.Time `json:"actual" validate:"required"`
	Missed bool      `json:"missed"`
}

// MarkHandoff stamps a handoff completed or missed and folds the outcome
// into the hub's exchange counters.
func (s *Service) MarkHandoff(ctx context.Context, req MarkHandoffRequest) (model.RelayPlan, error) {
	if err := s.check(req); err != nil {
		return model.RelayPlan{}, err
	}
	plan, err := s.relays.MarkHandoff(ctx, req.PlanID, req.Index, req.Actual, req.Missed)
	if err != nil {
		return model.RelayPlan{}, err
	}

	handoff := plan.Handoffs[req.Index]
	waitMinutes := req.Actual.Sub(handoff.Scheduled).Minutes()
	if waitMinutes < 0 {
		waitMinutes = 0
	}
	if err := s.hubs.RecordExchange(ctx, handoff.HubID, !req.Missed, waitMinutes); err != nil {
		log.Warn().Err(err).Str("hub_id", handoff.HubID).Msg("Exchange counter update failed")
	}
	return plan, nil
}

// DeleteRelayPlan removes a DRAFT plan outright. Plans further along must
// be cancelled through TransitionRelayPlan.
func (s *Service) DeleteRelayPlan(ctx context.Context, planID string) error {
	if planID == "" {
		return apperrors.Validation("PLAN_ID", "plan id is required")
	}
	return s.relays.Delete(ctx, planID)
}
