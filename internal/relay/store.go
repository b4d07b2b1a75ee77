package relay

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"freightflow/internal/apperrors"
	"freightflow/internal/model"
)

// Store persists relay plans and enforces the plan lifecycle.
type Store interface {
	Create(ctx context.Context, plan model.RelayPlan) (model.RelayPlan, error)
	Get(ctx context.Context, id string) (model.RelayPlan, error)
	// List filters by status and load id; zero values match everything.
	// Results are sorted by creation time, then id.
	List(ctx context.Context, status model.RelayStatus, loadID string) ([]model.RelayPlan, error)
	// Transition moves a plan along the lifecycle, rejecting illegal
	// edges with a conflict.
	Transition(ctx context.Context, id string, to model.RelayStatus) (model.RelayPlan, error)
	// MarkHandoff records the actual outcome of one exchange.
	MarkHandoff(ctx context.Context, id string, index int, actual time.Time, missed bool) (model.RelayPlan, error)
	// Delete removes a DRAFT plan outright; anything further along must
	// be cancelled through Transition instead.
	Delete(ctx context.Context, id string) error
}

// MemoryStore is the in-memory Store.
type MemoryStore struct {
	mu    sync.RWMutex
	plans map[string]model.RelayPlan
}

// NewMemoryStore returns an empty relay plan store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{plans: make(map[string]model.RelayPlan)}
}

// Create stores the plan, minting an id and stamping timestamps where
// missing. A plan with no status starts as a draft.
func (s *MemoryStore) Create(_ context.Context, plan model.RelayPlan) (model.RelayPlan, error) {
	if plan.LoadID == "" {
		return model.RelayPlan{}, apperrors.Validation("RELAY_LOAD_REQUIRED", "relay plan needs a load id")
	}
	if plan.ID == "" {
		plan.ID = uuid.NewString()
	}
	if plan.Status == "" {
		plan.Status = model.RelayDraft
	}
	now := time.Now().UTC()
	if plan.CreatedAt.IsZero() {
		plan.CreatedAt = now
	}
	plan.UpdatedAt = now

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.plans[plan.ID]; exists {
		return model.RelayPlan{}, apperrors.Conflict("RELAY_PLAN_EXISTS", "relay plan id already in use")
	}
	s.plans[plan.ID] = plan
	return plan, nil
}

// Get returns the plan by id.
func (s *MemoryStore) Get(_ context.Context, id string) (model.RelayPlan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	plan, ok := s.plans[id]
	if !ok {
		return model.RelayPlan{}, apperrors.NotFound("relay plan", id)
	}
	return plan, nil
}

// List returns plans matching the filters, sorted by creation time then id.
func (s *MemoryStore) List(_ context.Context, status model.RelayStatus, loadID string) ([]model.RelayPlan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.RelayPlan, 0, len(s.plans))
	for _, plan := range s.plans {
		if status != "" && plan.Status != status {
			continue
		}
		if loadID != "" && plan.LoadID != loadID {
			continue
		}
		out = append(out, plan)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Transition moves the plan to the target status when the edge is legal.
func (s *MemoryStore) Transition(_ context.Context, id string, to model.RelayStatus) (model.RelayPlan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	plan, ok := s.plans[id]
	if !ok {
		return model.RelayPlan{}, apperrors.NotFound("relay plan", id)
	}
	if !plan.Status.CanTransition(to) {
		return model.RelayPlan{}, apperrors.Conflict("RELAY_ILLEGAL_TRANSITION",
			string(plan.Status)+" cannot transition to "+string(to))
	}
	plan.Status = to
	plan.UpdatedAt = time.Now().UTC()
	s.plans[id] = plan
	return plan, nil
}

// MarkHandoff records the actual exchange time and outcome for one
// handoff. Completed or missed handoffs cannot be re-marked.
func (s *MemoryStore) MarkHandoff(_ context.Context, id string, index int, actual time.Time, missed bool) (model.RelayPlan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	plan, ok := s.plans[id]
	if !ok {
		return model.RelayPlan{}, apperrors.NotFound("relay plan", id)
	}
	if index < 0 || index >= len(plan.Handoffs) {
		return model.RelayPlan{}, apperrors.Validation("RELAY_HANDOFF_INDEX",
			"handoff index out of range", "index", index, "handoffs", len(plan.Handoffs))
	}
	handoffs := make([]model.Handoff, len(plan.Handoffs))
	copy(handoffs, plan.Handoffs)
	h := &handoffs[index]
	if h.Status != model.HandoffScheduled {
		return model.RelayPlan{}, apperrors.Conflict("RELAY_HANDOFF_DONE", "handoff already resolved")
	}
	at := actual
	h.Actual = &at
	if missed {
		h.Status = model.HandoffMissed
	} else {
		h.Status = model.HandoffCompleted
	}
	plan.Handoffs = handoffs
	plan.UpdatedAt = time.Now().UTC()
	s.plans[id] = plan
	return plan, nil
}

// Delete removes a draft plan.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	plan, ok := s.plans[id]
	if !ok {
		return apperrors.NotFound("relay plan", id)
	}
	if plan.Status != model.RelayDraft {
		return apperrors.Conflict("RELAY_PLAN_IN_FLIGHT",
			"only draft plans can be deleted; cancel instead")
	}
	delete(s.plans, id)
	return nil
}
