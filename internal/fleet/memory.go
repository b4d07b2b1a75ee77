package fleet

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"freightflow/internal/apperrors"
	"freightflow/internal/geo"
	"freightflow/internal/model"
)

// MemoryDrivers is an in-memory DriverRepository guarded by one RWMutex.
type MemoryDrivers struct {
	mu      sync.RWMutex
	drivers map[string]model.Driver
}

// NewMemoryDrivers returns an empty driver repository.
func NewMemoryDrivers() *MemoryDrivers {
	return &MemoryDrivers{drivers: make(map[string]model.Driver)}
}

func (r *MemoryDrivers) Upsert(_ context.Context, d model.Driver) error {
	if d.ID == "" {
		return apperrors.Validation("MISSING_DRIVER_ID", "driver id is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drivers[d.ID] = d
	return nil
}

func (r *MemoryDrivers) Get(_ context.Context, id string) (model.Driver, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.drivers[id]
	if !ok {
		return model.Driver{}, apperrors.NotFound("driver", id)
	}
	return d, nil
}

func (r *MemoryDrivers) UpdatePosition(_ context.Context, id string, p model.Position) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.drivers[id]
	if !ok {
		return apperrors.NotFound("driver", id)
	}
	d.Position = p.Location
	r.drivers[id] = d
	return nil
}

func (r *MemoryDrivers) ListAvailable(_ context.Context, region string) ([]model.Driver, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]model.Driver, 0, len(r.drivers))
	for _, d := range r.drivers {
		if !d.Available {
			continue
		}
		if region != "" && len(d.PreferredRegions) > 0 && !d.PrefersRegion(region) {
			continue
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// MemoryLoads is an in-memory LoadRepository. Transitions and assignment
// records mutate under one lock so the assignment invariant holds.
type MemoryLoads struct {
	mu          sync.RWMutex
	loads       map[string]model.Load
	assignments map[string][]Assignment // by load id
	drivers     DriverRepository
}

// NewMemoryLoads returns an empty load repository. Assignment validation
// dereferences drivers through the given repository.
func NewMemoryLoads(drivers DriverRepository) *MemoryLoads {
	return &MemoryLoads{
		loads:       make(map[string]model.Load),
		assignments: make(map[string][]Assignment),
		drivers:     drivers,
	}
}

func (r *MemoryLoads) Upsert(_ context.Context, l model.Load) error {
	if l.ID == "" {
		return apperrors.Validation("MISSING_LOAD_ID", "load id is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loads[l.ID] = l
	return nil
}

func (r *MemoryLoads) Get(_ context.Context, id string) (model.Load, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.loads[id]
	if !ok {
		return model.Load{}, apperrors.NotFound("load", id)
	}
	return l, nil
}

func (r *MemoryLoads) Transition(_ context.Context, id string, from, to model.LoadStatus) (model.Load, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.loads[id]
	if !ok {
		return model.Load{}, apperrors.NotFound("load", id)
	}
	if l.Status != from {
		return model.Load{}, apperrors.Conflict("LOAD_STATUS_STALE",
			"load "+id+" is "+string(l.Status)+", expected "+string(from))
	}
	if !from.CanTransition(to) {
		return model.Load{}, apperrors.Conflict("LOAD_TRANSITION_ILLEGAL",
			"load cannot move "+string(from)+" → "+string(to))
	}
	l.Status = to
	r.loads[id] = l
	return l, nil
}

func (r *MemoryLoads) Assign(ctx context.Context, loadID, driverID string) (Assignment, error) {
	driver, err := r.drivers.Get(ctx, driverID)
	if err != nil {
		return Assignment{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.loads[loadID]
	if !ok {
		return Assignment{}, apperrors.NotFound("load", loadID)
	}
	if l.Status != model.LoadAvailable {
		return Assignment{}, apperrors.Conflict("LOAD_NOT_AVAILABLE",
			"load "+loadID+" is "+string(l.Status)+", only AVAILABLE loads can be assigned")
	}
	if driver.Equipment != l.RequiredEquipment {
		return Assignment{}, apperrors.Conflict("EQUIPMENT_MISMATCH",
			"driver "+driverID+" runs "+string(driver.Equipment)+", load requires "+string(l.RequiredEquipment))
	}

	a := Assignment{
		ID:         uuid.NewString(),
		LoadID:     loadID,
		DriverID:   driverID,
		AssignedAt: time.Now().UTC(),
	}
	l.Status = model.LoadAssigned
	r.loads[loadID] = l
	r.assignments[loadID] = append(r.assignments[loadID], a)

	log.Debug().Str("load_id", loadID).Str("driver_id", driverID).Msg("Load assigned")
	return a, nil
}

func (r *MemoryLoads) ListByStatus(_ context.Context, status model.LoadStatus, region string) ([]model.Load, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]model.Load, 0)
	for _, l := range r.loads {
		if l.Status != status {
			continue
		}
		if region != "" && l.Region != "" && l.Region != region {
			continue
		}
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MemoryLoads) Assignments(_ context.Context, loadID string) ([]Assignment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Assignment(nil), r.assignments[loadID]...), nil
}

// MemoryHistory retains a bounded ring of recent positions per driver.
type MemoryHistory struct {
	mu        sync.RWMutex
	trails    map[string][]timedPoint
	perDriver int
}

type timedPoint struct {
	point geo.Point
	at    time.Time
}

// DefaultTrailLength bounds the per-driver position ring.
const DefaultTrailLength = 512

// NewMemoryHistory returns a history retaining perDriver points per
// driver; perDriver <= 0 selects DefaultTrailLength.
func NewMemoryHistory(perDriver int) *MemoryHistory {
	if perDriver <= 0 {
		perDriver = DefaultTrailLength
	}
	return &MemoryHistory{
		trails:    make(map[string][]timedPoint),
		perDriver: perDriver,
	}
}

func (h *MemoryHistory) Record(_ context.Context, driverID string, p model.Position) {
	h.mu.Lock()
	defer h.mu.Unlock()

	trail := append(h.trails[driverID], timedPoint{point: p.Location, at: p.Timestamp})
	if len(trail) > h.perDriver {
		trail = trail[len(trail)-h.perDriver:]
	}
	h.trails[driverID] = trail
}

func (h *MemoryHistory) RoutePoints(_ context.Context, limit int) []geo.Point {
	h.mu.RLock()
	defer h.mu.RUnlock()

	all := make([]timedPoint, 0, 256)
	for _, trail := range h.trails {
		all = append(all, trail...)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].at.Before(all[j].at) })

	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	out := make([]geo.Point, len(all))
	for i, tp := range all {
		out[i] = tp.point
	}
	return out
}

func (h *MemoryHistory) DriverTrail(_ context.Context, driverID string) []geo.Point {
	h.mu.RLock()
	defer h.mu.RUnlock()

	trail := h.trails[driverID]
	out := make([]geo.Point, len(trail))
	for i, tp := range trail {
		out[i] = tp.point
	}
	return out
}
