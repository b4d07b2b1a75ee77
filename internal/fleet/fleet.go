// Package fleet holds the driver and load repositories the optimization
// components read, plus the rolling position history hub discovery mines.
// The algorithmic components depend only on the interfaces here; the
// bundled in-memory implementations stand in for the persistence drivers,
// which are external collaborators.
package fleet

import (
	"context"
	"time"

	"freightflow/internal/geo"
	"freightflow/internal/model"
)

// Assignment records one AVAILABLE → ASSIGNED transition. Every such
// transition carries exactly one of these, referencing a driver whose
// equipment matches the load's requirement.
type Assignment struct {
	ID         string    `json:"id"`
	LoadID     string    `json:"load_id"`
	DriverID   string    `json:"driver_id"`
	AssignedAt time.Time `json:"assigned_at"`
}

// DriverRepository is the engine's read/refresh view of drivers.
type DriverRepository interface {
	Upsert(ctx context.Context, d model.Driver) error
	Get(ctx context.Context, id string) (model.Driver, error)
	UpdatePosition(ctx context.Context, id string, p model.Position) error
	// ListAvailable returns available drivers, filtered to the region when
	// region is non-empty, sorted by id for deterministic optimization
	// input.
	ListAvailable(ctx context.Context, region string) ([]model.Driver, error)
}

// LoadRepository is the engine's view of loads and their lifecycle.
type LoadRepository interface {
	Upsert(ctx context.Context, l model.Load) error
	Get(ctx context.Context, id string) (model.Load, error)
	// Transition moves a load from → to, enforcing lifecycle legality.
	Transition(ctx context.Context, id string, from, to model.LoadStatus) (model.Load, error)
	// Assign performs AVAILABLE → ASSIGNED atomically with the assignment
	// record, verifying the driver exists and its equipment matches.
	Assign(ctx context.Context, loadID, driverID string) (Assignment, error)
	// ListByStatus returns loads in the given status, filtered to the
	// region when region is non-empty, sorted by id.
	ListByStatus(ctx context.Context, status model.LoadStatus, region string) ([]model.Load, error)
	Assignments(ctx context.Context, loadID string) ([]Assignment, error)
}

// PositionHistory is the rolling log of recent driver positions. Ingress
// appends; hub identification reads the accumulated route points.
type PositionHistory interface {
	Record(ctx context.Context, driverID string, p model.Position)
	// RoutePoints returns up to limit recent points across all drivers,
	// newest last. limit <= 0 returns everything retained.
	RoutePoints(ctx context.Context, limit int) []geo.Point
	// DriverTrail returns the retained points for one driver, oldest first.
	DriverTrail(ctx context.Context, driverID string) []geo.Point
}
