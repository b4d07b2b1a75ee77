// Package hubs owns the Smart Hub catalogue and the algorithms built on
// it: spatially indexed lookup, DBSCAN-driven discovery of new hub sites,
// scoring against network state, and exchange-point selection between two
// driver routes.
package hubs

import (
	"context"

	"freightflow/internal/geo"
	"freightflow/internal/model"
)

// Filter narrows a Near query. Zero values match everything.
type Filter struct {
	FacilityTypes []model.FacilityType // any-of, empty = all
	Amenities     []model.Amenity      // all required
	MinCapacity   int
}

// matches reports whether an active hub satisfies the filter.
func (f Filter) matches(h model.SmartHub) bool {
	if len(f.FacilityTypes) > 0 {
		found := false
		for _, ft := range f.FacilityTypes {
			if h.FacilityType == ft {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	for _, a := range f.Amenities {
		if !h.HasAmenity(a) {
			return false
		}
	}
	return h.Capacity >= f.MinCapacity
}

// Patch carries partial hub updates; nil fields are left unchanged.
type Patch struct {
	Name            *string
	FacilityType    *model.FacilityType
	Location        *geo.Point
	Amenities       *[]model.Amenity
	Capacity        *int
	Hours           *model.OperatingHours
	EfficiencyScore *float64
	Active          *bool
}

// Repository is the persisted hub catalogue. Implementations must back
// Near with a 2D spatial index that never omits a hub within the radius.
type Repository interface {
	Create(ctx context.Context, h model.SmartHub) (model.SmartHub, error)
	Get(ctx context.Context, id string) (model.SmartHub, error)
	Update(ctx context.Context, id string, p Patch) (model.SmartHub, error)
	// Deactivate is the soft delete: the hub stays retrievable by id but
	// disappears from Near, Within, and ListActive.
	Deactivate(ctx context.Context, id string) error
	// Near returns active hubs within radiusMi of the center, filtered,
	// sorted by ascending distance.
	Near(ctx context.Context, center geo.Point, radiusMi float64, f Filter) ([]model.SmartHub, error)
	// Within returns active hubs inside the box, sorted by id.
	Within(ctx context.Context, box geo.Box) ([]model.SmartHub, error)
	ListActive(ctx context.Context) ([]model.SmartHub, error)
	// UpdateMetrics refreshes the derived optimization metrics after an
	// identification run.
	UpdateMetrics(ctx context.Context, id string, m model.HubMetrics) error
	// RecordExchange folds one completed handoff into the hub's counters.
	RecordExchange(ctx context.Context, id string, success bool, waitMinutes float64) error
}
