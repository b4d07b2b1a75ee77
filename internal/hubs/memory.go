package hubs

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mmcloughlin/geohash"
	"github.com/rs/zerolog/log"

	"freightflow/internal/apperrors"
	"freightflow/internal/geo"
	"freightflow/internal/model"
)

// cellPrecision is the geohash length for index buckets. Precision-4 cells
// are ~0.18 by 0.35 degrees, wide enough that typical radius queries touch
// a handful of cells.
const cellPrecision = 4

// Precision-4 geohash cell dimensions in degrees.
const (
	cellLatDeg = 0.17578125
	cellLonDeg = 0.3515625
)

// MemoryRepository is an in-memory hub catalogue with a geohash-bucket 2D
// index. Reads dominate; mutations rebuild the affected buckets under the
// write lock.
type MemoryRepository struct {
	mu    sync.RWMutex
	hubs  map[string]model.SmartHub
	cells map[string][]string // geohash cell -> hub ids (active only)

	// Operating bounds; when non-empty, hub locations must fall inside.
	bounds []geo.Point
}

// NewMemoryRepository returns an empty hub catalogue. bounds, when
// non-empty, is the operating-region polygon every hub location must lie
// within.
func NewMemoryRepository(bounds []geo.Point) *MemoryRepository {
	return &MemoryRepository{
		hubs:   make(map[string]model.SmartHub),
		cells:  make(map[string][]string),
		bounds: bounds,
	}
}

// validate enforces the structural hub invariants on create and update.
func (r *MemoryRepository) validate(h model.SmartHub) error {
	if h.Name == "" {
		return apperrors.Validation("MISSING_HUB_NAME", "hub name is required")
	}
	if h.Location.Lat < -90 || h.Location.Lat > 90 || h.Location.Lon < -180 || h.Location.Lon > 180 {
		return apperrors.Validation("HUB_LOCATION_RANGE", "hub location out of coordinate range",
			"lat", h.Location.Lat, "lon", h.Location.Lon)
	}
	if h.Capacity <= 0 {
		return apperrors.Validation("HUB_CAPACITY", "hub capacity must be positive", "capacity", h.Capacity)
	}
	if _, err := h.Hours.Duration(); err != nil {
		return apperrors.Validation("HUB_HOURS", err.Error())
	}
	if len(r.bounds) >= 3 && !geo.PointInPolygon(h.Location, r.bounds) {
		return apperrors.Validation("HUB_OUTSIDE_REGION", "hub location lies outside the operating region",
			"lat", h.Location.Lat, "lon", h.Location.Lon)
	}
	return nil
}

func (r *MemoryRepository) Create(_ context.Context, h model.SmartHub) (model.SmartHub, error) {
	if err := r.validate(h); err != nil {
		return model.SmartHub{}, err
	}
	if h.ID == "" {
		h.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	h.CreatedAt = now
	h.UpdatedAt = now
	h.Active = true

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.hubs[h.ID]; exists {
		return model.SmartHub{}, apperrors.Conflict("HUB_EXISTS", "hub "+h.ID+" already exists")
	}
	r.hubs[h.ID] = h
	r.indexLocked(h)

	log.Info().Str("hub_id", h.ID).Str("name", h.Name).Msg("Hub created")
	return h, nil
}

func (r *MemoryRepository) Get(_ context.Context, id string) (model.SmartHub, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.hubs[id]
	if !ok {
		return model.SmartHub{}, apperrors.NotFound("hub", id)
	}
	return h, nil
}

func (r *MemoryRepository) Update(_ context.Context, id string, p Patch) (model.SmartHub, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.hubs[id]
	if !ok {
		return model.SmartHub{}, apperrors.NotFound("hub", id)
	}

	prevLoc := h.Location
	if p.Name != nil {
		h.Name = *p.Name
	}
	if p.FacilityType != nil {
		h.FacilityType = *p.FacilityType
	}
	if p.Location != nil {
		h.Location = *p.Location
	}
	if p.Amenities != nil {
		h.Amenities = append([]model.Amenity(nil), (*p.Amenities)...)
	}
	if p.Capacity != nil {
		h.Capacity = *p.Capacity
	}
	if p.Hours != nil {
		h.Hours = *p.Hours
	}
	if p.EfficiencyScore != nil {
		h.EfficiencyScore = *p.EfficiencyScore
	}
	if p.Active != nil {
		h.Active = *p.Active
	}

	if err := r.validate(h); err != nil {
		return model.SmartHub{}, err
	}
	h.UpdatedAt = time.Now().UTC()
	r.hubs[id] = h

	// Index rebuild for the moved/toggled hub.
	r.unindexLocked(id, prevLoc)
	r.indexLocked(h)
	return h, nil
}

func (r *MemoryRepository) Deactivate(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.hubs[id]
	if !ok {
		return apperrors.NotFound("hub", id)
	}
	if !h.Active {
		return nil
	}
	h.Active = false
	h.UpdatedAt = time.Now().UTC()
	r.hubs[id] = h
	r.unindexLocked(id, h.Location)

	log.Info().Str("hub_id", id).Msg("Hub deactivated")
	return nil
}

func (r *MemoryRepository) Near(_ context.Context, center geo.Point, radiusMi float64, f Filter) ([]model.SmartHub, error) {
	if radiusMi <= 0 {
		return nil, apperrors.Validation("HUB_RADIUS", "radius must be positive", "radius_mi", radiusMi)
	}

	box := geo.BoundingBox(center, radiusMi*1.609344)

	r.mu.RLock()
	defer r.mu.RUnlock()

	type scored struct {
		hub  model.SmartHub
		dist float64
	}
	seen := make(map[string]bool)
	var out []scored
	for _, cell := range coveringCells(box) {
		for _, id := range r.cells[cell] {
			if seen[id] {
				continue
			}
			seen[id] = true
			h := r.hubs[id]
			if !f.matches(h) {
				continue
			}
			d := geo.DistanceMiles(center, h.Location)
			if d <= radiusMi {
				out = append(out, scored{hub: h, dist: d})
			}
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].dist != out[j].dist {
			return out[i].dist < out[j].dist
		}
		return out[i].hub.ID < out[j].hub.ID
	})

	hubsOut := make([]model.SmartHub, len(out))
	for i, s := range out {
		hubsOut[i] = s.hub
	}
	return hubsOut, nil
}

func (r *MemoryRepository) Within(_ context.Context, box geo.Box) ([]model.SmartHub, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool)
	var out []model.SmartHub
	for _, cell := range coveringCells(box) {
		for _, id := range r.cells[cell] {
			if seen[id] {
				continue
			}
			seen[id] = true
			if h := r.hubs[id]; box.Contains(h.Location) {
				out = append(out, h)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MemoryRepository) ListActive(_ context.Context) ([]model.SmartHub, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]model.SmartHub, 0, len(r.hubs))
	for _, h := range r.hubs {
		if h.Active {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MemoryRepository) UpdateMetrics(_ context.Context, id string, m model.HubMetrics) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.hubs[id]
	if !ok {
		return apperrors.NotFound("hub", id)
	}
	h.Metrics = m
	h.UpdatedAt = time.Now().UTC()
	r.hubs[id] = h
	return nil
}

func (r *MemoryRepository) RecordExchange(_ context.Context, id string, success bool, waitMinutes float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.hubs[id]
	if !ok {
		return apperrors.NotFound("hub", id)
	}

	// Running means over the exchange count.
	n := float64(h.Counters.ExchangeCount)
	succ := h.Counters.SuccessRate * n
	if success {
		succ++
	}
	h.Counters.AverageWaitMinutes = (h.Counters.AverageWaitMinutes*n + waitMinutes) / (n + 1)
	h.Counters.ExchangeCount++
	h.Counters.SuccessRate = succ / (n + 1)
	h.UpdatedAt = time.Now().UTC()
	r.hubs[id] = h
	return nil
}

// indexLocked adds an active hub to its geohash bucket. Caller holds the
// write lock.
func (r *MemoryRepository) indexLocked(h model.SmartHub) {
	if !h.Active {
		return
	}
	cell := geohash.EncodeWithPrecision(h.Location.Lat, h.Location.Lon, cellPrecision)
	r.cells[cell] = append(r.cells[cell], h.ID)
}

// unindexLocked removes a hub id from the bucket that covered loc.
func (r *MemoryRepository) unindexLocked(id string, loc geo.Point) {
	cell := geohash.EncodeWithPrecision(loc.Lat, loc.Lon, cellPrecision)
	ids := r.cells[cell]
	for i, existing := range ids {
		if existing == id {
			r.cells[cell] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(r.cells[cell]) == 0 {
		delete(r.cells, cell)
	}
}

// coveringCells enumerates every precision-4 cell intersecting the box by
// sampling at half-cell steps. The sample grid overshoots the box edge by
// one step so boundary cells are never missed.
func coveringCells(box geo.Box) []string {
	seen := make(map[string]struct{})
	var cells []string

	for lat := box.MinLat; lat <= box.MaxLat+cellLatDeg/2; lat += cellLatDeg / 2 {
		clampedLat := lat
		if clampedLat > 90 {
			clampedLat = 90
		}
		if clampedLat < -90 {
			clampedLat = -90
		}
		for lon := box.MinLon; lon <= box.MaxLon+cellLonDeg/2; lon += cellLonDeg / 2 {
			cell := geohash.EncodeWithPrecision(clampedLat, wrapLon(lon), cellPrecision)
			if _, ok := seen[cell]; !ok {
				seen[cell] = struct{}{}
				cells = append(cells, cell)
			}
		}
	}
	return cells
}

func wrapLon(lon float64) float64 {
	for lon >= 180 {
		lon -= 360
	}
	for lon < -180 {
		lon += 360
	}
	return lon
}
