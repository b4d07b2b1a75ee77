package api

import (
	"context"

	"github.com/rs/zerolog/log"

	"freightflow/internal/apperrors"
	"freightflow/internal/geo"
	"freightflow/internal/hubs"
	"freightflow/internal/model"
)

// CreateHubRequest is the validated hub creation payload.
type CreateHubRequest struct {
	Name         string               `json:"name" validate:"required"`
	FacilityType model.FacilityType   `json:"facility_type" validate:"required,oneof=TRUCK_STOP TERMINAL WAREHOUSE DISTRIBUTION_CENTER REST_AREA"`
	Lat          float64              `json:"lat" validate:"min=-90,max=90"`
	Lon          float64              `json:"lon" validate:"min=-180,max=180"`
	Amenities    []model.Amenity      `json:"amenities"`
	Capacity     int                  `json:"capacity" validate:"min=0"`
	Hours        model.OperatingHours `json:"hours"`
}

// CreateHub validates and registers a hub.
func (s *Service) CreateHub(ctx context.Context, req CreateHubRequest) (model.SmartHub, error) {
	if err := s.check(req); err != nil {
		return model.SmartHub{}, err
	}
	hub, err := s.hubs.Create(ctx, model.SmartHub{
		Name:         req.Name,
		FacilityType: req.FacilityType,
		Location:     geo.Point{Lat: req.Lat, Lon: req.Lon},
		Amenities:    req.Amenities,
		Capacity:     req.Capacity,
		Hours:        req.Hours,
		Active:       true,
	})
	if err != nil {
		return model.SmartHub{}, err
	}
	log.Info().Str("hub_id", hub.ID).Str("name", hub.Name).Msg("Hub created")
	return hub, nil
}

// GetHub returns a hub by id, active or not.
func (s *Service) GetHub(ctx context.Context, hubID string) (model.SmartHub, error) {
	if hubID == "" {
		return model.SmartHub{}, apperrors.Validation("HUB_ID", "hub id is required")
	}
	return s.hubs.Get(ctx, hubID)
}

// UpdateHub applies a partial update.
func (s *Service) UpdateHub(ctx context.Context, hubID string, patch hubs.Patch) (model.SmartHub, error) {
	if hubID == "" {
		return model.SmartHub{}, apperrors.Validation("HUB_ID", "hub id is required")
	}
	if patch.Location != nil {
		if patch.Location.Lat < -90 || patch.Location.Lat > 90 ||
			patch.Location.Lon < -180 || patch.Location.Lon > 180 {
			return model.SmartHub{}, apperrors.Validation("HUB_LOCATION", "location out of range")
		}
	}
	return s.hubs.Update(ctx, hubID, patch)
}

// DeactivateHub soft-deletes a hub; it stays retrievable by id.
func (s *Service) DeactivateHub(ctx context.Context, hubID string) error {
	if hubID == "" {
		return apperrors.Validation("HUB_ID", "hub id is required")
	}
	if err := s.hubs.Deactivate(ctx, hubID); err != nil {
		return err
	}
	log.Info().Str("hub_id", hubID).Msg("Hub deactivated")
	return nil
}

// NearHubsRequest scopes a proximity query.
type NearHubsRequest struct {
	Lat      float64     `json:"lat" validate:"min=-90,max=90"`
	Lon      float64     `json:"lon" validate:"min=-180,max=180"`
	RadiusMi float64     `json:"radius_mi" validate:"gt=0"`
	Filter   hubs.Filter `json:"filter"`
}

// NearHubs returns active hubs within the radius, nearest first.
func (s *Service) NearHubs(ctx context.Context, req NearHubsRequest) ([]model.SmartHub, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	return s.hubs.Near(ctx, geo.Point{Lat: req.Lat, Lon: req.Lon}, req.RadiusMi, req.Filter)
}

// ExchangeRequest names two driver routes to swap loads between.
type ExchangeRequest struct {
	Route1 hubs.Route `json:"route1"`
	Route2 hubs.Route `json:"route2"`
}

// SelectExchangePoint picks the best hub for a two-driver load swap and
// returns the runner-up ranking alongside it.
func (s *Service) SelectExchangePoint(ctx context.Context, req ExchangeRequest) (hubs.ExchangeOption, []hubs.ExchangeOption, error) {
	candidates, err := s.hubs.ListActive(ctx)
	if err != nil {
		return hubs.ExchangeOption{}, nil, err
	}
	return hubs.SelectExchangePoint(candidates, req.Route1, req.Route2, s.exchange)
}
