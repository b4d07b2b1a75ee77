package model

import (
	"freightflow/internal/geo"
)

// EquipmentType is the tractor/trailer class a driver runs and a load
// requires. Matching is exact.
type EquipmentType string

const (
	EquipmentDryVan  EquipmentType = "DRY_VAN"
	EquipmentReefer  EquipmentType = "REEFER"
	EquipmentFlatbed EquipmentType = "FLATBED"
	EquipmentTanker  EquipmentType = "TANKER"
	EquipmentTractor EquipmentType = "TRACTOR"
)

// Driver is the engine's read view of a driver. DrivingMinutesRemaining is
// the aggregate HOS quantity; the engine consumes it read-only.
type Driver struct {
	ID                      string        `json:"id"`
	Name                    string        `json:"name"`
	Position                geo.Point     `json:"position"`
	HomeBase                geo.Point     `json:"home_base"`
	DrivingMinutesRemaining float64       `json:"driving_minutes_remaining"`
	PreferredRegions        []string      `json:"preferred_regions,omitempty"`
	Equipment               EquipmentType `json:"equipment"`
	Available               bool          `json:"available"`
}

// PrefersRegion reports whether region is in the driver's preferred set.
// An empty set means no preference.
func (d Driver) PrefersRegion(region string) bool {
	for _, r := range d.PreferredRegions {
		if r == region {
			return true
		}
	}
	return false
}
