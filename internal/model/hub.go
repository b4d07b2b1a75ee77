package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"freightflow/internal/geo"
)

// FacilityType classifies the physical site behind a Smart Hub.
type FacilityType string

const (
	FacilityTruckStop    FacilityType = "TRUCK_STOP"
	FacilityTerminal     FacilityType = "TERMINAL"
	FacilityWarehouse    FacilityType = "WAREHOUSE"
	FacilityDistribution FacilityType = "DISTRIBUTION_CENTER"
	FacilityRestArea     FacilityType = "REST_AREA"
)

// Amenity is a driver-facing service available at a hub.
type Amenity string

const (
	AmenityParking     Amenity = "PARKING"
	AmenityRestrooms   Amenity = "RESTROOMS"
	AmenityFood        Amenity = "FOOD"
	AmenityFuel        Amenity = "FUEL"
	AmenityMaintenance Amenity = "MAINTENANCE"
	AmenityShower      Amenity = "SHOWER"
	AmenityLodging     Amenity = "LODGING"
	AmenitySecurity    Amenity = "SECURITY"
)

// OperatingHours is a weekly schedule. Open and Close are "HH:MM" local
// times; a close before open wraps past midnight. Weekdays uses
// time.Weekday values (0 = Sunday).
type OperatingHours struct {
	Open     string         `json:"open"`
	Close    string         `json:"close"`
	Weekdays []time.Weekday `json:"weekdays"`
}

// Duration returns the length of one open interval. Wrap-around schedules
// (close < open) add 24h, so "22:00"–"06:00" is 8 hours.
func (h OperatingHours) Duration() (time.Duration, error) {
	open, err := parseClock(h.Open)
	if err != nil {
		return 0, fmt.Errorf("parsing open time: %w", err)
	}
	closing, err := parseClock(h.Close)
	if err != nil {
		return 0, fmt.Errorf("parsing close time: %w", err)
	}
	if open == closing {
		return 0, fmt.Errorf("open and close must differ, both %q", h.Open)
	}
	if closing < open {
		closing += 24 * time.Hour
	}
	return closing - open, nil
}

// parseClock converts "HH:MM" to the offset from midnight.
func parseClock(s string) (time.Duration, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("malformed clock time %q", s)
	}
	hh, err := strconv.Atoi(parts[0])
	if err != nil || hh < 0 || hh > 23 {
		return 0, fmt.Errorf("malformed hour in %q", s)
	}
	mm, err := strconv.Atoi(parts[1])
	if err != nil || mm < 0 || mm > 59 {
		return 0, fmt.Errorf("malformed minute in %q", s)
	}
	return time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute, nil
}

// HubMetrics are the derived optimization metrics refreshed on each
// completed identification run.
type HubMetrics struct {
	NetworkImpact      float64 `json:"network_impact"`
	GeographicCoverage float64 `json:"geographic_coverage"`
	UtilizationRate    float64 `json:"utilization_rate"`
}

// HubCounters accumulate operational history for a hub.
type HubCounters struct {
	ExchangeCount      int     `json:"exchange_count"`
	SuccessRate        float64 `json:"success_rate"`
	AverageWaitMinutes float64 `json:"average_wait_minutes"`
}

// SmartHub is a designated exchange point between drivers.
type SmartHub struct {
	ID              string         `json:"id"`
	Name            string         `json:"name"`
	FacilityType    FacilityType   `json:"facility_type"`
	Location        geo.Point      `json:"location"`
	Amenities       []Amenity      `json:"amenities,omitempty"`
	Capacity        int            `json:"capacity"` // simultaneous trucks
	Hours           OperatingHours `json:"hours"`
	EfficiencyScore float64        `json:"efficiency_score"` // [0,100]
	Active          bool           `json:"active"`
	Metrics         HubMetrics     `json:"metrics"`
	Counters        HubCounters    `json:"counters"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// HasAmenity reports whether the hub offers the given amenity.
func (h SmartHub) HasAmenity(a Amenity) bool {
	for _, have := range h.Amenities {
		if have == a {
			return true
		}
	}
	return false
}
