// Package model holds the record types shared across the optimization
// components: fleet entities, jobs, results, relay plans, and the event
// payloads that cross the bus. Everything here is a plain value type;
// behavior lives with the components that own it.
package model

import (
	"time"

	"freightflow/internal/geo"
)

// EntityType tags the producer of a position update.
type EntityType string

const (
	EntityDriver EntityType = "DRIVER"
	EntityTruck  EntityType = "TRUCK"
	EntityLoad   EntityType = "LOAD"
)

// Position is an immutable location snapshot produced by ingress.
type Position struct {
	Location  geo.Point `json:"location"`
	Heading   float64   `json:"heading"`  // degrees, [0, 360)
	SpeedMPH  float64   `json:"speed"`    // instantaneous
	Accuracy  float64   `json:"accuracy"` // meters, GPS-reported
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
}
