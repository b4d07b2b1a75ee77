package model

import (
	"time"

	"freightflow/internal/geo"
)

// LoadStatus is the load lifecycle state.
type LoadStatus string

const (
	LoadPending   LoadStatus = "PENDING"
	LoadAvailable LoadStatus = "AVAILABLE"
	LoadAssigned  LoadStatus = "ASSIGNED"
	LoadInTransit LoadStatus = "IN_TRANSIT"
	LoadDelivered LoadStatus = "DELIVERED"
	LoadCompleted LoadStatus = "COMPLETED"
	LoadCancelled LoadStatus = "CANCELLED"
)

// loadTransitions enumerates the legal forward edges of the lifecycle.
// CANCELLED is reachable from every non-terminal state.
var loadTransitions = map[LoadStatus][]LoadStatus{
	LoadPending:   {LoadAvailable, LoadCancelled},
	LoadAvailable: {LoadAssigned, LoadCancelled},
	LoadAssigned:  {LoadInTransit, LoadAvailable, LoadCancelled},
	LoadInTransit: {LoadDelivered, LoadCancelled},
	LoadDelivered: {LoadCompleted},
}

// CanTransition reports whether from → to is a legal load status change.
func (s LoadStatus) CanTransition(to LoadStatus) bool {
	for _, next := range loadTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Stop is one end of a load: a location plus its service time window.
type Stop struct {
	Location geo.Point `json:"location"`
	Earliest time.Time `json:"earliest"`
	Latest   time.Time `json:"latest"`
}

// Load is a shipment from pickup to delivery.
type Load struct {
	ID                string        `json:"id"`
	Pickup            Stop          `json:"pickup"`
	Delivery          Stop          `json:"delivery"`
	WeightLbs         float64       `json:"weight_lbs"`
	RequiredEquipment EquipmentType `json:"required_equipment"`
	Status            LoadStatus    `json:"status"`
	Region            string        `json:"region,omitempty"`
	RatePerMile       float64       `json:"rate_per_mile,omitempty"`
}

// DirectDistanceMiles is the great-circle pickup→delivery length.
func (l Load) DirectDistanceMiles() float64 {
	return geo.DistanceMiles(l.Pickup.Location, l.Delivery.Location)
}
