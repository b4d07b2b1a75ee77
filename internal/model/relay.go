package model

import (
	"fmt"
	"time"

	"freightflow/internal/geo"
)

// RelayStatus is the relay plan lifecycle state.
type RelayStatus string

const (
	RelayDraft     RelayStatus = "DRAFT"
	RelayProposed  RelayStatus = "PROPOSED"
	RelayAccepted  RelayStatus = "ACCEPTED"
	RelayActive    RelayStatus = "ACTIVE"
	RelayCompleted RelayStatus = "COMPLETED"
	RelayCancelled RelayStatus = "CANCELLED"
	RelayFailed    RelayStatus = "FAILED"
)

var relayTransitions = map[RelayStatus][]RelayStatus{
	RelayDraft:    {RelayProposed, RelayCancelled},
	RelayProposed: {RelayAccepted, RelayCancelled},
	RelayAccepted: {RelayActive, RelayCancelled},
	RelayActive:   {RelayCompleted, RelayFailed, RelayCancelled},
}

// CanTransition reports whether from → to is a legal relay status change.
func (s RelayStatus) CanTransition(to RelayStatus) bool {
	for _, next := range relayTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// SegmentStatus tracks one relay leg.
type SegmentStatus string

const (
	SegmentPlanned    SegmentStatus = "PLANNED"
	SegmentInProgress SegmentStatus = "IN_PROGRESS"
	SegmentCompleted  SegmentStatus = "COMPLETED"
	SegmentFailed     SegmentStatus = "FAILED"
)

// HandoffStatus tracks one exchange between consecutive segments.
type HandoffStatus string

const (
	HandoffScheduled HandoffStatus = "SCHEDULED"
	HandoffCompleted HandoffStatus = "COMPLETED"
	HandoffMissed    HandoffStatus = "MISSED"
)

// RelaySegment is one driver-sized leg of a relay haul.
type RelaySegment struct {
	Index             int           `json:"index"`
	Start             geo.Point     `json:"start"`
	End               geo.Point     `json:"end"`
	DistanceMiles     float64       `json:"distance_miles"`
	EstimatedDuration time.Duration `json:"estimated_duration"`
	PlannedStart      time.Time     `json:"planned_start"`
	PlannedEnd        time.Time     `json:"planned_end"`
	ActualStart       *time.Time    `json:"actual_start,omitempty"`
	ActualEnd         *time.Time    `json:"actual_end,omitempty"`
	DriverID          string        `json:"driver_id"`
	Status            SegmentStatus `json:"status"`
}

// Handoff is a coordinated exchange at a hub between two segments. The hub
// snapshot {id, name, location} is frozen at plan creation; the live hub
// record is dereferenced on demand.
type Handoff struct {
	Index            int           `json:"index"`
	HubID            string        `json:"hub_id"`
	HubName          string        `json:"hub_name"`
	HubLocation      geo.Point     `json:"hub_location"`
	Scheduled        time.Time     `json:"scheduled"`
	Actual           *time.Time    `json:"actual,omitempty"`
	WindowStart      time.Time     `json:"window_start"`
	WindowEnd        time.Time     `json:"window_end"`
	OutgoingDriverID string        `json:"outgoing_driver_id"`
	IncomingDriverID string        `json:"incoming_driver_id"`
	Status           HandoffStatus `json:"status"`
}

// RelayMetrics compare the plan against the direct haul.
type RelayMetrics struct {
	EmptyMilesReductionPct float64 `json:"empty_miles_reduction_pct"`
	HomeTimeImprovement    float64 `json:"home_time_improvement"` // miles closer to home, summed
	CostSavings            float64 `json:"cost_savings"`
	CO2ReductionKg         float64 `json:"co2_reduction_kg"`
	TotalDistanceMiles     float64 `json:"total_distance_miles"`
	DirectDistanceMiles    float64 `json:"direct_distance_miles"`
	EfficiencyScore        float64 `json:"efficiency_score"` // [0,100]
}

// RelayPlan is a multi-driver execution plan for one long load.
type RelayPlan struct {
	ID        string         `json:"id"`
	LoadID    string         `json:"load_id"`
	Status    RelayStatus    `json:"status"`
	Segments  []RelaySegment `json:"segments"`
	Handoffs  []Handoff      `json:"handoffs"`
	Metrics   RelayMetrics   `json:"metrics"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Validate enforces the structural plan invariants: handoff count, hub
// junction continuity, per-segment time ordering, and cross-segment
// schedule monotonicity.
func (p RelayPlan) Validate() error {
	if len(p.Segments) == 0 {
		return fmt.Errorf("plan has no segments")
	}
	if len(p.Handoffs) != len(p.Segments)-1 {
		return fmt.Errorf("expected %d handoffs for %d segments, got %d",
			len(p.Segments)-1, len(p.Segments), len(p.Handoffs))
	}
	for i, seg := range p.Segments {
		if !seg.PlannedEnd.After(seg.PlannedStart) {
			return fmt.Errorf("segment %d: planned_end must follow planned_start", i)
		}
		if i > 0 && p.Segments[i].PlannedStart.Before(p.Segments[i-1].PlannedEnd) {
			return fmt.Errorf("segment %d starts before segment %d ends", i, i-1)
		}
	}
	for i, h := range p.Handoffs {
		if h.HubLocation != p.Segments[i].End || h.HubLocation != p.Segments[i+1].Start {
			return fmt.Errorf("handoff %d hub does not join segments %d and %d", i, i, i+1)
		}
	}
	return nil
}
