package model

import (
	"time"
)

// Event types carried on the bus.
const (
	EventPositionUpdate       = "POSITION_UPDATE"
	EventLoadStatusChanged    = "LOAD_STATUS_CHANGED"
	EventOptimizationComplete = "OPTIMIZATION_COMPLETED"
	EventSmartHubIdentified   = "SMART_HUB_IDENTIFIED"
	EventRelayPlanCreated     = "RELAY_PLAN_CREATED"
)

// EventCategoryOptimization tags every outbound result event.
const EventCategoryOptimization = "OPTIMIZATION"

// EventMetadata is the envelope every bus event carries.
type EventMetadata struct {
	EventID       string    `json:"event_id"`
	EventType     string    `json:"event_type"`
	EventVersion  string    `json:"event_version"`
	EventTime     time.Time `json:"event_time"`
	Producer      string    `json:"producer"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	Category      string    `json:"category,omitempty"`
}

// PositionUpdate is the inbound payload on the position-updates topic.
type PositionUpdate struct {
	EntityType EntityType `json:"entity_type"`
	EntityID   string     `json:"entity_id"`
	Position   Position   `json:"position"`
}

// LoadEventPayload describes one load status transition.
type LoadEventPayload struct {
	LoadID         string     `json:"load_id"`
	PreviousStatus LoadStatus `json:"previous_status"`
	NewStatus      LoadStatus `json:"new_status"`
	Load           *Load      `json:"load,omitempty"`
}

// LoadEvent is the inbound payload on the load-events topic.
type LoadEvent struct {
	Metadata EventMetadata    `json:"metadata"`
	Payload  LoadEventPayload `json:"payload"`
}

// ResultEvent is the outbound payload on the optimization-results topic.
type ResultEvent struct {
	Metadata EventMetadata `json:"metadata"`
	Result   Result        `json:"payload"`
}

// ResultEventType maps a job kind to the event type its completion emits.
func ResultEventType(kind JobKind) string {
	switch kind {
	case JobSmartHubID:
		return EventSmartHubIdentified
	case JobRelayPlanning:
		return EventRelayPlanCreated
	default:
		return EventOptimizationComplete
	}
}
