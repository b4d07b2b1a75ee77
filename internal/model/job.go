package model

import (
	"fmt"
	"time"
)

// JobKind selects the algorithm a job runs.
type JobKind string

const (
	JobLoadMatching     JobKind = "LOAD_MATCHING"
	JobSmartHubID       JobKind = "SMART_HUB_IDENTIFICATION"
	JobRelayPlanning    JobKind = "RELAY_PLANNING"
	JobNetworkOptimize  JobKind = "NETWORK_OPTIMIZATION"
	JobDemandPrediction JobKind = "DEMAND_PREDICTION"
)

// ValidJobKind reports whether k names a known algorithm.
func ValidJobKind(k JobKind) bool {
	switch k {
	case JobLoadMatching, JobSmartHubID, JobRelayPlanning, JobNetworkOptimize, JobDemandPrediction:
		return true
	}
	return false
}

// JobStatus is the job lifecycle state.
type JobStatus string

const (
	JobPending    JobStatus = "PENDING"
	JobProcessing JobStatus = "PROCESSING"
	JobCompleted  JobStatus = "COMPLETED"
	JobFailed     JobStatus = "FAILED"
	JobCancelled  JobStatus = "CANCELLED"
)

// Terminal reports whether the status admits no further transitions.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobCancelled
}

// jobTransitions enumerates the legal lifecycle edges. PROCESSING → PENDING
// is the dispatcher requeue path for retryable failures.
var jobTransitions = map[JobStatus][]JobStatus{
	JobPending:    {JobProcessing, JobCancelled},
	JobProcessing: {JobCompleted, JobFailed, JobCancelled, JobPending},
}

// CanTransition reports whether from → to is a legal job status change.
func (s JobStatus) CanTransition(to JobStatus) bool {
	for _, next := range jobTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Priority bounds. Higher is scheduled first.
const (
	MinPriority = 1
	MaxPriority = 10
)

// JobParameters scope an optimization run.
type JobParameters struct {
	Region         string       `json:"region,omitempty"`
	WindowStart    time.Time    `json:"window_start"`
	WindowEnd      time.Time    `json:"window_end"`
	Constraints    []Constraint `json:"constraints,omitempty"`
	Weights        Weights      `json:"weights,omitempty"`
	MaxIterations  int          `json:"max_iterations,omitempty"`
	SpeedFactorMPH float64      `json:"speed_factor_mph,omitempty"`

	// Kind-specific optional scope.
	LoadID    string   `json:"load_id,omitempty"`
	DriverIDs []string `json:"driver_ids,omitempty"`
}

// Weights are the per-factor objective weights. Zero values fall back to
// the component defaults.
type Weights struct {
	EmptyMiles float64 `json:"empty_miles,omitempty"`
	Network    float64 `json:"network,omitempty"`
	Preference float64 `json:"preference,omitempty"`
	HOS        float64 `json:"hos,omitempty"`
}

// Validate enforces the structural invariants callers must satisfy before
// a job is accepted.
func (p JobParameters) Validate() error {
	if !p.WindowStart.IsZero() || !p.WindowEnd.IsZero() {
		if !p.WindowStart.Before(p.WindowEnd) {
			return fmt.Errorf("window_start must precede window_end")
		}
	}
	if p.MaxIterations < 0 {
		return fmt.Errorf("max_iterations must not be negative")
	}
	if p.SpeedFactorMPH < 0 {
		return fmt.Errorf("speed_factor_mph must not be negative")
	}
	for i, c := range p.Constraints {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("constraint %d: %w", i, err)
		}
	}
	return nil
}

// JobError captures a classified failure on the job record.
type JobError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Stack   string `json:"stack,omitempty"`
}

// Job is the durable record of one optimization request.
type Job struct {
	ID               string        `json:"id"`
	Kind             JobKind       `json:"kind"`
	Params           JobParameters `json:"params"`
	Priority         int           `json:"priority"` // [1,10], higher first
	Status           JobStatus     `json:"status"`
	Progress         float64       `json:"progress"` // [0,100]
	ResultID         string        `json:"result_id,omitempty"`
	Error            *JobError     `json:"error,omitempty"`
	CreatedBy        string        `json:"created_by,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	StartedAt        *time.Time    `json:"started_at,omitempty"`
	CompletedAt      *time.Time    `json:"completed_at,omitempty"`
	LastProgressAt   time.Time     `json:"last_progress_at,omitempty"`
	ProcessingTimeMS int64         `json:"processing_time_ms,omitempty"`
	Attempts         int           `json:"attempts"`
}

// ClampPriority forces p into the legal [1,10] band.
func ClampPriority(p int) int {
	if p < MinPriority {
		return MinPriority
	}
	if p > MaxPriority {
		return MaxPriority
	}
	return p
}
