package model

import (
	"time"

	"freightflow/internal/geo"
)

// LoadMatch is one accepted (driver, load) pairing from the optimizer.
type LoadMatch struct {
	DriverID            string             `json:"driver_id"`
	LoadID              string             `json:"load_id"`
	Score               float64            `json:"score"`
	EmptyMiles          float64            `json:"empty_miles"`
	LoadedMiles         float64            `json:"loaded_miles"`
	EmptyMilesSaved     float64            `json:"empty_miles_saved"`
	NetworkContribution float64            `json:"network_contribution"`
	EstimatedEarnings   float64            `json:"estimated_earnings"`
	Breakdown           map[string]float64 `json:"breakdown,omitempty"`
}

// HubRecommendation is a scored candidate site from hub identification.
type HubRecommendation struct {
	Location     geo.Point `json:"location"`
	Score        float64   `json:"score"`
	Density      float64   `json:"density"`
	ClusterSize  int       `json:"cluster_size"`
	NearestHubMi float64   `json:"nearest_hub_mi,omitempty"`
}

// DemandForecast is one regional or lane-level demand estimate.
type DemandForecast struct {
	Region         string     `json:"region,omitempty"`
	OriginRegion   string     `json:"origin_region,omitempty"`
	DestRegion     string     `json:"dest_region,omitempty"`
	Location       *geo.Point `json:"location,omitempty"`
	RadiusMiles    float64    `json:"radius_miles,omitempty"`
	ExpectedLoads  float64    `json:"expected_loads"`
	Confidence     float64    `json:"confidence"`
	WindowStart    time.Time  `json:"window_start"`
	WindowEnd      time.Time  `json:"window_end"`
	TrendDirection string     `json:"trend_direction,omitempty"` // increasing, stable, decreasing
	RateOfChange   float64    `json:"rate_of_change,omitempty"`
	Acceleration   float64    `json:"acceleration,omitempty"`
}

// NetworkMetrics aggregate one optimization pass over a region.
type NetworkMetrics struct {
	TotalLoads      int     `json:"total_loads"`
	MatchedLoads    int     `json:"matched_loads"`
	TotalDrivers    int     `json:"total_drivers"`
	MatchedDrivers  int     `json:"matched_drivers"`
	TotalMiles      float64 `json:"total_miles"`
	LoadedMiles     float64 `json:"loaded_miles"`
	EmptyMiles      float64 `json:"empty_miles"`
	EmptyMilesPct   float64 `json:"empty_miles_pct"`
	EfficiencyScore float64 `json:"efficiency_score"` // [0,100]
}

// Result is the write-once artifact of a completed job. At most the
// collections relevant to the job kind are populated.
type Result struct {
	ID        string              `json:"id"`
	JobID     string              `json:"job_id"`
	Kind      JobKind             `json:"kind"`
	Matches   []LoadMatch         `json:"matches,omitempty"`
	Hubs      []HubRecommendation `json:"hub_recommendations,omitempty"`
	Plans     []RelayPlan         `json:"relay_plans,omitempty"`
	Forecasts []DemandForecast    `json:"forecasts,omitempty"`
	Network   *NetworkMetrics     `json:"network,omitempty"`
	CreatedAt time.Time           `json:"created_at"`
}
