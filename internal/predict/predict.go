// Package predict wraps the trained models behind one façade with typed
// inputs and outputs per model kind, an expiring LRU cache, per-model
// circuit breakers, and confidence scoring. The models themselves are
// black boxes behind the Model interface; training is out of scope.
package predict

import (
	"context"
	"strings"
	"time"

	"freightflow/internal/geo"
	"freightflow/internal/model"
)

// Kind names a trained model.
type Kind string

const (
	KindDemand            Kind = "DEMAND"
	KindSupply            Kind = "SUPPLY"
	KindDriverBehavior    Kind = "DRIVER_BEHAVIOR"
	KindPrice             Kind = "PRICE"
	KindNetworkEfficiency Kind = "NETWORK_EFFICIENCY"
)

// Kinds lists every supported model kind.
func Kinds() []Kind {
	return []Kind{KindDemand, KindSupply, KindDriverBehavior, KindPrice, KindNetworkEfficiency}
}

// Input is the sealed union of per-kind model inputs. The canonical form
// is what cache keys are derived from: times in UTC truncated to seconds,
// region names lowercased.
type Input interface {
	Kind() Kind
	canonical() Input
}

// DemandInput scopes a demand forecast. Exactly one of Region,
// Location+RadiusMiles, or OriginRegion+DestRegion should be set; the
// others stay zero.
type DemandInput struct {
	Region       string     `json:"region,omitempty"`
	Location     *geo.Point `json:"location,omitempty"`
	RadiusMiles  float64    `json:"radius_miles,omitempty"`
	OriginRegion string     `json:"origin_region,omitempty"`
	DestRegion   string     `json:"dest_region,omitempty"`
	WindowStart  time.Time  `json:"window_start"`
	WindowEnd    time.Time  `json:"window_end"`
}

func (DemandInput) Kind() Kind { return KindDemand }

func (in DemandInput) canonical() Input {
	in.Region = strings.ToLower(in.Region)
	in.OriginRegion = strings.ToLower(in.OriginRegion)
	in.DestRegion = strings.ToLower(in.DestRegion)
	in.WindowStart = canonicalTime(in.WindowStart)
	in.WindowEnd = canonicalTime(in.WindowEnd)
	return in
}

// SupplyInput scopes a driver-supply forecast.
type SupplyInput struct {
	Region      string    `json:"region"`
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
}

func (SupplyInput) Kind() Kind { return KindSupply }

func (in SupplyInput) canonical() Input {
	in.Region = strings.ToLower(in.Region)
	in.WindowStart = canonicalTime(in.WindowStart)
	in.WindowEnd = canonicalTime(in.WindowEnd)
	return in
}

// DriverBehaviorInput describes one driver's recent activity.
type DriverBehaviorInput struct {
	DriverID        string      `json:"driver_id"`
	RecentPositions []geo.Point `json:"recent_positions,omitempty"`
	HOSMinutes      float64     `json:"hos_minutes"`
	HomeBase        *geo.Point  `json:"home_base,omitempty"`
}

func (DriverBehaviorInput) Kind() Kind { return KindDriverBehavior }

func (in DriverBehaviorInput) canonical() Input { return in }

// PriceInput scopes a lane price estimate.
type PriceInput struct {
	OriginRegion  string              `json:"origin_region"`
	DestRegion    string              `json:"dest_region"`
	DistanceMiles float64             `json:"distance_miles"`
	Equipment     model.EquipmentType `json:"equipment"`
	PickupTime    time.Time           `json:"pickup_time"`
}

func (PriceInput) Kind() Kind { return KindPrice }

func (in PriceInput) canonical() Input {
	in.OriginRegion = strings.ToLower(in.OriginRegion)
	in.DestRegion = strings.ToLower(in.DestRegion)
	in.PickupTime = canonicalTime(in.PickupTime)
	return in
}

// NetworkEfficiencyInput summarizes current network state for scoring.
type NetworkEfficiencyInput struct {
	Region        string  `json:"region"`
	TotalLoads    int     `json:"total_loads"`
	TotalDrivers  int     `json:"total_drivers"`
	EmptyMilesPct float64 `json:"empty_miles_pct"`
}

func (NetworkEfficiencyInput) Kind() Kind { return KindNetworkEfficiency }

func (in NetworkEfficiencyInput) canonical() Input {
	in.Region = strings.ToLower(in.Region)
	return in
}

// canonicalTime normalizes a timestamp for cache keying: UTC, second
// precision, so equal instants serialize to one ISO-8601 form.
func canonicalTime(t time.Time) time.Time {
	if t.IsZero() {
		return time.Time{}
	}
	return t.UTC().Truncate(time.Second)
}

// DemandOutput is the postprocessed demand forecast.
type DemandOutput struct {
	ExpectedLoads float64 `json:"expected_loads"`
	Level         string  `json:"level"` // low, moderate, high
}

// SupplyOutput is the postprocessed driver-supply forecast.
type SupplyOutput struct {
	AvailableDrivers float64 `json:"available_drivers"`
	UtilizationRate  float64 `json:"utilization_rate"` // [0,1]
}

// DriverBehaviorOutput is the postprocessed behavior profile.
type DriverBehaviorOutput struct {
	AcceptanceLikelihood float64 `json:"acceptance_likelihood"` // [0,1]
	RestProbability      float64 `json:"rest_probability"`      // [0,1]
	LongHaulAffinity     float64 `json:"long_haul_affinity"`    // [0,1]
}

// PriceOutput is the postprocessed lane price estimate.
type PriceOutput struct {
	BaseRatePerMile float64 `json:"base_rate_per_mile"`
	RateLow         float64 `json:"rate_low"`
	RateHigh        float64 `json:"rate_high"`
	TotalPrice      float64 `json:"total_price"`
}

// NetworkEfficiencyOutput is the postprocessed network score.
type NetworkEfficiencyOutput struct {
	Score              float64 `json:"score"` // [0,100]
	ReductionPotential float64 `json:"reduction_potential"`
}

// Output is the façade result: exactly the variant matching Kind is
// populated, plus the confidence attached by the scorer. Callers filter on
// ConfidenceScore themselves; the façade never withholds a result.
type Output struct {
	Kind            Kind                     `json:"kind"`
	ModelVersion    string                   `json:"model_version"`
	ConfidenceScore float64                  `json:"confidence_score"` // [0,1]
	GeneratedAt     time.Time                `json:"generated_at"`
	Demand          *DemandOutput            `json:"demand,omitempty"`
	Supply          *SupplyOutput            `json:"supply,omitempty"`
	Behavior        *DriverBehaviorOutput    `json:"behavior,omitempty"`
	Price           *PriceOutput             `json:"price,omitempty"`
	Efficiency      *NetworkEfficiencyOutput `json:"efficiency,omitempty"`
}

// Request is the preprocessed feature vector handed to a model.
type Request struct {
	Kind     Kind               `json:"kind"`
	Features map[string]float64 `json:"features"`
	Labels   map[string]string  `json:"labels,omitempty"`
}

// Response is the raw model output before postprocessing. Confidence is 0
// when the model does not self-report one.
type Response struct {
	Values        map[string]float64 `json:"values"`
	Probabilities []float64          `json:"probabilities,omitempty"`
	Confidence    float64            `json:"confidence,omitempty"`
}

// Model is a trained predictor. Implementations must be safe for
// concurrent use.
type Model interface {
	Version() string
	Infer(ctx context.Context, req Request) (Response, error)
}

// Options tune a single Predict call.
type Options struct {
	SkipCache bool
}
