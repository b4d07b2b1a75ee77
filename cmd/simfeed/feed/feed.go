package feed

import (
	"bufio"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"freightflow/internal/geo"
	"freightflow/internal/model"
	"freightflow/internal/pubsub"
)

// GeneratorConfig drives one capture run. Zero fields fall back to the
// documented flag defaults.
type GeneratorConfig struct {
	Scenario string
	Drivers  int
	Loads    int
	Duration time.Duration
	Seed     int64
	Now      time.Time
}

const (
	producer = "simfeed"
	// positionInterval is the simulated telemetry cadence per driver.
	positionInterval = 2 * time.Minute
)

var (
	chicago    = geo.Point{Lat: 41.8781, Lon: -87.6298}
	losAngeles = geo.Point{Lat: 34.0522, Lon: -118.2437}
	// surgeCenter sits in central Illinois, inside the midwest region.
	surgeCenter = geo.Point{Lat: 40.5, Lon: -89.0}
)

// Generate builds the scenario's event records, ordered by timestamp so
// the capture replays the way a live feed would have arrived.
func Generate(cfg GeneratorConfig) []pubsub.Record {
	if cfg.Now.IsZero() {
		cfg.Now = time.Now().UTC().Truncate(time.Minute)
	}
	if cfg.Drivers <= 0 {
		cfg.Drivers = 20
	}
	if cfg.Loads <= 0 {
		cfg.Loads = 30
	}
	if cfg.Duration <= 0 {
		cfg.Duration = 4 * time.Hour
	}
	rng := rand.New(rand.NewSource(cfg.Seed))

	var records []pubsub.Record
	switch cfg.Scenario {
	case "surge":
		records = surgeScenario(cfg, rng)
	case "corridor":
		records = corridorScenario(cfg, rng)
	default:
		records = steadyScenario(cfg, rng)
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].At.Before(records[j].At)
	})
	return records
}

// steadyScenario is a metro fleet on an even keel: drivers circulate
// around Chicago and loads land on the board at a uniform rate.
func steadyScenario(cfg GeneratorConfig, rng *rand.Rand) []pubsub.Record {
	records := driveFleet(cfg, rng, func(i int) (geo.Point, float64) {
		start := jitter(rng, chicago, 40)
		return start, rng.Float64() * 360
	})

	for i := 0; i < cfg.Loads; i++ {
		at := cfg.Now.Add(time.Duration(float64(cfg.Duration) * float64(i) / float64(cfg.Loads)))
		pickup := jitter(rng, chicago, 60)
		haul := 150 + rng.Float64()*250
		load := boardLoad(rng, fmt.Sprintf("SIM-L%d", i+1), pickup, haul, "", at)
		records = append(records, loadRecord(load, at))
	}
	return records
}

// surgeScenario front-loads a midwest demand spike: a third of the loads
// arrive at the steady drip, the rest burst around mid-window near the
// surge center.
func surgeScenario(cfg GeneratorConfig, rng *rand.Rand) []pubsub.Record {
	records := driveFleet(cfg, rng, func(i int) (geo.Point, float64) {
		start := jitter(rng, chicago, 60)
		// Fleet drifts toward the spike.
		return start, geo.Bearing(start, surgeCenter)
	})

	baseline := cfg.Loads / 3
	for i := 0; i < baseline; i++ {
		at := cfg.Now.Add(time.Duration(float64(cfg.Duration) * float64(i) / float64(baseline)))
		load := boardLoad(rng, fmt.Sprintf("SIM-L%d", i+1), jitter(rng, chicago, 60), 150+rng.Float64()*200, "midwest", at)
		records = append(records, loadRecord(load, at))
	}

	burstStart := cfg.Now.Add(cfg.Duration * 4 / 10)
	burstSpan := cfg.Duration / 5
	for i := baseline; i < cfg.Loads; i++ {
		at := burstStart.Add(time.Duration(rng.Float64() * float64(burstSpan)))
		load := boardLoad(rng, fmt.Sprintf("SIM-L%d", i+1), jitter(rng, surgeCenter, 30), 120+rng.Float64()*180, "midwest", at)
		records = append(records, loadRecord(load, at))
	}
	return records
}

// corridorScenario stages the fleet along the Chicago → Los Angeles lane
// with long hauls that qualify for relay planning.
func corridorScenario(cfg GeneratorConfig, rng *rand.Rand) []pubsub.Record {
	total := geo.DistanceMiles(chicago, losAngeles)
	records := driveFleet(cfg, rng, func(i int) (geo.Point, float64) {
		frac := float64(i) / float64(cfg.Drivers)
		start := geo.Destination(chicago, geo.Bearing(chicago, losAngeles), total*frac, geo.Miles)
		start = jitter(rng, start, 15)
		return start, geo.Bearing(start, losAngeles)
	})

	for i := 0; i < cfg.Loads; i++ {
		at := cfg.Now.Add(time.Duration(float64(cfg.Duration) * float64(i) / float64(cfg.Loads)))
		originFrac := rng.Float64() * 0.3
		destFrac := 0.6 + rng.Float64()*0.4
		origin := geo.Destination(chicago, geo.Bearing(chicago, losAngeles), total*originFrac, geo.Miles)
		dest := geo.Destination(chicago, geo.Bearing(chicago, losAngeles), total*destFrac, geo.Miles)
		load := corridorLoad(rng, fmt.Sprintf("SIM-L%d", i+1), jitter(rng, origin, 20), jitter(rng, dest, 20), at)
		records = append(records, loadRecord(load, at))
	}
	return records
}

// driveFleet emits the telemetry stream: each driver starts where place
// says and advances at highway speed every interval, with small heading
// wander.
func driveFleet(cfg GeneratorConfig, rng *rand.Rand, place func(i int) (geo.Point, float64)) []pubsub.Record {
	steps := int(cfg.Duration / positionInterval)
	records := make([]pubsub.Record, 0, cfg.Drivers*steps)

	for d := 0; d < cfg.Drivers; d++ {
		id := fmt.Sprintf("SIM-D%d", d+1)
		pos, heading := place(d)
		for s := 0; s <= steps; s++ {
			at := cfg.Now.Add(time.Duration(s) * positionInterval)
			speed := 45 + rng.Float64()*20
			records = append(records, positionRecord(id, pos, heading, speed, at))

			heading += (rng.Float64() - 0.5) * 20
			pos = geo.Destination(pos, heading, speed*positionInterval.Hours(), geo.Miles)
		}
	}
	return records
}

// boardLoad builds a PENDING→AVAILABLE load with a random outbound lane
// of the given length.
func boardLoad(rng *rand.Rand, id string, pickup geo.Point, haulMiles float64, region string, at time.Time) model.Load {
	dest := geo.Destination(pickup, rng.Float64()*360, haulMiles, geo.Miles)
	l := corridorLoad(rng, id, pickup, dest, at)
	l.Region = region
	return l
}

func corridorLoad(rng *rand.Rand, id string, pickup, dest geo.Point, at time.Time) model.Load {
	driveHours := geo.DistanceMiles(pickup, dest) / 55
	earliest := at.Add(time.Hour)
	return model.Load{
		ID:                id,
		Pickup:            model.Stop{Location: pickup, Earliest: earliest, Latest: earliest.Add(4 * time.Hour)},
		Delivery:          model.Stop{Location: dest, Latest: earliest.Add(time.Duration((driveHours*1.6 + 4) * float64(time.Hour)))},
		WeightLbs:         10000 + rng.Float64()*34000,
		RequiredEquipment: randomEquipment(rng),
		Status:            model.LoadAvailable,
		RatePerMile:       1.8 + rng.Float64()*1.4,
	}
}

func randomEquipment(rng *rand.Rand) model.EquipmentType {
	switch r := rng.Float64(); {
	case r < 0.60:
		return model.EquipmentDryVan
	case r < 0.85:
		return model.EquipmentReefer
	default:
		return model.EquipmentFlatbed
	}
}

// jitter displaces p by up to radiusMi in a random direction.
func jitter(rng *rand.Rand, p geo.Point, radiusMi float64) geo.Point {
	return geo.Destination(p, rng.Float64()*360, rng.Float64()*radiusMi, geo.Miles)
}

func positionRecord(driverID string, p geo.Point, heading, speedMPH float64, at time.Time) pubsub.Record {
	blob, _ := json.Marshal(model.PositionUpdate{
		EntityType: model.EntityDriver,
		EntityID:   driverID,
		Position: model.Position{
			Location:  p,
			Heading:   normalizeHeading(heading),
			SpeedMPH:  speedMPH,
			Timestamp: at,
			Source:    producer,
		},
	})
	return pubsub.Record{Topic: pubsub.TopicPositionUpdates, Key: driverID, At: at, Value: blob}
}

func loadRecord(load model.Load, at time.Time) pubsub.Record {
	blob, _ := json.Marshal(model.LoadEvent{
		Metadata: model.EventMetadata{
			EventID:      uuid.NewString(),
			EventType:    model.EventLoadStatusChanged,
			EventVersion: "1.0",
			EventTime:    at,
			Producer:     producer,
		},
		Payload: model.LoadEventPayload{
			LoadID:         load.ID,
			PreviousStatus: model.LoadPending,
			NewStatus:      model.LoadAvailable,
			Load:           &load,
		},
	})
	return pubsub.Record{Topic: pubsub.TopicLoadEvents, Key: load.ID, At: at, Value: blob}
}

func normalizeHeading(h float64) float64 {
	for h < 0 {
		h += 360
	}
	for h >= 360 {
		h -= 360
	}
	return h
}

// Save writes the capture as one JSON record per line.
func Save(path string, records []pubsub.Record) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, rec := range records {
		if err := pubsub.WriteRecord(w, rec); err != nil {
			return err
		}
	}
	return w.Flush()
}
