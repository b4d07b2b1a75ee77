package main

import (
	"flag"
	"fmt"
	"freightflow/cmd/simfeed/feed"
	"os"
	"time"
)

func main() {
	scenario := flag.String("scenario", "steady", "Scenario to generate: steady, surge, corridor")
	drivers := flag.Int("drivers", 20, "Number of drivers emitting position updates")
	loads := flag.Int("loads", 30, "Number of loads placed on the board")
	duration := flag.Duration("duration", 4*time.Hour, "Simulated feed span")
	seed := flag.Int64("seed", 1, "Random seed for reproducible captures")
	out := flag.String("out", "./capture.jsonl", "Output capture file")
	flag.Parse()

	cfg := feed.GeneratorConfig{
		Scenario: *scenario,
		Drivers:  *drivers,
		Loads:    *loads,
		Duration: *duration,
		Seed:     *seed,
	}

	fmt.Printf("Generating scenario '%s' (%d drivers, %d loads over %s) to %s...\n",
		cfg.Scenario, cfg.Drivers, cfg.Loads, cfg.Duration, *out)

	records := feed.Generate(cfg)

	if err := feed.Save(*out, records); err != nil {
		fmt.Printf("Failed to save capture: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Done. %d records written.\n", len(records))
}
