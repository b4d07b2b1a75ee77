package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"freightflow/internal/config"
	"freightflow/internal/engine"
	"freightflow/internal/logging"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	// Version, Commit, and BuildDate are set at build time via ldflags.
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"

	verbose    bool
	replayFile string
	cfg        *config.AppConfig
)

var rootCmd = &cobra.Command{
	Use:   "freightflow",
	Short: "Freightflow is an event-driven freight network optimization engine",
	Long: `An optimization engine for trucking fleets: it consumes live position and
load events, matches drivers to loads, identifies Smart Hub sites, plans
multi-driver relays, and forecasts regional demand.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Init(verbose)

		// Load configuration
		var err error
		cfg, err = config.Load()
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to load configuration")
		}

		log.Info().
			Str("version", Version).
			Str("commit", Commit).
			Str("buildDate", BuildDate).
			Msg("Freightflow starting")
	},
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		eng, err := engine.New(cfg)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to assemble engine")
		}

		if replayFile != "" {
			go func() {
				select {
				case <-eng.Ready():
				case <-ctx.Done():
					return
				}
				if err := eng.Replay(ctx, replayFile); err != nil {
					log.Error().Err(err).Str("file", replayFile).Msg("Replay failed")
				}
			}()
		}

		log.Info().Msg("Engine starting event loop")
		if err := eng.Run(ctx); err != nil {
			log.Fatal().Err(err).Msg("Engine stopped with error")
		}
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
	rootCmd.Flags().StringVar(&replayFile, "replay", "", "JSONL event capture to feed through ingress at startup")
}
