package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// AppConfig holds the complete engine configuration.
type AppConfig struct {
	DataPath    string
	LogDir      string
	StateDir    string
	Environment string

	// Worker pool and job lifecycle.
	MaxConcurrentJobs int
	JobTimeout        time.Duration
	JobMaxAttempts    int
	RetryBase         time.Duration
	RetryCap          time.Duration

	// Ingress debounce and backpressure.
	TriggerThresholdMeters float64
	TriggerCooldown        time.Duration
	QueueHighWatermark     int
	QueueLowWatermark      int

	// Predictor façade.
	PredictionCacheTTL  time.Duration
	PredictionCacheSize int
	UsePredictionCache  bool
	ConfidenceThreshold float64
	ModelTimeout        time.Duration

	// Hub discovery.
	MinHubDistanceMiles float64
	ClusterEpsilonMiles float64
	ClusterMinPoints    int

	// Relay planning.
	MaxRelaySegments        int
	RelaySegmentSpeedMPH    float64
	RelaySegmentBuffer      float64
	MaxSegmentDistanceMiles float64
	MaxSegmentDuration      time.Duration

	// Demand scanning.
	DemandRegions []string

	// Optional backends.
	RedisAddr   string
	MetricsAddr string
}

// Production reports whether the engine runs with production hardening
// (stack traces withheld from surfaced errors).
func (c *AppConfig) Production() bool {
	return strings.EqualFold(c.Environment, "production")
}

// Load loads the configuration from .env files and environment variables.
func Load() (*AppConfig, error) {
	// 1. Try to load from the executable's directory (highest priority for deployed binaries)
	exePath, err := os.Executable()
	exeDir := ""
	if err == nil {
		exeDir = filepath.Dir(exePath)
		envPath := filepath.Join(exeDir, ".env")
		if err := godotenv.Load(envPath); err == nil {
			log.Debug().Str("path", envPath).Msg("Loaded configuration from binary directory")
		}
	}

	// 2. Fallback to current working directory (useful for development/go run)
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("No .env file found in working directory, relying on environment variables or binary-relative .env")
	}

	// 3. Resolve data paths
	dataPath := os.Getenv("DATA_PATH")
	if dataPath == "" {
		dataPath = "./.freightflow"
	}

	logDir := filepath.Join(dataPath, "logs")
	stateDir := filepath.Join(dataPath, "state")

	// Ensure directories exist
	if err := os.MkdirAll(logDir, 0755); err != nil {
		log.Warn().Err(err).Str("path", logDir).Msg("Failed to create log directory")
	}
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		log.Warn().Err(err).Str("path", stateDir).Msg("Failed to create state directory")
	}

	cfg := &AppConfig{
		DataPath:    dataPath,
		LogDir:      logDir,
		StateDir:    stateDir,
		Environment: getEnv("ENVIRONMENT", "development"),

		MaxConcurrentJobs: getEnvInt("MAX_CONCURRENT_JOBS", 10),
		JobTimeout:        getEnvMillis("JOB_TIMEOUT_MS", 300_000),
		JobMaxAttempts:    getEnvInt("JOB_MAX_ATTEMPTS", 3),
		RetryBase:         getEnvMillis("RETRY_BASE_MS", 1_000),
		RetryCap:          getEnvMillis("RETRY_CAP_MS", 60_000),

		TriggerThresholdMeters: getEnvFloat("OPTIMIZATION_TRIGGER_THRESHOLD_DISTANCE", 5_000),
		TriggerCooldown:        getEnvMillis("OPTIMIZATION_TRIGGER_COOLDOWN_MS", 300_000),
		QueueHighWatermark:     getEnvInt("QUEUE_HIGH_WATERMARK", 100),
		QueueLowWatermark:      getEnvInt("QUEUE_LOW_WATERMARK", 50),

		PredictionCacheTTL:  getEnvMillis("PREDICTION_CACHE_TTL", 300_000),
		PredictionCacheSize: getEnvInt("PREDICTION_CACHE_SIZE", 1000),
		UsePredictionCache:  getEnvBool("USE_PREDICTION_CACHE", true),
		ConfidenceThreshold: getEnvFloat("DEFAULT_CONFIDENCE_THRESHOLD", 0.7),
		ModelTimeout:        getEnvMillis("MODEL_TIMEOUT_MS", 10_000),

		MinHubDistanceMiles: getEnvFloat("MIN_HUB_DISTANCE_MILES", 50),
		ClusterEpsilonMiles: getEnvFloat("DEFAULT_CLUSTER_EPSILON", 25),
		ClusterMinPoints:    getEnvInt("DEFAULT_CLUSTER_MIN_POINTS", 5),

		MaxRelaySegments:        getEnvInt("MAX_RELAY_SEGMENTS", 3),
		RelaySegmentSpeedMPH:    getEnvFloat("RELAY_SEGMENT_SPEED_MPH", 55),
		RelaySegmentBuffer:      getEnvFloat("RELAY_SEGMENT_BUFFER_FRACTION", 0.15),
		MaxSegmentDistanceMiles: getEnvFloat("MAX_SEGMENT_DISTANCE_MILES", 500),
		MaxSegmentDuration:      time.Duration(getEnvFloat("MAX_SEGMENT_DURATION_HOURS", 8) * float64(time.Hour)),

		DemandRegions: getEnvList("DEMAND_REGIONS", []string{"midwest", "northeast", "southeast", "southwest", "west"}),

		RedisAddr:   getEnv("REDIS_ADDR", ""),
		MetricsAddr: getEnv("METRICS_ADDR", ""),
	}

	// Watermarks must leave room to drain; a low mark at or above the high
	// mark would never release backpressure.
	if cfg.QueueLowWatermark >= cfg.QueueHighWatermark {
		log.Warn().
			Int("low", cfg.QueueLowWatermark).
			Int("high", cfg.QueueHighWatermark).
			Msg("Queue low watermark at or above high watermark, halving")
		cfg.QueueLowWatermark = cfg.QueueHighWatermark / 2
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return fallback
}

// getEnvMillis reads an integer millisecond option into a Duration.
func getEnvMillis(key string, fallbackMS int) time.Duration {
	return time.Duration(getEnvInt(key, fallbackMS)) * time.Millisecond
}

// getEnvList reads a comma-separated option, trimming whitespace around
// each element.
func getEnvList(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(value) == "" {
		return fallback
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
