package predict

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"freightflow/internal/apperrors"
	"freightflow/internal/metrics"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker/v2"
)

// Config tunes the façade.
type Config struct {
	CacheTTL            time.Duration
	CacheSize           int
	UseCache            bool
	ModelTimeout        time.Duration
	ConfidenceThreshold float64
}

// DefaultConfig mirrors the engine's configuration defaults.
func DefaultConfig() Config {
	return Config{
		CacheTTL:            5 * time.Minute,
		CacheSize:           1000,
		UseCache:            true,
		ModelTimeout:        10 * time.Second,
		ConfidenceThreshold: 0.7,
	}
}

// Service is the predictor façade. Safe for concurrent use.
type Service struct {
	cfg      Config
	models   map[Kind]Model
	breakers map[Kind]*gobreaker.CircuitBreaker[Response]
	cache    *expirable.LRU[string, Output]
	metrics  *metrics.Metrics
}

// NewService builds the façade over the given model registry.
func NewService(cfg Config, models map[Kind]Model, m *metrics.Metrics) *Service {
	if cfg.ModelTimeout <= 0 {
		cfg.ModelTimeout = 10 * time.Second
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 1000
	}

	s := &Service{
		cfg:      cfg,
		models:   models,
		breakers: make(map[Kind]*gobreaker.CircuitBreaker[Response], len(models)),
		metrics:  m,
	}
	if cfg.UseCache {
		s.cache = expirable.NewLRU[string, Output](cfg.CacheSize, nil, cfg.CacheTTL)
	}

	for kind := range models {
		kind := kind
		s.breakers[kind] = gobreaker.NewCircuitBreaker[Response](gobreaker.Settings{
			Name:        fmt.Sprintf("model-%s", kind),
			MaxRequests: 3,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			// Caller-side cancellation is not a model failure.
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, context.Canceled)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("Model circuit state changed")
			},
		})
	}
	return s
}

// Predict runs the full pipeline for one model kind: validate, consult the
// cache, preprocess, infer through the breaker, postprocess, and score
// confidence. Low-confidence outputs are returned, not withheld.
func (s *Service) Predict(ctx context.Context, kind Kind, input Input, opts Options) (Output, error) {
	mdl, ok := s.models[kind]
	if !ok {
		return Output{}, apperrors.Validation("INVALID_MODEL_KIND",
			fmt.Sprintf("no model registered for kind %q", kind), "kind", string(kind))
	}
	if input == nil {
		return Output{}, apperrors.Validation("MISSING_INPUT", "prediction input is required", "kind", string(kind))
	}
	if input.Kind() != kind {
		return Output{}, apperrors.Validation("INPUT_KIND_MISMATCH",
			fmt.Sprintf("input is for kind %q, requested %q", input.Kind(), kind))
	}

	key, err := cacheKey(kind, mdl.Version(), input)
	if err != nil {
		return Output{}, apperrors.Validation("INPUT_NOT_SERIALIZABLE", "prediction input cannot be serialized", "kind", string(kind))
	}

	useCache := s.cache != nil && !opts.SkipCache
	if useCache {
		if out, hit := s.cache.Get(key); hit {
			s.metrics.CacheHit()
			return out, nil
		}
		s.metrics.CacheMiss()
	}

	req := preprocess(kind, input)

	modelCtx, cancel := context.WithTimeout(ctx, s.cfg.ModelTimeout)
	defer cancel()

	resp, err := s.breakers[kind].Execute(func() (Response, error) {
		return mdl.Infer(modelCtx, req)
	})
	if err != nil {
		return Output{}, classifyModelError(kind, err, s.cfg.ModelTimeout)
	}

	out := postprocess(kind, input, resp)
	out.ModelVersion = mdl.Version()
	out.GeneratedAt = time.Now().UTC()
	out.ConfidenceScore = confidence(kind, resp, out)

	if out.ConfidenceScore < s.cfg.ConfidenceThreshold {
		log.Debug().
			Str("kind", string(kind)).
			Float64("confidence", out.ConfidenceScore).
			Float64("threshold", s.cfg.ConfidenceThreshold).
			Msg("Prediction below confidence threshold")
	}

	if useCache {
		s.cache.Add(key, out)
	}
	return out, nil
}

// ClearCache drops every cached prediction.
func (s *Service) ClearCache() {
	if s.cache != nil {
		s.cache.Purge()
	}
}

// CacheLen reports the number of live cache entries.
func (s *Service) CacheLen() int {
	if s.cache == nil {
		return 0
	}
	return s.cache.Len()
}

// classifyModelError maps an inference failure onto the error taxonomy.
// Everything here is retryable; the dispatcher decides the retry budget.
func classifyModelError(kind Kind, err error, timeout time.Duration) error {
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return apperrors.External("MODEL_CIRCUIT_OPEN",
			fmt.Sprintf("%s model circuit is open", kind), err)
	case errors.Is(err, context.DeadlineExceeded):
		return apperrors.Timeout("MODEL_DEADLINE",
			fmt.Sprintf("%s model call exceeded %s", kind, timeout))
	case errors.Is(err, context.Canceled):
		return err
	default:
		return apperrors.External("MODEL_UNAVAILABLE",
			fmt.Sprintf("%s model inference failed", kind), err)
	}
}

// cacheKey derives the lookup key from the kind, the model version, and
// the canonical JSON of the input.
func cacheKey(kind Kind, version string, input Input) (string, error) {
	blob, err := json.Marshal(input.canonical())
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s|%s|%s", kind, version, blob), nil
}
