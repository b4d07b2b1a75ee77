package results

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"freightflow/internal/apperrors"
	"freightflow/internal/metrics"
	"freightflow/internal/model"
	"freightflow/internal/pubsub"
)

// eventVersion stamps every outbound envelope.
const eventVersion = "1.0"

// Publisher wraps a result in its event envelope and puts it on the
// optimization-results topic, keyed by job id so one job's events stay
// ordered.
type Publisher struct {
	bus      pubsub.Publisher
	producer string
	metrics  *metrics.Metrics
	now      func() time.Time
}

// NewPublisher builds a publisher stamping producer on every envelope.
func NewPublisher(bus pubsub.Publisher, producer string, m *metrics.Metrics) *Publisher {
	return &Publisher{
		bus:      bus,
		producer: producer,
		metrics:  m,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Publish emits the result event for a completed job.
func (p *Publisher) Publish(ctx context.Context, r model.Result) error {
	event := model.ResultEvent{
		Metadata: model.EventMetadata{
			EventID:       uuid.NewString(),
			EventType:     model.ResultEventType(r.Kind),
			EventVersion:  eventVersion,
			EventTime:     p.now(),
			Producer:      p.producer,
			CorrelationID: r.JobID,
			Category:      model.EventCategoryOptimization,
		},
		Result: r,
	}

	blob, err := json.Marshal(event)
	if err != nil {
		return apperrors.Internal("EVENT_ENCODE", "failed to encode result event", err)
	}
	msg := pubsub.Message{
		Topic: pubsub.TopicOptimizationResults,
		Key:   r.JobID,
		Value: blob,
	}
	if err := p.bus.Publish(ctx, msg); err != nil {
		return apperrors.External("BUS_PUBLISH", "failed to publish result event", err)
	}

	p.metrics.EventPublished(event.Metadata.EventType)
	log.Debug().
		Str("event_id", event.Metadata.EventID).
		Str("event_type", event.Metadata.EventType).
		Str("job_id", r.JobID).
		Str("result_id", r.ID).
		Msg("Result event published")
	return nil
}
