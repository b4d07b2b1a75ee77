// Package metrics gathers the engine's Prometheus collectors behind one
// struct composed at startup. Every Metrics value owns a private registry,
// so tests can instantiate freely without collector name collisions.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every engine collector registered on its own registry.
type Metrics struct {
	registry *prometheus.Registry

	jobsTotal       *prometheus.CounterVec
	jobDuration     prometheus.Histogram
	queueDepth      prometheus.Gauge
	workersBusy     prometheus.Gauge
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	eventsConsumed  *prometheus.CounterVec
	eventsPublished *prometheus.CounterVec
	backpressure    prometheus.Gauge
	retriesTotal    prometheus.Counter
	stallsTotal     prometheus.Counter
}

// New builds a Metrics with all collectors registered.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		jobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "freightflow_jobs_total",
			Help: "Jobs finalized, labelled by kind and terminal status.",
		}, []string{"kind", "status"}),
		jobDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "freightflow_job_duration_seconds",
			Help:    "Wall time from pickup to terminal state.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "freightflow_queue_depth",
			Help: "Pending jobs in the priority queue.",
		}),
		workersBusy: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "freightflow_workers_busy",
			Help: "Workers currently executing a job.",
		}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "freightflow_prediction_cache_hits_total",
			Help: "Prediction cache hits.",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "freightflow_prediction_cache_misses_total",
			Help: "Prediction cache misses.",
		}),
		eventsConsumed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "freightflow_events_consumed_total",
			Help: "Inbound bus messages handled, labelled by topic.",
		}, []string{"topic"}),
		eventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "freightflow_events_published_total",
			Help: "Outbound result events, labelled by event type.",
		}, []string{"type"}),
		backpressure: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "freightflow_backpressure_state",
			Help: "1 while position-driven triggers are paused.",
		}),
		retriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "freightflow_job_retries_total",
			Help: "Retryable failures requeued with backoff.",
		}),
		stallsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "freightflow_job_stalls_total",
			Help: "Jobs failed by the stall watchdog.",
		}),
	}

	reg.MustRegister(
		m.jobsTotal, m.jobDuration, m.queueDepth, m.workersBusy,
		m.cacheHits, m.cacheMisses, m.eventsConsumed, m.eventsPublished,
		m.backpressure, m.retriesTotal, m.stallsTotal,
	)
	return m
}

// Handler serves the registry for an optional metrics listener.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) JobFinalized(kind, status string, duration time.Duration) {
	m.jobsTotal.WithLabelValues(kind, status).Inc()
	m.jobDuration.Observe(duration.Seconds())
}

func (m *Metrics) SetQueueDepth(n int) { m.queueDepth.Set(float64(n)) }
func (m *Metrics) WorkerStarted()      { m.workersBusy.Inc() }
func (m *Metrics) WorkerStopped()      { m.workersBusy.Dec() }
func (m *Metrics) CacheHit()           { m.cacheHits.Inc() }
func (m *Metrics) CacheMiss()          { m.cacheMisses.Inc() }
func (m *Metrics) JobRetried()         { m.retriesTotal.Inc() }
func (m *Metrics) JobStalled()         { m.stallsTotal.Inc() }

func (m *Metrics) EventConsumed(topic string) { m.eventsConsumed.WithLabelValues(topic).Inc() }
func (m *Metrics) EventPublished(kind string) { m.eventsPublished.WithLabelValues(kind).Inc() }

// SetBackpressure flips the pause gauge.
func (m *Metrics) SetBackpressure(active bool) {
	if active {
		m.backpressure.Set(1)
	} else {
		m.backpressure.Set(0)
	}
}
