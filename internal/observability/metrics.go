package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "taps"

// Metrics holds the Prometheus counters, histograms, and gauges for the tracker.
type Metrics struct {
	// Ingestion metrics.
	IngestPasses      *prometheus.CounterVec // labels: outcome={success,error}
	SightingsIngested prometheus.Counter
	LinesSkipped      prometheus.Counter
	SnapshotSize      prometheus.Gauge
	IngestDuration    prometheus.Histogram
	IngestRunning     prometheus.Gauge

	// Kafka feed and publication metrics.
	FeedMessages       prometheus.Counter
	SightingsPublished prometheus.Counter
	PublishErrors      prometheus.Counter

	// Geocoding metrics.
	GeocodeRequests    *prometheus.CounterVec // labels: outcome={success,error,empty}
	GeocodeCache       *prometheus.CounterVec // labels: result={hit,miss}
	GeocodeAPIDuration prometheus.Histogram
	GeocodeEnabled     prometheus.Gauge

	// Analytics and parking metrics.
	PredictionsServed  prometheus.Counter
	SessionTransitions *prometheus.CounterVec // labels: event={started,cancelled,stopped,expired,resumed,stale}
	ActiveSessions     prometheus.Gauge
	TrackedMachines    prometheus.Gauge
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		IngestPasses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_passes_total",
			Help:      "Ingestion passes by outcome.",
		}, []string{"outcome"}),
		SightingsIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sightings_ingested_total",
			Help:      "Total sightings produced by ingestion passes.",
		}),
		LinesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lines_skipped_total",
			Help:      "Total raw lines rejected by the normalizer.",
		}),
		SnapshotSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "snapshot_sightings",
			Help:      "Number of sightings in the current snapshot.",
		}),
		IngestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingest_duration_seconds",
			Help:      "Duration of a complete fetch-normalize-swap pass.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5},
		}),
		IngestRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ingest_running",
			Help:      "1 when the ingestion loop is active, 0 when shut down.",
		}),
		FeedMessages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_messages_consumed_total",
			Help:      "Raw sighting lines read from the submission topic.",
		}),
		SightingsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sightings_published_total",
			Help:      "Canonical sightings written to the sink topic.",
		}),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_errors_total",
			Help:      "Failed snapshot publications.",
		}),
		GeocodeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_requests_total",
			Help:      "Geocoding API requests by outcome.",
		}, []string{"outcome"}),
		GeocodeCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_cache_total",
			Help:      "Geocoding cache lookups by result.",
		}, []string{"result"}),
		GeocodeAPIDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "geocode_api_duration_seconds",
			Help:      "Mapbox API request duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		GeocodeEnabled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "geocode_enabled",
			Help:      "1 when geocoding fallback is enabled, 0 otherwise.",
		}),
		PredictionsServed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "predictions_served_total",
			Help:      "Enforcement predictions computed.",
		}),
		SessionTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "parking_session_transitions_total",
			Help:      "Parking session state transitions by event.",
		}, []string{"event"}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "parking_sessions_active",
			Help:      "Parking sessions with a running countdown.",
		}),
		TrackedMachines: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "parking_machines_tracked",
			Help:      "Per-identity parking state machines held in memory.",
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.IngestPasses,
		m.SightingsIngested,
		m.LinesSkipped,
		m.SnapshotSize,
		m.IngestDuration,
		m.IngestRunning,
		m.FeedMessages,
		m.SightingsPublished,
		m.PublishErrors,
		m.GeocodeRequests,
		m.GeocodeCache,
		m.GeocodeAPIDuration,
		m.GeocodeEnabled,
		m.PredictionsServed,
		m.SessionTransitions,
		m.ActiveSessions,
		m.TrackedMachines,
	}
}
