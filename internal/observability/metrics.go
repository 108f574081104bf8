package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for ingestion and build.
type Metrics struct {
	IngestRunning prometheus.Gauge
	Chunks        *prometheus.CounterVec // labels: status={fresh,cached,failed}

	// Remote client metrics.
	RemoteRequests  *prometheus.CounterVec // labels: outcome={success,retryable,fatal,network}
	RemoteRetries   prometheus.Counter
	RemoteDuration  prometheus.Histogram
	RecordsIngested prometheus.Counter

	// Cache metrics.
	CacheCorruptions prometheus.Counter

	// Merge and build metrics.
	DuplicatesDropped prometheus.Counter
	RecordsDropped    prometheus.Counter
	TableRows         *prometheus.GaugeVec // labels: table={objects,approaches}
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith creates all metrics and registers them with reg.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	m := newMetrics()
	reg.MustRegister(
		m.IngestRunning,
		m.Chunks,
		m.RemoteRequests,
		m.RemoteRetries,
		m.RemoteDuration,
		m.RecordsIngested,
		m.CacheCorruptions,
		m.DuplicatesDropped,
		m.RecordsDropped,
		m.TableRows,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		IngestRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "neows_etl",
			Name:      "ingest_running",
			Help:      "1 while an ingestion run is active, 0 otherwise.",
		}),
		Chunks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "neows_etl",
			Name:      "chunks_total",
			Help:      "Chunks processed by outcome status.",
		}, []string{"status"}),
		RemoteRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "neows_etl",
			Name:      "remote_requests_total",
			Help:      "Feed API requests by outcome.",
		}, []string{"outcome"}),
		RemoteRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "neows_etl",
			Name:      "remote_retries_total",
			Help:      "Feed API requests retried after a transient failure.",
		}),
		RemoteDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "neows_etl",
			Name:      "remote_request_duration_seconds",
			Help:      "Feed API request duration in seconds.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		RecordsIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "neows_etl",
			Name:      "records_ingested_total",
			Help:      "Raw close-approach records parsed from fresh feed responses.",
		}),
		CacheCorruptions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "neows_etl",
			Name:      "cache_corruptions_total",
			Help:      "Cache entries that failed to parse and were treated as misses.",
		}),
		DuplicatesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "neows_etl",
			Name:      "duplicates_dropped_total",
			Help:      "Exact duplicate records dropped while merging chunks.",
		}),
		RecordsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "neows_etl",
			Name:      "records_dropped_total",
			Help:      "Records dropped by the table builder for missing required fields.",
		}),
		TableRows: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "neows_etl",
			Name:      "table_rows",
			Help:      "Rows in the most recently built tables.",
		}, []string{"table"}),
	}
}
