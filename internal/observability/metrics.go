package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "nest"

// Metrics holds the Prometheus counters, histograms, and gauges for report
// reconciliation and the adapters feeding it.
type Metrics struct {
	MessagesConsumed prometheus.Counter
	MessagesProduced prometheus.Counter
	ProcessingErrors prometheus.Counter
	PipelineRunning  prometheus.Gauge

	// Batch processing metrics.
	BatchSize               prometheus.Histogram
	BatchProcessingDuration prometheus.Histogram

	// Reconciliation metrics.
	Reports           *prometheus.CounterVec // labels: outcome={duplicate,first_report,...}
	ReplayedReports   prometheus.Counter
	ReconcileDuration prometheus.Histogram
	RotationChanges   *prometheus.CounterVec // labels: action={create,undo}

	// Import and lookup metrics.
	ImportRows   *prometheus.CounterVec // labels: source, outcome
	SpeciesCache *prometheus.CounterVec // labels: lookup={match,name}, result={hit,miss}
}

func newMetrics() *Metrics {
	return &Metrics{
		MessagesConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_consumed_total",
			Help:      "Total messages read from the raw report topic.",
		}),
		MessagesProduced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_produced_total",
			Help:      "Total outcome messages written to the sink topic.",
		}),
		ProcessingErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "processing_errors_total",
			Help:      "Total messages that could not be decoded or reconciled.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 when the pipeline is active, 0 when shut down.",
		}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_size",
			Help:      "Number of messages per batch extracted from Kafka.",
			Buckets:   []float64{1, 5, 10, 20, 30, 40, 50, 75, 100},
		}),
		BatchProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_processing_duration_seconds",
			Help:      "Duration of a complete extract-reconcile-publish cycle.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		}),
		Reports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_total",
			Help:      "Submitted reports by outcome.",
		}, []string{"outcome"}),
		ReplayedReports: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "replayed_reports_total",
			Help:      "Redelivered reports answered from the log without reconciling.",
		}),
		ReconcileDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reconcile_duration_seconds",
			Help:      "Time spent classifying one report.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		RotationChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rotation_changes_total",
			Help:      "Rotations created or undone.",
		}, []string{"action"}),
		ImportRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "import_rows_total",
			Help:      "Rows imported from batch sources by outcome.",
		}, []string{"source", "outcome"}),
		SpeciesCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "species_cache_total",
			Help:      "Species resolver cache lookups by kind and result.",
		}, []string{"lookup", "result"}),
	}
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.MessagesConsumed,
		m.MessagesProduced,
		m.ProcessingErrors,
		m.PipelineRunning,
		m.BatchSize,
		m.BatchProcessingDuration,
		m.Reports,
		m.ReplayedReports,
		m.ReconcileDuration,
		m.RotationChanges,
		m.ImportRows,
		m.SpeciesCache,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}
