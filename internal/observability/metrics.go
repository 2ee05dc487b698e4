// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Run metrics
	RunsStarted         *prometheus.CounterVec
	RunsCompleted       *prometheus.CounterVec
	RunsFailed          *prometheus.CounterVec
	RunDuration         *prometheus.HistogramVec
	InvariantViolations *prometheus.CounterVec
	TimestepsSimulated  prometheus.Counter

	// Ensemble metrics
	RunsInFlight       prometheus.Gauge
	EnsemblesCompleted prometheus.Counter
	SweepPoints        prometheus.Counter

	// Pipeline metrics
	PipelineRunsTotal *prometheus.CounterVec
	PipelineDuration  *prometheus.HistogramVec
	ReportsGenerated  prometheus.Counter

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Server metrics
	JobsQueued       prometheus.Counter
	StreamsConnected prometheus.Gauge

	// Health metrics
	LastSuccessfulPipeline prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer, namespace)
}

// NewMetricsWith registers the metrics with reg. Tests pass a fresh
// prometheus.NewRegistry() to avoid duplicate registration.
func NewMetricsWith(reg prometheus.Registerer, namespace string) *Metrics {
	if namespace == "" {
		namespace = "meshnet_sim"
	}
	f := promauto.With(reg)

	return &Metrics{
		// Run metrics
		RunsStarted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "simulation",
			Name:      "runs_started_total",
			Help:      "Total number of scenario runs started",
		}, []string{"scenario", "controller"}),
		RunsCompleted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "simulation",
			Name:      "runs_completed_total",
			Help:      "Total number of scenario runs completed",
		}, []string{"scenario", "controller"}),
		RunsFailed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "simulation",
			Name:      "runs_failed_total",
			Help:      "Total number of scenario runs failed by reason",
		}, []string{"scenario", "controller", "reason"}),
		RunDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "simulation",
			Name:      "run_duration_seconds",
			Help:      "Scenario run duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"scenario", "controller"}),
		InvariantViolations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "simulation",
			Name:      "invariant_violations_total",
			Help:      "Total number of runs aborted by an invariant violation",
		}, []string{"invariant"}),
		TimestepsSimulated: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "simulation",
			Name:      "timesteps_simulated_total",
			Help:      "Total number of simulated timesteps",
		}),

		// Ensemble metrics
		RunsInFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ensemble",
			Name:      "runs_in_flight",
			Help:      "Number of runs currently executing",
		}),
		EnsemblesCompleted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ensemble",
			Name:      "completed_total",
			Help:      "Total number of ensembles completed",
		}),
		SweepPoints: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ensemble",
			Name:      "sweep_points_total",
			Help:      "Total number of sweep rows produced",
		}),

		// Pipeline metrics
		PipelineRunsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Total number of pipeline phases by status",
		}, []string{"phase", "status"}),
		PipelineDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "duration_seconds",
			Help:      "Pipeline phase duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"phase"}),
		ReportsGenerated: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "reports_generated_total",
			Help:      "Total number of reports generated",
		}),

		// Database metrics
		DBQueryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		// Server metrics
		JobsQueued: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "jobs_queued_total",
			Help:      "Total number of run jobs accepted over HTTP",
		}),
		StreamsConnected: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "streams_connected",
			Help:      "Number of open run streams",
		}),

		// Health metrics
		LastSuccessfulPipeline: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_pipeline_timestamp",
			Help:      "Unix timestamp of last successful pipeline run",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// invariantNamer is satisfied by errors that name a violated invariant.
type invariantNamer interface {
	InvariantName() string
}

// RecordRunStarted increments the runs started counter.
func RecordRunStarted(scenario, controller string) {
	DefaultMetrics.RunsStarted.WithLabelValues(scenario, controller).Inc()
	DefaultMetrics.RunsInFlight.Inc()
}

// RecordRunFinished records the outcome of a run started with RecordRunStarted.
func RecordRunFinished(scenario, controller string, timesteps int, seconds float64, err error) {
	DefaultMetrics.RunsInFlight.Dec()
	DefaultMetrics.RunDuration.WithLabelValues(scenario, controller).Observe(seconds)
	if err == nil {
		DefaultMetrics.RunsCompleted.WithLabelValues(scenario, controller).Inc()
		DefaultMetrics.TimestepsSimulated.Add(float64(timesteps))
		return
	}
	reason := "error"
	var inv invariantNamer
	if errors.As(err, &inv) {
		reason = "invariant"
		DefaultMetrics.InvariantViolations.WithLabelValues(inv.InvariantName()).Inc()
	}
	DefaultMetrics.RunsFailed.WithLabelValues(scenario, controller, reason).Inc()
}

// RecordEnsembleCompleted increments the ensembles completed counter.
func RecordEnsembleCompleted() {
	DefaultMetrics.EnsemblesCompleted.Inc()
}

// RecordSweepPoints adds n produced sweep rows.
func RecordSweepPoints(n int) {
	DefaultMetrics.SweepPoints.Add(float64(n))
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

// RecordPipelineRun records a pipeline phase.
func RecordPipelineRun(phase, status string, durationSeconds float64) {
	DefaultMetrics.PipelineRunsTotal.WithLabelValues(phase, status).Inc()
	DefaultMetrics.PipelineDuration.WithLabelValues(phase).Observe(durationSeconds)
}

// RecordExperimentCompleted stamps the last fully orchestrated experiment.
func RecordExperimentCompleted() {
	DefaultMetrics.LastSuccessfulPipeline.SetToCurrentTime()
}

// RecordReportGenerated increments the reports generated counter.
func RecordReportGenerated() {
	DefaultMetrics.ReportsGenerated.Inc()
}

// RecordJobQueued increments the HTTP jobs counter.
func RecordJobQueued() {
	DefaultMetrics.JobsQueued.Inc()
}

// StreamOpened and StreamClosed track open run streams.
func StreamOpened() { DefaultMetrics.StreamsConnected.Inc() }

// StreamClosed decrements the open stream gauge.
func StreamClosed() { DefaultMetrics.StreamsConnected.Dec() }
