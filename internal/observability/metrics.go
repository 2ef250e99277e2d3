// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Research runner metrics
	RunsTotal           *prometheus.CounterVec
	CandidatesTested    *prometheus.CounterVec
	CandidateDuration   prometheus.Histogram
	CandidatesCompleted prometheus.Gauge
	BestExpectancyR     prometheus.Gauge

	// Simulation metrics
	TradesSimulated *prometheus.CounterVec
	BarsLoaded      prometheus.Counter

	// Checkpoint metrics
	CheckpointSaves        *prometheus.CounterVec
	CheckpointSaveDuration prometheus.Histogram
	CheckpointLoads        *prometheus.CounterVec
	LastCheckpoint         prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "orb_lab"
	}

	return &Metrics{
		RunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "research",
			Name:      "runs_total",
			Help:      "Research runs that ended, by final status",
		}, []string{"status"}),
		CandidatesTested: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "research",
			Name:      "candidates_total",
			Help:      "Candidates recorded, by candidate status",
		}, []string{"status"}),
		CandidateDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "research",
			Name:      "candidate_duration_seconds",
			Help:      "Time to simulate, gate and record one candidate",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		CandidatesCompleted: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "research",
			Name:      "candidates_completed",
			Help:      "Candidates completed by the active run",
		}),
		BestExpectancyR: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "research",
			Name:      "best_expectancy_r",
			Help:      "Best expectancy in R seen by the active run",
		}),

		TradesSimulated: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "simulation",
			Name:      "trades_total",
			Help:      "Per-date simulation results, by outcome",
		}, []string{"outcome"}),
		BarsLoaded: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "simulation",
			Name:      "bars_loaded_total",
			Help:      "Bars read from the bar store",
		}),

		CheckpointSaves: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "checkpoint",
			Name:      "saves_total",
			Help:      "Checkpoint saves, by result",
		}, []string{"result"}),
		CheckpointSaveDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "checkpoint",
			Name:      "save_duration_seconds",
			Help:      "Time to write the checkpoint file and mirror it to the store",
			Buckets:   prometheus.DefBuckets,
		}),
		CheckpointLoads: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "checkpoint",
			Name:      "loads_total",
			Help:      "Checkpoint loads, by source (file, store, none)",
		}, []string{"source"}),
		LastCheckpoint: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "checkpoint",
			Name:      "last_save_timestamp",
			Help:      "Unix time of the last successful checkpoint save",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordRunFinished counts a run that stopped with the given status.
func RecordRunFinished(status string) {
	DefaultMetrics.RunsTotal.WithLabelValues(status).Inc()
}

// RecordCandidate records one persisted candidate.
func RecordCandidate(status string, d time.Duration) {
	DefaultMetrics.CandidatesTested.WithLabelValues(status).Inc()
	DefaultMetrics.CandidateDuration.Observe(d.Seconds())
}

// UpdateProgress sets the active run gauges.
func UpdateProgress(completed uint64, bestExpectancyR *float64) {
	DefaultMetrics.CandidatesCompleted.Set(float64(completed))
	if bestExpectancyR != nil {
		DefaultMetrics.BestExpectancyR.Set(*bestExpectancyR)
	}
}

// RecordTrade counts one per-date result.
func RecordTrade(outcome string) {
	DefaultMetrics.TradesSimulated.WithLabelValues(outcome).Inc()
}

// RecordBarsLoaded counts bars read from the bar store.
func RecordBarsLoaded(n int) {
	DefaultMetrics.BarsLoaded.Add(float64(n))
}

// RecordCheckpointSave records a checkpoint save attempt.
func RecordCheckpointSave(d time.Duration, err error) {
	DefaultMetrics.CheckpointSaveDuration.Observe(d.Seconds())
	if err != nil {
		DefaultMetrics.CheckpointSaves.WithLabelValues("error").Inc()
		return
	}
	DefaultMetrics.CheckpointSaves.WithLabelValues("ok").Inc()
	DefaultMetrics.LastCheckpoint.SetToCurrentTime()
}

// RecordCheckpointLoad records where a checkpoint was loaded from.
func RecordCheckpointLoad(source string) {
	DefaultMetrics.CheckpointLoads.WithLabelValues(source).Inc()
}
