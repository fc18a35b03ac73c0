// ============================================================================
// Conflict Engine Metrics - Prometheus instrumentation
// ============================================================================
//
// Package: internal/metrics
// File: metrics.go
// Purpose: Collect and expose engine metrics for Prometheus
//
// Metric families:
//
//   1. Counters
//      - conflict_engine_runs_started_total
//      - conflict_engine_runs_finished_total{stage}      terminal stage of a run
//      - conflict_engine_conflicts_detected_total{severity}
//      - conflict_engine_solutions_ranked_total
//      - conflict_engine_generation_failures_total
//      - conflict_engine_feedback_received_total{outcome}
//      - conflict_engine_loopbacks_total
//
//   2. Histogram
//      - conflict_engine_stage_duration_seconds{state}
//
//   3. Gauge
//      - conflict_engine_active_runs
//
// Example queries:
//
//   # share of runs ending without solutions because generation failed
//   rate(conflict_engine_runs_finished_total{stage="generation_failed"}[5m])
//     / rate(conflict_engine_runs_started_total[5m])
//
//   # p95 generation latency
//   histogram_quantile(0.95,
//     rate(conflict_engine_stage_duration_seconds_bucket{state="generate"}[5m]))
//
// A nil *Collector is valid and records nothing.
//
// ============================================================================

package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "conflict_engine"

// Collector holds the engine's Prometheus metrics
type Collector struct {
	runsStarted        prometheus.Counter
	runsFinished       *prometheus.CounterVec
	conflicts          *prometheus.CounterVec
	solutionsRanked    prometheus.Counter
	generationFailures prometheus.Counter
	feedback           *prometheus.CounterVec
	loopbacks          prometheus.Counter

	stageDuration *prometheus.HistogramVec
	activeRuns    prometheus.Gauge
}

// NewCollector creates the collector and registers it on reg.
// A nil reg falls back to prometheus.DefaultRegisterer.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := &Collector{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_started_total",
			Help:      "Total number of analysis and feedback runs started",
		}),
		runsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_finished_total",
			Help:      "Total number of runs by terminal stage",
		}, []string{"stage"}),
		conflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conflicts_detected_total",
			Help:      "Total number of conflicts detected by severity",
		}, []string{"severity"}),
		solutionsRanked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "solutions_ranked_total",
			Help:      "Total number of candidate solutions ranked",
		}),
		generationFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_failures_total",
			Help:      "Total number of failed solution generation hand-offs",
		}),
		feedback: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feedback_received_total",
			Help:      "Total number of feedback records by implementation outcome",
		}, []string{"outcome"}),
		loopbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loopbacks_total",
			Help:      "Total number of feedback-triggered re-analyses",
		}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of each state machine stage in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"state"}),
		activeRuns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_runs",
			Help:      "Current number of runs executing",
		}),
	}

	reg.MustRegister(
		c.runsStarted,
		c.runsFinished,
		c.conflicts,
		c.solutionsRanked,
		c.generationFailures,
		c.feedback,
		c.loopbacks,
		c.stageDuration,
		c.activeRuns,
	)
	return c
}

// RunStarted records a run entering the state machine
func (c *Collector) RunStarted() {
	if c == nil {
		return
	}
	c.runsStarted.Inc()
	c.activeRuns.Inc()
}

// RunFinished records the terminal stage of a run
func (c *Collector) RunFinished(stage string) {
	if c == nil {
		return
	}
	c.runsFinished.WithLabelValues(stage).Inc()
	c.activeRuns.Dec()
}

// RecordConflicts adds one detection pass's per-severity counts
func (c *Collector) RecordConflicts(bySeverity map[string]int) {
	if c == nil {
		return
	}
	for severity, n := range bySeverity {
		if n > 0 {
			c.conflicts.WithLabelValues(severity).Add(float64(n))
		}
	}
}

// RecordRanked adds n ranked solutions
func (c *Collector) RecordRanked(n int) {
	if c == nil {
		return
	}
	c.solutionsRanked.Add(float64(n))
}

// RecordGenerationFailure counts a failed generation hand-off
func (c *Collector) RecordGenerationFailure() {
	if c == nil {
		return
	}
	c.generationFailures.Inc()
}

// RecordFeedback counts a feedback record
func (c *Collector) RecordFeedback(outcome string) {
	if c == nil {
		return
	}
	c.feedback.WithLabelValues(outcome).Inc()
}

// RecordLoopback counts a re-entry into detection
func (c *Collector) RecordLoopback() {
	if c == nil {
		return
	}
	c.loopbacks.Inc()
}

// ObserveStage records how long one stage took
func (c *Collector) ObserveStage(state string, d time.Duration) {
	if c == nil {
		return
	}
	c.stageDuration.WithLabelValues(state).Observe(d.Seconds())
}

// Handler serves the metrics gathered by g
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// NewServer builds the /metrics HTTP server; the caller starts and stops it
func NewServer(addr string, g prometheus.Gatherer) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(g))
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
