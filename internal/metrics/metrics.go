// Package metrics collects pipeline counters on a private Prometheus
// registry. A nil *Metrics is valid and records nothing, so callers that do
// not care about metrics pass nil.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/roach88/capsule/internal/diag"
)

// Cache lookup outcomes.
const (
	LookupHit   = "hit"
	LookupMiss  = "miss"
	LookupError = "error"
)

// Metrics holds the collectors for one compiler process.
type Metrics struct {
	registry *prometheus.Registry

	StageDuration *prometheus.HistogramVec
	StageFailures *prometheus.CounterVec
	CacheLookups  *prometheus.CounterVec
	CacheStores   prometheus.Counter
	CachedJobs    prometheus.Counter
	Diagnostics   *prometheus.CounterVec
}

// New creates the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		StageDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "capsule_stage_duration_seconds",
				Help:    "Pipeline stage duration in seconds",
				Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1, 5},
			},
			[]string{"stage"},
		),
		StageFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "capsule_stage_failures_total",
				Help: "Stages that finished with errors on the queue",
			},
			[]string{"stage"},
		),
		CacheLookups: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "capsule_cache_lookups_total",
				Help: "Cache lookups by result",
			},
			[]string{"result"},
		),
		CacheStores: f.NewCounter(
			prometheus.CounterOpts{
				Name: "capsule_cache_stores_total",
				Help: "Cache entries written",
			},
		),
		CachedJobs: f.NewCounter(
			prometheus.CounterOpts{
				Name: "capsule_cache_stored_jobs_total",
				Help: "Jobs written to the cache across all entries",
			},
		),
		Diagnostics: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "capsule_diagnostics_total",
				Help: "Diagnostics reported by severity",
			},
			[]string{"level"},
		),
	}
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveStage records one stage run.
func (m *Metrics) ObserveStage(stage string, d time.Duration, ok bool) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
	if !ok {
		m.StageFailures.WithLabelValues(stage).Inc()
	}
}

// CacheLookup records a fetch outcome (LookupHit, LookupMiss or LookupError).
func (m *Metrics) CacheLookup(result string) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

// CacheStored records one stored entry holding n jobs.
func (m *Metrics) CacheStored(n int) {
	if m == nil {
		return
	}
	m.CacheStores.Inc()
	m.CachedJobs.Add(float64(n))
}

// CountDiagnostics counts messages by level.
func (m *Metrics) CountDiagnostics(msgs []diag.Message) {
	if m == nil {
		return
	}
	for _, msg := range msgs {
		m.Diagnostics.WithLabelValues(msg.Level.String()).Inc()
	}
}

// WriteToTextfile writes every collector in the text exposition format.
func (m *Metrics) WriteToTextfile(path string) error {
	if m == nil {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}
