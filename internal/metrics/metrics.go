// Package metrics exposes Prometheus instrumentation for the analysis
// pipeline: job and step counters, duration histograms, and an active-job
// gauge. A Recorder owns its registry so tests can assert on collected
// values without touching global state.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"vidsight/internal/jobs"
	"vidsight/internal/pipeline"
)

// Recorder collects pipeline metrics into a dedicated registry.
type Recorder struct {
	registry *prometheus.Registry

	jobsTotal     *prometheus.CounterVec
	jobDuration   prometheus.Histogram
	stepAttempts  *prometheus.CounterVec
	stepDuration  *prometheus.HistogramVec
	activeJobs    prometheus.Gauge
	eventsDropped prometheus.Counter
}

// NewRecorder builds a Recorder with all collectors registered.
func NewRecorder() *Recorder {
	registry := prometheus.NewRegistry()

	r := &Recorder{
		registry: registry,
		jobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vidsight_jobs_total",
			Help: "Jobs finished, labeled by terminal status.",
		}, []string{"status"}),
		jobDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "vidsight_job_duration_seconds",
			Help:    "Wall-clock duration of completed jobs.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
		stepAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vidsight_step_attempts_total",
			Help: "Step executions, labeled by step and outcome kind.",
		}, []string{"step", "outcome"}),
		stepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vidsight_step_duration_seconds",
			Help:    "Wall-clock duration of step attempts.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"step"}),
		activeJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vidsight_active_jobs",
			Help: "Jobs currently being processed.",
		}),
		eventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vidsight_events_dropped_total",
			Help: "Subscriber events dropped due to full buffers.",
		}),
	}

	registry.MustRegister(
		r.jobsTotal,
		r.jobDuration,
		r.stepAttempts,
		r.stepDuration,
		r.activeJobs,
		r.eventsDropped,
	)
	return r
}

// JobStarted marks a job as active.
func (r *Recorder) JobStarted() {
	r.activeJobs.Inc()
}

// JobFinished records a terminal transition and the job's total duration.
func (r *Recorder) JobFinished(status jobs.Status, seconds float64) {
	r.activeJobs.Dec()
	r.jobsTotal.WithLabelValues(string(status)).Inc()
	if seconds >= 0 {
		r.jobDuration.Observe(seconds)
	}
}

// StepAttempt records one execution of a step. Outcome is "success" or the
// classified error kind of the failure.
func (r *Recorder) StepAttempt(step pipeline.Step, outcome string, seconds float64) {
	r.stepAttempts.WithLabelValues(string(step), outcome).Inc()
	if seconds >= 0 {
		r.stepDuration.WithLabelValues(string(step)).Observe(seconds)
	}
}

// EventDropped counts a subscriber event lost to backpressure.
func (r *Recorder) EventDropped() {
	r.eventsDropped.Inc()
}

// Handler serves the recorder's registry in Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mainly for tests.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}
