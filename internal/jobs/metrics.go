package jobmetrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for background jobs.
type Metrics struct {
	runs     *prometheus.CounterVec
	failures *prometheus.CounterVec
	duration *prometheus.HistogramVec
	repriced *prometheus.CounterVec
	drift    *prometheus.CounterVec
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the job metrics against the provided registerer. When the
// registerer is nil the default Prometheus registerer is used.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

// Tracker provides lifecycle instrumentation helpers for a single job run.
type Tracker struct {
	metrics *Metrics
	job     string
	start   time.Time
}

// Track spawns a tracker for the given job name.
func (m *Metrics) Track(job string) *Tracker {
	if m == nil {
		return &Tracker{job: job, start: time.Now()}
	}
	return &Tracker{metrics: m, job: job, start: time.Now()}
}

// End finalises the tracker, recording duration, success/failure counts and
// returning the provided error untouched.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil || t.job == "" {
		return err
	}
	status := "success"
	if err != nil {
		status = "failure"
		t.metrics.failures.WithLabelValues(t.job).Inc()
	}
	t.metrics.runs.WithLabelValues(t.job, status).Inc()
	t.metrics.duration.WithLabelValues(t.job).Observe(time.Since(t.start).Seconds())
	return err
}

// AddRecompute records the outcome counts of one recompute run.
func (m *Metrics) AddRecompute(organizationID string, repriced, drifted int) {
	if m == nil {
		return
	}
	org := organizationID
	if org == "" {
		org = "all"
	}
	if repriced > 0 {
		m.repriced.WithLabelValues(org).Add(float64(repriced))
	}
	if drifted > 0 {
		m.drift.WithLabelValues(org).Add(float64(drifted))
	}
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "textileflow_jobs_total",
		Help: "Total job executions partitioned by job name and status.",
	}, []string{"job", "status"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "textileflow_jobs_failures_total",
		Help: "Total failures observed for background jobs.",
	}, []string{"job"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "textileflow_job_duration_seconds",
		Help:    "Duration in seconds of background job executions.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	repriced := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "textileflow_bom_repriced_total",
		Help: "Editable BOMs whose roll-up was rewritten by a recompute run.",
	}, []string{"organization"})
	drift := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "textileflow_bom_drift_detected_total",
		Help: "Decided BOMs found with a stale roll-up during recompute.",
	}, []string{"organization"})
	registerer.MustRegister(runs, failures, duration, repriced, drift)
	return &Metrics{runs: runs, failures: failures, duration: duration, repriced: repriced, drift: drift}
}
