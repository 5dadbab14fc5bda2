// Package metrics exposes Prometheus collectors for pipeline activity.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "shorts_pipeline"

// Metrics is safe to use through a nil pointer; every method is then a no-op.
type Metrics struct {
	runs        *prometheus.CounterVec
	runDuration prometheus.Histogram
	failures    *prometheus.CounterVec
	selections  *prometheus.CounterVec
	pending     prometheus.Gauge
	generations *prometheus.CounterVec
	active      prometheus.Gauge
}

// MustNew registers the collectors with reg and panics on a registration
// error, like the promauto helpers.
func MustNew(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Pipeline invocations by terminal outcome.",
		}, []string{"outcome"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of pipeline invocations.",
			// generation alone takes minutes
			Buckets: []float64{30, 60, 120, 300, 600, 900, 1200, 1800, 2700},
		}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "failures_total",
			Help:      "Failed invocations by error kind and step.",
		}, []string{"kind", "step"}),
		selections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "option_selections_total",
			Help:      "Settings option group resolutions by outcome.",
		}, []string{"group", "outcome"}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tasks_pending",
			Help:      "Generated payloads awaiting confirmation.",
		}),
		generations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generations_total",
			Help:      "AI payload requests by outcome.",
		}, []string{"outcome"}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "runs_active",
			Help:      "Pipeline invocations currently executing.",
		}),
	}
	reg.MustRegister(m.runs, m.runDuration, m.failures, m.selections, m.pending, m.generations, m.active)
	return m
}

// RunStarted marks an invocation as executing
func (m *Metrics) RunStarted() {
	if m == nil {
		return
	}
	m.active.Inc()
}

// RunFinished records a terminal result. kind and step are empty on success.
func (m *Metrics) RunFinished(d time.Duration, kind, step string) {
	if m == nil {
		return
	}
	m.active.Dec()
	m.runDuration.Observe(d.Seconds())
	if kind == "" {
		m.runs.WithLabelValues("success").Inc()
		return
	}
	m.runs.WithLabelValues("failure").Inc()
	m.failures.WithLabelValues(kind, step).Inc()
}

// OptionSelected counts one option group resolution
func (m *Metrics) OptionSelected(group, outcome string) {
	if m == nil {
		return
	}
	m.selections.WithLabelValues(group, outcome).Inc()
}

// SetPending sets the number of pending tasks
func (m *Metrics) SetPending(n int) {
	if m == nil {
		return
	}
	m.pending.Set(float64(n))
}

// Generation counts one AI request
func (m *Metrics) Generation(ok bool) {
	if m == nil {
		return
	}
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	m.generations.WithLabelValues(outcome).Inc()
}
