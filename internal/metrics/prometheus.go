package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Exporter publishes daemon wide counters in the Prometheus format.
// A nil *Exporter is valid and records nothing.
type Exporter struct {
	registry    *prometheus.Registry
	evaluations *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	runs        *prometheus.CounterVec
	activeRuns  prometheus.Gauge
}

// NewExporter registers the tuning metrics on a fresh registry
func NewExporter() *Exporter {
	e := &Exporter{
		registry: prometheus.NewRegistry(),
		evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "autotune",
			Name:      "evaluations_total",
			Help:      "Benchmark evaluations by SIMD level and outcome.",
		}, []string{"simd", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "autotune",
			Name:      "evaluation_seconds",
			Help:      "Wall time of one benchmark evaluation.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 16),
		}, []string{"simd"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "autotune",
			Name:      "runs_total",
			Help:      "Tuning runs by terminal status.",
		}, []string{"status"}),
		activeRuns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "autotune",
			Name:      "active_runs",
			Help:      "Tuning runs currently executing.",
		}),
	}
	e.registry.MustRegister(e.evaluations, e.latency, e.runs, e.activeRuns)
	return e
}

// Handler serves the registry for scraping
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

func (e *Exporter) observeEvaluation(simd string, seconds float64, err error) {
	if e == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	e.evaluations.WithLabelValues(simd, outcome).Inc()
	e.latency.WithLabelValues(simd).Observe(seconds)
}

// RunStarted marks a run as executing
func (e *Exporter) RunStarted() {
	if e == nil {
		return
	}
	e.activeRuns.Inc()
}

// RunFinished counts a run that reached status and is no longer executing
func (e *Exporter) RunFinished(status string) {
	if e == nil {
		return
	}
	e.activeRuns.Dec()
	e.runs.WithLabelValues(status).Inc()
}
