// Package metrics provides Prometheus metrics instrumentation for scenariod.
//
// It exposes operational metrics about the refresh pipeline, including the
// duration of each stage (fetch, compute), the age of the latest scenario
// set, refresh outcomes and error tracking. All metrics are exposed via the
// /metrics HTTP endpoint for Prometheus scraping.
//
// Metrics exposed:
//   - resload_fetch_seconds: Histogram of upstream fetch duration by source
//   - resload_compute_seconds: Histogram of scenario computation duration
//   - resload_scenario_age_seconds: Gauge of latest scenario set age
//   - resload_scenario_count: Gauge of scenarios in the latest set
//   - resload_refreshes_total: Counter of refresh outcomes
//   - resload_errors_total: Counter of errors by component and reason
//
// All metrics include the model label since scenariod refreshes each
// configured ensemble model independently.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for one model's refresh loop.
type Metrics struct {
	FetchSeconds       *prometheus.HistogramVec
	ComputeSeconds     prometheus.Histogram
	ScenarioAgeSeconds prometheus.Gauge
	ScenarioCount      prometheus.Gauge
	RefreshesTotal     *prometheus.CounterVec
	ErrorsTotal        *prometheus.CounterVec
}

// New creates and registers all Prometheus metrics for a model.
func New(model string) *Metrics {
	return &Metrics{
		FetchSeconds: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name: "resload_fetch_seconds",
			Help: "Time spent fetching forecasts from an upstream source",
			ConstLabels: prometheus.Labels{
				"model": model,
			},
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"source"}),

		ComputeSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Name: "resload_compute_seconds",
			Help: "Time spent computing residual-load scenarios",
			ConstLabels: prometheus.Labels{
				"model": model,
			},
			Buckets: prometheus.DefBuckets,
		}),

		ScenarioAgeSeconds: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "resload_scenario_age_seconds",
			Help: "Age of the latest computed scenario set in seconds",
			ConstLabels: prometheus.Labels{
				"model": model,
			},
		}),

		ScenarioCount: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "resload_scenario_count",
			Help: "Number of scenarios in the latest computed set",
			ConstLabels: prometheus.Labels{
				"model": model,
			},
		}),

		RefreshesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "resload_refreshes_total",
			Help: "Total refresh cycles by outcome",
			ConstLabels: prometheus.Labels{
				"model": model,
			},
		}, []string{"outcome"}),

		ErrorsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "resload_errors_total",
			Help: "Total number of errors by component and reason",
			ConstLabels: prometheus.Labels{
				"model": model,
			},
		}, []string{"component", "reason"}),
	}
}

// RecordFetch records the time spent fetching from one source.
func (m *Metrics) RecordFetch(source string, seconds float64) {
	m.FetchSeconds.WithLabelValues(source).Observe(seconds)
}

// RecordCompute records the time spent computing scenarios.
func (m *Metrics) RecordCompute(seconds float64) {
	m.ComputeSeconds.Observe(seconds)
}

// SetScenarioAge sets the age of the latest scenario set.
func (m *Metrics) SetScenarioAge(seconds float64) {
	m.ScenarioAgeSeconds.Set(seconds)
}

// SetScenarioCount sets the size of the latest scenario set.
func (m *Metrics) SetScenarioCount(n int) {
	m.ScenarioCount.Set(float64(n))
}

// RecordRefresh increments the refresh counter for one outcome.
func (m *Metrics) RecordRefresh(outcome string) {
	m.RefreshesTotal.WithLabelValues(outcome).Inc()
}

// RecordError increments the error counter.
func (m *Metrics) RecordError(component, reason string) {
	m.ErrorsTotal.WithLabelValues(component, reason).Inc()
}
