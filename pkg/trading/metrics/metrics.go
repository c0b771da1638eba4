// Package metrics exposes Prometheus collectors for the risk desk.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "riskdesk"

// Metrics groups the collectors. Each instance owns its registry so tests
// and multiple engines do not collide.
type Metrics struct {
	registry *prometheus.Registry

	QuotesReceived   *prometheus.CounterVec
	QuotesStale      prometheus.Counter
	Validations      *prometheus.CounterVec
	ValidationErrors *prometheus.CounterVec
	AlertTriggers    *prometheus.CounterVec
	ActiveAlerts     prometheus.Gauge
	HookRuns         *prometheus.CounterVec
	PortfolioScore   prometheus.Gauge
	ReportDuration   prometheus.Histogram
}

// New creates and registers the collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		QuotesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quotes_received_total",
			Help:      "Quotes received, by source.",
		}, []string{"source"}),
		QuotesStale: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quotes_stale_total",
			Help:      "Quotes ignored because a newer one was held.",
		}),
		Validations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_validations_total",
			Help:      "Order validations, by outcome.",
		}, []string{"outcome"}),
		ValidationErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_validation_errors_total",
			Help:      "Blocking validation errors, by kind.",
		}, []string{"kind"}),
		AlertTriggers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alert_triggers_total",
			Help:      "Alerts fired, by condition.",
		}, []string{"condition"}),
		ActiveAlerts: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "alerts_active",
			Help:      "Alerts currently armed.",
		}),
		HookRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hook_runs_total",
			Help:      "Hook executions, by event and result.",
		}, []string{"event", "result"}),
		PortfolioScore: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "portfolio_risk_score",
			Help:      "Latest portfolio risk score.",
		}),
		ReportDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "portfolio_report_seconds",
			Help:      "Time to build a portfolio report.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
	}

	m.registry.MustRegister(
		m.QuotesReceived,
		m.QuotesStale,
		m.Validations,
		m.ValidationErrors,
		m.AlertTriggers,
		m.ActiveAlerts,
		m.HookRuns,
		m.PortfolioScore,
		m.ReportDuration,
	)
	return m
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveValidation counts one validation and each of its error kinds.
func (m *Metrics) ObserveValidation(valid bool, kinds []string) {
	outcome := "accepted"
	if !valid {
		outcome = "rejected"
	}
	m.Validations.WithLabelValues(outcome).Inc()
	for _, k := range kinds {
		m.ValidationErrors.WithLabelValues(k).Inc()
	}
}

// ObserveReport records a report's score and how long it took.
func (m *Metrics) ObserveReport(score float64, took time.Duration) {
	m.PortfolioScore.Set(score)
	m.ReportDuration.Observe(took.Seconds())
}
