package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the engine. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// Tool metrics
	ToolExecutionsTotal   *prometheus.CounterVec
	ToolExecutionDuration *prometheus.HistogramVec

	// Authorization metrics
	AuthorizationsTotal *prometheus.CounterVec
	AuthorizationWait   prometheus.Histogram

	// Catalog metrics
	CatalogFetchesTotal     *prometheus.CounterVec
	CatalogStaleServedTotal prometheus.Counter
	RegisteredTools         prometheus.Gauge

	// Webhook metrics
	WebhookEventsTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		ToolExecutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arcade_tool_executions_total",
				Help: "Total number of tool executions by outcome",
			},
			[]string{"tool_name", "outcome"},
		),
		ToolExecutionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "arcade_tool_execution_duration_seconds",
				Help:    "Duration of tool executions in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"tool_name"},
		),

		AuthorizationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arcade_authorizations_total",
				Help: "Total number of authorization checks by resulting status",
			},
			[]string{"status"},
		),
		AuthorizationWait: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "arcade_authorization_wait_seconds",
				Help:    "Time spent waiting for authorization completion",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300},
			},
		),

		CatalogFetchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arcade_catalog_fetches_total",
				Help: "Total number of catalog fetches by result",
			},
			[]string{"result"},
		),
		CatalogStaleServedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "arcade_catalog_stale_served_total",
				Help: "Total number of times a stale catalog was served after a failed refresh",
			},
		),
		RegisteredTools: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "arcade_registered_tools",
				Help: "Number of remote tools currently registered",
			},
		),

		WebhookEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arcade_webhook_events_total",
				Help: "Total number of webhook events by type",
			},
			[]string{"type"},
		),
	}

	m.registerMetrics()

	return m
}

func (m *Metrics) registerMetrics() {
	m.registry.MustRegister(
		m.ToolExecutionsTotal,
		m.ToolExecutionDuration,
		m.AuthorizationsTotal,
		m.AuthorizationWait,
		m.CatalogFetchesTotal,
		m.CatalogStaleServedTotal,
		m.RegisteredTools,
		m.WebhookEventsTotal,
	)
}

// Handler returns an HTTP handler for the metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordToolExecution records one execution outcome and its duration.
func (m *Metrics) RecordToolExecution(tool, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.ToolExecutionsTotal.WithLabelValues(tool, outcome).Inc()
	m.ToolExecutionDuration.WithLabelValues(tool).Observe(d.Seconds())
}

// RecordAuthorization records the status returned by an authorization check.
func (m *Metrics) RecordAuthorization(status string) {
	if m == nil {
		return
	}
	m.AuthorizationsTotal.WithLabelValues(status).Inc()
}

// RecordAuthorizationWait records how long a blocking wait took.
func (m *Metrics) RecordAuthorizationWait(d time.Duration) {
	if m == nil {
		return
	}
	m.AuthorizationWait.Observe(d.Seconds())
}

// RecordCatalogFetch records a catalog fetch result ("ok" or "error").
func (m *Metrics) RecordCatalogFetch(result string) {
	if m == nil {
		return
	}
	m.CatalogFetchesTotal.WithLabelValues(result).Inc()
}

// RecordStaleServed counts a stale catalog fallback.
func (m *Metrics) RecordStaleServed() {
	if m == nil {
		return
	}
	m.CatalogStaleServedTotal.Inc()
}

// SetRegisteredTools sets the registered tool gauge.
func (m *Metrics) SetRegisteredTools(n int) {
	if m == nil {
		return
	}
	m.RegisteredTools.Set(float64(n))
}

// RecordWebhookEvent counts a received webhook event.
func (m *Metrics) RecordWebhookEvent(eventType string) {
	if m == nil {
		return
	}
	m.WebhookEventsTotal.WithLabelValues(eventType).Inc()
}
