// Package metrics exposes the service's Prometheus collectors: turn and
// tool execution latency/outcome, and gateway connection/HTTP counters —
// what this single duplex-channel service actually emits, not a general
// per-channel webhook/queue metrics surface.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns this process's Prometheus registrations. It is safe for
// concurrent use: every field is a prometheus vector/gauge, which are
// themselves concurrency-safe.
type Collector struct {
	TurnDuration *prometheus.HistogramVec
	TurnsTotal   *prometheus.CounterVec

	ToolDuration *prometheus.HistogramVec
	ToolsTotal   *prometheus.CounterVec

	HTTPRequestDuration *prometheus.HistogramVec
	ActiveConnections   prometheus.Gauge
}

// NewCollector registers and returns the process's metric collectors.
// Call once at startup; registering twice against the default registry
// panics, matching promauto's documented behavior.
func NewCollector() *Collector {
	return &Collector{
		TurnDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "regassist_turn_duration_seconds",
				Help:    "Duration of a complete agent turn, including all tool rounds",
				Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
			},
			[]string{"agent", "outcome"},
		),
		TurnsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "regassist_turns_total",
				Help: "Total number of turns handled, by agent and outcome",
			},
			[]string{"agent", "outcome"},
		),
		ToolDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "regassist_tool_execution_duration_seconds",
				Help:    "Duration of individual tool executions",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"tool", "outcome"},
		),
		ToolsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "regassist_tool_executions_total",
				Help: "Total number of tool executions, by tool and outcome",
			},
			[]string{"tool", "outcome"},
		),
		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "regassist_http_request_duration_seconds",
				Help:    "Duration of HTTP requests served by the gateway (excluding the long-lived WebSocket upgrade)",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"method", "path", "status"},
		),
		ActiveConnections: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "regassist_active_connections",
				Help: "Current number of open duplex WebSocket connections",
			},
		),
	}
}

// RecordTurn implements orchestrator.Metrics.
func (c *Collector) RecordTurn(agent string, durationSeconds float64, outcome string) {
	c.TurnsTotal.WithLabelValues(agent, outcome).Inc()
	c.TurnDuration.WithLabelValues(agent, outcome).Observe(durationSeconds)
}

// RecordToolExecution implements orchestrator.Metrics.
func (c *Collector) RecordToolExecution(tool string, durationSeconds float64, outcome string) {
	c.ToolsTotal.WithLabelValues(tool, outcome).Inc()
	c.ToolDuration.WithLabelValues(tool, outcome).Observe(durationSeconds)
}

// RecordHTTPRequest records one served HTTP request.
func (c *Collector) RecordHTTPRequest(method, path, status string, durationSeconds float64) {
	c.HTTPRequestDuration.WithLabelValues(method, path, status).Observe(durationSeconds)
}

// ConnectionOpened implements gateway.ConnectionMetrics.
func (c *Collector) ConnectionOpened() { c.ActiveConnections.Inc() }

// ConnectionClosed implements gateway.ConnectionMetrics.
func (c *Collector) ConnectionClosed() { c.ActiveConnections.Dec() }

// Handler returns the HTTP handler to mount at /metrics.
func (c *Collector) Handler() http.Handler {
	return promhttp.Handler()
}
