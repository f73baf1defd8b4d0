// Package metrics holds the prometheus collectors for a tandem process.
//
// A nil *Metrics is valid and records nothing, so components can take one
// unconditionally.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tandem"

type Metrics struct {
	registry *prometheus.Registry

	toolDecisions *prometheus.CounterVec
	toolCalls     *prometheus.CounterVec
	toolDuration  *prometheus.HistogramVec
	modelCalls    *prometheus.CounterVec
	modelDuration prometheus.Histogram
	turns         *prometheus.CounterVec
	providers     prometheus.Gauge
}

// New creates a Metrics with its own registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		toolDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_decisions_total",
			Help:      "Approval decisions for tool calls by tool and decision.",
		}, []string{"tool", "decision"}),
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Executed tool calls by tool and status.",
		}, []string{"tool", "status"}),
		toolDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_call_duration_seconds",
			Help:      "Time spent executing tool calls.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}, []string{"tool"}),
		modelCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_calls_total",
			Help:      "Model calls by outcome.",
		}, []string{"outcome"}),
		modelDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "model_call_duration_seconds",
			Help:      "Latency of model calls including retries.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
		}),
		turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turn_loops_total",
			Help:      "Completed turn loops by how they ended.",
		}, []string{"reason"}),
		providers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tool_providers_connected",
			Help:      "Connected external tool providers.",
		}),
	}
	m.registry.MustRegister(
		m.toolDecisions,
		m.toolCalls,
		m.toolDuration,
		m.modelCalls,
		m.modelDuration,
		m.turns,
		m.providers,
		prometheus.NewGoCollector(),
	)
	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ToolDecision(tool, decision string) {
	if m == nil {
		return
	}
	m.toolDecisions.WithLabelValues(tool, decision).Inc()
}

func (m *Metrics) ToolCall(tool string, failed bool, d time.Duration) {
	if m == nil {
		return
	}
	status := "ok"
	if failed {
		status = "error"
	}
	m.toolCalls.WithLabelValues(tool, status).Inc()
	m.toolDuration.WithLabelValues(tool).Observe(d.Seconds())
}

func (m *Metrics) ModelCall(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.modelCalls.WithLabelValues(outcome).Inc()
	m.modelDuration.Observe(d.Seconds())
}

func (m *Metrics) TurnLoop(reason string) {
	if m == nil {
		return
	}
	m.turns.WithLabelValues(reason).Inc()
}

func (m *Metrics) ProvidersConnected(n int) {
	if m == nil {
		return
	}
	m.providers.Set(float64(n))
}
