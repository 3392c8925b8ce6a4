// Package metrics exposes Prometheus collectors for tool calls and automation
// server lifecycles. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "bootstrapper"

// Metrics holds the collectors and the registry they are registered on.
type Metrics struct {
	registry *prometheus.Registry

	toolCalls     *prometheus.CounterVec
	toolDuration  *prometheus.HistogramVec
	serverStarts  *prometheus.CounterVec
	startDuration *prometheus.HistogramVec
	shutdowns     *prometheus.CounterVec
	robotRuns     *prometheus.CounterVec
}

// New creates a Metrics with its own registry, including the Go runtime and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		toolCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tool_calls_total",
				Help:      "MCP tool calls by tool and result",
			},
			[]string{"tool", "result"},
		),
		toolDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "tool_call_duration_seconds",
				Help:      "Duration of MCP tool calls",
				Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
			},
			[]string{"tool"},
		),
		serverStarts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "server_starts_total",
				Help:      "Automation server start attempts by final state",
			},
			[]string{"state"},
		),
		startDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "server_start_duration_seconds",
				Help:      "Time from spawn to a terminal start state",
				Buckets:   []float64{1, 2, 5, 10, 20, 30, 45, 60, 90},
			},
			[]string{"state"},
		),
		shutdowns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "server_shutdowns_total",
				Help:      "Shutdown requests by outcome",
			},
			[]string{"outcome"},
		),
		robotRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "robot_cli_runs_total",
				Help:      "robot-automation CLI invocations by subcommand and outcome",
			},
			[]string{"subcommand", "outcome"},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.toolCalls,
		m.toolDuration,
		m.serverStarts,
		m.startDuration,
		m.shutdowns,
		m.robotRuns,
	)
	return m
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveToolCall records one MCP tool call.
func (m *Metrics) ObserveToolCall(tool string, isError bool, d time.Duration) {
	if m == nil {
		return
	}
	result := "ok"
	if isError {
		result = "error"
	}
	m.toolCalls.WithLabelValues(tool, result).Inc()
	m.toolDuration.WithLabelValues(tool).Observe(d.Seconds())
}

// ObserveServerStart records a start attempt that reached state.
func (m *Metrics) ObserveServerStart(state string, d time.Duration) {
	if m == nil {
		return
	}
	m.serverStarts.WithLabelValues(state).Inc()
	m.startDuration.WithLabelValues(state).Observe(d.Seconds())
}

// ObserveShutdown records a shutdown request outcome.
func (m *Metrics) ObserveShutdown(outcome string) {
	if m == nil {
		return
	}
	m.shutdowns.WithLabelValues(outcome).Inc()
}

// ObserveRobotRun records one robot-automation CLI invocation.
func (m *Metrics) ObserveRobotRun(subcommand, outcome string) {
	if m == nil {
		return
	}
	m.robotRuns.WithLabelValues(subcommand, outcome).Inc()
}
