// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shipwright_http_requests_total",
			Help: "HTTP requests served, by route and status code",
		},
		[]string{"route", "code"},
	)

	httpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shipwright_http_request_duration_seconds",
			Help:    "HTTP request latency, including streamed responses",
			Buckets: []float64{0.05, 0.25, 1, 5, 30, 120, 600},
		},
		[]string{"route"},
	)

	agentRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shipwright_agent_runs_total",
			Help: "Coding agent runs, by outcome (success, error, timeout, cancelled)",
		},
		[]string{"outcome"},
	)

	agentToolCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shipwright_agent_tool_calls_total",
			Help: "Tool invocations made by the coding agent",
		},
		[]string{"tool", "status"},
	)

	agentTokens = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shipwright_agent_tokens_total",
			Help: "Tokens consumed by the coding agent",
		},
		[]string{"direction"},
	)

	upstreamRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shipwright_upstream_requests_total",
			Help: "Calls to work-item, pull request and LLM APIs",
		},
		[]string{"service", "operation", "outcome"},
	)

	activeSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "shipwright_sessions_active",
			Help: "Sessions currently held in the session store",
		},
	)
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveHTTP records one served request.
func ObserveHTTP(route string, code int, elapsed time.Duration) {
	httpRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	httpDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

// AgentRun records the outcome of a coding agent run.
func AgentRun(outcome string) {
	agentRuns.WithLabelValues(outcome).Inc()
}

// ToolCall records one agent tool invocation.
func ToolCall(tool string, failed bool) {
	status := "ok"
	if failed {
		status = "error"
	}
	agentToolCalls.WithLabelValues(tool, status).Inc()
}

// Tokens records agent token usage.
func Tokens(input, output int64) {
	agentTokens.WithLabelValues("input").Add(float64(input))
	agentTokens.WithLabelValues("output").Add(float64(output))
}

// Upstream records a call to an external API.
func Upstream(service, operation string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	upstreamRequests.WithLabelValues(service, operation, outcome).Inc()
}

// SetActiveSessions reports the current session count.
func SetActiveSessions(n int) {
	activeSessions.Set(float64(n))
}
