// Package metrics exposes Prometheus collectors for sessions, tool calls and
// upstream API traffic.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ToolCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "twitter_mcp_tool_calls_total",
		Help: "Tool invocations by tool and outcome",
	}, []string{"tool", "outcome"})
	RateLimited = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "twitter_mcp_rate_limited_total",
		Help: "Outbound calls denied by local pacing",
	}, []string{"endpoint"})
	UpstreamDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "twitter_mcp_upstream_request_duration_seconds",
		Help:    "Upstream API request duration seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint", "status"})
	ActiveSessions = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "twitter_mcp_active_sessions",
		Help: "Live sessions by transport",
	}, []string{"transport"})
	SessionsCreated = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "twitter_mcp_sessions_created_total",
		Help: "Sessions created by transport",
	}, []string{"transport"})
)

func init() {
	prometheus.MustRegister(ToolCalls, RateLimited, UpstreamDuration, ActiveSessions, SessionsCreated)
}

// Handler serves the default registry.
func Handler() http.Handler { return promhttp.Handler() }

// ObserveToolCall counts a finished tool call.
func ObserveToolCall(tool, outcome string) { ToolCalls.WithLabelValues(tool, outcome).Inc() }

// IncRateLimited counts a locally paced call.
func IncRateLimited(endpoint string) { RateLimited.WithLabelValues(endpoint).Inc() }

// ObserveUpstream records one upstream request. status 0 means a transport failure.
func ObserveUpstream(endpoint string, status int, start time.Time) {
	UpstreamDuration.WithLabelValues(endpoint, strconv.Itoa(status)).Observe(time.Since(start).Seconds())
}

// SessionOpened tracks a new session on transport.
func SessionOpened(transport string) {
	SessionsCreated.WithLabelValues(transport).Inc()
	ActiveSessions.WithLabelValues(transport).Inc()
}

// SessionClosed tracks an evicted session on transport.
func SessionClosed(transport string) { ActiveSessions.WithLabelValues(transport).Dec() }
