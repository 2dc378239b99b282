package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestMetricsExposure(t *testing.T) {
	ObserveToolCall("post_tweet", "success")
	IncRateLimited("tweets/create")
	ObserveUpstream("users/me", 200, time.Now().Add(-150*time.Millisecond))
	SessionOpened("streamable")
	SessionClosed("streamable")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status: %d", rec.Code)
	}
	body := rec.Body.String()
	for _, m := range []string{
		"twitter_mcp_tool_calls_total",
		"twitter_mcp_rate_limited_total",
		"twitter_mcp_upstream_request_duration_seconds",
		"twitter_mcp_active_sessions",
		"twitter_mcp_sessions_created_total",
	} {
		if !strings.Contains(body, m) {
			t.Fatalf("expected metric %s in body", m)
		}
	}
}
