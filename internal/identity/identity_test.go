package identity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCredentialsFromHeader(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/sse", nil)
	req.Header.Set("oauth_token", " tok ")
	req.Header.Set("oauth_token_secret", "sec")

	creds := CredentialsFromHeader(req.Header)
	if creds.AccessToken != "tok" || creds.AccessSecret != "sec" {
		t.Fatalf("unexpected credentials: %+v", creds)
	}
	if !creds.Complete() {
		t.Fatal("expected complete credentials")
	}
}

func TestCredentialsFromMeta(t *testing.T) {
	t.Parallel()

	meta := map[string]any{
		"client": map[string]any{
			"oauth_token":        "tok",
			"oauth_token_secret": "sec",
		},
	}
	if creds := CredentialsFromMeta(meta); !creds.Complete() {
		t.Fatalf("expected complete credentials, got %+v", creds)
	}

	half := map[string]any{"client": map[string]any{"oauth_token": "tok"}}
	if creds := CredentialsFromMeta(half); creds.Complete() {
		t.Fatal("expected half a pair to be incomplete")
	}

	if creds := CredentialsFromMeta(nil); creds.Complete() {
		t.Fatal("expected nil meta to yield no credentials")
	}
}

func TestSessionIDFromRequest(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name        string
		header      string
		value       string
		want        string
		wantPresent bool
	}{
		{name: "session-id header", header: SessionHeaderName, value: "abc-123", want: "abc-123", wantPresent: true},
		{name: "mcp header", header: MCPSessionHeaderName, value: "xyz", want: "xyz", wantPresent: true},
		{name: "malformed", header: SessionHeaderName, value: "bad id!", want: "", wantPresent: true},
		{name: "blank", header: SessionHeaderName, value: "   ", want: ""},
		{name: "missing", want: ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
			if tc.header != "" {
				req.Header.Set(tc.header, tc.value)
			}
			got, present := SessionIDFromRequest(req)
			if got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
			if present != tc.wantPresent {
				t.Fatalf("expected present=%v, got %v", tc.wantPresent, present)
			}
		})
	}
}

func TestSessionIDContext(t *testing.T) {
	t.Parallel()

	ctx := WithSessionID(context.Background(), "s-1")
	if got := SessionIDFromContext(ctx); got != "s-1" {
		t.Fatalf("expected s-1, got %q", got)
	}
	if got := SessionIDFromContext(context.Background()); got != "" {
		t.Fatalf("expected empty id, got %q", got)
	}
}
