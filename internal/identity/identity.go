// Package identity resolves who a request belongs to: its MCP session id and
// the caller's OAuth access token pair.
package identity

import (
	"context"
	"net"
	"net/http"
	"regexp"
	"strings"
)

const (
	// SessionHeaderName carries the session id on every post-initialization request.
	SessionHeaderName = "session-id"
	// MCPSessionHeaderName is the header name used by stock MCP clients.
	MCPSessionHeaderName = "Mcp-Session-Id"
	// LegacySessionQueryParam names the session on POST /messages.
	LegacySessionQueryParam = "sessionId"

	TokenHeaderName       = "oauth_token"
	TokenSecretHeaderName = "oauth_token_secret"
)

type contextKey int

const (
	sessionIDKey contextKey = iota
)

var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)

// Credentials is the caller's access token pair. It is bound to exactly one
// session and never written to storage.
type Credentials struct {
	AccessToken  string
	AccessSecret string
}

// Complete reports whether both halves of the pair are present.
func (c Credentials) Complete() bool {
	return c.AccessToken != "" && c.AccessSecret != ""
}

// CredentialsFromHeader reads the pair from oauth_token and oauth_token_secret.
func CredentialsFromHeader(h http.Header) Credentials {
	return Credentials{
		AccessToken:  strings.TrimSpace(h.Get(TokenHeaderName)),
		AccessSecret: strings.TrimSpace(h.Get(TokenSecretHeaderName)),
	}
}

// CredentialsFromMeta reads the pair from a request's _meta.client object.
func CredentialsFromMeta(meta map[string]any) Credentials {
	client, ok := meta["client"].(map[string]any)
	if !ok {
		return Credentials{}
	}
	token, _ := client[TokenHeaderName].(string)
	secret, _ := client[TokenSecretHeaderName].(string)
	return Credentials{
		AccessToken:  strings.TrimSpace(token),
		AccessSecret: strings.TrimSpace(secret),
	}
}

// SessionIDFromRequest returns the sanitized session id header. present
// reports whether a header was sent at all, so a malformed id ("" with
// present set) can be told apart from a missing one.
func SessionIDFromRequest(r *http.Request) (id string, present bool) {
	sid := strings.TrimSpace(r.Header.Get(SessionHeaderName))
	if sid == "" {
		sid = strings.TrimSpace(r.Header.Get(MCPSessionHeaderName))
	}
	return SanitizeSessionID(sid), sid != ""
}

// SanitizeSessionID trims id and rejects anything outside the id alphabet.
func SanitizeSessionID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" || !sessionIDPattern.MatchString(id) {
		return ""
	}
	return id
}

// SetSessionHeader writes the session id under both header names.
func SetSessionHeader(h http.Header, id string) {
	h.Set(SessionHeaderName, id)
	h.Set(MCPSessionHeaderName, id)
}

// WithSessionID returns a context carrying the session id.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionIDKey, id)
}

// SessionIDFromContext extracts the session id from the context.
func SessionIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(sessionIDKey).(string); ok {
		return v
	}
	return ""
}

// IPFromRequest returns a normalized remote IP for optional request tracing.
func IPFromRequest(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
