// Package middleware provides HTTP middleware for the MCP server.
package middleware

import (
	"net/http"
	"strings"

	"github.com/ashureev/twitter-mcp/internal/identity"
)

var (
	allowedHeaders = strings.Join([]string{
		"Content-Type",
		"Accept",
		"Last-Event-ID",
		identity.SessionHeaderName,
		identity.MCPSessionHeaderName,
		"Mcp-Protocol-Version",
		identity.TokenHeaderName,
		identity.TokenSecretHeaderName,
	}, ", ")
	exposedHeaders = strings.Join([]string{
		identity.SessionHeaderName,
		identity.MCPSessionHeaderName,
	}, ", ")
)

// CORS returns middleware that handles CORS headers.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			allowed := false
			for _, o := range allowedOrigins {
				if o == "*" || o == origin {
					allowed = true
					break
				}
			}

			if allowed && origin != "" {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", allowedHeaders)
				w.Header().Set("Access-Control-Expose-Headers", exposedHeaders)
				w.Header().Add("Vary", "Origin")
				// Only allow credentials for explicit origins, not wildcard matches.
				for _, o := range allowedOrigins {
					if o != "*" && o == origin {
						w.Header().Set("Access-Control-Allow-Credentials", "true")
						break
					}
				}
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
