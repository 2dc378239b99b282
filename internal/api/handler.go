// Package api provides the admin HTTP handlers served next to the MCP endpoints.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/twitter-mcp/internal/store"
)

const defaultHealthTimeout = 5 * time.Second

// SessionCounter reports how many sessions are live.
type SessionCounter interface {
	Len() int
}

// Handler serves /api routes.
type Handler struct {
	repo          store.Repository
	sessions      SessionCounter
	healthTimeout time.Duration
	now           func() time.Time
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(repo store.Repository, sessions SessionCounter) *Handler {
	return &Handler{
		repo:          repo,
		sessions:      sessions,
		healthTimeout: defaultHealthTimeout,
		now:           time.Now,
	}
}

// RegisterRoutes mounts the /api routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)
		r.Get("/posts", h.ListPosts)
		r.Get("/sessions/{id}", h.GetSession)
	})
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}
