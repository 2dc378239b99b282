package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/twitter-mcp/internal/domain"
	"github.com/ashureev/twitter-mcp/internal/identity"
)

const defaultPostsLimit = 50

// ListPosts returns the post log, newest first.
func (h *Handler) ListPosts(w http.ResponseWriter, r *http.Request) {
	limit := defaultPostsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			Error(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	posts, err := h.repo.ListPosts(r.Context(), limit)
	if err != nil {
		slog.Error("Failed to list posts", "error", err)
		Error(w, http.StatusInternalServerError, "failed to list posts")
		return
	}
	if posts == nil {
		posts = []*domain.PostRecord{}
	}
	JSON(w, http.StatusOK, map[string]interface{}{"posts": posts})
}

type sessionView struct {
	*domain.SessionRecord
	DurationMs int64 `json:"duration_ms"`
}

// GetSession returns the audit row for one session.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	id := identity.SanitizeSessionID(chi.URLParam(r, "id"))
	if id == "" {
		Error(w, http.StatusBadRequest, "invalid session id")
		return
	}

	rec, err := h.repo.GetSession(r.Context(), id)
	if err != nil {
		slog.Error("Failed to load session", "session_id", id, "error", err)
		Error(w, http.StatusInternalServerError, "failed to load session")
		return
	}
	if rec == nil {
		Error(w, http.StatusNotFound, "session not found")
		return
	}
	JSON(w, http.StatusOK, sessionView{SessionRecord: rec, DurationMs: rec.Duration(h.now()).Milliseconds()})
}
