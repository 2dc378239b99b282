package session

import (
	"log/slog"
	"sync"
	"time"
)

// Hooks observe registry changes. They run outside the registry lock.
type Hooks struct {
	OnCreate func(*Session)
	OnEvict  func(*Session)
}

// Registry maps session ids to live sessions. Each server instance owns its
// own Registry.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	hooks    Hooks
	now      func() time.Time
	logger   *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger, hooks Hooks) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		sessions: make(map[string]*Session),
		hooks:    hooks,
		now:      time.Now,
		logger:   logger.With("component", "session"),
	}
}

// Create registers a new session for id bound to conn. It fails with
// ErrSessionExists when id is already live, leaving that session untouched.
func (r *Registry) Create(id string, conn Conn, opts ...Option) (*Session, error) {
	r.mu.Lock()
	if _, exists := r.sessions[id]; exists {
		r.mu.Unlock()
		return nil, ErrSessionExists
	}
	s := newSession(id, conn, r.now(), opts...)
	r.sessions[id] = s
	r.mu.Unlock()

	r.logger.Info("Session created", "session_id", id, "transport", s.Transport)
	if r.hooks.OnCreate != nil {
		r.hooks.OnCreate(s)
	}
	return s, nil
}

// Lookup returns the live session for id.
func (r *Registry) Lookup(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Evict removes and closes the session for id. Evicting an unknown id is a
// no-op; the return value reports whether anything was removed.
func (r *Registry) Evict(id string) bool {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	if !ok {
		return false
	}
	r.finish(s, "evicted")
	return true
}

// EvictIdle evicts every session last used before cutoff.
func (r *Registry) EvictIdle(cutoff time.Time) int {
	r.mu.Lock()
	var idle []*Session
	for id, s := range r.sessions {
		if s.LastActive().Before(cutoff) {
			idle = append(idle, s)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	for _, s := range idle {
		r.finish(s, "idle")
	}
	return len(idle)
}

// CloseAll evicts every session, used on shutdown.
func (r *Registry) CloseAll() int {
	r.mu.Lock()
	all := make([]*Session, 0, len(r.sessions))
	for id, s := range r.sessions {
		all = append(all, s)
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	for _, s := range all {
		r.finish(s, "shutdown")
	}
	return len(all)
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *Registry) finish(s *Session, reason string) {
	s.release()
	r.logger.Info("Session closed", "session_id", s.ID, "transport", s.Transport, "reason", reason)
	if r.hooks.OnEvict != nil {
		r.hooks.OnEvict(s)
	}
}
