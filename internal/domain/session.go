// Package domain contains the records the service persists.
package domain

import (
	"time"
)

// SessionRecord is the audit row for one MCP session. Credentials are never
// part of it.
type SessionRecord struct {
	ID        string     `json:"id"`
	Transport string     `json:"transport"`
	RemoteIP  string     `json:"remote_ip,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`
}

// Open reports whether the session has not been closed yet.
func (s *SessionRecord) Open() bool {
	return s.ClosedAt == nil
}

// Duration returns how long the session lived, or has lived so far.
func (s *SessionRecord) Duration(now time.Time) time.Duration {
	end := now
	if s.ClosedAt != nil {
		end = *s.ClosedAt
	}
	if end.Before(s.CreatedAt) {
		return 0
	}
	return end.Sub(s.CreatedAt)
}
