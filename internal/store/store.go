// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/ashureev/twitter-mcp/internal/domain"
)

// Repository persists the session audit trail and the post log.
type Repository interface {
	// RecordSessionOpened inserts a session audit row.
	RecordSessionOpened(ctx context.Context, rec *domain.SessionRecord) error

	// RecordSessionClosed stamps closed_at on a session row. Unknown ids are ignored.
	RecordSessionClosed(ctx context.Context, id string, closedAt time.Time) error

	// GetSession returns a session row, or nil when none exists.
	GetSession(ctx context.Context, id string) (*domain.SessionRecord, error)

	// CloseOpenSessions stamps every open row, used at startup after an unclean exit.
	CloseOpenSessions(ctx context.Context, at time.Time) (int64, error)

	// RecordPost appends to the post log and sets post.ID.
	RecordPost(ctx context.Context, post *domain.PostRecord) error

	// ListPosts returns the newest posts first.
	ListPosts(ctx context.Context, limit int) ([]*domain.PostRecord, error)

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
