package shared

import (
	"context"
	"strings"
	"time"
)

// IsSQLiteConflictError reports SQLITE_BUSY and "database is locked"
// failures, both of which clear once the competing writer commits.
func IsSQLiteConflictError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// RetryOnSQLiteConflict runs fn up to attempts times, backing off linearly
// while it keeps failing with a conflict error.
func RetryOnSQLiteConflict(ctx context.Context, attempts int, backoff time.Duration, fn func() error) error {
	if attempts <= 0 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); !IsSQLiteConflictError(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(i+1) * backoff):
		}
	}
	return err
}
