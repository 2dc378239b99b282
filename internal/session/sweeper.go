package session

import (
	"context"
	"log/slog"
	"time"
)

// StartIdleSweeper evicts sessions unused for longer than ttl, checking every
// interval until ctx is done. A non-positive ttl disables it.
func StartIdleSweeper(ctx context.Context, reg *Registry, ttl, interval time.Duration) {
	if ttl <= 0 {
		return
	}
	if interval <= 0 {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("Idle session sweeper started", "interval", interval, "ttl", ttl)

		for {
			select {
			case <-ticker.C:
				if n := reg.EvictIdle(reg.now().Add(-ttl)); n > 0 {
					slog.Info("Idle sessions evicted", "count", n)
				}
			case <-ctx.Done():
				slog.Info("Idle session sweeper shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}
