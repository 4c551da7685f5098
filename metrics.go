package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/haverford/chatcore/internal/room"
	"github.com/haverford/chatcore/internal/session"
)

// runMetrics logs active session and room counts every interval until ctx is
// canceled.
func runMetrics(ctx context.Context, sessions *session.Registry, rooms *room.Registry, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			slog.Info("metrics", "active_sessions", sessions.Count(), "active_rooms", rooms.RoomCount())
		}
	}
}
