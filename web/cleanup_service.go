package web

import (
	"context"
	"time"

	"order-analyst/web/services"

	"go.uber.org/zap"
)

// CleanupService drops chat sessions that have been idle too long.
type CleanupService struct {
	sessions *services.SessionService
	logger   *zap.Logger
}

func NewCleanupService(sessions *services.SessionService, logger *zap.Logger) *CleanupService {
	return &CleanupService{
		sessions: sessions,
		logger:   logger,
	}
}

// CleanupStaleSessions deletes sessions idle for longer than maxAge and
// returns how many were deleted.
func (cs *CleanupService) CleanupStaleSessions(maxAge time.Duration) int {
	cutoffTime := time.Now().Add(-maxAge)
	deleted := cs.sessions.DeleteStale(cutoffTime)
	if deleted > 0 {
		cs.logger.Info("Stale session cleanup completed",
			zap.Int("sessions_deleted", deleted),
			zap.Int("sessions_remaining", cs.sessions.Count()),
			zap.Time("cutoff_time", cutoffTime))
	}
	return deleted
}

// StartSessionCleanup runs CleanupStaleSessions every interval until ctx
// ends. A non-positive interval or maxAge disables it.
func StartSessionCleanup(ctx context.Context, interval, maxAge time.Duration, cs *CleanupService, logger *zap.Logger) {
	if interval <= 0 || maxAge <= 0 {
		logger.Info("Session cleanup disabled")
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cs.CleanupStaleSessions(maxAge)
		}
	}
}
