package background

import (
	"context"
	"log/slog"
	"time"
)

// AttemptPurger deletes raw login attempts past the retention horizon
type AttemptPurger interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// CodePurger deletes verification codes that expired long enough ago that no
// validation path can still reach them
type CodePurger interface {
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// CleanupManager periodically purges aged login attempts and dead
// verification codes. Blocked addresses and security events are append-only
// records and are deliberately never touched here.
type CleanupManager struct {
	attempts  AttemptPurger
	codes     CodePurger
	logger    *slog.Logger
	interval  time.Duration
	retention time.Duration
	stopCh    chan struct{}
}

// NewCleanupManager creates a new cleanup manager
func NewCleanupManager(
	attempts AttemptPurger,
	codes CodePurger,
	logger *slog.Logger,
	interval time.Duration,
	retention time.Duration,
) *CleanupManager {
	return &CleanupManager{
		attempts:  attempts,
		codes:     codes,
		logger:    logger,
		interval:  interval,
		retention: retention,
		stopCh:    make(chan struct{}),
	}
}

// Start begins the periodic cleanup task
func (cm *CleanupManager) Start(ctx context.Context) {
	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	// Run immediately on startup
	cm.runCleanup(ctx)

	for {
		select {
		case <-ticker.C:
			cm.runCleanup(ctx)
		case <-cm.stopCh:
			cm.logger.Info("cleanup manager stopped")
			return
		case <-ctx.Done():
			cm.logger.Info("cleanup manager context cancelled")
			return
		}
	}
}

func (cm *CleanupManager) runCleanup(ctx context.Context) {
	cleanupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	now := time.Now()

	attemptsDeleted, err := cm.attempts.DeleteOlderThan(cleanupCtx, now.Add(-cm.retention))
	if err != nil {
		cm.logger.Error("failed to purge aged login attempts", slog.Any("error", err))
	} else if attemptsDeleted > 0 {
		cm.logger.Info("purged aged login attempts", slog.Int64("rows_deleted", attemptsDeleted))
	}

	// Codes stay queryable for a grace period after expiry so poison and
	// attempt counters remain observable while an incident is investigated.
	codesDeleted, err := cm.codes.DeleteExpiredBefore(cleanupCtx, now.Add(-24*time.Hour))
	if err != nil {
		cm.logger.Error("failed to purge expired verification codes", slog.Any("error", err))
	} else if codesDeleted > 0 {
		cm.logger.Info("purged expired verification codes", slog.Int64("rows_deleted", codesDeleted))
	}
}

// Stop signals the cleanup manager to stop
func (cm *CleanupManager) Stop() {
	close(cm.stopCh)
}
