package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aegis-sec/aegis/internal/models"
	"github.com/aegis-sec/aegis/internal/repositories"
)

// LockoutAccountRepository defines the interface for account lockout persistence
type LockoutAccountRepository interface {
	GetByID(ctx context.Context, id string) (*models.Account, error)
	IncrementFailedAttempts(ctx context.Context, id string, threshold int, lockFor time.Duration, reason string) (*repositories.AttemptUpdate, error)
	ResetAttempts(ctx context.Context, id string) error
	SetLock(ctx context.Context, id, reason string, until *time.Time) error
	ClearLock(ctx context.Context, id string) error
}

// LockoutConfig holds configuration for per-account lockout behavior
type LockoutConfig struct {
	MaxFailedAttempts int           // consecutive failures before a lock
	LockDuration      time.Duration // length of a threshold-induced lock
}

// LockoutDecision is the outcome of recording one failed attempt.
type LockoutDecision struct {
	Attempts          int
	AttemptsRemaining int
	Locked            bool
	LockedUntil       *time.Time
	// NewlyLocked is true on the single attempt that crossed the threshold,
	// even under concurrent submissions for the same account.
	NewlyLocked bool
}

// LockoutService owns the per-account failed-attempt counter and the lock
// state machine. All counter mutations go through single-statement repository
// operations so concurrent login failures never double-apply a lock.
type LockoutService struct {
	repo   LockoutAccountRepository
	events EventRecorder
	config LockoutConfig
	logger *slog.Logger
}

// NewLockoutService creates a new LockoutService
func NewLockoutService(repo LockoutAccountRepository, events EventRecorder, config LockoutConfig, logger *slog.Logger) *LockoutService {
	return &LockoutService{
		repo:   repo,
		events: events,
		config: config,
		logger: logger,
	}
}

// RecordFailedAttempt counts one failed login against the account and applies
// the lock transition when the threshold is reached.
func (s *LockoutService) RecordFailedAttempt(ctx context.Context, accountID, sourceAddress string) (*LockoutDecision, error) {
	upd, err := s.repo.IncrementFailedAttempts(ctx, accountID,
		s.config.MaxFailedAttempts, s.config.LockDuration, "too many failed login attempts")
	if err != nil {
		return nil, fmt.Errorf("failed to record failed attempt: %w", err)
	}

	decision := &LockoutDecision{
		Attempts:    upd.Attempts,
		Locked:      upd.Locked,
		LockedUntil: upd.LockedUntil,
		NewlyLocked: upd.NewlyLocked,
	}
	if remaining := s.config.MaxFailedAttempts - upd.Attempts; remaining > 0 && !upd.Locked {
		decision.AttemptsRemaining = remaining
	}

	if upd.NewlyLocked {
		s.logger.WarnContext(ctx, "account locked",
			slog.String("account_id", accountID),
			slog.Int("attempts", upd.Attempts),
			slog.Any("locked_until", upd.LockedUntil))

		err := s.events.Record(ctx, &models.SecurityEvent{
			UserID:        &accountID,
			EventType:     models.EventAccountLocked,
			Severity:      models.SeverityHigh,
			Description:   "account locked after repeated failed login attempts",
			SourceAddress: &sourceAddress,
			Metadata: models.EventMetadata{
				"attempts":     upd.Attempts,
				"locked_until": upd.LockedUntil,
			},
		})
		if err != nil {
			return nil, err
		}
	}

	return decision, nil
}

// State returns the account's current lock state. Timed locks whose expiry has
// passed read as active without any write; the counter clears on the next
// successful login.
func (s *LockoutService) State(ctx context.Context, accountID string) (models.LockState, error) {
	acct, err := s.repo.GetByID(ctx, accountID)
	if err != nil {
		return models.LockState{}, fmt.Errorf("failed to load account: %w", err)
	}

	return acct.LockState(time.Now()), nil
}

// ResetAttempts zeroes the failure counter after a successful credential
// match. A live timed lock clears with it; indefinite locks survive.
func (s *LockoutService) ResetAttempts(ctx context.Context, accountID string) error {
	if err := s.repo.ResetAttempts(ctx, accountID); err != nil {
		return fmt.Errorf("failed to reset attempts: %w", err)
	}
	return nil
}

// Lock applies an administrative lock. until = nil locks indefinitely, which
// only Unlock can clear.
func (s *LockoutService) Lock(ctx context.Context, accountID, reason, actorID string, until *time.Time) error {
	if err := s.repo.SetLock(ctx, accountID, reason, until); err != nil {
		return fmt.Errorf("failed to lock account: %w", err)
	}

	s.logger.WarnContext(ctx, "account locked by administrator",
		slog.String("account_id", accountID),
		slog.String("actor_id", actorID),
		slog.Any("until", until))

	return s.events.Record(ctx, &models.SecurityEvent{
		UserID:      &accountID,
		EventType:   models.EventAccountLocked,
		Severity:    models.SeverityHigh,
		Description: "account locked by administrator",
		ResolvedBy:  &actorID,
		Metadata: models.EventMetadata{
			"reason": reason,
			"until":  until,
		},
	})
}

// Unlock clears any lock, including indefinite ones, and resets the counter.
func (s *LockoutService) Unlock(ctx context.Context, accountID, actorID string) error {
	if err := s.repo.ClearLock(ctx, accountID); err != nil {
		return fmt.Errorf("failed to unlock account: %w", err)
	}

	s.logger.InfoContext(ctx, "account unlocked",
		slog.String("account_id", accountID),
		slog.String("actor_id", actorID))

	return s.events.Record(ctx, &models.SecurityEvent{
		UserID:      &accountID,
		EventType:   models.EventAccountUnlocked,
		Severity:    models.SeverityMedium,
		Description: "account unlocked by administrator",
		ResolvedBy:  &actorID,
	})
}
