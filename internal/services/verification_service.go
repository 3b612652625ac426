package services

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aegis-sec/aegis/internal/models"
)

// CodeRepository defines the interface for verification code persistence
type CodeRepository interface {
	Create(ctx context.Context, code *models.VerificationCode) (*models.VerificationCode, error)
	GetLatestUsable(ctx context.Context, userID string, purpose models.CodePurpose) (*models.VerificationCode, error)
	IncrementAttempts(ctx context.Context, id string) (int, error)
	MarkUsed(ctx context.Context, id string) (bool, error)
	Poison(ctx context.Context, id string) error
}

// CodeSender delivers a code to a channel address (email or phone number).
type CodeSender interface {
	Send(ctx context.Context, address, code string, purpose models.CodePurpose, expiresAt time.Time) error
}

// VerificationConfig holds configuration for code issuance and validation
type VerificationConfig struct {
	CodeTTL     time.Duration
	CodeLength  int
	MaxAttempts map[models.CodePurpose]int
}

// DefaultVerificationConfig returns the standard policy: 6-digit codes valid
// for 10 minutes, with a tighter guess budget for SMS-delivered codes.
func DefaultVerificationConfig() VerificationConfig {
	return VerificationConfig{
		CodeTTL:    10 * time.Minute,
		CodeLength: 6,
		MaxAttempts: map[models.CodePurpose]int{
			models.PurposePasswordReset:     5,
			models.PurposeTwoFactorAuth:     5,
			models.PurposePhoneVerification: 3,
		},
	}
}

// VerificationResult reports the budget detail of a code submission.
// AttemptsRemaining is how many submissions the latest code still accepts;
// callers surface it so the user knows how close the code is to dying.
type VerificationResult struct {
	AttemptsRemaining int
}

// VerificationService issues and validates short-lived numeric codes. Every
// submission consumes attempt budget before the code value is examined, so a
// code cannot be guessed by hammering it: the budget runs out first and the
// code is poisoned, after which even the correct value is rejected.
type VerificationService struct {
	repo        CodeRepository
	emailSender CodeSender
	smsSender   CodeSender
	events      EventRecorder
	config      VerificationConfig
	logger      *slog.Logger
}

// NewVerificationService creates a new VerificationService
func NewVerificationService(repo CodeRepository, emailSender, smsSender CodeSender, events EventRecorder, config VerificationConfig, logger *slog.Logger) *VerificationService {
	return &VerificationService{
		repo:        repo,
		emailSender: emailSender,
		smsSender:   smsSender,
		events:      events,
		config:      config,
		logger:      logger,
	}
}

// generateNumericCode draws n digits from crypto/rand.
func generateNumericCode(n int) (string, error) {
	const digits = "0123456789"

	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate code: %w", err)
	}
	for i := range buf {
		buf[i] = digits[int(buf[i])%len(digits)]
	}
	return string(buf), nil
}

func (s *VerificationService) senderFor(purpose models.CodePurpose) CodeSender {
	if purpose == models.PurposePhoneVerification {
		return s.smsSender
	}
	return s.emailSender
}

// Issue generates a fresh code for (user, purpose), persists it and delivers
// it to the channel address. A newly issued code supersedes earlier unused
// ones for the same pair; validation only ever considers the latest.
func (s *VerificationService) Issue(ctx context.Context, userID, channelAddress string, purpose models.CodePurpose) (*models.VerificationCode, error) {
	if !purpose.Valid() {
		return nil, models.ErrBadRequest
	}

	value, err := generateNumericCode(s.config.CodeLength)
	if err != nil {
		return nil, err
	}

	code, err := s.repo.Create(ctx, &models.VerificationCode{
		UserID:         userID,
		ChannelAddress: channelAddress,
		Code:           value,
		Purpose:        purpose,
		ExpiresAt:      time.Now().Add(s.config.CodeTTL),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store verification code: %w", err)
	}

	err = s.events.Record(ctx, &models.SecurityEvent{
		UserID:      &userID,
		EventType:   models.EventCodeIssued,
		Severity:    models.SeverityLow,
		Description: "verification code issued",
		Metadata: models.EventMetadata{
			"purpose":    string(purpose),
			"expires_at": code.ExpiresAt,
		},
	})
	if err != nil {
		return nil, err
	}

	if err := s.senderFor(purpose).Send(ctx, channelAddress, value, purpose, code.ExpiresAt); err != nil {
		s.logger.ErrorContext(ctx, "code delivery failed",
			slog.String("user_id", userID),
			slog.String("purpose", string(purpose)),
			slog.Any("error", err))
		// The stored code stays valid; the caller may retry delivery by
		// issuing again, which supersedes this one.
		return nil, models.ErrDeliveryFailed
	}

	s.logger.InfoContext(ctx, "verification code issued",
		slog.String("user_id", userID),
		slog.String("purpose", string(purpose)))

	return code, nil
}

// Validate checks a submitted value against the latest usable code for
// (user, purpose). Attempt budget is consumed at submission time, before the
// value is compared; a submission that exhausts the budget poisons the code
// regardless of whether the value was correct. A correct submission within
// budget consumes the code exactly once.
//
// On a value mismatch the returned result carries the remaining budget so the
// caller can tell the user; when no usable code exists the result is nil and
// nothing about budgets is revealed.
func (s *VerificationService) Validate(ctx context.Context, userID string, purpose models.CodePurpose, submitted string) (*VerificationResult, error) {
	if !purpose.Valid() {
		return nil, models.ErrBadRequest
	}

	code, err := s.repo.GetLatestUsable(ctx, userID, purpose)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, s.reject(ctx, userID, purpose, "no usable code")
		}
		return nil, fmt.Errorf("failed to load verification code: %w", err)
	}

	maxAttempts := s.config.MaxAttempts[purpose]

	count, err := s.repo.IncrementAttempts(ctx, code.ID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			// Raced with a concurrent consume or poison.
			return nil, s.reject(ctx, userID, purpose, "code no longer usable")
		}
		return nil, fmt.Errorf("failed to count attempt: %w", err)
	}

	if count >= maxAttempts {
		if err := s.repo.Poison(ctx, code.ID); err != nil {
			return nil, fmt.Errorf("failed to poison code: %w", err)
		}
		s.logger.WarnContext(ctx, "verification code poisoned",
			slog.String("user_id", userID),
			slog.String("purpose", string(purpose)),
			slog.Int("attempts", count))

		err := s.events.Record(ctx, &models.SecurityEvent{
			UserID:      &userID,
			EventType:   models.EventCodePoisoned,
			Severity:    models.SeverityMedium,
			Description: "verification code invalidated after attempt budget exhausted",
			Metadata: models.EventMetadata{
				"purpose":  string(purpose),
				"attempts": count,
			},
		})
		if err != nil {
			return nil, err
		}
		return &VerificationResult{AttemptsRemaining: 0}, models.ErrCodeInvalid
	}

	if subtle.ConstantTimeCompare([]byte(code.Code), []byte(submitted)) != 1 {
		return &VerificationResult{AttemptsRemaining: maxAttempts - count},
			s.reject(ctx, userID, purpose, "code mismatch")
	}

	consumed, err := s.repo.MarkUsed(ctx, code.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to consume code: %w", err)
	}
	if !consumed {
		// Another submission won the race.
		return nil, s.reject(ctx, userID, purpose, "code already consumed")
	}

	s.logger.InfoContext(ctx, "verification code accepted",
		slog.String("user_id", userID),
		slog.String("purpose", string(purpose)))

	err = s.events.Record(ctx, &models.SecurityEvent{
		UserID:      &userID,
		EventType:   models.EventCodeVerified,
		Severity:    models.SeverityLow,
		Description: "verification code accepted",
		Metadata:    models.EventMetadata{"purpose": string(purpose)},
	})
	if err != nil {
		return nil, err
	}

	return &VerificationResult{AttemptsRemaining: maxAttempts - count}, nil
}

// reject records the rejection event and collapses every failure mode into
// the single external ErrCodeInvalid condition.
func (s *VerificationService) reject(ctx context.Context, userID string, purpose models.CodePurpose, reason string) error {
	err := s.events.Record(ctx, &models.SecurityEvent{
		UserID:      &userID,
		EventType:   models.EventCodeRejected,
		Severity:    models.SeverityLow,
		Description: "verification code rejected",
		Metadata: models.EventMetadata{
			"purpose": string(purpose),
			"reason":  reason,
		},
	})
	if err != nil {
		return err
	}
	return models.ErrCodeInvalid
}
