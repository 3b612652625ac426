package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aegis-sec/aegis/internal/models"
	pkgauth "github.com/aegis-sec/aegis/pkg/auth"
)

// LoginAccountRepository defines the account lookup the orchestrator needs
type LoginAccountRepository interface {
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
}

// LockoutManager is the per-account lockout surface the orchestrator consumes.
type LockoutManager interface {
	RecordFailedAttempt(ctx context.Context, accountID, sourceAddress string) (*LockoutDecision, error)
	State(ctx context.Context, accountID string) (models.LockState, error)
	ResetAttempts(ctx context.Context, accountID string) error
}

// AddressGuard is the source-address abuse surface the orchestrator consumes.
type AddressGuard interface {
	IsBlocked(ctx context.Context, address string) (bool, error)
	RecordStrike(ctx context.Context, address string) (bool, error)
}

// AttemptRecorder persists individual login attempts.
type AttemptRecorder interface {
	RecordAttempt(ctx context.Context, attempt *models.LoginAttempt) error
}

// DenialEqualizer pads denial responses to a uniform duration.
type DenialEqualizer interface {
	Equalize(start time.Time)
}

// LoginOutcome is the decision for one login attempt.
type LoginOutcome string

const (
	OutcomeAllow              LoginOutcome = "allow"
	OutcomeDenyInvalid        LoginOutcome = "deny_invalid_credentials"
	OutcomeDenyLocked         LoginOutcome = "deny_account_locked"
	OutcomeDenyAddressBlocked LoginOutcome = "deny_address_blocked"
)

// LoginResult carries the outcome and, for allowed attempts, the account.
type LoginResult struct {
	Outcome     LoginOutcome
	Account     *models.Account // set only when Outcome == OutcomeAllow
	LockedUntil *time.Time      // set for timed locks on OutcomeDenyLocked
}

// dummyPasswordHash is compared against when the identifier resolves to no
// account, so unknown and known identifiers cost the same bcrypt work.
const dummyPasswordHash = "$2a$14$wH8LpYhxg1uJGVXriTkMOeZ3FvJk0rNqQ1bT9aHopXifBVCsjcW2u"

// LoginService orchestrates one login attempt across the address guard, the
// account lockout machine and the credential check, in that order. Any
// infrastructure error is returned to the caller, which must deny; this
// service never falls back to allowing on error.
type LoginService struct {
	accounts  LoginAccountRepository
	lockouts  LockoutManager
	guard     AddressGuard
	attempts  AttemptRecorder
	events    EventRecorder
	equalizer DenialEqualizer
	logger    *slog.Logger
}

// NewLoginService creates a new LoginService
func NewLoginService(accounts LoginAccountRepository, lockouts LockoutManager, guard AddressGuard, attempts AttemptRecorder, events EventRecorder, equalizer DenialEqualizer, logger *slog.Logger) *LoginService {
	return &LoginService{
		accounts:  accounts,
		lockouts:  lockouts,
		guard:     guard,
		attempts:  attempts,
		events:    events,
		equalizer: equalizer,
		logger:    logger,
	}
}

// Login evaluates one credential submission. The outcome ordering is fixed:
// a blocked address denies before the account is even resolved, a locked
// account denies before the password is compared, and only then does the
// credential check run. Every denial is padded to a uniform response time.
func (s *LoginService) Login(ctx context.Context, identifier, password, ipAddress, userAgent string) (*LoginResult, error) {
	start := time.Now()
	identifier = strings.ToLower(strings.TrimSpace(identifier))

	blocked, err := s.guard.IsBlocked(ctx, ipAddress)
	if err != nil {
		return nil, err
	}
	if blocked {
		return s.denyAddressBlocked(ctx, start, identifier, ipAddress, userAgent)
	}

	acct, err := s.accounts.GetByEmail(ctx, identifier)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return s.denyUnknownIdentifier(ctx, start, identifier, password, ipAddress, userAgent)
		}
		return nil, fmt.Errorf("failed to resolve identifier: %w", err)
	}

	lockState, err := s.lockouts.State(ctx, acct.ID)
	if err != nil {
		return nil, err
	}
	if lockState.IsLocked() {
		return s.denyLocked(ctx, start, acct, lockState, ipAddress, userAgent)
	}

	if err := pkgauth.ComparePassword(acct.PasswordHash, password); err != nil {
		return s.denyWrongPassword(ctx, start, acct, ipAddress, userAgent)
	}

	if err := s.lockouts.ResetAttempts(ctx, acct.ID); err != nil {
		return nil, err
	}

	if err := s.recordAttempt(ctx, acct.Email, ipAddress, userAgent, true, nil); err != nil {
		return nil, err
	}

	err = s.events.Record(ctx, &models.SecurityEvent{
		UserID:        &acct.ID,
		EventType:     models.EventLoginSucceeded,
		Severity:      models.SeverityLow,
		Description:   "login succeeded",
		SourceAddress: &ipAddress,
		UserAgent:     &userAgent,
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "login allowed",
		slog.String("account_id", acct.ID),
		slog.String("source_address", ipAddress))

	return &LoginResult{Outcome: OutcomeAllow, Account: acct}, nil
}

func (s *LoginService) denyAddressBlocked(ctx context.Context, start time.Time, identifier, ipAddress, userAgent string) (*LoginResult, error) {
	reason := "address_blocked"
	if err := s.recordAttempt(ctx, identifier, ipAddress, userAgent, false, &reason); err != nil {
		return nil, err
	}

	err := s.events.Record(ctx, &models.SecurityEvent{
		EventType:     models.EventLoginDeniedIPBlocked,
		Severity:      models.SeverityMedium,
		Description:   "login denied: source address blocked",
		SourceAddress: &ipAddress,
		UserAgent:     &userAgent,
	})
	if err != nil {
		return nil, err
	}

	s.logger.WarnContext(ctx, "login denied: address blocked",
		slog.String("source_address", ipAddress))

	s.equalizer.Equalize(start)
	return &LoginResult{Outcome: OutcomeDenyAddressBlocked}, nil
}

// denyUnknownIdentifier mirrors the wrong-password path for identifiers that
// resolve to no account: same bcrypt cost, same attempt record, same strike
// against the source address, same outcome.
func (s *LoginService) denyUnknownIdentifier(ctx context.Context, start time.Time, identifier, password, ipAddress, userAgent string) (*LoginResult, error) {
	_ = pkgauth.ComparePassword(dummyPasswordHash, password)

	if _, err := s.guard.RecordStrike(ctx, ipAddress); err != nil {
		return nil, err
	}

	reason := "invalid_credentials"
	if err := s.recordAttempt(ctx, identifier, ipAddress, userAgent, false, &reason); err != nil {
		return nil, err
	}

	err := s.events.Record(ctx, &models.SecurityEvent{
		EventType:     models.EventLoginFailed,
		Severity:      models.SeverityLow,
		Description:   "login failed: invalid credentials",
		SourceAddress: &ipAddress,
		UserAgent:     &userAgent,
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "login failed: invalid credentials")

	s.equalizer.Equalize(start)
	return &LoginResult{Outcome: OutcomeDenyInvalid}, nil
}

func (s *LoginService) denyLocked(ctx context.Context, start time.Time, acct *models.Account, lockState models.LockState, ipAddress, userAgent string) (*LoginResult, error) {
	reason := "account_locked"
	if err := s.recordAttempt(ctx, acct.Email, ipAddress, userAgent, false, &reason); err != nil {
		return nil, err
	}

	err := s.events.Record(ctx, &models.SecurityEvent{
		UserID:        &acct.ID,
		EventType:     models.EventLoginDeniedLocked,
		Severity:      models.SeverityMedium,
		Description:   "login denied: account locked",
		SourceAddress: &ipAddress,
		UserAgent:     &userAgent,
		Metadata:      models.EventMetadata{"locked_until": lockState.Until},
	})
	if err != nil {
		return nil, err
	}

	s.logger.WarnContext(ctx, "login denied: account locked",
		slog.String("account_id", acct.ID))

	s.equalizer.Equalize(start)
	return &LoginResult{Outcome: OutcomeDenyLocked, LockedUntil: lockState.Until}, nil
}

func (s *LoginService) denyWrongPassword(ctx context.Context, start time.Time, acct *models.Account, ipAddress, userAgent string) (*LoginResult, error) {
	decision, err := s.lockouts.RecordFailedAttempt(ctx, acct.ID, ipAddress)
	if err != nil {
		return nil, err
	}

	if _, err := s.guard.RecordStrike(ctx, ipAddress); err != nil {
		return nil, err
	}
	if decision.NewlyLocked {
		// A lock transition weighs as an additional strike against the
		// address that caused it.
		if _, err := s.guard.RecordStrike(ctx, ipAddress); err != nil {
			return nil, err
		}
	}

	reason := "invalid_credentials"
	if err := s.recordAttempt(ctx, acct.Email, ipAddress, userAgent, false, &reason); err != nil {
		return nil, err
	}

	err = s.events.Record(ctx, &models.SecurityEvent{
		UserID:        &acct.ID,
		EventType:     models.EventLoginFailed,
		Severity:      models.SeverityLow,
		Description:   "login failed: invalid credentials",
		SourceAddress: &ipAddress,
		UserAgent:     &userAgent,
		Metadata:      models.EventMetadata{"attempts": decision.Attempts},
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "login failed: invalid credentials",
		slog.String("account_id", acct.ID),
		slog.Int("attempts", decision.Attempts))

	// The attempt that causes a lock still reports invalid credentials;
	// the lock denial only appears from the next attempt on.
	s.equalizer.Equalize(start)
	return &LoginResult{Outcome: OutcomeDenyInvalid}, nil
}

func (s *LoginService) recordAttempt(ctx context.Context, identifier, ipAddress, userAgent string, success bool, failureReason *string) error {
	err := s.attempts.RecordAttempt(ctx, &models.LoginAttempt{
		Identifier:    identifier,
		IPAddress:     ipAddress,
		UserAgent:     userAgent,
		Success:       success,
		FailureReason: failureReason,
	})
	if err != nil {
		return fmt.Errorf("failed to record login attempt: %w", err)
	}
	return nil
}
