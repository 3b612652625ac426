package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aegis-sec/aegis/internal/auth"
	"github.com/aegis-sec/aegis/internal/models"
)

// TwoFactorAccountRepository defines the account operations for enrollment flows
type TwoFactorAccountRepository interface {
	GetByID(ctx context.Context, id string) (*models.Account, error)
	SetTwoFactorSecret(ctx context.Context, id, secret string) error
	EnableTwoFactor(ctx context.Context, id, secret string, backupCodes []string) error
	SetPhoneVerified(ctx context.Context, id, phoneNumber string) error
}

// BackupCodeGenerator mints a fresh recovery code set without persisting it.
type BackupCodeGenerator interface {
	MintBackupCodes() ([]string, error)
}

// CodeIssuer is the verification code surface the enrollment flows consume.
type CodeIssuer interface {
	Issue(ctx context.Context, userID, channelAddress string, purpose models.CodePurpose) (*models.VerificationCode, error)
	Validate(ctx context.Context, userID string, purpose models.CodePurpose, submitted string) (*VerificationResult, error)
}

// TwoFactorService runs the authenticator-app enrollment and the phone number
// verification flows.
type TwoFactorService struct {
	repo    TwoFactorAccountRepository
	totp    *auth.TOTPManager
	backups BackupCodeGenerator
	codes   CodeIssuer
	events  EventRecorder
	logger  *slog.Logger
}

// NewTwoFactorService creates a new TwoFactorService
func NewTwoFactorService(repo TwoFactorAccountRepository, totp *auth.TOTPManager, backups BackupCodeGenerator, codes CodeIssuer, events EventRecorder, logger *slog.Logger) *TwoFactorService {
	return &TwoFactorService{
		repo:    repo,
		totp:    totp,
		backups: backups,
		codes:   codes,
		events:  events,
		logger:  logger,
	}
}

// BeginEnrollment stages a new TOTP secret for the account and returns the
// provisioning material. The second factor is not active until
// ConfirmEnrollment sees a valid code from the authenticator.
func (s *TwoFactorService) BeginEnrollment(ctx context.Context, accountID string) (*auth.Enrollment, error) {
	acct, err := s.repo.GetByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to load account: %w", err)
	}
	if acct.TwoFactorEnabled {
		return nil, models.ErrConflict
	}

	enrollment, err := s.totp.GenerateEnrollment(acct.Email)
	if err != nil {
		return nil, err
	}

	if err := s.repo.SetTwoFactorSecret(ctx, accountID, enrollment.Secret); err != nil {
		return nil, fmt.Errorf("failed to stage TOTP secret: %w", err)
	}

	s.logger.InfoContext(ctx, "two-factor enrollment started",
		slog.String("account_id", accountID))

	return enrollment, nil
}

// ConfirmEnrollment activates the staged secret once the user proves their
// authenticator produces valid codes, and hands back the initial backup codes.
func (s *TwoFactorService) ConfirmEnrollment(ctx context.Context, accountID, totpCode string) ([]string, error) {
	acct, err := s.repo.GetByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to load account: %w", err)
	}
	if acct.TwoFactorEnabled {
		return nil, models.ErrConflict
	}
	if acct.TwoFactorSecret == nil {
		return nil, models.ErrBadRequest
	}

	if !s.totp.Validate(*acct.TwoFactorSecret, totpCode) {
		s.logger.WarnContext(ctx, "two-factor enrollment confirmation rejected",
			slog.String("account_id", accountID))
		return nil, models.ErrCodeInvalid
	}

	// Codes are minted first so activation and the backup set land in one
	// write; an account is never enabled without recovery codes.
	backupCodes, err := s.backups.MintBackupCodes()
	if err != nil {
		return nil, err
	}

	if err := s.repo.EnableTwoFactor(ctx, accountID, *acct.TwoFactorSecret, backupCodes); err != nil {
		return nil, fmt.Errorf("failed to enable two-factor: %w", err)
	}

	s.logger.InfoContext(ctx, "two-factor enabled",
		slog.String("account_id", accountID))

	err = s.events.Record(ctx, &models.SecurityEvent{
		UserID:      &accountID,
		EventType:   models.EventTwoFactorEnabled,
		Severity:    models.SeverityLow,
		Description: "authenticator app enrolled",
	})
	if err != nil {
		return nil, err
	}

	err = s.events.Record(ctx, &models.SecurityEvent{
		UserID:      &accountID,
		EventType:   models.EventBackupCodesGenerated,
		Severity:    models.SeverityLow,
		Description: "backup code set generated",
		Metadata:    models.EventMetadata{"count": len(backupCodes)},
	})
	if err != nil {
		return nil, err
	}

	return backupCodes, nil
}

// VerifyTOTP checks an authenticator code for an enrolled account.
func (s *TwoFactorService) VerifyTOTP(ctx context.Context, accountID, code string) error {
	acct, err := s.repo.GetByID(ctx, accountID)
	if err != nil {
		return fmt.Errorf("failed to load account: %w", err)
	}
	if !acct.TwoFactorEnabled || acct.TwoFactorSecret == nil {
		return models.ErrBadRequest
	}

	if !s.totp.Validate(*acct.TwoFactorSecret, code) {
		err := s.events.Record(ctx, &models.SecurityEvent{
			UserID:      &accountID,
			EventType:   models.EventCodeRejected,
			Severity:    models.SeverityLow,
			Description: "authenticator code rejected",
			Metadata:    models.EventMetadata{"kind": "totp"},
		})
		if err != nil {
			return err
		}
		return models.ErrCodeInvalid
	}

	return nil
}

// BeginPhoneVerification sends a verification code to the phone number the
// account wants to claim. The number is not attached until confirmation.
func (s *TwoFactorService) BeginPhoneVerification(ctx context.Context, accountID, phoneNumber string) error {
	phoneNumber, err := normalizePhone(phoneNumber)
	if err != nil {
		return err
	}

	if _, err := s.codes.Issue(ctx, accountID, phoneNumber, models.PurposePhoneVerification); err != nil {
		return err
	}

	return nil
}

// ConfirmPhoneVerification validates the SMS code and attaches the number to
// the account. A number can be verified for at most one account at a time.
func (s *TwoFactorService) ConfirmPhoneVerification(ctx context.Context, accountID, phoneNumber, submitted string) error {
	phoneNumber, err := normalizePhone(phoneNumber)
	if err != nil {
		return err
	}

	if _, err := s.codes.Validate(ctx, accountID, models.PurposePhoneVerification, submitted); err != nil {
		return err
	}

	if err := s.repo.SetPhoneVerified(ctx, accountID, phoneNumber); err != nil {
		if errors.Is(err, models.ErrConflict) {
			return models.ErrPhoneInUse
		}
		return fmt.Errorf("failed to mark phone verified: %w", err)
	}

	s.logger.InfoContext(ctx, "phone number verified",
		slog.String("account_id", accountID))

	return s.events.Record(ctx, &models.SecurityEvent{
		UserID:      &accountID,
		EventType:   models.EventPhoneVerified,
		Severity:    models.SeverityLow,
		Description: "phone number verified",
	})
}

// AdminVerifyPhone marks a phone number verified on an operator's authority,
// bypassing the SMS confirmation flow. The acting administrator is stamped on
// the recorded event.
func (s *TwoFactorService) AdminVerifyPhone(ctx context.Context, accountID, phoneNumber, actorID string) error {
	phoneNumber, err := normalizePhone(phoneNumber)
	if err != nil {
		return err
	}

	if err := s.repo.SetPhoneVerified(ctx, accountID, phoneNumber); err != nil {
		if errors.Is(err, models.ErrConflict) {
			return models.ErrPhoneInUse
		}
		return fmt.Errorf("failed to mark phone verified: %w", err)
	}

	s.logger.InfoContext(ctx, "phone number verified by administrator",
		slog.String("account_id", accountID),
		slog.String("actor_id", actorID))

	return s.events.Record(ctx, &models.SecurityEvent{
		UserID:      &accountID,
		EventType:   models.EventPhoneVerified,
		Severity:    models.SeverityMedium,
		Description: "phone number verified by administrator",
		ResolvedBy:  &actorID,
	})
}

// normalizePhone expects E.164: a leading + followed by digits only.
func normalizePhone(phoneNumber string) (string, error) {
	phoneNumber = strings.TrimSpace(phoneNumber)
	if len(phoneNumber) < 8 || len(phoneNumber) > 16 || !strings.HasPrefix(phoneNumber, "+") {
		return "", models.ErrBadRequest
	}
	for _, r := range phoneNumber[1:] {
		if r < '0' || r > '9' {
			return "", models.ErrBadRequest
		}
	}
	return phoneNumber, nil
}
