package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aegis-sec/aegis/internal/models"
)

const (
	backupCodeCount = 10
	backupCodeBytes = 8 // 16 hex characters per code
)

// BackupCodeRepository defines the interface for backup code persistence
type BackupCodeRepository interface {
	GetByID(ctx context.Context, id string) (*models.Account, error)
	SetBackupCodes(ctx context.Context, id string, codes []string) error
	ConsumeBackupCode(ctx context.Context, id, code string) (bool, error)
}

// BackupCodeService manages single-use recovery codes for two-factor accounts.
// Codes are stored uppercase; consumption removes the code from the stored set
// in one conditional update, so each code works exactly once.
type BackupCodeService struct {
	repo   BackupCodeRepository
	events EventRecorder
	logger *slog.Logger
}

// NewBackupCodeService creates a new BackupCodeService
func NewBackupCodeService(repo BackupCodeRepository, events EventRecorder, logger *slog.Logger) *BackupCodeService {
	return &BackupCodeService{
		repo:   repo,
		events: events,
		logger: logger,
	}
}

// MintBackupCodes draws a fresh plaintext code set without persisting it.
// Enrollment uses this so the codes can be stored in the same write that
// activates the second factor.
func (s *BackupCodeService) MintBackupCodes() ([]string, error) {
	codes := make([]string, backupCodeCount)
	for i := range codes {
		buf := make([]byte, backupCodeBytes)
		if _, err := rand.Read(buf); err != nil {
			return nil, fmt.Errorf("failed to generate backup codes: %w", err)
		}
		codes[i] = strings.ToUpper(hex.EncodeToString(buf))
	}
	return codes, nil
}

// GenerateBackupCodes creates a fresh set of codes for the account, replacing
// any previous set. The plaintext codes are returned exactly once; they are
// never logged or included in event metadata.
func (s *BackupCodeService) GenerateBackupCodes(ctx context.Context, accountID string) ([]string, error) {
	codes, err := s.MintBackupCodes()
	if err != nil {
		return nil, err
	}

	if err := s.repo.SetBackupCodes(ctx, accountID, codes); err != nil {
		return nil, fmt.Errorf("failed to store backup codes: %w", err)
	}

	s.logger.InfoContext(ctx, "backup codes generated",
		slog.String("account_id", accountID),
		slog.Int("count", backupCodeCount))

	err = s.events.Record(ctx, &models.SecurityEvent{
		UserID:      &accountID,
		EventType:   models.EventBackupCodesGenerated,
		Severity:    models.SeverityLow,
		Description: "backup code set generated",
		Metadata:    models.EventMetadata{"count": backupCodeCount},
	})
	if err != nil {
		return nil, err
	}

	return codes, nil
}

// ConsumeBackupCode validates and removes a single backup code. Two concurrent
// submissions of the same code succeed at most once.
func (s *BackupCodeService) ConsumeBackupCode(ctx context.Context, accountID, code string) error {
	normalized := strings.ToUpper(strings.TrimSpace(code))
	if normalized == "" {
		return models.ErrCodeInvalid
	}

	consumed, err := s.repo.ConsumeBackupCode(ctx, accountID, normalized)
	if err != nil {
		return fmt.Errorf("failed to consume backup code: %w", err)
	}
	if !consumed {
		s.logger.WarnContext(ctx, "backup code rejected",
			slog.String("account_id", accountID))

		err := s.events.Record(ctx, &models.SecurityEvent{
			UserID:      &accountID,
			EventType:   models.EventCodeRejected,
			Severity:    models.SeverityLow,
			Description: "backup code rejected",
			Metadata:    models.EventMetadata{"kind": "backup_code"},
		})
		if err != nil {
			return err
		}
		return models.ErrCodeInvalid
	}

	remaining := -1
	if acct, err := s.repo.GetByID(ctx, accountID); err == nil {
		remaining = len(acct.TwoFactorBackupCodes)
	}

	s.logger.InfoContext(ctx, "backup code consumed",
		slog.String("account_id", accountID),
		slog.Int("remaining", remaining))

	return s.events.Record(ctx, &models.SecurityEvent{
		UserID:      &accountID,
		EventType:   models.EventBackupCodeConsumed,
		Severity:    models.SeverityMedium,
		Description: "backup code consumed",
		Metadata:    models.EventMetadata{"remaining": remaining},
	})
}
