package handlers

import (
	"context"
	"time"

	"github.com/aegis-sec/aegis/internal/auth"
	"github.com/aegis-sec/aegis/internal/models"
	"github.com/aegis-sec/aegis/internal/services"
)

// Mock implementations for handler tests. Each method delegates to an
// optional Func field so individual tests override only what they need.

type MockLoginService struct {
	LoginFunc func(ctx context.Context, identifier, password, ipAddress, userAgent string) (*services.LoginResult, error)

	LastIdentifier string
	LastIPAddress  string
	LastUserAgent  string
}

func (m *MockLoginService) Login(ctx context.Context, identifier, password, ipAddress, userAgent string) (*services.LoginResult, error) {
	m.LastIdentifier = identifier
	m.LastIPAddress = ipAddress
	m.LastUserAgent = userAgent
	if m.LoginFunc != nil {
		return m.LoginFunc(ctx, identifier, password, ipAddress, userAgent)
	}
	return &services.LoginResult{Outcome: services.OutcomeDenyInvalid}, nil
}

type MockVerificationService struct {
	IssueFunc    func(ctx context.Context, userID, channelAddress string, purpose models.CodePurpose) (*models.VerificationCode, error)
	ValidateFunc func(ctx context.Context, userID string, purpose models.CodePurpose, submitted string) (*services.VerificationResult, error)
}

func (m *MockVerificationService) Issue(ctx context.Context, userID, channelAddress string, purpose models.CodePurpose) (*models.VerificationCode, error) {
	if m.IssueFunc != nil {
		return m.IssueFunc(ctx, userID, channelAddress, purpose)
	}
	return &models.VerificationCode{
		UserID:    userID,
		Purpose:   purpose,
		ExpiresAt: time.Now().Add(10 * time.Minute),
	}, nil
}

func (m *MockVerificationService) Validate(ctx context.Context, userID string, purpose models.CodePurpose, submitted string) (*services.VerificationResult, error) {
	if m.ValidateFunc != nil {
		return m.ValidateFunc(ctx, userID, purpose, submitted)
	}
	return &services.VerificationResult{AttemptsRemaining: 4}, nil
}

type MockTwoFactorService struct {
	BeginEnrollmentFunc          func(ctx context.Context, accountID string) (*auth.Enrollment, error)
	ConfirmEnrollmentFunc        func(ctx context.Context, accountID, totpCode string) ([]string, error)
	VerifyTOTPFunc               func(ctx context.Context, accountID, code string) error
	BeginPhoneVerificationFunc   func(ctx context.Context, accountID, phoneNumber string) error
	ConfirmPhoneVerificationFunc func(ctx context.Context, accountID, phoneNumber, submitted string) error
}

func (m *MockTwoFactorService) BeginEnrollment(ctx context.Context, accountID string) (*auth.Enrollment, error) {
	if m.BeginEnrollmentFunc != nil {
		return m.BeginEnrollmentFunc(ctx, accountID)
	}
	return &auth.Enrollment{
		Secret:     "JBSWY3DPEHPK3PXP",
		OtpauthURL: "otpauth://totp/aegis:test?secret=JBSWY3DPEHPK3PXP",
		QRDataURL:  "data:image/png;base64,aGVsbG8=",
	}, nil
}

func (m *MockTwoFactorService) ConfirmEnrollment(ctx context.Context, accountID, totpCode string) ([]string, error) {
	if m.ConfirmEnrollmentFunc != nil {
		return m.ConfirmEnrollmentFunc(ctx, accountID, totpCode)
	}
	return []string{"AAAA0000AA", "BBBB1111BB"}, nil
}

func (m *MockTwoFactorService) VerifyTOTP(ctx context.Context, accountID, code string) error {
	if m.VerifyTOTPFunc != nil {
		return m.VerifyTOTPFunc(ctx, accountID, code)
	}
	return nil
}

func (m *MockTwoFactorService) BeginPhoneVerification(ctx context.Context, accountID, phoneNumber string) error {
	if m.BeginPhoneVerificationFunc != nil {
		return m.BeginPhoneVerificationFunc(ctx, accountID, phoneNumber)
	}
	return nil
}

func (m *MockTwoFactorService) ConfirmPhoneVerification(ctx context.Context, accountID, phoneNumber, submitted string) error {
	if m.ConfirmPhoneVerificationFunc != nil {
		return m.ConfirmPhoneVerificationFunc(ctx, accountID, phoneNumber, submitted)
	}
	return nil
}

type MockBackupCodeConsumer struct {
	ConsumeBackupCodeFunc   func(ctx context.Context, accountID, code string) error
	GenerateBackupCodesFunc func(ctx context.Context, accountID string) ([]string, error)
}

func (m *MockBackupCodeConsumer) ConsumeBackupCode(ctx context.Context, accountID, code string) error {
	if m.ConsumeBackupCodeFunc != nil {
		return m.ConsumeBackupCodeFunc(ctx, accountID, code)
	}
	return nil
}

func (m *MockBackupCodeConsumer) GenerateBackupCodes(ctx context.Context, accountID string) ([]string, error) {
	if m.GenerateBackupCodesFunc != nil {
		return m.GenerateBackupCodesFunc(ctx, accountID)
	}
	return []string{"CCCC2222CC", "DDDD3333DD"}, nil
}

type MockLockoutAdmin struct {
	LockFunc   func(ctx context.Context, accountID, reason, actorID string, until *time.Time) error
	UnlockFunc func(ctx context.Context, accountID, actorID string) error

	LastActorID string
}

func (m *MockLockoutAdmin) Lock(ctx context.Context, accountID, reason, actorID string, until *time.Time) error {
	m.LastActorID = actorID
	if m.LockFunc != nil {
		return m.LockFunc(ctx, accountID, reason, actorID, until)
	}
	return nil
}

func (m *MockLockoutAdmin) Unlock(ctx context.Context, accountID, actorID string) error {
	m.LastActorID = actorID
	if m.UnlockFunc != nil {
		return m.UnlockFunc(ctx, accountID, actorID)
	}
	return nil
}

type MockAddressAdmin struct {
	BlockFunc       func(ctx context.Context, address, reason, actorID string) error
	UnblockFunc     func(ctx context.Context, address, reason, actorID string) error
	ListBlockedFunc func(ctx context.Context, limit, offset int) ([]*models.BlockedAddress, error)

	LastActorID string
}

func (m *MockAddressAdmin) Block(ctx context.Context, address, reason, actorID string) error {
	m.LastActorID = actorID
	if m.BlockFunc != nil {
		return m.BlockFunc(ctx, address, reason, actorID)
	}
	return nil
}

func (m *MockAddressAdmin) Unblock(ctx context.Context, address, reason, actorID string) error {
	m.LastActorID = actorID
	if m.UnblockFunc != nil {
		return m.UnblockFunc(ctx, address, reason, actorID)
	}
	return nil
}

func (m *MockAddressAdmin) ListBlocked(ctx context.Context, limit, offset int) ([]*models.BlockedAddress, error) {
	if m.ListBlockedFunc != nil {
		return m.ListBlockedFunc(ctx, limit, offset)
	}
	return nil, nil
}

type MockPhoneAdmin struct {
	AdminVerifyPhoneFunc func(ctx context.Context, accountID, phoneNumber, actorID string) error

	LastActorID string
}

func (m *MockPhoneAdmin) AdminVerifyPhone(ctx context.Context, accountID, phoneNumber, actorID string) error {
	m.LastActorID = actorID
	if m.AdminVerifyPhoneFunc != nil {
		return m.AdminVerifyPhoneFunc(ctx, accountID, phoneNumber, actorID)
	}
	return nil
}

type MockEventQuery struct {
	GetUserEventsFunc        func(ctx context.Context, userID string, limit, offset int) ([]*models.SecurityEvent, error)
	GetEventsByTypeFunc      func(ctx context.Context, eventType string, limit, offset int) ([]*models.SecurityEvent, error)
	GetEventsByTimeRangeFunc func(ctx context.Context, from, to time.Time, limit, offset int) ([]*models.SecurityEvent, error)
	GetCountForUserFunc      func(ctx context.Context, userID string) (int64, error)
}

func (m *MockEventQuery) GetUserEvents(ctx context.Context, userID string, limit, offset int) ([]*models.SecurityEvent, error) {
	if m.GetUserEventsFunc != nil {
		return m.GetUserEventsFunc(ctx, userID, limit, offset)
	}
	return nil, nil
}

func (m *MockEventQuery) GetEventsByType(ctx context.Context, eventType string, limit, offset int) ([]*models.SecurityEvent, error) {
	if m.GetEventsByTypeFunc != nil {
		return m.GetEventsByTypeFunc(ctx, eventType, limit, offset)
	}
	return nil, nil
}

func (m *MockEventQuery) GetEventsByTimeRange(ctx context.Context, from, to time.Time, limit, offset int) ([]*models.SecurityEvent, error) {
	if m.GetEventsByTimeRangeFunc != nil {
		return m.GetEventsByTimeRangeFunc(ctx, from, to, limit, offset)
	}
	return nil, nil
}

func (m *MockEventQuery) GetCountForUser(ctx context.Context, userID string) (int64, error) {
	if m.GetCountForUserFunc != nil {
		return m.GetCountForUserFunc(ctx, userID)
	}
	return 0, nil
}
