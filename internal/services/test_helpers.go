package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aegis-sec/aegis/internal/models"
	"github.com/aegis-sec/aegis/internal/repositories"
)

// MockAccountRepository implements the account-facing service interfaces for testing
type MockAccountRepository struct {
	GetByIDFunc                 func(ctx context.Context, id string) (*models.Account, error)
	GetByEmailFunc              func(ctx context.Context, email string) (*models.Account, error)
	IncrementFailedAttemptsFunc func(ctx context.Context, id string, threshold int, lockFor time.Duration, reason string) (*repositories.AttemptUpdate, error)
	ResetAttemptsFunc           func(ctx context.Context, id string) error
	SetLockFunc                 func(ctx context.Context, id, reason string, until *time.Time) error
	ClearLockFunc               func(ctx context.Context, id string) error
	SetBackupCodesFunc          func(ctx context.Context, id string, codes []string) error
	ConsumeBackupCodeFunc       func(ctx context.Context, id, code string) (bool, error)
	SetTwoFactorSecretFunc      func(ctx context.Context, id, secret string) error
	EnableTwoFactorFunc         func(ctx context.Context, id, secret string, backupCodes []string) error
	SetPhoneVerifiedFunc        func(ctx context.Context, id, phoneNumber string) error
}

func (m *MockAccountRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockAccountRepository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, email)
	}
	return nil, models.ErrNotFound
}

func (m *MockAccountRepository) IncrementFailedAttempts(ctx context.Context, id string, threshold int, lockFor time.Duration, reason string) (*repositories.AttemptUpdate, error) {
	if m.IncrementFailedAttemptsFunc != nil {
		return m.IncrementFailedAttemptsFunc(ctx, id, threshold, lockFor, reason)
	}
	return &repositories.AttemptUpdate{Attempts: 1}, nil
}

func (m *MockAccountRepository) ResetAttempts(ctx context.Context, id string) error {
	if m.ResetAttemptsFunc != nil {
		return m.ResetAttemptsFunc(ctx, id)
	}
	return nil
}

func (m *MockAccountRepository) SetLock(ctx context.Context, id, reason string, until *time.Time) error {
	if m.SetLockFunc != nil {
		return m.SetLockFunc(ctx, id, reason, until)
	}
	return nil
}

func (m *MockAccountRepository) ClearLock(ctx context.Context, id string) error {
	if m.ClearLockFunc != nil {
		return m.ClearLockFunc(ctx, id)
	}
	return nil
}

func (m *MockAccountRepository) SetBackupCodes(ctx context.Context, id string, codes []string) error {
	if m.SetBackupCodesFunc != nil {
		return m.SetBackupCodesFunc(ctx, id, codes)
	}
	return nil
}

func (m *MockAccountRepository) ConsumeBackupCode(ctx context.Context, id, code string) (bool, error) {
	if m.ConsumeBackupCodeFunc != nil {
		return m.ConsumeBackupCodeFunc(ctx, id, code)
	}
	return false, nil
}

func (m *MockAccountRepository) SetTwoFactorSecret(ctx context.Context, id, secret string) error {
	if m.SetTwoFactorSecretFunc != nil {
		return m.SetTwoFactorSecretFunc(ctx, id, secret)
	}
	return nil
}

func (m *MockAccountRepository) EnableTwoFactor(ctx context.Context, id, secret string, backupCodes []string) error {
	if m.EnableTwoFactorFunc != nil {
		return m.EnableTwoFactorFunc(ctx, id, secret, backupCodes)
	}
	return nil
}

func (m *MockAccountRepository) SetPhoneVerified(ctx context.Context, id, phoneNumber string) error {
	if m.SetPhoneVerifiedFunc != nil {
		return m.SetPhoneVerifiedFunc(ctx, id, phoneNumber)
	}
	return nil
}

// MockEventRecorder implements EventRecorder and keeps every recorded event
type MockEventRecorder struct {
	mu         sync.Mutex
	Events     []*models.SecurityEvent
	RecordFunc func(ctx context.Context, event *models.SecurityEvent) error
}

func (m *MockEventRecorder) Record(ctx context.Context, event *models.SecurityEvent) error {
	if m.RecordFunc != nil {
		return m.RecordFunc(ctx, event)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, event)
	return nil
}

// CountByType returns how many recorded events have the given type.
func (m *MockEventRecorder) CountByType(eventType string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, e := range m.Events {
		if e.EventType == eventType {
			count++
		}
	}
	return count
}

// MockAddressBlockRepository implements AddressBlockRepository with an
// in-memory append-only history
type MockAddressBlockRepository struct {
	mu      sync.Mutex
	Records []*models.BlockedAddress
}

func (m *MockAddressBlockRepository) insert(address, reason string, unblocked bool, actorID *string) *models.BlockedAddress {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := &models.BlockedAddress{
		ID:          fmt.Sprintf("rec_%d", len(m.Records)+1),
		Address:     address,
		BlockedAt:   time.Now(),
		Unblocked:   unblocked,
		Reason:      reason,
		UnblockedBy: actorID,
	}
	m.Records = append(m.Records, rec)
	return rec
}

func (m *MockAddressBlockRepository) InsertBlock(ctx context.Context, address, reason string) (*models.BlockedAddress, error) {
	return m.insert(address, reason, false, nil), nil
}

func (m *MockAddressBlockRepository) InsertUnblock(ctx context.Context, address, reason, actorID string) (*models.BlockedAddress, error) {
	return m.insert(address, reason, true, &actorID), nil
}

func (m *MockAddressBlockRepository) GetLatest(ctx context.Context, address string) (*models.BlockedAddress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.Records) - 1; i >= 0; i-- {
		if m.Records[i].Address == address {
			return m.Records[i], nil
		}
	}
	return nil, models.ErrNotFound
}

func (m *MockAddressBlockRepository) ListCurrentlyBlocked(ctx context.Context, limit, offset int) ([]*models.BlockedAddress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	latest := make(map[string]*models.BlockedAddress)
	for _, rec := range m.Records {
		latest[rec.Address] = rec
	}
	blocked := make([]*models.BlockedAddress, 0)
	for _, rec := range latest {
		if !rec.Unblocked {
			blocked = append(blocked, rec)
		}
	}
	return blocked, nil
}

// MockCodeRepository implements CodeRepository with an in-memory store whose
// increment and consume operations are atomic, mirroring the SQL guarantees
type MockCodeRepository struct {
	mu     sync.Mutex
	nextID int
	Codes  map[string]*models.VerificationCode
}

func NewMockCodeRepository() *MockCodeRepository {
	return &MockCodeRepository{Codes: make(map[string]*models.VerificationCode)}
}

func (m *MockCodeRepository) Create(ctx context.Context, code *models.VerificationCode) (*models.VerificationCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	stored := *code
	stored.ID = fmt.Sprintf("code_%d", m.nextID)
	stored.CreatedAt = time.Now()
	m.Codes[stored.ID] = &stored
	result := stored
	return &result, nil
}

func (m *MockCodeRepository) GetLatestUsable(ctx context.Context, userID string, purpose models.CodePurpose) (*models.VerificationCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *models.VerificationCode
	for _, c := range m.Codes {
		if c.UserID != userID || c.Purpose != purpose || c.Used || time.Now().After(c.ExpiresAt) {
			continue
		}
		if latest == nil || c.CreatedAt.After(latest.CreatedAt) || (c.CreatedAt.Equal(latest.CreatedAt) && c.ID > latest.ID) {
			latest = c
		}
	}
	if latest == nil {
		return nil, models.ErrNotFound
	}
	result := *latest
	return &result, nil
}

func (m *MockCodeRepository) IncrementAttempts(ctx context.Context, id string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.Codes[id]
	if !ok || c.Used {
		return 0, models.ErrNotFound
	}
	c.AttemptsCount++
	return c.AttemptsCount, nil
}

func (m *MockCodeRepository) MarkUsed(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.Codes[id]
	if !ok || c.Used {
		return false, nil
	}
	now := time.Now()
	c.Used = true
	c.UsedAt = &now
	return true, nil
}

func (m *MockCodeRepository) Poison(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.Codes[id]; ok {
		c.Used = true
	}
	return nil
}

// MockCodeSender implements CodeSender and records deliveries
type MockCodeSender struct {
	mu       sync.Mutex
	Sent     []string // addresses in delivery order
	LastCode string
	FailWith error
}

func (m *MockCodeSender) Send(ctx context.Context, address, code string, purpose models.CodePurpose, expiresAt time.Time) error {
	if m.FailWith != nil {
		return m.FailWith
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, address)
	m.LastCode = code
	return nil
}

// MockAttemptRecorder implements AttemptRecorder
type MockAttemptRecorder struct {
	mu       sync.Mutex
	Attempts []*models.LoginAttempt
}

func (m *MockAttemptRecorder) RecordAttempt(ctx context.Context, attempt *models.LoginAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Attempts = append(m.Attempts, attempt)
	return nil
}

// FailureCount returns how many recorded attempts were failures.
func (m *MockAttemptRecorder) FailureCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, a := range m.Attempts {
		if !a.Success {
			count++
		}
	}
	return count
}

// MockAddressGuard implements AddressGuard for orchestrator tests
type MockAddressGuard struct {
	mu              sync.Mutex
	Blocked         bool
	Strikes         int
	IsBlockedFunc   func(ctx context.Context, address string) (bool, error)
	RecordStrikeFunc func(ctx context.Context, address string) (bool, error)
}

func (m *MockAddressGuard) IsBlocked(ctx context.Context, address string) (bool, error) {
	if m.IsBlockedFunc != nil {
		return m.IsBlockedFunc(ctx, address)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Blocked, nil
}

func (m *MockAddressGuard) RecordStrike(ctx context.Context, address string) (bool, error) {
	if m.RecordStrikeFunc != nil {
		return m.RecordStrikeFunc(ctx, address)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Strikes++
	return false, nil
}

// StrikeCount returns the number of strikes recorded.
func (m *MockAddressGuard) StrikeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Strikes
}

// NopEqualizer implements DenialEqualizer without sleeping
type NopEqualizer struct{}

func (NopEqualizer) Equalize(start time.Time) {}
