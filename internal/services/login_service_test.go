package services_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aegis-sec/aegis/internal/models"
	"github.com/aegis-sec/aegis/internal/repositories"
	"github.com/aegis-sec/aegis/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const (
	testPassword = "S3cure!password"
	testIP       = "192.0.2.50"
	testAgent    = "Mozilla/5.0"
)

// loginAccountState backs the mock repository with a mutable account whose
// failure counter behaves like the atomic SQL increment.
type loginAccountState struct {
	mu       sync.Mutex
	account  models.Account
	notFound bool
}

func newLoginFixture(t *testing.T) (*loginAccountState, *services.MockAccountRepository, *services.MockAddressGuard, *services.MockAttemptRecorder, *services.MockEventRecorder, *services.LoginService) {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	require.NoError(t, err)

	state := &loginAccountState{
		account: models.Account{
			ID:           "acct_1",
			Email:        "user@example.com",
			PasswordHash: string(hash),
		},
	}

	repo := &services.MockAccountRepository{}
	repo.GetByEmailFunc = func(ctx context.Context, email string) (*models.Account, error) {
		state.mu.Lock()
		defer state.mu.Unlock()
		if state.notFound || email != state.account.Email {
			return nil, models.ErrNotFound
		}
		acct := state.account
		return &acct, nil
	}
	repo.GetByIDFunc = func(ctx context.Context, id string) (*models.Account, error) {
		state.mu.Lock()
		defer state.mu.Unlock()
		acct := state.account
		return &acct, nil
	}
	repo.IncrementFailedAttemptsFunc = func(ctx context.Context, id string, threshold int, lockFor time.Duration, reason string) (*repositories.AttemptUpdate, error) {
		state.mu.Lock()
		defer state.mu.Unlock()
		wasLocked := state.account.LockState(time.Now()).IsLocked()
		state.account.FailedLoginAttempts++
		if !wasLocked && state.account.FailedLoginAttempts >= threshold {
			until := time.Now().Add(lockFor)
			state.account.Locked = true
			state.account.LockedUntil = &until
			state.account.LockedReason = &reason
		}
		return &repositories.AttemptUpdate{
			Attempts:    state.account.FailedLoginAttempts,
			Locked:      state.account.Locked,
			LockedUntil: state.account.LockedUntil,
			NewlyLocked: state.account.Locked && !wasLocked,
		}, nil
	}
	repo.ResetAttemptsFunc = func(ctx context.Context, id string) error {
		state.mu.Lock()
		defer state.mu.Unlock()
		state.account.FailedLoginAttempts = 0
		if state.account.LockedUntil != nil {
			state.account.Locked = false
			state.account.LockedUntil = nil
			state.account.LockedReason = nil
		}
		return nil
	}

	events := &services.MockEventRecorder{}
	guard := &services.MockAddressGuard{}
	attempts := &services.MockAttemptRecorder{}

	lockouts := services.NewLockoutService(repo, events, services.LockoutConfig{
		MaxFailedAttempts: 5,
		LockDuration:      30 * time.Minute,
	}, testLogger())

	login := services.NewLoginService(repo, lockouts, guard, attempts, events, services.NopEqualizer{}, testLogger())

	return state, repo, guard, attempts, events, login
}

func TestLoginServiceLogin_CorrectPasswordAllows(t *testing.T) {
	_, _, guard, attempts, events, login := newLoginFixture(t)

	result, err := login.Login(context.Background(), "user@example.com", testPassword, testIP, testAgent)

	require.NoError(t, err)
	assert.Equal(t, services.OutcomeAllow, result.Outcome)
	require.NotNil(t, result.Account)
	assert.Equal(t, "acct_1", result.Account.ID)
	assert.Equal(t, 0, guard.StrikeCount())
	assert.Equal(t, 0, attempts.FailureCount())
	assert.Equal(t, 1, events.CountByType(models.EventLoginSucceeded))
}

func TestLoginServiceLogin_WrongPasswordDenies(t *testing.T) {
	_, _, guard, attempts, events, login := newLoginFixture(t)

	result, err := login.Login(context.Background(), "user@example.com", "wrong-password", testIP, testAgent)

	require.NoError(t, err)
	assert.Equal(t, services.OutcomeDenyInvalid, result.Outcome)
	assert.Nil(t, result.Account)
	assert.Equal(t, 1, guard.StrikeCount())
	assert.Equal(t, 1, attempts.FailureCount())
	assert.Equal(t, 1, events.CountByType(models.EventLoginFailed))
}

// Unknown identifiers and wrong passwords are indistinguishable from outside:
// same outcome, same attempt record, same strike against the address.
func TestLoginServiceLogin_UnknownIdentifierMirrorsWrongPassword(t *testing.T) {
	_, _, guard, attempts, events, login := newLoginFixture(t)

	result, err := login.Login(context.Background(), "nobody@example.com", "whatever", testIP, testAgent)

	require.NoError(t, err)
	assert.Equal(t, services.OutcomeDenyInvalid, result.Outcome)
	assert.Equal(t, 1, guard.StrikeCount())
	assert.Equal(t, 1, attempts.FailureCount())
	assert.Equal(t, 1, events.CountByType(models.EventLoginFailed))
	assert.Nil(t, events.Events[0].UserID)
}

// Five wrong passwords lock the account; the sixth attempt reports the lock,
// even with the correct password.
func TestLoginServiceLogin_LockAfterRepeatedFailures(t *testing.T) {
	_, _, guard, _, events, login := newLoginFixture(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		result, err := login.Login(ctx, "user@example.com", "wrong-password", testIP, testAgent)
		require.NoError(t, err)
		// The attempt that causes the lock still reads as invalid credentials.
		assert.Equal(t, services.OutcomeDenyInvalid, result.Outcome)
	}

	assert.Equal(t, 1, events.CountByType(models.EventAccountLocked))
	// Five failure strikes plus one for the lock transition.
	assert.Equal(t, 6, guard.StrikeCount())

	result, err := login.Login(ctx, "user@example.com", testPassword, testIP, testAgent)
	require.NoError(t, err)
	assert.Equal(t, services.OutcomeDenyLocked, result.Outcome)
	assert.NotNil(t, result.LockedUntil)
	assert.Equal(t, 1, events.CountByType(models.EventLoginDeniedLocked))
}

func TestLoginServiceLogin_ExpiredLockAdmitsAndResets(t *testing.T) {
	state, _, _, _, events, login := newLoginFixture(t)
	ctx := context.Background()

	past := time.Now().Add(-time.Minute)
	state.mu.Lock()
	state.account.FailedLoginAttempts = 5
	state.account.Locked = true
	state.account.LockedUntil = &past
	state.mu.Unlock()

	result, err := login.Login(ctx, "user@example.com", testPassword, testIP, testAgent)

	require.NoError(t, err)
	assert.Equal(t, services.OutcomeAllow, result.Outcome)
	assert.Equal(t, 1, events.CountByType(models.EventLoginSucceeded))

	state.mu.Lock()
	defer state.mu.Unlock()
	assert.Equal(t, 0, state.account.FailedLoginAttempts)
	assert.False(t, state.account.Locked)
}

func TestLoginServiceLogin_IndefiniteLockSurvivesCorrectPassword(t *testing.T) {
	state, _, _, _, _, login := newLoginFixture(t)
	ctx := context.Background()

	state.mu.Lock()
	state.account.Locked = true // no LockedUntil: indefinite
	state.mu.Unlock()

	result, err := login.Login(ctx, "user@example.com", testPassword, testIP, testAgent)

	require.NoError(t, err)
	assert.Equal(t, services.OutcomeDenyLocked, result.Outcome)
	assert.Nil(t, result.LockedUntil)
}

func TestLoginServiceLogin_BlockedAddressDeniesBeforeLookup(t *testing.T) {
	_, repo, guard, attempts, events, login := newLoginFixture(t)
	guard.Blocked = true

	lookedUp := false
	inner := repo.GetByEmailFunc
	repo.GetByEmailFunc = func(ctx context.Context, email string) (*models.Account, error) {
		lookedUp = true
		return inner(ctx, email)
	}

	result, err := login.Login(context.Background(), "user@example.com", testPassword, testIP, testAgent)

	require.NoError(t, err)
	assert.Equal(t, services.OutcomeDenyAddressBlocked, result.Outcome)
	assert.False(t, lookedUp)
	assert.Equal(t, 1, attempts.FailureCount())
	assert.Equal(t, 1, events.CountByType(models.EventLoginDeniedIPBlocked))
}

// A successful login clears the failure counter so the next run of failures
// starts from zero.
func TestLoginServiceLogin_SuccessResetsCounter(t *testing.T) {
	state, _, _, _, events, login := newLoginFixture(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, err := login.Login(ctx, "user@example.com", "wrong-password", testIP, testAgent)
		require.NoError(t, err)
	}

	result, err := login.Login(ctx, "user@example.com", testPassword, testIP, testAgent)
	require.NoError(t, err)
	assert.Equal(t, services.OutcomeAllow, result.Outcome)

	state.mu.Lock()
	assert.Equal(t, 0, state.account.FailedLoginAttempts)
	state.mu.Unlock()

	// Four more failures stay below the threshold.
	for i := 0; i < 4; i++ {
		_, err := login.Login(ctx, "user@example.com", "wrong-password", testIP, testAgent)
		require.NoError(t, err)
	}
	assert.Equal(t, 0, events.CountByType(models.EventAccountLocked))
}

// Concurrent wrong-password submissions lock the account exactly once.
func TestLoginServiceLogin_ConcurrentFailuresLockOnce(t *testing.T) {
	_, _, _, _, events, login := newLoginFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := login.Login(ctx, "user@example.com", "wrong-password", testIP, testAgent)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, events.CountByType(models.EventAccountLocked))
}

// An event log failure denies the login outright.
func TestLoginServiceLogin_EventWriteFailureFailsClosed(t *testing.T) {
	_, _, _, _, events, login := newLoginFixture(t)
	events.RecordFunc = func(ctx context.Context, event *models.SecurityEvent) error {
		return models.ErrInternalServer
	}

	result, err := login.Login(context.Background(), "user@example.com", testPassword, testIP, testAgent)

	assert.Error(t, err)
	assert.Nil(t, result)
}
