package services_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aegis-sec/aegis/internal/models"
	"github.com/aegis-sec/aegis/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestVerification(t *testing.T) (*services.VerificationService, *services.MockCodeRepository, *services.MockCodeSender, *services.MockCodeSender, *services.MockEventRecorder) {
	t.Helper()

	repo := services.NewMockCodeRepository()
	email := &services.MockCodeSender{}
	sms := &services.MockCodeSender{}
	events := &services.MockEventRecorder{}

	service := services.NewVerificationService(repo, email, sms, events,
		services.DefaultVerificationConfig(), testLogger())

	return service, repo, email, sms, events
}

func TestVerificationServiceIssue_DeliversSixDigitCode(t *testing.T) {
	service, _, email, _, events := newTestVerification(t)

	code, err := service.Issue(context.Background(), "user_1", "user@example.com", models.PurposePasswordReset)

	require.NoError(t, err)
	assert.Len(t, email.Sent, 1)
	assert.Equal(t, "user@example.com", email.Sent[0])
	assert.Len(t, email.LastCode, 6)
	assert.Regexp(t, `^\d{6}$`, email.LastCode)
	assert.WithinDuration(t, time.Now().Add(10*time.Minute), code.ExpiresAt, 5*time.Second)
	assert.Equal(t, 1, events.CountByType(models.EventCodeIssued))
}

func TestVerificationServiceIssue_PhoneCodesGoOverSMS(t *testing.T) {
	service, _, email, sms, _ := newTestVerification(t)

	_, err := service.Issue(context.Background(), "user_1", "+15550100200", models.PurposePhoneVerification)

	require.NoError(t, err)
	assert.Empty(t, email.Sent)
	assert.Len(t, sms.Sent, 1)
}

func TestVerificationServiceIssue_DeliveryFailure(t *testing.T) {
	service, _, email, _, _ := newTestVerification(t)
	email.FailWith = models.ErrInternalServer

	_, err := service.Issue(context.Background(), "user_1", "user@example.com", models.PurposePasswordReset)

	assert.ErrorIs(t, err, models.ErrDeliveryFailed)
}

func TestVerificationServiceValidate_CorrectCodeConsumedOnce(t *testing.T) {
	service, _, email, _, events := newTestVerification(t)
	ctx := context.Background()

	_, err := service.Issue(ctx, "user_1", "user@example.com", models.PurposePasswordReset)
	require.NoError(t, err)

	_, err = service.Validate(ctx, "user_1", models.PurposePasswordReset, email.LastCode)
	require.NoError(t, err)
	assert.Equal(t, 1, events.CountByType(models.EventCodeVerified))

	// The same code never works twice.
	_, err = service.Validate(ctx, "user_1", models.PurposePasswordReset, email.LastCode)
	assert.ErrorIs(t, err, models.ErrCodeInvalid)
}

func TestVerificationServiceValidate_WrongValueRejected(t *testing.T) {
	service, _, email, _, events := newTestVerification(t)
	ctx := context.Background()

	_, err := service.Issue(ctx, "user_1", "user@example.com", models.PurposePasswordReset)
	require.NoError(t, err)

	wrong := "000000"
	if email.LastCode == wrong {
		wrong = "000001"
	}

	_, err = service.Validate(ctx, "user_1", models.PurposePasswordReset, wrong)
	assert.ErrorIs(t, err, models.ErrCodeInvalid)
	assert.Equal(t, 1, events.CountByType(models.EventCodeRejected))

	// The correct value still works while budget remains.
	_, err = service.Validate(ctx, "user_1", models.PurposePasswordReset, email.LastCode)
	assert.NoError(t, err)
}

// The submission that exhausts the budget is rejected even when its value is
// correct, and the code is permanently poisoned.
func TestVerificationServiceValidate_BudgetExhaustionPoisonsCode(t *testing.T) {
	service, _, _, sms, events := newTestVerification(t)
	ctx := context.Background()

	// Phone verification has a budget of 3 submissions.
	_, err := service.Issue(ctx, "user_1", "+15550100200", models.PurposePhoneVerification)
	require.NoError(t, err)

	wrong := "000000"
	if sms.LastCode == wrong {
		wrong = "000001"
	}

	for i := 0; i < 2; i++ {
		_, err = service.Validate(ctx, "user_1", models.PurposePhoneVerification, wrong)
		assert.ErrorIs(t, err, models.ErrCodeInvalid)
	}

	// Third submission carries the correct value but the budget is gone.
	_, err = service.Validate(ctx, "user_1", models.PurposePhoneVerification, sms.LastCode)
	assert.ErrorIs(t, err, models.ErrCodeInvalid)
	assert.Equal(t, 1, events.CountByType(models.EventCodePoisoned))

	// Poisoning is permanent.
	_, err = service.Validate(ctx, "user_1", models.PurposePhoneVerification, sms.LastCode)
	assert.ErrorIs(t, err, models.ErrCodeInvalid)
}

// A mismatch reports how much guess budget the code has left; the exhausting
// submission reports zero, and once no usable code exists nothing about
// budgets is revealed.
func TestVerificationServiceValidate_ReportsRemainingBudget(t *testing.T) {
	service, _, _, sms, _ := newTestVerification(t)
	ctx := context.Background()

	// Phone verification has a budget of 3 submissions.
	_, err := service.Issue(ctx, "user_1", "+15550100200", models.PurposePhoneVerification)
	require.NoError(t, err)

	wrong := "000000"
	if sms.LastCode == wrong {
		wrong = "000001"
	}

	for guess, want := range []int{2, 1} {
		result, err := service.Validate(ctx, "user_1", models.PurposePhoneVerification, wrong)
		assert.ErrorIs(t, err, models.ErrCodeInvalid)
		require.NotNil(t, result, "guess %d", guess+1)
		assert.Equal(t, want, result.AttemptsRemaining)
	}

	result, err := service.Validate(ctx, "user_1", models.PurposePhoneVerification, wrong)
	assert.ErrorIs(t, err, models.ErrCodeInvalid)
	require.NotNil(t, result)
	assert.Equal(t, 0, result.AttemptsRemaining)

	result, err = service.Validate(ctx, "user_1", models.PurposePhoneVerification, wrong)
	assert.ErrorIs(t, err, models.ErrCodeInvalid)
	assert.Nil(t, result)
}

func TestVerificationServiceValidate_NewerCodeSupersedesOlder(t *testing.T) {
	service, _, email, _, _ := newTestVerification(t)
	ctx := context.Background()

	_, err := service.Issue(ctx, "user_1", "user@example.com", models.PurposePasswordReset)
	require.NoError(t, err)
	firstCode := email.LastCode

	_, err = service.Issue(ctx, "user_1", "user@example.com", models.PurposePasswordReset)
	require.NoError(t, err)
	secondCode := email.LastCode

	if firstCode != secondCode {
		_, err = service.Validate(ctx, "user_1", models.PurposePasswordReset, firstCode)
		assert.ErrorIs(t, err, models.ErrCodeInvalid)
	}

	_, err = service.Validate(ctx, "user_1", models.PurposePasswordReset, secondCode)
	assert.NoError(t, err)
}

func TestVerificationServiceValidate_PurposesAreIsolated(t *testing.T) {
	service, _, email, _, _ := newTestVerification(t)
	ctx := context.Background()

	_, err := service.Issue(ctx, "user_1", "user@example.com", models.PurposePasswordReset)
	require.NoError(t, err)

	// No two-factor code exists, whatever the submitted value.
	_, err = service.Validate(ctx, "user_1", models.PurposeTwoFactorAuth, email.LastCode)
	assert.ErrorIs(t, err, models.ErrCodeInvalid)
}

func TestVerificationServiceValidate_NoUsableCode(t *testing.T) {
	service, _, _, _, events := newTestVerification(t)

	_, err := service.Validate(context.Background(), "user_1", models.PurposePasswordReset, "123456")

	assert.ErrorIs(t, err, models.ErrCodeInvalid)
	assert.Equal(t, 1, events.CountByType(models.EventCodeRejected))
}

// Concurrent submissions of the correct value succeed at most once.
func TestVerificationServiceValidate_ConcurrentConsumeExactlyOnce(t *testing.T) {
	service, _, email, _, _ := newTestVerification(t)
	ctx := context.Background()

	_, err := service.Issue(ctx, "user_1", "user@example.com", models.PurposePasswordReset)
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	successes := 0

	// Stay inside the attempt budget so only the consume race is exercised.
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := service.Validate(ctx, "user_1", models.PurposePasswordReset, email.LastCode); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
}

func TestVerificationServiceIssue_UnknownPurpose(t *testing.T) {
	service, _, _, _, _ := newTestVerification(t)

	_, err := service.Issue(context.Background(), "user_1", "user@example.com", models.CodePurpose("magic_link"))

	assert.ErrorIs(t, err, models.ErrBadRequest)
}
