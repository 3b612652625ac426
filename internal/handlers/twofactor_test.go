package handlers_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aegis-sec/aegis/internal/auth"
	"github.com/aegis-sec/aegis/internal/handlers"
	"github.com/aegis-sec/aegis/internal/models"
)

func newTwoFactorHandler() (*handlers.TwoFactorHandler, *handlers.MockTwoFactorService, *handlers.MockBackupCodeConsumer) {
	svc := &handlers.MockTwoFactorService{}
	backups := &handlers.MockBackupCodeConsumer{}
	return handlers.NewTwoFactorHandler(svc, backups), svc, backups
}

func TestTwoFactorHandler_BeginEnrollment(t *testing.T) {
	h, _, _ := newTwoFactorHandler()

	rec := postJSON(t, h.BeginEnrollment, "/2fa/enroll", handlers.BeginEnrollmentRequest{
		AccountID: testUserID,
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "otpauth://")
	assert.Contains(t, rec.Body.String(), "data:image/png;base64,")
	// The raw secret travels only inside the otpauth URL, never as its own field.
	assert.NotContains(t, rec.Body.String(), `"secret"`)
}

func TestTwoFactorHandler_BeginEnrollment_AlreadyEnabled(t *testing.T) {
	h, svc, _ := newTwoFactorHandler()
	svc.BeginEnrollmentFunc = func(context.Context, string) (*auth.Enrollment, error) {
		return nil, models.ErrConflict
	}

	rec := postJSON(t, h.BeginEnrollment, "/2fa/enroll", handlers.BeginEnrollmentRequest{
		AccountID: testUserID,
	})

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestTwoFactorHandler_ConfirmEnrollment(t *testing.T) {
	h, _, _ := newTwoFactorHandler()

	rec := postJSON(t, h.ConfirmEnrollment, "/2fa/confirm", handlers.ConfirmEnrollmentRequest{
		AccountID: testUserID,
		Code:      "123456",
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "backup_codes")
}

func TestTwoFactorHandler_ConfirmEnrollment_BadCode(t *testing.T) {
	h, svc, _ := newTwoFactorHandler()
	svc.ConfirmEnrollmentFunc = func(context.Context, string, string) ([]string, error) {
		return nil, models.ErrCodeInvalid
	}

	rec := postJSON(t, h.ConfirmEnrollment, "/2fa/confirm", handlers.ConfirmEnrollmentRequest{
		AccountID: testUserID,
		Code:      "000000",
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTwoFactorHandler_BeginPhoneVerification(t *testing.T) {
	h, svc, _ := newTwoFactorHandler()
	var gotPhone string
	svc.BeginPhoneVerificationFunc = func(_ context.Context, _ string, phoneNumber string) error {
		gotPhone = phoneNumber
		return nil
	}

	rec := postJSON(t, h.BeginPhoneVerification, "/2fa/phone", handlers.PhoneVerificationRequest{
		AccountID: testUserID,
		Phone:     "  +15555550100 ",
	})

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "+15555550100", gotPhone)
}

func TestTwoFactorHandler_ConfirmPhoneVerification_PhoneInUse(t *testing.T) {
	h, svc, _ := newTwoFactorHandler()
	svc.ConfirmPhoneVerificationFunc = func(context.Context, string, string, string) error {
		return models.ErrPhoneInUse
	}

	rec := postJSON(t, h.ConfirmPhoneVerification, "/2fa/phone/confirm", handlers.ConfirmPhoneRequest{
		AccountID: testUserID,
		Phone:     "+15555550100",
		Code:      "123456",
	})

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestTwoFactorHandler_ConsumeBackupCode(t *testing.T) {
	h, _, backups := newTwoFactorHandler()
	var gotCode string
	backups.ConsumeBackupCodeFunc = func(_ context.Context, _ string, code string) error {
		gotCode = code
		return nil
	}

	rec := postJSON(t, h.ConsumeBackupCode, "/2fa/backup", handlers.ConsumeBackupCodeRequest{
		AccountID: testUserID,
		Code:      "A1B2C3D4E5",
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "A1B2C3D4E5", gotCode)
}

func TestTwoFactorHandler_RegenerateBackupCodes(t *testing.T) {
	h, _, backups := newTwoFactorHandler()
	var gotAccount string
	backups.GenerateBackupCodesFunc = func(_ context.Context, accountID string) ([]string, error) {
		gotAccount = accountID
		return []string{"CCCC2222CC", "DDDD3333DD"}, nil
	}

	rec := postJSON(t, h.RegenerateBackupCodes, "/2fa/backup/regenerate", handlers.RegenerateBackupCodesRequest{
		AccountID: testUserID,
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, testUserID, gotAccount)
	assert.Contains(t, rec.Body.String(), "CCCC2222CC")
}

func TestTwoFactorHandler_ConsumeBackupCode_Invalid(t *testing.T) {
	h, _, backups := newTwoFactorHandler()
	backups.ConsumeBackupCodeFunc = func(context.Context, string, string) error {
		return models.ErrCodeInvalid
	}

	rec := postJSON(t, h.ConsumeBackupCode, "/2fa/backup", handlers.ConsumeBackupCodeRequest{
		AccountID: testUserID,
		Code:      "WRONGWRONG",
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
