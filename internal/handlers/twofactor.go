package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/aegis-sec/aegis/internal/auth"
	pkghttp "github.com/aegis-sec/aegis/pkg/http"
)

// TwoFactorServiceInterface defines the interface for 2FA enrollment and verification
type TwoFactorServiceInterface interface {
	BeginEnrollment(ctx context.Context, accountID string) (*auth.Enrollment, error)
	ConfirmEnrollment(ctx context.Context, accountID, totpCode string) ([]string, error)
	VerifyTOTP(ctx context.Context, accountID, code string) error
	BeginPhoneVerification(ctx context.Context, accountID, phoneNumber string) error
	ConfirmPhoneVerification(ctx context.Context, accountID, phoneNumber, submitted string) error
}

// BackupCodeServiceInterface defines the interface for backup code
// consumption and regeneration
type BackupCodeServiceInterface interface {
	ConsumeBackupCode(ctx context.Context, accountID, code string) error
	GenerateBackupCodes(ctx context.Context, accountID string) ([]string, error)
}

// TwoFactorHandler handles 2FA enrollment, TOTP, phone verification, and
// backup code endpoints
type TwoFactorHandler struct {
	service TwoFactorServiceInterface
	backups BackupCodeServiceInterface
}

// NewTwoFactorHandler creates a new TwoFactorHandler
func NewTwoFactorHandler(service TwoFactorServiceInterface, backups BackupCodeServiceInterface) *TwoFactorHandler {
	return &TwoFactorHandler{
		service: service,
		backups: backups,
	}
}

// Request DTOs

type BeginEnrollmentRequest struct {
	AccountID string `json:"account_id" validate:"required,uuid"`
}

type ConfirmEnrollmentRequest struct {
	AccountID string `json:"account_id" validate:"required,uuid"`
	Code      string `json:"code" validate:"required,len=6,numeric"`
}

type VerifyTOTPRequest struct {
	AccountID string `json:"account_id" validate:"required,uuid"`
	Code      string `json:"code" validate:"required,len=6,numeric"`
}

type PhoneVerificationRequest struct {
	AccountID string `json:"account_id" validate:"required,uuid"`
	Phone     string `json:"phone" validate:"required"`
}

type ConfirmPhoneRequest struct {
	AccountID string `json:"account_id" validate:"required,uuid"`
	Phone     string `json:"phone" validate:"required"`
	Code      string `json:"code" validate:"required,len=6,numeric"`
}

type ConsumeBackupCodeRequest struct {
	AccountID string `json:"account_id" validate:"required,uuid"`
	Code      string `json:"code" validate:"required"`
}

type RegenerateBackupCodesRequest struct {
	AccountID string `json:"account_id" validate:"required,uuid"`
}

// EnrollmentResponse carries the provisioning material for an authenticator app
type EnrollmentResponse struct {
	OtpauthURL string `json:"otpauth_url"`
	QRDataURL  string `json:"qr_data_url"`
}

// BeginEnrollment stages a TOTP secret and returns provisioning material.
// The secret stays inactive until ConfirmEnrollment proves the authenticator
// has it.
func (h *TwoFactorHandler) BeginEnrollment(w http.ResponseWriter, r *http.Request) {
	var req BeginEnrollmentRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	enrollment, err := h.service.BeginEnrollment(r.Context(), req.AccountID)
	if err != nil {
		pkghttp.WriteServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(EnrollmentResponse{
		OtpauthURL: enrollment.OtpauthURL,
		QRDataURL:  enrollment.QRDataURL,
	})
}

// ConfirmEnrollment activates 2FA and returns the one-time view of the
// freshly generated backup codes.
func (h *TwoFactorHandler) ConfirmEnrollment(w http.ResponseWriter, r *http.Request) {
	var req ConfirmEnrollmentRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	backupCodes, err := h.service.ConfirmEnrollment(r.Context(), req.AccountID, req.Code)
	if err != nil {
		pkghttp.WriteServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message":      "Two-factor authentication enabled",
		"backup_codes": backupCodes,
	})
}

// VerifyTOTP checks an authenticator code for an enrolled account
func (h *TwoFactorHandler) VerifyTOTP(w http.ResponseWriter, r *http.Request) {
	var req VerifyTOTPRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	if err := h.service.VerifyTOTP(r.Context(), req.AccountID, req.Code); err != nil {
		pkghttp.WriteServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"message": "Code verified"})
}

// BeginPhoneVerification sends a code to the phone number being claimed
func (h *TwoFactorHandler) BeginPhoneVerification(w http.ResponseWriter, r *http.Request) {
	var req PhoneVerificationRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	req.Phone = strings.TrimSpace(req.Phone)

	if err := h.service.BeginPhoneVerification(r.Context(), req.AccountID, req.Phone); err != nil {
		pkghttp.WriteServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"message": "Verification code sent"})
}

// ConfirmPhoneVerification validates the code and binds the number
func (h *TwoFactorHandler) ConfirmPhoneVerification(w http.ResponseWriter, r *http.Request) {
	var req ConfirmPhoneRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	req.Phone = strings.TrimSpace(req.Phone)

	if err := h.service.ConfirmPhoneVerification(r.Context(), req.AccountID, req.Phone, req.Code); err != nil {
		pkghttp.WriteServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"message": "Phone number verified"})
}

// ConsumeBackupCode redeems a single-use recovery code
func (h *TwoFactorHandler) ConsumeBackupCode(w http.ResponseWriter, r *http.Request) {
	var req ConsumeBackupCodeRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	if err := h.backups.ConsumeBackupCode(r.Context(), req.AccountID, req.Code); err != nil {
		pkghttp.WriteServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"message": "Backup code accepted"})
}

// RegenerateBackupCodes replaces the account's recovery code set and returns
// the one-time view of the new codes. The previous set stops working.
func (h *TwoFactorHandler) RegenerateBackupCodes(w http.ResponseWriter, r *http.Request) {
	var req RegenerateBackupCodesRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	codes, err := h.backups.GenerateBackupCodes(r.Context(), req.AccountID)
	if err != nil {
		pkghttp.WriteServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message":      "Backup codes regenerated",
		"backup_codes": codes,
	})
}
