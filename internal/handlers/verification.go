package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/aegis-sec/aegis/internal/models"
	"github.com/aegis-sec/aegis/internal/services"
	pkghttp "github.com/aegis-sec/aegis/pkg/http"
)

// VerificationServiceInterface defines the interface for code issuance and validation
type VerificationServiceInterface interface {
	Issue(ctx context.Context, userID, channelAddress string, purpose models.CodePurpose) (*models.VerificationCode, error)
	Validate(ctx context.Context, userID string, purpose models.CodePurpose, submitted string) (*services.VerificationResult, error)
}

// VerificationHandler handles verification code endpoints
type VerificationHandler struct {
	service VerificationServiceInterface
}

// NewVerificationHandler creates a new VerificationHandler
func NewVerificationHandler(service VerificationServiceInterface) *VerificationHandler {
	return &VerificationHandler{service: service}
}

// IssueCodeRequest represents the request body for issuing a code
type IssueCodeRequest struct {
	UserID  string `json:"user_id" validate:"required,uuid"`
	Address string `json:"address" validate:"required"`
	Purpose string `json:"purpose" validate:"required,oneof=password_reset two_factor_auth phone_verification"`
}

// ValidateCodeRequest represents the request body for validating a code
type ValidateCodeRequest struct {
	UserID  string `json:"user_id" validate:"required,uuid"`
	Purpose string `json:"purpose" validate:"required,oneof=password_reset two_factor_auth phone_verification"`
	Code    string `json:"code" validate:"required,len=6,numeric"`
}

// IssueCode issues and delivers a fresh verification code. The response never
// carries the code itself; delivery is the only channel.
func (h *VerificationHandler) IssueCode(w http.ResponseWriter, r *http.Request) {
	var req IssueCodeRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	req.Address = strings.TrimSpace(req.Address)

	code, err := h.service.Issue(r.Context(), req.UserID, req.Address, models.CodePurpose(req.Purpose))
	if err != nil {
		pkghttp.WriteServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message":    "Verification code sent",
		"expires_at": code.ExpiresAt,
	})
}

// ValidateCode checks a submitted code against the latest usable one. All
// failure modes return the same message so an attacker learns nothing from
// the distinction; the remaining guess budget is included when the engine
// knows it, so a legitimate user can tell how close the code is to dying.
func (h *VerificationHandler) ValidateCode(w http.ResponseWriter, r *http.Request) {
	var req ValidateCodeRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	result, err := h.service.Validate(r.Context(), req.UserID, models.CodePurpose(req.Purpose), req.Code)
	if err != nil {
		if errors.Is(err, models.ErrCodeInvalid) {
			if result != nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusBadRequest)
				json.NewEncoder(w).Encode(map[string]interface{}{
					"error":              "bad_request",
					"message":            "Code is invalid or expired",
					"attempts_remaining": result.AttemptsRemaining,
				})
				return
			}
			pkghttp.WriteBadRequest(w, "Code is invalid or expired")
			return
		}
		pkghttp.WriteServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"message": "Code verified"})
}
