package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aegis-sec/aegis/internal/services"
	pkghttp "github.com/aegis-sec/aegis/pkg/http"
)

// LoginServiceInterface defines the interface for the login decision engine
type LoginServiceInterface interface {
	Login(ctx context.Context, identifier, password, ipAddress, userAgent string) (*services.LoginResult, error)
}

// LoginHandler handles the guarded login endpoint
type LoginHandler struct {
	service  LoginServiceInterface
	ipConfig *pkghttp.IPConfig
}

// NewLoginHandler creates a new LoginHandler
func NewLoginHandler(service LoginServiceInterface, ipConfig *pkghttp.IPConfig) *LoginHandler {
	return &LoginHandler{
		service:  service,
		ipConfig: ipConfig,
	}
}

// LoginRequest represents the request body for login
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse is returned on an allowed login.
type LoginResponse struct {
	Status    string `json:"status"`
	AccountID string `json:"account_id"`
}

// Login handles a login attempt. The decision engine owns all denial
// semantics; this handler only translates its outcome. Every denial maps to
// the same generic bodies so the response never distinguishes an unknown
// email from a wrong password.
func (h *LoginHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	ipAddress := pkghttp.ExtractClientIP(r, h.ipConfig)
	userAgent := r.Header.Get("User-Agent")

	result, err := h.service.Login(r.Context(), req.Email, req.Password, ipAddress, userAgent)
	if err != nil {
		// Infrastructure failure. Deny rather than guess.
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	switch result.Outcome {
	case services.OutcomeAllow:
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(LoginResponse{
			Status:    "ok",
			AccountID: result.Account.ID,
		})
	case services.OutcomeDenyLocked:
		// The lock itself is already public knowledge at this point, so
		// reporting how long it lasts gives an attacker nothing new.
		message := "Account is temporarily locked. Try again later."
		if result.LockedUntil != nil {
			if remaining := time.Until(*result.LockedUntil).Round(time.Second); remaining > 0 {
				message = fmt.Sprintf("Account is temporarily locked. Try again in %s.", remaining)
			}
		}
		pkghttp.WriteForbidden(w, message)
	case services.OutcomeDenyAddressBlocked:
		pkghttp.WriteForbidden(w, "Request refused")
	default:
		pkghttp.WriteUnauthorized(w, "Authentication failed")
	}
}
