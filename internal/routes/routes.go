package routes

import (
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/aegis-sec/aegis/internal/auth"
	"github.com/aegis-sec/aegis/internal/handlers"
	"github.com/aegis-sec/aegis/internal/middleware"
)

// RateLimits carries the per-window request caps for the public surface.
// These are volumetric backstops in front of the abuse engine.
type RateLimits struct {
	LoginRequests int
	CodeRequests  int
	Window        time.Duration
}

// DefaultRateLimits returns the production limits
func DefaultRateLimits() RateLimits {
	return RateLimits{
		LoginRequests: 20,
		CodeRequests:  10,
		Window:        1 * time.Minute,
	}
}

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	loginHandler *handlers.LoginHandler,
	verificationHandler *handlers.VerificationHandler,
	twoFactorHandler *handlers.TwoFactorHandler,
	adminHandler *handlers.AdminHandler,
	tokenManager *auth.AdminTokenManager,
	limits RateLimits,
) {
	loginLimit := middleware.RateLimitByIP(limits.LoginRequests, limits.Window)
	codeLimit := middleware.RateLimitByIP(limits.CodeRequests, limits.Window)

	// Public routes
	router.With(loginLimit).Post("/auth/login", loginHandler.Login)

	router.Group(func(r chi.Router) {
		r.Use(codeLimit)
		r.Post("/verification/issue", verificationHandler.IssueCode)
		r.Post("/verification/validate", verificationHandler.ValidateCode)

		r.Post("/2fa/enroll", twoFactorHandler.BeginEnrollment)
		r.Post("/2fa/confirm", twoFactorHandler.ConfirmEnrollment)
		r.Post("/2fa/verify", twoFactorHandler.VerifyTOTP)
		r.Post("/2fa/phone", twoFactorHandler.BeginPhoneVerification)
		r.Post("/2fa/phone/confirm", twoFactorHandler.ConfirmPhoneVerification)
		r.Post("/2fa/backup/consume", twoFactorHandler.ConsumeBackupCode)
		r.Post("/2fa/backup/regenerate", twoFactorHandler.RegenerateBackupCodes)
	})

	// Administrative surface
	router.Group(func(r chi.Router) {
		r.Use(auth.RequireAdmin(tokenManager))

		r.Post("/admin/accounts/lock", adminHandler.LockAccount)
		r.Post("/admin/accounts/unlock", adminHandler.UnlockAccount)
		r.Post("/admin/accounts/verify-phone", adminHandler.VerifyPhone)
		r.Post("/admin/addresses/block", adminHandler.BlockAddress)
		r.Post("/admin/addresses/unblock", adminHandler.UnblockAddress)
		r.Get("/admin/addresses", adminHandler.ListBlockedAddresses)
		r.Get("/admin/events", adminHandler.QueryEvents)
		r.Get("/admin/events/count", adminHandler.CountUserEvents)
	})
}
