package models

import "errors"

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// Authentication decision errors. ErrInvalidCredentials covers both
	// "unknown identifier" and "wrong secret" so callers cannot tell them apart.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountLocked      = errors.New("account is locked")
	ErrAddressBlocked     = errors.New("source address is blocked")
	ErrRateLimitExceeded  = errors.New("rate limit exceeded")

	// Verification code errors. ErrCodeInvalid collapses not-found, expired,
	// wrong-value and attempts-exhausted into a single external condition.
	ErrCodeInvalid    = errors.New("verification code is invalid or expired")
	ErrDeliveryFailed = errors.New("code delivery failed")

	// Phone numbers may be verified for at most one account at a time.
	ErrPhoneInUse = errors.New("phone number already verified for another account")
)
