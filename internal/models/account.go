package models

import (
	"time"
)

// Account holds the credential and security posture for a single user account.
// The lockout fields (FailedLoginAttempts, Locked, LockedUntil) are only ever
// mutated through atomic repository operations; see LockState for the explicit
// state machine they encode.
type Account struct {
	ID                   string
	Email                string
	PasswordHash         string
	PhoneNumber          *string // E.164-normalized
	PhoneVerified        bool
	FailedLoginAttempts  int
	Locked               bool
	LockedUntil          *time.Time // nil while Locked means indefinite, manual-unlock-only
	LockedReason         *string
	TwoFactorEnabled     bool
	TwoFactorSecret      *string // opaque TOTP secret, never logged
	TwoFactorBackupCodes []string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// LockState derives the explicit lock state from the flat columns at the given
// instant. Timed locks whose expiry has passed derive as active (lazy expiry);
// indefinite locks never do.
func (a *Account) LockState(now time.Time) LockState {
	return DeriveLockState(a.FailedLoginAttempts, a.Locked, a.LockedUntil, now)
}
