package models

import "time"

// CodePurpose identifies which flow a verification code belongs to. Validation
// only ever considers codes of the requested purpose.
type CodePurpose string

const (
	PurposePasswordReset     CodePurpose = "password_reset"
	PurposeTwoFactorAuth     CodePurpose = "two_factor_auth"
	PurposePhoneVerification CodePurpose = "phone_verification"
)

// Valid reports whether p is a known purpose.
func (p CodePurpose) Valid() bool {
	switch p {
	case PurposePasswordReset, PurposeTwoFactorAuth, PurposePhoneVerification:
		return true
	}
	return false
}

// VerificationCode is one issued short-lived numeric code. Once Used is set
// the record never becomes usable again; newer codes for the same
// (user, purpose) supersede older unused ones without deleting them.
type VerificationCode struct {
	ID             string      `db:"id"`
	UserID         string      `db:"user_id"`
	ChannelAddress string      `db:"channel_address"`
	Code           string      `db:"code" json:"-"` // never expose the code value
	Purpose        CodePurpose `db:"purpose"`
	ExpiresAt      time.Time   `db:"expires_at"`
	Used           bool        `db:"used"`
	UsedAt         *time.Time  `db:"used_at"`
	AttemptsCount  int         `db:"attempts_count"`
	CreatedAt      time.Time   `db:"created_at"`
}

// IsExpired checks if the code has passed its expiry.
func (c *VerificationCode) IsExpired() bool {
	return time.Now().After(c.ExpiresAt)
}

// IsUsable checks if the code is still a validation candidate (not used, not expired).
func (c *VerificationCode) IsUsable() bool {
	return !c.Used && !c.IsExpired()
}
