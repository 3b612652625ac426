package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types for the security event log
const (
	EventLoginFailed          = "login_failed"
	EventLoginSucceeded       = "login_succeeded"
	EventLoginDeniedLocked    = "login_denied_locked"
	EventLoginDeniedIPBlocked = "login_denied_ip_blocked"
	EventAccountLocked        = "account_locked"
	EventAccountUnlocked      = "account_unlocked"
	EventAddressBlocked       = "address_blocked"
	EventAddressUnblocked     = "address_unblocked"
	EventCodeIssued           = "code_issued"
	EventCodeVerified         = "code_verified"
	EventCodeRejected         = "code_rejected"
	EventCodePoisoned         = "code_poisoned"
	EventBackupCodesGenerated = "backup_codes_generated"
	EventBackupCodeConsumed   = "backup_code_consumed"
	EventPhoneVerified        = "phone_verified"
	EventTwoFactorEnabled     = "two_factor_enabled"
)

// Severity grades a security event for triage.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// SecurityEvent is one append-only entry in the security audit trail. There
// are no update or delete operations on this record; it is pure history.
type SecurityEvent struct {
	ID            uuid.UUID     `db:"id"`
	UserID        *string       `db:"user_id"`
	EventType     string        `db:"event_type"`
	Severity      Severity      `db:"severity"`
	Description   string        `db:"description"`
	SourceAddress *string       `db:"source_address"`
	UserAgent     *string       `db:"user_agent"`
	Metadata      EventMetadata `db:"metadata"`
	CreatedAt     time.Time     `db:"created_at"`
	ResolvedBy    *string       `db:"resolved_by"`
}

// EventMetadata holds additional context for security events
type EventMetadata map[string]interface{}

// Scan implements sql.Scanner for JSONB
func (em *EventMetadata) Scan(value interface{}) error {
	if value == nil {
		*em = make(EventMetadata)
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return ErrBadRequest
	}

	var m map[string]interface{}
	if err := json.Unmarshal(bytes, &m); err != nil {
		return err
	}
	*em = EventMetadata(m)
	return nil
}

// Value implements driver.Valuer for JSONB
func (em EventMetadata) Value() (driver.Value, error) {
	if em == nil {
		return nil, nil
	}
	return json.Marshal(em)
}

// MarshalJSON implements json.Marshaler
func (em EventMetadata) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]interface{}(em))
}

// UnmarshalJSON implements json.Unmarshaler
func (em *EventMetadata) UnmarshalJSON(data []byte) error {
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	*em = EventMetadata(m)
	return nil
}
