package models

import "time"

// LoginAttempt represents a single login attempt in the system. Identifier is
// the string the caller submitted; for unknown identifiers it does not
// correspond to any account, which keeps the recording path uniform and
// prevents enumeration through side effects.
type LoginAttempt struct {
	ID            string    `db:"id"`
	Identifier    string    `db:"identifier"`
	IPAddress     string    `db:"ip_address"`
	UserAgent     string    `db:"user_agent"`
	AttemptTime   time.Time `db:"attempt_time"`
	Success       bool      `db:"success"`
	FailureReason *string   `db:"failure_reason"`
}
