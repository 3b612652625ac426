package models

import "time"

// LockKind enumerates the states of the per-account lockout machine.
type LockKind int

const (
	// LockStateActive: the account accepts login attempts; Attempts carries the
	// consecutive failure count since the last success or reset.
	LockStateActive LockKind = iota
	// LockStateTimed: locked until a known instant.
	LockStateTimed
	// LockStateIndefinite: locked until an explicit administrative unlock.
	LockStateIndefinite
)

// LockState is the tagged form of the locked/locked_until/failed_login_attempts
// columns. Every transition on the persisted row corresponds to exactly one
// transition between these states.
type LockState struct {
	Kind     LockKind
	Attempts int
	Until    *time.Time // set only for LockStateTimed
}

// DeriveLockState maps the flat persisted fields onto a LockState as of now.
// A timed lock whose expiry has passed derives as active; the row itself is not
// rewritten (expiry is checked lazily on every read).
func DeriveLockState(attempts int, locked bool, until *time.Time, now time.Time) LockState {
	if !locked {
		return LockState{Kind: LockStateActive, Attempts: attempts}
	}
	if until == nil {
		return LockState{Kind: LockStateIndefinite, Attempts: attempts}
	}
	if now.Before(*until) {
		return LockState{Kind: LockStateTimed, Attempts: attempts, Until: until}
	}
	return LockState{Kind: LockStateActive, Attempts: attempts}
}

// IsLocked reports whether the state denies login attempts.
func (s LockState) IsLocked() bool {
	return s.Kind != LockStateActive
}
