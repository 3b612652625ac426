package models

import (
	"testing"
	"time"
)

func TestDeriveLockState_Active(t *testing.T) {
	now := time.Now()

	state := DeriveLockState(3, false, nil, now)

	if state.Kind != LockStateActive {
		t.Errorf("expected active state, got %v", state.Kind)
	}
	if state.Attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", state.Attempts)
	}
	if state.IsLocked() {
		t.Error("active state must not report locked")
	}
}

func TestDeriveLockState_TimedLockInFuture(t *testing.T) {
	now := time.Now()
	until := now.Add(30 * time.Minute)

	state := DeriveLockState(5, true, &until, now)

	if state.Kind != LockStateTimed {
		t.Errorf("expected timed lock, got %v", state.Kind)
	}
	if !state.IsLocked() {
		t.Error("timed lock must report locked")
	}
	if state.Until == nil || !state.Until.Equal(until) {
		t.Errorf("expected until %v, got %v", until, state.Until)
	}
}

func TestDeriveLockState_TimedLockExpired(t *testing.T) {
	now := time.Now()
	until := now.Add(-1 * time.Minute)

	// Lazy expiry: an elapsed timed lock reads as active without a row rewrite.
	state := DeriveLockState(5, true, &until, now)

	if state.Kind != LockStateActive {
		t.Errorf("expected expired lock to derive active, got %v", state.Kind)
	}
	if state.IsLocked() {
		t.Error("expired timed lock must not report locked")
	}
}

func TestDeriveLockState_IndefiniteNeverExpires(t *testing.T) {
	now := time.Now()

	state := DeriveLockState(0, true, nil, now)

	if state.Kind != LockStateIndefinite {
		t.Errorf("expected indefinite lock, got %v", state.Kind)
	}
	if !state.IsLocked() {
		t.Error("indefinite lock must report locked")
	}

	// Even far in the future the state stays locked.
	later := DeriveLockState(0, true, nil, now.Add(1000*time.Hour))
	if !later.IsLocked() {
		t.Error("indefinite lock must never lazily clear")
	}
}

func TestAccountLockState(t *testing.T) {
	now := time.Now()
	until := now.Add(time.Hour)
	acct := &Account{FailedLoginAttempts: 5, Locked: true, LockedUntil: &until}

	if !acct.LockState(now).IsLocked() {
		t.Error("expected locked account")
	}
	if acct.LockState(now.Add(2 * time.Hour)).IsLocked() {
		t.Error("expected lock to lazily expire")
	}
}
