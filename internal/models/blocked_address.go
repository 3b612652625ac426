package models

import "time"

// BlockedAddress is one entry in the append-only block history for a source
// address. An address is currently blocked iff its most recent record has
// Unblocked == false. Unblocking appends a fresh record rather than mutating
// the original, so the block history survives for audit.
type BlockedAddress struct {
	ID          string     `db:"id"`
	Address     string     `db:"address"`
	BlockedAt   time.Time  `db:"blocked_at"`
	Unblocked   bool       `db:"unblocked"`
	Reason      string     `db:"reason"`
	UnblockedBy *string    `db:"unblocked_by"`
	UnblockedAt *time.Time `db:"unblocked_at"`
}
