package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/aegis-sec/aegis/internal/database"
	"github.com/aegis-sec/aegis/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

const accountColumns = `id, email, password_hash, phone_number, phone_verified,
	failed_login_attempts, locked, locked_until, locked_reason,
	two_factor_enabled, two_factor_secret, two_factor_backup_codes,
	created_at, updated_at`

// AccountRepository handles database operations for account security records
type AccountRepository struct {
	pool *pgxpool.Pool
}

// NewAccountRepository creates a new AccountRepository
func NewAccountRepository(db *database.DB) *AccountRepository {
	return &AccountRepository{pool: db.Pool}
}

// rowScanner interface for scanning rows (supports both single row and multiple rows)
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanAccountRow handles nullable fields and populates an Account model from a database row
func scanAccountRow(scanner rowScanner) (*models.Account, error) {
	var acct models.Account
	var passwordHash *string

	err := scanner.Scan(
		&acct.ID, &acct.Email, &passwordHash, &acct.PhoneNumber, &acct.PhoneVerified,
		&acct.FailedLoginAttempts, &acct.Locked, &acct.LockedUntil, &acct.LockedReason,
		&acct.TwoFactorEnabled, &acct.TwoFactorSecret, &acct.TwoFactorBackupCodes,
		&acct.CreatedAt, &acct.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	if passwordHash != nil {
		acct.PasswordHash = *passwordHash
	}

	return &acct, nil
}

func (r *AccountRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	query := fmt.Sprintf(`SELECT %s FROM accounts WHERE id = $1`, accountColumns)

	return scanAccountRow(r.pool.QueryRow(ctx, query, id))
}

func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	query := fmt.Sprintf(`SELECT %s FROM accounts WHERE email = $1`, accountColumns)

	return scanAccountRow(r.pool.QueryRow(ctx, query, email))
}

func (r *AccountRepository) Create(ctx context.Context, acct *models.Account) (*models.Account, error) {
	acct.ID = uuid.New().String()

	now := time.Now()
	acct.CreatedAt = now
	acct.UpdatedAt = now

	query := fmt.Sprintf(`
		INSERT INTO accounts (id, email, password_hash, phone_number, phone_verified, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING %s
	`, accountColumns)

	var passwordHash *string
	if acct.PasswordHash != "" {
		passwordHash = &acct.PasswordHash
	}

	return scanAccountRow(r.pool.QueryRow(ctx, query,
		acct.ID, acct.Email, passwordHash, acct.PhoneNumber, acct.PhoneVerified,
		acct.CreatedAt, acct.UpdatedAt,
	))
}

// AttemptUpdate is the outcome of one atomic failed-attempt increment.
// NewlyLocked is true for exactly one of any set of concurrent increments that
// push the counter across the threshold.
type AttemptUpdate struct {
	Attempts    int
	Locked      bool
	LockedUntil *time.Time
	NewlyLocked bool
}

// IncrementFailedAttempts bumps the failure counter and applies the lock
// decision in a single statement. The CTE takes a row lock and captures the
// prior effective lock state (expired timed locks count as unlocked), so
// concurrent increments serialize on the row and the ACTIVE->LOCKED transition
// is observed exactly once, off the post-increment value.
func (r *AccountRepository) IncrementFailedAttempts(ctx context.Context, id string, threshold int, lockFor time.Duration, reason string) (*AttemptUpdate, error) {
	query := `
		WITH prev AS (
			SELECT (locked AND (locked_until IS NULL OR locked_until > NOW())) AS was_locked
			FROM accounts WHERE id = $1 FOR UPDATE
		)
		UPDATE accounts a
		SET failed_login_attempts = a.failed_login_attempts + 1,
		    locked = prev.was_locked OR (a.failed_login_attempts + 1 >= $2),
		    locked_until = CASE
		        WHEN prev.was_locked THEN a.locked_until
		        WHEN a.failed_login_attempts + 1 >= $2 THEN NOW() + make_interval(secs => $3)
		        ELSE NULL END,
		    locked_reason = CASE
		        WHEN prev.was_locked THEN a.locked_reason
		        WHEN a.failed_login_attempts + 1 >= $2 THEN $4
		        ELSE NULL END,
		    updated_at = NOW()
		FROM prev
		WHERE a.id = $1
		RETURNING a.failed_login_attempts, a.locked, a.locked_until, prev.was_locked
	`

	var upd AttemptUpdate
	var wasLocked bool
	err := r.pool.QueryRow(ctx, query, id, threshold, lockFor.Seconds(), reason).Scan(
		&upd.Attempts, &upd.Locked, &upd.LockedUntil, &wasLocked,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	upd.NewlyLocked = upd.Locked && !wasLocked
	return &upd, nil
}

// ResetAttempts zeroes the failure counter after a successful credential
// match. Threshold-induced (timed) locks clear with it; administrative
// indefinite locks are preserved and only ClearLock removes them.
func (r *AccountRepository) ResetAttempts(ctx context.Context, id string) error {
	query := `
		UPDATE accounts
		SET failed_login_attempts = 0,
		    locked = (locked AND locked_until IS NULL),
		    locked_until = NULL,
		    locked_reason = CASE WHEN locked AND locked_until IS NULL THEN locked_reason ELSE NULL END,
		    updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}

// SetLock applies an administrative lock. A nil until is an indefinite lock
// that only ClearLock removes.
func (r *AccountRepository) SetLock(ctx context.Context, id, reason string, until *time.Time) error {
	query := `
		UPDATE accounts
		SET locked = TRUE, locked_until = $2, locked_reason = $3, updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query, id, until, reason)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}

// ClearLock removes any lock, including indefinite ones, and resets the counter.
func (r *AccountRepository) ClearLock(ctx context.Context, id string) error {
	query := `
		UPDATE accounts
		SET locked = FALSE, locked_until = NULL, locked_reason = NULL,
		    failed_login_attempts = 0, updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}

// SetPhoneVerified marks the phone number as verified for this account. The
// partial unique index on verified phone numbers turns a second claim on the
// same number into models.ErrConflict.
func (r *AccountRepository) SetPhoneVerified(ctx context.Context, id, phoneNumber string) error {
	query := `
		UPDATE accounts
		SET phone_number = $2, phone_verified = TRUE, updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query, id, phoneNumber)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}

// SetTwoFactorSecret stages a TOTP secret during enrollment. The second
// factor stays disabled until the first valid code confirms it.
func (r *AccountRepository) SetTwoFactorSecret(ctx context.Context, id, secret string) error {
	query := `
		UPDATE accounts
		SET two_factor_secret = $2, two_factor_enabled = FALSE, updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query, id, secret)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}

// EnableTwoFactor stores the TOTP secret and the initial backup code set.
func (r *AccountRepository) EnableTwoFactor(ctx context.Context, id, secret string, backupCodes []string) error {
	query := `
		UPDATE accounts
		SET two_factor_enabled = TRUE, two_factor_secret = $2,
		    two_factor_backup_codes = $3, updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query, id, secret, backupCodes)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}

// SetBackupCodes replaces the backup code set (re-enrollment).
func (r *AccountRepository) SetBackupCodes(ctx context.Context, id string, codes []string) error {
	query := `
		UPDATE accounts
		SET two_factor_backup_codes = $2, updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query, id, codes)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}

// ConsumeBackupCode removes code from the account's backup set. The guard in
// the WHERE clause makes the check-and-remove a single conditional update, so
// two concurrent submissions of the same code consume it exactly once.
func (r *AccountRepository) ConsumeBackupCode(ctx context.Context, id, code string) (bool, error) {
	query := `
		UPDATE accounts
		SET two_factor_backup_codes = array_remove(two_factor_backup_codes, $2),
		    updated_at = NOW()
		WHERE id = $1 AND $2 = ANY(two_factor_backup_codes)
	`

	result, err := r.pool.Exec(ctx, query, id, code)
	if err != nil {
		return false, database.MapPostgresError(err)
	}

	return result.RowsAffected() == 1, nil
}
