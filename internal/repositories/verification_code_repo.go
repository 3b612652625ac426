package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/aegis-sec/aegis/internal/database"
	"github.com/aegis-sec/aegis/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
)

const verificationCodeColumns = `id, user_id, channel_address, code, purpose,
	expires_at, used, used_at, attempts_count, created_at`

// VerificationCodeRepository handles database operations for verification codes
type VerificationCodeRepository struct {
	pool *pgxpool.Pool
}

// NewVerificationCodeRepository creates a new VerificationCodeRepository
func NewVerificationCodeRepository(db *database.DB) *VerificationCodeRepository {
	return &VerificationCodeRepository{pool: db.Pool}
}

func scanVerificationCodeRow(scanner rowScanner) (*models.VerificationCode, error) {
	var code models.VerificationCode

	err := scanner.Scan(
		&code.ID, &code.UserID, &code.ChannelAddress, &code.Code, &code.Purpose,
		&code.ExpiresAt, &code.Used, &code.UsedAt, &code.AttemptsCount, &code.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &code, nil
}

// Create persists a freshly issued code.
func (r *VerificationCodeRepository) Create(ctx context.Context, code *models.VerificationCode) (*models.VerificationCode, error) {
	query := fmt.Sprintf(`
		INSERT INTO verification_codes (user_id, channel_address, code, purpose, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING %s
	`, verificationCodeColumns)

	created, err := scanVerificationCodeRow(r.pool.QueryRow(ctx, query,
		code.UserID, code.ChannelAddress, code.Code, code.Purpose, code.ExpiresAt,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create verification code: %w", err)
	}

	return created, nil
}

// GetLatestUsable returns the most recently issued non-used, non-expired code
// for (user, purpose). Older unused codes are implicitly superseded but kept.
func (r *VerificationCodeRepository) GetLatestUsable(ctx context.Context, userID string, purpose models.CodePurpose) (*models.VerificationCode, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM verification_codes
		WHERE user_id = $1 AND purpose = $2 AND used = FALSE AND expires_at > NOW()
		ORDER BY created_at DESC
		LIMIT 1
	`, verificationCodeColumns)

	return scanVerificationCodeRow(r.pool.QueryRow(ctx, query, userID, purpose))
}

// IncrementAttempts bumps attempts_count atomically and returns the
// post-increment value. The used = FALSE guard means a concurrently consumed
// or poisoned code yields models.ErrNotFound instead of a stale count.
func (r *VerificationCodeRepository) IncrementAttempts(ctx context.Context, id string) (int, error) {
	query := `
		UPDATE verification_codes
		SET attempts_count = attempts_count + 1
		WHERE id = $1 AND used = FALSE
		RETURNING attempts_count
	`

	var count int
	err := r.pool.QueryRow(ctx, query, id).Scan(&count)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}

	return count, nil
}

// MarkUsed flips used via compare-and-swap. Returns false when another caller
// already consumed or poisoned the record, so success happens exactly once.
func (r *VerificationCodeRepository) MarkUsed(ctx context.Context, id string) (bool, error) {
	query := `
		UPDATE verification_codes
		SET used = TRUE, used_at = NOW()
		WHERE id = $1 AND used = FALSE
	`

	result, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return false, database.MapPostgresError(err)
	}

	return result.RowsAffected() == 1, nil
}

// Poison permanently invalidates a code whose attempt budget is exhausted.
// used_at stays NULL: the code was never successfully consumed.
func (r *VerificationCodeRepository) Poison(ctx context.Context, id string) error {
	query := `
		UPDATE verification_codes
		SET used = TRUE
		WHERE id = $1 AND used = FALSE
	`

	_, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return database.MapPostgresError(err)
	}

	return nil
}

// DeleteExpiredBefore removes long-expired codes past the retention window.
// Normal operation never deletes code records; this is compaction only.
func (r *VerificationCodeRepository) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM verification_codes WHERE expires_at < $1`

	result, err := r.pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
