package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/aegis-sec/aegis/internal/database"
	"github.com/aegis-sec/aegis/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const blockedAddressColumns = `id, address, blocked_at, unblocked, reason, unblocked_by, unblocked_at`

// BlockedAddressRepository handles the append-only block history for source addresses
type BlockedAddressRepository struct {
	pool *pgxpool.Pool
}

// NewBlockedAddressRepository creates a new BlockedAddressRepository
func NewBlockedAddressRepository(db *database.DB) *BlockedAddressRepository {
	return &BlockedAddressRepository{pool: db.Pool}
}

func scanBlockedAddressRow(scanner rowScanner) (*models.BlockedAddress, error) {
	var rec models.BlockedAddress

	err := scanner.Scan(
		&rec.ID, &rec.Address, &rec.BlockedAt, &rec.Unblocked,
		&rec.Reason, &rec.UnblockedBy, &rec.UnblockedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &rec, nil
}

// InsertBlock appends a block record for the address.
func (r *BlockedAddressRepository) InsertBlock(ctx context.Context, address, reason string) (*models.BlockedAddress, error) {
	query := fmt.Sprintf(`
		INSERT INTO blocked_addresses (address, unblocked, reason)
		VALUES ($1, FALSE, $2)
		RETURNING %s
	`, blockedAddressColumns)

	rec, err := scanBlockedAddressRow(r.pool.QueryRow(ctx, query, address, reason))
	if err != nil {
		return nil, fmt.Errorf("failed to insert block record: %w", err)
	}

	return rec, nil
}

// InsertUnblock appends an unblocked=true record, which supersedes any earlier
// block for the address. The earlier records stay untouched for history.
func (r *BlockedAddressRepository) InsertUnblock(ctx context.Context, address, reason, actorID string) (*models.BlockedAddress, error) {
	query := fmt.Sprintf(`
		INSERT INTO blocked_addresses (address, unblocked, reason, unblocked_by, unblocked_at)
		VALUES ($1, TRUE, $2, $3, NOW())
		RETURNING %s
	`, blockedAddressColumns)

	rec, err := scanBlockedAddressRow(r.pool.QueryRow(ctx, query, address, reason, actorID))
	if err != nil {
		return nil, fmt.Errorf("failed to insert unblock record: %w", err)
	}

	return rec, nil
}

// GetLatest returns the most recent record for the address, or
// models.ErrNotFound when the address has no history.
func (r *BlockedAddressRepository) GetLatest(ctx context.Context, address string) (*models.BlockedAddress, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM blocked_addresses
		WHERE address = $1
		ORDER BY blocked_at DESC
		LIMIT 1
	`, blockedAddressColumns)

	return scanBlockedAddressRow(r.pool.QueryRow(ctx, query, address))
}

// ListCurrentlyBlocked returns addresses whose latest record is still a block.
func (r *BlockedAddressRepository) ListCurrentlyBlocked(ctx context.Context, limit, offset int) ([]*models.BlockedAddress, error) {
	query := fmt.Sprintf(`
		SELECT DISTINCT ON (address) %s
		FROM blocked_addresses
		ORDER BY address, blocked_at DESC
	`, blockedAddressColumns)

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query blocked addresses: %w", err)
	}

	records, err := scanBlockedAddressRows(rows)
	if err != nil {
		return nil, err
	}

	blocked := make([]*models.BlockedAddress, 0)
	for _, rec := range records {
		if !rec.Unblocked {
			blocked = append(blocked, rec)
		}
	}

	// Paginate after filtering; the latest-record-per-address set is small.
	if offset >= len(blocked) {
		return []*models.BlockedAddress{}, nil
	}
	end := offset + limit
	if limit <= 0 || end > len(blocked) {
		end = len(blocked)
	}
	return blocked[offset:end], nil
}

func scanBlockedAddressRows(rows pgx.Rows) ([]*models.BlockedAddress, error) {
	defer rows.Close()

	records := make([]*models.BlockedAddress, 0)

	for rows.Next() {
		rec, err := scanBlockedAddressRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan blocked address: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating blocked address rows: %w", err)
	}

	return records, nil
}

// CutoffTime is a small helper for retention queries.
func CutoffTime(retention time.Duration) time.Time {
	return time.Now().Add(-retention)
}
