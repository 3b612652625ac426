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

const securityEventColumns = `id, user_id, event_type, severity, description,
	source_address, user_agent, metadata, created_at, resolved_by`

// SecurityEventRepository handles the append-only security event log. There
// are intentionally no update or delete operations here.
type SecurityEventRepository struct {
	pool *pgxpool.Pool
}

// NewSecurityEventRepository creates a new SecurityEventRepository
func NewSecurityEventRepository(db *database.DB) *SecurityEventRepository {
	return &SecurityEventRepository{pool: db.Pool}
}

func scanSecurityEventRow(scanner rowScanner) (*models.SecurityEvent, error) {
	var event models.SecurityEvent

	err := scanner.Scan(
		&event.ID, &event.UserID, &event.EventType, &event.Severity, &event.Description,
		&event.SourceAddress, &event.UserAgent, &event.Metadata, &event.CreatedAt, &event.ResolvedBy,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &event, nil
}

func scanSecurityEventRows(rows pgx.Rows) ([]*models.SecurityEvent, error) {
	defer rows.Close()

	events := make([]*models.SecurityEvent, 0)

	for rows.Next() {
		event, err := scanSecurityEventRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan security event: %w", err)
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating security event rows: %w", err)
	}

	return events, nil
}

// Create appends a new security event
func (r *SecurityEventRepository) Create(ctx context.Context, event *models.SecurityEvent) (*models.SecurityEvent, error) {
	query := fmt.Sprintf(`
		INSERT INTO security_events (user_id, event_type, severity, description, source_address, user_agent, metadata, resolved_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING %s
	`, securityEventColumns)

	created, err := scanSecurityEventRow(r.pool.QueryRow(ctx, query,
		event.UserID, event.EventType, event.Severity, event.Description,
		event.SourceAddress, event.UserAgent, event.Metadata, event.ResolvedBy,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create security event: %w", err)
	}

	return created, nil
}

// GetByUserID retrieves security events for a specific user
func (r *SecurityEventRepository) GetByUserID(ctx context.Context, userID string, limit, offset int) ([]*models.SecurityEvent, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM security_events
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, securityEventColumns)

	rows, err := r.pool.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query security events: %w", err)
	}

	return scanSecurityEventRows(rows)
}

// GetByEventType retrieves security events by event type
func (r *SecurityEventRepository) GetByEventType(ctx context.Context, eventType string, limit, offset int) ([]*models.SecurityEvent, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM security_events
		WHERE event_type = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, securityEventColumns)

	rows, err := r.pool.Query(ctx, query, eventType, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query security events: %w", err)
	}

	return scanSecurityEventRows(rows)
}

// GetByTimeRange retrieves security events within [from, to)
func (r *SecurityEventRepository) GetByTimeRange(ctx context.Context, from, to time.Time, limit, offset int) ([]*models.SecurityEvent, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM security_events
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`, securityEventColumns)

	rows, err := r.pool.Query(ctx, query, from, to, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query security events: %w", err)
	}

	return scanSecurityEventRows(rows)
}

// CountByUserID counts security events for a specific user
func (r *SecurityEventRepository) CountByUserID(ctx context.Context, userID string) (int64, error) {
	query := `SELECT COUNT(*) FROM security_events WHERE user_id = $1`

	var count int64
	err := r.pool.QueryRow(ctx, query, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count security events: %w", err)
	}

	return count, nil
}
