package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aegis-sec/aegis/internal/models"
)

// SecurityEventRepository defines the interface for security event persistence
type SecurityEventRepository interface {
	Create(ctx context.Context, event *models.SecurityEvent) (*models.SecurityEvent, error)
	GetByUserID(ctx context.Context, userID string, limit, offset int) ([]*models.SecurityEvent, error)
	GetByEventType(ctx context.Context, eventType string, limit, offset int) ([]*models.SecurityEvent, error)
	GetByTimeRange(ctx context.Context, from, to time.Time, limit, offset int) ([]*models.SecurityEvent, error)
	CountByUserID(ctx context.Context, userID string) (int64, error)
}

// EventRecorder is what the other services need from the event log.
type EventRecorder interface {
	Record(ctx context.Context, event *models.SecurityEvent) error
}

// SecurityEventService writes the security event log with a dual-write
// pattern (slog + database). Unlike ordinary application logging, persistence
// here is mandatory: a security decision whose event cannot be recorded must
// not take effect, so Record surfaces the insert error to the caller.
type SecurityEventService struct {
	repo   SecurityEventRepository
	logger *slog.Logger
}

// NewSecurityEventService creates a new SecurityEventService
func NewSecurityEventService(repo SecurityEventRepository, logger *slog.Logger) *SecurityEventService {
	return &SecurityEventService{
		repo:   repo,
		logger: logger,
	}
}

// Record appends one event to the log. The slog write happens first so the
// operational trail exists even when the database insert fails.
func (s *SecurityEventService) Record(ctx context.Context, event *models.SecurityEvent) error {
	attrs := []any{
		slog.String("event_type", event.EventType),
		slog.String("severity", string(event.Severity)),
		slog.String("description", event.Description),
	}
	if event.UserID != nil {
		attrs = append(attrs, slog.String("user_id", *event.UserID))
	}
	if event.SourceAddress != nil {
		attrs = append(attrs, slog.String("source_address", *event.SourceAddress))
	}
	if event.Metadata != nil {
		attrs = append(attrs, slog.Any("metadata", event.Metadata))
	}

	switch event.Severity {
	case models.SeverityHigh:
		s.logger.ErrorContext(ctx, "security event", attrs...)
	case models.SeverityMedium:
		s.logger.WarnContext(ctx, "security event", attrs...)
	default:
		s.logger.InfoContext(ctx, "security event", attrs...)
	}

	if _, err := s.repo.Create(ctx, event); err != nil {
		s.logger.ErrorContext(ctx, "failed to persist security event",
			slog.String("event_type", event.EventType),
			slog.Any("error", err))
		return fmt.Errorf("failed to record security event: %w", err)
	}

	return nil
}

// GetUserEvents retrieves the event trail for a specific user
func (s *SecurityEventService) GetUserEvents(ctx context.Context, userID string, limit, offset int) ([]*models.SecurityEvent, error) {
	limit, offset = clampPage(limit, offset)

	events, err := s.repo.GetByUserID(ctx, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get user events: %w", err)
	}

	return events, nil
}

// GetEventsByType retrieves events of one type across all users
func (s *SecurityEventService) GetEventsByType(ctx context.Context, eventType string, limit, offset int) ([]*models.SecurityEvent, error) {
	limit, offset = clampPage(limit, offset)

	events, err := s.repo.GetByEventType(ctx, eventType, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get events by type: %w", err)
	}

	return events, nil
}

// GetEventsByTimeRange retrieves events within [from, to)
func (s *SecurityEventService) GetEventsByTimeRange(ctx context.Context, from, to time.Time, limit, offset int) ([]*models.SecurityEvent, error) {
	if !from.Before(to) {
		return nil, models.ErrBadRequest
	}
	limit, offset = clampPage(limit, offset)

	events, err := s.repo.GetByTimeRange(ctx, from, to, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get events by time range: %w", err)
	}

	return events, nil
}

// GetCountForUser returns the number of events recorded for a user
func (s *SecurityEventService) GetCountForUser(ctx context.Context, userID string) (int64, error) {
	count, err := s.repo.CountByUserID(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return count, nil
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
