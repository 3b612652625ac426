package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aegis-sec/aegis/internal/models"
	"github.com/redis/go-redis/v9"
)

// AddressBlockRepository defines the interface for the persistent block record store
type AddressBlockRepository interface {
	InsertBlock(ctx context.Context, address, reason string) (*models.BlockedAddress, error)
	InsertUnblock(ctx context.Context, address, reason, actorID string) (*models.BlockedAddress, error)
	GetLatest(ctx context.Context, address string) (*models.BlockedAddress, error)
	ListCurrentlyBlocked(ctx context.Context, limit, offset int) ([]*models.BlockedAddress, error)
}

// IPGuardConfig holds configuration for address-level abuse tracking
type IPGuardConfig struct {
	FailureThreshold int           // strikes within Window before the address is blocked
	Window           time.Duration // rolling window for the strike counter
	KeyPrefix        string        // redis key namespace
}

// IPGuardService tracks failed-attempt strikes per source address in a rolling
// Redis window and converts threshold crossings into persistent block records.
// Blocks never expire on their own; only an explicit Unblock lifts one.
type IPGuardService struct {
	rdb    *redis.Client
	blocks AddressBlockRepository
	events EventRecorder
	config IPGuardConfig
	logger *slog.Logger
}

// NewIPGuardService creates a new IPGuardService
func NewIPGuardService(rdb *redis.Client, blocks AddressBlockRepository, events EventRecorder, config IPGuardConfig, logger *slog.Logger) *IPGuardService {
	if config.KeyPrefix == "" {
		config.KeyPrefix = "ipguard:strikes:"
	}
	return &IPGuardService{
		rdb:    rdb,
		blocks: blocks,
		events: events,
		config: config,
		logger: logger,
	}
}

func (s *IPGuardService) strikeKey(address string) string {
	return s.config.KeyPrefix + address
}

// RecordStrike counts one failure against the address. When the count within
// the window reaches the threshold the address is blocked and the block is
// persisted. Returns whether the address ended up blocked by this strike.
func (s *IPGuardService) RecordStrike(ctx context.Context, address string) (bool, error) {
	key := s.strikeKey(address)

	count, err := s.rdb.Incr(ctx, key).Result()
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to increment strike counter",
			slog.String("address", address),
			slog.Any("error", err))
		return false, fmt.Errorf("failed to record strike: %w", err)
	}

	// First strike in the window starts the rolling expiry.
	if count == 1 {
		if err := s.rdb.Expire(ctx, key, s.config.Window).Err(); err != nil {
			s.logger.ErrorContext(ctx, "failed to set strike counter expiry",
				slog.String("address", address),
				slog.Any("error", err))
			return false, fmt.Errorf("failed to record strike: %w", err)
		}
	}

	if count < int64(s.config.FailureThreshold) {
		return false, nil
	}

	return true, s.blockAddress(ctx, address, fmt.Sprintf("%d failed attempts within %s", count, s.config.Window))
}

// blockAddress persists a block record unless the address is already blocked.
func (s *IPGuardService) blockAddress(ctx context.Context, address, reason string) error {
	latest, err := s.blocks.GetLatest(ctx, address)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("failed to check block state: %w", err)
	}
	if latest != nil && !latest.Unblocked {
		// Already blocked; strikes past the threshold are no-ops.
		return nil
	}

	if _, err := s.blocks.InsertBlock(ctx, address, reason); err != nil {
		return fmt.Errorf("failed to persist block: %w", err)
	}

	s.logger.WarnContext(ctx, "source address blocked",
		slog.String("address", address),
		slog.String("reason", reason))

	return s.events.Record(ctx, &models.SecurityEvent{
		EventType:     models.EventAddressBlocked,
		Severity:      models.SeverityHigh,
		Description:   "source address blocked after repeated failures",
		SourceAddress: &address,
		Metadata:      models.EventMetadata{"reason": reason},
	})
}

// IsBlocked reports whether the address is currently blocked. The persistent
// record is authoritative; the Redis counter only drives the transition.
func (s *IPGuardService) IsBlocked(ctx context.Context, address string) (bool, error) {
	latest, err := s.blocks.GetLatest(ctx, address)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return false, nil
		}
		s.logger.ErrorContext(ctx, "failed to look up block state",
			slog.String("address", address),
			slog.Any("error", err))
		return false, fmt.Errorf("failed to look up block state: %w", err)
	}

	return !latest.Unblocked, nil
}

// Block applies a manual block to an address.
func (s *IPGuardService) Block(ctx context.Context, address, reason, actorID string) error {
	latest, err := s.blocks.GetLatest(ctx, address)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("failed to check block state: %w", err)
	}
	if latest != nil && !latest.Unblocked {
		return models.ErrConflict
	}

	if _, err := s.blocks.InsertBlock(ctx, address, reason); err != nil {
		return fmt.Errorf("failed to persist block: %w", err)
	}

	s.logger.WarnContext(ctx, "source address blocked manually",
		slog.String("address", address),
		slog.String("actor_id", actorID))

	return s.events.Record(ctx, &models.SecurityEvent{
		EventType:     models.EventAddressBlocked,
		Severity:      models.SeverityHigh,
		Description:   "source address blocked by administrator",
		SourceAddress: &address,
		ResolvedBy:    &actorID,
		Metadata:      models.EventMetadata{"reason": reason},
	})
}

// Unblock lifts a block and resets the strike counter so the address starts
// from a clean window. Blocked addresses can only be unblocked this way.
func (s *IPGuardService) Unblock(ctx context.Context, address, reason, actorID string) error {
	latest, err := s.blocks.GetLatest(ctx, address)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrNotFound
		}
		return fmt.Errorf("failed to check block state: %w", err)
	}
	if latest.Unblocked {
		return models.ErrNotFound
	}

	if _, err := s.blocks.InsertUnblock(ctx, address, reason, actorID); err != nil {
		return fmt.Errorf("failed to persist unblock: %w", err)
	}

	if err := s.rdb.Del(ctx, s.strikeKey(address)).Err(); err != nil {
		// The counter will lapse on its own; log and continue.
		s.logger.WarnContext(ctx, "failed to clear strike counter after unblock",
			slog.String("address", address),
			slog.Any("error", err))
	}

	s.logger.InfoContext(ctx, "source address unblocked",
		slog.String("address", address),
		slog.String("actor_id", actorID))

	return s.events.Record(ctx, &models.SecurityEvent{
		EventType:     models.EventAddressUnblocked,
		Severity:      models.SeverityMedium,
		Description:   "source address unblocked by administrator",
		SourceAddress: &address,
		ResolvedBy:    &actorID,
		Metadata:      models.EventMetadata{"reason": reason},
	})
}

// ListBlocked returns the currently blocked addresses.
func (s *IPGuardService) ListBlocked(ctx context.Context, limit, offset int) ([]*models.BlockedAddress, error) {
	limit, offset = clampPage(limit, offset)

	records, err := s.blocks.ListCurrentlyBlocked(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list blocked addresses: %w", err)
	}

	return records, nil
}
