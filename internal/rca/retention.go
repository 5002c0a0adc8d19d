package rca

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/steveyegge/rcagov/internal/events"
)

// PruneEvents deletes audit events older than retentionDays in batches.
// Reports, CAPAs and learning records are never touched.
func (s *Service) PruneEvents(ctx context.Context, retentionDays, batchSize int) (deleted int, err error) {
	ctx, span := s.startSpan(ctx, "prune_events",
		attribute.Int("retention_days", retentionDays),
		attribute.Int("batch_size", batchSize))
	defer func() { endSpan(span, err) }()

	if retentionDays < 1 {
		return 0, fmt.Errorf("retention days must be at least 1 (got %d)", retentionDays)
	}

	start := time.Now()
	cutoff := s.now().Add(-time.Duration(retentionDays) * 24 * time.Hour)
	deleted, err = s.store.PruneEvents(ctx, cutoff, batchSize)
	if err != nil {
		return deleted, fmt.Errorf("failed to prune events: %w", err)
	}

	EventsPruned.Add(float64(deleted))
	elapsed := time.Since(start)
	s.logger.Info(ctx, "event cleanup completed",
		zap.Int("events_deleted", deleted),
		zap.Int("retention_days", retentionDays),
		zap.Duration("elapsed", elapsed))

	if msg, err := events.NewEventCleanupCompletedEvent(events.EventCleanupCompletedData{
		EventsDeleted:    deleted,
		RetentionDays:    retentionDays,
		ProcessingTimeMs: elapsed.Milliseconds(),
	}); err == nil {
		s.publish(ctx, msg)
	}
	return deleted, nil
}
