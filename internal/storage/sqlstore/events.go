package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/steveyegge/rcagov/internal/types"
)

// RecordEvent appends an audit event
func (q *queries) RecordEvent(ctx context.Context, e *types.Event) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	_, err := q.exec(ctx, `
		INSERT INTO rca_events (entity_type, entity_id, event_type, actor, old_value, new_value, comment, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, e.EntityType, e.EntityID, e.EventType, e.Actor,
		nullString(e.OldValue), nullString(e.NewValue), nullString(e.Comment), timeArg(e.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to record event (type=%s, entity=%s): %w", e.EventType, e.EntityID, err)
	}
	return nil
}

// ListEvents returns audit events, most recent first
func (q *queries) ListEvents(ctx context.Context, filter types.EventFilter) ([]*types.Event, error) {
	query := `
		SELECT id, entity_type, entity_id, event_type, actor, old_value, new_value, comment, created_at
		FROM rca_events
		WHERE 1=1
	`
	args := []any{}

	if filter.EntityID != "" {
		query += " AND entity_id = ?"
		args = append(args, filter.EntityID)
	}
	if filter.EntityType != "" {
		query += " AND entity_type = ?"
		args = append(args, filter.EntityType)
	}

	query += " ORDER BY created_at DESC, id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := q.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []*types.Event
	for rows.Next() {
		var (
			e                           types.Event
			oldValue, newValue, comment sql.NullString
			createdAt                   nullTime
		)
		if err := rows.Scan(&e.ID, &e.EntityType, &e.EntityID, &e.EventType, &e.Actor,
			&oldValue, &newValue, &comment, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.OldValue = oldValue.String
		e.NewValue = newValue.String
		e.Comment = comment.String
		e.CreatedAt = createdAt.Time
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}
	return events, nil
}

// PruneEvents deletes audit events older than the cutoff in batches of
// batchSize rows, returning the number deleted.
func (q *queries) PruneEvents(ctx context.Context, olderThan time.Time, batchSize int) (int, error) {
	if batchSize < 1 {
		return 0, fmt.Errorf("batch size must be at least 1")
	}

	totalDeleted := 0
	for {
		select {
		case <-ctx.Done():
			return totalDeleted, ctx.Err()
		default:
		}

		result, err := q.exec(ctx, `
			DELETE FROM rca_events
			WHERE id IN (
				SELECT id FROM rca_events
				WHERE created_at < ?
				ORDER BY created_at ASC
				LIMIT ?
			)
		`, timeArg(olderThan), batchSize)
		if err != nil {
			return totalDeleted, fmt.Errorf("failed to execute delete: %w", err)
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return totalDeleted, fmt.Errorf("failed to get rows affected: %w", err)
		}
		totalDeleted += int(rowsAffected)

		if rowsAffected < int64(batchSize) {
			break
		}
	}
	return totalDeleted, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
