package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/steveyegge/rcagov/internal/types"
)

const learningColumns = `id, rcr_id, features, label, defect_class, preventable, prevention_stage,
	prevention_reason, time_to_detect_hours, time_to_resolve_hours, metadata, created_at`

func scanLearningRecord(row rowScanner) (*types.LearningRecord, error) {
	var (
		l                  types.LearningRecord
		features, metadata []byte
		createdAt          nullTime
	)
	err := row.Scan(
		&l.ID, &l.RCRID, &features, &l.Label, &l.DefectClass, &l.Preventable, &l.PreventionStage,
		&l.PreventionReason, &l.TimeToDetectHours, &l.TimeToResolveHours, &metadata, &createdAt,
	)
	if err != nil {
		return nil, err
	}
	if err := fromJSON(features, &l.Features); err != nil {
		return nil, fmt.Errorf("failed to decode features for learning record %s: %w", l.ID, err)
	}
	if err := fromJSON(metadata, &l.Metadata); err != nil {
		return nil, fmt.Errorf("failed to decode metadata for learning record %s: %w", l.ID, err)
	}
	l.CreatedAt = createdAt.Time
	return &l, nil
}

// GetLearningRecord retrieves the learning record harvested from a report
func (q *queries) GetLearningRecord(ctx context.Context, rcrID string) (*types.LearningRecord, error) {
	l, err := scanLearningRecord(q.queryRow(ctx,
		`SELECT `+learningColumns+` FROM rca_learning_records WHERE rcr_id = ?`, rcrID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get learning record: %w", err)
	}
	return l, nil
}

// InsertLearningRecord inserts a learning record. Records are write-once: a
// second insert for the same report fails with storage.ErrUniqueViolation.
func (q *queries) InsertLearningRecord(ctx context.Context, l *types.LearningRecord) error {
	features, err := toJSON(l.Features)
	if err != nil {
		return fmt.Errorf("failed to marshal features: %w", err)
	}
	metadata, err := toJSON(l.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	_, err = q.exec(ctx, `
		INSERT INTO rca_learning_records (`+learningColumns+`)
		VALUES (`+placeholders(12)+`)
	`,
		l.ID, l.RCRID, features, l.Label, l.DefectClass, l.Preventable, l.PreventionStage,
		l.PreventionReason, l.TimeToDetectHours, l.TimeToResolveHours, metadata, timeArg(l.CreatedAt),
	)
	if err != nil {
		return q.uniqueErr("learning record", err)
	}
	return nil
}

// ListLearningRecords lists the learning corpus, newest first
func (q *queries) ListLearningRecords(ctx context.Context, filter types.LearningFilter) ([]*types.LearningRecord, error) {
	query := `SELECT ` + learningColumns + ` FROM rca_learning_records WHERE 1=1`
	args := []any{}

	if filter.RootCauseCategory != "" {
		// The category is the label prefix; the label format is "{category} - {defect_class}".
		query += " AND label LIKE ?"
		args = append(args, string(filter.RootCauseCategory)+" - %")
	}
	if filter.PreventableOnly {
		query += " AND preventable = ?"
		args = append(args, true)
	}

	query += " ORDER BY created_at DESC, id"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := q.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list learning records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []*types.LearningRecord
	for rows.Next() {
		l, err := scanLearningRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan learning record: %w", err)
		}
		records = append(records, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating learning records: %w", err)
	}
	return records, nil
}
