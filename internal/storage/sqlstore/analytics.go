package sqlstore

import (
	"context"
	"fmt"

	"github.com/steveyegge/rcagov/internal/types"
)

// GetAnalyticsSummary reads the v_rca_analytics view plus status and
// priority breakdowns.
func (q *queries) GetAnalyticsSummary(ctx context.Context) (*types.AnalyticsSummary, error) {
	s := &types.AnalyticsSummary{
		ByStatus:   make(map[types.ReportStatus]int),
		ByPriority: make(map[types.Priority]int),
	}

	err := q.queryRow(ctx, `
		SELECT total, open_count, resolved_count, closed_wont_fix_count, p0_open, p1_open, avg_confidence
		FROM v_rca_analytics
	`).Scan(&s.Total, &s.Open, &s.Resolved, &s.ClosedWontFix, &s.P0Open, &s.P1Open, &s.AvgConfidence)
	if err != nil {
		return nil, fmt.Errorf("failed to read analytics view: %w", err)
	}

	rows, err := q.query(ctx, `SELECT status, COUNT(*) FROM root_cause_reports GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count reports by status: %w", err)
	}
	for rows.Next() {
		var status types.ReportStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		s.ByStatus[status] = n
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("error iterating status counts: %w", err)
	}
	_ = rows.Close()

	rows, err = q.query(ctx, `SELECT severity_priority, COUNT(*) FROM root_cause_reports GROUP BY severity_priority`)
	if err != nil {
		return nil, fmt.Errorf("failed to count reports by priority: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var p types.Priority
		var n int
		if err := rows.Scan(&p, &n); err != nil {
			return nil, fmt.Errorf("failed to scan priority count: %w", err)
		}
		s.ByPriority[p] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating priority counts: %w", err)
	}

	return s, nil
}

// GetRecurrencePatterns reads v_rca_pattern_recurrence, most frequent first
func (q *queries) GetRecurrencePatterns(ctx context.Context, minOccurrences, limit int) ([]*types.RecurrencePattern, error) {
	query := `
		SELECT failure_signature, scope_type, report_count, occurrence_count, open_count, last_detected_at
		FROM v_rca_pattern_recurrence
		WHERE occurrence_count >= ?
		ORDER BY occurrence_count DESC, last_detected_at DESC, failure_signature
	`
	args := []any{minOccurrences}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := q.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to read recurrence view: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var patterns []*types.RecurrencePattern
	for rows.Next() {
		var (
			p            types.RecurrencePattern
			lastDetected nullTime
		)
		if err := rows.Scan(&p.FailureSignature, &p.ScopeType, &p.ReportCount, &p.OccurrenceCount,
			&p.OpenCount, &lastDetected); err != nil {
			return nil, fmt.Errorf("failed to scan recurrence pattern: %w", err)
		}
		p.LastDetectedAt = lastDetected.Time
		patterns = append(patterns, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating recurrence patterns: %w", err)
	}
	return patterns, nil
}
