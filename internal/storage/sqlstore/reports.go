package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/steveyegge/rcagov/internal/storage"
	"github.com/steveyegge/rcagov/internal/types"
)

const reportColumns = `id, scope_type, scope_id, trigger_source, trigger_tier, trigger_code,
	failure_signature, recurrence_count, problem_statement, observed, expected, evidence,
	impact_level, likelihood_level, severity_priority, confidence, log_quality,
	evidence_strength, pattern_match_score, status, root_cause_category,
	detected_at, first_occurrence_at, resolved_at, created_at, updated_at`

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanReport(row rowScanner) (*types.Report, error) {
	var (
		r                                types.Report
		observed, expected, evidence     []byte
		detectedAt, firstOccurrence      nullTime
		resolvedAt, createdAt, updatedAt nullTime
	)
	err := row.Scan(
		&r.ID, &r.ScopeType, &r.ScopeID, &r.TriggerSource, &r.TriggerTier, &r.TriggerCode,
		&r.FailureSignature, &r.RecurrenceCount, &r.ProblemStatement, &observed, &expected, &evidence,
		&r.ImpactLevel, &r.LikelihoodLevel, &r.SeverityPriority, &r.Confidence, &r.LogQuality,
		&r.EvidenceStrength, &r.PatternMatchScore, &r.Status, &r.RootCauseCategory,
		&detectedAt, &firstOccurrence, &resolvedAt, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := fromJSON(observed, &r.Observed); err != nil {
		return nil, fmt.Errorf("failed to decode observed for report %s: %w", r.ID, err)
	}
	if err := fromJSON(expected, &r.Expected); err != nil {
		return nil, fmt.Errorf("failed to decode expected for report %s: %w", r.ID, err)
	}
	if err := fromJSON(evidence, &r.Evidence); err != nil {
		return nil, fmt.Errorf("failed to decode evidence for report %s: %w", r.ID, err)
	}
	r.DetectedAt = detectedAt.Time
	r.FirstOccurrenceAt = firstOccurrence.Time
	r.ResolvedAt = resolvedAt.ptr()
	r.CreatedAt = createdAt.Time
	r.UpdatedAt = updatedAt.Time
	return &r, nil
}

// GetReport retrieves a report by ID
func (q *queries) GetReport(ctx context.Context, id string) (*types.Report, error) {
	row := q.queryRow(ctx, `SELECT `+reportColumns+` FROM root_cause_reports WHERE id = ?`, id)
	r, err := scanReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get report: %w", err)
	}
	return r, nil
}

// FindOpenReportBySignature returns the non-terminal report holding signature, if any
func (q *queries) FindOpenReportBySignature(ctx context.Context, signature string) (*types.Report, error) {
	row := q.queryRow(ctx, `
		SELECT `+reportColumns+` FROM root_cause_reports
		WHERE failure_signature = ? AND status NOT IN (?, ?)
	`, signature, types.ReportStatusResolved, types.ReportStatusClosedWontFix)
	r, err := scanReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find open report by signature: %w", err)
	}
	return r, nil
}

// CountClosedBySignature counts terminal reports that carried signature
func (q *queries) CountClosedBySignature(ctx context.Context, signature string) (int, error) {
	var n int
	err := q.queryRow(ctx, `
		SELECT COUNT(*) FROM root_cause_reports
		WHERE failure_signature = ? AND status IN (?, ?)
	`, signature, types.ReportStatusResolved, types.ReportStatusClosedWontFix).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count closed reports: %w", err)
	}
	return n, nil
}

// InsertReport inserts a new report. A second open report for the same
// signature fails with storage.ErrUniqueViolation.
func (q *queries) InsertReport(ctx context.Context, r *types.Report) error {
	observed, err := toJSON(r.Observed)
	if err != nil {
		return fmt.Errorf("failed to marshal observed: %w", err)
	}
	expected, err := toJSON(r.Expected)
	if err != nil {
		return fmt.Errorf("failed to marshal expected: %w", err)
	}
	evidence, err := toJSON(r.Evidence)
	if err != nil {
		return fmt.Errorf("failed to marshal evidence: %w", err)
	}

	_, err = q.exec(ctx, `
		INSERT INTO root_cause_reports (`+reportColumns+`)
		VALUES (`+placeholders(26)+`)
	`,
		r.ID, r.ScopeType, r.ScopeID, r.TriggerSource, r.TriggerTier, r.TriggerCode,
		r.FailureSignature, r.RecurrenceCount, r.ProblemStatement, observed, expected, evidence,
		r.ImpactLevel, r.LikelihoodLevel, r.SeverityPriority, r.Confidence, r.LogQuality,
		r.EvidenceStrength, r.PatternMatchScore, r.Status, r.RootCauseCategory,
		timeArg(r.DetectedAt), timeArg(r.FirstOccurrenceAt), timePtrArg(r.ResolvedAt),
		timeArg(r.CreatedAt), timeArg(r.UpdatedAt),
	)
	if err != nil {
		return q.uniqueErr("report", err)
	}
	return nil
}

// IncrementRecurrence bumps recurrence_count on an open report
func (q *queries) IncrementRecurrence(ctx context.Context, id string, at time.Time) error {
	result, err := q.exec(ctx, `
		UPDATE root_cause_reports
		SET recurrence_count = recurrence_count + 1, updated_at = ?
		WHERE id = ? AND status NOT IN (?, ?)
	`, timeArg(at), id, types.ReportStatusResolved, types.ReportStatusClosedWontFix)
	if err != nil {
		return fmt.Errorf("failed to increment recurrence: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("cannot increment recurrence of %s: %w", id, storage.ErrReportClosed)
	}
	return nil
}

// UpdateReportStatus moves a report from one status to another. The WHERE
// clause on the current status makes concurrent modifications visible.
func (q *queries) UpdateReportStatus(ctx context.Context, id string, from, to types.ReportStatus, resolvedAt *time.Time) error {
	now := time.Now()
	result, err := q.exec(ctx, `
		UPDATE root_cause_reports
		SET status = ?, resolved_at = COALESCE(?, resolved_at), updated_at = ?
		WHERE id = ? AND status = ?
	`, to, timePtrArg(resolvedAt), timeArg(now), id, from)
	if err != nil {
		return fmt.Errorf("failed to update report status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		current, err := q.GetReport(ctx, id)
		if err != nil {
			return err
		}
		if current == nil {
			return &types.NotFoundError{Entity: types.EntityReport, ID: id}
		}
		return fmt.Errorf("concurrent state modification detected: report %s expected %s, found %s", id, from, current.Status)
	}
	return nil
}

// SetReportCategory records the root cause category chosen with a CAPA
func (q *queries) SetReportCategory(ctx context.Context, id string, category types.RootCauseCategory) error {
	_, err := q.exec(ctx, `
		UPDATE root_cause_reports SET root_cause_category = ?, updated_at = ? WHERE id = ?
	`, category, timeArg(time.Now()), id)
	if err != nil {
		return fmt.Errorf("failed to set report category: %w", err)
	}
	return nil
}

// ListReports lists reports matching filter, newest detection first
func (q *queries) ListReports(ctx context.Context, filter types.ReportFilter) ([]*types.Report, error) {
	query := `SELECT ` + reportColumns + ` FROM root_cause_reports WHERE 1=1`
	args := []any{}

	if filter.ScopeID != "" {
		query += " AND scope_id = ?"
		args = append(args, filter.ScopeID)
	}
	if filter.Status != nil {
		query += " AND status = ?"
		args = append(args, *filter.Status)
	}
	if filter.Priority != nil {
		query += " AND severity_priority = ?"
		args = append(args, *filter.Priority)
	}
	if filter.OpenOnly {
		query += " AND status NOT IN (?, ?)"
		args = append(args, types.ReportStatusResolved, types.ReportStatusClosedWontFix)
	}

	query += " ORDER BY detected_at DESC, id"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := q.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var reports []*types.Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}
		reports = append(reports, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reports: %w", err)
	}
	return reports, nil
}
