package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/steveyegge/rcagov/internal/types"
)

// ListGateCandidates returns every open P0/P1 report in a scope with the
// status of its active CAPA. It takes no locks; the result is a snapshot.
func (q *queries) ListGateCandidates(ctx context.Context, scopeID string) ([]*types.GateCandidate, error) {
	rows, err := q.query(ctx, `
		SELECT r.id, r.severity_priority, r.problem_statement, r.status, c.id, c.status
		FROM root_cause_reports r
		LEFT JOIN remediation_manifests c
			ON c.rcr_id = r.id AND c.status NOT IN (?, ?)
		WHERE r.scope_id = ?
		  AND r.status NOT IN (?, ?)
		  AND r.severity_priority IN (?, ?)
		ORDER BY r.severity_priority ASC, r.detected_at ASC, r.id ASC
	`, types.CAPAStatusRejected, types.CAPAStatusAbandoned,
		scopeID,
		types.ReportStatusResolved, types.ReportStatusClosedWontFix,
		types.PriorityP0, types.PriorityP1)
	if err != nil {
		return nil, fmt.Errorf("failed to query gate candidates: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var candidates []*types.GateCandidate
	for rows.Next() {
		var (
			c                  types.GateCandidate
			capaID, capaStatus sql.NullString
		)
		if err := rows.Scan(&c.ReportID, &c.Priority, &c.ProblemStatement, &c.ReportStatus, &capaID, &capaStatus); err != nil {
			return nil, fmt.Errorf("failed to scan gate candidate: %w", err)
		}
		c.CAPAID = capaID.String
		c.CAPAStatus = types.CAPAStatusNotCreated
		if capaStatus.Valid {
			c.CAPAStatus = types.CAPAStatus(capaStatus.String)
		}
		candidates = append(candidates, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating gate candidates: %w", err)
	}
	return candidates, nil
}

// GetScopeCounts tallies open reports in a scope by blocking priority
func (q *queries) GetScopeCounts(ctx context.Context, scopeID string) (*types.ScopeCounts, error) {
	var c types.ScopeCounts
	err := q.queryRow(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN severity_priority = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN severity_priority = ? THEN 1 ELSE 0 END), 0)
		FROM root_cause_reports
		WHERE scope_id = ? AND status NOT IN (?, ?)
	`, types.PriorityP0, types.PriorityP1, scopeID,
		types.ReportStatusResolved, types.ReportStatusClosedWontFix).Scan(&c.Open, &c.P0, &c.P1)
	if err != nil {
		return nil, fmt.Errorf("failed to count scope reports: %w", err)
	}
	return &c, nil
}
