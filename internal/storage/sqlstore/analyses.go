package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/steveyegge/rcagov/internal/types"
)

const analysisColumns = `rcr_id, root_cause_category, pattern_id, pattern_matches,
	contributing_factors, recommendations, related_rcr_ids, attempts, analyzed_at`

func scanAnalysis(row rowScanner) (*types.Analysis, error) {
	var (
		a                                types.Analysis
		matches, factors, recs, related []byte
		analyzedAt                       nullTime
	)
	err := row.Scan(
		&a.RCRID, &a.RootCauseCategory, &a.PatternID, &matches,
		&factors, &recs, &related, &a.Attempts, &analyzedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := fromJSON(matches, &a.PatternMatches); err != nil {
		return nil, fmt.Errorf("failed to decode pattern matches for report %s: %w", a.RCRID, err)
	}
	if err := fromJSON(factors, &a.ContributingFactors); err != nil {
		return nil, fmt.Errorf("failed to decode contributing factors for report %s: %w", a.RCRID, err)
	}
	if err := fromJSON(recs, &a.Recommendations); err != nil {
		return nil, fmt.Errorf("failed to decode recommendations for report %s: %w", a.RCRID, err)
	}
	if err := fromJSON(related, &a.RelatedRCRIDs); err != nil {
		return nil, fmt.Errorf("failed to decode related reports for report %s: %w", a.RCRID, err)
	}
	a.AnalyzedAt = analyzedAt.Time
	return &a, nil
}

// GetAnalysis retrieves the latest analysis of a report
func (q *queries) GetAnalysis(ctx context.Context, rcrID string) (*types.Analysis, error) {
	a, err := scanAnalysis(q.queryRow(ctx,
		`SELECT `+analysisColumns+` FROM rca_analyses WHERE rcr_id = ?`, rcrID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get analysis: %w", err)
	}
	return a, nil
}

// UpsertAnalysis stores a, replacing any earlier analysis of the same report
func (q *queries) UpsertAnalysis(ctx context.Context, a *types.Analysis) error {
	matches, err := toJSON(nonNil(a.PatternMatches))
	if err != nil {
		return fmt.Errorf("failed to marshal pattern matches: %w", err)
	}
	factors, err := toJSON(nonNil(a.ContributingFactors))
	if err != nil {
		return fmt.Errorf("failed to marshal contributing factors: %w", err)
	}
	recs, err := toJSON(nonNil(a.Recommendations))
	if err != nil {
		return fmt.Errorf("failed to marshal recommendations: %w", err)
	}
	related, err := toJSON(nonNil(a.RelatedRCRIDs))
	if err != nil {
		return fmt.Errorf("failed to marshal related reports: %w", err)
	}

	_, err = q.exec(ctx, `
		INSERT INTO rca_analyses (`+analysisColumns+`)
		VALUES (`+placeholders(9)+`)
		ON CONFLICT (rcr_id) DO UPDATE SET
			root_cause_category = excluded.root_cause_category,
			pattern_id = excluded.pattern_id,
			pattern_matches = excluded.pattern_matches,
			contributing_factors = excluded.contributing_factors,
			recommendations = excluded.recommendations,
			related_rcr_ids = excluded.related_rcr_ids,
			attempts = excluded.attempts,
			analyzed_at = excluded.analyzed_at
	`,
		a.RCRID, a.RootCauseCategory, a.PatternID, matches,
		factors, recs, related, a.Attempts, timeArg(a.AnalyzedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to store analysis: %w", err)
	}
	return nil
}

// ListPatternCandidates returns the most recent reports of scopeType other
// than excludeID. A report without its own category falls back to the one
// its analysis chose.
func (q *queries) ListPatternCandidates(ctx context.Context, excludeID string, scopeType types.ScopeType, limit int) ([]*types.PatternCandidate, error) {
	rows, err := q.query(ctx, `
		SELECT r.id, r.scope_type, r.problem_statement,
			CASE WHEN r.root_cause_category <> '' THEN r.root_cause_category
				ELSE COALESCE(a.root_cause_category, '') END,
			r.status, COALESCE(a.pattern_id, '')
		FROM root_cause_reports r
		LEFT JOIN rca_analyses a ON a.rcr_id = r.id
		WHERE r.id <> ? AND r.scope_type = ?
		ORDER BY r.created_at DESC, r.id
		LIMIT ?
	`, excludeID, scopeType, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pattern candidates: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*types.PatternCandidate
	for rows.Next() {
		var c types.PatternCandidate
		if err := rows.Scan(&c.ID, &c.ScopeType, &c.ProblemStatement, &c.RootCauseCategory, &c.Status, &c.PatternID); err != nil {
			return nil, fmt.Errorf("failed to scan pattern candidate: %w", err)
		}
		out = append(out, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pattern candidates: %w", err)
	}
	return out, nil
}

// nonNil keeps empty lists as [] rather than null in JSON columns.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
