// Package analytics exposes the read-only RCA projections.
//
// Both views are computed by the database on every call and are never
// written to. The gate evaluator does not read them.
package analytics

import (
	"context"
	"fmt"

	"github.com/steveyegge/rcagov/internal/storage"
	"github.com/steveyegge/rcagov/internal/types"
)

// Defaults for recurrence queries.
const (
	DefaultMinOccurrences  = 2
	DefaultRecurrenceLimit = 20
)

// Summary is the v_rca_analytics projection plus derived ratios.
type Summary struct {
	types.AnalyticsSummary

	// BlockingOpen is open P0 plus open P1
	BlockingOpen int `json:"blocking_open"`

	// ResolutionRate is resolved / total, 0 when there are no reports
	ResolutionRate float64 `json:"resolution_rate"`
}

// RecurrenceQuery narrows a recurrence listing.
type RecurrenceQuery struct {
	// MinOccurrences drops signatures seen fewer times. 0 means DefaultMinOccurrences.
	MinOccurrences int

	// Limit caps the result. 0 means DefaultRecurrenceLimit.
	Limit int
}

// Reader runs analytics queries against a store.
type Reader struct {
	store storage.Storage
}

// NewReader creates a Reader.
func NewReader(store storage.Storage) *Reader {
	return &Reader{store: store}
}

// Summary returns counts across every scope.
func (r *Reader) Summary(ctx context.Context) (*Summary, error) {
	raw, err := r.store.GetAnalyticsSummary(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get analytics summary: %w", err)
	}
	s := &Summary{
		AnalyticsSummary: *raw,
		BlockingOpen:     raw.P0Open + raw.P1Open,
	}
	if raw.Total > 0 {
		s.ResolutionRate = float64(raw.Resolved) / float64(raw.Total)
	}
	return s, nil
}

// Recurrence returns signatures ordered by total occurrences, most frequent first.
func (r *Reader) Recurrence(ctx context.Context, q RecurrenceQuery) ([]*types.RecurrencePattern, error) {
	if q.MinOccurrences < 0 {
		return nil, types.NewValidationError("min_occurrences", "min_occurrences cannot be negative")
	}
	if q.Limit < 0 {
		return nil, types.NewValidationError("limit", "limit cannot be negative")
	}
	if q.MinOccurrences == 0 {
		q.MinOccurrences = DefaultMinOccurrences
	}
	if q.Limit == 0 {
		q.Limit = DefaultRecurrenceLimit
	}

	patterns, err := r.store.GetRecurrencePatterns(ctx, q.MinOccurrences, q.Limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get recurrence patterns: %w", err)
	}
	if patterns == nil {
		patterns = []*types.RecurrencePattern{}
	}
	return patterns, nil
}
