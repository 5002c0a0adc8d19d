// Package severity derives a report's priority band and evidence confidence.
//
// Both functions are pure: identical inputs always produce identical outputs,
// so re-classifying a stored report is idempotent.
package severity

import (
	"fmt"

	"github.com/steveyegge/rcagov/internal/types"
)

// matrix maps impact (rows) and likelihood (columns) to a priority band.
//
// Classification rules:
// - CRITICAL: FREQUENT → P0, OCCASIONAL → P1, RARE → P2
// - HIGH:     FREQUENT → P1, OCCASIONAL → P1, RARE → P2
// - MEDIUM:   FREQUENT → P2, OCCASIONAL → P2, RARE → P3
// - LOW:      always P4
var matrix = map[types.ImpactLevel]map[types.LikelihoodLevel]types.Priority{
	types.ImpactCritical: {
		types.LikelihoodFrequent:   types.PriorityP0,
		types.LikelihoodOccasional: types.PriorityP1,
		types.LikelihoodRare:       types.PriorityP2,
	},
	types.ImpactHigh: {
		types.LikelihoodFrequent:   types.PriorityP1,
		types.LikelihoodOccasional: types.PriorityP1,
		types.LikelihoodRare:       types.PriorityP2,
	},
	types.ImpactMedium: {
		types.LikelihoodFrequent:   types.PriorityP2,
		types.LikelihoodOccasional: types.PriorityP2,
		types.LikelihoodRare:       types.PriorityP3,
	},
	types.ImpactLow: {
		types.LikelihoodFrequent:   types.PriorityP4,
		types.LikelihoodOccasional: types.PriorityP4,
		types.LikelihoodRare:       types.PriorityP4,
	},
}

// Classify returns the priority band for an impact/likelihood pair.
// Unknown levels yield a validation error.
func Classify(impact types.ImpactLevel, likelihood types.LikelihoodLevel) (types.Priority, error) {
	row, ok := matrix[impact]
	if !ok {
		return "", types.NewValidationError("impact_level", fmt.Sprintf("invalid impact level: %q", impact))
	}
	p, ok := row[likelihood]
	if !ok {
		return "", types.NewValidationError("likelihood_level", fmt.Sprintf("invalid likelihood level: %q", likelihood))
	}
	return p, nil
}
