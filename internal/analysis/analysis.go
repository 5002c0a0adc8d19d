// Package analysis compares a report with recent reports of the same scope
// type and derives its contributing factors and recommendations.
//
// Everything here is pure. The service loads the history, calls Analyze and
// stores the result.
package analysis

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/steveyegge/rcagov/internal/deduplication"
	"github.com/steveyegge/rcagov/internal/types"
)

// Similarity weights. A candidate matches at MatchThreshold or above.
const (
	CategoryWeight  = 40
	WordsWeight     = 40
	ScopeWeight     = 20
	MatchThreshold  = 50
	HistoryLimit    = 10
	MaxRelatedIDs   = 5
	patternIDPrefix = 8
)

// Contributing factor names.
const (
	FactorCriticalTier     = "Critical severity classification"
	FactorSDScope          = "SD-level scope"
	FactorRepeatedAnalysis = "Repeated analysis required"
	FactorRecurring        = "Recurring issue"
)

// Recommendation priorities.
const (
	PriorityHigh   = "HIGH"
	PriorityMedium = "MEDIUM"
)

// Subject is the report being analyzed, reduced to what matching reads.
type Subject struct {
	ScopeType        types.ScopeType
	ProblemStatement string
	// Category is the report's own category, empty until a CAPA sets one
	Category types.RootCauseCategory
	// Inferred is the category guessed from the trigger source
	Inferred types.RootCauseCategory
}

// Analyze runs matching, factors and recommendations for report.
// priorAttempts is how many analyses were stored before this one.
func Analyze(report *types.Report, inferred types.RootCauseCategory, candidates []*types.PatternCandidate, priorAttempts int, now time.Time) *types.Analysis {
	subject := Subject{
		ScopeType:        report.ScopeType,
		ProblemStatement: report.ProblemStatement,
		Category:         report.RootCauseCategory,
		Inferred:         inferred,
	}
	category := report.RootCauseCategory
	if category == "" {
		category = inferred
	}

	matches := FindPatternMatches(subject, candidates)
	factors := ContributingFactors(report, priorAttempts)

	a := &types.Analysis{
		RCRID:               report.ID,
		RootCauseCategory:   category,
		PatternMatches:      matches,
		ContributingFactors: factors,
		Recommendations:     Recommendations(category, factors, matches),
		Attempts:            priorAttempts + 1,
		AnalyzedAt:          now.UTC(),
	}
	if len(matches) > 0 {
		a.PatternID = matches[0].PatternID
	}
	for i := 0; i < len(matches) && i < MaxRelatedIDs; i++ {
		a.RelatedRCRIDs = append(a.RelatedRCRIDs, matches[i].RCRID)
	}
	return a
}

// Similarity scores c against s from 0 to 100. Candidates without a
// category or problem statement score 0.
func Similarity(s Subject, c *types.PatternCandidate) float64 {
	if c.RootCauseCategory == "" || strings.TrimSpace(c.ProblemStatement) == "" {
		return 0
	}

	var score float64
	if c.RootCauseCategory == s.Category || c.RootCauseCategory == s.Inferred {
		score += CategoryWeight
	}
	score += WordOverlap(s.ProblemStatement, c.ProblemStatement) * WordsWeight
	if c.ScopeType == s.ScopeType {
		score += ScopeWeight
	}
	return score
}

// WordOverlap is the fraction of current's distinct words that also appear
// in other. Digit runs are masked so counters and ids do not split words.
func WordOverlap(current, other string) float64 {
	cw := words(current)
	if len(cw) == 0 {
		return 0
	}
	ow := words(other)
	shared := 0
	for w := range cw {
		if _, ok := ow[w]; ok {
			shared++
		}
	}
	return math.Min(1, float64(shared)/float64(len(cw)))
}

func words(text string) map[string]struct{} {
	normalized := deduplication.NormalizeCause(text, true)
	fields := strings.FieldsFunc(normalized, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' && r != '#'
	})
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

// FindPatternMatches returns the candidates scoring at least MatchThreshold,
// most similar first. Ties keep candidate order.
func FindPatternMatches(s Subject, candidates []*types.PatternCandidate) []types.PatternMatch {
	var matches []types.PatternMatch
	for _, c := range candidates {
		score := Similarity(s, c)
		if score < MatchThreshold {
			continue
		}
		matches = append(matches, types.PatternMatch{
			RCRID:      c.ID,
			PatternID:  PatternID(c),
			Similarity: int(math.Round(score)),
			Category:   c.RootCauseCategory,
			Resolved:   c.Status == types.ReportStatusResolved,
		})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	return matches
}

// PatternID returns the candidate's pattern, minting PAT-<category>-<id prefix>
// when it has none yet.
func PatternID(c *types.PatternCandidate) string {
	if c.PatternID != "" {
		return c.PatternID
	}
	id := c.ID
	if len(id) > patternIDPrefix {
		id = id[:patternIDPrefix]
	}
	return fmt.Sprintf("PAT-%s-%s", c.RootCauseCategory, id)
}

// ContributingFactors lists the conditions that made report worse, heaviest first.
func ContributingFactors(report *types.Report, priorAttempts int) []types.ContributingFactor {
	var factors []types.ContributingFactor
	if report.TriggerTier == types.MinTriggerTier {
		factors = append(factors, types.ContributingFactor{
			Factor:   FactorCriticalTier,
			Weight:   25,
			Evidence: "T1 trigger indicates blocking issue",
		})
	}
	if report.ScopeType == types.ScopeSD {
		factors = append(factors, types.ContributingFactor{
			Factor:   FactorSDScope,
			Weight:   20,
			Evidence: "Failure at strategic directive level affects multiple components",
		})
	}
	if priorAttempts > 1 {
		factors = append(factors, types.ContributingFactor{
			Factor:   FactorRepeatedAnalysis,
			Weight:   15,
			Evidence: fmt.Sprintf("%d analysis attempts indicate complex root cause", priorAttempts),
		})
	}
	if report.RecurrenceCount > 1 {
		factors = append(factors, types.ContributingFactor{
			Factor:   FactorRecurring,
			Weight:   20,
			Evidence: fmt.Sprintf("Issue has occurred %d time(s)", report.RecurrenceCount),
		})
	}
	sort.SliceStable(factors, func(i, j int) bool {
		return factors[i].Weight > factors[j].Weight
	})
	return factors
}

var categoryRecommendations = map[types.RootCauseCategory]types.Recommendation{
	types.CategoryCodeDefect: {
		Action: "Review and fix the identified code defect", Priority: PriorityHigh, Type: types.RecommendImmediateFix,
	},
	types.CategoryTestCoverageGap: {
		Action: "Expand test coverage to include the failure scenario", Priority: PriorityHigh, Type: types.RecommendTestEnhancement,
	},
	types.CategoryRequirementsAmbiguity: {
		Action: "Clarify requirements and update acceptance criteria", Priority: PriorityMedium, Type: types.RecommendRequirementsUpdate,
	},
	types.CategoryProcessGap: {
		Action: "Update process documentation and add validation checkpoints", Priority: PriorityMedium, Type: types.RecommendProcessImprovement,
	},
	types.CategoryInfrastructure: {
		Action: "Review and update infrastructure configuration", Priority: PriorityHigh, Type: types.RecommendInfrastructureFix,
	},
	types.CategoryEnvironmental: {
		Action: "Add environment monitoring and alerting", Priority: PriorityMedium, Type: types.RecommendMonitoringEnhancement,
	},
	types.CategoryConfigError: {
		Action: "Correct the configuration and validate it before deploy", Priority: PriorityHigh, Type: types.RecommendConfigValidation,
	},
}

// Recommendations builds the action list: one for the category, one for the
// pattern history, and one per recurring factor among the top two.
func Recommendations(category types.RootCauseCategory, factors []types.ContributingFactor, matches []types.PatternMatch) []types.Recommendation {
	var recs []types.Recommendation
	if rec, ok := categoryRecommendations[category]; ok {
		recs = append(recs, rec)
	}

	if len(matches) > 0 {
		resolved := ""
		for _, m := range matches {
			if m.Resolved {
				resolved = m.PatternID
				break
			}
		}
		if resolved != "" {
			recs = append(recs, types.Recommendation{
				Action:   fmt.Sprintf("Review resolution from similar pattern (%s)", resolved),
				Priority: PriorityMedium,
				Type:     types.RecommendPatternLearning,
			})
		} else {
			recs = append(recs, types.Recommendation{
				Action:   "This is part of an unresolved pattern - prioritize systemic fix",
				Priority: PriorityHigh,
				Type:     types.RecommendPatternAlert,
			})
		}
	}

	for i := 0; i < len(factors) && i < 2; i++ {
		if factors[i].Factor == FactorRecurring {
			recs = append(recs, types.Recommendation{
				Action:   "Implement automated regression prevention for this failure type",
				Priority: PriorityHigh,
				Type:     types.RecommendRegressionPrevention,
			})
		}
	}
	return recs
}
