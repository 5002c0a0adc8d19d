package types

import "time"

// Analysis is the stored result of analyzing one report against its
// history. Re-analysis replaces it and bumps Attempts.
type Analysis struct {
	RCRID               string               `json:"rcr_id"`
	RootCauseCategory   RootCauseCategory    `json:"root_cause_category"`
	PatternID           string               `json:"pattern_id,omitempty"`
	PatternMatches      []PatternMatch       `json:"pattern_matches"`
	ContributingFactors []ContributingFactor `json:"contributing_factors"`
	Recommendations     []Recommendation     `json:"recommendations"`
	RelatedRCRIDs       []string             `json:"related_rcr_ids,omitempty"`
	Attempts            int                  `json:"attempts"`
	AnalyzedAt          time.Time            `json:"analyzed_at"`
}

// PatternMatch is a historical report similar enough to count as the same pattern.
type PatternMatch struct {
	RCRID      string            `json:"rcr_id"`
	PatternID  string            `json:"pattern_id"`
	Similarity int               `json:"similarity"`
	Category   RootCauseCategory `json:"category"`
	Resolved   bool              `json:"resolved"`
}

// ContributingFactor is a weighted condition that made a failure more likely or worse.
type ContributingFactor struct {
	Factor   string `json:"factor"`
	Weight   int    `json:"weight"`
	Evidence string `json:"evidence"`
}

// RecommendationType categorizes a recommendation.
type RecommendationType string

const (
	RecommendImmediateFix          RecommendationType = "IMMEDIATE_FIX"
	RecommendTestEnhancement       RecommendationType = "TEST_ENHANCEMENT"
	RecommendRequirementsUpdate    RecommendationType = "REQUIREMENTS_UPDATE"
	RecommendProcessImprovement    RecommendationType = "PROCESS_IMPROVEMENT"
	RecommendInfrastructureFix     RecommendationType = "INFRASTRUCTURE_FIX"
	RecommendMonitoringEnhancement RecommendationType = "MONITORING_ENHANCEMENT"
	RecommendConfigValidation      RecommendationType = "CONFIG_VALIDATION"
	RecommendPatternLearning       RecommendationType = "PATTERN_LEARNING"
	RecommendPatternAlert          RecommendationType = "PATTERN_ALERT"
	RecommendRegressionPrevention  RecommendationType = "REGRESSION_PREVENTION"
)

// Recommendation is a suggested next action.
type Recommendation struct {
	Action   string             `json:"action"`
	Priority string             `json:"priority"`
	Type     RecommendationType `json:"type"`
}

// PatternCandidate is the slice of a historical report that pattern matching reads.
type PatternCandidate struct {
	ID                string            `json:"id"`
	ScopeType         ScopeType         `json:"scope_type"`
	ProblemStatement  string            `json:"problem_statement"`
	RootCauseCategory RootCauseCategory `json:"root_cause_category"`
	Status            ReportStatus      `json:"status"`
	// PatternID is the id assigned by the candidate's own analysis, if any
	PatternID string `json:"pattern_id,omitempty"`
}
