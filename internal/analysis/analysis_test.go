package analysis

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/rcagov/internal/types"
)

func candidate(id string, scope types.ScopeType, category types.RootCauseCategory, statement string) *types.PatternCandidate {
	return &types.PatternCandidate{
		ID:                id,
		ScopeType:         scope,
		ProblemStatement:  statement,
		RootCauseCategory: category,
		Status:            types.ReportStatusOpen,
	}
}

func TestSimilarity(t *testing.T) {
	checkout := Subject{
		ScopeType:        types.ScopeSD,
		ProblemStatement: "checkout e2e fails on payment step",
		Inferred:         types.CategoryTestCoverageGap,
	}
	disk4 := Subject{ScopeType: types.ScopePipeline, ProblemStatement: "disk full on runner", Inferred: types.CategoryInfrastructure}
	disk5 := Subject{ScopeType: types.ScopePipeline, ProblemStatement: "disk full on runner seven", Inferred: types.CategoryInfrastructure}

	tests := []struct {
		name    string
		subject Subject
		cand    *types.PatternCandidate
		want    float64
		matches bool
	}{
		{
			name:    "identical",
			subject: checkout,
			cand:    candidate("rcr-a", types.ScopeSD, types.CategoryTestCoverageGap, "Checkout E2E fails on payment step"),
			want:    100,
			matches: true,
		},
		{
			name:    "category and scope without shared words",
			subject: checkout,
			cand:    candidate("rcr-b", types.ScopeSD, types.CategoryTestCoverageGap, "nightly lint job timed out"),
			want:    60,
			matches: true,
		},
		{
			name:    "words and scope without category",
			subject: checkout,
			cand:    candidate("rcr-c", types.ScopeSD, types.CategoryCodeDefect, "checkout e2e fails on payment step"),
			want:    60,
			matches: true,
		},
		{
			name:    "category alone",
			subject: checkout,
			cand:    candidate("rcr-d", types.ScopeRuntime, types.CategoryTestCoverageGap, "pod evicted"),
			want:    40,
			matches: false,
		},
		{
			name:    "half the words and scope",
			subject: checkout,
			cand:    candidate("rcr-e", types.ScopeSD, types.CategoryCodeDefect, "checkout fails on login"),
			want:    40,
			matches: false,
		},
		{
			name:    "words and scope at threshold",
			subject: disk4,
			cand:    candidate("rcr-f", types.ScopePipeline, types.CategoryCodeDefect, "disk full on builder"),
			want:    50,
			matches: true,
		},
		{
			name:    "category and one of four words at threshold",
			subject: disk4,
			cand:    candidate("rcr-g", types.ScopeRuntime, types.CategoryInfrastructure, "runner exploded"),
			want:    50,
			matches: true,
		},
		{
			name:    "category and one of five words below threshold",
			subject: disk5,
			cand:    candidate("rcr-h", types.ScopeRuntime, types.CategoryInfrastructure, "runner exploded"),
			want:    48,
			matches: false,
		},
		{
			name:    "uncategorized candidate never matches",
			subject: checkout,
			cand:    candidate("rcr-i", types.ScopeSD, "", "checkout e2e fails on payment step"),
			want:    0,
			matches: false,
		},
		{
			name: "own category counts as well as inferred",
			subject: Subject{
				ScopeType:        types.ScopeSD,
				ProblemStatement: "checkout e2e fails on payment step",
				Category:         types.CategoryCodeDefect,
				Inferred:         types.CategoryTestCoverageGap,
			},
			cand:    candidate("rcr-j", types.ScopeRuntime, types.CategoryCodeDefect, "pod evicted"),
			want:    40,
			matches: false,
		},
		{
			name:    "digit runs are masked",
			subject: Subject{ScopeType: types.ScopeRuntime, ProblemStatement: "timeout after 30s on shard 4"},
			cand:    candidate("rcr-k", types.ScopeRuntime, types.CategoryEnvironmental, "timeout after 45s on shard 12"),
			want:    60,
			matches: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Similarity(tt.subject, tt.cand)
			assert.InDelta(t, tt.want, got, 0.001)

			matches := FindPatternMatches(tt.subject, []*types.PatternCandidate{tt.cand})
			if !tt.matches {
				assert.Empty(t, matches)
				return
			}
			require.Len(t, matches, 1)
			assert.Equal(t, int(tt.want), matches[0].Similarity)
			assert.Equal(t, tt.cand.ID, matches[0].RCRID)
		})
	}
}

func TestWordOverlap(t *testing.T) {
	assert.Zero(t, WordOverlap("", "anything"))
	assert.Zero(t, WordOverlap("  --  ", "anything"))
	assert.Equal(t, 1.0, WordOverlap("a b", "b a c"))
	assert.Equal(t, 0.5, WordOverlap("a b", "a"))
	assert.Equal(t, 1.0, WordOverlap("retry retry retry", "retry"), "repeated words count once")
}

func TestPatternID(t *testing.T) {
	c := candidate("rcr-1234abcd", types.ScopeSD, types.CategoryCodeDefect, "x")
	assert.Equal(t, "PAT-CODE_DEFECT-rcr-1234", PatternID(c))

	c.ID = "short"
	assert.Equal(t, "PAT-CODE_DEFECT-short", PatternID(c))

	c.PatternID = "PAT-EXISTING"
	assert.Equal(t, "PAT-EXISTING", PatternID(c), "an assigned pattern is inherited")
}

func TestFindPatternMatchesOrdering(t *testing.T) {
	s := Subject{ScopeType: types.ScopeSD, ProblemStatement: "login fails", Inferred: types.CategoryCodeDefect}
	weak := candidate("rcr-weak", types.ScopeSD, types.CategoryCodeDefect, "unrelated text")
	strong := candidate("rcr-strong", types.ScopeSD, types.CategoryCodeDefect, "login fails")
	strong.Status = types.ReportStatusResolved
	tie := candidate("rcr-tie", types.ScopeSD, types.CategoryCodeDefect, "other words")
	miss := candidate("rcr-miss", types.ScopeRuntime, types.CategoryEnvironmental, "login fails")

	matches := FindPatternMatches(s, []*types.PatternCandidate{weak, strong, tie, miss})
	require.Len(t, matches, 3)
	assert.Equal(t, "rcr-strong", matches[0].RCRID)
	assert.Equal(t, 100, matches[0].Similarity)
	assert.True(t, matches[0].Resolved)
	assert.Equal(t, "rcr-weak", matches[1].RCRID, "ties keep history order")
	assert.Equal(t, "rcr-tie", matches[2].RCRID)
	assert.False(t, matches[1].Resolved)
}

func TestContributingFactors(t *testing.T) {
	r := &types.Report{ScopeType: types.ScopePipeline, TriggerTier: 3, RecurrenceCount: 1}
	assert.Empty(t, ContributingFactors(r, 0))

	r = &types.Report{ScopeType: types.ScopeSD, TriggerTier: 1, RecurrenceCount: 3}
	factors := ContributingFactors(r, 2)
	names := make([]string, 0, len(factors))
	for _, f := range factors {
		names = append(names, f.Factor)
	}
	assert.Equal(t, []string{FactorCriticalTier, FactorSDScope, FactorRecurring, FactorRepeatedAnalysis}, names)
	assert.Equal(t, "Issue has occurred 3 time(s)", factors[2].Evidence)

	assert.Len(t, ContributingFactors(r, 1), 3, "one earlier attempt is not repeated analysis")
}

func TestRecommendations(t *testing.T) {
	recurring := types.ContributingFactor{Factor: FactorRecurring, Weight: 20}
	critical := types.ContributingFactor{Factor: FactorCriticalTier, Weight: 25}
	sd := types.ContributingFactor{Factor: FactorSDScope, Weight: 20}

	typesOf := func(recs []types.Recommendation) []types.RecommendationType {
		out := make([]types.RecommendationType, 0, len(recs))
		for _, r := range recs {
			out = append(out, r.Type)
		}
		return out
	}

	tests := []struct {
		name     string
		category types.RootCauseCategory
		factors  []types.ContributingFactor
		matches  []types.PatternMatch
		want     []types.RecommendationType
	}{
		{"code defect alone", types.CategoryCodeDefect, nil, nil,
			[]types.RecommendationType{types.RecommendImmediateFix}},
		{"unknown category has no category action", types.CategoryUnknown, nil, nil,
			[]types.RecommendationType{}},
		{"unresolved pattern alerts", types.CategoryTestCoverageGap, nil,
			[]types.PatternMatch{{PatternID: "PAT-1"}},
			[]types.RecommendationType{types.RecommendTestEnhancement, types.RecommendPatternAlert}},
		{"resolved pattern teaches", types.CategoryEnvironmental, nil,
			[]types.PatternMatch{{PatternID: "PAT-1"}, {PatternID: "PAT-2", Resolved: true}},
			[]types.RecommendationType{types.RecommendMonitoringEnhancement, types.RecommendPatternLearning}},
		{"recurring in top two", types.CategoryConfigError, []types.ContributingFactor{critical, recurring}, nil,
			[]types.RecommendationType{types.RecommendConfigValidation, types.RecommendRegressionPrevention}},
		{"recurring third is ignored", types.CategoryProcessGap, []types.ContributingFactor{critical, sd, recurring}, nil,
			[]types.RecommendationType{types.RecommendProcessImprovement}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, typesOf(Recommendations(tt.category, tt.factors, tt.matches)))
		})
	}

	learn := Recommendations(types.CategoryEnvironmental, nil,
		[]types.PatternMatch{{PatternID: "PAT-1"}, {PatternID: "PAT-2", Resolved: true}})
	assert.Contains(t, learn[1].Action, "PAT-2")
}

func TestAnalyze(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	report := &types.Report{
		ID:               "rcr-new",
		ScopeType:        types.ScopeSD,
		TriggerTier:      1,
		RecurrenceCount:  2,
		ProblemStatement: "payment webhook times out",
	}

	var history []*types.PatternCandidate
	for i := 0; i < 7; i++ {
		c := candidate(fmt.Sprintf("rcr-old%d", i), types.ScopeSD, types.CategoryTestCoverageGap, "payment webhook times out")
		history = append(history, c)
	}
	history[0].PatternID = "PAT-WEBHOOK"

	a := Analyze(report, types.CategoryTestCoverageGap, history, 1, now)
	assert.Equal(t, "rcr-new", a.RCRID)
	assert.Equal(t, types.CategoryTestCoverageGap, a.RootCauseCategory)
	assert.Equal(t, "PAT-WEBHOOK", a.PatternID)
	assert.Len(t, a.PatternMatches, 7)
	assert.Len(t, a.RelatedRCRIDs, MaxRelatedIDs)
	assert.Equal(t, 2, a.Attempts)
	assert.Equal(t, now, a.AnalyzedAt)
	require.NotEmpty(t, a.Recommendations)
	assert.Equal(t, types.RecommendTestEnhancement, a.Recommendations[0].Type)
	assert.Equal(t, types.RecommendPatternAlert, a.Recommendations[1].Type)

	report.RootCauseCategory = types.CategoryCodeDefect
	fresh := Analyze(report, types.CategoryTestCoverageGap, nil, 0, now)
	assert.Equal(t, types.CategoryCodeDefect, fresh.RootCauseCategory, "own category wins over the inferred one")
	assert.Empty(t, fresh.PatternID)
	assert.Empty(t, fresh.RelatedRCRIDs)
	assert.Equal(t, 1, fresh.Attempts)
}
