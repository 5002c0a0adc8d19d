// Package learning distills resolved reports into labeled training records.
//
// Ingest is pure: it reads a resolved report and its verified CAPA and
// returns the record. Persisting it (exactly once per report) is the
// caller's job.
package learning

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/steveyegge/rcagov/internal/types"
)

// Defect classes assigned by ClassifyDefect.
const (
	DefectTestCoverageGapRegression = "test_coverage_gap_regression"
	DefectTestCoverageGapInitial    = "test_coverage_gap_initial"
	DefectCodeDefectRuntime         = "code_defect_runtime"
	DefectCodeDefectLogic           = "code_defect_logic"
	DefectConfigErrorCI             = "config_error_ci"
	DefectConfigErrorEnv            = "config_error_env"
	DefectConfigErrorApplication    = "config_error_application"
	DefectRequirementsAmbiguity     = "requirements_ambiguity"
	DefectProcessGap                = "process_gap"
	DefectUncategorized             = "uncategorized"
)

// Prevention is the verdict on whether an upstream stage could have caught
// the defect.
type Prevention struct {
	Preventable bool
	Stage       types.PreventionStage
	Reason      string
}

// Ingest builds the learning record for a resolved report. now stands in for
// resolved_at when the report has none.
func Ingest(report *types.Report, capa *types.CAPA, now time.Time) (*types.LearningRecord, error) {
	if report == nil {
		return nil, types.NewValidationError("report", "report is required")
	}
	if report.Status != types.ReportStatusResolved {
		return nil, &types.InvalidTransitionError{
			Entity: types.EntityLearning,
			ID:     report.ID,
			From:   string(report.Status),
			To:     string(types.ReportStatusResolved),
			Reason: "only resolved reports are ingested",
		}
	}

	category := Category(report, capa)
	defectClass := ClassifyDefect(category, report)
	prevention := AnalyzePrevention(category, report.TriggerSource)
	detectHours, resolveHours := TimeMetrics(report, now)

	metadata := map[string]any{
		"severity":         string(report.SeverityPriority),
		"trigger_source":   string(report.TriggerSource),
		"confidence":       report.Confidence,
		"impact_level":     string(report.ImpactLevel),
		"recurrence_count": report.RecurrenceCount,
	}
	if capa != nil {
		metadata["capa_id"] = capa.ID
	}

	return &types.LearningRecord{
		ID:                 "lr-" + uuid.NewString(),
		RCRID:              report.ID,
		Features:           ExtractFeatures(report, capa, category),
		Label:              fmt.Sprintf("%s - %s", category, defectClass),
		DefectClass:        defectClass,
		Preventable:        prevention.Preventable,
		PreventionStage:    prevention.Stage,
		PreventionReason:   prevention.Reason,
		TimeToDetectHours:  detectHours,
		TimeToResolveHours: resolveHours,
		Metadata:           metadata,
		CreatedAt:          now.UTC(),
	}, nil
}

// Category picks the root cause category: the report's, then the CAPA's,
// then UNKNOWN.
func Category(report *types.Report, capa *types.CAPA) types.RootCauseCategory {
	if report.RootCauseCategory != "" {
		return report.RootCauseCategory
	}
	if capa != nil && capa.RootCauseCategory != "" {
		return capa.RootCauseCategory
	}
	return types.CategoryUnknown
}

// ExtractFeatures flattens the report and CAPA into the feature map.
func ExtractFeatures(report *types.Report, capa *types.CAPA, category types.RootCauseCategory) map[string]any {
	ev := report.Evidence
	detected := report.DetectedAt.UTC()

	features := map[string]any{
		"scope_type":          string(report.ScopeType),
		"trigger_source":      string(report.TriggerSource),
		"trigger_tier":        report.TriggerTier,
		"root_cause_category": string(category),
		"impact_level":        string(report.ImpactLevel),
		"likelihood_level":    string(report.LikelihoodLevel),
		"severity_priority":   string(report.SeverityPriority),

		"confidence":          report.Confidence,
		"log_quality":         report.LogQuality,
		"evidence_strength":   report.EvidenceStrength,
		"pattern_match_score": report.PatternMatchScore,
		"recurrence_count":    report.RecurrenceCount,

		"hour_of_day": detected.Hour(),
		"day_of_week": int(detected.Weekday()),

		"has_repro_steps":    ev.HasReproSteps(),
		"repro_success_rate": ev.ReproSuccessRate,
		"has_stack_trace":    ev.HasStackTrace(),
		"has_logs":           ev.HasLogs(),
		"has_screenshots":    ev.HasScreenshots(),
		"evidence_ref_count": len(ev.Refs),

		"capa_risk_score":         0,
		"affected_sd_count":       1,
		"corrective_action_count": 0,
		"preventive_action_count": 0,
	}

	if capa != nil {
		features["capa_risk_score"] = capa.RiskScore
		features["affected_sd_count"] = capa.AffectedSDCount
		features["corrective_action_count"] = len(capa.ProposedChanges.CorrectiveActions)
		features["preventive_action_count"] = len(capa.ProposedChanges.PreventiveActions)
	}
	return features
}

// ClassifyDefect refines a category into a defect class using the trigger
// and the evidence.
func ClassifyDefect(category types.RootCauseCategory, report *types.Report) string {
	switch category {
	case types.CategoryTestCoverageGap:
		if report.TriggerSource == types.TriggerTestFailure {
			return DefectTestCoverageGapRegression
		}
		return DefectTestCoverageGapInitial
	case types.CategoryCodeDefect:
		if report.Evidence.HasStackTrace() {
			return DefectCodeDefectRuntime
		}
		return DefectCodeDefectLogic
	case types.CategoryConfigError:
		switch report.TriggerSource {
		case types.TriggerCIPipeline:
			return DefectConfigErrorCI
		case types.TriggerRuntime:
			return DefectConfigErrorEnv
		default:
			return DefectConfigErrorApplication
		}
	case types.CategoryRequirementsAmbiguity:
		return DefectRequirementsAmbiguity
	case types.CategoryProcessGap:
		return DefectProcessGap
	default:
		return DefectUncategorized
	}
}

// AnalyzePrevention names the earliest stage that should have caught the defect.
func AnalyzePrevention(category types.RootCauseCategory, trigger types.TriggerSource) Prevention {
	switch {
	case category == types.CategoryRequirementsAmbiguity:
		return Prevention{true, types.StageLeadPreApproval, "Clearer requirements would have prevented ambiguity"}
	case category == types.CategoryTestCoverageGap:
		return Prevention{true, types.StagePlanPRD, "Comprehensive test plan would have caught gap"}
	case category == types.CategoryCodeDefect && trigger == types.TriggerTestFailure:
		return Prevention{true, types.StageExecImpl, "Better unit testing during implementation"}
	case category == types.CategoryProcessGap:
		return Prevention{true, types.StagePlanPRD, "Process improvement needed in workflow"}
	case category == types.CategoryConfigError:
		return Prevention{true, types.StagePlanVerify, "Configuration validation during verification"}
	default:
		return Prevention{false, types.StageNever, "Inherent complexity or external factor"}
	}
}

// TimeMetrics returns detect and resolve durations in hours, never negative.
// now stands in for resolved_at when it is unset.
func TimeMetrics(report *types.Report, now time.Time) (detectHours, resolveHours float64) {
	resolved := now
	if report.ResolvedAt != nil {
		resolved = *report.ResolvedAt
	}
	detectHours = nonNegative(report.DetectedAt.Sub(report.FirstOccurrenceAt).Hours())
	resolveHours = nonNegative(resolved.Sub(report.DetectedAt).Hours())
	return detectHours, resolveHours
}

func nonNegative(h float64) float64 {
	if h < 0 {
		return 0
	}
	return h
}
