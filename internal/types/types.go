package types

import (
	"fmt"
	"strings"
	"time"
)

// Report is a Root Cause Report (RCR): the aggregate record for one
// distinct failure, identified by its failure signature.
type Report struct {
	ID                string            `json:"id"`
	ScopeType         ScopeType         `json:"scope_type"`
	ScopeID           string            `json:"scope_id"`
	TriggerSource     TriggerSource     `json:"trigger_source"`
	TriggerTier       int               `json:"trigger_tier"`
	TriggerCode       string            `json:"trigger_code,omitempty"`
	FailureSignature  string            `json:"failure_signature"`
	RecurrenceCount   int               `json:"recurrence_count"`
	ProblemStatement  string            `json:"problem_statement"`
	Observed          map[string]any    `json:"observed,omitempty"`
	Expected          map[string]any    `json:"expected,omitempty"`
	Evidence          Evidence          `json:"evidence"`
	ImpactLevel       ImpactLevel       `json:"impact_level"`
	LikelihoodLevel   LikelihoodLevel   `json:"likelihood_level"`
	SeverityPriority  Priority          `json:"severity_priority"`
	Confidence        int               `json:"confidence"`
	LogQuality        int               `json:"log_quality"`
	EvidenceStrength  int               `json:"evidence_strength"`
	PatternMatchScore int               `json:"pattern_match_score"`
	Status            ReportStatus      `json:"status"`
	RootCauseCategory RootCauseCategory `json:"root_cause_category,omitempty"`
	DetectedAt        time.Time         `json:"detected_at"`
	FirstOccurrenceAt time.Time         `json:"first_occurrence_at"`
	ResolvedAt        *time.Time        `json:"resolved_at,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// Validate checks the caller-supplied fields of a report.
// Derived fields (signature, priority, confidence) are not checked here.
func (r *Report) Validate() error {
	if !r.ScopeType.IsValid() {
		return NewValidationError("scope_type", fmt.Sprintf("invalid scope type: %q", r.ScopeType))
	}
	if strings.TrimSpace(r.ScopeID) == "" {
		return NewValidationError("scope_id", "scope_id is required")
	}
	if !r.TriggerSource.IsValid() {
		return NewValidationError("trigger_source", fmt.Sprintf("invalid trigger source: %q", r.TriggerSource))
	}
	if r.TriggerTier < MinTriggerTier || r.TriggerTier > MaxTriggerTier {
		return NewValidationError("trigger_tier",
			fmt.Sprintf("trigger_tier must be between %d and %d (got %d)", MinTriggerTier, MaxTriggerTier, r.TriggerTier))
	}
	if strings.TrimSpace(r.ProblemStatement) == "" {
		return NewValidationError("problem_statement", "problem_statement is required")
	}
	if !r.ImpactLevel.IsValid() {
		return NewValidationError("impact_level", fmt.Sprintf("invalid impact level: %q", r.ImpactLevel))
	}
	if !r.LikelihoodLevel.IsValid() {
		return NewValidationError("likelihood_level", fmt.Sprintf("invalid likelihood level: %q", r.LikelihoodLevel))
	}
	return r.Evidence.Validate()
}

// Evidence holds pointers to the artifacts backing a report.
// The engine treats refs as opaque; only presence is scored.
type Evidence struct {
	Refs             []string `json:"refs,omitempty"`
	StackTrace       string   `json:"stack_trace,omitempty"`
	Logs             []string `json:"logs,omitempty"`
	Screenshots      []string `json:"screenshots,omitempty"`
	ReproSteps       []string `json:"repro_steps,omitempty"`
	ReproSuccessRate float64  `json:"repro_success_rate,omitempty"`
}

// Validate checks evidence ranges.
func (e Evidence) Validate() error {
	if e.ReproSuccessRate < 0 || e.ReproSuccessRate > 1 {
		return NewValidationError("evidence.repro_success_rate",
			fmt.Sprintf("repro_success_rate must be between 0 and 1 (got %g)", e.ReproSuccessRate))
	}
	return nil
}

// HasStackTrace reports whether a non-blank stack trace was captured.
func (e Evidence) HasStackTrace() bool { return strings.TrimSpace(e.StackTrace) != "" }

// HasLogs reports whether any log pointers were captured.
func (e Evidence) HasLogs() bool { return len(e.Logs) > 0 }

// HasScreenshots reports whether any screenshots were captured.
func (e Evidence) HasScreenshots() bool { return len(e.Screenshots) > 0 }

// HasReproSteps reports whether reproduction steps were recorded.
func (e Evidence) HasReproSteps() bool { return len(e.ReproSteps) > 0 }

// CAPA is a Remediation Manifest: the corrective/preventive action plan
// owned by exactly one report.
type CAPA struct {
	ID                string            `json:"id"`
	RCRID             string            `json:"rcr_id"`
	RootCauseCategory RootCauseCategory `json:"root_cause_category"`
	ProposedChanges   ProposedChanges   `json:"proposed_changes"`
	VerificationPlan  VerificationPlan  `json:"verification_plan"`
	RiskScore         int               `json:"risk_score"`
	AffectedSDCount   int               `json:"affected_sd_count"`
	Status            CAPAStatus        `json:"status"`
	ApprovedAt        *time.Time        `json:"approved_at,omitempty"`
	VerifiedAt        *time.Time        `json:"verified_at,omitempty"`
	VerificationNotes string            `json:"verification_notes,omitempty"`
	RejectionReason   string            `json:"rejection_reason,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// Validate checks the caller-supplied fields of a CAPA.
// Approval and verification preconditions are checked by the lifecycle, not here.
func (c *CAPA) Validate() error {
	if strings.TrimSpace(c.RCRID) == "" {
		return NewValidationError("rcr_id", "rcr_id is required")
	}
	if c.RootCauseCategory != "" && !c.RootCauseCategory.IsValid() {
		return NewValidationError("root_cause_category",
			fmt.Sprintf("invalid root cause category: %q", c.RootCauseCategory))
	}
	if c.RiskScore < 0 || c.RiskScore > 100 {
		return NewValidationError("risk_score", fmt.Sprintf("risk_score must be between 0 and 100 (got %d)", c.RiskScore))
	}
	if c.AffectedSDCount < 1 {
		return NewValidationError("affected_sd_count", "affected_sd_count must be at least 1")
	}
	for i, a := range c.ProposedChanges.All() {
		if strings.TrimSpace(a.Description) == "" {
			return NewValidationError("proposed_changes", fmt.Sprintf("action %d: description is required", i))
		}
		if a.EffortHours < 0 {
			return NewValidationError("proposed_changes", fmt.Sprintf("action %d: effort_hours cannot be negative", i))
		}
	}
	return nil
}

// ProposedChanges groups the corrective and preventive actions of a CAPA.
type ProposedChanges struct {
	CorrectiveActions []Action `json:"corrective_actions,omitempty"`
	PreventiveActions []Action `json:"preventive_actions,omitempty"`
}

// IsEmpty reports whether no action of either kind was proposed.
func (p ProposedChanges) IsEmpty() bool {
	return len(p.CorrectiveActions) == 0 && len(p.PreventiveActions) == 0
}

// All returns corrective actions followed by preventive actions.
func (p ProposedChanges) All() []Action {
	all := make([]Action, 0, len(p.CorrectiveActions)+len(p.PreventiveActions))
	all = append(all, p.CorrectiveActions...)
	return append(all, p.PreventiveActions...)
}

// Action is a single proposed change.
type Action struct {
	Description   string   `json:"description"`
	AffectedFiles []string `json:"affected_files,omitempty"`
	EffortHours   float64  `json:"effort_hours,omitempty"`
}

// VerificationPlan describes how a CAPA is proven effective.
type VerificationPlan struct {
	TestScenarios   []string `json:"test_scenarios,omitempty"`
	SuccessCriteria []string `json:"success_criteria,omitempty"`
}

// HasSuccessCriteria reports whether at least one non-blank criterion exists.
func (v VerificationPlan) HasSuccessCriteria() bool {
	for _, c := range v.SuccessCriteria {
		if strings.TrimSpace(c) != "" {
			return true
		}
	}
	return false
}

// LearningRecord is the immutable distillation of a resolved report.
type LearningRecord struct {
	ID                 string          `json:"id"`
	RCRID              string          `json:"rcr_id"`
	Features           map[string]any  `json:"features"`
	Label              string          `json:"label"`
	DefectClass        string          `json:"defect_class"`
	Preventable        bool            `json:"preventable"`
	PreventionStage    PreventionStage `json:"prevention_stage"`
	PreventionReason   string          `json:"prevention_reason"`
	TimeToDetectHours  float64         `json:"time_to_detect_hours"`
	TimeToResolveHours float64         `json:"time_to_resolve_hours"`
	Metadata           map[string]any  `json:"metadata,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
}

// Event is an audit trail entry written alongside every lifecycle change.
type Event struct {
	ID         int64      `json:"id"`
	EntityType EntityType `json:"entity_type"`
	EntityID   string     `json:"entity_id"`
	EventType  EventType  `json:"event_type"`
	Actor      string     `json:"actor"`
	OldValue   string     `json:"old_value,omitempty"`
	NewValue   string     `json:"new_value,omitempty"`
	Comment    string     `json:"comment,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// EntityType names the kind of record an event refers to.
type EntityType string

const (
	EntityReport   EntityType = "report"
	EntityCAPA     EntityType = "capa"
	EntityLearning EntityType = "learning"
)

// EventType categorizes audit events.
type EventType string

const (
	EventCreated       EventType = "created"
	EventRecurred      EventType = "recurred"
	EventStatusChanged EventType = "status_changed"
	EventCascaded      EventType = "cascaded"
	EventIngested      EventType = "ingested"
	EventAnalyzed      EventType = "analyzed"
)
