package types

// Trigger tiers run from 1 (coarsest detector) to 4 (finest).
const (
	MinTriggerTier = 1
	MaxTriggerTier = 4
)

// ScopeType is the kind of system unit that failed.
type ScopeType string

const (
	ScopePipeline ScopeType = "PIPELINE"
	ScopeSubAgent ScopeType = "SUB_AGENT"
	ScopeRuntime  ScopeType = "RUNTIME"
	ScopeSD       ScopeType = "SD"
)

// IsValid checks if the scope type value is valid
func (s ScopeType) IsValid() bool {
	switch s {
	case ScopePipeline, ScopeSubAgent, ScopeRuntime, ScopeSD:
		return true
	}
	return false
}

// TriggerSource identifies which detector raised a report.
type TriggerSource string

const (
	TriggerQualityGate      TriggerSource = "QUALITY_GATE"
	TriggerCIPipeline       TriggerSource = "CI_PIPELINE"
	TriggerRuntime          TriggerSource = "RUNTIME"
	TriggerManual           TriggerSource = "MANUAL"
	TriggerSubAgent         TriggerSource = "SUB_AGENT"
	TriggerTestFailure      TriggerSource = "TEST_FAILURE"
	TriggerHandoffRejection TriggerSource = "HANDOFF_REJECTION"
)

// IsValid checks if the trigger source value is valid
func (t TriggerSource) IsValid() bool {
	switch t {
	case TriggerQualityGate, TriggerCIPipeline, TriggerRuntime, TriggerManual,
		TriggerSubAgent, TriggerTestFailure, TriggerHandoffRejection:
		return true
	}
	return false
}

// ImpactLevel is the estimated blast radius of a failure.
type ImpactLevel string

const (
	ImpactLow      ImpactLevel = "LOW"
	ImpactMedium   ImpactLevel = "MEDIUM"
	ImpactHigh     ImpactLevel = "HIGH"
	ImpactCritical ImpactLevel = "CRITICAL"
)

// IsValid checks if the impact level value is valid
func (i ImpactLevel) IsValid() bool {
	switch i {
	case ImpactLow, ImpactMedium, ImpactHigh, ImpactCritical:
		return true
	}
	return false
}

// LikelihoodLevel is the estimated recurrence frequency of a failure.
type LikelihoodLevel string

const (
	LikelihoodRare       LikelihoodLevel = "RARE"
	LikelihoodOccasional LikelihoodLevel = "OCCASIONAL"
	LikelihoodFrequent   LikelihoodLevel = "FREQUENT"
)

// IsValid checks if the likelihood level value is valid
func (l LikelihoodLevel) IsValid() bool {
	switch l {
	case LikelihoodRare, LikelihoodOccasional, LikelihoodFrequent:
		return true
	}
	return false
}

// Priority is the severity band derived from impact and likelihood.
// P0 is the most urgent.
type Priority string

const (
	PriorityP0 Priority = "P0"
	PriorityP1 Priority = "P1"
	PriorityP2 Priority = "P2"
	PriorityP3 Priority = "P3"
	PriorityP4 Priority = "P4"
)

// IsValid checks if the priority value is valid
func (p Priority) IsValid() bool {
	switch p {
	case PriorityP0, PriorityP1, PriorityP2, PriorityP3, PriorityP4:
		return true
	}
	return false
}

// IsBlocking reports whether reports of this priority can block a gate.
func (p Priority) IsBlocking() bool {
	return p == PriorityP0 || p == PriorityP1
}

// ReportStatus is the lifecycle state of a report.
type ReportStatus string

const (
	ReportStatusOpen          ReportStatus = "OPEN"
	ReportStatusInReview      ReportStatus = "IN_REVIEW"
	ReportStatusCAPAPending   ReportStatus = "CAPA_PENDING"
	ReportStatusCAPAApproved  ReportStatus = "CAPA_APPROVED"
	ReportStatusFixInProgress ReportStatus = "FIX_IN_PROGRESS"
	ReportStatusResolved      ReportStatus = "RESOLVED"
	ReportStatusClosedWontFix ReportStatus = "CLOSED_WONT_FIX"
)

// IsValid checks if the report status value is valid
func (s ReportStatus) IsValid() bool {
	switch s {
	case ReportStatusOpen, ReportStatusInReview, ReportStatusCAPAPending, ReportStatusCAPAApproved,
		ReportStatusFixInProgress, ReportStatusResolved, ReportStatusClosedWontFix:
		return true
	}
	return false
}

// IsTerminal reports whether no further transitions are possible.
func (s ReportStatus) IsTerminal() bool {
	return s == ReportStatusResolved || s == ReportStatusClosedWontFix
}

// ValidTransitions defines the report state machine.
//
// State Machine Diagram:
//
//	OPEN → IN_REVIEW → CAPA_PENDING → CAPA_APPROVED → FIX_IN_PROGRESS → RESOLVED
//	  ↓        ↓  ↑          ↓               ↓                ↓
//	  ↓        ↓  └──────────┴───────────────┴────────────────┘ (CAPA rejected/abandoned)
//	  └────────┴→ CLOSED_WONT_FIX
//
// OPEN may also jump straight to CAPA_PENDING when a CAPA is attached without review.
// Everything from CAPA_PENDING onward is driven by CAPA transitions only.
func (s ReportStatus) ValidTransitions() []ReportStatus {
	switch s {
	case ReportStatusOpen:
		return []ReportStatus{ReportStatusInReview, ReportStatusCAPAPending, ReportStatusClosedWontFix}
	case ReportStatusInReview:
		return []ReportStatus{ReportStatusCAPAPending, ReportStatusClosedWontFix}
	case ReportStatusCAPAPending:
		return []ReportStatus{ReportStatusCAPAApproved, ReportStatusInReview}
	case ReportStatusCAPAApproved:
		return []ReportStatus{ReportStatusFixInProgress, ReportStatusInReview}
	case ReportStatusFixInProgress:
		return []ReportStatus{ReportStatusResolved, ReportStatusInReview}
	default:
		return []ReportStatus{} // Terminal or unknown
	}
}

// CanTransitionTo checks if a transition from this state to the target state is valid
func (s ReportStatus) CanTransitionTo(target ReportStatus) bool {
	for _, valid := range s.ValidTransitions() {
		if valid == target {
			return true
		}
	}
	return false
}

// NonTerminalReportStatuses lists every state that keeps a signature open.
func NonTerminalReportStatuses() []ReportStatus {
	return []ReportStatus{
		ReportStatusOpen, ReportStatusInReview, ReportStatusCAPAPending,
		ReportStatusCAPAApproved, ReportStatusFixInProgress,
	}
}

// CAPAStatus is the lifecycle state of a remediation manifest.
type CAPAStatus string

const (
	CAPAStatusPending    CAPAStatus = "PENDING"
	CAPAStatusApproved   CAPAStatus = "APPROVED"
	CAPAStatusInProgress CAPAStatus = "IN_PROGRESS"
	CAPAStatusVerified   CAPAStatus = "VERIFIED"
	CAPAStatusRejected   CAPAStatus = "REJECTED"
	CAPAStatusAbandoned  CAPAStatus = "ABANDONED"

	// CAPAStatusNotCreated is reported by the gate for reports with no CAPA.
	// It is never persisted.
	CAPAStatusNotCreated CAPAStatus = "NOT_CREATED"
)

// IsValid checks if the CAPA status value is valid
func (s CAPAStatus) IsValid() bool {
	switch s {
	case CAPAStatusPending, CAPAStatusApproved, CAPAStatusInProgress,
		CAPAStatusVerified, CAPAStatusRejected, CAPAStatusAbandoned:
		return true
	}
	return false
}

// IsTerminal reports whether no further transitions are possible.
func (s CAPAStatus) IsTerminal() bool {
	return s == CAPAStatusVerified || s == CAPAStatusRejected || s == CAPAStatusAbandoned
}

// ValidTransitions defines the CAPA state machine.
//
// State Machine Diagram:
//
//	PENDING → APPROVED → IN_PROGRESS → VERIFIED
//	   ↓         ↓            ↓
//	REJECTED  ABANDONED   ABANDONED
//
// PENDING may also be abandoned directly.
func (s CAPAStatus) ValidTransitions() []CAPAStatus {
	switch s {
	case CAPAStatusPending:
		return []CAPAStatus{CAPAStatusApproved, CAPAStatusRejected, CAPAStatusAbandoned}
	case CAPAStatusApproved:
		return []CAPAStatus{CAPAStatusInProgress, CAPAStatusAbandoned}
	case CAPAStatusInProgress:
		return []CAPAStatus{CAPAStatusVerified, CAPAStatusAbandoned}
	default:
		return []CAPAStatus{}
	}
}

// CanTransitionTo checks if a transition from this state to the target state is valid
func (s CAPAStatus) CanTransitionTo(target CAPAStatus) bool {
	for _, valid := range s.ValidTransitions() {
		if valid == target {
			return true
		}
	}
	return false
}

// RootCauseCategory is the classification tag attached with a CAPA.
type RootCauseCategory string

const (
	CategoryTestCoverageGap       RootCauseCategory = "TEST_COVERAGE_GAP"
	CategoryCodeDefect            RootCauseCategory = "CODE_DEFECT"
	CategoryConfigError           RootCauseCategory = "CONFIG_ERROR"
	CategoryRequirementsAmbiguity RootCauseCategory = "REQUIREMENTS_AMBIGUITY"
	CategoryProcessGap            RootCauseCategory = "PROCESS_GAP"
	CategoryInfrastructure        RootCauseCategory = "INFRASTRUCTURE"
	CategoryEnvironmental         RootCauseCategory = "ENVIRONMENTAL"
	CategoryUnknown               RootCauseCategory = "UNKNOWN"
)

// IsValid accepts any upper-snake tag; the constants above are the known ones.
func (c RootCauseCategory) IsValid() bool {
	if c == "" || len(c) > 64 {
		return false
	}
	for _, r := range c {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') && r != '_' {
			return false
		}
	}
	return true
}

// PreventionStage names the upstream phase that should have caught a defect.
type PreventionStage string

const (
	StageLeadPreApproval PreventionStage = "LEAD_PRE_APPROVAL"
	StagePlanPRD         PreventionStage = "PLAN_PRD"
	StageExecImpl        PreventionStage = "EXEC_IMPL"
	StagePlanVerify      PreventionStage = "PLAN_VERIFY"
	StageNever           PreventionStage = "NEVER"
)
