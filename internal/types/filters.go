package types

import "time"

// ReportFilter narrows report listings. Zero values match everything.
type ReportFilter struct {
	ScopeID  string
	Status   *ReportStatus
	Priority *Priority
	OpenOnly bool
	Limit    int
}

// LearningFilter narrows learning record listings.
type LearningFilter struct {
	RootCauseCategory RootCauseCategory
	PreventableOnly   bool
	Limit             int
}

// EventFilter narrows audit event listings.
type EventFilter struct {
	EntityID   string
	EntityType EntityType
	Limit      int
}

// GateCandidate is an open P0/P1 report paired with the status of its
// governing CAPA. CAPAID is empty when no CAPA was ever attached.
type GateCandidate struct {
	ReportID         string       `json:"report_id"`
	Priority         Priority     `json:"priority"`
	ProblemStatement string       `json:"problem_statement"`
	ReportStatus     ReportStatus `json:"report_status"`
	CAPAID           string       `json:"capa_id,omitempty"`
	CAPAStatus       CAPAStatus   `json:"capa_status"`
}

// ScopeCounts is the per-scope tally the gate reports alongside its verdict.
type ScopeCounts struct {
	Open int `json:"open"`
	P0   int `json:"p0"`
	P1   int `json:"p1"`
}

// AnalyticsSummary aggregates report counts across all scopes.
type AnalyticsSummary struct {
	Total         int                  `json:"total"`
	Open          int                  `json:"open"`
	Resolved      int                  `json:"resolved"`
	ClosedWontFix int                  `json:"closed_wont_fix"`
	P0Open        int                  `json:"p0_open"`
	P1Open        int                  `json:"p1_open"`
	AvgConfidence float64              `json:"avg_confidence"`
	ByStatus      map[ReportStatus]int `json:"by_status"`
	ByPriority    map[Priority]int     `json:"by_priority"`
}

// RecurrencePattern groups every report ever opened for one signature.
type RecurrencePattern struct {
	FailureSignature string    `json:"failure_signature"`
	ScopeType        ScopeType `json:"scope_type"`
	ReportCount      int       `json:"report_count"`
	OccurrenceCount  int       `json:"occurrence_count"`
	OpenCount        int       `json:"open_count"`
	LastDetectedAt   time.Time `json:"last_detected_at"`
}
