package events

import (
	"time"

	"github.com/steveyegge/rcagov/internal/types"
)

// EventType represents the kind of lifecycle change a message announces.
type EventType string

const (
	// Lifecycle events
	// EventTypeCreated indicates a report was opened or a CAPA attached
	EventTypeCreated EventType = "created"
	// EventTypeRecurred indicates an open report absorbed a re-detection
	EventTypeRecurred EventType = "recurred"
	// EventTypeStatusChanged indicates an operator or CAPA write moved an entity
	EventTypeStatusChanged EventType = "status_changed"
	// EventTypeCascaded indicates a CAPA transition moved its report
	EventTypeCascaded EventType = "cascaded"
	// EventTypeAnalyzed indicates a report was compared against its history
	EventTypeAnalyzed EventType = "analyzed"

	// Learning events
	// EventTypeLearningIngested indicates a resolved report was written to the corpus
	EventTypeLearningIngested EventType = "ingested"

	// Gate events
	// EventTypeGateBlocked indicates a handoff check was refused
	EventTypeGateBlocked EventType = "blocked"

	// Retention events
	// EventTypeEventCleanupCompleted indicates an audit pruning pass finished
	EventTypeEventCleanupCompleted EventType = "cleanup_completed"
)

// EventSeverity represents the severity level of a message.
type EventSeverity string

const (
	// SeverityInfo indicates informational events
	SeverityInfo EventSeverity = "info"
	// SeverityWarning indicates potentially problematic events
	SeverityWarning EventSeverity = "warning"
	// SeverityCritical indicates events that block a release
	SeverityCritical EventSeverity = "critical"
)

// Entity names used as the middle segment of a subject.
const (
	EntityReport   = string(types.EntityReport)
	EntityCAPA     = string(types.EntityCAPA)
	EntityLearning = string(types.EntityLearning)
	EntityGate     = "gate"
	EntityEvents   = "events"
)

// Message is the payload published after a lifecycle write commits.
// Subscribers receive it as JSON on <prefix>.<entity>.<type>.
type Message struct {
	// ID is the unique identifier for this message
	ID string `json:"id"`
	// Type is the type of event
	Type EventType `json:"type"`
	// Timestamp is when the change was committed
	Timestamp time.Time `json:"timestamp"`
	// EntityType is report, capa, learning, gate or events
	EntityType string `json:"entity_type"`
	// EntityID is the id of the record that changed (scope id for gate events)
	EntityID string `json:"entity_id"`
	// ScopeID is the failing unit the record belongs to, when known
	ScopeID string `json:"scope_id,omitempty"`
	// Actor is who made the change
	Actor string `json:"actor,omitempty"`
	// Severity is the severity level of this message
	Severity EventSeverity `json:"severity"`
	// Message is a human-readable description of the change
	Message string `json:"message"`
	// Data contains structured, type-specific data (must be JSON-serializable)
	Data map[string]interface{} `json:"data,omitempty"`
}

// ReportData contains structured data for report created/recurred events.
type ReportData struct {
	FailureSignature string         `json:"failure_signature"`
	Priority         types.Priority `json:"priority"`
	RecurrenceCount  int            `json:"recurrence_count"`
	Confidence       int            `json:"confidence"`
	TriggerCode      string         `json:"trigger_code,omitempty"`
}

// TransitionData contains structured data for status changes and cascades.
type TransitionData struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Reason string `json:"reason,omitempty"`
	// CAPAID is set when a CAPA write caused the change
	CAPAID string `json:"capa_id,omitempty"`
}

// AnalyzedData contains structured data for report analyses.
type AnalyzedData struct {
	PatternID           string                  `json:"pattern_id,omitempty"`
	Category            types.RootCauseCategory `json:"category"`
	MatchCount          int                     `json:"match_count"`
	RecommendationCount int                     `json:"recommendation_count"`
	Attempts            int                     `json:"attempts"`
}

// LearningIngestedData contains structured data for corpus writes.
type LearningIngestedData struct {
	RecordID        string                `json:"record_id"`
	Label           string                `json:"label"`
	DefectClass     string                `json:"defect_class"`
	Preventable     bool                  `json:"preventable"`
	PreventionStage types.PreventionStage `json:"prevention_stage"`
}

// GateBlockedData contains structured data for refused handoffs.
type GateBlockedData struct {
	ReasonCode  string   `json:"reason_code"`
	BlockingIDs []string `json:"blocking_ids"`
	P0Count     int      `json:"p0_count"`
	P1Count     int      `json:"p1_count"`
}

// EventCleanupCompletedData contains structured data for audit pruning passes.
type EventCleanupCompletedData struct {
	// EventsDeleted is the number of audit rows removed
	EventsDeleted int `json:"events_deleted"`
	// RetentionDays is the cutoff that was applied
	RetentionDays int `json:"retention_days"`
	// ProcessingTimeMs is how long the pass took
	ProcessingTimeMs int64 `json:"processing_time_ms"`
}
