package events

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/steveyegge/rcagov/internal/types"
)

func newMessage(eventType EventType, entityType, entityID, scopeID, actor string, severity EventSeverity, message string) *Message {
	return &Message{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now(),
		EntityType: entityType,
		EntityID:   entityID,
		ScopeID:    scopeID,
		Actor:      actor,
		Severity:   severity,
		Message:    message,
	}
}

// NewReportEvent creates a created or recurred message for report with type-safe data.
func NewReportEvent(report *types.Report, created bool) (*Message, error) {
	eventType := EventTypeRecurred
	msg := fmt.Sprintf("Report %s recurred (%d occurrences)", report.ID, report.RecurrenceCount)
	if created {
		eventType = EventTypeCreated
		msg = fmt.Sprintf("Report %s opened at %s", report.ID, report.SeverityPriority)
	}
	severity := SeverityInfo
	if report.SeverityPriority.IsBlocking() {
		severity = SeverityWarning
	}

	event := newMessage(eventType, EntityReport, report.ID, report.ScopeID, "", severity, msg)
	if err := event.SetReportData(ReportData{
		FailureSignature: report.FailureSignature,
		Priority:         report.SeverityPriority,
		RecurrenceCount:  report.RecurrenceCount,
		Confidence:       report.Confidence,
		TriggerCode:      report.TriggerCode,
	}); err != nil {
		return nil, err
	}
	return event, nil
}

// NewTransitionEvent creates a status_changed or cascaded message with type-safe data.
func NewTransitionEvent(eventType EventType, entityType, entityID, scopeID, actor string, data TransitionData) (*Message, error) {
	msg := fmt.Sprintf("%s %s: %s -> %s", entityType, entityID, data.From, data.To)
	event := newMessage(eventType, entityType, entityID, scopeID, actor, SeverityInfo, msg)
	if err := event.SetTransitionData(data); err != nil {
		return nil, err
	}
	return event, nil
}

// NewAnalyzedEvent creates a message for a stored report analysis with type-safe data.
// A report that joined a pattern is announced as a warning.
func NewAnalyzedEvent(a *types.Analysis, scopeID string) (*Message, error) {
	severity := SeverityInfo
	msg := fmt.Sprintf("Report %s analyzed: no similar reports", a.RCRID)
	if a.PatternID != "" {
		severity = SeverityWarning
		msg = fmt.Sprintf("Report %s analyzed: matches pattern %s (%d similar)", a.RCRID, a.PatternID, len(a.PatternMatches))
	}
	event := newMessage(EventTypeAnalyzed, EntityReport, a.RCRID, scopeID, "", severity, msg)
	if err := event.SetAnalyzedData(AnalyzedData{
		PatternID:           a.PatternID,
		Category:            a.RootCauseCategory,
		MatchCount:          len(a.PatternMatches),
		RecommendationCount: len(a.Recommendations),
		Attempts:            a.Attempts,
	}); err != nil {
		return nil, err
	}
	return event, nil
}

// NewLearningIngestedEvent creates a message for a corpus write with type-safe data.
func NewLearningIngestedEvent(record *types.LearningRecord, scopeID string) (*Message, error) {
	msg := fmt.Sprintf("Learning record %s ingested: %s", record.ID, record.Label)
	event := newMessage(EventTypeLearningIngested, EntityLearning, record.RCRID, scopeID, "", SeverityInfo, msg)
	if err := event.SetLearningIngestedData(LearningIngestedData{
		RecordID:        record.ID,
		Label:           record.Label,
		DefectClass:     record.DefectClass,
		Preventable:     record.Preventable,
		PreventionStage: record.PreventionStage,
	}); err != nil {
		return nil, err
	}
	return event, nil
}

// NewGateBlockedEvent creates a message for a refused handoff with type-safe data.
func NewGateBlockedEvent(scopeID string, data GateBlockedData) (*Message, error) {
	msg := fmt.Sprintf("Handoff for %s blocked by %d report(s)", scopeID, len(data.BlockingIDs))
	event := newMessage(EventTypeGateBlocked, EntityGate, scopeID, scopeID, "", SeverityCritical, msg)
	if err := event.SetGateBlockedData(data); err != nil {
		return nil, err
	}
	return event, nil
}

// NewEventCleanupCompletedEvent creates a message for an audit pruning pass with type-safe data.
func NewEventCleanupCompletedEvent(data EventCleanupCompletedData) (*Message, error) {
	msg := fmt.Sprintf("Pruned %d audit events older than %d days", data.EventsDeleted, data.RetentionDays)
	event := newMessage(EventTypeEventCleanupCompleted, EntityEvents, "retention", "", "", SeverityInfo, msg)
	if err := event.SetEventCleanupCompletedData(data); err != nil {
		return nil, err
	}
	return event, nil
}
