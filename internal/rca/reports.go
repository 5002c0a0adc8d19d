package rca

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/steveyegge/rcagov/internal/deduplication"
	"github.com/steveyegge/rcagov/internal/events"
	"github.com/steveyegge/rcagov/internal/severity"
	"github.com/steveyegge/rcagov/internal/storage"
	"github.com/steveyegge/rcagov/internal/types"
)

// ReportInput is what a trigger source supplies for one detection.
type ReportInput struct {
	ScopeType types.ScopeType `json:"scope_type"`
	ScopeID   string          `json:"scope_id"`

	// TriggerCode names a registry entry. When set, it fills in source and
	// tier, plus impact and likelihood when those are empty.
	TriggerCode   string              `json:"trigger_code,omitempty"`
	TriggerSource types.TriggerSource `json:"trigger_source,omitempty"`
	TriggerTier   int                 `json:"trigger_tier,omitempty"`

	ProblemStatement string `json:"problem_statement"`

	// CauseKey is hashed into the failure signature instead of the problem statement
	CauseKey string `json:"cause_key,omitempty"`

	Observed map[string]any `json:"observed,omitempty"`
	Expected map[string]any `json:"expected,omitempty"`
	Evidence types.Evidence `json:"evidence"`

	ImpactLevel     types.ImpactLevel     `json:"impact_level,omitempty"`
	LikelihoodLevel types.LikelihoodLevel `json:"likelihood_level,omitempty"`

	DetectedAt        *time.Time `json:"detected_at,omitempty"`
	FirstOccurrenceAt *time.Time `json:"first_occurrence_at,omitempty"`

	Actor string `json:"actor,omitempty"`
}

// CreateResult is the outcome of CreateReport.
type CreateResult struct {
	Report *types.Report `json:"report"`

	// Created is false when the detection was folded into an open report
	Created bool `json:"created"`
}

// CreateReport records a detection. A new failure opens a report; a repeat
// of an open one increments its recurrence count and leaves its status alone.
func (s *Service) CreateReport(ctx context.Context, in ReportInput) (result *CreateResult, err error) {
	ctx, span := s.startSpan(ctx, "create_report",
		attribute.String("scope_id", in.ScopeID),
		attribute.String("trigger_code", in.TriggerCode))
	defer func() { endSpan(span, err) }()

	candidate, err := s.buildCandidate(ctx, in)
	if err != nil {
		return nil, err
	}

	actor := in.Actor
	outcome, err := s.dedup.InsertOrIncrement(ctx, s.store, candidate,
		func(ctx context.Context, tx storage.Tx, o *deduplication.Outcome) error {
			if o.Created {
				return recordEvent(ctx, tx, types.EntityReport, o.Report.ID, types.EventCreated, actor,
					"", string(o.Report.Status), o.Report.ProblemStatement)
			}
			return recordEvent(ctx, tx, types.EntityReport, o.Report.ID, types.EventRecurred, actor,
				strconv.Itoa(o.Report.RecurrenceCount-1), strconv.Itoa(o.Report.RecurrenceCount), "")
		})
	if err != nil {
		return nil, err
	}

	report := outcome.Report
	label := "recurred"
	if outcome.Created {
		label = "created"
	}
	ReportsTotal.WithLabelValues(label, string(report.SeverityPriority)).Inc()
	if outcome.ConflictRetries > 0 {
		DedupConflictRetries.Add(float64(outcome.ConflictRetries))
	}
	span.SetAttributes(
		attribute.String("report_id", report.ID),
		attribute.Bool("created", outcome.Created),
		attribute.Int("recurrence_count", report.RecurrenceCount))

	s.logger.Info(ctx, "report "+label,
		zap.String("report_id", report.ID),
		zap.String("scope_id", report.ScopeID),
		zap.String("priority", string(report.SeverityPriority)),
		zap.Int("recurrence_count", report.RecurrenceCount))

	msg, err := events.NewReportEvent(report, outcome.Created)
	if err != nil {
		s.logger.Warn(ctx, "failed to build report event", zap.Error(err))
	} else {
		msg.Actor = actorOrSystem(actor)
		s.publish(ctx, msg)
	}

	return &CreateResult{Report: report, Created: outcome.Created}, nil
}

// buildCandidate validates input and derives priority, signature and redacted evidence.
func (s *Service) buildCandidate(ctx context.Context, in ReportInput) (*types.Report, error) {
	r := &types.Report{
		ScopeType:        in.ScopeType,
		ScopeID:          strings.TrimSpace(in.ScopeID),
		TriggerSource:    in.TriggerSource,
		TriggerTier:      in.TriggerTier,
		TriggerCode:      in.TriggerCode,
		ProblemStatement: strings.TrimSpace(in.ProblemStatement),
		Observed:         in.Observed,
		Expected:         in.Expected,
		Evidence:         in.Evidence,
		ImpactLevel:      in.ImpactLevel,
		LikelihoodLevel:  in.LikelihoodLevel,
	}

	if in.TriggerCode != "" {
		trig, ok := s.triggers.Lookup(in.TriggerCode)
		if !ok {
			return nil, types.NewValidationError("trigger_code", fmt.Sprintf("unknown trigger code: %q", in.TriggerCode))
		}
		if r.TriggerSource == "" {
			r.TriggerSource = trig.Source
		}
		if r.TriggerTier == 0 {
			r.TriggerTier = trig.Tier
		}
		if r.ImpactLevel == "" {
			r.ImpactLevel = trig.DefaultImpact
		}
		if r.LikelihoodLevel == "" {
			r.LikelihoodLevel = trig.DefaultLikelihood
		}
	}

	if err := r.Validate(); err != nil {
		return nil, err
	}

	priority, err := severity.Classify(r.ImpactLevel, r.LikelihoodLevel)
	if err != nil {
		return nil, err
	}
	r.SeverityPriority = priority

	redacted, findings := s.redactor.RedactEvidence(r.Evidence)
	r.Evidence = redacted
	for _, f := range findings {
		RedactionsTotal.WithLabelValues(f.RuleID).Inc()
	}
	if len(findings) > 0 {
		s.logger.Info(ctx, "redacted secrets from evidence",
			zap.String("scope_id", r.ScopeID),
			zap.Int("findings", len(findings)))
	}

	cause := strings.TrimSpace(in.CauseKey)
	if cause == "" {
		cause = r.ProblemStatement
	}
	r.FailureSignature = s.dedup.Signature(r.ScopeType, r.ScopeID, cause)

	if in.DetectedAt != nil {
		r.DetectedAt = in.DetectedAt.UTC()
	} else {
		r.DetectedAt = s.now().UTC()
	}
	if in.FirstOccurrenceAt != nil {
		if in.FirstOccurrenceAt.After(r.DetectedAt) {
			return nil, types.NewValidationError("first_occurrence_at", "first_occurrence_at cannot be after detected_at")
		}
		r.FirstOccurrenceAt = in.FirstOccurrenceAt.UTC()
	}
	return r, nil
}

// StartReview moves an OPEN report to IN_REVIEW.
func (s *Service) StartReview(ctx context.Context, id, actor string) (report *types.Report, err error) {
	ctx, span := s.startSpan(ctx, "start_review", attribute.String("report_id", id))
	defer func() { endSpan(span, err) }()

	return s.operatorTransition(ctx, id, actor, types.ReportStatusInReview, "",
		[]types.ReportStatus{types.ReportStatusOpen})
}

// CloseWontFix closes a report without remediation. Only OPEN and IN_REVIEW
// reports qualify; an active CAPA must be rejected or abandoned first.
func (s *Service) CloseWontFix(ctx context.Context, id, actor, reason string) (report *types.Report, err error) {
	ctx, span := s.startSpan(ctx, "close_wont_fix", attribute.String("report_id", id))
	defer func() { endSpan(span, err) }()

	if strings.TrimSpace(reason) == "" {
		return nil, types.NewValidationError("reason", "a reason is required to close without a fix")
	}
	return s.operatorTransition(ctx, id, actor, types.ReportStatusClosedWontFix, reason,
		[]types.ReportStatus{types.ReportStatusOpen, types.ReportStatusInReview})
}

// operatorTransition applies a report transition that no CAPA drives.
func (s *Service) operatorTransition(ctx context.Context, id, actor string, to types.ReportStatus, comment string, allowed []types.ReportStatus) (*types.Report, error) {
	var (
		updated *types.Report
		from    types.ReportStatus
	)
	err := s.store.WithTx(ctx, func(tx storage.Tx) error {
		current, err := tx.GetReport(ctx, id)
		if err != nil {
			return err
		}
		if current == nil {
			return &types.NotFoundError{Entity: types.EntityReport, ID: id}
		}
		from = current.Status

		if !statusIn(from, allowed) || !from.CanTransitionTo(to) {
			return &types.InvalidTransitionError{
				Entity: types.EntityReport, ID: id, From: string(from), To: string(to),
				Reason: "not an operator transition from this state",
			}
		}

		active, err := tx.GetActiveCAPA(ctx, id)
		if err != nil {
			return err
		}
		if active != nil {
			return &types.InvalidTransitionError{
				Entity: types.EntityReport, ID: id, From: string(from), To: string(to),
				Reason: fmt.Sprintf("CAPA %s is %s; reject or abandon it first", active.ID, active.Status),
			}
		}

		if err := tx.UpdateReportStatus(ctx, id, from, to, nil); err != nil {
			return err
		}
		if err := recordEvent(ctx, tx, types.EntityReport, id, types.EventStatusChanged, actor,
			string(from), string(to), comment); err != nil {
			return err
		}
		updated, err = tx.GetReport(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	TransitionsTotal.WithLabelValues(string(types.EntityReport), string(to)).Inc()
	s.logger.Info(ctx, "report transitioned",
		zap.String("report_id", id),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.String("actor", actorOrSystem(actor)))

	msg, err := events.NewTransitionEvent(events.EventTypeStatusChanged, events.EntityReport, id, updated.ScopeID,
		actorOrSystem(actor), events.TransitionData{From: string(from), To: string(to), Reason: comment})
	if err == nil {
		s.publish(ctx, msg)
	}
	return updated, nil
}

func statusIn(s types.ReportStatus, set []types.ReportStatus) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

// GetReport returns a report or a NotFoundError.
func (s *Service) GetReport(ctx context.Context, id string) (*types.Report, error) {
	r, err := s.store.GetReport(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get report %s: %w", id, err)
	}
	if r == nil {
		return nil, &types.NotFoundError{Entity: types.EntityReport, ID: id}
	}
	return r, nil
}

// ListReports returns reports matching filter, most recently detected first.
func (s *Service) ListReports(ctx context.Context, filter types.ReportFilter) ([]*types.Report, error) {
	if filter.Status != nil && !filter.Status.IsValid() {
		return nil, types.NewValidationError("status", fmt.Sprintf("invalid report status: %q", *filter.Status))
	}
	if filter.Priority != nil && !filter.Priority.IsValid() {
		return nil, types.NewValidationError("priority", fmt.Sprintf("invalid priority: %q", *filter.Priority))
	}
	reports, err := s.store.ListReports(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	return reports, nil
}

// ListEvents returns the audit trail, most recent first.
func (s *Service) ListEvents(ctx context.Context, filter types.EventFilter) ([]*types.Event, error) {
	evs, err := s.store.ListEvents(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	return evs, nil
}
