package rca

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/steveyegge/rcagov/internal/cascade"
	"github.com/steveyegge/rcagov/internal/events"
	"github.com/steveyegge/rcagov/internal/learning"
	"github.com/steveyegge/rcagov/internal/storage"
	"github.com/steveyegge/rcagov/internal/types"
)

// CAPAInput is a proposed remediation for one report.
type CAPAInput struct {
	RCRID string `json:"rcr_id"`

	// RootCauseCategory defaults to InferCategory of the report's trigger and scope
	RootCauseCategory types.RootCauseCategory `json:"root_cause_category,omitempty"`

	ProposedChanges  types.ProposedChanges  `json:"proposed_changes"`
	VerificationPlan types.VerificationPlan `json:"verification_plan"`
	RiskScore        int                    `json:"risk_score"`

	// AffectedSDCount defaults to 1
	AffectedSDCount int `json:"affected_sd_count,omitempty"`

	Actor string `json:"actor,omitempty"`
}

// capaChange is what one committed CAPA write did, for logging and publishing.
type capaChange struct {
	capa     *types.CAPA
	report   *types.Report
	from     types.CAPAStatus
	reportTo types.ReportStatus
	// reportFrom is the report status before the cascade
	reportFrom types.ReportStatus
	record     *types.LearningRecord
}

func newCAPAID() string {
	return "capa-" + uuid.New().String()
}

// CreateCAPA attaches a PENDING CAPA to an OPEN or IN_REVIEW report that has
// no active CAPA, and cascades the report to CAPA_PENDING.
func (s *Service) CreateCAPA(ctx context.Context, in CAPAInput) (capa *types.CAPA, err error) {
	ctx, span := s.startSpan(ctx, "create_capa", attribute.String("report_id", in.RCRID))
	defer func() { endSpan(span, err) }()

	now := s.now().UTC()
	c := &types.CAPA{
		ID:                newCAPAID(),
		RCRID:             strings.TrimSpace(in.RCRID),
		RootCauseCategory: in.RootCauseCategory,
		ProposedChanges:   in.ProposedChanges,
		VerificationPlan:  in.VerificationPlan,
		RiskScore:         in.RiskScore,
		AffectedSDCount:   in.AffectedSDCount,
		Status:            types.CAPAStatusPending,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if c.AffectedSDCount == 0 {
		c.AffectedSDCount = 1
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}

	change := &capaChange{capa: c, reportTo: types.ReportStatusCAPAPending}
	err = s.store.WithTx(ctx, func(tx storage.Tx) error {
		report, err := tx.GetReport(ctx, c.RCRID)
		if err != nil {
			return err
		}
		if report == nil {
			return &types.NotFoundError{Entity: types.EntityReport, ID: c.RCRID}
		}

		active, err := tx.GetActiveCAPA(ctx, report.ID)
		if err != nil {
			return err
		}
		if active != nil {
			return &types.InvalidTransitionError{
				Entity: types.EntityCAPA, ID: active.ID, From: string(active.Status), To: string(types.CAPAStatusPending),
				Reason: fmt.Sprintf("report %s already has an active CAPA", report.ID),
			}
		}

		if c.RootCauseCategory == "" {
			c.RootCauseCategory = InferCategory(report.TriggerSource, report.ScopeType)
		}
		if err := tx.InsertCAPA(ctx, c); err != nil {
			if errors.Is(err, storage.ErrUniqueViolation) {
				return &types.InvalidTransitionError{
					Entity: types.EntityCAPA, ID: c.ID, To: string(types.CAPAStatusPending),
					Reason: fmt.Sprintf("report %s already has an active CAPA", report.ID),
				}
			}
			return err
		}
		if err := tx.SetReportCategory(ctx, report.ID, c.RootCauseCategory); err != nil {
			return err
		}
		if err := recordEvent(ctx, tx, types.EntityCAPA, c.ID, types.EventCreated, in.Actor,
			"", string(c.Status), string(c.RootCauseCategory)); err != nil {
			return err
		}
		return s.applyCascade(ctx, tx, c, in.Actor, change)
	})
	if err != nil {
		return nil, err
	}

	s.afterCAPAWrite(ctx, in.Actor, change)
	return c, nil
}

// Approve moves a PENDING CAPA to APPROVED. At least one action must be proposed.
func (s *Service) Approve(ctx context.Context, id, actor string) (*types.CAPA, error) {
	return s.transitionCAPA(ctx, "approve_capa", id, actor, types.CAPAStatusApproved, func(c *types.CAPA, now time.Time) error {
		if c.ProposedChanges.IsEmpty() {
			return types.NewValidationError("proposed_changes",
				fmt.Sprintf("CAPA %s has no corrective or preventive action to approve", c.ID))
		}
		c.ApprovedAt = &now
		return nil
	})
}

// StartWork moves an APPROVED CAPA to IN_PROGRESS.
func (s *Service) StartWork(ctx context.Context, id, actor string) (*types.CAPA, error) {
	return s.transitionCAPA(ctx, "start_capa", id, actor, types.CAPAStatusInProgress, nil)
}

// Verify moves an IN_PROGRESS CAPA to VERIFIED, resolves its report and
// writes the report's learning record, all in one transaction. The
// verification plan must name at least one success criterion.
func (s *Service) Verify(ctx context.Context, id, actor, notes string) (*types.CAPA, error) {
	return s.transitionCAPA(ctx, "verify_capa", id, actor, types.CAPAStatusVerified, func(c *types.CAPA, now time.Time) error {
		if !c.VerificationPlan.HasSuccessCriteria() {
			return &types.InvalidTransitionError{
				Entity: types.EntityCAPA, ID: c.ID, From: string(c.Status), To: string(types.CAPAStatusVerified),
				Reason: "verification_plan has no success criteria",
			}
		}
		c.VerifiedAt = &now
		c.VerificationNotes = notes
		return nil
	})
}

// Reject moves a PENDING CAPA to REJECTED and returns the report to IN_REVIEW.
func (s *Service) Reject(ctx context.Context, id, actor, reason string) (*types.CAPA, error) {
	return s.transitionCAPA(ctx, "reject_capa", id, actor, types.CAPAStatusRejected, func(c *types.CAPA, _ time.Time) error {
		c.RejectionReason = reason
		return nil
	})
}

// Abandon stops a non-terminal CAPA and returns the report to IN_REVIEW.
func (s *Service) Abandon(ctx context.Context, id, actor, reason string) (*types.CAPA, error) {
	return s.transitionCAPA(ctx, "abandon_capa", id, actor, types.CAPAStatusAbandoned, func(c *types.CAPA, _ time.Time) error {
		c.RejectionReason = reason
		return nil
	})
}

// transitionCAPA runs one CAPA state change and its cascade in a single transaction.
// prepare checks preconditions and stamps fields on the loaded CAPA.
func (s *Service) transitionCAPA(ctx context.Context, op, id, actor string, to types.CAPAStatus, prepare func(c *types.CAPA, now time.Time) error) (capa *types.CAPA, err error) {
	ctx, span := s.startSpan(ctx, op, attribute.String("capa_id", id), attribute.String("to", string(to)))
	defer func() { endSpan(span, err) }()

	change := &capaChange{}
	err = s.store.WithTx(ctx, func(tx storage.Tx) error {
		c, err := tx.GetCAPA(ctx, id)
		if err != nil {
			return err
		}
		if c == nil {
			return &types.NotFoundError{Entity: types.EntityCAPA, ID: id}
		}
		from := c.Status
		if !from.CanTransitionTo(to) {
			return &types.InvalidTransitionError{Entity: types.EntityCAPA, ID: id, From: string(from), To: string(to)}
		}

		if prepare != nil {
			if err := prepare(c, s.now().UTC()); err != nil {
				return err
			}
		}
		c.Status = to
		if err := tx.UpdateCAPA(ctx, c, from); err != nil {
			return err
		}

		comment := c.VerificationNotes
		if to == types.CAPAStatusRejected || to == types.CAPAStatusAbandoned {
			comment = c.RejectionReason
		}
		if err := recordEvent(ctx, tx, types.EntityCAPA, id, types.EventStatusChanged, actor,
			string(from), string(to), comment); err != nil {
			return err
		}

		change.capa = c
		change.from = from
		return s.applyCascade(ctx, tx, c, actor, change)
	})
	if err != nil {
		return nil, err
	}

	s.afterCAPAWrite(ctx, actor, change)
	return change.capa, nil
}

// applyCascade moves the owning report as the rule table dictates and, on
// verification, writes its learning record. Runs inside the CAPA write tx.
func (s *Service) applyCascade(ctx context.Context, tx storage.Tx, c *types.CAPA, actor string, change *capaChange) error {
	report, err := tx.GetReport(ctx, c.RCRID)
	if err != nil {
		return err
	}
	if report == nil {
		return &types.NotFoundError{Entity: types.EntityReport, ID: c.RCRID}
	}

	effect, err := cascade.Propagate(c.Status, report.Status)
	if err != nil {
		var ite *types.InvalidTransitionError
		if errors.As(err, &ite) {
			ite.ID = report.ID
		}
		return err
	}

	var resolvedAt *time.Time
	if effect.StampResolved {
		now := s.now().UTC()
		resolvedAt = &now
	}
	if err := tx.UpdateReportStatus(ctx, report.ID, report.Status, effect.Target, resolvedAt); err != nil {
		return err
	}
	if err := recordEvent(ctx, tx, types.EntityReport, report.ID, types.EventCascaded, actor,
		string(report.Status), string(effect.Target), "capa "+c.ID+" "+string(c.Status)); err != nil {
		return err
	}

	change.reportFrom = report.Status
	change.reportTo = effect.Target

	updated, err := tx.GetReport(ctx, report.ID)
	if err != nil {
		return err
	}
	change.report = updated

	if !effect.Ingest {
		return nil
	}
	existing, err := tx.GetLearningRecord(ctx, report.ID)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}
	record, err := learning.Ingest(updated, c, s.now().UTC())
	if err != nil {
		return err
	}
	if err := tx.InsertLearningRecord(ctx, record); err != nil {
		return err
	}
	if err := recordEvent(ctx, tx, types.EntityLearning, record.ID, types.EventIngested, actor,
		"", record.Label, "report "+report.ID); err != nil {
		return err
	}
	change.record = record
	return nil
}

// afterCAPAWrite logs, counts and publishes a committed CAPA change.
func (s *Service) afterCAPAWrite(ctx context.Context, actor string, change *capaChange) {
	c := change.capa
	actor = actorOrSystem(actor)

	TransitionsTotal.WithLabelValues(string(types.EntityCAPA), string(c.Status)).Inc()
	TransitionsTotal.WithLabelValues(string(types.EntityReport), string(change.reportTo)).Inc()

	s.logger.Info(ctx, "capa transitioned",
		zap.String("capa_id", c.ID),
		zap.String("report_id", c.RCRID),
		zap.String("from", string(change.from)),
		zap.String("to", string(c.Status)),
		zap.String("report_status", string(change.reportTo)),
		zap.String("actor", actor))

	scopeID := ""
	if change.report != nil {
		scopeID = change.report.ScopeID
	}

	var msgs []*events.Message
	eventType := events.EventTypeStatusChanged
	if change.from == "" {
		eventType = events.EventTypeCreated
	}
	if msg, err := events.NewTransitionEvent(eventType, events.EntityCAPA, c.ID, scopeID, actor,
		events.TransitionData{From: string(change.from), To: string(c.Status), Reason: c.RejectionReason}); err == nil {
		msgs = append(msgs, msg)
	}
	if msg, err := events.NewTransitionEvent(events.EventTypeCascaded, events.EntityReport, c.RCRID, scopeID, actor,
		events.TransitionData{From: string(change.reportFrom), To: string(change.reportTo), CAPAID: c.ID}); err == nil {
		msgs = append(msgs, msg)
	}

	if change.record != nil {
		LearningRecordsTotal.WithLabelValues(strconv.FormatBool(change.record.Preventable)).Inc()
		s.logger.Info(ctx, "learning record ingested",
			zap.String("report_id", c.RCRID),
			zap.String("label", change.record.Label))
		if msg, err := events.NewLearningIngestedEvent(change.record, scopeID); err == nil {
			msgs = append(msgs, msg)
		}
	}

	s.publish(ctx, msgs...)
}

// GetCAPA returns a CAPA or a NotFoundError.
func (s *Service) GetCAPA(ctx context.Context, id string) (*types.CAPA, error) {
	c, err := s.store.GetCAPA(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get capa %s: %w", id, err)
	}
	if c == nil {
		return nil, &types.NotFoundError{Entity: types.EntityCAPA, ID: id}
	}
	return c, nil
}

// GetCAPAForReport returns the active CAPA for a report, else its most recent one.
func (s *Service) GetCAPAForReport(ctx context.Context, rcrID string) (*types.CAPA, error) {
	c, err := s.store.GetCAPAForReport(ctx, rcrID)
	if err != nil {
		return nil, fmt.Errorf("failed to get capa for report %s: %w", rcrID, err)
	}
	if c == nil {
		return nil, &types.NotFoundError{Entity: types.EntityCAPA, ID: "report " + rcrID}
	}
	return c, nil
}

// ListCAPAs returns every CAPA ever attached to a report, oldest first.
func (s *Service) ListCAPAs(ctx context.Context, rcrID string) ([]*types.CAPA, error) {
	capas, err := s.store.ListCAPAs(ctx, rcrID)
	if err != nil {
		return nil, fmt.Errorf("failed to list capas for report %s: %w", rcrID, err)
	}
	return capas, nil
}
