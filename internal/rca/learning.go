package rca

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/steveyegge/rcagov/internal/events"
	"github.com/steveyegge/rcagov/internal/learning"
	"github.com/steveyegge/rcagov/internal/storage"
	"github.com/steveyegge/rcagov/internal/types"
)

// Ingest writes the learning record for a RESOLVED report. Verify already
// does this; Ingest is the admin path for reports resolved before the
// corpus existed. A report that is already in the corpus returns
// ErrAlreadyIngested and nothing is written.
func (s *Service) Ingest(ctx context.Context, rcrID, actor string) (record *types.LearningRecord, err error) {
	ctx, span := s.startSpan(ctx, "ingest", attribute.String("report_id", rcrID))
	defer func() { endSpan(span, err) }()

	var report *types.Report
	err = s.store.WithTx(ctx, func(tx storage.Tx) error {
		r, err := tx.GetReport(ctx, rcrID)
		if err != nil {
			return err
		}
		if r == nil {
			return &types.NotFoundError{Entity: types.EntityReport, ID: rcrID}
		}
		report = r

		existing, err := tx.GetLearningRecord(ctx, rcrID)
		if err != nil {
			return err
		}
		if existing != nil {
			return ErrAlreadyIngested
		}

		capa, err := tx.GetActiveCAPA(ctx, rcrID)
		if err != nil {
			return err
		}
		rec, err := learning.Ingest(report, capa, s.now().UTC())
		if err != nil {
			return err
		}
		record = rec
		if err := tx.InsertLearningRecord(ctx, record); err != nil {
			if errors.Is(err, storage.ErrUniqueViolation) {
				return ErrAlreadyIngested
			}
			return err
		}
		return recordEvent(ctx, tx, types.EntityLearning, record.ID, types.EventIngested, actor,
			"", record.Label, "report "+rcrID)
	})
	if err != nil {
		return nil, err
	}

	LearningRecordsTotal.WithLabelValues(strconv.FormatBool(record.Preventable)).Inc()
	s.logger.Info(ctx, "learning record ingested",
		zap.String("report_id", rcrID),
		zap.String("label", record.Label),
		zap.String("actor", actorOrSystem(actor)))
	if msg, err := events.NewLearningIngestedEvent(record, report.ScopeID); err == nil {
		msg.Actor = actorOrSystem(actor)
		s.publish(ctx, msg)
	}
	return record, nil
}

// GetLearningRecord returns the corpus entry for a report or a NotFoundError.
func (s *Service) GetLearningRecord(ctx context.Context, rcrID string) (*types.LearningRecord, error) {
	rec, err := s.store.GetLearningRecord(ctx, rcrID)
	if err != nil {
		return nil, fmt.Errorf("failed to get learning record for %s: %w", rcrID, err)
	}
	if rec == nil {
		return nil, &types.NotFoundError{Entity: types.EntityLearning, ID: rcrID}
	}
	return rec, nil
}

// ListLearningRecords returns corpus entries, newest first.
func (s *Service) ListLearningRecords(ctx context.Context, filter types.LearningFilter) ([]*types.LearningRecord, error) {
	recs, err := s.store.ListLearningRecords(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list learning records: %w", err)
	}
	return recs, nil
}
