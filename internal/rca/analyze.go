package rca

import (
	"context"
	"fmt"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/steveyegge/rcagov/internal/analysis"
	"github.com/steveyegge/rcagov/internal/events"
	"github.com/steveyegge/rcagov/internal/storage"
	"github.com/steveyegge/rcagov/internal/types"
)

// Analyze compares a report with the most recent reports of its scope type
// and stores the pattern matches, contributing factors and recommendations.
// Running it again replaces the stored analysis and counts the attempt.
// The report's status and category are left alone.
func (s *Service) Analyze(ctx context.Context, reportID, actor string) (result *types.Analysis, err error) {
	ctx, span := s.startSpan(ctx, "analyze", attribute.String("report_id", reportID))
	defer func() { endSpan(span, err) }()

	var report *types.Report
	err = s.store.WithTx(ctx, func(tx storage.Tx) error {
		r, err := tx.GetReport(ctx, reportID)
		if err != nil {
			return err
		}
		if r == nil {
			return &types.NotFoundError{Entity: types.EntityReport, ID: reportID}
		}
		report = r

		prior := 0
		previous, err := tx.GetAnalysis(ctx, reportID)
		if err != nil {
			return err
		}
		if previous != nil {
			prior = previous.Attempts
		}

		candidates, err := tx.ListPatternCandidates(ctx, reportID, report.ScopeType, analysis.HistoryLimit)
		if err != nil {
			return err
		}

		result = analysis.Analyze(report, InferCategory(report.TriggerSource, report.ScopeType), candidates, prior, s.now())
		if err := tx.UpsertAnalysis(ctx, result); err != nil {
			return err
		}

		oldPattern := ""
		if previous != nil {
			oldPattern = previous.PatternID
		}
		return recordEvent(ctx, tx, types.EntityReport, reportID, types.EventAnalyzed, actor,
			oldPattern, result.PatternID,
			fmt.Sprintf("%d similar report(s), %d recommendation(s)", len(result.PatternMatches), len(result.Recommendations)))
	})
	if err != nil {
		return nil, err
	}

	span.SetAttributes(
		attribute.String("pattern_id", result.PatternID),
		attribute.Int("matches", len(result.PatternMatches)))
	AnalysesTotal.WithLabelValues(strconv.FormatBool(result.PatternID != "")).Inc()
	s.logger.Info(ctx, "report analyzed",
		zap.String("report_id", reportID),
		zap.String("pattern_id", result.PatternID),
		zap.Int("matches", len(result.PatternMatches)),
		zap.Int("attempts", result.Attempts),
		zap.String("actor", actorOrSystem(actor)))
	if msg, err := events.NewAnalyzedEvent(result, report.ScopeID); err == nil {
		msg.Actor = actorOrSystem(actor)
		s.publish(ctx, msg)
	}
	return result, nil
}

// GetAnalysis returns the stored analysis of a report or a NotFoundError.
func (s *Service) GetAnalysis(ctx context.Context, reportID string) (*types.Analysis, error) {
	a, err := s.store.GetAnalysis(ctx, reportID)
	if err != nil {
		return nil, fmt.Errorf("failed to get analysis for report %s: %w", reportID, err)
	}
	if a == nil {
		return nil, &types.NotFoundError{Entity: types.EntityReport, ID: "analysis " + reportID}
	}
	return a, nil
}
