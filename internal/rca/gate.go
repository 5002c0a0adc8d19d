package rca

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/steveyegge/rcagov/internal/events"
	"github.com/steveyegge/rcagov/internal/gates"
)

// EvaluateGate returns the gate verdict for a scope. A blocked gate is a
// result, not an error.
func (s *Service) EvaluateGate(ctx context.Context, scopeID string) (result *gates.Result, err error) {
	ctx, span := s.startSpan(ctx, "evaluate_gate", attribute.String("scope_id", scopeID))
	defer func() { endSpan(span, err) }()

	start := time.Now()
	result, err = s.gates.Evaluate(ctx, scopeID)
	GateEvaluationDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}

	verdict := "pass"
	if !result.Pass {
		verdict = "blocked"
	}
	GateEvaluationsTotal.WithLabelValues(verdict).Inc()
	span.SetAttributes(
		attribute.Bool("pass", result.Pass),
		attribute.Int("blocking", len(result.Blocking)))
	s.logger.Debug(ctx, "gate evaluated",
		zap.String("scope_id", scopeID),
		zap.String("verdict", verdict),
		zap.Int("blocking", len(result.Blocking)))
	return result, nil
}

// RequirePass re-evaluates the gate and returns a *gates.BlockedError when
// it is closed. Handoff controllers call it immediately before acting.
func (s *Service) RequirePass(ctx context.Context, scopeID string) error {
	result, err := s.EvaluateGate(ctx, scopeID)
	if err != nil {
		return err
	}
	if result.Pass {
		return nil
	}

	blocked := &gates.BlockedError{
		ReasonCode: gates.ReasonGateBlocked,
		ScopeID:    scopeID,
		Blocking:   result.Blocking,
	}
	HandoffsBlocked.Inc()
	s.logger.Info(ctx, "handoff blocked",
		zap.String("scope_id", scopeID),
		zap.String("reason_code", blocked.ReasonCode),
		zap.Int("blocking", len(result.Blocking)))

	ids := make([]string, 0, len(result.Blocking))
	for _, b := range result.Blocking {
		ids = append(ids, b.ID)
	}
	if msg, err := events.NewGateBlockedEvent(scopeID, events.GateBlockedData{
		ReasonCode:  blocked.ReasonCode,
		BlockingIDs: ids,
		P0Count:     result.P0Count,
		P1Count:     result.P1Count,
	}); err == nil {
		s.publish(ctx, msg)
	}
	return blocked
}

// IsBlocked reports whether err is a gate block.
func IsBlocked(err error) bool {
	var blocked *gates.BlockedError
	return errors.As(err, &blocked)
}
