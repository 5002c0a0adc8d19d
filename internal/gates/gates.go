// Package gates evaluates whether a scope may hand off to its next phase.
//
// A scope is blocked while it has an open P0 or P1 report whose active CAPA
// is not VERIFIED. Evaluation reads one snapshot, so the blocking list and
// the counts always agree, but a pass can still go stale before the caller
// acts on it; RequirePass re-evaluates on every call to keep that window short.
package gates

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/steveyegge/rcagov/internal/storage"
	"github.com/steveyegge/rcagov/internal/types"
)

// ReasonGateBlocked is the handoff rejection code for a blocked gate.
const ReasonGateBlocked = "RCA_GATE_BLOCKED"

// BlockingReport is an open report holding a gate closed.
type BlockingReport struct {
	ID               string           `json:"id"`
	Priority         types.Priority   `json:"priority"`
	ProblemStatement string           `json:"problem_statement"`
	CAPAStatus       types.CAPAStatus `json:"capa_status"`
}

// CAPASummary tallies the CAPA state of the scope's open P0/P1 reports.
type CAPASummary struct {
	Verified   int `json:"verified"`
	Pending    int `json:"pending"`
	NotCreated int `json:"not_created"`
}

// Result is the outcome of a gate evaluation. A blocked gate is a result,
// not an error.
type Result struct {
	Pass        bool             `json:"pass"`
	ScopeID     string           `json:"scope_id"`
	OpenCount   int              `json:"open_count"`
	P0Count     int              `json:"p0_count"`
	P1Count     int              `json:"p1_count"`
	Blocking    []BlockingReport `json:"blocking"`
	CAPASummary CAPASummary      `json:"capa_summary"`
	CheckedAt   time.Time        `json:"checked_at"`
	Remediation string           `json:"remediation,omitempty"`
}

// BlockedError is returned by RequirePass when the gate is closed.
type BlockedError struct {
	ReasonCode string
	ScopeID    string
	Blocking   []BlockingReport
}

func (e *BlockedError) Error() string {
	ids := make([]string, 0, len(e.Blocking))
	for _, b := range e.Blocking {
		ids = append(ids, fmt.Sprintf("%s(%s)", b.ID, b.Priority))
	}
	return fmt.Sprintf("%s: scope %s has %d blocking report(s): %s",
		e.ReasonCode, e.ScopeID, len(e.Blocking), strings.Join(ids, ", "))
}

// Evaluator computes gate verdicts.
type Evaluator struct {
	store storage.Storage
	now   func() time.Time
}

// Config holds gate evaluator configuration
type Config struct {
	Store storage.Storage
}

// NewEvaluator creates a new gate evaluator
func NewEvaluator(cfg *Config) (*Evaluator, error) {
	if cfg == nil || cfg.Store == nil {
		return nil, fmt.Errorf("storage is required")
	}
	return &Evaluator{store: cfg.Store, now: time.Now}, nil
}

// Evaluate returns the gate verdict for scopeID.
func (e *Evaluator) Evaluate(ctx context.Context, scopeID string) (*Result, error) {
	if strings.TrimSpace(scopeID) == "" {
		return nil, types.NewValidationError("scope_id", "scope_id is required")
	}

	var (
		candidates []*types.GateCandidate
		counts     *types.ScopeCounts
	)
	err := e.store.ReadTx(ctx, func(tx storage.Tx) error {
		var err error
		if candidates, err = tx.ListGateCandidates(ctx, scopeID); err != nil {
			return err
		}
		counts, err = tx.GetScopeCounts(ctx, scopeID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate gate for %s: %w", scopeID, err)
	}

	result := &Result{
		ScopeID:   scopeID,
		OpenCount: counts.Open,
		P0Count:   counts.P0,
		P1Count:   counts.P1,
		Blocking:  []BlockingReport{},
		CheckedAt: e.now().UTC(),
	}

	for _, c := range candidates {
		switch c.CAPAStatus {
		case types.CAPAStatusVerified:
			result.CAPASummary.Verified++
			continue
		case types.CAPAStatusNotCreated:
			result.CAPASummary.NotCreated++
		default:
			result.CAPASummary.Pending++
		}
		result.Blocking = append(result.Blocking, BlockingReport{
			ID:               c.ReportID,
			Priority:         c.Priority,
			ProblemStatement: c.ProblemStatement,
			CAPAStatus:       c.CAPAStatus,
		})
	}

	result.Pass = len(result.Blocking) == 0
	if !result.Pass {
		result.Remediation = fmt.Sprintf("Resolve the blocking reports, then re-run: rca gate check %s", scopeID)
	}
	return result, nil
}

// RequirePass evaluates the gate and returns a *BlockedError when it is closed.
func (e *Evaluator) RequirePass(ctx context.Context, scopeID string) error {
	result, err := e.Evaluate(ctx, scopeID)
	if err != nil {
		return err
	}
	if !result.Pass {
		return &BlockedError{
			ReasonCode: ReasonGateBlocked,
			ScopeID:    scopeID,
			Blocking:   result.Blocking,
		}
	}
	return nil
}

// FormatResult renders a result for terminal output
func FormatResult(result *Result) string {
	var sb strings.Builder

	status := "✓ PASS"
	if !result.Pass {
		status = "✗ BLOCKED"
	}
	fmt.Fprintf(&sb, "RCA Gate: %s - %s\n", result.ScopeID, status)
	fmt.Fprintf(&sb, "Open reports: %d (P0: %d, P1: %d)\n", result.OpenCount, result.P0Count, result.P1Count)
	fmt.Fprintf(&sb, "CAPA: %d verified, %d pending, %d not created\n",
		result.CAPASummary.Verified, result.CAPASummary.Pending, result.CAPASummary.NotCreated)

	if len(result.Blocking) > 0 {
		sb.WriteString("\nBlocking:\n")
		for _, b := range result.Blocking {
			problem := b.ProblemStatement
			if len(problem) > 80 {
				problem = problem[:77] + "..."
			}
			fmt.Fprintf(&sb, "  %s [%s] capa=%s  %s\n", b.ID, b.Priority, b.CAPAStatus, problem)
		}
	}
	if result.Remediation != "" {
		fmt.Fprintf(&sb, "\n%s\n", result.Remediation)
	}
	return sb.String()
}
