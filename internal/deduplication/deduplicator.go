package deduplication

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/steveyegge/rcagov/internal/logging"
	"github.com/steveyegge/rcagov/internal/severity"
	"github.com/steveyegge/rcagov/internal/storage"
	"github.com/steveyegge/rcagov/internal/types"
)

// Outcome is the result of InsertOrIncrement.
type Outcome struct {
	// Report is the row as it stands after the write
	Report *types.Report

	// Created is true when a new report was opened, false on a re-detection
	Created bool

	// ConflictRetries counts how many times the insert lost a race
	ConflictRetries int
}

// WriteHook runs inside the insert-or-increment transaction after the report
// row is written. Returning an error rolls the whole write back.
type WriteHook func(ctx context.Context, tx storage.Tx, outcome *Outcome) error

// Deduplicator folds repeated detections of one failure into a single open
// report per signature.
type Deduplicator struct {
	config Config
	logger *logging.Logger
	now    func() time.Time
}

// New creates a Deduplicator. A nil logger discards output.
func New(cfg Config, logger *logging.Logger) (*Deduplicator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid deduplication config: %w", err)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Deduplicator{
		config: cfg,
		logger: logger.Named("dedup"),
		now:    time.Now,
	}, nil
}

// Config returns the active configuration.
func (d *Deduplicator) Config() Config {
	return d.config
}

// Signature fingerprints a failure using the configured normalization.
func (d *Deduplicator) Signature(scopeType types.ScopeType, scopeID, cause string) string {
	return signature(scopeType, scopeID, cause, d.config.MaskDigits)
}

// InsertOrIncrement opens a report for candidate.FailureSignature or, when an
// open one already exists, bumps its recurrence count.
//
// candidate must carry a signature and its classified priority. ID, status,
// confidence and timestamps are filled in here when a row is inserted.
//
// If the insert loses a race on the open-signature index the transaction is
// discarded and the loop runs again in a fresh one, where it finds the
// winner and increments it. The conflict never reaches the caller unless
// MaxConflictRetries is exhausted.
func (d *Deduplicator) InsertOrIncrement(ctx context.Context, store storage.Storage, candidate *types.Report, hook WriteHook) (*Outcome, error) {
	if candidate.FailureSignature == "" {
		return nil, types.NewValidationError("failure_signature", "failure_signature is required")
	}

	for attempt := 0; ; attempt++ {
		outcome, err := d.attempt(ctx, store, candidate, hook)
		if err == nil {
			outcome.ConflictRetries = attempt
			return outcome, nil
		}
		if !errors.Is(err, storage.ErrUniqueViolation) {
			return nil, err
		}
		if attempt >= d.config.MaxConflictRetries {
			return nil, fmt.Errorf("failed to insert report after %d conflict retries: %w",
				attempt, &types.DuplicateSignatureError{
					Signature:  candidate.FailureSignature,
					ExistingID: d.openReportID(ctx, store, candidate.FailureSignature),
				})
		}
		d.logger.Debug(ctx, "signature conflict, retrying as increment",
			zap.String("signature", candidate.FailureSignature),
			zap.Int("attempt", attempt+1))
	}
}

func (d *Deduplicator) attempt(ctx context.Context, store storage.Storage, candidate *types.Report, hook WriteHook) (*Outcome, error) {
	var outcome *Outcome
	err := store.WithTx(ctx, func(tx storage.Tx) error {
		existing, err := tx.FindOpenReportBySignature(ctx, candidate.FailureSignature)
		if err != nil {
			return err
		}

		if existing != nil {
			err := tx.IncrementRecurrence(ctx, existing.ID, d.now())
			switch {
			case errors.Is(err, storage.ErrReportClosed):
				// Resolved since the lookup: this detection opens a new report.
				d.logger.Debug(ctx, "open report closed under us, inserting",
					zap.String("report_id", existing.ID),
					zap.String("signature", candidate.FailureSignature))
				existing = nil
			case err != nil:
				return err
			}
		}

		if existing != nil {
			updated, err := tx.GetReport(ctx, existing.ID)
			if err != nil {
				return err
			}
			outcome = &Outcome{Report: updated}
		} else {
			priors, err := tx.CountClosedBySignature(ctx, candidate.FailureSignature)
			if err != nil {
				return err
			}
			report := d.prepare(candidate, priors)
			if err := tx.InsertReport(ctx, report); err != nil {
				return err
			}
			outcome = &Outcome{Report: report, Created: true}
		}

		if hook != nil {
			return hook(ctx, tx, outcome)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

// openReportID returns the id of the open report holding signature, or "" if
// it cannot be read.
func (d *Deduplicator) openReportID(ctx context.Context, store storage.Storage, signature string) string {
	var id string
	err := store.ReadTx(ctx, func(tx storage.Tx) error {
		r, err := tx.FindOpenReportBySignature(ctx, signature)
		if err != nil || r == nil {
			return err
		}
		id = r.ID
		return nil
	})
	if err != nil {
		d.logger.Debug(ctx, "failed to look up conflicting report", zap.Error(err))
	}
	return id
}

// prepare builds the row to insert from a copy of candidate.
func (d *Deduplicator) prepare(candidate *types.Report, priors int) *types.Report {
	r := *candidate
	now := d.now().UTC()

	if r.ID == "" {
		r.ID = NewReportID()
	}
	r.Status = types.ReportStatusOpen
	r.RecurrenceCount = 1
	r.ResolvedAt = nil

	score := severity.ScoreEvidence(r.Evidence, priors, d.config.PatternScorePerPrior)
	r.LogQuality = score.LogQuality
	r.EvidenceStrength = score.EvidenceStrength
	r.PatternMatchScore = score.PatternMatchScore
	r.Confidence = score.Confidence

	if r.DetectedAt.IsZero() {
		r.DetectedAt = now
	}
	if r.FirstOccurrenceAt.IsZero() {
		r.FirstOccurrenceAt = r.DetectedAt
	}
	r.CreatedAt = now
	r.UpdatedAt = now
	return &r
}
