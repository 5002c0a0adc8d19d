package analytics

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/rcagov/internal/storage"
	_ "github.com/steveyegge/rcagov/internal/storage/sqlite"
	"github.com/steveyegge/rcagov/internal/types"
)

func setupTestStore(t *testing.T) storage.Storage {
	t.Helper()
	store, err := storage.NewStorage(context.Background(), &storage.Config{
		Backend:     "sqlite",
		Path:        filepath.Join(t.TempDir(), "rca.db"),
		BusyTimeout: time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func addReport(t *testing.T, store storage.Storage, id, signature string, priority types.Priority, recurrences int) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()
	require.NoError(t, store.WithTx(ctx, func(tx storage.Tx) error {
		if err := tx.InsertReport(ctx, &types.Report{
			ID:                id,
			ScopeType:         types.ScopeRuntime,
			ScopeID:           "svc-api",
			TriggerSource:     types.TriggerRuntime,
			TriggerTier:       3,
			FailureSignature:  signature,
			RecurrenceCount:   1,
			ProblemStatement:  "timeout talking to db",
			ImpactLevel:       types.ImpactHigh,
			LikelihoodLevel:   types.LikelihoodOccasional,
			SeverityPriority:  priority,
			Confidence:        60,
			Status:            types.ReportStatusOpen,
			DetectedAt:        now,
			FirstOccurrenceAt: now,
			CreatedAt:         now,
			UpdatedAt:         now,
		}); err != nil {
			return err
		}
		for i := 1; i < recurrences; i++ {
			if err := tx.IncrementRecurrence(ctx, id, now); err != nil {
				return err
			}
		}
		return nil
	}))
}

func TestSummary(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	r := NewReader(store)

	empty, err := r.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, empty.Total)
	assert.Zero(t, empty.ResolutionRate)

	addReport(t, store, "rcr-1", "sig-1", types.PriorityP0, 1)
	addReport(t, store, "rcr-2", "sig-2", types.PriorityP1, 1)
	addReport(t, store, "rcr-3", "sig-3", types.PriorityP3, 1)
	require.NoError(t, store.WithTx(ctx, func(tx storage.Tx) error {
		return tx.UpdateReportStatus(ctx, "rcr-3", types.ReportStatusOpen, types.ReportStatusClosedWontFix, nil)
	}))

	s, err := r.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, s.Total)
	assert.Equal(t, 2, s.Open)
	assert.Equal(t, 2, s.BlockingOpen)
	assert.Equal(t, 1, s.ClosedWontFix)
	assert.Zero(t, s.ResolutionRate)
	assert.InDelta(t, 60.0, s.AvgConfidence, 0.001)
}

func TestRecurrence(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	r := NewReader(store)

	addReport(t, store, "rcr-1", "sig-hot", types.PriorityP2, 5)
	addReport(t, store, "rcr-2", "sig-warm", types.PriorityP2, 2)
	addReport(t, store, "rcr-3", "sig-once", types.PriorityP2, 1)

	patterns, err := r.Recurrence(ctx, RecurrenceQuery{})
	require.NoError(t, err)
	require.Len(t, patterns, 2)
	assert.Equal(t, "sig-hot", patterns[0].FailureSignature)
	assert.Equal(t, 5, patterns[0].OccurrenceCount)
	assert.Equal(t, 1, patterns[0].OpenCount)
	assert.Equal(t, "sig-warm", patterns[1].FailureSignature)

	all, err := r.Recurrence(ctx, RecurrenceQuery{MinOccurrences: 1, Limit: 10})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	top, err := r.Recurrence(ctx, RecurrenceQuery{MinOccurrences: 1, Limit: 1})
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, "sig-hot", top[0].FailureSignature)

	none, err := r.Recurrence(ctx, RecurrenceQuery{MinOccurrences: 100})
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestRecurrenceRejectsNegativeBounds(t *testing.T) {
	r := NewReader(setupTestStore(t))

	_, err := r.Recurrence(context.Background(), RecurrenceQuery{MinOccurrences: -1})
	assert.True(t, errors.Is(err, types.ErrValidation))

	_, err = r.Recurrence(context.Background(), RecurrenceQuery{Limit: -5})
	assert.True(t, errors.Is(err, types.ErrValidation))
}
