//go:build integration

package postgres

import (
	"context"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/steveyegge/rcagov/internal/storage"
	"github.com/steveyegge/rcagov/internal/types"
)

// Run with: go test -tags=integration -timeout 180s ./internal/storage/postgres/...
func TestPostgresStoreWithRealDatabase(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	ctx := context.Background()

	pgContainer, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("rca"),
		tcpostgres.WithUsername("rca"),
		tcpostgres.WithPassword("rca"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			log.Printf("failed to terminate postgres container: %v", err)
		}
	}()

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	s, err := storage.NewStorage(ctx, &storage.Config{Backend: "postgres", DSN: connStr})
	require.NoError(t, err)
	defer s.Close()

	now := time.Now().UTC()
	report := func(id string) *types.Report {
		return &types.Report{
			ID: id, ScopeType: types.ScopeSD, ScopeID: "SD-1", TriggerSource: types.TriggerQualityGate,
			TriggerTier: 1, FailureSignature: "sig-pg", RecurrenceCount: 1, ProblemStatement: "gate failed",
			ImpactLevel: types.ImpactCritical, LikelihoodLevel: types.LikelihoodFrequent,
			SeverityPriority: types.PriorityP0, Confidence: 40, Status: types.ReportStatusOpen,
			DetectedAt: now, FirstOccurrenceAt: now, CreatedAt: now, UpdatedAt: now,
		}
	}

	require.NoError(t, s.WithTx(ctx, func(tx storage.Tx) error { return tx.InsertReport(ctx, report("rcr-1")) }))

	err = s.WithTx(ctx, func(tx storage.Tx) error { return tx.InsertReport(ctx, report("rcr-2")) })
	assert.ErrorIs(t, err, storage.ErrUniqueViolation)

	candidates, err := s.ListGateCandidates(ctx, "SD-1")
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, types.CAPAStatusNotCreated, candidates[0].CAPAStatus)

	summary, err := s.GetAnalyticsSummary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.P0Open)
	assert.InDelta(t, 40.0, summary.AvgConfidence, 0.001)
}
