package rca

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/steveyegge/rcagov/internal/events"
	"github.com/steveyegge/rcagov/internal/gates"
	"github.com/steveyegge/rcagov/internal/logging"
	"github.com/steveyegge/rcagov/internal/redact"
	"github.com/steveyegge/rcagov/internal/storage"
	_ "github.com/steveyegge/rcagov/internal/storage/sqlite"
	"github.com/steveyegge/rcagov/internal/triggers"
	"github.com/steveyegge/rcagov/internal/types"
)

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []*events.Message
	err  error
}

func (p *recordingPublisher) Publish(_ context.Context, msg *events.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, msg)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) subjects() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.msgs))
	for _, m := range p.msgs {
		out = append(out, events.Subject("rca", m))
	}
	return out
}

type testEnv struct {
	svc       *Service
	store     storage.Storage
	logger    *logging.TestLogger
	publisher *recordingPublisher
	spans     *tracetest.SpanRecorder
}

func setupService(t *testing.T, mutate ...func(cfg *Config)) *testEnv {
	t.Helper()
	store, err := storage.NewStorage(context.Background(), &storage.Config{
		Backend:     "sqlite",
		Path:        filepath.Join(t.TempDir(), "rca.db"),
		BusyTimeout: 5 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	env := &testEnv{
		store:     store,
		logger:    logging.NewTestLogger(),
		publisher: &recordingPublisher{},
		spans:     tracetest.NewSpanRecorder(),
	}
	cfg := &Config{
		Store:          store,
		Publisher:      env.publisher,
		Logger:         env.logger.Logger,
		TracerProvider: sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(env.spans)),
	}
	for _, m := range mutate {
		m(cfg)
	}
	env.svc, err = NewService(cfg)
	require.NoError(t, err)
	return env
}

func criticalInput(scope string) ReportInput {
	return ReportInput{
		ScopeType:        types.ScopeSD,
		ScopeID:          scope,
		TriggerSource:    types.TriggerTestFailure,
		TriggerTier:      2,
		ProblemStatement: "checkout e2e fails on payment step",
		ImpactLevel:      types.ImpactCritical,
		LikelihoodLevel:  types.LikelihoodFrequent,
		Evidence: types.Evidence{
			Logs:       []string{"s3://logs/run-881.txt"},
			StackTrace: "TypeError: cannot read property 'id' of undefined",
			ReproSteps: []string{"open checkout", "pay"},
		},
		Actor: "ci-bot",
	}
}

func fullCAPA(rcrID string) CAPAInput {
	return CAPAInput{
		RCRID: rcrID,
		ProposedChanges: types.ProposedChanges{
			CorrectiveActions: []types.Action{{Description: "guard nil order", AffectedFiles: []string{"checkout.go"}, EffortHours: 2}},
			PreventiveActions: []types.Action{{Description: "add payment e2e to smoke suite"}},
		},
		VerificationPlan: types.VerificationPlan{
			TestScenarios:   []string{"pay with saved card"},
			SuccessCriteria: []string{"e2e green 10 runs in a row"},
		},
		RiskScore: 30,
		Actor:     "alice",
	}
}

func reportStatus(t *testing.T, env *testEnv, id string) types.ReportStatus {
	t.Helper()
	r, err := env.svc.GetReport(context.Background(), id)
	require.NoError(t, err)
	return r.Status
}

// Scenario A: a P0 blocks the gate until its CAPA is verified, and
// verification leaves exactly one learning record behind.
func TestScenarioP0BlocksUntilVerified(t *testing.T) {
	ctx := context.Background()
	env := setupService(t)
	svc := env.svc

	res, err := svc.CreateReport(ctx, criticalInput("SD-42"))
	require.NoError(t, err)
	require.True(t, res.Created)
	report := res.Report
	assert.Equal(t, types.PriorityP0, report.SeverityPriority)
	assert.Equal(t, types.ReportStatusOpen, report.Status)

	gate, err := svc.EvaluateGate(ctx, "SD-42")
	require.NoError(t, err)
	assert.False(t, gate.Pass)
	require.Len(t, gate.Blocking, 1)
	assert.Equal(t, report.ID, gate.Blocking[0].ID)
	assert.Equal(t, types.CAPAStatusNotCreated, gate.Blocking[0].CAPAStatus)

	capa, err := svc.CreateCAPA(ctx, fullCAPA(report.ID))
	require.NoError(t, err)
	assert.Equal(t, types.CategoryTestCoverageGap, capa.RootCauseCategory)
	assert.Equal(t, types.ReportStatusCAPAPending, reportStatus(t, env, report.ID))

	_, err = svc.Approve(ctx, capa.ID, "lead")
	require.NoError(t, err)
	assert.Equal(t, types.ReportStatusCAPAApproved, reportStatus(t, env, report.ID))

	_, err = svc.StartWork(ctx, capa.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, types.ReportStatusFixInProgress, reportStatus(t, env, report.ID))

	gate, err = svc.EvaluateGate(ctx, "SD-42")
	require.NoError(t, err)
	assert.False(t, gate.Pass, "an unverified CAPA still blocks")

	verified, err := svc.Verify(ctx, capa.ID, "qa", "ten green runs")
	require.NoError(t, err)
	assert.Equal(t, types.CAPAStatusVerified, verified.Status)
	require.NotNil(t, verified.VerifiedAt)

	resolved, err := svc.GetReport(ctx, report.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ReportStatusResolved, resolved.Status)
	require.NotNil(t, resolved.ResolvedAt)

	gate, err = svc.EvaluateGate(ctx, "SD-42")
	require.NoError(t, err)
	assert.True(t, gate.Pass)
	assert.NoError(t, svc.RequirePass(ctx, "SD-42"))

	records, err := svc.ListLearningRecords(ctx, types.LearningFilter{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, report.ID, records[0].RCRID)
	assert.Equal(t, "test_coverage_gap_regression", records[0].DefectClass)
	assert.Equal(t, "TEST_COVERAGE_GAP - test_coverage_gap_regression", records[0].Label)
	assert.Equal(t, types.StagePlanPRD, records[0].PreventionStage)

	assert.Contains(t, env.publisher.subjects(), "rca.learning.ingested")
	assert.Contains(t, env.publisher.subjects(), "rca.report.cascaded")
	env.logger.AssertLogged(t, zapcore.InfoLevel, "learning record ingested")
}

// Scenario B: two detections of one failure inside an open window fold
// into one report.
func TestScenarioDuplicateDetectionFolds(t *testing.T) {
	ctx := context.Background()
	env := setupService(t)

	first, err := env.svc.CreateReport(ctx, criticalInput("SD-7"))
	require.NoError(t, err)
	assert.True(t, first.Created)

	again := criticalInput("SD-7")
	again.ProblemStatement = "Checkout   E2E fails on payment step"
	second, err := env.svc.CreateReport(ctx, again)
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.Equal(t, first.Report.ID, second.Report.ID)
	assert.Equal(t, 2, second.Report.RecurrenceCount)
	assert.Equal(t, types.ReportStatusOpen, second.Report.Status)

	reports, err := env.svc.ListReports(ctx, types.ReportFilter{ScopeID: "SD-7"})
	require.NoError(t, err)
	assert.Len(t, reports, 1)

	evs, err := env.svc.ListEvents(ctx, types.EventFilter{EntityID: first.Report.ID})
	require.NoError(t, err)
	var kinds []types.EventType
	for _, e := range evs {
		kinds = append(kinds, e.EventType)
	}
	assert.ElementsMatch(t, []types.EventType{types.EventCreated, types.EventRecurred}, kinds)
	assert.Equal(t, []string{"rca.report.created", "rca.report.recurred"}, env.publisher.subjects())
}

// Scenario C: a LOW/RARE report never blocks, whatever its status.
func TestScenarioLowPriorityNeverBlocks(t *testing.T) {
	ctx := context.Background()
	env := setupService(t)
	svc := env.svc

	in := criticalInput("SD-9")
	in.ImpactLevel = types.ImpactLow
	in.LikelihoodLevel = types.LikelihoodRare
	res, err := svc.CreateReport(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, types.PriorityP4, res.Report.SeverityPriority)

	assertPass := func(stage string) {
		t.Helper()
		gate, err := svc.EvaluateGate(ctx, "SD-9")
		require.NoError(t, err)
		assert.True(t, gate.Pass, stage)
		assert.Equal(t, 1, gate.OpenCount, stage)
	}

	assertPass("open")
	_, err = svc.StartReview(ctx, res.Report.ID, "alice")
	require.NoError(t, err)
	assertPass("in review")
	capa, err := svc.CreateCAPA(ctx, fullCAPA(res.Report.ID))
	require.NoError(t, err)
	assertPass("capa pending")
	_, err = svc.Approve(ctx, capa.ID, "lead")
	require.NoError(t, err)
	assertPass("capa approved")
	_, err = svc.StartWork(ctx, capa.ID, "alice")
	require.NoError(t, err)
	assertPass("fix in progress")
}

func TestCreateReportFromTriggerCode(t *testing.T) {
	ctx := context.Background()
	env := setupService(t)

	res, err := env.svc.CreateReport(ctx, ReportInput{
		ScopeType:        types.ScopePipeline,
		ScopeID:          "pipeline-881",
		TriggerCode:      "BUILD_BROKEN",
		ProblemStatement: "go build fails: undefined symbol",
	})
	require.NoError(t, err)
	r := res.Report
	assert.Equal(t, types.TriggerCIPipeline, r.TriggerSource)
	assert.Equal(t, 2, r.TriggerTier)
	assert.Equal(t, types.ImpactCritical, r.ImpactLevel)
	assert.Equal(t, types.LikelihoodOccasional, r.LikelihoodLevel)
	assert.Equal(t, types.PriorityP1, r.SeverityPriority)
	assert.Equal(t, "BUILD_BROKEN", r.TriggerCode)
	assert.Equal(t, 40, r.Confidence)
	assert.Equal(t, r.DetectedAt, r.FirstOccurrenceAt)

	_, err = env.svc.CreateReport(ctx, ReportInput{
		ScopeType:        types.ScopePipeline,
		ScopeID:          "pipeline-881",
		TriggerCode:      "NOPE",
		ProblemStatement: "x",
	})
	var verr *types.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "trigger_code", verr.Field)
}

func TestCreateReportValidationWritesNothing(t *testing.T) {
	ctx := context.Background()
	env := setupService(t)

	tests := []struct {
		name   string
		mutate func(in *ReportInput)
	}{
		{"bad scope", func(in *ReportInput) { in.ScopeType = "PRD" }},
		{"blank scope id", func(in *ReportInput) { in.ScopeID = " " }},
		{"bad tier", func(in *ReportInput) { in.TriggerTier = 9 }},
		{"bad impact", func(in *ReportInput) { in.ImpactLevel = "HUGE" }},
		{"first occurrence after detection", func(in *ReportInput) {
			detected := time.Now().Add(-time.Hour)
			later := time.Now()
			in.DetectedAt = &detected
			in.FirstOccurrenceAt = &later
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := criticalInput("SD-1")
			tt.mutate(&in)
			_, err := env.svc.CreateReport(ctx, in)
			assert.ErrorIs(t, err, types.ErrValidation)
		})
	}

	reports, err := env.svc.ListReports(ctx, types.ReportFilter{})
	require.NoError(t, err)
	assert.Empty(t, reports)
	assert.Empty(t, env.publisher.subjects())
}

func TestConcurrentDetectionsProduceOneReport(t *testing.T) {
	ctx := context.Background()
	env := setupService(t)

	const n = 8
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			_, err := env.svc.CreateReport(gctx, criticalInput("SD-race"))
			return err
		})
	}
	require.NoError(t, g.Wait())

	reports, err := env.svc.ListReports(ctx, types.ReportFilter{ScopeID: "SD-race"})
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, n, reports[0].RecurrenceCount)
}

func TestRecurrenceAfterResolutionScoresPattern(t *testing.T) {
	ctx := context.Background()
	env := setupService(t)
	svc := env.svc

	first, err := svc.CreateReport(ctx, criticalInput("SD-5"))
	require.NoError(t, err)
	capa, err := svc.CreateCAPA(ctx, fullCAPA(first.Report.ID))
	require.NoError(t, err)
	_, err = svc.Approve(ctx, capa.ID, "")
	require.NoError(t, err)
	_, err = svc.StartWork(ctx, capa.ID, "")
	require.NoError(t, err)
	_, err = svc.Verify(ctx, capa.ID, "", "")
	require.NoError(t, err)

	second, err := svc.CreateReport(ctx, criticalInput("SD-5"))
	require.NoError(t, err)
	assert.True(t, second.Created)
	assert.NotEqual(t, first.Report.ID, second.Report.ID)
	assert.Equal(t, first.Report.FailureSignature, second.Report.FailureSignature)
	assert.Equal(t, 10, second.Report.PatternMatchScore)
	assert.Equal(t, first.Report.Confidence+10, second.Report.Confidence)
}

func TestAnalyzeLearnsFromResolvedPattern(t *testing.T) {
	ctx := context.Background()
	env := setupService(t)
	svc := env.svc

	first, err := svc.CreateReport(ctx, criticalInput("SD-6"))
	require.NoError(t, err)
	capa, err := svc.CreateCAPA(ctx, fullCAPA(first.Report.ID))
	require.NoError(t, err)
	for _, step := range []func() error{
		func() error { _, err := svc.Approve(ctx, capa.ID, ""); return err },
		func() error { _, err := svc.StartWork(ctx, capa.ID, ""); return err },
		func() error { _, err := svc.Verify(ctx, capa.ID, "", ""); return err },
	} {
		require.NoError(t, step())
	}

	other := criticalInput("SD-7")
	other.ScopeType = types.ScopePipeline
	_, err = svc.CreateReport(ctx, other)
	require.NoError(t, err)

	second, err := svc.CreateReport(ctx, criticalInput("SD-6"))
	require.NoError(t, err)
	require.True(t, second.Created)

	a, err := svc.Analyze(ctx, second.Report.ID, "alice")
	require.NoError(t, err)
	require.Len(t, a.PatternMatches, 1, "other scope types are not history")
	match := a.PatternMatches[0]
	assert.Equal(t, first.Report.ID, match.RCRID)
	assert.Equal(t, 100, match.Similarity)
	assert.True(t, match.Resolved)
	assert.Equal(t, "PAT-TEST_COVERAGE_GAP-"+first.Report.ID[:8], a.PatternID)
	assert.Equal(t, types.CategoryTestCoverageGap, a.RootCauseCategory)
	assert.Equal(t, []string{first.Report.ID}, a.RelatedRCRIDs)
	assert.Equal(t, 1, a.Attempts)
	require.Len(t, a.Recommendations, 2)
	assert.Equal(t, types.RecommendTestEnhancement, a.Recommendations[0].Type)
	assert.Equal(t, types.RecommendPatternLearning, a.Recommendations[1].Type)

	stored, err := svc.GetAnalysis(ctx, second.Report.ID)
	require.NoError(t, err)
	assert.Equal(t, a.PatternID, stored.PatternID)
	assert.Len(t, stored.ContributingFactors, len(a.ContributingFactors))

	again, err := svc.Analyze(ctx, second.Report.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, 2, again.Attempts)
	assert.Equal(t, a.PatternID, again.PatternID)

	assert.Equal(t, types.ReportStatusOpen, reportStatus(t, env, second.Report.ID), "analysis does not move the report")

	evs, err := svc.ListEvents(ctx, types.EventFilter{EntityID: second.Report.ID})
	require.NoError(t, err)
	analyzed := 0
	for _, e := range evs {
		if e.EventType == types.EventAnalyzed {
			analyzed++
			assert.Equal(t, "alice", e.Actor)
			assert.Equal(t, a.PatternID, e.NewValue)
		}
	}
	assert.Equal(t, 2, analyzed)
	assert.Contains(t, env.publisher.subjects(), "rca.report.analyzed")

	var names []string
	for _, sp := range env.spans.Ended() {
		names = append(names, sp.Name())
	}
	assert.Contains(t, names, "rca.analyze")
}

func TestAnalyzeWithoutHistory(t *testing.T) {
	ctx := context.Background()
	env := setupService(t)

	res, err := env.svc.CreateReport(ctx, criticalInput("SD-lonely"))
	require.NoError(t, err)

	_, err = env.svc.GetAnalysis(ctx, res.Report.ID)
	assert.ErrorIs(t, err, types.ErrNotFound)

	a, err := env.svc.Analyze(ctx, res.Report.ID, "")
	require.NoError(t, err)
	assert.Empty(t, a.PatternID)
	assert.Empty(t, a.PatternMatches)
	require.Len(t, a.Recommendations, 1)
	assert.Equal(t, types.RecommendTestEnhancement, a.Recommendations[0].Type)

	_, err = env.svc.Analyze(ctx, "rcr-missing", "")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestRejectReturnsReportToReviewAndAllowsReplacement(t *testing.T) {
	ctx := context.Background()
	env := setupService(t)
	svc := env.svc

	res, err := svc.CreateReport(ctx, criticalInput("SD-3"))
	require.NoError(t, err)
	id := res.Report.ID

	first, err := svc.CreateCAPA(ctx, fullCAPA(id))
	require.NoError(t, err)

	_, err = svc.CreateCAPA(ctx, fullCAPA(id))
	assert.ErrorIs(t, err, types.ErrInvalidTransition, "one active CAPA per report")

	rejected, err := svc.Reject(ctx, first.ID, "lead", "fixes the symptom only")
	require.NoError(t, err)
	assert.Equal(t, types.CAPAStatusRejected, rejected.Status)
	assert.Equal(t, "fixes the symptom only", rejected.RejectionReason)
	assert.Equal(t, types.ReportStatusInReview, reportStatus(t, env, id))

	replacement, err := svc.CreateCAPA(ctx, fullCAPA(id))
	require.NoError(t, err)
	assert.Equal(t, types.ReportStatusCAPAPending, reportStatus(t, env, id))

	current, err := svc.GetCAPAForReport(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, replacement.ID, current.ID)

	all, err := svc.ListCAPAs(ctx, id)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestAbandonFromEveryActiveState(t *testing.T) {
	ctx := context.Background()

	steps := []struct {
		name    string
		advance func(svc *Service, capaID string) error
	}{
		{"pending", func(*Service, string) error { return nil }},
		{"approved", func(svc *Service, id string) error {
			_, err := svc.Approve(ctx, id, "")
			return err
		}},
		{"in progress", func(svc *Service, id string) error {
			if _, err := svc.Approve(ctx, id, ""); err != nil {
				return err
			}
			_, err := svc.StartWork(ctx, id, "")
			return err
		}},
	}
	for _, tt := range steps {
		t.Run(tt.name, func(t *testing.T) {
			env := setupService(t)
			res, err := env.svc.CreateReport(ctx, criticalInput("SD-ab"))
			require.NoError(t, err)
			capa, err := env.svc.CreateCAPA(ctx, fullCAPA(res.Report.ID))
			require.NoError(t, err)
			require.NoError(t, tt.advance(env.svc, capa.ID))

			_, err = env.svc.Abandon(ctx, capa.ID, "alice", "superseded")
			require.NoError(t, err)
			assert.Equal(t, types.ReportStatusInReview, reportStatus(t, env, res.Report.ID))

			_, err = env.svc.StartWork(ctx, capa.ID, "")
			assert.ErrorIs(t, err, types.ErrInvalidTransition, "abandoned is terminal")
		})
	}
}

func TestCAPAPreconditions(t *testing.T) {
	ctx := context.Background()
	env := setupService(t)
	svc := env.svc

	res, err := svc.CreateReport(ctx, criticalInput("SD-pre"))
	require.NoError(t, err)

	in := fullCAPA(res.Report.ID)
	in.ProposedChanges = types.ProposedChanges{}
	in.VerificationPlan = types.VerificationPlan{}
	capa, err := svc.CreateCAPA(ctx, in)
	require.NoError(t, err)

	_, err = svc.Approve(ctx, capa.ID, "")
	var verr *types.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "proposed_changes", verr.Field)
	assert.NotErrorIs(t, err, types.ErrInvalidTransition)
	assert.Equal(t, types.ReportStatusCAPAPending, reportStatus(t, env, res.Report.ID), "rolled back")
	stored, err := svc.GetCAPA(ctx, capa.ID)
	require.NoError(t, err)
	assert.Equal(t, types.CAPAStatusPending, stored.Status)

	_, err = svc.Verify(ctx, capa.ID, "", "")
	assert.ErrorIs(t, err, types.ErrInvalidTransition, "PENDING cannot jump to VERIFIED")

	_, err = svc.Approve(ctx, "capa-missing", "")
	assert.ErrorIs(t, err, types.ErrNotFound)

	_, err = svc.CreateCAPA(ctx, fullCAPA("rcr-missing"))
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestVerifyRequiresSuccessCriteria(t *testing.T) {
	ctx := context.Background()
	env := setupService(t)
	svc := env.svc

	res, err := svc.CreateReport(ctx, criticalInput("SD-v"))
	require.NoError(t, err)
	in := fullCAPA(res.Report.ID)
	in.VerificationPlan.SuccessCriteria = []string{"  "}
	capa, err := svc.CreateCAPA(ctx, in)
	require.NoError(t, err)
	_, err = svc.Approve(ctx, capa.ID, "")
	require.NoError(t, err)
	_, err = svc.StartWork(ctx, capa.ID, "")
	require.NoError(t, err)

	_, err = svc.Verify(ctx, capa.ID, "", "")
	assert.ErrorIs(t, err, types.ErrInvalidTransition)
	assert.Equal(t, types.ReportStatusFixInProgress, reportStatus(t, env, res.Report.ID))

	_, err = svc.GetLearningRecord(ctx, res.Report.ID)
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestOperatorTransitions(t *testing.T) {
	ctx := context.Background()
	env := setupService(t)
	svc := env.svc

	res, err := svc.CreateReport(ctx, criticalInput("SD-op"))
	require.NoError(t, err)
	id := res.Report.ID

	_, err = svc.CloseWontFix(ctx, id, "alice", "")
	assert.ErrorIs(t, err, types.ErrValidation, "reason required")

	reviewed, err := svc.StartReview(ctx, id, "alice")
	require.NoError(t, err)
	assert.Equal(t, types.ReportStatusInReview, reviewed.Status)

	_, err = svc.StartReview(ctx, id, "alice")
	assert.ErrorIs(t, err, types.ErrInvalidTransition)

	capa, err := svc.CreateCAPA(ctx, fullCAPA(id))
	require.NoError(t, err)
	_, err = svc.CloseWontFix(ctx, id, "alice", "not worth it")
	assert.ErrorIs(t, err, types.ErrInvalidTransition, "active CAPA blocks closing")

	_, err = svc.Reject(ctx, capa.ID, "lead", "wrong fix")
	require.NoError(t, err)
	closed, err := svc.CloseWontFix(ctx, id, "alice", "not worth it")
	require.NoError(t, err)
	assert.Equal(t, types.ReportStatusClosedWontFix, closed.Status)

	_, err = svc.StartReview(ctx, id, "alice")
	assert.ErrorIs(t, err, types.ErrInvalidTransition, "terminal")

	_, err = svc.StartReview(ctx, "rcr-missing", "alice")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestIngestIsIdempotent(t *testing.T) {
	ctx := context.Background()
	env := setupService(t)
	svc := env.svc

	res, err := svc.CreateReport(ctx, criticalInput("SD-i"))
	require.NoError(t, err)
	id := res.Report.ID

	_, err = svc.Ingest(ctx, id, "admin")
	assert.ErrorIs(t, err, types.ErrInvalidTransition, "only resolved reports are ingested")

	capa, err := svc.CreateCAPA(ctx, fullCAPA(id))
	require.NoError(t, err)
	for _, step := range []func() error{
		func() error { _, err := svc.Approve(ctx, capa.ID, ""); return err },
		func() error { _, err := svc.StartWork(ctx, capa.ID, ""); return err },
		func() error { _, err := svc.Verify(ctx, capa.ID, "", "ok"); return err },
	} {
		require.NoError(t, step())
	}

	before, err := svc.GetLearningRecord(ctx, id)
	require.NoError(t, err)

	_, err = svc.Ingest(ctx, id, "admin")
	assert.ErrorIs(t, err, ErrAlreadyIngested)

	after, err := svc.GetLearningRecord(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, before.ID, after.ID)

	records, err := svc.ListLearningRecords(ctx, types.LearningFilter{})
	require.NoError(t, err)
	assert.Len(t, records, 1)

	_, err = svc.Ingest(ctx, "rcr-missing", "admin")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestRequirePassBlocked(t *testing.T) {
	ctx := context.Background()
	env := setupService(t)

	res, err := env.svc.CreateReport(ctx, criticalInput("SD-h"))
	require.NoError(t, err)

	err = env.svc.RequirePass(ctx, "SD-h")
	require.Error(t, err)
	assert.True(t, IsBlocked(err))

	var blocked *gates.BlockedError
	require.True(t, errors.As(err, &blocked))
	assert.Equal(t, gates.ReasonGateBlocked, blocked.ReasonCode)
	assert.Contains(t, err.Error(), res.Report.ID+"(P0)")
	assert.Contains(t, env.publisher.subjects(), "rca.gate.blocked")

	assert.NoError(t, env.svc.RequirePass(ctx, "SD-other"))
	assert.False(t, IsBlocked(errors.New("boom")))
}

func TestPublishFailureDoesNotUndoWrite(t *testing.T) {
	ctx := context.Background()
	env := setupService(t)
	env.publisher.err = errors.New("broker down")

	res, err := env.svc.CreateReport(ctx, criticalInput("SD-pub"))
	require.NoError(t, err)

	got, err := env.svc.GetReport(ctx, res.Report.ID)
	require.NoError(t, err)
	assert.Equal(t, res.Report.ID, got.ID)
	env.logger.AssertLogged(t, zapcore.WarnLevel, "failed to publish lifecycle event")
}

type fakeRedactor struct{}

func (fakeRedactor) RedactEvidence(ev types.Evidence) (types.Evidence, []redact.Finding) {
	out := ev
	out.StackTrace = "[REDACTED:test-rule]"
	return out, []redact.Finding{{RuleID: "test-rule", Field: "stack_trace"}}
}

func TestEvidenceIsRedactedBeforeStorage(t *testing.T) {
	ctx := context.Background()
	env := setupService(t, func(cfg *Config) { cfg.Redactor = fakeRedactor{} })

	res, err := env.svc.CreateReport(ctx, criticalInput("SD-r"))
	require.NoError(t, err)

	stored, err := env.svc.GetReport(ctx, res.Report.ID)
	require.NoError(t, err)
	assert.Equal(t, "[REDACTED:test-rule]", stored.Evidence.StackTrace)
	env.logger.AssertLogged(t, zapcore.InfoLevel, "redacted secrets from evidence")
}

func TestSpansRecordErrors(t *testing.T) {
	ctx := context.Background()
	env := setupService(t)

	_, err := env.svc.StartReview(ctx, "rcr-missing", "alice")
	require.Error(t, err)

	ended := env.spans.Ended()
	require.NotEmpty(t, ended)
	last := ended[len(ended)-1]
	assert.Equal(t, "rca.start_review", last.Name())
	assert.Equal(t, "Error", last.Status().Code.String())
}

func TestNewServiceRequiresWiredRegistry(t *testing.T) {
	store, err := storage.NewStorage(context.Background(), &storage.Config{
		Backend: "sqlite",
		Path:    filepath.Join(t.TempDir(), "rca.db"),
	})
	require.NoError(t, err)
	defer store.Close()

	_, err = NewService(&Config{Store: store, Triggers: triggers.NewRegistry()})
	assert.ErrorContains(t, err, "trigger registry is not wired")

	_, err = NewService(&Config{})
	assert.ErrorContains(t, err, "storage is required")
}

func TestPruneEvents(t *testing.T) {
	ctx := context.Background()
	env := setupService(t)

	_, err := env.svc.CreateReport(ctx, criticalInput("SD-p"))
	require.NoError(t, err)

	env.svc.now = func() time.Time { return time.Now().Add(48 * time.Hour) }
	deleted, err := env.svc.PruneEvents(ctx, 1, 100)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	evs, err := env.svc.ListEvents(ctx, types.EventFilter{})
	require.NoError(t, err)
	assert.Empty(t, evs)

	_, err = env.svc.PruneEvents(ctx, 0, 100)
	assert.Error(t, err)
}
