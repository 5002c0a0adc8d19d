package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/rcagov/internal/gates"
	"github.com/steveyegge/rcagov/internal/logging"
	"github.com/steveyegge/rcagov/internal/rca"
	"github.com/steveyegge/rcagov/internal/storage"
	_ "github.com/steveyegge/rcagov/internal/storage/sqlite"
	"github.com/steveyegge/rcagov/internal/types"
)

func setupTestServer(t *testing.T, cfg *Config) *Server {
	t.Helper()
	store, err := storage.NewStorage(context.Background(), &storage.Config{
		Backend:     "sqlite",
		Path:        filepath.Join(t.TempDir(), "rca.db"),
		BusyTimeout: 5 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	svc, err := rca.NewService(&rca.Config{Store: store})
	require.NoError(t, err)

	server, err := NewServer(svc, logging.NewNop(), cfg)
	require.NoError(t, err)
	return server
}

func do(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func p0Report(scope string) rca.ReportInput {
	return rca.ReportInput{
		ScopeType:        types.ScopeSD,
		ScopeID:          scope,
		TriggerSource:    types.TriggerTestFailure,
		TriggerTier:      2,
		ProblemStatement: "login e2e fails",
		ImpactLevel:      types.ImpactCritical,
		LikelihoodLevel:  types.LikelihoodFrequent,
	}
}

func TestNewServer(t *testing.T) {
	t.Run("returns error when service is nil", func(t *testing.T) {
		_, err := NewServer(nil, logging.NewNop(), nil)
		assert.ErrorContains(t, err, "service cannot be nil")
	})

	t.Run("uses defaults when config is nil", func(t *testing.T) {
		server := setupTestServer(t, nil)
		assert.Equal(t, ":8080", server.config.Addr)
		assert.Nil(t, server.limiter)
	})
}

func TestHandleHealthAndMetrics(t *testing.T) {
	server := setupTestServer(t, nil)

	rec := do(t, server, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode[HealthResponse](t, rec).Status)

	rec = do(t, server, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestReportLifecycleOverHTTP(t *testing.T) {
	server := setupTestServer(t, nil)

	rec := do(t, server, http.MethodPost, "/api/v1/reports", p0Report("SD-1"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[rca.CreateResult](t, rec)
	assert.True(t, created.Created)
	assert.Equal(t, types.PriorityP0, created.Report.SeverityPriority)
	id := created.Report.ID

	rec = do(t, server, http.MethodPost, "/api/v1/reports", p0Report("SD-1"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, decode[rca.CreateResult](t, rec).Report.RecurrenceCount)

	rec = do(t, server, http.MethodGet, "/api/v1/gates/SD-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[gates.Result](t, rec).Pass)

	rec = do(t, server, http.MethodPost, "/api/v1/handoffs/SD-1/check", nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	blocked := decode[ErrorResponse](t, rec)
	assert.Equal(t, gates.ReasonGateBlocked, blocked.Code)
	require.Len(t, blocked.Blocking, 1)
	assert.Equal(t, id, blocked.Blocking[0].ID)

	capaIn := rca.CAPAInput{
		RCRID: id,
		ProposedChanges: types.ProposedChanges{
			CorrectiveActions: []types.Action{{Description: "fix session refresh"}},
		},
		VerificationPlan: types.VerificationPlan{SuccessCriteria: []string{"login e2e green"}},
	}
	rec = do(t, server, http.MethodPost, "/api/v1/capas", capaIn)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	capa := decode[types.CAPA](t, rec)

	for _, action := range []string{"approve", "start", "verify"} {
		rec = do(t, server, http.MethodPost, "/api/v1/capas/"+capa.ID+"/"+action, ActionRequest{Actor: "alice"})
		require.Equal(t, http.StatusOK, rec.Code, "%s: %s", action, rec.Body.String())
	}

	rec = do(t, server, http.MethodGet, "/api/v1/reports/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, types.ReportStatusResolved, decode[types.Report](t, rec).Status)

	rec = do(t, server, http.MethodPost, "/api/v1/handoffs/SD-1/check", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[HandoffResponse](t, rec).Pass)

	rec = do(t, server, http.MethodGet, "/api/v1/learning/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, id, decode[types.LearningRecord](t, rec).RCRID)

	rec = do(t, server, http.MethodPost, "/api/v1/learning/"+id+"/ingest", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, CodeAlreadyIngested, decode[ErrorResponse](t, rec).Code)

	rec = do(t, server, http.MethodGet, "/api/v1/reports/"+id+"/events", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, decode[[]types.Event](t, rec))

	rec = do(t, server, http.MethodGet, "/api/v1/reports/"+id+"/capas", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]types.CAPA](t, rec), 1)
}

func TestErrorMapping(t *testing.T) {
	server := setupTestServer(t, nil)

	rec := do(t, server, http.MethodPost, "/api/v1/reports", rca.ReportInput{ScopeType: "PRD"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, CodeValidation, decode[ErrorResponse](t, rec).Code)

	rec = do(t, server, http.MethodGet, "/api/v1/reports/rcr-missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, CodeNotFound, decode[ErrorResponse](t, rec).Code)

	rec = do(t, server, http.MethodPost, "/api/v1/reports", p0Report("SD-2"))
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode[rca.CreateResult](t, rec).Report.ID

	rec = do(t, server, http.MethodPost, "/api/v1/reports/"+id+"/close", ActionRequest{Actor: "alice"})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "reason is required")

	rec = do(t, server, http.MethodPost, "/api/v1/reports/"+id+"/close", ActionRequest{Reason: "duplicate of SD-1"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, server, http.MethodPost, "/api/v1/reports/"+id+"/review", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	resp := decode[ErrorResponse](t, rec)
	assert.Equal(t, CodeInvalidTransition, resp.Code)
	assert.Equal(t, string(types.ReportStatusClosedWontFix), resp.From)

	rec = do(t, server, http.MethodGet, "/api/v1/reports?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, server, http.MethodGet, "/api/v1/reports?status=BOGUS", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, server, http.MethodPost, "/api/v1/reports", p0Report("SD-empty"))
	require.Equal(t, http.StatusCreated, rec.Code)
	emptyReport := decode[rca.CreateResult](t, rec).Report.ID
	rec = do(t, server, http.MethodPost, "/api/v1/capas", rca.CAPAInput{RCRID: emptyReport})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	emptyCAPA := decode[types.CAPA](t, rec).ID
	rec = do(t, server, http.MethodPost, "/api/v1/capas/"+emptyCAPA+"/approve", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "nothing to approve is a validation failure")
	resp = decode[ErrorResponse](t, rec)
	assert.Equal(t, CodeValidation, resp.Code)
	assert.Equal(t, "proposed_changes", resp.Field)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/capas", bytes.NewBufferString("{not json"))
	req.Header.Set("Content-Type", "application/json")
	raw := httptest.NewRecorder()
	server.Handler().ServeHTTP(raw, req)
	assert.Equal(t, http.StatusBadRequest, raw.Code)
}

func TestDuplicateSignatureMapsToConflict(t *testing.T) {
	server := setupTestServer(t, nil)

	rec := httptest.NewRecorder()
	c := server.echo.NewContext(httptest.NewRequest(http.MethodPost, "/api/v1/reports", nil), rec)
	require.NoError(t, server.writeError(c, &types.DuplicateSignatureError{Signature: "abc", ExistingID: "rcr-open"}))

	assert.Equal(t, http.StatusConflict, rec.Code)
	resp := decode[ErrorResponse](t, rec)
	assert.Equal(t, CodeDuplicate, resp.Code)
	assert.Equal(t, "rcr-open", resp.ExistingID)
}

func TestAnalyzeOverHTTP(t *testing.T) {
	server := setupTestServer(t, nil)

	rec := do(t, server, http.MethodPost, "/api/v1/reports/rcr-missing/analyze", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, server, http.MethodPost, "/api/v1/reports", p0Report("SD-a1"))
	require.Equal(t, http.StatusCreated, rec.Code)
	older := decode[rca.CreateResult](t, rec).Report.ID
	rec = do(t, server, http.MethodPost, "/api/v1/capas", rca.CAPAInput{RCRID: older})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(t, server, http.MethodPost, "/api/v1/reports", p0Report("SD-a2"))
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode[rca.CreateResult](t, rec).Report.ID

	rec = do(t, server, http.MethodGet, "/api/v1/reports/"+id+"/analysis", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "not analyzed yet")

	rec = do(t, server, http.MethodPost, "/api/v1/reports/"+id+"/analyze", ActionRequest{Actor: "alice"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	a := decode[types.Analysis](t, rec)
	require.Len(t, a.PatternMatches, 1)
	assert.Equal(t, older, a.PatternMatches[0].RCRID)
	assert.False(t, a.PatternMatches[0].Resolved)
	assert.NotEmpty(t, a.PatternID)

	rec = do(t, server, http.MethodGet, "/api/v1/reports/"+id+"/analysis", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stored := decode[types.Analysis](t, rec)
	assert.Equal(t, a.PatternID, stored.PatternID)
	assert.Equal(t, 1, stored.Attempts)
}

func TestListEndpoints(t *testing.T) {
	server := setupTestServer(t, nil)

	rec := do(t, server, http.MethodGet, "/api/v1/reports", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]\n", rec.Body.String())

	low := p0Report("SD-3")
	low.ImpactLevel = types.ImpactLow
	low.LikelihoodLevel = types.LikelihoodRare
	require.Equal(t, http.StatusCreated, do(t, server, http.MethodPost, "/api/v1/reports", low).Code)
	require.Equal(t, http.StatusCreated, do(t, server, http.MethodPost, "/api/v1/reports", p0Report("SD-4")).Code)

	rec = do(t, server, http.MethodGet, "/api/v1/reports?priority=P4", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	reports := decode[[]types.Report](t, rec)
	require.Len(t, reports, 1)
	assert.Equal(t, "SD-3", reports[0].ScopeID)

	rec = do(t, server, http.MethodGet, "/api/v1/analytics/summary", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"blocking_open":1`)

	rec = do(t, server, http.MethodGet, "/api/v1/analytics/recurrence?min=-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, server, http.MethodGet, "/api/v1/learning", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]\n", rec.Body.String())

	rec = do(t, server, http.MethodGet, "/api/v1/triggers?tier=3", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[TriggerListResponse](t, rec)
	assert.Len(t, list.Triggers, 3)
	for _, tr := range list.Triggers {
		assert.Equal(t, 3, tr.Tier)
	}

	rec = do(t, server, http.MethodGet, "/api/v1/triggers?tier=9", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRateLimit(t *testing.T) {
	server := setupTestServer(t, &Config{Addr: ":0", RateLimitRPS: 0.001, RateLimitBurst: 2})

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusOK, do(t, server, http.MethodGet, "/api/v1/triggers", nil).Code)
	}
	rec := do(t, server, http.MethodGet, "/api/v1/triggers", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	// Health and metrics sit outside the limited group.
	assert.Equal(t, http.StatusOK, do(t, server, http.MethodGet, "/health", nil).Code)
}
