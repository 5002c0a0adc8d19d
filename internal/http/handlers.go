package http

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/steveyegge/rcagov/internal/analytics"
	"github.com/steveyegge/rcagov/internal/rca"
	"github.com/steveyegge/rcagov/internal/triggers"
	"github.com/steveyegge/rcagov/internal/types"
)

// ActionRequest is the body of lifecycle action endpoints. Reason is
// required by close and recorded by reject and abandon; Notes is used by verify.
type ActionRequest struct {
	Actor  string `json:"actor"`
	Reason string `json:"reason"`
	Notes  string `json:"notes"`
}

// HandoffResponse is the body of a passing handoff check.
type HandoffResponse struct {
	ScopeID string `json:"scope_id"`
	Pass    bool   `json:"pass"`
}

// TriggerListResponse lists registry entries ordered by tier then code.
type TriggerListResponse struct {
	Triggers []triggers.Trigger `json:"triggers"`
}

// bindAction decodes an optional action body. An empty body is allowed.
func bindAction(c echo.Context) (ActionRequest, error) {
	var req ActionRequest
	if c.Request().ContentLength == 0 {
		return req, nil
	}
	err := c.Bind(&req)
	return req, err
}

// queryInt parses an optional integer query parameter; absent is zero.
func queryInt(c echo.Context, name string) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

// Reports

func (s *Server) handleCreateReport(c echo.Context) error {
	var in rca.ReportInput
	if err := c.Bind(&in); err != nil {
		return badRequest(c, "", "invalid request body")
	}
	res, err := s.svc.CreateReport(c.Request().Context(), in)
	if err != nil {
		return s.writeError(c, err)
	}
	status := http.StatusCreated
	if !res.Created {
		status = http.StatusOK
	}
	return c.JSON(status, res)
}

func (s *Server) handleListReports(c echo.Context) error {
	filter := types.ReportFilter{ScopeID: c.QueryParam("scope")}
	if v := c.QueryParam("status"); v != "" {
		st := types.ReportStatus(v)
		filter.Status = &st
	}
	if v := c.QueryParam("priority"); v != "" {
		p := types.Priority(v)
		filter.Priority = &p
	}
	if v := c.QueryParam("open"); v != "" {
		open, err := strconv.ParseBool(v)
		if err != nil {
			return badRequest(c, "open", "open must be a boolean")
		}
		filter.OpenOnly = open
	}
	limit, err := queryInt(c, "limit")
	if err != nil || limit < 0 {
		return badRequest(c, "limit", "limit must be a non-negative integer")
	}
	filter.Limit = limit

	reports, err := s.svc.ListReports(c.Request().Context(), filter)
	if err != nil {
		return s.writeError(c, err)
	}
	if reports == nil {
		reports = []*types.Report{}
	}
	return c.JSON(http.StatusOK, reports)
}

func (s *Server) handleGetReport(c echo.Context) error {
	report, err := s.svc.GetReport(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, report)
}

func (s *Server) handleStartReview(c echo.Context) error {
	req, err := bindAction(c)
	if err != nil {
		return badRequest(c, "", "invalid request body")
	}
	report, err := s.svc.StartReview(c.Request().Context(), c.Param("id"), req.Actor)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, report)
}

func (s *Server) handleAnalyze(c echo.Context) error {
	req, err := bindAction(c)
	if err != nil {
		return badRequest(c, "", "invalid request body")
	}
	a, err := s.svc.Analyze(c.Request().Context(), c.Param("id"), req.Actor)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, a)
}

func (s *Server) handleGetAnalysis(c echo.Context) error {
	a, err := s.svc.GetAnalysis(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, a)
}

func (s *Server) handleCloseWontFix(c echo.Context) error {
	req, err := bindAction(c)
	if err != nil {
		return badRequest(c, "", "invalid request body")
	}
	report, err := s.svc.CloseWontFix(c.Request().Context(), c.Param("id"), req.Actor, req.Reason)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, report)
}

func (s *Server) handleReportEvents(c echo.Context) error {
	limit, err := queryInt(c, "limit")
	if err != nil || limit < 0 {
		return badRequest(c, "limit", "limit must be a non-negative integer")
	}
	ctx := c.Request().Context()
	id := c.Param("id")
	if _, err := s.svc.GetReport(ctx, id); err != nil {
		return s.writeError(c, err)
	}
	evs, err := s.svc.ListEvents(ctx, types.EventFilter{EntityID: id, Limit: limit})
	if err != nil {
		return s.writeError(c, err)
	}
	if evs == nil {
		evs = []*types.Event{}
	}
	return c.JSON(http.StatusOK, evs)
}

func (s *Server) handleListCAPAs(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")
	if _, err := s.svc.GetReport(ctx, id); err != nil {
		return s.writeError(c, err)
	}
	capas, err := s.svc.ListCAPAs(ctx, id)
	if err != nil {
		return s.writeError(c, err)
	}
	if capas == nil {
		capas = []*types.CAPA{}
	}
	return c.JSON(http.StatusOK, capas)
}

// CAPAs

func (s *Server) handleCreateCAPA(c echo.Context) error {
	var in rca.CAPAInput
	if err := c.Bind(&in); err != nil {
		return badRequest(c, "", "invalid request body")
	}
	capa, err := s.svc.CreateCAPA(c.Request().Context(), in)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusCreated, capa)
}

func (s *Server) handleGetCAPA(c echo.Context) error {
	capa, err := s.svc.GetCAPA(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, capa)
}

// capaAction adapts a CAPA transition to a handler.
func (s *Server) capaAction(c echo.Context, apply func(id string, req ActionRequest) (*types.CAPA, error)) error {
	req, err := bindAction(c)
	if err != nil {
		return badRequest(c, "", "invalid request body")
	}
	capa, err := apply(c.Param("id"), req)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, capa)
}

func (s *Server) handleApprove(c echo.Context) error {
	return s.capaAction(c, func(id string, req ActionRequest) (*types.CAPA, error) {
		return s.svc.Approve(c.Request().Context(), id, req.Actor)
	})
}

func (s *Server) handleStartWork(c echo.Context) error {
	return s.capaAction(c, func(id string, req ActionRequest) (*types.CAPA, error) {
		return s.svc.StartWork(c.Request().Context(), id, req.Actor)
	})
}

func (s *Server) handleVerify(c echo.Context) error {
	return s.capaAction(c, func(id string, req ActionRequest) (*types.CAPA, error) {
		return s.svc.Verify(c.Request().Context(), id, req.Actor, req.Notes)
	})
}

func (s *Server) handleReject(c echo.Context) error {
	return s.capaAction(c, func(id string, req ActionRequest) (*types.CAPA, error) {
		return s.svc.Reject(c.Request().Context(), id, req.Actor, req.Reason)
	})
}

func (s *Server) handleAbandon(c echo.Context) error {
	return s.capaAction(c, func(id string, req ActionRequest) (*types.CAPA, error) {
		return s.svc.Abandon(c.Request().Context(), id, req.Actor, req.Reason)
	})
}

// Gates

func (s *Server) handleEvaluateGate(c echo.Context) error {
	result, err := s.svc.EvaluateGate(c.Request().Context(), c.Param("scope"))
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

func (s *Server) handleHandoffCheck(c echo.Context) error {
	scope := c.Param("scope")
	if err := s.svc.RequirePass(c.Request().Context(), scope); err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, HandoffResponse{ScopeID: scope, Pass: true})
}

// Analytics

func (s *Server) handleAnalyticsSummary(c echo.Context) error {
	summary, err := s.svc.Analytics().Summary(c.Request().Context())
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, summary)
}

func (s *Server) handleRecurrence(c echo.Context) error {
	var q analytics.RecurrenceQuery
	var err error
	if q.MinOccurrences, err = queryInt(c, "min"); err != nil {
		return badRequest(c, "min", "min must be an integer")
	}
	if q.Limit, err = queryInt(c, "limit"); err != nil {
		return badRequest(c, "limit", "limit must be an integer")
	}
	patterns, err := s.svc.Analytics().Recurrence(c.Request().Context(), q)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, patterns)
}

// Learning

func (s *Server) handleListLearning(c echo.Context) error {
	filter := types.LearningFilter{
		RootCauseCategory: types.RootCauseCategory(c.QueryParam("category")),
	}
	if v := c.QueryParam("preventable"); v != "" {
		p, err := strconv.ParseBool(v)
		if err != nil {
			return badRequest(c, "preventable", "preventable must be a boolean")
		}
		filter.PreventableOnly = p
	}
	limit, err := queryInt(c, "limit")
	if err != nil || limit < 0 {
		return badRequest(c, "limit", "limit must be a non-negative integer")
	}
	filter.Limit = limit

	records, err := s.svc.ListLearningRecords(c.Request().Context(), filter)
	if err != nil {
		return s.writeError(c, err)
	}
	if records == nil {
		records = []*types.LearningRecord{}
	}
	return c.JSON(http.StatusOK, records)
}

func (s *Server) handleGetLearning(c echo.Context) error {
	record, err := s.svc.GetLearningRecord(c.Request().Context(), c.Param("rcr_id"))
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, record)
}

func (s *Server) handleIngest(c echo.Context) error {
	req, err := bindAction(c)
	if err != nil {
		return badRequest(c, "", "invalid request body")
	}
	record, err := s.svc.Ingest(c.Request().Context(), c.Param("rcr_id"), req.Actor)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusCreated, record)
}

// Triggers

func (s *Server) handleListTriggers(c echo.Context) error {
	all := s.svc.Triggers().All()
	if v := c.QueryParam("tier"); v != "" {
		tier, err := strconv.Atoi(v)
		if err != nil || tier < types.MinTriggerTier || tier > types.MaxTriggerTier {
			return badRequest(c, "tier", "tier must be between 1 and 4")
		}
		all = s.svc.Triggers().ByTier(tier)
	}
	return c.JSON(http.StatusOK, TriggerListResponse{Triggers: all})
}
