// Package http provides the rca HTTP API.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/steveyegge/rcagov/internal/logging"
	"github.com/steveyegge/rcagov/internal/rca"
)

// Server serves the governance API.
type Server struct {
	echo    *echo.Echo
	svc     *rca.Service
	logger  *logging.Logger
	config  *Config
	limiter *clientLimiter
}

// Config holds HTTP server configuration.
type Config struct {
	Addr string

	// RateLimitRPS is the per-client sustained rate; 0 disables limiting
	RateLimitRPS   float64
	RateLimitBurst int
}

// NewServer creates a new HTTP server.
func NewServer(svc *rca.Service, logger *logging.Logger, cfg *Config) (*Server, error) {
	if svc == nil {
		return nil, fmt.Errorf("service cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{Addr: ":8080"}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:   e,
		svc:    svc,
		logger: logger.Named("http"),
		config: cfg,
	}
	if cfg.RateLimitRPS > 0 {
		s.limiter = newClientLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(s.logRequests)
	e.Use(NewHTTPMetrics(s.logger).MetricsMiddleware())

	s.registerRoutes()
	return s, nil
}

func (s *Server) logRequests(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		if err != nil {
			c.Error(err)
		}
		s.logger.Info(c.Request().Context(), "http request",
			zap.String("method", c.Request().Method),
			zap.String("uri", c.Request().RequestURI),
			zap.Int("status", c.Response().Status),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
		)
		return nil
	}
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	if s.limiter != nil {
		v1.Use(s.limiter.Middleware())
	}

	v1.POST("/reports", s.handleCreateReport)
	v1.GET("/reports", s.handleListReports)
	v1.GET("/reports/:id", s.handleGetReport)
	v1.POST("/reports/:id/review", s.handleStartReview)
	v1.POST("/reports/:id/close", s.handleCloseWontFix)
	v1.GET("/reports/:id/events", s.handleReportEvents)
	v1.GET("/reports/:id/capas", s.handleListCAPAs)
	v1.POST("/reports/:id/analyze", s.handleAnalyze)
	v1.GET("/reports/:id/analysis", s.handleGetAnalysis)

	v1.POST("/capas", s.handleCreateCAPA)
	v1.GET("/capas/:id", s.handleGetCAPA)
	v1.POST("/capas/:id/approve", s.handleApprove)
	v1.POST("/capas/:id/start", s.handleStartWork)
	v1.POST("/capas/:id/verify", s.handleVerify)
	v1.POST("/capas/:id/reject", s.handleReject)
	v1.POST("/capas/:id/abandon", s.handleAbandon)

	v1.GET("/gates/:scope", s.handleEvaluateGate)
	v1.POST("/handoffs/:scope/check", s.handleHandoffCheck)

	v1.GET("/analytics/summary", s.handleAnalyticsSummary)
	v1.GET("/analytics/recurrence", s.handleRecurrence)

	v1.GET("/learning", s.handleListLearning)
	v1.GET("/learning/:rcr_id", s.handleGetLearning)
	v1.POST("/learning/:rcr_id/ingest", s.handleIngest)

	v1.GET("/triggers", s.handleListTriggers)
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start starts the HTTP server. It returns http.ErrServerClosed after Shutdown.
func (s *Server) Start() error {
	s.logger.Info(context.Background(), "starting http server", zap.String("addr", s.config.Addr))
	return s.echo.Start(s.config.Addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}
