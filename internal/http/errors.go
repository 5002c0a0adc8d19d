package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/steveyegge/rcagov/internal/gates"
	"github.com/steveyegge/rcagov/internal/rca"
	"github.com/steveyegge/rcagov/internal/types"
)

// Error codes carried in ErrorResponse.Code.
const (
	CodeValidation        = "VALIDATION_ERROR"
	CodeNotFound          = "NOT_FOUND"
	CodeInvalidTransition = "INVALID_TRANSITION"
	CodeAlreadyIngested   = "ALREADY_INGESTED"
	CodeDuplicate         = "DUPLICATE_SIGNATURE"
	CodeInternal          = "INTERNAL_ERROR"
)

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Code       string                 `json:"code"`
	Message    string                 `json:"message"`
	Field      string                 `json:"field,omitempty"`
	From       string                 `json:"from,omitempty"`
	To         string                 `json:"to,omitempty"`
	Blocking   []gates.BlockingReport `json:"blocking,omitempty"`
	ExistingID string                 `json:"existing_id,omitempty"`
}

// writeError maps a service error onto a status code and JSON body.
func (s *Server) writeError(c echo.Context, err error) error {
	var (
		verr    *types.ValidationError
		nferr   *types.NotFoundError
		iterr   *types.InvalidTransitionError
		blocked *gates.BlockedError
		duperr  *types.DuplicateSignatureError
	)
	switch {
	case errors.As(err, &blocked):
		return c.JSON(http.StatusConflict, ErrorResponse{
			Code:     blocked.ReasonCode,
			Message:  blocked.Error(),
			Blocking: blocked.Blocking,
		})
	case errors.As(err, &verr):
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Code: CodeValidation, Message: verr.Message, Field: verr.Field,
		})
	case errors.As(err, &nferr):
		return c.JSON(http.StatusNotFound, ErrorResponse{Code: CodeNotFound, Message: nferr.Error()})
	case errors.As(err, &iterr):
		return c.JSON(http.StatusConflict, ErrorResponse{
			Code: CodeInvalidTransition, Message: iterr.Error(), From: iterr.From, To: iterr.To,
		})
	case errors.As(err, &duperr):
		return c.JSON(http.StatusConflict, ErrorResponse{
			Code: CodeDuplicate, Message: duperr.Error(), ExistingID: duperr.ExistingID,
		})
	case errors.Is(err, rca.ErrAlreadyIngested):
		return c.JSON(http.StatusConflict, ErrorResponse{Code: CodeAlreadyIngested, Message: err.Error()})
	}

	s.logger.Error(c.Request().Context(), "request failed",
		zap.String("path", c.Path()),
		zap.Error(err))
	return c.JSON(http.StatusInternalServerError, ErrorResponse{
		Code: CodeInternal, Message: "internal error",
	})
}

func badRequest(c echo.Context, field, msg string) error {
	return c.JSON(http.StatusBadRequest, ErrorResponse{Code: CodeValidation, Message: msg, Field: field})
}
