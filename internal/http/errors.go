package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/notexe/memo/internal/reminder"
)

// Error codes returned in ErrorResponse.Error.
const (
	codeValidation        = "VALIDATION_ERROR"
	codeNotFound          = "NOT_FOUND"
	codeInvalidTransition = "INVALID_TRANSITION"
	codeRateLimited       = "RATE_LIMITED"
	codeInternal          = "INTERNAL_ERROR"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func errorJSON(c echo.Context, status int, code, message string) error {
	return c.JSON(status, ErrorResponse{Error: code, Message: message})
}

// handleError maps domain and echo errors to the JSON error shape. Storage
// details are logged, never returned.
func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var (
		status  int
		code    string
		message string
		httpErr *echo.HTTPError
		verr    *reminder.ValidationError
	)

	switch {
	case errors.As(err, &verr):
		status, code, message = http.StatusBadRequest, codeValidation, verr.Error()
	case errors.Is(err, reminder.ErrNotFound):
		status, code, message = http.StatusNotFound, codeNotFound, err.Error()
	case errors.Is(err, reminder.ErrInvalidTransition):
		status, code, message = http.StatusConflict, codeInvalidTransition, err.Error()
	case errors.As(err, &httpErr):
		status = httpErr.Code
		code = codeForStatus(status)
		message = http.StatusText(status)
		if m, ok := httpErr.Message.(string); ok {
			message = m
		}
	default:
		status, code, message = http.StatusInternalServerError, codeInternal, "internal server error"
		s.logger.Error("request failed",
			zap.String("method", c.Request().Method),
			zap.String("path", c.Path()),
			zap.Error(err))
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(status)
	} else {
		err = errorJSON(c, status, code, message)
	}
	if err != nil {
		s.logger.Warn("failed to write error response", zap.Error(err))
	}
}

func codeForStatus(status int) string {
	switch {
	case status == http.StatusNotFound:
		return codeNotFound
	case status == http.StatusTooManyRequests:
		return codeRateLimited
	case status >= 400 && status < 500:
		return codeValidation
	}
	return codeInternal
}
