package http

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/notexe/memo/internal/reminder"
)

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

// DeleteResponse is the response body for DELETE /reminders/:id.
type DeleteResponse struct {
	OK bool `json:"ok"`
}

// handleHealth reports whether the store answers.
func (s *Server) handleHealth(c echo.Context) error {
	if err := s.engine.Ping(c.Request().Context()); err != nil {
		s.logger.Warn("health check failed", zap.Error(err))
		return c.JSON(http.StatusServiceUnavailable, HealthResponse{Status: "degraded", Service: "reminders"})
	}
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok", Service: "reminders"})
}

func (s *Server) handleCreate(c echo.Context) error {
	var req reminder.CreateInput
	if err := c.Bind(&req); err != nil {
		return err
	}

	created, err := s.engine.Create(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, created)
}

func (s *Server) handleList(c echo.Context) error {
	reminders, err := s.engine.List(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, reminders)
}

func (s *Server) handleGet(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}

	r, err := s.engine.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, r)
}

func (s *Server) handleUpdate(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}

	var req reminder.UpdateInput
	if err := c.Bind(&req); err != nil {
		return err
	}

	updated, err := s.engine.Update(c.Request().Context(), id, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, updated)
}

// handleDelete succeeds whether or not the id existed.
func (s *Server) handleDelete(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}

	if _, err := s.engine.Delete(c.Request().Context(), id); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, DeleteResponse{OK: true})
}

func (s *Server) handleHistory(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}

	events, err := s.engine.History(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, events)
}

func (s *Server) handleEvents(c echo.Context) error {
	events, err := s.engine.AllEvents(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, events)
}

func pathID(c echo.Context) (int64, error) {
	raw := c.Param("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, &reminder.ValidationError{Field: "id", Message: "must be an integer, got " + strconv.Quote(raw)}
	}
	return id, nil
}
