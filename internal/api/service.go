package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/andrelcx/wamon/internal/browser"
	"github.com/andrelcx/wamon/internal/bus"
	"github.com/andrelcx/wamon/internal/monitor"
	"github.com/andrelcx/wamon/internal/store"
)

// Monitor is the subset of the session monitor the API exposes.
type Monitor interface {
	Connect(ctx context.Context) (monitor.State, error)
	Disconnect() error
	Status() monitor.State
	StartMonitoring(ctx context.Context) error
	CheckLogin(ctx context.Context) (monitor.State, error)
	UnprocessedMessages(ctx context.Context, limit int) ([]store.Message, error)
	MarkProcessed(ctx context.Context, id string, workRelated bool, priority string) error
}

// Service exposes the monitor's command surface over HTTP.
type Service struct {
	mon      Monitor
	bus      *bus.Bus
	validate *validator.Validate
	logger   *zap.Logger
}

func NewService(mon Monitor, b *bus.Bus, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		mon:      mon,
		bus:      b,
		validate: validator.New(),
		logger:   logger,
	}
}

// Register mounts all routes on the echo instance.
func (s *Service) Register(e *echo.Echo) {
	v1 := e.Group("/v1")
	v1.POST("/session/connect", s.connect)
	v1.POST("/session/disconnect", s.disconnect)
	v1.GET("/session/status", s.status)
	v1.POST("/session/check-login", s.checkLogin)
	v1.POST("/monitor/start", s.startMonitoring)
	v1.GET("/messages/unprocessed", s.unprocessedMessages)
	v1.POST("/messages/:id/processed", s.markProcessed)
	v1.GET("/events", s.events)
}

func (s *Service) connect(c echo.Context) error {
	state, err := s.mon.Connect(c.Request().Context())
	if err != nil {
		s.logger.Warn("connect failed", zap.Error(err))
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, state)
}

func (s *Service) disconnect(c echo.Context) error {
	if err := s.mon.Disconnect(); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, okResponse{OK: true})
}

func (s *Service) status(c echo.Context) error {
	return c.JSON(http.StatusOK, s.mon.Status())
}

func (s *Service) checkLogin(c echo.Context) error {
	state, err := s.mon.CheckLogin(c.Request().Context())
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, state)
}

func (s *Service) startMonitoring(c echo.Context) error {
	if err := s.mon.StartMonitoring(c.Request().Context()); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, okResponse{OK: true})
}

func (s *Service) unprocessedMessages(c echo.Context) error {
	limit := 50
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "limit must be a positive integer"})
		}
		limit = n
	}
	msgs, err := s.mon.UnprocessedMessages(c.Request().Context(), limit)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, messagesResponse{Messages: msgs, Count: len(msgs)})
}

func (s *Service) markProcessed(c echo.Context) error {
	var req MarkProcessedRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
	}
	if err := s.validate.Struct(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	}
	id := c.Param("id")
	if err := s.mon.MarkProcessed(c.Request().Context(), id, *req.WorkRelated, req.Priority); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, okResponse{OK: true})
}

// events streams bus events as server-sent events until the client leaves.
func (s *Service) events(c echo.Context) error {
	ch, unsub := s.bus.Subscribe("monitor.", 16)
	defer unsub()

	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set("Cache-Control", "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.WriteHeader(http.StatusOK)
	resp.Flush()

	for {
		select {
		case <-c.Request().Context().Done():
			return nil
		case evt := <-ch:
			data, err := json.Marshal(map[string]any{
				"kind":      evt.Kind,
				"timestamp": evt.Timestamp,
				"payload":   evt.Payload,
			})
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(resp, "event: %s\ndata: %s\n\n", evt.Kind, data); err != nil {
				return nil
			}
			resp.Flush()
		}
	}
}

// fail maps domain errors to HTTP statuses. Precondition violations are 409,
// browser trouble is 502, timeouts 504, unknown rows 404, the rest 500.
func (s *Service) fail(c echo.Context, err error) error {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, monitor.ErrAlreadyConnected), errors.Is(err, monitor.ErrNotConnected):
		code = http.StatusConflict
	case errors.Is(err, browser.ErrTimeout):
		code = http.StatusGatewayTimeout
	case errors.Is(err, browser.ErrBrowserInit),
		errors.Is(err, browser.ErrNavigation),
		errors.Is(err, browser.ErrElementNotFound):
		code = http.StatusBadGateway
	case errors.Is(err, store.ErrNotFound):
		code = http.StatusNotFound
	}
	return c.JSON(code, errorResponse{Error: err.Error()})
}
