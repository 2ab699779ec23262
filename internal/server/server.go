// SPDX-License-Identifier: MIT
//
// Package server exposes the pipeline state, the message log and the live
// event streams over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"tonecast/internal/dispatch"
	"tonecast/internal/log"
	"tonecast/internal/pipeline"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// StateReader provides the latest pipeline state.
type StateReader interface {
	Snapshot() pipeline.Snapshot
}

// LogDumper returns the message log.
type LogDumper interface {
	Dump() ([]byte, error)
}

// Options configures a Server.
type Options struct {
	Addr     string
	SSERetry time.Duration

	// Logs serves /log-dump; nil answers 404.
	Logs LogDumper

	// Metrics serves /metrics; nil leaves the route unregistered.
	Metrics http.Handler
}

// Server is the HTTP surface.
type Server struct {
	e         *echo.Echo
	addr      string
	retry     time.Duration
	state     StateReader
	broadcast *dispatch.Broadcast
	logs      LogDumper
	upgrader  *websocket.Upgrader
}

// New builds the router.
func New(state StateReader, broadcast *dispatch.Broadcast, opts Options) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:    true,
		LogStatus: true,
		LogMethod: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			log.Debugf("Server: %s %s -> %d", v.Method, v.URI, v.Status)
			return nil
		},
	}))

	s := &Server{
		e:         e,
		addr:      opts.Addr,
		retry:     opts.SSERetry,
		state:     state,
		broadcast: broadcast,
		logs:      opts.Logs,
		upgrader:  dispatch.NewUpgrader(),
	}

	e.GET("/healthz", s.health)
	e.GET("/status-query", s.status)
	e.GET("/latest-message", s.latest)
	e.GET("/voice-assistant-query", s.voice)
	e.GET("/live-events", s.liveEvents)
	e.GET("/live-socket", s.liveSocket)
	e.GET("/log-dump", s.logDump)
	if opts.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(opts.Metrics))
	}
	return s
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.e }

// Start listens until Shutdown is called.
func (s *Server) Start() error {
	log.Infof("Server: listening on %s", s.addr)
	if err := s.e.Start(s.addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for active ones until ctx
// expires. Live streams end when their subscribers are closed.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.e.Shutdown(ctx)
}

type statusResponse struct {
	Running       bool     `json:"running"`
	LastMessage   string   `json:"lastMessage"`
	LastFrequency *float64 `json:"lastFrequency"`
	LastMagnitude float64  `json:"lastMagnitude"`
	Symbols       []string `json:"symbols,omitempty"`
}

type latestResponse struct {
	Message      string   `json:"message"`
	Frequency    *float64 `json:"frequency"`
	Timestamp    string   `json:"timestamp"`
	SignatureKey string   `json:"signatureKey,omitempty"`
	Symbols      []string `json:"symbols,omitempty"`
}

type speechResponse struct {
	Speech string `json:"speech"`
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) status(c echo.Context) error {
	snap := s.state.Snapshot()
	resp := statusResponse{Running: snap.Running}
	if m := snap.Last; m != nil {
		ev := m.Event()
		resp.LastMessage = m.Text
		resp.LastFrequency = ev.Frequency
		resp.LastMagnitude = ev.Magnitude
		resp.Symbols = ev.Symbols
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) latest(c echo.Context) error {
	var resp latestResponse
	if m := s.state.Snapshot().Last; m != nil {
		ev := m.Event()
		resp = latestResponse{
			Message:      ev.Message,
			Frequency:    ev.Frequency,
			Timestamp:    ev.Timestamp,
			SignatureKey: ev.SignatureKey,
			Symbols:      ev.Symbols,
		}
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) voice(c echo.Context) error {
	var resp speechResponse
	if m := s.state.Snapshot().Last; m != nil {
		resp.Speech = m.Text
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) liveEvents(c echo.Context) error {
	sub, err := dispatch.NewStreamSubscriber(c.Response(), s.retry, dispatch.DefaultWriteTimeout)
	if err != nil {
		log.Debugf("Server: live-events stream failed to start: %v", err)
		return nil
	}
	id := s.broadcast.Subscribe(sub)
	defer s.broadcast.Unsubscribe(id)

	select {
	case <-c.Request().Context().Done():
	case <-sub.Done():
	}
	return nil
}

func (s *Server) liveSocket(c echo.Context) error {
	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// The upgrader has already answered the request.
		log.Debugf("Server: websocket upgrade failed: %v", err)
		return nil
	}
	sub := dispatch.NewWebSocketSubscriber(conn, dispatch.DefaultWriteTimeout)
	id := s.broadcast.Subscribe(sub)
	go func() {
		<-sub.Done()
		s.broadcast.Unsubscribe(id)
	}()
	return nil
}

func (s *Server) logDump(c echo.Context) error {
	if s.logs == nil {
		return echo.NewHTTPError(http.StatusNotFound, "message log is disabled")
	}
	data, err := s.logs.Dump()
	if err != nil {
		log.Errorf("Server: %v", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to read message log")
	}
	return c.Blob(http.StatusOK, echo.MIMETextPlainCharsetUTF8, data)
}

var _ StateReader = (*pipeline.State)(nil)

