// Package httpserver serves the engine status API and the Prometheus
// metrics endpoint.
package httpserver

import (
	"context"
	stderrors "errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/tphakala/pulseshim/internal/audiocore"
	"github.com/tphakala/pulseshim/internal/audiocore/engine"
	"github.com/tphakala/pulseshim/internal/errors"
	"github.com/tphakala/pulseshim/internal/logger"
	"github.com/tphakala/pulseshim/internal/observability"
	"github.com/tphakala/pulseshim/internal/privacy"
)

// ShutdownTimeout bounds the graceful shutdown in Run
const ShutdownTimeout = 5 * time.Second

// Server is the HTTP status server
type Server struct {
	echo    *echo.Echo
	eng     *engine.Engine
	metrics *observability.Metrics
	addr    string
	version string
	log     logger.Logger

	startTime time.Time
}

// ServerOption is a functional option for configuring the Server.
type ServerOption func(*Server)

// WithMetrics mounts the Prometheus registry at /metrics.
func WithMetrics(m *observability.Metrics) ServerOption {
	return func(s *Server) { s.metrics = m }
}

// WithVersion sets the version reported by /healthz.
func WithVersion(v string) ServerOption {
	return func(s *Server) { s.version = v }
}

// New creates a server for eng listening on addr.
func New(eng *engine.Engine, addr string, opts ...ServerOption) *Server {
	s := &Server{
		eng:       eng,
		addr:      addr,
		log:       logger.Global().Module("httpserver"),
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.echo = echo.New()
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Use(echomw.Recover())
	s.echo.Use(s.requestLogger)

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.echo.GET("/healthz", s.healthCheck)

	v1 := s.echo.Group("/api/v1")
	v1.GET("/streams", s.listStreams)
	v1.GET("/endpoints", s.listEndpoints)
	v1.GET("/endpoints/:id", s.getEndpoint)

	if s.metrics != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
	}
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler { return s.echo }

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server starting", logger.String("address", s.addr))
		errCh <- s.echo.Start(s.addr)
	}()

	select {
	case err := <-errCh:
		if stderrors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.New(err).
			Component("httpserver").
			Category(errors.CategoryNetwork).
			Context("address", s.addr).
			Build()
	case <-ctx.Done():
	}

	s.log.Info("stopping http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return errors.New(err).
			Component("httpserver").
			Category(errors.CategoryNetwork).
			Context("operation", "shutdown").
			Build()
	}
	<-errCh
	return nil
}

func (s *Server) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		var done func(method, route string, status int)
		if s.metrics != nil {
			done = s.metrics.HTTP.RequestStarted()
		}
		err := next(c)
		if err != nil {
			c.Error(err)
		}
		if done != nil {
			done(c.Request().Method, c.Path(), c.Response().Status)
		}
		s.log.Debug("http request",
			logger.String("method", c.Request().Method),
			logger.String("path", c.Path()),
			logger.Int("status", c.Response().Status),
			logger.Duration("elapsed", time.Since(start)))
		return err
	}
}

// HealthResponse is the /healthz body
type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version,omitempty"`
	Attached bool   `json:"attached"`
	Streams  int    `json:"streams"`
	Uptime   string `json:"uptime"`
}

func (s *Server) healthCheck(c echo.Context) error {
	resp := HealthResponse{
		Status:   "healthy",
		Version:  s.version,
		Attached: s.eng.Attached(),
		Streams:  s.eng.StreamCount(),
		Uptime:   time.Since(s.startTime).Round(time.Second).String(),
	}
	code := http.StatusOK
	if !resp.Attached {
		resp.Status = "detached"
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, resp)
}

func (s *Server) listStreams(c echo.Context) error {
	return c.JSON(http.StatusOK, s.eng.Streams())
}

func (s *Server) listEndpoints(c echo.Context) error {
	flow, err := flowParam(c)
	if err != nil {
		return err
	}
	list, err := s.eng.Endpoints(c.Request().Context(), flow)
	if err != nil {
		return s.engineError(err)
	}
	return c.JSON(http.StatusOK, list)
}

func (s *Server) getEndpoint(c echo.Context) error {
	flow, err := flowParam(c)
	if err != nil {
		return err
	}
	ep, err := s.eng.Endpoint(c.Request().Context(), flow, c.Param("id"))
	if err != nil {
		return s.engineError(err)
	}
	return c.JSON(http.StatusOK, ep)
}

// flowParam reads ?flow=, defaulting to render
func flowParam(c echo.Context) (audiocore.Flow, error) {
	v := c.QueryParam("flow")
	if v == "" {
		return audiocore.FlowRender, nil
	}
	flow, err := audiocore.ParseFlow(v)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "flow must be render or capture")
	}
	return flow, nil
}

func (s *Server) engineError(err error) error {
	switch {
	case errors.Is(err, audiocore.ErrDeviceNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "endpoint not found")
	case errors.Is(err, audiocore.ErrNotInitialized), errors.Is(err, audiocore.ErrServiceNotRunning):
		return echo.NewHTTPError(http.StatusServiceUnavailable, "host audio server unavailable")
	}
	s.log.Warn("status request failed", logger.Error(privacy.WrapError(err)))
	return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
}
