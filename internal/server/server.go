// Package server wires the HTTP surface: the page, component actions, the
// SSE stream, metrics and health.
package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	aggecho "github.com/pthm/aggui/adapters/echo"

	"github.com/pthm/aggui"
	"github.com/pthm/aggui/internal/app"
	"github.com/pthm/aggui/internal/components"
	"github.com/pthm/aggui/internal/logger"
	"github.com/pthm/aggui/internal/metrics"
	"github.com/pthm/aggui/internal/session"
)

// EventsPath serves the per-session SSE stream.
const EventsPath = "/events"

// Options are the collaborators New wires together.
type Options struct {
	Title    string
	Registry *aggui.Registry
	Sessions *session.Manager
	Hub      *Hub
	Logger   *logger.Logger
	Metrics  *metrics.Metrics
	// Ready reports whether notifications are connected; nil means always.
	Ready func() bool
}

// Server is the aggui HTTP server.
type Server struct {
	echo *echo.Echo
	opts Options
	log  *logger.Logger
}

// New builds the echo instance. Components must already be registered on
// opts.Registry.
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	if opts.Title == "" {
		opts.Title = "Aggregators"
	}
	s := &Server{echo: echo.New(), opts: opts, log: opts.Logger.With("component", "server")}

	e := s.echo
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			opts.Metrics.Request(v.Method, strconv.Itoa(v.Status))
			if v.URI == EventsPath {
				return nil
			}
			if v.Error != nil {
				s.log.Warn("request failed", "method", v.Method, "uri", v.URI, "status", v.Status, "latency", v.Latency, "error", v.Error)
				return nil
			}
			s.log.Debug("request", "method", v.Method, "uri", v.URI, "status", v.Status, "latency", v.Latency)
			return nil
		},
	}))

	opts.Registry.OnError = func(w http.ResponseWriter, r *http.Request, err error) {
		s.log.Warn("component request failed", "path", r.URL.Path, "error", err)
		aggui.DefaultErrorHandler(w, r, err)
	}

	sessions := opts.Sessions.Middleware()
	e.GET("/", s.handlePage, sessions)
	e.GET(EventsPath, s.handleEvents, sessions)
	aggecho.Mount(e, opts.Registry, sessions)
	e.GET("/healthz", s.handleHealth)
	if opts.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(opts.Metrics.Handler()))
	}
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	errc := make(chan error, 1)
	go func() {
		s.log.Info("listening", "addr", addr)
		errc <- s.echo.Start(addr)
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

func (s *Server) handlePage(c echo.Context) error {
	return aggecho.Render(c, http.StatusOK, components.Page(s.opts.Title, EventsPath))
}

func (s *Server) handleEvents(c echo.Context) error {
	root := app.FromContext(c.Request().Context())
	if root == nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "no session")
	}
	release := s.opts.Sessions.Hold(root.ID())
	defer release()
	s.opts.Hub.Serve(c.Response(), c.Request(), root.ID())
	return nil
}

func (s *Server) handleHealth(c echo.Context) error {
	ready := s.opts.Ready == nil || s.opts.Ready()
	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}
	return c.JSON(status, map[string]any{
		"ready":    ready,
		"sessions": s.opts.Sessions.Count(),
	})
}
