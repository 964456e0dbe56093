// Package server exposes the reconciler over HTTP: the /v1 control API,
// health probes, version and a proxied Prometheus scrape endpoint.
package server

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/livetrack/livetrack/internal/config"
	apperrors "github.com/livetrack/livetrack/internal/errors"
	"github.com/livetrack/livetrack/internal/observability"
	"github.com/livetrack/livetrack/internal/server/handlers"
	servermw "github.com/livetrack/livetrack/internal/server/middleware"
)

// Options wires the server to the running reconciler.
type Options struct {
	Control *handlers.ControlHandler
	// Health defaults to a manager without checks.
	Health *handlers.HealthManager
	// ControlToken guards the mutating /v1 routes, pprof and /admin/signal.
	ControlToken string
	Timeouts     config.ServerConfig
	Pprof        bool
}

// Server is the daemon's HTTP front end.
type Server struct {
	router *chi.Mux
	server *http.Server
	addr   string
	opts   Options
}

// New builds the router. Nothing listens until Start.
func New(host string, port int, opts Options) *Server {
	if opts.Health == nil {
		opts.Health = handlers.NewHealthManager(handlers.CurrentVersion())
	}
	if opts.Control == nil {
		opts.Control = &handlers.ControlHandler{}
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	// request ID first so metrics, logs and recovered panics share it
	r.Use(servermw.RequestID)
	r.Use(servermw.RequestMetrics)
	r.Use(servermw.Recovery)

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		apperrors.RespondWithError(w, req, apperrors.NewNotFoundError("no route for "+req.URL.Path))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		apperrors.RespondWithError(w, req, apperrors.NewMethodNotAllowedError(req.Method+" is not allowed on "+req.URL.Path))
	})

	s := &Server{
		router: r,
		addr:   net.JoinHostPort(host, strconv.Itoa(port)),
		opts:   opts,
	}
	s.registerRoutes()
	return s
}

// Start listens and serves until Shutdown. It returns http.ErrServerClosed
// after a graceful shutdown.
func (s *Server) Start() error {
	t := s.opts.Timeouts
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       durationOr(t.ReadTimeout, 30*time.Second),
		WriteTimeout:      durationOr(t.WriteTimeout, 30*time.Second),
		IdleTimeout:       durationOr(t.IdleTimeout, 120*time.Second),
	}

	if logger := observability.ServerLogger; logger != nil {
		logger.Info("Control API listening",
			zap.String("addr", s.addr),
			zap.Bool("control_token", s.opts.ControlToken != ""),
			zap.Bool("pprof", s.opts.Pprof))
	}
	return s.server.ListenAndServe()
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.addr
}

func durationOr(d, fallback time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return fallback
}
