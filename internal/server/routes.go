package server

import (
	"net/http"
	"net/http/pprof"

	"github.com/fulmenhq/gofulmen/signals"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/livetrack/livetrack/internal/observability"
	"github.com/livetrack/livetrack/internal/server/handlers"
	servermw "github.com/livetrack/livetrack/internal/server/middleware"
)

func (s *Server) registerRoutes() {
	health := s.opts.Health
	s.router.Route("/health", func(r chi.Router) {
		r.Get("/", health.HealthHandler)
		r.Get("/live", health.LivenessHandler)
		r.Get("/ready", health.ReadinessHandler)
		r.Get("/startup", health.StartupHandler)
	})
	s.router.Get("/version", handlers.VersionHandler)
	s.router.Get("/metrics", newMetricsProxy().ServeHTTP)

	s.registerControlRoutes()
	s.registerOperatorRoutes()
}

// registerControlRoutes mounts the reconciler API. Reads are open; anything
// that changes state requires the control token when one is configured.
func (s *Server) registerControlRoutes() {
	control := s.opts.Control
	s.router.Route("/v1", func(r chi.Router) {
		r.Get("/status", control.Status)
		r.Get("/events", control.Events)
		r.Get("/ledger", control.Ledger)

		r.Group(func(r chi.Router) {
			r.Use(servermw.BearerToken(s.opts.ControlToken))
			r.Post("/snapshot", control.PushSnapshot)
			r.Post("/tick", control.Tick)
			r.Post("/reset", control.Reset)
		})
	})
}

// registerOperatorRoutes mounts pprof and the gofulmen signal endpoint. Both
// stay unmounted without a control token.
func (s *Server) registerOperatorRoutes() {
	logger := observability.ServerLogger
	if s.opts.ControlToken == "" {
		if logger != nil && s.opts.Pprof {
			logger.Warn("pprof requested but server.control_token is empty; not mounting /debug/pprof")
		}
		return
	}

	s.router.With(servermw.BearerToken(s.opts.ControlToken)).Post("/admin/signal",
		signals.NewHTTPHandler(signals.HTTPConfig{
			TokenAuth: s.opts.ControlToken,
			RateLimit: 10,
			RateBurst: 5,
		}).ServeHTTP)

	if s.opts.Pprof {
		s.router.Route("/debug/pprof", func(r chi.Router) {
			r.Use(servermw.BearerToken(s.opts.ControlToken))
			r.HandleFunc("/", pprof.Index)
			r.HandleFunc("/cmdline", pprof.Cmdline)
			r.HandleFunc("/profile", pprof.Profile)
			r.HandleFunc("/symbol", pprof.Symbol)
			r.HandleFunc("/trace", pprof.Trace)
			r.Handle("/{profile}", http.HandlerFunc(pprof.Index))
		})
	}

	if logger != nil {
		logger.Info("Operator endpoints enabled",
			zap.String("signal", "/admin/signal"),
			zap.Bool("pprof", s.opts.Pprof))
	}
}
