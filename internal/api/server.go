// Package api serves the HTTP job interface: job submission, status,
// cancellation, SSE progress streaming, health, and Prometheus metrics.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/snarg/pullquote/internal/config"
	"github.com/snarg/pullquote/internal/database"
	"github.com/snarg/pullquote/internal/job"
	"github.com/snarg/pullquote/internal/metrics"
)

type Server struct {
	http *http.Server
	log  zerolog.Logger
}

// ServerOptions wires the HTTP layer. DB and Broker are optional; BaseCtx is
// the process context submitted jobs inherit from, so they outlive the
// request that created them but stop on shutdown.
type ServerOptions struct {
	Config    *config.Config
	Registry  *job.Registry
	Pipeline  *job.Pipeline
	Bus       *job.EventBus
	DB        *database.DB
	Broker    BrokerStatus
	Version   string
	StartTime time.Time
	BaseCtx   context.Context
	Log       zerolog.Logger
}

func NewServer(opts ServerOptions) *Server {
	cfg := opts.Config
	r := chi.NewRouter()

	// Global middleware
	r.Use(RequestID)
	r.Use(Recoverer)
	r.Use(Logger(opts.Log))
	r.Use(CORS)
	r.Use(metrics.InstrumentHandler)

	health := NewHealthHandler(opts.DB, opts.Broker, opts.Version, opts.StartTime)
	jobs := NewJobsHandler(opts.Registry, opts.Pipeline, opts.DB, opts.BaseCtx)
	events := NewEventsHandler(opts.Bus)

	r.Handle("/metrics", promhttp.Handler())
	r.Route("/api/v1", func(r chi.Router) {
		// Health endpoint stays open so load balancers can probe it.
		r.Get("/health", health.ServeHTTP)

		r.Group(func(r chi.Router) {
			r.Use(BearerAuth(cfg.AuthToken))
			jobs.Routes(r)
			events.Routes(r)
		})
	})

	return &Server{
		http: &http.Server{
			Addr:         cfg.HTTPAddr,
			Handler:      r,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
		log: opts.Log,
	}
}

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.http.Addr).Msg("http server starting")
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("http server shutting down")
	return s.http.Shutdown(ctx)
}
