// Package api serves the reading history, the live state and the pairing
// page over HTTP.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/speedwagon-io/solarbridge/internal/config"
	"github.com/speedwagon-io/solarbridge/internal/lib/logger/sl"
	"github.com/speedwagon-io/solarbridge/internal/model"
)

// RangeReader answers time-range queries over persisted readings.
type RangeReader interface {
	Range(ctx context.Context, metric model.Metric, start, end time.Time, limit int) ([]model.Point, error)
}

type StateReader interface {
	Snapshot() model.Snapshot
	FormatReport() string
}

// ChallengeSource exposes the pending pairing code.
type ChallengeSource interface {
	Current() (string, bool)
}

type Server struct {
	log       *slog.Logger
	cfg       config.HTTPConfig
	readings  RangeReader
	state     StateReader
	challenge ChallengeSource
	metrics   http.Handler
	server    *http.Server
}

func NewServer(
	log *slog.Logger,
	cfg config.HTTPConfig,
	readings RangeReader,
	state StateReader,
	challenge ChallengeSource,
	metrics http.Handler,
) *Server {
	return &Server{
		log:       log,
		cfg:       cfg,
		readings:  readings,
		state:     state,
		challenge: challenge,
		metrics:   metrics,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/api/readings", s.handleReadings)
	r.Get("/api/state", s.handleState)
	r.Get("/qr", s.handleQR)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	if s.cfg.StaticDir != "" {
		r.Handle("/*", http.FileServer(http.Dir(s.cfg.StaticDir)))
	}

	return r
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Address,
		Handler:      s.Router(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	s.log.Info("starting api server", slog.String("address", s.cfg.Address))

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error("api server error", sl.Err(err))
		}
	}()

	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
