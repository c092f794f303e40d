package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/snarg/transcriber/internal/config"
	"github.com/snarg/transcriber/internal/metrics"
)

type Server struct {
	http *http.Server
	log  zerolog.Logger
}

// ServerOptions holds the dependencies of the HTTP server.
type ServerOptions struct {
	Config      *config.Config
	Transcriber Transcriber
	Pool        PoolInfo
	OpenAPISpec []byte
	Version     string
	StartTime   time.Time
	Log         zerolog.Logger
}

func NewServer(opts ServerOptions) *Server {
	cfg := opts.Config
	r := chi.NewRouter()

	// Global middleware
	r.Use(RequestID)
	r.Use(Recoverer)
	r.Use(Logger(opts.Log))
	r.Use(CORSWithOrigins(cfg.CORSOrigins))
	if cfg.MetricsEnabled {
		r.Use(metrics.InstrumentHandler)
		r.Handle("/metrics", promhttp.Handler())
	}

	NewTranscribeHandler(opts.Transcriber, cfg.MaxUploadBytes, opts.Log).Routes(r)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", NewHealthHandler(opts.Pool, opts.Version, opts.StartTime).ServeHTTP)
		if len(opts.OpenAPISpec) > 0 {
			r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/yaml")
				w.Write(opts.OpenAPISpec)
			})
		}
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

// Handler returns the root handler, for tests.
func (s *Server) Handler() http.Handler { return s.http.Handler }

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
