// Package api exposes the orchestrator and run history over HTTP.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/hugo-lorenzo-mato/taskgraph/internal/core"
	"github.com/hugo-lorenzo-mato/taskgraph/internal/diagnostics"
	"github.com/hugo-lorenzo-mato/taskgraph/internal/logging"
	"github.com/hugo-lorenzo-mato/taskgraph/internal/service"
	"github.com/hugo-lorenzo-mato/taskgraph/internal/tools"
)

// maxBodyBytes caps request bodies carrying task specs.
const maxBodyBytes = 4 << 20

// Server provides HTTP endpoints for running and inspecting task graphs.
type Server struct {
	router       chi.Router
	orchestrator *service.Orchestrator
	registry     *tools.Registry
	store        core.RunStore
	logger       *logging.Logger
	corsOrigins  []string
	traceCfg     service.TraceConfig
	defaultKind  string
	system       *diagnostics.Collector
}

// ServerOption configures the server.
type ServerOption func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *logging.Logger) ServerOption {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithCORSOrigins enables CORS for the given origins.
func WithCORSOrigins(origins []string) ServerOption {
	return func(s *Server) {
		s.corsOrigins = origins
	}
}

// WithTraceConfig writes a file trace for every run when cfg.Mode is "file".
func WithTraceConfig(cfg service.TraceConfig) ServerOption {
	return func(s *Server) {
		s.traceCfg = cfg
	}
}

// WithDefaultKind sets the tool used by nodes that name no kind.
func WithDefaultKind(kind string) ServerOption {
	return func(s *Server) {
		s.defaultKind = kind
	}
}

// WithSystemCollector sets the collector behind /api/v1/system.
func WithSystemCollector(c *diagnostics.Collector) ServerOption {
	return func(s *Server) {
		if c != nil {
			s.system = c
		}
	}
}

// NewServer creates a new API server.
func NewServer(orchestrator *service.Orchestrator, registry *tools.Registry, store core.RunStore, opts ...ServerOption) *Server {
	s := &Server{
		orchestrator: orchestrator,
		registry:     registry,
		store:        store,
		logger:       logging.NewNop(),
		system:       diagnostics.NewCollector(""),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.router = s.setupRouter()
	return s
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.loggingMiddleware)

	if len(s.corsOrigins) > 0 {
		corsHandler := cors.New(cors.Options{
			AllowedOrigins:   s.corsOrigins,
			AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type", "If-None-Match", "X-Requested-With"},
			ExposedHeaders:   []string{"ETag", "Location"},
			AllowCredentials: false,
			MaxAge:           300,
		})
		r.Use(corsHandler.Handler)
	}

	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/tools", s.handleListTools)
		r.Get("/system", s.handleSystem)
		r.Post("/graphs/validate", s.handleValidateGraph)

		r.Route("/runs", func(r chi.Router) {
			r.Get("/", s.handleListRuns)
			r.Post("/", s.handleCreateRun)
			r.Post("/stream", s.handleStreamRun)

			r.Route("/{runID}", func(r chi.Router) {
				r.Get("/", s.handleGetRun)
				r.Delete("/", s.handleDeleteRun)
				r.Get("/events", s.handleGetRunEvents)
			})
		})
	})

	return r
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			s.logger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
				"bytes", ww.BytesWritten(),
				"request_id", middleware.GetReqID(r.Context()),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}

// respondJSON sends a JSON response.
func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			s.logger.Error("failed to encode response", "error", err)
		}
	}
}

// respondError sends a JSON error response.
func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, ErrorResponse{Error: message})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleSystem(w http.ResponseWriter, _ *http.Request) {
	s.respondJSON(w, http.StatusOK, s.system.Collect())
}

func (s *Server) handleListTools(w http.ResponseWriter, _ *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string][]string{"kinds": s.registry.Kinds()})
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("starting API server", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
