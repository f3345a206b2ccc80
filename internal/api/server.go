package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/opensource-finance/kestrel/internal/analyzer"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/observability"
	"github.com/opensource-finance/kestrel/internal/worker"
)

// Dependencies are the collaborators the API serves. Only Analyzers is
// required.
type Dependencies struct {
	Analyzers *analyzer.Holder
	Rebuild   RebuildFunc
	Corpora   domain.CorpusRepository
	Cache     domain.Cache
	Bus       domain.EventBus
	Worker    *worker.Worker
	Metrics   *observability.Metrics
	Version   string
}

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg *domain.Config, deps Dependencies) *Server {
	handler := NewHandler(deps)
	router := chi.NewRouter()

	router.Use(CORSMiddleware(cfg.CORS))
	router.Use(RecoverMiddleware)
	router.Use(TracingMiddleware)
	router.Use(LoggingMiddleware)
	router.Use(middleware.RealIP)
	router.Use(middleware.Compress(5))

	router.Get("/", handler.Root)
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)
	router.Get("/demo-data", handler.DemoData)
	router.Get("/model", handler.Model)
	router.Post("/reload", handler.Reload)

	if cfg.Metrics.Enabled && deps.Metrics != nil {
		path := cfg.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		router.Handle(path, deps.Metrics.Handler())
	}

	router.Group(func(r chi.Router) {
		if cfg.RateLimit.Enabled && deps.Cache != nil {
			r.Use(RateLimitMiddleware(deps.Cache, cfg.RateLimit, deps.Metrics))
		}

		r.Post("/analyze-profile", handler.AnalyzeProfile)
		r.Post("/analyze-profile/async", handler.AnalyzeProfileAsync)
		r.Get("/analyze-profile/async/{id}", handler.GetSubmission)
	})

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg.Server,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Handler returns the handler for testing.
func (s *Server) Handler() *Handler {
	return s.handler
}
