// Package server exposes search and document extraction over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/spec-search/internal/config"
	"github.com/sells-group/spec-search/internal/metrics"
	"github.com/sells-group/spec-search/internal/model"
)

// Searcher answers live web search requests.
type Searcher interface {
	Search(ctx context.Context, req model.SpecRequest) *model.SearchResponse
}

// Extractor answers requests from an uploaded document.
type Extractor interface {
	Extract(ctx context.Context, req model.DocumentRequest) *model.SearchResponse
}

// Server is the HTTP front end.
type Server struct {
	router    *chi.Mux
	server    *http.Server
	cfg       config.ServerConfig
	maxUpload int64
	search    Searcher
	extract   Extractor
	metrics   *metrics.Collector
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics records request metrics and serves GET /metrics.
func WithMetrics(m *metrics.Collector) Option {
	return func(s *Server) { s.metrics = m }
}

// WithMaxUploadMB caps the /process_pdf body size.
func WithMaxUploadMB(mb int64) Option {
	return func(s *Server) {
		if mb > 0 {
			s.maxUpload = mb << 20
		}
	}
}

// New builds the router.
func New(cfg config.ServerConfig, search Searcher, extract Extractor, opts ...Option) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		cfg:       cfg,
		maxUpload: 50 << 20,
		search:    search,
		extract:   extract,
	}
	for _, o := range opts {
		o(s)
	}

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := s.router
	r.Use(chimw.RealIP)
	r.Use(RequestID)
	r.Use(s.observe)
	r.Use(Recovery)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", RequestIDHeader},
		ExposedHeaders: []string{RequestIDHeader},
		MaxAge:         300,
	}))

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Get("/health", s.handleHealth)
	s.router.With(RateLimit(NewIPLimiter(s.cfg.SearchPerMin, time.Minute))).
		Post("/get_specs", s.handleGetSpecs)
	s.router.With(RateLimit(NewIPLimiter(s.cfg.DocumentPerMin, time.Minute))).
		Post("/process_pdf", s.handleProcessPDF)
	if s.metrics != nil {
		s.router.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run listens on the configured port until ctx ends, then drains in-flight
// requests for up to 30 seconds.
func (s *Server) Run(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		// Searches run three upstream calls per part number.
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zap.L().Info("server: listening", zap.Int("port", s.cfg.Port))
		errCh <- s.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server: listen")
		}
		return nil
	case <-ctx.Done():
	}

	zap.L().Info("server: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return eris.Wrap(err, "server: shutdown")
	}
	return nil
}
