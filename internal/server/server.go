// Package server exposes the directory over HTTP.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/truthlens/provider-directory/internal/config"
	"github.com/truthlens/provider-directory/internal/directory"
	"github.com/truthlens/provider-directory/internal/model"
	"github.com/truthlens/provider-directory/internal/store"
)

// Directory is the service surface the handlers call.
// *directory.Service implements it.
type Directory interface {
	IngestDocument(ctx context.Context, filename string, pdf []byte) (*directory.IngestResult, error)
	ValidateProvider(ctx context.Context, providerID string) (*directory.ValidationResult, error)
	RefreshAll(ctx context.Context) (*model.ValidationRun, error)
	ListProviders(ctx context.Context, filter store.ProviderFilter) ([]model.Provider, error)
	GetProviderDetail(ctx context.Context, id string) (*model.ProviderDetail, error)
	Metrics(ctx context.Context) (*model.DashboardMetrics, error)
	Ping(ctx context.Context) error
}

// Server holds the handler dependencies.
type Server struct {
	dir Directory
	cfg config.ServerConfig
}

// New creates a Server.
func New(dir Directory, cfg config.ServerConfig) *Server {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 32 << 20
	}
	return &Server{dir: dir, cfg: cfg}
}

// Router builds the chi router with middleware and all routes mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	origins := s.cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", s.handleHealth)
	r.Post("/upload-pdf", s.handleUploadPDF)
	r.Get("/providers", s.handleListProviders)
	r.Get("/providers/{id}", s.handleGetProvider)
	r.Post("/providers/{id}/validate", s.handleValidateProvider)
	r.Post("/refresh-all", s.handleRefreshAll)
	r.Get("/dashboard-metrics", s.handleDashboardMetrics)

	return r
}

// requestLogger logs one line per request through the global zap logger.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
