package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/opensource-finance/sentinel/internal/domain"
	"github.com/opensource-finance/sentinel/internal/engine"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, eng *engine.Engine, opts Options) *Server {
	handler := NewHandler(eng, opts)
	router := chi.NewRouter()

	router.Use(CORSMiddleware)
	router.Use(RecoverMiddleware)
	router.Use(TracingMiddleware)
	router.Use(LoggingMiddleware)
	router.Use(middleware.RealIP)
	router.Use(middleware.Compress(5))

	// Health endpoints (no tenant required)
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)

	router.Route("/api", func(r chi.Router) {
		r.Use(TenantMiddleware)

		r.Route("/phishing", func(r chi.Router) {
			r.Post("/scan", handler.ScanURL)
			r.Post("/analyze-email", handler.AnalyzeEmail)
			r.Get("/check-domain", handler.CheckDomain)
		})
		r.Post("/smishing/analyze-sms", handler.AnalyzeSMS)
		r.Post("/vishing/analyze-call", handler.AnalyzeCall)

		// History and async submission
		r.Get("/analyses", handler.ListAnalyses)
		r.Post("/analyses", handler.EnqueueAnalysis)
		r.Get("/analyses/{id}", handler.GetAnalysis)

		// Threat intelligence
		r.Post("/indicators", handler.BlockIndicator)
		r.Get("/indicators/stats", handler.IndicatorStats)
		r.Get("/indicators/{type}/{value}", handler.GetIndicator)
		r.Delete("/indicators/{type}/{value}", handler.DeleteIndicator)
		r.Post("/domains", handler.RecordDomain)

		// Community reports
		r.Post("/reports", handler.SubmitReport)
		r.Get("/reports", handler.ListReports)
		r.Post("/reports/{id}/upvote", handler.UpvoteReport)
	})

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadTimeout:       time.Duration(s.config.ReadTimeout) * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:       120 * time.Second,
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
