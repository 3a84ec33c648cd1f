package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/crossref-matcher/internal/debug"
	"github.com/crossref-matcher/internal/matcher"
	"github.com/crossref-matcher/internal/web/handlers"
	"github.com/crossref-matcher/internal/web/middleware"
)

// Version is reported by /healthz.
var Version = "dev"

// Server represents the web server
type Server struct {
	config     *Config
	processor  *matcher.BatchProcessor
	logger     *zap.Logger
	httpServer *http.Server
	router     *mux.Router
	handler    http.Handler
}

// NewServer creates a new web server instance around processor. Run endpoints
// are only registered when the processor has an audit tracker.
func NewServer(config *Config, processor *matcher.BatchProcessor, logger *zap.Logger) *Server {
	if logger == nil {
		logger = debug.L()
	}
	server := &Server{
		config:    config,
		processor: processor,
		logger:    logger,
	}

	server.setupRoutes()

	server.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port),
		Handler:      server.handler,
		ReadTimeout:  config.Server.ReadTimeout,
		WriteTimeout: config.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}
	return server
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	s.router = mux.NewRouter()

	// Convert config for handlers (to avoid import cycle)
	handlerConfig := &handlers.Config{
		Threshold:       s.config.Threshold,
		MaxUploadValues: s.config.MaxUploadValues,
		MaxBodyBytes:    s.config.MaxBodyBytes,
	}
	handlerConfig.Features.ExportEnabled = s.config.Features.ExportEnabled
	handlerConfig.Features.ReviewEnabled = s.config.Features.ReviewEnabled

	apiHandler := &handlers.APIHandler{Processor: s.processor, Config: handlerConfig, Logger: s.logger, Version: Version}

	s.router.HandleFunc("/healthz", apiHandler.Health).Methods("GET")

	api := s.router.PathPrefix("/api").Subrouter()
	api.Use(middleware.Authentication(s.config.Auth.APIKey))

	// Matching endpoints
	api.HandleFunc("/match", apiHandler.Match).Methods("POST")
	api.HandleFunc("/match/identifiers", apiHandler.MatchIdentifiers).Methods("POST")

	// Engine endpoints
	api.HandleFunc("/stats", apiHandler.GetStats).Methods("GET")
	api.HandleFunc("/cache/clear", apiHandler.ClearCache).Methods("POST")

	if tracker := s.processor.Tracker(); tracker != nil {
		runsHandler := &handlers.RunsHandler{Tracker: tracker, Config: handlerConfig, Logger: s.logger}
		exportHandler := &handlers.ExportHandler{Tracker: tracker, Config: handlerConfig, Logger: s.logger}

		api.HandleFunc("/runs", runsHandler.ListRuns).Methods("GET")
		api.HandleFunc("/runs/{id}", runsHandler.GetRun).Methods("GET")
		api.HandleFunc("/runs/{id}", runsHandler.DeleteRun).Methods("DELETE")
		api.HandleFunc("/runs/{id}/results", runsHandler.GetResults).Methods("GET")
		api.HandleFunc("/runs/{id}/decisions", runsHandler.ListDecisions).Methods("GET")

		// Review endpoint (if enabled)
		if s.config.Features.ReviewEnabled {
			api.HandleFunc("/runs/{id}/results/{index:[0-9]+}/decision", runsHandler.RecordDecision).Methods("POST")
		}

		// Export endpoint (if enabled)
		if s.config.Features.ExportEnabled {
			api.HandleFunc("/runs/{id}/export", exportHandler.ExportRun).Methods("GET")
		}
	}

	// CORS and logging wrap the router so preflight and unmatched requests pass through them
	s.handler = middleware.RequestLogging(s.logger)(middleware.CORS()(s.router))
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Addr is the listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", zap.String("addr", "http://"+s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}
	s.logger.Info("server stopped")
	return nil
}
