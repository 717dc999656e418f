// Package api provides the HTTP API server for bid review.
package api

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"bid-review/decision/analysis"
	"bid-review/pkg/errors"
	"bid-review/pkg/platform"
	"bid-review/session"
)

// Version is reported by the health endpoint.
var Version = "dev"

// SessionHeader carries the session ID on session routes.
const SessionHeader = "X-Session-ID"

// Server is the HTTP API server
type Server struct {
	httpServer *http.Server
	analyzer   *analysis.Analyzer
	sessions   session.Store
	ai         analysis.FindingSource
	config     *Config
	validate   *validator.Validate
	started    time.Time
}

// Config holds server configuration
type Config struct {
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	MaxRequestSize  int64
	CORSOrigins     []string
	APIKey          string

	// CompareTolerance is the default plan-vs-proposal tolerance.
	CompareTolerance float64
}

// DefaultConfig returns default server configuration
func DefaultConfig() *Config {
	return &Config{
		Port:             8080,
		ReadTimeout:      30 * time.Second,
		WriteTimeout:     150 * time.Second,
		RequestTimeout:   120 * time.Second,
		ShutdownTimeout:  30 * time.Second,
		MaxRequestSize:   50 << 20,
		CORSOrigins:      []string{"*"},
		CompareTolerance: 0.10,
	}
}

// NewServer creates a new API server. A nil ai source disables AI findings.
func NewServer(analyzer *analysis.Analyzer, sessions session.Store, ai analysis.FindingSource, config *Config) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	return &Server{
		analyzer: analyzer,
		sessions: sessions,
		ai:       ai,
		config:   config,
		validate: validator.New(),
		started:  time.Now(),
	}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.config.RequestTimeout))
	r.Use(s.corsMiddleware)

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(platform.APIKeyMiddleware(s.config.APIKey))
		r.Use(s.limitBody)

		r.Post("/reconcile", s.handleReconcile)
		r.Post("/compare", s.handleCompare)
		r.Post("/aggregate", s.handleAggregate)
		r.Post("/status", s.handleStatus)

		r.Route("/session", func(r chi.Router) {
			r.Post("/requirements", s.handleUploadRequirements)
			r.Post("/proposal", s.handleUploadProposal)
			r.Post("/plan-quantities", s.handleUploadPlan)
			r.Post("/findings", s.handleUploadFindings)
			r.Post("/analyze", s.handleAnalyze)
			r.Post("/compare", s.handleSessionCompare)
			r.Get("/status", s.handleSessionStatus)
			r.Post("/clear", s.handleClear)
		})

		r.Get("/history", s.handleListHistory)
		r.Get("/history/{id}", s.handleGetAnalysis)
		r.Get("/history/{id}/export.xlsx", s.handleExport)
	})

	return r
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	log.Info().
		Int("port", s.config.Port).
		Str("version", Version).
		Bool("ai_enabled", s.ai != nil).
		Msg("Starting bid review API server")
	return s.httpServer.ListenAndServe()
}

// StartWithGracefulShutdown starts server with graceful shutdown handling
func (s *Server) StartWithGracefulShutdown() error {
	errChan := make(chan error, 1)
	go func() {
		if err := s.Start(); !stderrors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case <-quit:
		log.Info().Msg("Shutting down server")
		ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()
		return s.httpServer.Shutdown(ctx)
	}
}

// =============================================================================
// MIDDLEWARE
// =============================================================================

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("request")
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		allowed := false
		for _, o := range s.config.CORSOrigins {
			if o == "*" || o == origin {
				allowed = true
				break
			}
		}

		if allowed {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key, "+SessionHeader)
			w.Header().Set("Access-Control-Expose-Headers", SessionHeader)
			w.Header().Set("Access-Control-Max-Age", "86400")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxRequestSize)
		next.ServeHTTP(w, r)
	})
}

// =============================================================================
// HEALTH ENDPOINTS
// =============================================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"status":     "healthy",
		"service":    "bid-review",
		"version":    Version,
		"uptime":     time.Since(s.started).Round(time.Second).String(),
		"ai_enabled": s.ai != nil,
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if h := s.analyzer.History(); h != nil {
		if err := h.Ping(ctx); err != nil {
			log.Warn().Err(err).Msg("History store not ready")
			s.jsonError(w, http.StatusServiceUnavailable, "history store not ready")
			return
		}
	}

	s.jsonResponse(w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}

// =============================================================================
// HELPERS
// =============================================================================

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

func (s *Server) jsonError(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, map[string]string{
		"error": message,
	})
}

// ErrorResponse is the body of a failed request.
type ErrorResponse struct {
	Error       string `json:"error"`
	Code        string `json:"code,omitempty"`
	Source      string `json:"source,omitempty"`
	Detail      string `json:"detail,omitempty"`
	Recoverable bool   `json:"recoverable,omitempty"`
}

// writeError maps an error to an HTTP response.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var be *errors.BidError
	if !stderrors.As(err, &be) {
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			s.jsonError(w, http.StatusRequestEntityTooLarge, "request too large")
			return
		}
		log.Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
		s.jsonError(w, http.StatusInternalServerError, "internal error")
		return
	}

	resp := ErrorResponse{
		Error:       be.Message,
		Code:        be.Code,
		Source:      be.Source,
		Recoverable: be.Recoverable,
	}
	if be.Err != nil {
		resp.Detail = be.Err.Error()
	}
	s.jsonResponse(w, httpStatus(be.Code), resp)
}

func httpStatus(code string) int {
	switch code {
	case errors.ErrCodeParseFailed,
		errors.ErrCodeMalformedResponse,
		errors.ErrCodeUnsupportedFormat,
		errors.ErrCodeEmptyDocument,
		errors.ErrCodeValidationFailed,
		errors.ErrCodeMissingInput:
		return http.StatusBadRequest
	case errors.ErrCodeSessionNotFound, errors.ErrCodeAnalysisNotFound:
		return http.StatusNotFound
	case errors.ErrCodeAIUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
