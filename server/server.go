// Package server exposes sessions over HTTP/JSON.
package server

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/snow-ghost/probe/core"
	"github.com/snow-ghost/probe/generate"
	"github.com/snow-ghost/probe/pkg/logging"
	"github.com/snow-ghost/probe/pkg/metrics"
	"github.com/snow-ghost/probe/session"
	"github.com/snow-ghost/probe/testkit"
)

// OpenFunc starts a session over a fresh discovery pass.
type OpenFunc func(ctx context.Context) (*session.Session, error)

// Options wires the server to the rest of the application.
type Options struct {
	Sessions  *session.Manager
	Open      OpenFunc
	Runner    *testkit.Runner
	BatchSize int
	Logger    *logging.Logger
	Metrics   *metrics.PrometheusMetrics
}

// Server represents the HTTP server
type Server struct {
	router    *chi.Mux
	sessions  *session.Manager
	open      OpenFunc
	runner    *testkit.Runner
	batchSize int
	logger    *logging.Logger
	metrics   *metrics.PrometheusMetrics
	validate  *validator.Validate
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// NewServer creates a new HTTP server
func NewServer(opts Options) *Server {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 10
	}
	s := &Server{
		router:    chi.NewRouter(),
		sessions:  opts.Sessions,
		open:      opts.Open,
		runner:    opts.Runner,
		batchSize: opts.BatchSize,
		logger:    logging.OrNop(opts.Logger).WithComponent("http"),
		metrics:   opts.Metrics,
		validate:  validator.New(),
	}
	if s.runner == nil {
		s.runner = testkit.NewRunner(opts.Logger, opts.Metrics)
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(s.logRequests)
}

// indexPage is a single-page front end over the session API.
//
//go:embed web/index.html
var indexPage []byte

// setupRoutes configures all the HTTP routes
func (s *Server) setupRoutes() {
	s.router.Get("/", s.handleIndex)

	// Health and metrics
	s.router.Get("/health", s.handleHealth)
	s.router.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	s.router.Route("/api/sessions", func(r chi.Router) {
		r.Post("/", s.handleOpen)
		r.Route("/{sid}", func(r chi.Router) {
			r.Delete("/", s.handleClose)
			r.Get("/functions", s.handleFunctions)
			r.Get("/functions/info", s.handleFunctionInfo)
			r.Post("/generate", s.handleGenerate)
			r.Post("/batch", s.handleBatch)
			r.Post("/test", s.handleTest)
			r.Post("/verify", s.handleVerify)
			r.Get("/summary", s.handleSummary)
			r.Get("/export", s.handleExport)
		})
	})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(indexPage)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.LogRequest(r.Context(), r.Method, r.URL.Path, ww.Status(), time.Since(start), middleware.GetReqID(r.Context()))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"service":   "probe",
		"sessions":  s.sessions.Len(),
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// session looks up the {sid} session, writing the error response itself.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, err := s.sessions.Get(chi.URLParam(r, "sid"))
	if err != nil {
		s.writeFailure(w, err)
		return nil, false
	}
	return sess, true
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeError(w, "Invalid JSON: "+err.Error(), "INVALID_JSON", http.StatusBadRequest)
		return false
	}
	if err := s.validate.Struct(v); err != nil {
		s.writeError(w, err.Error(), "INVALID_REQUEST", http.StatusBadRequest)
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("Failed to encode response", "error", err.Error())
	}
}

func (s *Server) writeError(w http.ResponseWriter, message, code string, statusCode int) {
	s.writeJSON(w, statusCode, ErrorResponse{Error: message, Code: code})
}

// writeFailure maps domain errors to status codes.
func (s *Server) writeFailure(w http.ResponseWriter, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("Request failed", "error", err.Error())
	}
	s.writeError(w, err.Error(), code, status)
}

func classify(err error) (int, string) {
	var argErr *core.ArgumentError
	var resErr *core.ResolutionError
	switch {
	case errors.Is(err, session.ErrUnknownSession):
		return http.StatusNotFound, "UNKNOWN_SESSION"
	case errors.Is(err, core.ErrUnknownCallable):
		return http.StatusNotFound, "UNKNOWN_FUNCTION"
	case errors.Is(err, core.ErrUnknownRecord):
		return http.StatusNotFound, "UNKNOWN_RECORD"
	case errors.Is(err, core.ErrVerdictRecorded):
		return http.StatusConflict, "VERDICT_RECORDED"
	case errors.Is(err, core.ErrInvalidVerdict), errors.Is(err, generate.ErrNegativeCount), errors.As(err, &argErr):
		return http.StatusBadRequest, "INVALID_REQUEST"
	case errors.Is(err, core.ErrConstructionCycle), errors.As(err, &resErr):
		return http.StatusUnprocessableEntity, "RESOLUTION_FAILED"
	case errors.Is(err, session.ErrClosed):
		return http.StatusGone, "SESSION_CLOSED"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "CANCELED"
	default:
		return http.StatusInternalServerError, "INTERNAL"
	}
}

func lookup(sess *session.Session, key string) (core.Entry, error) {
	if key == "" {
		return core.Entry{}, fmt.Errorf("%w: empty key", core.ErrUnknownCallable)
	}
	return sess.Catalog().Find(key)
}
