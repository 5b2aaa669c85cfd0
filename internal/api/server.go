package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/worknuggets/extractor/internal/config"
	"github.com/worknuggets/extractor/internal/extract"
	"github.com/worknuggets/extractor/internal/pipeline"
	"github.com/worknuggets/extractor/internal/telemetry"
)

// Server wires HTTP handlers to the pipeline and the quota governor.
type Server struct {
	router   chi.Router
	pipe     *pipeline.Pipeline
	governor extract.Governor
	cfg      config.Config
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	pipe *pipeline.Pipeline,
	gov extract.Governor,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		pipe:     pipe,
		governor: gov,
		cfg:      cfg,
		logger:   logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(telemetry.Middleware)
	r.Use(timeoutMiddleware(90 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", telemetry.Handler())

	// Quota commands are POST-only; any other verb is rejected so a
	// stray GET can never mutate or leak quota state.
	r.Post("/acquire", s.acquire)
	r.Post("/release", s.release)
	r.Post("/addSeconds", s.addSeconds)
	r.Post("/status", s.status)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/run", s.runOnce)
		r.Get("/extract", s.testExtract)
		r.Get("/renderer/health", s.rendererHealth)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if _, err := s.governor.Status(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "governor unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type acquireRequest struct {
	ReserveSeconds  int `json:"reserveSeconds"`
	MaxConcurrent   int `json:"maxConcurrent"`
	MaxDailySeconds int `json:"maxDailySeconds"`
}

func (s *Server) acquire(w http.ResponseWriter, r *http.Request) {
	var req acquireRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.ReserveSeconds <= 0 {
		req.ReserveSeconds = s.cfg.Governor.ReserveSeconds
	}
	if req.MaxConcurrent <= 0 {
		req.MaxConcurrent = s.cfg.Governor.MaxConcurrent
	}
	if req.MaxDailySeconds <= 0 {
		req.MaxDailySeconds = s.cfg.Governor.MaxDailySeconds
	}
	result, err := s.governor.Acquire(r.Context(), req.ReserveSeconds, req.MaxConcurrent, req.MaxDailySeconds)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) release(w http.ResponseWriter, r *http.Request) {
	running, err := s.governor.Release(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"running": running})
}

type addSecondsRequest struct {
	Seconds int `json:"seconds"`
}

func (s *Server) addSeconds(w http.ResponseWriter, r *http.Request) {
	var req addSecondsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	daily, err := s.governor.AddSeconds(r.Context(), req.Seconds)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"dailySeconds": daily})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	snapshot, err := s.governor.Status(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func (s *Server) runOnce(w http.ResponseWriter, r *http.Request) {
	result, err := s.pipe.RunOnce(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) testExtract(w http.ResponseWriter, r *http.Request) {
	url := r.URL.Query().Get("url")
	if url == "" {
		writeError(w, http.StatusBadRequest, "url query parameter required")
		return
	}
	report, err := s.pipe.TestExtract(r.Context(), url)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) rendererHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.pipe.RendererHealth(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("error", rec))
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

type requestIDKey struct{}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
