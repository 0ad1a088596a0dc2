// Package server exposes the latest evaluation run over a read-only JSON API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	clickio "github.com/SohaFarhana05/AD-Click-Fraud-Detection/pkg/io"
	"github.com/SohaFarhana05/AD-Click-Fraud-Detection/pkg/io/sqlite"
)

// ReportStore returns the most recent run with at most alertLimit alerts; a limit
// <= 0 returns all of them.
type ReportStore interface {
	LatestReport(ctx context.Context, alertLimit int) (*clickio.Report, error)
}

// Config configures the API.
type Config struct {
	Addr           string
	AllowedOrigins []string
	// AlertLimit is the default for /api/alerts when no limit is given.
	AlertLimit   int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Server serves the reports API.
type Server struct {
	store ReportStore
	cfg   Config
}

// New returns a server reading from store.
func New(store ReportStore, cfg Config) *Server {
	return &Server{store: store, cfg: cfg}
}

// Router builds the HTTP handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	origins := s.cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.health)
	r.Route("/api", func(r chi.Router) {
		r.Get("/trends", s.trends)
		r.Get("/alerts", s.alerts)
		r.Get("/metrics", s.metrics)
	})
	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		zap.L().Info("server: listening", zap.String("addr", s.cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return eris.Wrap(err, "server: listen")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	zap.L().Info("server: shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return eris.Wrap(err, "server: shutdown")
	}
	return nil
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) trends(w http.ResponseWriter, r *http.Request) {
	report, ok := s.latest(w, r, 1)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"run_id":     report.RunID,
		"created_at": report.CreatedAt,
		"trends":     nonNil(report.Trends),
	})
}

func (s *Server) alerts(w http.ResponseWriter, r *http.Request) {
	limit := s.cfg.AlertLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeJSONError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	report, ok := s.latest(w, r, limit)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"run_id": report.RunID,
		"count":  len(report.Alerts),
		"alerts": nonNil(report.Alerts),
	})
}

func (s *Server) metrics(w http.ResponseWriter, r *http.Request) {
	report, ok := s.latest(w, r, 1)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"run_id":     report.RunID,
		"created_at": report.CreatedAt,
		"source":     report.Source,
		"model":      report.Model,
		"summary":    report.Summary,
	})
}

func (s *Server) latest(w http.ResponseWriter, r *http.Request, alertLimit int) (*clickio.Report, bool) {
	report, err := s.store.LatestReport(r.Context(), alertLimit)
	switch {
	case errors.Is(err, sqlite.ErrNoRuns):
		writeJSONError(w, http.StatusNotFound, "no evaluation run recorded yet")
		return nil, false
	case err != nil:
		zap.L().Error("server: load latest report", zap.Error(err))
		writeJSONError(w, http.StatusInternalServerError, "failed to load report")
		return nil, false
	}
	return report, true
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"code":    status,
			"message": message,
		},
	})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("server: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
