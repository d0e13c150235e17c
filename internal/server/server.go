// Package server exposes the operational HTTP surface: health, pipeline
// status, and manual run triggers. It serves operators, not readers; the
// public article frontend lives elsewhere.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"newsroom/internal/core"
	"newsroom/internal/logger"
	"newsroom/internal/store"
)

// Pipeline is the scheduler surface the server drives.
type Pipeline interface {
	State() core.SchedulerState
	RunCollection(ctx context.Context) error
	RunGeneration(ctx context.Context) error
	RunLearning(ctx context.Context) error
}

// StatusStore provides the persisted statistics behind /api/status.
type StatusStore interface {
	CountUnprocessed() (int, error)
	CountArticlesByStatusSince(cutoff time.Time) (map[core.ArticleStatus]int, error)
	GetRunStatsSince(cutoff time.Time) ([]store.RunStats, error)
}

// Server is the operational HTTP server.
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	pipeline   Pipeline
	store      StatusStore
	log        *slog.Logger
}

// New creates the server bound to addr.
func New(addr string, pipeline Pipeline, st StatusStore) *Server {
	s := &Server{
		router:   chi.NewRouter(),
		pipeline: pipeline,
		store:    st,
		log:      logger.Get(),
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	s.router.Get("/api/status", s.handleStatus)
	s.router.Post("/api/trigger/{job}", s.handleTrigger)
}

// Start begins serving. It blocks until the server stops.
func (s *Server) Start() error {
	s.log.Info("Operational server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Router exposes the handler tree, mainly for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":     true,
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// statusResponse is the /api/status payload.
type statusResponse struct {
	OK        bool                       `json:"ok"`
	Scheduler core.SchedulerState        `json:"scheduler"`
	Backlog   int                        `json:"backlog"`
	Articles  map[core.ArticleStatus]int `json:"articles_24h"`
	Runs      []store.RunStats           `json:"runs_24h"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	cutoff := time.Now().Add(-24 * time.Hour)

	backlog, err := s.store.CountUnprocessed()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	articles, err := s.store.CountArticlesByStatusSince(cutoff)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	runs, err := s.store.GetRunStatsSince(cutoff)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}

	s.writeJSON(w, http.StatusOK, statusResponse{
		OK:        true,
		Scheduler: s.pipeline.State(),
		Backlog:   backlog,
		Articles:  articles,
		Runs:      runs,
	})
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	job := chi.URLParam(r, "job")

	var run func(context.Context) error
	switch job {
	case "collection":
		run = s.pipeline.RunCollection
	case "generation":
		run = s.pipeline.RunGeneration
	case "learning":
		run = s.pipeline.RunLearning
	default:
		s.writeError(w, http.StatusNotFound, fmt.Errorf("unknown job %q", job))
		return
	}

	s.log.Info("Manual trigger received", "job", job)
	if err := run(r.Context()); err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":  true,
		"job": job,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Error("Failed to encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.log.Error("Request failed", "status", status, "error", err)
	s.writeJSON(w, status, map[string]interface{}{
		"ok":    false,
		"error": err.Error(),
	})
}
