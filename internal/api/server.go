package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"vidsight/internal/config"
	"vidsight/internal/jobs"
	"vidsight/internal/logging"
	"vidsight/internal/metrics"
	"vidsight/internal/notifications"
	"vidsight/internal/pipeline"
)

// Server owns the HTTP listener and routes requests to the store, the
// orchestrator, and the event hub.
type Server struct {
	bind         string
	logger       *slog.Logger
	store        *jobs.Store
	orchestrator Orchestrator
	hub          *notifications.Hub
	graph        *pipeline.Graph

	listener net.Listener
	server   *http.Server
	router   *mux.Router
}

// NewServer wires the HTTP surface. The recorder may be nil when metrics are
// not exposed.
func NewServer(cfg *config.Config, store *jobs.Store, orch Orchestrator, hub *notifications.Hub, recorder *metrics.Recorder, logger *slog.Logger) *Server {
	s := &Server{
		bind:         strings.TrimSpace(cfg.Paths.APIBind),
		logger:       logging.NewComponentLogger(logger, "api-server"),
		store:        store,
		orchestrator: orch,
		hub:          hub,
		graph:        pipeline.Default(),
	}

	router := mux.NewRouter()
	v1 := router.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/jobs", s.handleSubmit).Methods(http.MethodPost)
	v1.HandleFunc("/jobs", s.handleList).Methods(http.MethodGet)
	v1.HandleFunc("/jobs/{id}", s.handleGet).Methods(http.MethodGet)
	v1.HandleFunc("/jobs/{id}", s.handleCancel).Methods(http.MethodDelete)
	v1.HandleFunc("/jobs/{id}/result", s.handleResult).Methods(http.MethodGet)
	v1.HandleFunc("/jobs/{id}/export", s.handleExport).Methods(http.MethodGet)
	v1.HandleFunc("/jobs/{id}/events", s.handleEvents).Methods(http.MethodGet)
	v1.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	if recorder != nil {
		router.Handle("/metrics", recorder.Handler()).Methods(http.MethodGet)
	}
	s.router = router

	s.server = &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Handler exposes the router, used by tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr returns the bound address once Start has succeeded.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Start binds the listener and serves until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	if s.bind == "" {
		return errors.New("api bind address not configured")
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

// Stop shuts the server down, allowing in-flight requests a short grace period.
func (s *Server) Stop() {
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
