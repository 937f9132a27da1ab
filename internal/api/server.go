// Package api implements the HTTP API: the caller-facing session
// operations, agent plumbing, and the back ends for the builtin tools.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/dmathers/foreman/internal/buildinfo"
	"github.com/dmathers/foreman/internal/config"
	"github.com/dmathers/foreman/internal/engine"
	"github.com/dmathers/foreman/internal/plan"
	"github.com/dmathers/foreman/internal/store"
)

// writeJSON encodes v as JSON to w, logging any errors at debug level.
// Errors here typically mean the client disconnected mid-response.
func writeJSON(w http.ResponseWriter, v any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write JSON response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	writeJSON(w, map[string]string{"error": msg}, s.logger)
}

// Server is the HTTP API server.
type Server struct {
	address   string
	port      int
	store     *store.Store
	engine    *engine.Engine
	tracker   *plan.Tracker
	cfg       *config.Config
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time
}

// NewServer creates a new API server.
func NewServer(cfg *config.Config, st *store.Store, eng *engine.Engine, tracker *plan.Tracker, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		address:   cfg.Listen.Address,
		port:      cfg.Listen.Port,
		store:     st,
		engine:    eng,
		tracker:   tracker,
		cfg:       cfg,
		logger:    logger.With("component", "api"),
		startedAt: time.Now(),
	}
}

// Handler builds the route table. Exposed separately from Start so tests
// can drive it through httptest.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Session operations
	mux.HandleFunc("POST /v1/sessions/{id}/messages", s.handleSendMessage)
	mux.HandleFunc("GET /v1/sessions/{id}", s.handleSessionGet)
	mux.HandleFunc("GET /v1/sessions/{id}/messages", s.handleSessionMessages)
	mux.HandleFunc("GET /v1/sessions/{id}/plan", s.handleSessionPlan)
	mux.HandleFunc("POST /v1/sessions/{id}/cancel", s.handleSessionCancel)

	// Agent plumbing
	mux.HandleFunc("POST /v1/agents", s.handleAgentCreate)
	mux.HandleFunc("GET /v1/agents", s.handleAgentList)
	mux.HandleFunc("GET /v1/agents/{id}", s.handleAgentGet)
	mux.HandleFunc("POST /v1/agents/{id}/tools", s.handleAgentAssignTool)
	mux.HandleFunc("POST /v1/agents/{id}/sessions", s.handleSessionCreate)
	mux.HandleFunc("GET /v1/agents/{id}/sessions", s.handleSessionList)
	mux.HandleFunc("GET /v1/tools", s.handleToolList)

	// Builtin tool back ends
	mux.HandleFunc("POST /internal/tools/{name}", s.requireToolAuth(s.handleToolEndpoint))

	// Health
	mux.HandleFunc("GET /v1/version", s.handleVersion)
	mux.HandleFunc("GET /health", s.handleHealth)

	return s.withLogging(mux)
}

// Start begins serving HTTP requests.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.address, s.port),
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Minute, // a turn can span many model calls
	}

	addr := s.address
	if addr == "" {
		addr = "0.0.0.0"
	}
	s.logger.Info("starting API server", "address", addr, "port", s.port)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, buildinfo.RuntimeInfo(), s.logger)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"status": "ok",
		"uptime": time.Since(s.startedAt).String(),
	}, s.logger)
}
