// Package server provides the HTTP dashboard of the rep counter.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/ayusman/fitcheck/internal/exercise"
	"github.com/ayusman/fitcheck/internal/plugin"
	"github.com/ayusman/fitcheck/internal/server/api"
	"github.com/ayusman/fitcheck/internal/session"
	"github.com/ayusman/fitcheck/internal/store"
)

// Config holds the server configuration. Every dependency is optional; routes
// whose dependency is missing are not registered.
type Config struct {
	StaticDir string
	Store     *store.Store
	Registry  *exercise.Registry
	Session   *session.Session
	Plugins   *plugin.Manager
	Logger    zerolog.Logger
}

// Server represents the HTTP server for the dashboard.
type Server struct {
	config Config
	mux    *http.ServeMux
	start  time.Time
	srv    *http.Server
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	s := &Server{
		config: config,
		mux:    http.NewServeMux(),
		start:  time.Now(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) handle(pattern string, h http.Handler) {
	s.mux.Handle(pattern, h)
	s.mux.Handle(pattern+"/", h)
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)

	registry := s.config.Registry
	if registry == nil && s.config.Session != nil {
		registry = s.config.Session.Registry()
	}

	if s.config.Store != nil {
		if registry != nil {
			var active api.ActiveExercise
			if s.config.Session != nil {
				active = s.config.Session
			}
			s.handle("/api/exercises", api.NewExerciseHandler(registry, s.config.Store, active))
		}
		s.handle("/api/sessions", api.NewSessionHandler(s.config.Store))
		s.handle("/api/hooks", api.NewHookHandler(s.config.Store, s.config.Plugins))
	}
	s.mux.Handle("/api/plugins", api.NewPluginHandler(s.config.Plugins))

	if s.config.Session != nil {
		s.mux.Handle("/api/live/", api.NewLiveHandler(s.config.Session))
		s.mux.Handle("/api/live", NewLiveSocket(s.config.Session, s.config.Logger))
		s.mux.Handle("/api/stream", NewStreamHandler(s.config.Session))
	}

	if s.config.StaticDir != "" {
		fs := http.FileServer(http.Dir(s.config.StaticDir))
		s.mux.Handle("/", fs)
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(s.start).String(),
	}
	if s.config.Session != nil {
		response["running"] = s.config.Session.Running()
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.config.Logger.Info().Str("addr", addr).Msg("dashboard listening")
		errCh <- s.srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
