package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
)

const (
	defaultSessionLimit = 50
	maxSessionLimit     = 500
)

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)

	r.Handle("/metrics", s.metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/devices", s.handleDevices)
		r.Get("/layers", s.handleLayers)
		r.Get("/sessions", s.handleSessions)
		r.Get("/ws", s.handleWebSocket)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeNotFound(w, "no such endpoint")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, ErrCodeMethodNotAllow, "read-only API")
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status, code := "ok", http.StatusOK

	checks := make(map[string]string, len(s.checks))
	for _, c := range s.checks {
		if err := c.Checker.HealthCheck(r.Context()); err != nil {
			checks[c.Name] = err.Error()
			status, code = "degraded", http.StatusServiceUnavailable
			continue
		}
		checks[c.Name] = "ok"
	}

	// A poisoned engine outranks a degraded service: keys no longer flow.
	if s.engine.Poisoned() {
		status, code = "poisoned", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":         status,
		"version":        s.version,
		"uptime_seconds": int64(time.Since(s.startTime).Seconds()),
		"ws_clients":     s.hub.ClientCount(),
		"checks":         checks,
	})
}

func (s *Server) handleDevices(w http.ResponseWriter, _ *http.Request) {
	stats := s.workers.Stats()
	writeJSON(w, http.StatusOK, map[string]any{
		"devices": stats,
		"count":   len(stats),
	})
}

func (s *Server) handleLayers(w http.ResponseWriter, _ *http.Request) {
	snap, err := s.engine.Snapshot()
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "session history requires database.enabled")
		return
	}

	limit := defaultSessionLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxSessionLimit {
			writeBadRequest(w, "limit must be between 1 and 500")
			return
		}
		limit = n
	}

	sessions, err := s.sessions.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("listing sessions failed", "error", err)
		writeInternalError(w, "failed to list sessions")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": sessions,
		"count":    len(sessions),
	})
}
