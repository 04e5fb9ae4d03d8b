// Package server exposes the local HTTP surface that receives tracking
// events from the embedding UI.
package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ispcompare/tariff-agent/internal/telemetry"
	"github.com/ispcompare/tariff-agent/internal/tracking"
)

// Server wires HTTP handlers to the session store and the API proxy.
type Server struct {
	router  chi.Router
	tracker *tracking.Store
	svcs    *Services
	logger  *zap.Logger
}

// New constructs a Server with middleware and routes. svcs may be nil,
// in which case the /api proxy is not mounted.
func New(tracker *tracking.Store, svcs *Services, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		tracker: tracker,
		svcs:    svcs,
		logger:  logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(timeoutMiddleware(60 * time.Second))
	r.Use(telemetry.Middleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", telemetry.Handler())

	r.Route("/track", func(r chi.Router) {
		r.Post("/click", s.trackClick)
		r.Post("/page", s.trackPage)
		r.Post("/goal", s.trackGoal)
		r.Post("/events", s.trackEvents)
		r.Post("/reset", s.reset)
		r.Get("/stats", s.stats)
	})

	if svcs != nil {
		r.Route("/api", s.apiRoutes)
	}

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	if _, ok := s.tracker.Session(); !ok {
		writeError(w, http.StatusServiceUnavailable, "session store not initialized")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type clickRequest struct {
	Category string `json:"category"`
	Text     string `json:"text"`
}

type pageRequest struct {
	Path string `json:"path"`
}

type batchEvent struct {
	Type     string `json:"type"`
	Category string `json:"category"`
	Text     string `json:"text"`
	Path     string `json:"path"`
}

type batchRequest struct {
	Events []batchEvent `json:"events"`
}

func (s *Server) trackClick(w http.ResponseWriter, r *http.Request) {
	var req clickRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Category == "" {
		writeError(w, http.StatusBadRequest, "category required")
		return
	}
	if err := s.tracker.RecordClick(r.Context(), req.Category, req.Text); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "recorded"})
}

func (s *Server) trackPage(w http.ResponseWriter, r *http.Request) {
	var req pageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Path == "" {
		writeError(w, http.StatusBadRequest, "path required")
		return
	}
	if err := s.tracker.RecordPageVisit(r.Context(), req.Path); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "recorded"})
}

func (s *Server) trackGoal(w http.ResponseWriter, r *http.Request) {
	if err := s.tracker.RecordGoalReached(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "recorded"})
}

// trackEvents applies a batch of events in arrival order.
func (s *Server) trackEvents(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	for i, ev := range req.Events {
		var err error
		switch ev.Type {
		case "click":
			if ev.Category == "" {
				writeError(w, http.StatusBadRequest, fmt.Sprintf("event %d: category required", i))
				return
			}
			err = s.tracker.RecordClick(r.Context(), ev.Category, ev.Text)
		case "page":
			if ev.Path == "" {
				writeError(w, http.StatusBadRequest, fmt.Sprintf("event %d: path required", i))
				return
			}
			err = s.tracker.RecordPageVisit(r.Context(), ev.Path)
		case "goal":
			err = s.tracker.RecordGoalReached(r.Context())
		default:
			writeError(w, http.StatusBadRequest, fmt.Sprintf("event %d: unknown type %q", i, ev.Type))
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"status": "recorded", "count": len(req.Events)})
}

func (s *Server) reset(w http.ResponseWriter, r *http.Request) {
	if err := s.tracker.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (s *Server) stats(w http.ResponseWriter, _ *http.Request) {
	stats, err := s.tracker.Stats()
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

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
