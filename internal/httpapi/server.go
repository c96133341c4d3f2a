package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/lbartoli/parley/internal/config"
	"github.com/lbartoli/parley/internal/dialogue"
	"github.com/lbartoli/parley/internal/hermes"
	"github.com/lbartoli/parley/internal/history"
	"github.com/lbartoli/parley/internal/observability"
)

// Server is the control-plane HTTP surface: session start/end without going
// through the bus, plus introspection and metrics.
type Server struct {
	cfg     config.Config
	manager *dialogue.Manager
	store   history.Store
}

func New(cfg config.Config, manager *dialogue.Manager, store history.Store) *Server {
	return &Server{
		cfg:     cfg,
		manager: manager,
		store:   store,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Post("/v1/session/start", s.handleStartSession)
	r.Post("/v1/session/{id}/end", s.handleEndSession)
	r.Get("/v1/sessions", s.handleListSessions)
	r.Get("/v1/history", s.handleHistory)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":          "ready",
		"bus_configured":  s.cfg.BusURL != "",
		"active_sessions": len(s.manager.ActiveSessions()),
	})
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req hermes.SessionStartRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.SiteID) == "" {
		req.SiteID = "default"
	}
	if req.Init.Type == "" {
		req.Init.Type = hermes.InitAction
	}

	result, err := s.manager.StartSession(req)
	switch {
	case err == nil:
		status := http.StatusCreated
		if result.Queued {
			status = http.StatusAccepted
		}
		respondJSON(w, status, result)
	case errors.Is(err, dialogue.ErrSessionActive):
		respondError(w, http.StatusConflict, "session_active", err.Error())
	case errors.Is(err, dialogue.ErrQueueFull):
		respondError(w, http.StatusConflict, "queue_full", err.Error())
	case errors.Is(err, dialogue.ErrSiteNotAllowed):
		respondError(w, http.StatusForbidden, "site_not_allowed", err.Error())
	case errors.Is(err, dialogue.ErrClosed):
		respondError(w, http.StatusServiceUnavailable, "shutting_down", err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "internal", err.Error())
	}
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if strings.TrimSpace(id) == "" {
		respondError(w, http.StatusBadRequest, "invalid_session_id", "missing session id")
		return
	}

	if err := s.manager.EndSessionByID(id, dialogue.ReasonNominal); err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"sessionId": id, "state": dialogue.StateEnded})
}

func (s *Server) handleListSessions(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"sessions": s.manager.ActiveSessions()})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	siteID := strings.TrimSpace(r.URL.Query().Get("siteId"))
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = n
	}

	entries, err := s.store.Recent(r.Context(), siteID, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "history_unavailable", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errors.New("empty body")
	}
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(out)
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
