// Package server exposes the assistant over HTTP, WebSocket and gRPC health.
package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/becomeliminal/nim-recall/memory"
	"github.com/becomeliminal/nim-recall/observability"
	"github.com/becomeliminal/nim-recall/pipeline"
)

// Server serves the chat and memory APIs.
type Server struct {
	memory     *memory.Manager
	pipeline   *pipeline.Pipeline
	metrics    *observability.Metrics
	logger     *slog.Logger
	maxResults int
	upgrader   websocket.Upgrader
}

// Option configures the server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMaxResults sets the default search result count.
func WithMaxResults(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxResults = n
		}
	}
}

// New creates a server.
func New(mgr *memory.Manager, pipe *pipeline.Pipeline, metrics *observability.Metrics, opts ...Option) *Server {
	s := &Server{
		memory:     mgr,
		pipeline:   pipe,
		metrics:    metrics,
		logger:     observability.Discard(),
		maxResults: 5,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     sameOrigin,
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "server")
	return s
}

// Router returns the HTTP handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", s.metrics.Handler())

	r.Post("/v1/chat", s.handleChat)
	r.Get("/v1/chat/ws", s.handleChatWS)
	r.Get("/v1/chat/steps", s.handleSteps)

	r.Route("/v1/memories", func(r chi.Router) {
		r.Post("/", s.handleAddMemory)
		r.Delete("/", s.handleClearMemories)
		r.Get("/search", s.handleSearch)
		r.Get("/context", s.handleContext)
		r.Get("/stats", s.handleStats)
		r.Get("/insights", s.handleInsights)
		r.Get("/export", s.handleExport)
		r.Get("/{id}", s.handleGetMemory)
		r.Put("/{id}", s.handleUpdateMemory)
		r.Delete("/{id}", s.handleDeleteMemory)
		r.Put("/{id}/importance", s.handleSetImportance)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.memory.Ping(r.Context()); err != nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "degraded",
			"error":  err.Error(),
		})
		return
	}
	stats, err := s.memory.Stats(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "stats_failed", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"memories": stats.TotalMemories,
		"location": stats.Location,
	})
}

// sameOrigin allows non-browser clients and same-host browser origins.
func sameOrigin(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

// respondMemoryError maps memory errors onto HTTP statuses.
func respondMemoryError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, memory.ErrNotFound):
		respondError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, memory.ErrEmptyContent), errors.Is(err, memory.ErrInvalidImportance):
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "internal", err.Error())
	}
}
