package server

import (
	"bytes"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/becomeliminal/nim-recall/memory"
)

type memoryView struct {
	ID            string            `json:"id"`
	Content       string            `json:"content"`
	Type          memory.Type       `json:"type"`
	Importance    float64           `json:"importance"`
	ContentLength int               `json:"content_length"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     *time.Time        `json:"updated_at,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

func viewOf(rec *memory.Record) memoryView {
	v := memoryView{
		ID:            rec.ID,
		Content:       rec.Content,
		Type:          rec.Type,
		Importance:    rec.Importance,
		ContentLength: rec.ContentLength,
		CreatedAt:     rec.CreatedAt,
		Metadata:      rec.Extra,
	}
	if !rec.UpdatedAt.IsZero() {
		updated := rec.UpdatedAt
		v.UpdatedAt = &updated
	}
	return v
}

type searchResultView struct {
	memoryView
	Similarity float64 `json:"similarity"`
	Score      float64 `json:"score"`
}

type addMemoryRequest struct {
	Content    string            `json:"content"`
	Type       memory.Type       `json:"type"`
	Importance *float64          `json:"importance"`
	Metadata   map[string]string `json:"metadata"`
}

func (s *Server) handleAddMemory(w http.ResponseWriter, r *http.Request) {
	var req addMemoryRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	id, err := s.memory.Add(r.Context(), memory.AddRequest{
		Content:    req.Content,
		Type:       req.Type,
		Importance: req.Importance,
		Extra:      req.Metadata,
	})
	if err != nil {
		respondMemoryError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *Server) handleGetMemory(w http.ResponseWriter, r *http.Request) {
	rec, err := s.memory.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondMemoryError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, viewOf(rec))
}

type updateMemoryRequest struct {
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata"`
}

func (s *Server) handleUpdateMemory(w http.ResponseWriter, r *http.Request) {
	var req updateMemoryRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	id := chi.URLParam(r, "id")
	if err := s.memory.Update(r.Context(), id, req.Content, req.Metadata); err != nil {
		respondMemoryError(w, err)
		return
	}
	rec, err := s.memory.Get(r.Context(), id)
	if err != nil {
		respondMemoryError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, viewOf(rec))
}

type importanceRequest struct {
	Importance *float64 `json:"importance"`
}

func (s *Server) handleSetImportance(w http.ResponseWriter, r *http.Request) {
	var req importanceRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if req.Importance == nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "importance is required")
		return
	}
	if err := s.memory.SetImportance(r.Context(), chi.URLParam(r, "id"), *req.Importance); err != nil {
		respondMemoryError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteMemory(w http.ResponseWriter, r *http.Request) {
	if err := s.memory.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondMemoryError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleClearMemories(w http.ResponseWriter, r *http.Request) {
	if err := s.memory.Clear(r.Context()); err != nil {
		respondMemoryError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := strings.TrimSpace(q.Get("q"))
	if query == "" {
		respondError(w, http.StatusBadRequest, "missing_query", "query parameter q is required")
		return
	}
	limit, err := intParam(q.Get("limit"), s.maxResults)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_limit", err.Error())
		return
	}
	minImportance, err := floatParam(q.Get("min_importance"), 0)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_min_importance", err.Error())
		return
	}

	results, err := s.memory.Search(r.Context(), memory.SearchRequest{
		Query:         query,
		MaxResults:    limit,
		Type:          memory.Type(q.Get("type")),
		MinImportance: minImportance,
	})
	if err != nil {
		respondMemoryError(w, err)
		return
	}

	out := make([]searchResultView, 0, len(results))
	for _, res := range results {
		out = append(out, searchResultView{
			memoryView: viewOf(res.Record),
			Similarity: res.Similarity,
			Score:      res.Score,
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{"results": out})
}

func (s *Server) handleContext(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := strings.TrimSpace(q.Get("q"))
	if query == "" {
		respondError(w, http.StatusBadRequest, "missing_query", "query parameter q is required")
		return
	}
	maxTokens, err := intParam(q.Get("max_tokens"), 2000)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_max_tokens", err.Error())
		return
	}
	candidates, err := intParam(q.Get("candidates"), 10)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_candidates", err.Error())
		return
	}

	block, err := s.memory.OptimizedContext(r.Context(), memory.ContextRequest{
		Query:      query,
		MaxTokens:  maxTokens,
		Candidates: candidates,
		Summarize:  q.Get("summarize") != "false",
	})
	if err != nil {
		respondMemoryError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"context": block})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.memory.Stats(r.Context())
	if err != nil {
		respondMemoryError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

func (s *Server) handleInsights(w http.ResponseWriter, r *http.Request) {
	ins, err := s.memory.Insights(r.Context())
	if err != nil {
		respondMemoryError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, ins)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := s.memory.Export(r.Context(), &buf); err != nil {
		respondMemoryError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="memories.json"`)
	if _, err := buf.WriteTo(w); err != nil {
		s.logger.Warn("export write failed", "error", err)
	}
}

func intParam(v string, fallback int) (int, error) {
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, errors.New("must be >= 0")
	}
	return n, nil
}

func floatParam(v string, fallback float64) (float64, error) {
	if v == "" {
		return fallback, nil
	}
	return strconv.ParseFloat(v, 64)
}
