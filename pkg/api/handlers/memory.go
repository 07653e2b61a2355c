// Package handlers provides HTTP request handlers.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/echomem/echomem/pkg/api/middleware"
	"github.com/echomem/echomem/pkg/api/response"
	mem "github.com/echomem/echomem/pkg/memory"
	"github.com/echomem/echomem/pkg/pipeline"
)

// MemoryHandler handles the memory ingestion and recall endpoints.
type MemoryHandler struct {
	pipeline *pipeline.Pipeline
	logger   handlerLogger
}

type handlerLogger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// NewMemoryHandler creates a new memory handler.
func NewMemoryHandler(p *pipeline.Pipeline, log handlerLogger) *MemoryHandler {
	return &MemoryHandler{
		pipeline: p,
		logger:   log,
	}
}

// --- Request/Response types ---

type rememberRequest struct {
	Speaker        string `json:"speaker"`
	Text           string `json:"text"`
	EmotionalState string `json:"emotional_state,omitempty"`
}

type rememberResponse struct {
	SessionID string `json:"session_id"`
}

type recallRequest struct {
	Query        string `json:"query"`
	Context      string `json:"context,omitempty"`
	TopK         int    `json:"top_k,omitempty"`
	ReturnChunks bool   `json:"return_chunks,omitempty"`
}

type recallResponse struct {
	Context string             `json:"context"`
	Chunks  []*mem.MemoryChunk `json:"chunks,omitempty"`
}

type flushResponse struct {
	SessionID string `json:"session_id"`
}

// RememberTurn handles POST /api/v1/memory/turns.
func (h *MemoryHandler) RememberTurn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req rememberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, response.ErrCodeBadRequest, "Invalid request body", middleware.GetRequestID(ctx))
		return
	}
	if req.Speaker != mem.SpeakerUser && req.Speaker != mem.SpeakerAgent {
		response.Error(w, http.StatusBadRequest, response.ErrCodeValidationFailed, "Speaker must be 'user' or 'agent'", middleware.GetRequestID(ctx))
		return
	}
	if req.Text == "" {
		response.Error(w, http.StatusBadRequest, response.ErrCodeValidationFailed, "Text is required", middleware.GetRequestID(ctx))
		return
	}

	if err := h.pipeline.Remember(ctx, req.Speaker, req.Text, req.EmotionalState); err != nil {
		h.logger.Error("Failed to remember turn", "error", err)
		response.Error(w, http.StatusInternalServerError, response.ErrCodeInternalServer, "Failed to store turn", middleware.GetRequestID(ctx))
		return
	}

	response.JSON(w, http.StatusCreated, rememberResponse{SessionID: h.pipeline.SessionID()})
}

// Recall handles POST /api/v1/memory/recall. Memory degradation never
// produces an error response: a gated query or internal failure yields
// 200 with an empty context.
func (h *MemoryHandler) Recall(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req recallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, response.ErrCodeBadRequest, "Invalid request body", middleware.GetRequestID(ctx))
		return
	}
	if req.Query == "" {
		response.Error(w, http.StatusBadRequest, response.ErrCodeValidationFailed, "Query is required", middleware.GetRequestID(ctx))
		return
	}

	if req.ReturnChunks {
		chunks := h.pipeline.RecallChunks(ctx, req.Query, req.Context, req.TopK)
		response.JSON(w, http.StatusOK, recallResponse{Chunks: chunks})
		return
	}

	formatted := h.pipeline.Recall(ctx, req.Query, req.Context, req.TopK)
	response.JSON(w, http.StatusOK, recallResponse{Context: formatted})
}

// FlushSession handles POST /api/v1/memory/flush.
func (h *MemoryHandler) FlushSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := h.pipeline.FlushSession(ctx); err != nil {
		h.logger.Error("Failed to flush session", "error", err)
		response.Error(w, http.StatusInternalServerError, response.ErrCodeInternalServer, "Failed to flush session", middleware.GetRequestID(ctx))
		return
	}

	response.JSON(w, http.StatusOK, flushResponse{SessionID: h.pipeline.SessionID()})
}

// Stats handles GET /api/v1/memory/stats.
func (h *MemoryHandler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	stats, err := h.pipeline.Stats(ctx)
	if err != nil {
		h.logger.Error("Failed to collect stats", "error", err)
		response.Error(w, http.StatusInternalServerError, response.ErrCodeInternalServer, "Failed to collect stats", middleware.GetRequestID(ctx))
		return
	}

	response.JSON(w, http.StatusOK, stats)
}
