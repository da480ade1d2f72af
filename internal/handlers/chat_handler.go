package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/Squirrel-Richard/myanus-platform/internal/chat"
	"github.com/Squirrel-Richard/myanus-platform/internal/llm"
	"github.com/Squirrel-Richard/myanus-platform/internal/middleware"
	"github.com/Squirrel-Richard/myanus-platform/internal/models"
)

// ChatHandler serves /api/v1/chat endpoints.
type ChatHandler struct {
	Chat   *chat.Service
	Logger *slog.Logger
}

type threadResponse struct {
	Thread string        `json:"thread"`
	Model  string        `json:"model"`
	Turns  []models.Turn `json:"turns"`
}

// --- GET /api/v1/chat/threads ---

// ListThreads handles GET /api/v1/chat/threads.
func (h *ChatHandler) ListThreads(w http.ResponseWriter, r *http.Request) {
	p := middleware.ProfileFromCtx(r.Context())
	if p == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	threads := h.Chat.Threads(p.ID)
	if threads == nil {
		threads = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"threads": threads})
}

// --- GET /api/v1/chat/threads/{thread} ---

// GetThread handles GET /api/v1/chat/threads/{thread}.
func (h *ChatHandler) GetThread(w http.ResponseWriter, r *http.Request) {
	p := middleware.ProfileFromCtx(r.Context())
	if p == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	thread := threadID(r)
	writeJSON(w, http.StatusOK, threadResponse{
		Thread: thread,
		Model:  h.Chat.Model(p.ID, thread),
		Turns:  h.Chat.History(p.ID, thread),
	})
}

// --- DELETE /api/v1/chat/threads/{thread} ---

// ClearThread handles DELETE /api/v1/chat/threads/{thread}.
func (h *ChatHandler) ClearThread(w http.ResponseWriter, r *http.Request) {
	p := middleware.ProfileFromCtx(r.Context())
	if p == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	h.Chat.Clear(p.ID, threadID(r))
	w.WriteHeader(http.StatusNoContent)
}

// --- POST /api/v1/chat/threads/{thread}/messages ---

type submitRequest struct {
	Prompt string `json:"prompt"`
}

// SubmitMessage handles POST /api/v1/chat/threads/{thread}/messages.
// Auth -> RateLimit -> CreditCheck (via middleware) -> Deduct -> Model -> 200.
func (h *ChatHandler) SubmitMessage(w http.ResponseWriter, r *http.Request) {
	p := middleware.ProfileFromCtx(r.Context())
	if p == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}

	reply, err := h.Chat.Submit(r.Context(), p, threadID(r), req.Prompt)
	if err != nil {
		switch {
		case errors.Is(err, chat.ErrEmptyPrompt):
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		case errors.Is(err, chat.ErrInsufficientCredits):
			writeJSON(w, http.StatusPaymentRequired, map[string]string{"error": "insufficient credits"})
		case errors.Is(err, chat.ErrTurnInProgress), errors.Is(err, chat.ErrTooManyThreads):
			writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		case errors.Is(err, llm.ErrNotConfigured):
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "model not configured: set OPENAI_API_KEY"})
		default:
			h.Logger.Error("chat turn failed", "profile_id", p.ID, "error", err)
			writeJSON(w, http.StatusBadGateway, map[string]string{"error": "the model could not answer, please try again"})
		}
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

// --- PUT /api/v1/chat/threads/{thread}/model ---

type modelRequest struct {
	Model string `json:"model"`
}

// SetModel handles PUT /api/v1/chat/threads/{thread}/model.
func (h *ChatHandler) SetModel(w http.ResponseWriter, r *http.Request) {
	p := middleware.ProfileFromCtx(r.Context())
	if p == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	var req modelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	thread := threadID(r)
	if err := h.Chat.SetModel(p.ID, thread, req.Model); err != nil {
		if errors.Is(err, chat.ErrTooManyThreads) {
			writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error(), "allowed": chat.AllowedModels})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"thread": thread, "model": req.Model})
}

// --- GET /api/v1/chat/models ---

// ListModels handles GET /api/v1/chat/models (public, no auth).
func (h *ChatHandler) ListModels(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"default": h.Chat.DefaultModel(), "models": chat.AllowedModels})
}

// --- helpers ---

func threadID(r *http.Request) string {
	if t := r.PathValue("thread"); t != "" {
		return t
	}
	return chat.DefaultThread
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
