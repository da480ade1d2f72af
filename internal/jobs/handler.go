package jobs

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/Squirrel-Richard/myanus-platform/internal/middleware"
	"github.com/Squirrel-Richard/myanus-platform/internal/sandbox"
)

type CreateRunRequest struct {
	Code string `json:"code"`
}

type Handler struct {
	svc Service
	log *slog.Logger
}

func NewHandler(svc Service, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, log: log}
}

// CreateRun handles POST /api/v1/sandbox/runs. The run executes
// asynchronously; poll GetRun for the result.
func (h *Handler) CreateRun(w http.ResponseWriter, r *http.Request) {
	p := middleware.ProfileFromCtx(r.Context())
	if p == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var req CreateRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	run, err := h.svc.CreateRun(r.Context(), p.ID, req.Code)
	if err != nil {
		switch {
		case errors.Is(err, sandbox.ErrUnavailable):
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
		case errors.Is(err, sandbox.ErrEmptyCode), errors.Is(err, ErrCodeTooLong):
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		default:
			h.log.Error("create sandbox run failed", "profile_id", p.ID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to queue run"})
		}
		return
	}
	writeJSON(w, http.StatusAccepted, run)
}

// GetRun handles GET /api/v1/sandbox/runs/{id}.
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	p := middleware.ProfileFromCtx(r.Context())
	if p == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	runID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid run id", http.StatusBadRequest)
		return
	}
	run, err := h.svc.GetRun(r.Context(), p.ID, runID)
	if err != nil {
		if errors.Is(err, ErrRunNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
			return
		}
		h.log.Error("get sandbox run failed", "run_id", runID, "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "failed to load run"})
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
