package auth

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/Squirrel-Richard/myanus-platform/internal/invites"
	"github.com/Squirrel-Richard/myanus-platform/internal/metrics"
	"github.com/Squirrel-Richard/myanus-platform/internal/middleware"
	"github.com/Squirrel-Richard/myanus-platform/internal/models"
)

type JoinRequest struct {
	InviteCode string `json:"invite_code"`
	Email      string `json:"email"`
	FullName   string `json:"full_name"`
}

type JoinResponse struct {
	Token   string          `json:"token"`
	Message string          `json:"message"`
	Profile *models.Profile `json:"profile"`
}

// SessionClearer drops in-memory conversation state on logout.
type SessionClearer interface {
	ClearAll(profileID uuid.UUID) int
}

type Handler struct {
	svc      Service
	sessions SessionClearer
	metrics  *metrics.Recorder
	log      *slog.Logger
}

func NewHandler(svc Service, sessions SessionClearer, rec *metrics.Recorder, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, sessions: sessions, metrics: rec, log: log}
}

// Join handles POST /api/v1/auth/join.
func (h *Handler) Join(w http.ResponseWriter, r *http.Request) {
	var req JoinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	res, err := h.svc.Join(r.Context(), req.InviteCode, req.Email, req.FullName)
	if err != nil {
		switch {
		case errors.Is(err, invites.ErrMissingFields):
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		case errors.Is(err, invites.ErrInvalidInvite):
			h.metrics.Redemption("invalid_invite")
			writeJSON(w, http.StatusForbidden, map[string]string{"error": err.Error()})
		case errors.Is(err, invites.ErrEmailTaken):
			writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		case errors.Is(err, ErrStoreUnavailable):
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "accounts are unavailable: database not configured"})
		default:
			h.metrics.Redemption("error")
			h.log.Error("join failed", "error", err)
			writeJSON(w, http.StatusBadGateway, map[string]string{"error": "failed to create account, please try again"})
		}
		return
	}

	if !res.Created {
		writeJSON(w, http.StatusOK, JoinResponse{Token: res.Token, Message: "Welcome back!", Profile: res.Profile})
		return
	}
	h.metrics.Redemption("ok")
	h.log.Info("profile created", "profile_id", res.Profile.ID, "invite_code", res.Profile.InviteCodeUsed)
	writeJSON(w, http.StatusCreated, JoinResponse{Token: res.Token, Message: "Account created!", Profile: res.Profile})
}

// Logout handles POST /api/v1/auth/logout. Tokens are stateless; logout
// drops the caller's conversations.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	p := middleware.ProfileFromCtx(r.Context())
	if p == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	n := h.sessions.ClearAll(p.ID)
	writeJSON(w, http.StatusOK, map[string]int{"cleared_threads": n})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
