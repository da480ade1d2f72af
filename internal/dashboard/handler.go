// Package dashboard serves the account views: profile, invite codes and
// credit history.
package dashboard

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/Squirrel-Richard/myanus-platform/internal/ledger"
	"github.com/Squirrel-Richard/myanus-platform/internal/middleware"
	"github.com/Squirrel-Richard/myanus-platform/internal/models"
)

// InviteLister returns the invites a profile created.
type InviteLister interface {
	ListByCreator(ctx context.Context, profileID uuid.UUID) ([]*models.Invite, error)
}

type Handler struct {
	ledger  ledger.Service
	invites InviteLister
	log     *slog.Logger
}

func NewHandler(l ledger.Service, invites InviteLister, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{ledger: l, invites: invites, log: log}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// GET /api/v1/account/me
func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	p := middleware.ProfileFromCtx(r.Context())
	if p == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	enabled := h.ledger.Enabled()
	writeJSON(w, http.StatusOK, map[string]any{
		"id":               p.ID,
		"email":            p.Email,
		"full_name":        p.FullName,
		"credits":          p.Credits,
		"credits_enabled":  enabled,
		"low_credits":      enabled && p.Credits < models.LowCreditThreshold,
		"invite_code_used": p.InviteCodeUsed,
		"created_at":       p.CreatedAt,
	})
}

type inviteResponse struct {
	Code        string `json:"code"`
	Status      string `json:"status"`
	MaxUses     int    `json:"max_uses"`
	CurrentUses int    `json:"current_uses"`
	Remaining   int    `json:"remaining"`
}

// GET /api/v1/invites
func (h *Handler) ListInvites(w http.ResponseWriter, r *http.Request) {
	p := middleware.ProfileFromCtx(r.Context())
	if p == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	list, err := h.invites.ListByCreator(r.Context(), p.ID)
	if err != nil {
		h.log.Error("list invites failed", "profile_id", p.ID, "error", err)
		http.Error(w, "error fetching invites", http.StatusBadGateway)
		return
	}
	out := make([]inviteResponse, 0, len(list))
	for _, inv := range list {
		status := "available"
		if !inv.IsValid {
			status = "used"
		}
		out = append(out, inviteResponse{
			Code:        inv.Code,
			Status:      status,
			MaxUses:     inv.MaxUses,
			CurrentUses: inv.CurrentUses,
			Remaining:   inv.Remaining(),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// GET /api/v1/credit-ledger
func (h *Handler) ListCreditLedger(w http.ResponseWriter, r *http.Request) {
	p := middleware.ProfileFromCtx(r.Context())
	if p == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	entries, err := h.ledger.History(r.Context(), p.ID)
	if err != nil {
		h.log.Error("list credit ledger failed", "profile_id", p.ID, "error", err)
		http.Error(w, "error fetching credit history", http.StatusBadGateway)
		return
	}
	if entries == nil {
		entries = []*models.CreditTransaction{}
	}
	writeJSON(w, http.StatusOK, entries)
}
