package models

import (
	"time"

	"github.com/google/uuid"
)

// Invite is a redeemable code. CreatedBy is nil for seeded codes.
type Invite struct {
	Code        string     `json:"code"`
	CreatedBy   *uuid.UUID `json:"created_by,omitempty"`
	MaxUses     int        `json:"max_uses"`
	CurrentUses int        `json:"current_uses"`
	IsValid     bool       `json:"is_valid"`
	UsedBy      *uuid.UUID `json:"used_by,omitempty"`
	UsedAt      *time.Time `json:"used_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Remaining returns how many redemptions are left.
func (i *Invite) Remaining() int {
	if i.CurrentUses >= i.MaxUses {
		return 0
	}
	return i.MaxUses - i.CurrentUses
}
