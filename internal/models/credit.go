package models

import (
	"time"

	"github.com/google/uuid"
)

// Credit transaction action types.
const (
	CreditActionChat   = "chat"
	CreditActionRefund = "refund"
)

// CreditTransaction is one row written by deduct_credits / refund_credits.
// Amount is positive for a deduction and negative for a refund.
type CreditTransaction struct {
	ID           uuid.UUID `json:"id"`
	ProfileID    uuid.UUID `json:"profile_id"`
	Amount       int       `json:"amount"`
	ActionType   string    `json:"action_type"`
	BalanceAfter int       `json:"balance_after"`
	CreatedAt    time.Time `json:"created_at"`
}
