package ledger

import (
	"context"

	"github.com/google/uuid"

	"github.com/Squirrel-Richard/myanus-platform/internal/models"
)

type disabled struct{}

// NewDisabled returns the ledger used when no store is configured: every
// deduction succeeds and usage is unrestricted.
func NewDisabled() Service { return disabled{} }

var _ Service = disabled{}

func (disabled) Enabled() bool { return false }

func (disabled) Deduct(_ context.Context, _ uuid.UUID, amount int, _ string) (bool, error) {
	if amount <= 0 {
		return false, ErrInvalidAmount
	}
	return true, nil
}

func (disabled) Refund(context.Context, uuid.UUID, int, string) error { return nil }

func (disabled) Balance(context.Context, uuid.UUID) (int, error) { return 0, ErrCreditsDisabled }

func (disabled) History(context.Context, uuid.UUID) ([]*models.CreditTransaction, error) {
	return []*models.CreditTransaction{}, nil
}
