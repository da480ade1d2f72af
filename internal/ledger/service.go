// Package ledger implements the credit ledger. Deductions are a single
// conditional decrement evaluated by the store, so the balance can never go
// negative regardless of how many requests race for the same profile.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/Squirrel-Richard/myanus-platform/internal/models"
)

var (
	// ErrInvalidAmount is returned for non-positive deduction or refund amounts.
	ErrInvalidAmount = errors.New("amount must be > 0")
	// ErrCreditsDisabled is returned by balance reads when no store is configured.
	ErrCreditsDisabled = errors.New("credits disabled")
)

// CreditStore is backed by the deduct_credits / refund_credits procedures.
type CreditStore interface {
	Deduct(ctx context.Context, profileID uuid.UUID, amount int, actionType string) (bool, error)
	Refund(ctx context.Context, profileID uuid.UUID, amount int, actionType string) (bool, error)
	ListByProfileID(ctx context.Context, profileID uuid.UUID) ([]*models.CreditTransaction, error)
}

// BalanceReader reads the authoritative balance of a profile.
type BalanceReader interface {
	Credits(ctx context.Context, profileID uuid.UUID) (int, error)
}

type Service interface {
	// Enabled reports whether credits are enforced.
	Enabled() bool
	// Deduct takes amount from the balance. It returns false when the balance
	// is insufficient and leaves it untouched.
	Deduct(ctx context.Context, profileID uuid.UUID, amount int, actionType string) (bool, error)
	// Refund returns amount to the balance.
	Refund(ctx context.Context, profileID uuid.UUID, amount int, actionType string) error
	Balance(ctx context.Context, profileID uuid.UUID) (int, error)
	History(ctx context.Context, profileID uuid.UUID) ([]*models.CreditTransaction, error)
}

type service struct {
	credits  CreditStore
	balances BalanceReader
}

// NewService returns a ledger that enforces credits against the store.
func NewService(credits CreditStore, balances BalanceReader) Service {
	return &service{credits: credits, balances: balances}
}

var _ Service = (*service)(nil)

func (s *service) Enabled() bool { return true }

func (s *service) Deduct(ctx context.Context, profileID uuid.UUID, amount int, actionType string) (bool, error) {
	if amount <= 0 {
		return false, ErrInvalidAmount
	}
	ok, err := s.credits.Deduct(ctx, profileID, amount, actionType)
	if err != nil {
		return false, fmt.Errorf("deduct credits: %w", err)
	}
	return ok, nil
}

func (s *service) Refund(ctx context.Context, profileID uuid.UUID, amount int, actionType string) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	ok, err := s.credits.Refund(ctx, profileID, amount, actionType)
	if err != nil {
		return fmt.Errorf("refund credits: %w", err)
	}
	if !ok {
		return fmt.Errorf("refund credits: profile %s not found", profileID)
	}
	return nil
}

func (s *service) Balance(ctx context.Context, profileID uuid.UUID) (int, error) {
	return s.balances.Credits(ctx, profileID)
}

func (s *service) History(ctx context.Context, profileID uuid.UUID) ([]*models.CreditTransaction, error) {
	return s.credits.ListByProfileID(ctx, profileID)
}
