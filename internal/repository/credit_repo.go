package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Squirrel-Richard/myanus-platform/internal/database"
	"github.com/Squirrel-Richard/myanus-platform/internal/models"
)

// CreditRepo talks to the deduct_credits / refund_credits procedures and the
// credit_transactions table they write.
type CreditRepo struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

func NewCreditRepo(pool *pgxpool.Pool, timeout time.Duration) *CreditRepo {
	return &CreditRepo{pool: pool, timeout: timeout}
}

// Deduct calls deduct_credits, which decrements the balance only while
// credits >= amount. Returns false when the balance was insufficient.
func (r *CreditRepo) Deduct(ctx context.Context, profileID uuid.UUID, amount int, actionType string) (bool, error) {
	return database.RetryWrite(ctx, r.timeout, func(ctx context.Context) (bool, error) {
		var ok bool
		err := r.pool.QueryRow(ctx, `SELECT public.deduct_credits($1, $2, $3)`, profileID, amount, actionType).Scan(&ok)
		return ok, err
	})
}

// Refund calls refund_credits, returning amount to the balance.
func (r *CreditRepo) Refund(ctx context.Context, profileID uuid.UUID, amount int, actionType string) (bool, error) {
	return database.RetryWrite(ctx, r.timeout, func(ctx context.Context) (bool, error) {
		var ok bool
		err := r.pool.QueryRow(ctx, `SELECT public.refund_credits($1, $2, $3)`, profileID, amount, actionType).Scan(&ok)
		return ok, err
	})
}

func (r *CreditRepo) ListByProfileID(ctx context.Context, profileID uuid.UUID) ([]*models.CreditTransaction, error) {
	return database.Retry(ctx, r.timeout, func(ctx context.Context) ([]*models.CreditTransaction, error) {
		rows, err := r.pool.Query(ctx, `
			SELECT id, profile_id, amount, action_type, balance_after, created_at
			FROM credit_transactions WHERE profile_id = $1 ORDER BY created_at DESC
		`, profileID)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		list := []*models.CreditTransaction{}
		for rows.Next() {
			var c models.CreditTransaction
			if err := rows.Scan(&c.ID, &c.ProfileID, &c.Amount, &c.ActionType, &c.BalanceAfter, &c.CreatedAt); err != nil {
				return nil, err
			}
			list = append(list, &c)
		}
		return list, rows.Err()
	})
}
