package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Squirrel-Richard/myanus-platform/internal/database"
	"github.com/Squirrel-Richard/myanus-platform/internal/models"
)

const inviteColumns = `code, created_by, max_uses, current_uses, is_valid, used_by, used_at, created_at`

type InviteRepo struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

func NewInviteRepo(pool *pgxpool.Pool, timeout time.Duration) *InviteRepo {
	return &InviteRepo{pool: pool, timeout: timeout}
}

// Begin starts the transaction that wraps a redemption.
func (r *InviteRepo) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

func (r *InviteRepo) Create(ctx context.Context, inv *models.Invite) error {
	ctx, cancel := database.WithStoreTimeout(ctx, r.timeout)
	defer cancel()
	err := r.pool.QueryRow(ctx, `
		INSERT INTO invites (code, created_by, max_uses)
		VALUES ($1, $2, $3)
		RETURNING current_uses, is_valid, created_at
	`, inv.Code, inv.CreatedBy, inv.MaxUses).Scan(&inv.CurrentUses, &inv.IsValid, &inv.CreatedAt)
	return mapErr(err)
}

// ConsumeTx atomically takes one use of the invite: the counter is only
// incremented while current_uses < max_uses, and is_valid is recomputed in
// the same statement. Returns ErrNotFound when the code does not exist or is
// exhausted.
func (r *InviteRepo) ConsumeTx(ctx context.Context, tx pgx.Tx, code string) (*models.Invite, error) {
	return scanInvite(tx.QueryRow(ctx, `
		UPDATE invites
		SET current_uses = current_uses + 1,
		    is_valid = current_uses + 1 < max_uses,
		    used_at = now()
		WHERE code = $1 AND is_valid AND current_uses < max_uses
		RETURNING `+inviteColumns, code))
}

// MarkUsedByTx records the profile that redeemed the invite last.
func (r *InviteRepo) MarkUsedByTx(ctx context.Context, tx pgx.Tx, code string, profileID uuid.UUID) error {
	_, err := tx.Exec(ctx, `UPDATE invites SET used_by = $2 WHERE code = $1`, code, profileID)
	return err
}

// ListByCreator returns the invites a profile created, newest first.
func (r *InviteRepo) ListByCreator(ctx context.Context, profileID uuid.UUID) ([]*models.Invite, error) {
	return database.Retry(ctx, r.timeout, func(ctx context.Context) ([]*models.Invite, error) {
		rows, err := r.pool.Query(ctx, `
			SELECT `+inviteColumns+`
			FROM invites WHERE created_by = $1 ORDER BY created_at DESC
		`, profileID)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		list := []*models.Invite{}
		for rows.Next() {
			inv, err := scanInvite(rows)
			if err != nil {
				return nil, err
			}
			list = append(list, inv)
		}
		return list, rows.Err()
	})
}

func scanInvite(row pgx.Row) (*models.Invite, error) {
	var inv models.Invite
	err := row.Scan(&inv.Code, &inv.CreatedBy, &inv.MaxUses, &inv.CurrentUses, &inv.IsValid, &inv.UsedBy, &inv.UsedAt, &inv.CreatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &inv, nil
}
