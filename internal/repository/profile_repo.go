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

const profileColumns = `id, email, full_name, credits, COALESCE(invite_code_used, ''), created_at`

type ProfileRepo struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

func NewProfileRepo(pool *pgxpool.Pool, timeout time.Duration) *ProfileRepo {
	return &ProfileRepo{pool: pool, timeout: timeout}
}

// CreateTx inserts a profile inside the given transaction and fills ID and CreatedAt.
func (r *ProfileRepo) CreateTx(ctx context.Context, tx pgx.Tx, p *models.Profile) error {
	err := tx.QueryRow(ctx, `
		INSERT INTO profiles (email, full_name, credits, invite_code_used)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`, p.Email, p.FullName, p.Credits, p.InviteCodeUsed).Scan(&p.ID, &p.CreatedAt)
	return mapErr(err)
}

func (r *ProfileRepo) GetByEmail(ctx context.Context, email string) (*models.Profile, error) {
	return database.Retry(ctx, r.timeout, func(ctx context.Context) (*models.Profile, error) {
		return scanProfile(r.pool.QueryRow(ctx, `SELECT `+profileColumns+` FROM profiles WHERE email = $1`, email))
	})
}

func (r *ProfileRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Profile, error) {
	return database.Retry(ctx, r.timeout, func(ctx context.Context) (*models.Profile, error) {
		return scanProfile(r.pool.QueryRow(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = $1`, id))
	})
}

// Credits returns the current balance of the profile.
func (r *ProfileRepo) Credits(ctx context.Context, id uuid.UUID) (int, error) {
	return database.Retry(ctx, r.timeout, func(ctx context.Context) (int, error) {
		var credits int
		err := r.pool.QueryRow(ctx, `SELECT credits FROM profiles WHERE id = $1`, id).Scan(&credits)
		return credits, mapErr(err)
	})
}

func scanProfile(row pgx.Row) (*models.Profile, error) {
	var p models.Profile
	if err := row.Scan(&p.ID, &p.Email, &p.FullName, &p.Credits, &p.InviteCodeUsed, &p.CreatedAt); err != nil {
		return nil, mapErr(err)
	}
	return &p, nil
}
