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

type SandboxRunRepo struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

func NewSandboxRunRepo(pool *pgxpool.Pool, timeout time.Duration) *SandboxRunRepo {
	return &SandboxRunRepo{pool: pool, timeout: timeout}
}

func (r *SandboxRunRepo) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

// CreateTx inserts a queued run inside the given transaction.
func (r *SandboxRunRepo) CreateTx(ctx context.Context, tx pgx.Tx, run *models.SandboxRun) error {
	return tx.QueryRow(ctx, `
		INSERT INTO sandbox_runs (profile_id, code, status)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`, run.ProfileID, run.Code, run.Status).Scan(&run.ID, &run.CreatedAt)
}

func (r *SandboxRunRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.SandboxRun, error) {
	return database.Retry(ctx, r.timeout, func(ctx context.Context) (*models.SandboxRun, error) {
		var run models.SandboxRun
		err := r.pool.QueryRow(ctx, `
			SELECT id, profile_id, code, status, output, error, files, created_at, completed_at
			FROM sandbox_runs WHERE id = $1
		`, id).Scan(&run.ID, &run.ProfileID, &run.Code, &run.Status, &run.Output, &run.Error, &run.Files, &run.CreatedAt, &run.CompletedAt)
		if err != nil {
			return nil, mapErr(err)
		}
		return &run, nil
	})
}

func (r *SandboxRunRepo) MarkRunning(ctx context.Context, id uuid.UUID) error {
	ctx, cancel := database.WithStoreTimeout(ctx, r.timeout)
	defer cancel()
	_, err := r.pool.Exec(ctx, `UPDATE sandbox_runs SET status = 'running' WHERE id = $1`, id)
	return err
}

// MarkFinished records the terminal state of a run.
func (r *SandboxRunRepo) MarkFinished(ctx context.Context, id uuid.UUID, status, output string, errMsg *string, files []string) error {
	if files == nil {
		files = []string{}
	}
	ctx, cancel := database.WithStoreTimeout(ctx, r.timeout)
	defer cancel()
	_, err := r.pool.Exec(ctx, `
		UPDATE sandbox_runs
		SET status = $2, output = $3, error = $4, files = $5, completed_at = now()
		WHERE id = $1
	`, id, status, output, errMsg, files)
	return err
}
