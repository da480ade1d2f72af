// Package jobs queues sandbox runs and tracks their outcome.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/Squirrel-Richard/myanus-platform/internal/database"
	"github.com/Squirrel-Richard/myanus-platform/internal/execution"
	"github.com/Squirrel-Richard/myanus-platform/internal/metrics"
	"github.com/Squirrel-Richard/myanus-platform/internal/models"
	"github.com/Squirrel-Richard/myanus-platform/internal/repository"
	"github.com/Squirrel-Richard/myanus-platform/internal/sandbox"
)

// MaxCodeBytes caps a single submission.
const MaxCodeBytes = 64 << 10

var (
	ErrRunNotFound = errors.New("sandbox run not found")
	ErrCodeTooLong = errors.New("code exceeds 64KiB")
)

// RunStore persists sandbox runs.
type RunStore interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	CreateTx(ctx context.Context, tx pgx.Tx, run *models.SandboxRun) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.SandboxRun, error)
	MarkRunning(ctx context.Context, id uuid.UUID) error
	MarkFinished(ctx context.Context, id uuid.UUID, status, output string, errMsg *string, files []string) error
}

type Service interface {
	// Available reports whether a sandbox is configured.
	Available() bool
	CreateRun(ctx context.Context, profileID uuid.UUID, code string) (*models.SandboxRun, error)
	GetRun(ctx context.Context, profileID, runID uuid.UUID) (*models.SandboxRun, error)
}

// InsertSandboxRunTxFunc enqueues a SandboxRun job within the given transaction. Provided by main using river.Client.InsertTx.
type InsertSandboxRunTxFunc func(ctx context.Context, tx pgx.Tx, args execution.SandboxRunArgs) error

type service struct {
	repo      RunStore
	insertRun InsertSandboxRunTxFunc
	available bool
	timeout   time.Duration
	metrics   *metrics.Recorder
}

// NewService creates the sandbox run service. insertRun is typically a closure over river.Client.InsertTx.
// timeout bounds the create transaction.
// Returns *service so it can be used as execution.RunService for the River worker.
func NewService(repo RunStore, insertRun InsertSandboxRunTxFunc, available bool, timeout time.Duration, rec *metrics.Recorder) *service {
	return &service{repo: repo, insertRun: insertRun, available: available, timeout: timeout, metrics: rec}
}

var (
	_ Service              = (*service)(nil)
	_ execution.RunService = (*service)(nil)
)

func (s *service) Available() bool { return s.available }

// CreateRun stores a queued run and enqueues its job in one transaction, so a
// run row never exists without a job to execute it.
func (s *service) CreateRun(ctx context.Context, profileID uuid.UUID, code string) (*models.SandboxRun, error) {
	if !s.available {
		return nil, sandbox.ErrUnavailable
	}
	if strings.TrimSpace(code) == "" {
		return nil, sandbox.ErrEmptyCode
	}
	if len(code) > MaxCodeBytes {
		return nil, ErrCodeTooLong
	}

	ctx, cancel := database.WithStoreTimeout(ctx, s.timeout)
	defer cancel()

	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin run tx: %w", err)
	}
	defer tx.Rollback(ctx)

	run := &models.SandboxRun{
		ProfileID: profileID,
		Code:      code,
		Status:    models.RunStatusQueued,
		Files:     []string{},
	}
	if err := s.repo.CreateTx(ctx, tx, run); err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}
	if err := s.insertRun(ctx, tx, execution.SandboxRunArgs{RunID: run.ID, Code: code}); err != nil {
		return nil, fmt.Errorf("enqueue run: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit run: %w", err)
	}
	return run, nil
}

// GetRun returns a run owned by profileID. Runs of other profiles are reported as not found.
func (s *service) GetRun(ctx context.Context, profileID, runID uuid.UUID) (*models.SandboxRun, error) {
	run, err := s.repo.GetByID(ctx, runID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrRunNotFound
		}
		return nil, err
	}
	if run.ProfileID != profileID {
		return nil, ErrRunNotFound
	}
	return run, nil
}

// MarkRunStarted implements execution.RunService.
func (s *service) MarkRunStarted(ctx context.Context, runID uuid.UUID) error {
	return s.repo.MarkRunning(ctx, runID)
}

// MarkRunFinished implements execution.RunService. A program that raised is recorded as failed.
func (s *service) MarkRunFinished(ctx context.Context, runID uuid.UUID, res *sandbox.Result) error {
	status := models.RunStatusSucceeded
	if !res.Success {
		status = models.RunStatusFailed
	}
	if err := s.repo.MarkFinished(ctx, runID, status, res.Output, res.Error, res.Files); err != nil {
		return err
	}
	s.metrics.SandboxRun(status)
	return nil
}

// MarkRunFailed implements execution.RunService.
func (s *service) MarkRunFailed(ctx context.Context, runID uuid.UUID, reason string) error {
	if err := s.repo.MarkFinished(ctx, runID, models.RunStatusFailed, "", &reason, nil); err != nil {
		return err
	}
	s.metrics.SandboxRun(models.RunStatusFailed)
	return nil
}
