// Package execution holds the river workers that run queued sandbox jobs.
package execution

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/riverqueue/river"

	"github.com/Squirrel-Richard/myanus-platform/internal/sandbox"
)

type SandboxRunArgs struct {
	RunID uuid.UUID `json:"run_id"`
	Code  string    `json:"code"`
}

func (SandboxRunArgs) Kind() string { return "sandbox_run" }

// InsertOpts disables river's own retries; a failed execution is recorded
// on the run and reported to the user.
func (SandboxRunArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{MaxAttempts: 1}
}

// Executor runs code remotely.
type Executor interface {
	Execute(ctx context.Context, code string) (*sandbox.Result, error)
}

// RunService records run progress. Implemented by jobs.
type RunService interface {
	MarkRunStarted(ctx context.Context, runID uuid.UUID) error
	MarkRunFinished(ctx context.Context, runID uuid.UUID, res *sandbox.Result) error
	MarkRunFailed(ctx context.Context, runID uuid.UUID, reason string) error
}

type SandboxRunWorker struct {
	river.WorkerDefaults[SandboxRunArgs]
	runs     RunService
	executor Executor
}

func NewSandboxRunWorker(runs RunService, executor Executor) *SandboxRunWorker {
	return &SandboxRunWorker{runs: runs, executor: executor}
}

func (w *SandboxRunWorker) Work(ctx context.Context, job *river.Job[SandboxRunArgs]) error {
	args := job.Args

	// The job is attempted once, so every path must leave the run terminal.
	if err := w.runs.MarkRunStarted(ctx, args.RunID); err != nil {
		return w.failRun(ctx, args.RunID, "could not start run: "+err.Error())
	}

	res, err := w.executor.Execute(ctx, args.Code)
	if err != nil {
		return w.failRun(ctx, args.RunID, err.Error())
	}
	if err := w.runs.MarkRunFinished(ctx, args.RunID, res); err != nil {
		return w.failRun(ctx, args.RunID, "could not record result: "+err.Error())
	}
	return nil
}

func (w *SandboxRunWorker) failRun(ctx context.Context, runID uuid.UUID, reason string) error {
	if markErr := w.runs.MarkRunFailed(ctx, runID, reason); markErr != nil {
		return fmt.Errorf("sandbox failed (%s) AND failed to mark run as failed: %w", reason, markErr)
	}
	return nil
}
