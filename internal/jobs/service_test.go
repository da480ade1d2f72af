package jobs

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Squirrel-Richard/myanus-platform/internal/execution"
	"github.com/Squirrel-Richard/myanus-platform/internal/middleware"
	"github.com/Squirrel-Richard/myanus-platform/internal/models"
	"github.com/Squirrel-Richard/myanus-platform/internal/repository"
	"github.com/Squirrel-Richard/myanus-platform/internal/sandbox"
)

// ---------------------------------------------------------------------------
// Mocks
// ---------------------------------------------------------------------------

// --- stagedTx applies staged writes on Commit only. ---

type stagedTx struct {
	pgx.Tx
	onCommit []func()
}

func (t *stagedTx) Commit(context.Context) error {
	for _, f := range t.onCommit {
		f()
	}
	t.onCommit = nil
	return nil
}
func (t *stagedTx) Rollback(context.Context) error { t.onCommit = nil; return nil }
func (t *stagedTx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), nil
}

type memRuns struct {
	mu   sync.Mutex
	runs map[uuid.UUID]*models.SandboxRun
}

func newMemRuns() *memRuns { return &memRuns{runs: map[uuid.UUID]*models.SandboxRun{}} }

func (m *memRuns) Begin(context.Context) (pgx.Tx, error) { return &stagedTx{}, nil }

func (m *memRuns) CreateTx(_ context.Context, tx pgx.Tx, run *models.SandboxRun) error {
	run.ID = uuid.New()
	run.CreatedAt = time.Now()
	stx := tx.(*stagedTx)
	stx.onCommit = append(stx.onCommit, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		cp := *run
		m.runs[run.ID] = &cp
	})
	return nil
}

func (m *memRuns) GetByID(_ context.Context, id uuid.UUID) (*models.SandboxRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memRuns) MarkRunning(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[id].Status = models.RunStatusRunning
	return nil
}

func (m *memRuns) MarkFinished(_ context.Context, id uuid.UUID, status, output string, errMsg *string, files []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.runs[id]
	r.Status, r.Output, r.Error, r.Files = status, output, errMsg, files
	now := time.Now()
	r.CompletedAt = &now
	return nil
}

type queue struct {
	enqueued []execution.SandboxRunArgs
	err      error
}

func (q *queue) insert(_ context.Context, _ pgx.Tx, args execution.SandboxRunArgs) error {
	if q.err != nil {
		return q.err
	}
	q.enqueued = append(q.enqueued, args)
	return nil
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestCreateRun_QueuesInSameTx(t *testing.T) {
	repo := newMemRuns()
	q := &queue{}
	svc := NewService(repo, q.insert, true, 0, nil)
	owner := uuid.New()

	run, err := svc.CreateRun(context.Background(), owner, "print('hi')")
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	if run.Status != models.RunStatusQueued {
		t.Errorf("status: got %s", run.Status)
	}
	if len(q.enqueued) != 1 || q.enqueued[0].RunID != run.ID || q.enqueued[0].Code != "print('hi')" {
		t.Errorf("enqueued: %+v", q.enqueued)
	}
	if _, err := svc.GetRun(context.Background(), owner, run.ID); err != nil {
		t.Errorf("committed run should be readable: %v", err)
	}
}

func TestCreateRun_EnqueueFailureRollsBack(t *testing.T) {
	repo := newMemRuns()
	svc := NewService(repo, (&queue{err: errors.New("river down")}).insert, true, 0, nil)

	if _, err := svc.CreateRun(context.Background(), uuid.New(), "x = 1"); err == nil {
		t.Fatal("expected error")
	}
	if len(repo.runs) != 0 {
		t.Errorf("run row must not survive a failed enqueue, got %d", len(repo.runs))
	}
}

func TestCreateRun_BoundedByStoreTimeout(t *testing.T) {
	repo := newMemRuns()
	stalled := func(ctx context.Context, _ pgx.Tx, _ execution.SandboxRunArgs) error {
		<-ctx.Done()
		return ctx.Err()
	}
	svc := NewService(repo, stalled, true, 50*time.Millisecond, nil)

	done := make(chan error, 1)
	go func() {
		_, err := svc.CreateRun(context.Background(), uuid.New(), "x = 1")
		done <- err
	}()

	select {
	case err := <-done:
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("expected deadline exceeded, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("CreateRun did not return after the store timeout elapsed")
	}
	if len(repo.runs) != 0 {
		t.Errorf("run row must not survive a timed out create, got %d", len(repo.runs))
	}
}

func TestCreateRun_Validation(t *testing.T) {
	q := &queue{}
	cases := []struct {
		name      string
		available bool
		code      string
		want      error
	}{
		{"sandbox unavailable", false, "x = 1", sandbox.ErrUnavailable},
		{"empty code", true, "   ", sandbox.ErrEmptyCode},
		{"too long", true, strings.Repeat("x", MaxCodeBytes+1), ErrCodeTooLong},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := NewService(newMemRuns(), q.insert, tc.available, 0, nil)
			if _, err := svc.CreateRun(context.Background(), uuid.New(), tc.code); !errors.Is(err, tc.want) {
				t.Errorf("expected %v, got %v", tc.want, err)
			}
		})
	}
	if len(q.enqueued) != 0 {
		t.Error("invalid runs must not be enqueued")
	}
}

func TestGetRun_OtherProfileIsNotFound(t *testing.T) {
	svc := NewService(newMemRuns(), (&queue{}).insert, true, 0, nil)
	run, err := svc.CreateRun(context.Background(), uuid.New(), "x = 1")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.GetRun(context.Background(), uuid.New(), run.ID); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("expected ErrRunNotFound, got %v", err)
	}
	if _, err := svc.GetRun(context.Background(), uuid.New(), uuid.New()); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("expected ErrRunNotFound for missing run, got %v", err)
	}
}

func TestWorkerLifecycle(t *testing.T) {
	repo := newMemRuns()
	svc := NewService(repo, (&queue{}).insert, true, 0, nil)
	owner := uuid.New()

	ok, _ := svc.CreateRun(context.Background(), owner, "print(1)")
	raised, _ := svc.CreateRun(context.Background(), owner, "1/0")
	broken, _ := svc.CreateRun(context.Background(), owner, "x")

	ctx := context.Background()
	_ = svc.MarkRunStarted(ctx, ok.ID)
	if err := svc.MarkRunFinished(ctx, ok.ID, &sandbox.Result{Success: true, Output: "1\n"}); err != nil {
		t.Fatal(err)
	}
	msg := "ZeroDivisionError"
	if err := svc.MarkRunFinished(ctx, raised.ID, &sandbox.Result{Success: false, Error: &msg}); err != nil {
		t.Fatal(err)
	}
	if err := svc.MarkRunFailed(ctx, broken.ID, "connection refused"); err != nil {
		t.Fatal(err)
	}

	want := map[uuid.UUID]string{
		ok.ID:     models.RunStatusSucceeded,
		raised.ID: models.RunStatusFailed,
		broken.ID: models.RunStatusFailed,
	}
	for id, status := range want {
		got, err := svc.GetRun(ctx, owner, id)
		if err != nil {
			t.Fatal(err)
		}
		if got.Status != status || got.CompletedAt == nil {
			t.Errorf("run %s: got status %s completed %v, want %s", id, got.Status, got.CompletedAt, status)
		}
	}
}

func TestHandler_CreateAndGetRun(t *testing.T) {
	svc := NewService(newMemRuns(), (&queue{}).insert, true, 0, nil)
	h := NewHandler(svc, nil)
	p := &models.Profile{ID: uuid.New()}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sandbox/runs", strings.NewReader(`{"code":"print(1)"}`))
	req = req.WithContext(middleware.WithProfile(req.Context(), p))
	rec := httptest.NewRecorder()
	h.CreateRun(rec, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}

	var runID uuid.UUID
	for id := range svc.repo.(*memRuns).runs {
		runID = id
	}
	req = httptest.NewRequest(http.MethodGet, "/api/v1/sandbox/runs/"+runID.String(), nil)
	req.SetPathValue("id", runID.String())
	req = req.WithContext(middleware.WithProfile(req.Context(), p))
	rec = httptest.NewRecorder()
	h.GetRun(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestHandler_Errors(t *testing.T) {
	p := &models.Profile{ID: uuid.New()}
	cases := []struct {
		name      string
		available bool
		body      string
		want      int
	}{
		{"unavailable", false, `{"code":"print(1)"}`, http.StatusServiceUnavailable},
		{"empty code", true, `{"code":""}`, http.StatusBadRequest},
		{"invalid json", true, `nope`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewHandler(NewService(newMemRuns(), (&queue{}).insert, tc.available, 0, nil), nil)
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tc.body))
			req = req.WithContext(middleware.WithProfile(req.Context(), p))
			rec := httptest.NewRecorder()
			h.CreateRun(rec, req)
			if rec.Code != tc.want {
				t.Errorf("expected %d, got %d", tc.want, rec.Code)
			}
		})
	}

	h := NewHandler(NewService(newMemRuns(), (&queue{}).insert, true, 0, nil), nil)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.SetPathValue("id", "not-a-uuid")
	req = req.WithContext(middleware.WithProfile(req.Context(), p))
	rec := httptest.NewRecorder()
	h.GetRun(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad id: expected 400, got %d", rec.Code)
	}
}
