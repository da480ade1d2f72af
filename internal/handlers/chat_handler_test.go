package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/Squirrel-Richard/myanus-platform/internal/chat"
	"github.com/Squirrel-Richard/myanus-platform/internal/ledger"
	"github.com/Squirrel-Richard/myanus-platform/internal/llm"
	"github.com/Squirrel-Richard/myanus-platform/internal/middleware"
	"github.com/Squirrel-Richard/myanus-platform/internal/models"
)

// ---------------------------------------------------------------------------
// Mocks
// ---------------------------------------------------------------------------

// --- credit store mock: conditional decrement like deduct_credits ---

type mockCredits struct {
	mu       sync.Mutex
	balances map[uuid.UUID]int
}

func (m *mockCredits) Deduct(_ context.Context, id uuid.UUID, amount int, _ string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.balances[id] < amount {
		return false, nil
	}
	m.balances[id] -= amount
	return true, nil
}

func (m *mockCredits) Refund(_ context.Context, id uuid.UUID, amount int, _ string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[id] += amount
	return true, nil
}

func (m *mockCredits) ListByProfileID(context.Context, uuid.UUID) ([]*models.CreditTransaction, error) {
	return nil, nil
}

func (m *mockCredits) Credits(_ context.Context, id uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[id], nil
}

// --- model mock ---

type echoModel struct {
	err   error
	calls int
}

func (e *echoModel) Complete(_ context.Context, _ string, turns []models.Turn) (string, error) {
	e.calls++
	if e.err != nil {
		return "", e.err
	}
	return "echo: " + turns[len(turns)-1].Content, nil
}

func newChatHandler(model chat.Model, credits *mockCredits) *ChatHandler {
	return &ChatHandler{
		Chat:   chat.NewService(chat.NewStore(""), ledger.NewService(credits, credits), model, nil, nil),
		Logger: slog.Default(),
	}
}

func authed(req *http.Request, p *models.Profile, thread string) *http.Request {
	req.SetPathValue("thread", thread)
	return req.WithContext(middleware.WithProfile(req.Context(), p))
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestSubmitMessage_Success(t *testing.T) {
	p := &models.Profile{ID: uuid.New(), Credits: 2}
	credits := &mockCredits{balances: map[uuid.UUID]int{p.ID: 2}}
	h := newChatHandler(&echoModel{}, credits)

	req := authed(httptest.NewRequest(http.MethodPost, "/api/v1/chat/threads/t1/messages", strings.NewReader(`{"prompt":"hi"}`)), p, "t1")
	rec := httptest.NewRecorder()
	h.SubmitMessage(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var reply chat.Reply
	if err := json.NewDecoder(rec.Body).Decode(&reply); err != nil {
		t.Fatal(err)
	}
	if reply.Content != "echo: hi" || reply.Credits == nil || *reply.Credits != 1 || reply.Turns != 2 {
		t.Errorf("unexpected reply %+v", reply)
	}

	// thread history reflects the turn
	rec = httptest.NewRecorder()
	h.GetThread(rec, authed(httptest.NewRequest(http.MethodGet, "/api/v1/chat/threads/t1", nil), p, "t1"))
	var thread threadResponse
	if err := json.NewDecoder(rec.Body).Decode(&thread); err != nil {
		t.Fatal(err)
	}
	if len(thread.Turns) != 2 || thread.Model != chat.DefaultModel {
		t.Errorf("unexpected thread %+v", thread)
	}
}

func TestSubmitMessage_Errors(t *testing.T) {
	cases := []struct {
		name    string
		model   chat.Model
		credits int
		body    string
		want    int
	}{
		{"invalid json", &echoModel{}, 5, `{`, http.StatusBadRequest},
		{"empty prompt", &echoModel{}, 5, `{"prompt":"  "}`, http.StatusBadRequest},
		{"no credits", &echoModel{}, 0, `{"prompt":"hi"}`, http.StatusPaymentRequired},
		{"model down", &echoModel{err: errors.New("503 from provider")}, 5, `{"prompt":"hi"}`, http.StatusBadGateway},
		{"model not configured", llm.New(llm.Config{}), 5, `{"prompt":"hi"}`, http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := &models.Profile{ID: uuid.New(), Credits: tc.credits}
			credits := &mockCredits{balances: map[uuid.UUID]int{p.ID: tc.credits}}
			h := newChatHandler(tc.model, credits)

			req := authed(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tc.body)), p, "")
			rec := httptest.NewRecorder()
			h.SubmitMessage(rec, req)

			if rec.Code != tc.want {
				t.Errorf("expected %d, got %d: %s", tc.want, rec.Code, rec.Body.String())
			}
			if credits.balances[p.ID] != tc.credits {
				t.Errorf("failed turn changed the balance: %d -> %d", tc.credits, credits.balances[p.ID])
			}
		})
	}
}

func TestSubmitMessage_Unauthorized(t *testing.T) {
	h := newChatHandler(&echoModel{}, &mockCredits{balances: map[uuid.UUID]int{}})
	rec := httptest.NewRecorder()
	h.SubmitMessage(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"prompt":"hi"}`)))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestSetModelAndClear(t *testing.T) {
	p := &models.Profile{ID: uuid.New(), Credits: 5}
	credits := &mockCredits{balances: map[uuid.UUID]int{p.ID: 5}}
	h := newChatHandler(&echoModel{}, credits)

	rec := httptest.NewRecorder()
	h.SetModel(rec, authed(httptest.NewRequest(http.MethodPut, "/", strings.NewReader(`{"model":"davinci"}`)), p, "t"))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown model: expected 400, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.SetModel(rec, authed(httptest.NewRequest(http.MethodPut, "/", strings.NewReader(`{"model":"gpt-4-turbo"}`)), p, "t"))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := h.Chat.Model(p.ID, "t"); got != "gpt-4-turbo" {
		t.Errorf("model: got %q", got)
	}

	rec = httptest.NewRecorder()
	h.ClearThread(rec, authed(httptest.NewRequest(http.MethodDelete, "/", nil), p, "t"))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if got := h.Chat.Model(p.ID, "t"); got != chat.DefaultModel {
		t.Errorf("cleared thread should fall back to the default model, got %q", got)
	}
}

func TestListModels_ReportsConfiguredDefault(t *testing.T) {
	h := &ChatHandler{
		Chat:   chat.NewService(chat.NewStore("gpt-4-turbo"), ledger.NewDisabled(), &echoModel{}, nil, nil),
		Logger: slog.Default(),
	}
	rec := httptest.NewRecorder()
	h.ListModels(rec, httptest.NewRequest(http.MethodGet, "/api/v1/chat/models", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}
	var body struct {
		Default string   `json:"default"`
		Models  []string `json:"models"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Default != "gpt-4-turbo" {
		t.Errorf("default: got %q, want gpt-4-turbo", body.Default)
	}
	if len(body.Models) != len(chat.AllowedModels) {
		t.Errorf("models: got %v", body.Models)
	}
}

func TestSetModel_ThreadCap(t *testing.T) {
	p := &models.Profile{ID: uuid.New(), Credits: 2}
	h := newChatHandler(&echoModel{}, &mockCredits{balances: map[uuid.UUID]int{p.ID: 2}})

	var rec *httptest.ResponseRecorder
	for i := 0; i <= chat.MaxThreadsPerProfile; i++ {
		thread := fmt.Sprintf("t%d", i)
		req := authed(httptest.NewRequest(http.MethodPut, "/api/v1/chat/threads/"+thread+"/model", strings.NewReader(`{"model":"gpt-4o"}`)), p, thread)
		rec = httptest.NewRecorder()
		h.SetModel(rec, req)
	}
	if rec.Code != http.StatusConflict {
		t.Fatalf("thread past the cap: got %d %s", rec.Code, rec.Body.String())
	}
}
