package router

import (
	"context"
	"net/http"
	"time"

	"github.com/Squirrel-Richard/myanus-platform/internal/auth"
	"github.com/Squirrel-Richard/myanus-platform/internal/chat"
	"github.com/Squirrel-Richard/myanus-platform/internal/dashboard"
	"github.com/Squirrel-Richard/myanus-platform/internal/handlers"
	"github.com/Squirrel-Richard/myanus-platform/internal/jobs"
	"github.com/Squirrel-Richard/myanus-platform/internal/metrics"
	"github.com/Squirrel-Richard/myanus-platform/internal/middleware"
)

// Deps are the handlers and middleware collaborators the API is built from.
type Deps struct {
	Auth      *auth.Handler
	Chat      *handlers.ChatHandler
	Dashboard *dashboard.Handler
	Sandbox   *jobs.Handler

	Tokens   middleware.TokenValidator
	Profiles middleware.ProfileLookup
	Credits  middleware.CreditGate

	Limiter        middleware.RateLimiter
	ChatRateLimit  int
	ChatRateWindow time.Duration
	JoinRateLimit  int

	Metrics        *metrics.Recorder
	MetricsHandler http.Handler
	// Health reports store reachability; nil means no store is configured.
	Health func(ctx context.Context) error
}

// New returns an http.Handler that serves the API under /api/v1 plus
// /healthz and /metrics.
// Chat turn chain: TokenAuth -> RateLimit -> CreditCheck -> handler.
func New(d Deps) http.Handler {
	mux := http.NewServeMux()
	base := "/api/v1"

	authed := middleware.TokenAuth(d.Tokens, d.Profiles)
	handle := func(pattern string, h http.Handler) {
		mux.Handle(pattern, middleware.RequestMetrics(d.Metrics, pattern)(h))
	}
	protected := func(pattern string, h http.HandlerFunc) {
		handle(pattern, authed(h))
	}

	joinLimit := middleware.RateLimit(d.Limiter, "join", d.JoinRateLimit, time.Minute, d.Metrics)
	handle("POST "+base+"/auth/join", joinLimit(http.HandlerFunc(d.Auth.Join)))
	protected("POST "+base+"/auth/logout", d.Auth.Logout)

	protected("GET "+base+"/account/me", d.Dashboard.GetMe)
	protected("GET "+base+"/invites", d.Dashboard.ListInvites)
	protected("GET "+base+"/credit-ledger", d.Dashboard.ListCreditLedger)

	handle("GET "+base+"/chat/models", http.HandlerFunc(d.Chat.ListModels))
	protected("GET "+base+"/chat/threads", d.Chat.ListThreads)
	protected("GET "+base+"/chat/threads/{thread}", d.Chat.GetThread)
	protected("DELETE "+base+"/chat/threads/{thread}", d.Chat.ClearThread)
	protected("PUT "+base+"/chat/threads/{thread}/model", d.Chat.SetModel)

	chatLimit := middleware.RateLimit(d.Limiter, "chat", d.ChatRateLimit, d.ChatRateWindow, d.Metrics)
	creditCheck := middleware.CreditCheck(d.Credits, chat.TurnCost)
	handle("POST "+base+"/chat/threads/{thread}/messages",
		authed(chatLimit(creditCheck(http.HandlerFunc(d.Chat.SubmitMessage)))))

	protected("POST "+base+"/sandbox/runs", d.Sandbox.CreateRun)
	protected("GET "+base+"/sandbox/runs/{id}", d.Sandbox.GetRun)

	mux.HandleFunc("GET /healthz", healthz(d.Health))
	if d.MetricsHandler != nil {
		mux.Handle("GET /metrics", d.MetricsHandler)
	}
	return mux
}

func healthz(check func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if check == nil {
			w.Write([]byte(`{"status":"ok","store":"not configured"}`))
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := check(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"degraded","store":"unreachable"}`))
			return
		}
		w.Write([]byte(`{"status":"ok","store":"ok"}`))
	}
}
