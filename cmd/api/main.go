package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/rs/cors"
	"golang.org/x/sync/errgroup"

	"github.com/Squirrel-Richard/myanus-platform/internal/auth"
	"github.com/Squirrel-Richard/myanus-platform/internal/chat"
	"github.com/Squirrel-Richard/myanus-platform/internal/config"
	"github.com/Squirrel-Richard/myanus-platform/internal/dashboard"
	"github.com/Squirrel-Richard/myanus-platform/internal/database"
	"github.com/Squirrel-Richard/myanus-platform/internal/execution"
	"github.com/Squirrel-Richard/myanus-platform/internal/handlers"
	"github.com/Squirrel-Richard/myanus-platform/internal/invites"
	"github.com/Squirrel-Richard/myanus-platform/internal/jobs"
	"github.com/Squirrel-Richard/myanus-platform/internal/ledger"
	"github.com/Squirrel-Richard/myanus-platform/internal/llm"
	"github.com/Squirrel-Richard/myanus-platform/internal/logger"
	"github.com/Squirrel-Richard/myanus-platform/internal/metrics"
	"github.com/Squirrel-Richard/myanus-platform/internal/middleware"
	"github.com/Squirrel-Richard/myanus-platform/internal/models"
	"github.com/Squirrel-Richard/myanus-platform/internal/repository"
	"github.com/Squirrel-Richard/myanus-platform/internal/router"
	"github.com/Squirrel-Richard/myanus-platform/internal/sandbox"
)

func main() {
	if err := run(); err != nil {
		slog.Error("api exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	seedInvite := flag.String("seed-invite", "", "create a founder invite code and exit")
	seedUses := flag.Int("seed-uses", 1, "max uses of the invite created by -seed-invite")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logger.New("myanus-api", logger.ParseLevel(cfg.LogLevel))
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rec := metrics.New(prometheus.DefaultRegisterer)

	// Store-backed collaborators stay nil interfaces when no database is configured.
	var (
		pool         *pgxpool.Pool
		profileRead  middleware.ProfileLookup
		authProfiles auth.ProfileReader
		redeemer     auth.Redeemer
		runRepo      *repository.SandboxRunRepo
		health       func(context.Context) error
	)
	var inviteLister dashboard.InviteLister = noInvites{}
	ledgerSvc := ledger.NewDisabled()

	if cfg.StoreConfigured() {
		pool, err = database.Connect(ctx, cfg.DatabaseURL, cfg.StoreTimeout)
		if err != nil {
			return fmt.Errorf("connect store: %w", err)
		}
		defer pool.Close()
		log.Info("connected to postgres")

		if err := database.Migrate(ctx, pool, log); err != nil {
			return err
		}

		profileRepo := repository.NewProfileRepo(pool, cfg.StoreTimeout)
		inviteRepo := repository.NewInviteRepo(pool, cfg.StoreTimeout)
		creditRepo := repository.NewCreditRepo(pool, cfg.StoreTimeout)
		runRepo = repository.NewSandboxRunRepo(pool, cfg.StoreTimeout)

		invitesSvc := invites.NewService(inviteRepo, profileRepo, cfg.StoreTimeout)
		if *seedInvite != "" {
			inv, err := invitesSvc.Seed(ctx, *seedInvite, *seedUses)
			if err != nil {
				return fmt.Errorf("seed invite: %w", err)
			}
			log.Info("invite created", "code", inv.Code, "max_uses", inv.MaxUses)
			return nil
		}

		profileRead = profileRepo
		authProfiles = profileRepo
		redeemer = invitesSvc
		inviteLister = invitesSvc
		health = pool.Ping
		if cfg.CreditsEnforced() {
			ledgerSvc = ledger.NewService(creditRepo, profileRepo)
		} else {
			log.Warn("CREDITS_ENABLED=false: credits are not enforced")
		}
	} else {
		if *seedInvite != "" {
			return errors.New("seed invite: DATABASE_URL is not set")
		}
		log.Warn("DATABASE_URL not set: accounts disabled, credits unlimited")
	}

	// LLM
	model := llm.New(llm.Config{APIKey: cfg.OpenAIAPIKey, BaseURL: cfg.OpenAIBaseURL, Timeout: cfg.ModelTimeout})
	if !cfg.ModelConfigured() {
		log.Warn("OPENAI_API_KEY not set: chat turns will be refused")
	}
	defaultModel := cfg.DefaultModel
	if !slices.Contains(chat.AllowedModels, defaultModel) {
		log.Warn("unknown DEFAULT_MODEL, using fallback", "model", defaultModel, "fallback", chat.DefaultModel)
		defaultModel = chat.DefaultModel
	}
	chatSvc := chat.NewService(chat.NewStore(defaultModel), ledgerSvc, model, rec, log)

	// Sandbox runs: insert func is set after River client is created (breaks init cycle)
	sbx := sandbox.New(sandbox.Config{BaseURL: cfg.SandboxURL, APIKey: cfg.SandboxAPIKey, Timeout: cfg.SandboxTimeout})
	var insertMu sync.Mutex
	var insertFn jobs.InsertSandboxRunTxFunc
	insertSandboxRun := func(ctx context.Context, tx pgx.Tx, args execution.SandboxRunArgs) error {
		insertMu.Lock()
		fn := insertFn
		insertMu.Unlock()
		if fn == nil {
			return errors.New("river insert not wired")
		}
		return fn(ctx, tx, args)
	}

	var runStore jobs.RunStore
	if runRepo != nil {
		runStore = runRepo
	}
	sandboxAvailable := cfg.StoreConfigured() && cfg.SandboxConfigured()
	runsSvc := jobs.NewService(runStore, insertSandboxRun, sandboxAvailable, cfg.StoreTimeout, rec)

	var riverClient *river.Client[pgx.Tx]
	if sandboxAvailable {
		workers := river.NewWorkers()
		river.AddWorker(workers, execution.NewSandboxRunWorker(runsSvc, sbx))

		riverClient, err = river.NewClient(riverpgxv5.New(pool), &river.Config{
			Queues: map[string]river.QueueConfig{
				river.QueueDefault: {MaxWorkers: 10},
			},
			Workers: workers,
		})
		if err != nil {
			return fmt.Errorf("create river client: %w", err)
		}
		insertMu.Lock()
		insertFn = func(ctx context.Context, tx pgx.Tx, args execution.SandboxRunArgs) error {
			_, err := riverClient.InsertTx(ctx, tx, args, nil)
			return err
		}
		insertMu.Unlock()
	} else {
		log.Warn("code interpreter not available: sandbox runs disabled")
	}

	// Rate limiting: redis when configured, otherwise process-local.
	var limiter middleware.RateLimiter
	if cfg.RedisConfigured() {
		limiter, err = middleware.NewRedisRateLimiter(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, log)
		if err != nil {
			log.Warn("redis rate limiter unavailable, using memory limiter", "error", err)
		}
	}
	if limiter == nil {
		limiter = middleware.NewMemoryRateLimiter()
	}

	if !cfg.JWTSecretConfigured() {
		log.Warn("JWT_SECRET not set: session tokens are signed with the development secret and can be forged")
	}
	authSvc := auth.NewService(authProfiles, redeemer, cfg.JWTSecret)

	api := router.New(router.Deps{
		Auth:           auth.NewHandler(authSvc, chatSvc, rec, log),
		Chat:           &handlers.ChatHandler{Chat: chatSvc, Logger: log},
		Dashboard:      dashboard.NewHandler(ledgerSvc, inviteLister, log),
		Sandbox:        jobs.NewHandler(runsSvc, log),
		Tokens:         authSvc,
		Profiles:       profileRead,
		Credits:        ledgerSvc,
		Limiter:        limiter,
		ChatRateLimit:  cfg.ChatRateLimit,
		ChatRateWindow: cfg.ChatRateWindow,
		JoinRateLimit:  cfg.JoinRateLimit,
		Metrics:        rec,
		MetricsHandler: promhttp.Handler(),
		Health:         health,
	})

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		AllowCredentials: true,
	}).Handler(api)

	srv := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Port,
		Handler:           corsHandler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if riverClient != nil {
		if err := riverClient.Start(ctx); err != nil {
			return fmt.Errorf("start river: %w", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting HTTP server", "addr", srv.Addr,
			"credits_enabled", ledgerSvc.Enabled(),
			"model_configured", cfg.ModelConfigured(),
			"sandbox_available", sandboxAvailable)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		err := srv.Shutdown(shutdownCtx)
		if riverClient != nil {
			if rerr := riverClient.Stop(shutdownCtx); rerr != nil {
				log.Error("river stop", "error", rerr)
			}
		}
		limiter.Close()
		return err
	})
	return g.Wait()
}

type noInvites struct{}

func (noInvites) ListByCreator(context.Context, uuid.UUID) ([]*models.Invite, error) {
	return []*models.Invite{}, nil
}
