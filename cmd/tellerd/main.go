package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/hibiken/asynq"
	_ "github.com/lib/pq"

	"github.com/Proton-105/teller/internal/api"
	"github.com/Proton-105/teller/internal/database"
	apperrors "github.com/Proton-105/teller/internal/errors"
	"github.com/Proton-105/teller/internal/health"
	"github.com/Proton-105/teller/internal/i18n"
	"github.com/Proton-105/teller/internal/idempotency"
	"github.com/Proton-105/teller/internal/jobs"
	jobhandlers "github.com/Proton-105/teller/internal/jobs/handlers"
	"github.com/Proton-105/teller/internal/lifecycle"
	"github.com/Proton-105/teller/internal/middleware"
	"github.com/Proton-105/teller/internal/ratelimit"
	"github.com/Proton-105/teller/internal/repository"
	"github.com/Proton-105/teller/internal/state"
	"github.com/Proton-105/teller/pkg/config"
	"github.com/Proton-105/teller/pkg/graceful"
	"github.com/Proton-105/teller/pkg/logger"
	"github.com/Proton-105/teller/pkg/metrics"
	appredis "github.com/Proton-105/teller/pkg/redis"
)

func main() {
	if err := run(); err != nil {
		slog.Error("teller stopped with error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, v, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if cfg.Sentry.Enabled {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.Sentry.DSN,
			Environment:      cfg.AppEnv,
			TracesSampleRate: cfg.Sentry.TracesSampleRate,
		}); err != nil {
			return fmt.Errorf("init sentry: %w", err)
		}
	}

	log := logger.New(*cfg)
	slog.SetDefault(log)

	config.Watch(v, func(updated *config.Config) {
		logger.SetLevel(updated.Logger.Level)
		log.Info("configuration reloaded", slog.String("log_level", updated.Logger.Level))
	})

	log.Info("starting teller",
		slog.String("env", cfg.AppEnv),
		slog.String("port", cfg.Server.Port),
		slog.Bool("vault", cfg.VaultEnabled()),
	)

	shutdown := lifecycle.NewShutdown(log)
	checker := health.NewChecker(log)
	probes := lifecycle.NewProbes(log, checker)
	shutdown.Register(lifecycle.PhaseDrain, "readiness", probes.Drain)
	if cfg.Sentry.Enabled {
		shutdown.Register(lifecycle.PhaseClose, "sentry", func(context.Context) error {
			sentry.Flush(2 * time.Second)
			return nil
		})
	}

	redisClient, err := appredis.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	checker.AddCheck("redis", redisClient)
	shutdown.Register(lifecycle.PhaseClose, "redis", func(context.Context) error { return redisClient.Close() })

	var cashRepo repository.CashRepository
	if cfg.VaultEnabled() {
		db, err := openVault(ctx, cfg, log)
		if err != nil {
			return err
		}
		checker.AddCheck("vault", health.NewDBChecker(db))
		shutdown.Register(lifecycle.PhaseClose, "vault", func(context.Context) error { return db.Close() })
		cashRepo = repository.NewCashRepository(db, log)
	}

	controllerOpts := state.Options{InitialCash: cfg.Teller.InitialCash, LockTTL: cfg.Teller.LockTTL}
	snapshotTTL := time.Duration(0)
	var withdrawals api.WithdrawalLister
	if cashRepo != nil {
		controllerOpts.Vault = cashRepo
		withdrawals = cashRepo
		snapshotTTL = cfg.Teller.SnapshotTTL
	} else if cfg.Teller.SnapshotTTL > 0 {
		log.Warn("snapshot_ttl ignored without a vault; cash would be lost on expiry")
	}

	storage := state.NewRedisStorage(redisClient.Client, log, snapshotTTL)
	controller := state.NewController(storage, log, redisClient.Client, controllerOpts)

	memoryLimiter := ratelimit.NewMemoryLimiter(log)
	limiter := ratelimit.NewAdaptiveLimiter(ratelimit.NewRedisLimiter(redisClient.Client, log), memoryLimiter, log)
	idempotencyManager := idempotency.NewManager(idempotency.NewRedisStore(redisClient.Client, log), log)

	messages, err := i18n.Default()
	if err != nil {
		return fmt.Errorf("load display messages: %w", err)
	}

	var reconcileQueue api.ReconcileQueue
	if cfg.Jobs.Enabled && cashRepo != nil {
		queue, err := startJobs(cfg, controller, shutdown, log)
		if err != nil {
			return err
		}
		reconcileQueue = queue
	}

	handler := api.NewHandler(controller, withdrawals, messages, apperrors.NewHandler(log, cfg.Sentry.Enabled), log)
	router := api.NewRouter(handler, log, api.RouterOptions{
		RateLimit:   middleware.NewRateLimitMiddleware(limiter, ratelimit.NewRules(cfg.RateLimit), log),
		Idempotency: middleware.Idempotency(idempotencyManager, cfg.Teller.IdempotencyTTL, log),
		Probes:      probes,
		Timeout:     cfg.Server.RequestTimeout,
		Reconcile:   reconcileQueue,
	})

	workersCtx, stopWorkers := context.WithCancel(context.Background())
	var workers sync.WaitGroup
	startWorker := func(run func(context.Context)) {
		workers.Add(1)
		go func() {
			defer workers.Done()
			run(workersCtx)
		}()
	}

	startWorker(state.NewCleaner(controller, log, cfg.Teller.SessionTTL, cfg.Teller.CleanupInterval).Run)
	startWorker(metrics.NewStateCollector(controller, log, cfg.Teller.MetricsInterval).Run)
	startWorker(ratelimit.NewCleaner(redisClient.Client, memoryLimiter, log, cfg.Teller.CleanupInterval, 5*time.Minute).Run)
	startWorker(idempotency.NewCleaner(redisClient.Client, log, time.Hour, cfg.Teller.IdempotencyTTL+time.Hour).Run)
	shutdown.Register(lifecycle.PhaseStop, "workers", func(context.Context) error {
		stopWorkers()
		workers.Wait()
		return nil
	})

	server := graceful.NewServer(log, &http.Server{
		Addr:              cfg.Server.Port,
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}, cfg.Server.ShutdownTimeout)

	serveErr := server.ListenAndServe(ctx)
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := shutdown.Execute(shutdownCtx); err != nil {
		log.Error("shutdown finished with errors", slog.Any("error", err))
	}

	log.Info("teller stopped")
	return serveErr
}

// startJobs runs the reconciliation worker and its cron schedule on the session Redis.
func startJobs(cfg *config.Config, controller state.Controller, shutdown *lifecycle.Shutdown, log *slog.Logger) (jobs.Manager, error) {
	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}

	worker := jobs.NewWorker(redisOpt, cfg.Jobs.Concurrency, log)
	worker.RegisterHandler(jobs.TaskTypeReconcileVault, jobhandlers.NewReconcileHandler(controller, log))
	if err := worker.Start(); err != nil {
		return nil, fmt.Errorf("start jobs worker: %w", err)
	}
	shutdown.Register(lifecycle.PhaseStop, "jobs-worker", func(context.Context) error {
		worker.Shutdown()
		return nil
	})

	scheduler := jobs.NewScheduler(redisOpt, cfg.Jobs.ReconcileCron, log)
	if err := scheduler.RegisterTasks(); err != nil {
		return nil, err
	}
	if err := scheduler.Start(); err != nil {
		return nil, fmt.Errorf("start jobs scheduler: %w", err)
	}
	shutdown.Register(lifecycle.PhaseStop, "jobs-scheduler", func(context.Context) error {
		scheduler.Shutdown()
		return nil
	})

	manager := jobs.NewManager(redisOpt, log)
	shutdown.Register(lifecycle.PhaseClose, "jobs-client", func(context.Context) error { return manager.Close() })

	return manager, nil
}

func openVault(ctx context.Context, cfg *config.Config, log *slog.Logger) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.GetDBConnectionString())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := database.NewMigrator(db, log).ApplyDir(ctx, cfg.Database.MigrationsDir); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}

	return db, nil
}
