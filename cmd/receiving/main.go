package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/noven-pro/receiving/internal/app"
	"github.com/noven-pro/receiving/internal/audit"
	audithttp "github.com/noven-pro/receiving/internal/audit/http"
	"github.com/noven-pro/receiving/internal/observability"
	"github.com/noven-pro/receiving/internal/platform/cache"
	"github.com/noven-pro/receiving/internal/platform/db"
	"github.com/noven-pro/receiving/internal/receiving"
	"github.com/noven-pro/receiving/internal/shared"
	"github.com/noven-pro/receiving/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)
	if err := run(ctx, stop, cfg, logger); err != nil {
		logger.Error("receiving service", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, stop context.CancelFunc, cfg *app.Config, logger *slog.Logger) error {
	metrics := observability.NewMetrics()
	probes := map[string]app.Probe{}

	var (
		repo        receiving.RepositoryPort
		deps        = receiving.Dependencies{Logger: logger, Metrics: receiving.NewMetrics(metrics.Registerer())}
		dbpool      *pgxpool.Pool
		redisClient *redis.Client
		auditRepo   audit.Repository
	)

	switch cfg.StoreBackend {
	case app.StoreBackendPostgres:
		pool, err := db.New(ctx, cfg.PGDSN)
		if err != nil {
			return err
		}
		defer pool.Close()
		dbpool = pool
		if cfg.DBAutoMigrate {
			if err := db.Migrate(ctx, pool); err != nil {
				return err
			}
			logger.Info("schema migrated")
		}
		repo = receiving.NewRepository(pool)
		deps.Audit = shared.NewAuditLogger(pool)
		auditRepo = audit.NewPostgresRepository(pool)
		deps.Idempotency = shared.NewIdempotencyStore(pool)
		probes["postgres"] = func(ctx context.Context) error { return dbpool.Ping(ctx) }
	default:
		logger.Warn("using in-memory store; data is lost on restart")
		repo = receiving.NewMemoryRepository()
		memAudit := shared.NewMemoryAuditLogger()
		deps.Audit = memAudit
		auditRepo = audit.NewMemoryRepository(memAudit)
		deps.Idempotency = shared.NewMemoryIdempotencyStore()
	}

	if cfg.RedisAddr != "" {
		client, err := cache.New(ctx, cfg.RedisAddr)
		switch {
		case err != nil && cfg.UseLock:
			return err
		case err != nil:
			logger.Warn("redis unavailable, quality hand-off disabled", slog.Any("error", err))
		default:
			redisClient = client
			defer func() {
				if err := redisClient.Close(); err != nil {
					logger.Warn("redis close", slog.Any("error", err))
				}
			}()
			probes["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
		}
	}

	var jobHandler *jobs.Handler
	if redisClient != nil {
		if cfg.UseLock {
			deps.Locker = shared.NewRedisLocker(redisClient, cfg.LockTTL, cfg.LockWait)
		}
		jobClient := jobs.NewClient(cache.AsynqOpt(cfg.RedisAddr))
		defer func() {
			if err := jobClient.Close(); err != nil {
				logger.Warn("job client close", slog.Any("error", err))
			}
		}()
		deps.Integration = jobClient

		inspector := asynq.NewInspector(cache.AsynqOpt(cfg.RedisAddr))
		defer func() {
			if err := inspector.Close(); err != nil {
				logger.Warn("inspector close", slog.Any("error", err))
			}
		}()
		jobHandler = jobs.NewHandler(inspector, logger)
	} else {
		jobHandler = jobs.NewHandler(nil, logger)
	}

	service := receiving.NewService(repo, deps, receiving.ServiceConfig{MaxAttempts: cfg.MaxAttempts})

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		ReceivingHandler: receiving.NewHandler(logger, service),
		JobHandler:       jobHandler,
		AuditHandler:     audithttp.NewHandler(logger, audit.NewService(auditRepo)),
		Metrics:          metrics,
		Probes:           probes,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("starting http server",
			slog.String("addr", cfg.AppAddr),
			slog.String("store", cfg.StoreBackend),
			slog.Bool("lock", deps.Locker != nil))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}

	select {
	case err := <-serveErr:
		return err
	default:
		return nil
	}
}
