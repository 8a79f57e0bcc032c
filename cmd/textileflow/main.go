package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/edgeunify07/textile-flow-forge/internal/app"
	"github.com/edgeunify07/textile-flow-forge/internal/bom"
	"github.com/edgeunify07/textile-flow-forge/internal/observability"
	"github.com/edgeunify07/textile-flow-forge/internal/platform/cache"
	"github.com/edgeunify07/textile-flow-forge/internal/platform/db"
	"github.com/edgeunify07/textile-flow-forge/jobs"
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
	slog.SetDefault(logger)

	repo, closeRepo, err := openRepository(ctx, cfg, logger)
	if err != nil {
		logger.Error("open repository", slog.String("driver", cfg.StorageDriver), slog.Any("error", err))
		os.Exit(1)
	}
	defer closeRepo()

	var redisClient *redis.Client
	var enqueuer bom.Enqueuer
	var jobHandler *jobs.Handler
	if cfg.Redis().Enabled() {
		redisClient, err = cache.New(ctx, cfg.Redis())
		if err != nil {
			logger.Warn("redis unavailable, summary cache and jobs disabled", slog.Any("error", err))
		}
	}
	if redisClient != nil {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()

		jobClient, err := jobs.NewClient(cfg.Redis().AsynqOpt())
		if err != nil {
			logger.Error("init job client", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() {
			if err := jobClient.Close(); err != nil {
				logger.Warn("job client close", slog.Any("error", err))
			}
		}()
		if cfg.QueuesRecompute() {
			enqueuer = jobClient
		} else {
			logger.Info("memory store in use, recompute runs inline")
		}

		inspector := asynq.NewInspector(cfg.Redis().AsynqOpt())
		defer func() {
			if err := inspector.Close(); err != nil {
				logger.Warn("inspector close", slog.Any("error", err))
			}
		}()
		jobHandler = jobs.NewHandler(inspector, logger)
	} else {
		jobHandler = jobs.NewHandler(nil, logger)
	}

	metrics := observability.NewMetrics()
	service := bom.NewService(repo, bom.ServiceOptions{
		Cache:            bom.NewCache(redisClient, cfg.SummaryCacheTTL),
		Metrics:          observability.NewCostingMetrics(metrics.Registerer()),
		Logger:           logger,
		RecomputeWorkers: cfg.RecomputeConcurrency,
	})
	bomHandler := bom.NewHandler(logger, service, enqueuer, cfg.CurrencyLocale)

	router := app.NewRouter(app.RouterParams{
		Logger:     logger,
		Config:     cfg,
		BOMHandler: bomHandler,
		JobHandler: jobHandler,
		Metrics:    metrics,
	})

	server := &http.Server{
		Addr:              cfg.AppAddr,
		Handler:           router,
		ReadTimeout:       cfg.AppReadTimeout,
		ReadHeaderTimeout: cfg.AppReadTimeout,
		WriteTimeout:      cfg.AppWriteTimeout,
	}

	logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("storage", cfg.StorageDriver))
	if err := app.Serve(ctx, server, logger, 10*time.Second); err != nil {
		logger.Error("http server", slog.Any("error", err))
		os.Exit(1)
	}
}

// openRepository selects the BOM store. The returned func releases it.
func openRepository(ctx context.Context, cfg *app.Config, logger *slog.Logger) (bom.Repository, func(), error) {
	if cfg.StorageDriver != app.StoragePostgres {
		return bom.NewMemoryRepository(), func() {}, nil
	}
	pool, err := db.New(ctx, cfg.PGDSN, cfg.Postgres())
	if err != nil {
		return nil, nil, err
	}
	if err := db.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, err
	}
	logger.Info("database migrated")
	return bom.NewPostgresRepository(pool), pool.Close, nil
}
