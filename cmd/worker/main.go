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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/edgeunify07/textile-flow-forge/internal/app"
	"github.com/edgeunify07/textile-flow-forge/internal/bom"
	jobmetrics "github.com/edgeunify07/textile-flow-forge/internal/jobs"
	"github.com/edgeunify07/textile-flow-forge/internal/observability"
	"github.com/edgeunify07/textile-flow-forge/internal/platform/cache"
	"github.com/edgeunify07/textile-flow-forge/internal/platform/db"
	"github.com/edgeunify07/textile-flow-forge/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
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

	if !cfg.Redis().Enabled() {
		logger.Error("worker requires REDIS_ADDR")
		os.Exit(1)
	}
	if cfg.StorageDriver != app.StoragePostgres {
		logger.Error("worker requires STORAGE_DRIVER=postgres; the memory store is private to each process")
		os.Exit(1)
	}

	pool, err := db.New(ctx, cfg.PGDSN, cfg.Postgres())
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.Redis())
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	registry := prometheus.NewRegistry()
	service := bom.NewService(bom.NewPostgresRepository(pool), bom.ServiceOptions{
		Cache:            bom.NewCache(redisClient, cfg.SummaryCacheTTL),
		Metrics:          observability.NewCostingMetrics(registry),
		Logger:           logger,
		RecomputeWorkers: cfg.RecomputeConcurrency,
	})
	recomputeJob := bom.NewRecomputeJob(service, logger, jobmetrics.NewMetrics(registry))

	recomputeTask, err := jobs.NewBOMRecomputeTask("")
	if err != nil {
		logger.Error("build recompute task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   cfg.Redis().AsynqOpt(),
		Logger:      logger,
		Concurrency: 2,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskBOMRecompute, Handler: recomputeJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.RecomputeCron, Task: recomputeTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	metricsServer := &http.Server{
		Addr:              cfg.WorkerMetricsAddr,
		Handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := app.Serve(ctx, metricsServer, logger, 5*time.Second); err != nil {
			logger.Warn("worker metrics server", slog.Any("error", err))
		}
	}()

	logger.Info("starting worker", slog.String("cron", cfg.RecomputeCron))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
