package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/meridian-erp/meridian-erp/internal/app"
	"github.com/meridian-erp/meridian-erp/internal/observability"
	"github.com/meridian-erp/meridian-erp/internal/payables"
	"github.com/meridian-erp/meridian-erp/internal/platform/db"
	"github.com/meridian-erp/meridian-erp/internal/receivables"
	"github.com/meridian-erp/meridian-erp/internal/terms"
	"github.com/meridian-erp/meridian-erp/jobs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	termsService := terms.NewService(terms.NewRepository(pool))
	receivablesService := receivables.NewService(receivables.NewRepository(pool), termsService)
	payablesService := payables.NewService(payables.NewRepository(pool), termsService)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:    asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:       logger,
		SweepHandler: jobs.NewFinanceSweepHandler(receivablesService, payablesService, observability.NewMetrics(), logger),
		SweepSpec:    cfg.SweepCron,
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("worker starting", slog.String("sweep_cron", cfg.SweepCron))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
