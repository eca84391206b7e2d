package main

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/caisseflow/internal/actions"
	"github.com/angelmondragon/caisseflow/internal/entities"
	"github.com/angelmondragon/caisseflow/internal/funding"
	"github.com/angelmondragon/caisseflow/internal/ledger"
	"github.com/angelmondragon/caisseflow/internal/payments"
	"github.com/angelmondragon/caisseflow/internal/registers"
	"github.com/angelmondragon/caisseflow/internal/sequence"
	"github.com/angelmondragon/caisseflow/internal/workflow"
	"github.com/angelmondragon/caisseflow/pkg/config"
	"github.com/angelmondragon/caisseflow/pkg/db"
	"github.com/angelmondragon/caisseflow/pkg/env"
	"github.com/angelmondragon/caisseflow/pkg/logger"
	"github.com/angelmondragon/caisseflow/pkg/metrics"
	"github.com/angelmondragon/caisseflow/pkg/migrate"
	"github.com/angelmondragon/caisseflow/pkg/outbox"
	"github.com/angelmondragon/caisseflow/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "worker"

	logg = logger.New(logger.Options{
		ServiceName: "worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	loc, err := cfg.App.Location()
	if err != nil {
		logg.Error(context.Background(), "failed to load time zone", err)
		os.Exit(1)
	}

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	workflowMetrics := metrics.NewWorkflowMetrics(prometheus.DefaultRegisterer)
	jobMetrics := metrics.NewJobMetrics(prometheus.DefaultRegisterer)

	conn := dbClient.DB()
	seq := sequence.NewGenerator(conn, loc, workflowMetrics)
	emitter := outbox.NewService(outbox.NewRepository(conn), logg)

	ledgerSvc, err := ledger.NewService(ledger.NewRepository(conn), dbClient, workflowMetrics)
	if err != nil {
		logg.Error(context.Background(), "failed to create ledger service", err)
		os.Exit(1)
	}
	registerSvc, err := registers.NewService(registers.NewRepository(conn), dbClient, ledgerSvc, registers.NewTypeCache(redisClient.Raw(), cfg.Registers.TypeCacheTTL), logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create register service", err)
		os.Exit(1)
	}
	entitySvc, err := entities.NewService(entities.NewRepository(conn), dbClient, seq, registerSvc, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create entity service", err)
		os.Exit(1)
	}
	fundingSvc, err := funding.NewService(funding.ServiceParams{
		Repo:      funding.NewRepository(conn),
		Tx:        dbClient,
		Sequence:  seq,
		Registers: registerSvc,
		Ledger:    ledgerSvc,
		Outbox:    emitter,
		Logger:    logg,
		Metrics:   workflowMetrics,
		Location:  loc,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create funding service", err)
		os.Exit(1)
	}
	paymentSvc, err := payments.NewService(payments.ServiceParams{
		Repo:          payments.NewRepository(conn),
		Tx:            dbClient,
		Entities:      entitySvc,
		Ledger:        ledgerSvc,
		Sequence:      seq,
		Outbox:        emitter,
		Logger:        logg,
		Metrics:       workflowMetrics,
		FeeCapPercent: cfg.Workflow.MobileMoneyFeeCapPercent,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payment service", err)
		os.Exit(1)
	}

	coordinator, err := workflow.NewCoordinator(fundingSvc, paymentSvc, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create workflow coordinator", err)
		os.Exit(1)
	}

	processor, err := actions.NewProcessor(actions.ProcessorParams{
		Config:     cfg.Actions,
		Repo:       actions.NewRepository(conn),
		DB:         dbClient,
		Dispatcher: coordinator,
		Outbox:     emitter,
		Logger:     logg,
		Metrics:    jobMetrics,
		WorkerID:   env.InstanceID(),
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create action processor", err)
		os.Exit(1)
	}

	service, err := NewService(ServiceParams{
		Config:    cfg,
		Logger:    logg,
		DB:        dbClient,
		Redis:     redisClient,
		Processor: processor,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create worker service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": "worker",
	})
	logg.Info(ctx, "starting worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "worker shutting down gracefully")
}
