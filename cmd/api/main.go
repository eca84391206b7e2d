package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/angelmondragon/caisseflow/api/controllers"
	"github.com/angelmondragon/caisseflow/api/routes"
	"github.com/angelmondragon/caisseflow/internal/actions"
	"github.com/angelmondragon/caisseflow/internal/entities"
	"github.com/angelmondragon/caisseflow/internal/funding"
	"github.com/angelmondragon/caisseflow/internal/ledger"
	"github.com/angelmondragon/caisseflow/internal/payments"
	"github.com/angelmondragon/caisseflow/internal/registers"
	"github.com/angelmondragon/caisseflow/internal/sequence"
	"github.com/angelmondragon/caisseflow/internal/textparse"
	"github.com/angelmondragon/caisseflow/pkg/config"
	"github.com/angelmondragon/caisseflow/pkg/db"
	"github.com/angelmondragon/caisseflow/pkg/logger"
	"github.com/angelmondragon/caisseflow/pkg/metrics"
	"github.com/angelmondragon/caisseflow/pkg/migrate"
	"github.com/angelmondragon/caisseflow/pkg/outbox"
	"github.com/angelmondragon/caisseflow/pkg/redis"
	"github.com/angelmondragon/caisseflow/pkg/storage/gcs"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
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

	gcsClient, err := gcs.NewClient(context.Background(), cfg.GCS, cfg.GCP, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap gcs", err)
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	workflowMetrics := metrics.NewWorkflowMetrics(reg)

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
	actionSvc, err := actions.NewService(actions.NewRepository(conn), logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create action service", err)
		os.Exit(1)
	}
	parser := textparse.New(textparse.Options{
		Timeout:  cfg.TextParse.Timeout,
		Location: loc,
		Logger:   logg,
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("DYNO")
	if id == "" {
		id = "local"
	}
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": id,
	})
	logg.Info(ctx, "starting api server")

	handler := routes.NewRouter(routes.RouterParams{
		Config:      cfg,
		Logger:      logg,
		Idempotency: redisClient,
		Gatherer:    reg,
		Readiness: map[string]controllers.Pinger{
			"database": dbClient,
			"redis":    redisClient,
			"gcs":      gcsClient,
		},
		Registers: registerSvc,
		Ledger:    ledgerSvc,
		Funding:   fundingSvc,
		Parser:    parser,
		Entities:  entitySvc,
		Payments:  paymentSvc,
		Actions:   actionSvc,
	})

	server := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
