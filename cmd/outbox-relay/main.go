package main

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/caisseflow/internal/docsync"
	"github.com/angelmondragon/caisseflow/internal/ledger"
	"github.com/angelmondragon/caisseflow/internal/notify"
	"github.com/angelmondragon/caisseflow/pkg/config"
	"github.com/angelmondragon/caisseflow/pkg/db"
	"github.com/angelmondragon/caisseflow/pkg/logger"
	"github.com/angelmondragon/caisseflow/pkg/migrate"
	"github.com/angelmondragon/caisseflow/pkg/outbox"
	"github.com/angelmondragon/caisseflow/pkg/outbox/idempotency"
	"github.com/angelmondragon/caisseflow/pkg/outbox/registry"
	"github.com/angelmondragon/caisseflow/pkg/pubsub"
	"github.com/angelmondragon/caisseflow/pkg/redis"
	"github.com/angelmondragon/caisseflow/pkg/storage/gcs"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "outbox-relay"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "outbox-relay"

	logg = logger.New(logger.Options{
		ServiceName: "outbox-relay",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

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

	pubsubClient, err := pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap pubsub", err)
		os.Exit(1)
	}
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing pubsub client", err)
		}
	}()

	gcsClient, err := gcs.NewClient(context.Background(), cfg.GCS, cfg.GCP, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap gcs", err)
		os.Exit(1)
	}

	dispatcher, err := notify.NewPubSubDispatcher(pubsubClient, cfg.PubSub.NotificationTopic, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create notification dispatcher", err)
		os.Exit(1)
	}

	ledgerSvc, err := ledger.NewService(ledger.NewRepository(dbClient.DB()), dbClient, nil)
	if err != nil {
		logg.Error(context.Background(), "failed to create ledger service", err)
		os.Exit(1)
	}

	syncer, err := docsync.NewSyncer(docsync.SyncerParams{
		Ledger:           ledgerSvc,
		Uploader:         gcsClient,
		Alerts:           dispatcher,
		Logger:           logg,
		Prefix:           cfg.GCS.SnapshotPrefix,
		Attempts:         cfg.Workflow.DocSyncAttempts,
		Backoff:          cfg.Workflow.DocSyncBackoff,
		TransactionLimit: cfg.Workflow.SnapshotTransactionLimit,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create ledger syncer", err)
		os.Exit(1)
	}

	processed, err := idempotency.NewManager(redisClient, cfg.Eventing.OutboxIdempotencyTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create idempotency manager", err)
		os.Exit(1)
	}

	eventRegistry, err := registry.NewEventRegistry(cfg.PubSub)
	if err != nil {
		logg.Error(context.Background(), "failed to build event registry", err)
		os.Exit(1)
	}
	service, err := NewService(ServiceParams{
		Config:        cfg,
		Logger:        logg,
		DB:            dbClient,
		PubSub:        pubsubClient,
		Repository:    outbox.NewRepository(dbClient.DB()),
		Registry:      eventRegistry,
		DLQRepository: outbox.NewDLQRepository(dbClient.DB()),
		Handlers:      buildHandlers(dispatcher, syncer),
		Processed:     processed,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create outbox relay", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": "outbox-relay",
	})
	logg.Info(ctx, "starting outbox relay")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "outbox relay stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "outbox relay shutting down gracefully")
}
