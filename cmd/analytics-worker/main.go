package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/settlez-backend/internal/analytics/router"
	analyticstypes "github.com/angelmondragon/settlez-backend/internal/analytics/types"
	"github.com/angelmondragon/settlez-backend/internal/analytics/worker"
	"github.com/angelmondragon/settlez-backend/internal/analytics/writer"
	"github.com/angelmondragon/settlez-backend/pkg/bigquery"
	"github.com/angelmondragon/settlez-backend/pkg/config"
	"github.com/angelmondragon/settlez-backend/pkg/instance"
	"github.com/angelmondragon/settlez-backend/pkg/logger"
	"github.com/angelmondragon/settlez-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/settlez-backend/pkg/pubsub"
	"github.com/angelmondragon/settlez-backend/pkg/redis"
	"github.com/angelmondragon/settlez-backend/pkg/storage/gcs"
)

const (
	serviceKind = "analytics-worker"
	// handledTTL outlasts the subscription's message retention.
	handledTTL = 8 * 24 * time.Hour
)

func main() {
	logg := logger.New(logger.Options{ServiceName: serviceKind})
	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}
	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = serviceKind
	logg = logger.New(logger.Options{
		ServiceName: serviceKind,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	ctx = logg.WithFields(ctx, map[string]any{
		"env":          cfg.App.Env,
		"serviceKind":  serviceKind,
		"instance":     instance.GetID(),
		"subscription": cfg.PubSub.AnalyticsSubscription,
	})
	err = run(ctx, logg, cfg)
	stop()
	if err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "analytics worker failed", err)
		os.Exit(1)
	}
	logg.Info(ctx, "analytics worker stopped")
}

// run opens the sink's dependencies and consumes until ctx is cancelled.
// Redis is mandatory here: without it every redelivery is written again.
func run(ctx context.Context, logg *logger.Logger, cfg *config.Config) error {
	var closers []func() error
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if cerr := closers[i](); cerr != nil {
				logg.Error(context.Background(), "error closing dependency", cerr)
			}
		}
	}()

	if !cfg.Redis.Enabled() {
		return errors.New("redis is required for analytics idempotency")
	}
	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return fmt.Errorf("bootstrap redis: %w", err)
	}
	closers = append(closers, redisClient.Close)

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		return fmt.Errorf("bootstrap pubsub: %w", err)
	}
	closers = append(closers, pubsubClient.Close)
	if err := pubsubClient.EnsureSubscription(ctx, cfg.PubSub.AnalyticsSubscription); err != nil {
		return fmt.Errorf("analytics subscription: %w", err)
	}
	subscription := pubsubClient.AnalyticsSubscription()
	if subscription == nil {
		return errors.New("analytics subscription not configured")
	}

	bqClient, err := bigquery.NewClient(ctx, cfg.GCP, cfg.BigQuery, logg,
		bigquery.TableSpec{Name: cfg.BigQuery.SettlementEventsTable, Schema: analyticstypes.SettlementEventSchema, PartitionField: analyticstypes.OccurredAtPartition},
		bigquery.TableSpec{Name: cfg.BigQuery.DrawerFactsTable, Schema: analyticstypes.DrawerFactSchema, PartitionField: analyticstypes.OccurredAtPartition},
	)
	if err != nil {
		return fmt.Errorf("bootstrap bigquery: %w", err)
	}
	closers = append(closers, bqClient.Close)

	rows, err := writer.New(bqClient, writer.Config{
		SettlementTable: cfg.BigQuery.SettlementEventsTable,
		DrawerTable:     cfg.BigQuery.DrawerFactsTable,
	})
	if err != nil {
		return fmt.Errorf("settlement writer: %w", err)
	}

	var archiver router.Archiver
	if cfg.GCS.BucketName != "" {
		gcsClient, err := gcs.NewClient(ctx, cfg.GCS, cfg.GCP, logg)
		if err != nil {
			return fmt.Errorf("bootstrap gcs: %w", err)
		}
		closers = append(closers, gcsClient.Close)
		archiver = gcsClient
	} else {
		logg.Warn(ctx, "gcs bucket not configured; drawer close reports are not archived")
	}

	handler, err := router.NewRouter(router.Params{
		Writer:       rows,
		Archiver:     archiver,
		ReportPrefix: cfg.GCS.ReportPrefix,
		Logger:       logg,
	})
	if err != nil {
		return fmt.Errorf("settlement router: %w", err)
	}

	guard, err := idempotency.NewGuard(redisClient, worker.ConsumerName, handledTTL)
	if err != nil {
		return fmt.Errorf("idempotency guard: %w", err)
	}

	service, err := worker.NewService(worker.ServiceParams{
		Subscription: subscription,
		Handler:      handler,
		Idempotency:  guard,
		Flusher:      rows,
		Logger:       logg,
	})
	if err != nil {
		return fmt.Errorf("create analytics worker: %w", err)
	}

	logg.Info(ctx, "analytics worker ready")
	return service.Run(ctx)
}
