package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/settlez-backend/pkg/config"
	"github.com/angelmondragon/settlez-backend/pkg/db"
	"github.com/angelmondragon/settlez-backend/pkg/instance"
	"github.com/angelmondragon/settlez-backend/pkg/logger"
	"github.com/angelmondragon/settlez-backend/pkg/metrics"
	"github.com/angelmondragon/settlez-backend/pkg/migrate"
	"github.com/angelmondragon/settlez-backend/pkg/outbox"
	"github.com/angelmondragon/settlez-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/settlez-backend/pkg/outbox/registry"
	"github.com/angelmondragon/settlez-backend/pkg/pagination"
	"github.com/angelmondragon/settlez-backend/pkg/pubsub"
	"github.com/angelmondragon/settlez-backend/pkg/redis"
)

const (
	serviceKind  = "outbox-publisher"
	processedTTL = 72 * time.Hour
)

func main() {
	var dlqCmd dlqCommand
	flag.BoolVar(&dlqCmd.list, "dlq-list", false, "print parked events as JSON lines and exit")
	flag.StringVar(&dlqCmd.reason, "dlq-reason", "", "filter -dlq-list by reason: max_attempts|non_retryable|unroutable")
	flag.StringVar(&dlqCmd.cursor, "dlq-cursor", "", "cursor printed by a previous -dlq-list page")
	flag.IntVar(&dlqCmd.limit, "dlq-limit", pagination.DefaultLimit, "page size for -dlq-list")
	flag.StringVar(&dlqCmd.requeue, "dlq-requeue", "", "event id to move from the dlq back onto the outbox, then exit")
	flag.Parse()

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
		"env":         cfg.App.Env,
		"serviceKind": serviceKind,
		"instance":    instance.GetID(),
	})
	err = run(ctx, logg, cfg, dlqCmd)
	stop()
	if err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "outbox publisher stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "outbox publisher shutting down gracefully")
}

// run wires dependencies and blocks until ctx is cancelled. Clients opened
// here are closed before it returns, newest first.
func run(ctx context.Context, logg *logger.Logger, cfg *config.Config, dlqCmd dlqCommand) error {
	var closers []func() error
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if cerr := closers[i](); cerr != nil {
				logg.Error(context.Background(), "error closing dependency", cerr)
			}
		}
	}()

	conn, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("bootstrap database: %w", err)
	}
	closers = append(closers, conn.Close)

	if err := migrate.MaybeRunDev(ctx, cfg, logg, conn); err != nil {
		return fmt.Errorf("dev migrations: %w", err)
	}

	dlqRepo := outbox.NewDLQRepository(conn.DB())
	if dlqCmd.requested() {
		return runDLQCommand(ctx, logg, conn, dlqRepo, dlqCmd, os.Stdout)
	}

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		return fmt.Errorf("bootstrap pubsub: %w", err)
	}
	closers = append(closers, pubsubClient.Close)

	eventRegistry, err := registry.NewEventRegistry(cfg.PubSub)
	if err != nil {
		return fmt.Errorf("event registry: %w", err)
	}
	logg.Info(logg.WithFields(ctx, map[string]any{
		"topic":       cfg.PubSub.SettlementTopic,
		"event_types": eventRegistry.EventTypes(),
	}), "outbox routes loaded")

	var guard publishGuard
	if cfg.Redis.Enabled() {
		redisClient, err := redis.New(ctx, cfg.Redis, logg)
		if err != nil {
			return fmt.Errorf("bootstrap redis: %w", err)
		}
		closers = append(closers, redisClient.Close)
		if guard, err = idempotency.NewGuard(redisClient, consumerName, processedTTL); err != nil {
			return fmt.Errorf("publish guard: %w", err)
		}
	} else {
		logg.Warn(ctx, "redis not configured; relying on the outbox row lock alone to avoid double publishes")
	}

	service, err := NewService(ServiceParams{
		Config:        cfg,
		Logger:        logg,
		DB:            conn,
		PubSub:        pubsubClient,
		Repository:    outbox.NewRepository(conn.DB()),
		Registry:      eventRegistry,
		DLQRepository: dlqRepo,
		Guard:         guard,
		Metrics:       metrics.NewJobMetrics(prometheus.DefaultRegisterer),
	})
	if err != nil {
		return fmt.Errorf("create outbox publisher: %w", err)
	}

	logg.Info(ctx, "starting outbox publisher")
	return service.Run(ctx)
}
