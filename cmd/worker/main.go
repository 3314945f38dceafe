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
	"github.com/prometheus/client_golang/prometheus"

	"github.com/forkpoint/loyalty-backend/internal/cron"
	"github.com/forkpoint/loyalty-backend/internal/customers"
	"github.com/forkpoint/loyalty-backend/internal/ledger"
	"github.com/forkpoint/loyalty-backend/internal/notifications"
	"github.com/forkpoint/loyalty-backend/pkg/config"
	"github.com/forkpoint/loyalty-backend/pkg/db"
	"github.com/forkpoint/loyalty-backend/pkg/logger"
	"github.com/forkpoint/loyalty-backend/pkg/metrics"
	"github.com/forkpoint/loyalty-backend/pkg/migrate"
	"github.com/forkpoint/loyalty-backend/pkg/outbox"
	"github.com/forkpoint/loyalty-backend/pkg/outbox/idempotency"
	"github.com/forkpoint/loyalty-backend/pkg/pubsub"
	"github.com/forkpoint/loyalty-backend/pkg/redis"
)

// processedMarkerTTL keeps dedupe markers around long past pubsub's
// redelivery window.
const processedMarkerTTL = 24 * time.Hour

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "worker"})

	_ = godotenv.Load()

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	logg = logger.New(logger.Options{
		ServiceName: "worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer dbClient.Close()

	err = migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient)
	requireResource(ctx, logg, "dev migrations", err)

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	requireResource(ctx, logg, "redis", err)
	defer redisClient.Close()

	pubsubClient, err := pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
	requireResource(ctx, logg, "pubsub", err)
	defer pubsubClient.Close()

	gormDB := dbClient.DB()
	customersRepo := customers.NewRepository(gormDB)
	notificationsRepo := notifications.NewRepository(gormDB)
	outboxRepo := outbox.NewRepository(gormDB)

	ledgerService, err := ledger.NewService(ledger.NewRepository(gormDB), customersRepo, dbClient, logg)
	requireResource(ctx, logg, "ledger service", err)

	idempotencyManager, err := idempotency.NewManager(redisClient, processedMarkerTTL)
	requireResource(ctx, logg, "idempotency manager", err)

	consumer, err := notifications.NewConsumer(
		notificationsRepo,
		customersRepo,
		pubsubClient.EventsSubscription(),
		idempotencyManager,
		logg,
	)
	requireResource(ctx, logg, "notifications consumer", err)

	expiryJob, err := cron.NewPointsExpiryJob(cron.PointsExpiryJobParams{
		Logger: logg,
		Ledger: ledgerService,
	})
	requireResource(ctx, logg, "points expiry job", err)

	retentionJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:      logg,
		Repository:  outboxRepo,
		MaxAttempts: cfg.Outbox.MaxAttempts,
	})
	requireResource(ctx, logg, "outbox retention job", err)

	lock, err := cron.NewRedisLock(redisClient, redisClient.CronLockKey(cfg.App.Env), cfg.Cron.LockTTL)
	requireResource(ctx, logg, "cron lock", err)

	cronService, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(expiryJob, retentionJob),
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Cron.Interval,
	})
	requireResource(ctx, logg, "cron service", err)

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	runCtx = logg.WithField(runCtx, "env", cfg.App.Env)
	logg.Info(runCtx, "starting worker")

	errCh := make(chan error, 2)
	go func() {
		errCh <- consumer.Run(runCtx)
	}()
	go func() {
		errCh <- cronService.Run(runCtx)
	}()

	if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(runCtx, "worker stopped unexpectedly", err)
		os.Exit(1)
	}
	stop()
	logg.Info(runCtx, "worker shutting down gracefully")
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
