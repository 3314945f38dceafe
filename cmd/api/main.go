package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/forkpoint/loyalty-backend/api/routes"
	"github.com/forkpoint/loyalty-backend/internal/campaigns"
	"github.com/forkpoint/loyalty-backend/internal/customers"
	"github.com/forkpoint/loyalty-backend/internal/ledger"
	"github.com/forkpoint/loyalty-backend/internal/notifications"
	"github.com/forkpoint/loyalty-backend/internal/rewards"
	"github.com/forkpoint/loyalty-backend/internal/segments"
	"github.com/forkpoint/loyalty-backend/internal/settings"
	"github.com/forkpoint/loyalty-backend/internal/settlement"
	"github.com/forkpoint/loyalty-backend/internal/tiers"
	"github.com/forkpoint/loyalty-backend/pkg/config"
	"github.com/forkpoint/loyalty-backend/pkg/db"
	"github.com/forkpoint/loyalty-backend/pkg/logger"
	"github.com/forkpoint/loyalty-backend/pkg/metrics"
	"github.com/forkpoint/loyalty-backend/pkg/migrate"
	"github.com/forkpoint/loyalty-backend/pkg/outbox"
	"github.com/forkpoint/loyalty-backend/pkg/redis"
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

	registry := prometheus.NewRegistry()
	settlementMetrics := metrics.NewSettlementMetrics(registry)

	gormDB := dbClient.DB()
	customersRepo := customers.NewRepository(gormDB)
	ledgerRepo := ledger.NewRepository(gormDB)
	campaignsRepo := campaigns.NewRepository(gormDB)
	tiersRepo := tiers.NewRepository(gormDB)
	rewardsRepo := rewards.NewRepository(gormDB)
	settlementRepo := settlement.NewRepository(gormDB)
	segmentsRepo := segments.NewRepository(gormDB)
	notificationsRepo := notifications.NewRepository(gormDB)

	outboxService := outbox.NewService(outbox.NewRepository(gormDB), logg)

	settingsProvider, err := settings.NewProvider(
		customersRepo,
		redisClient,
		cfg.Loyalty.SettingsCacheTTL,
		cfg.Loyalty.DefaultBasePointRate,
		logg,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create settings provider", err)
		os.Exit(1)
	}

	ledgerService, err := ledger.NewService(ledgerRepo, customersRepo, dbClient, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create ledger service", err)
		os.Exit(1)
	}

	tiersService, err := tiers.NewService(tiersRepo, customersRepo, outboxService, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create tier service", err)
		os.Exit(1)
	}

	campaignsService, err := campaigns.NewService(campaignsRepo, customersRepo, settingsProvider, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create campaigns service", err)
		os.Exit(1)
	}

	rewardsService, err := rewards.NewService(rewardsRepo, customersRepo, ledgerService, dbClient, outboxService, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create rewards service", err)
		os.Exit(1)
	}

	segmentsService, err := segments.NewService(dbClient, segmentsRepo, customersRepo, outboxService, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create segments service", err)
		os.Exit(1)
	}
	segmentsQueue := segments.NewDebouncer(segmentsService, cfg.Segmentation.DebounceWindow, logg)
	defer segmentsQueue.Close()

	settlementService, err := settlement.NewService(settlement.Deps{
		Runner:    dbClient,
		Repo:      settlementRepo,
		Customers: customersRepo,
		Campaigns: campaignsRepo,
		Points:    ledgerService,
		Rewards:   rewardsService,
		Tiers:     tiersService,
		Settings:  settingsProvider,
		Events:    outboxService,
		Segments:  segmentsQueue,
		Metrics:   settlementMetrics,
		Logger:    logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create settlement service", err)
		os.Exit(1)
	}

	notificationsService, err := notifications.NewService(notificationsRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create notifications service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			nil, // events are published by the outbox-publisher binary
			registry,
			settlementService,
			campaignsService,
			rewardsService,
			ledgerService,
			customersRepo,
			notificationsService,
		),
	}

	shutdownCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-shutdownCtx.Done():
		logg.Info(ctx, "shutting down api server")
		drainCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(drainCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
		}
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	}
}
