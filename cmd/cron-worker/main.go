package main

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/garword/topupid-backend/internal/cron"
	"github.com/garword/topupid-backend/internal/deposits"
	"github.com/garword/topupid-backend/internal/orders"
	"github.com/garword/topupid-backend/internal/providers"
	"github.com/garword/topupid-backend/internal/providers/digiflazz"
	"github.com/garword/topupid-backend/internal/providers/gamestore"
	"github.com/garword/topupid-backend/internal/providers/sosmed"
	"github.com/garword/topupid-backend/internal/providers/virtusim"
	"github.com/garword/topupid-backend/internal/reconcile"
	"github.com/garword/topupid-backend/internal/refund"
	"github.com/garword/topupid-backend/internal/wallet"
	"github.com/garword/topupid-backend/pkg/config"
	"github.com/garword/topupid-backend/pkg/db"
	"github.com/garword/topupid-backend/pkg/instance"
	"github.com/garword/topupid-backend/pkg/logger"
	"github.com/garword/topupid-backend/pkg/metrics"
	"github.com/garword/topupid-backend/pkg/migrate"
	"github.com/garword/topupid-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
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

	registry, err := buildRegistry(cfg, logg, dbClient, redisClient)
	if err != nil {
		logg.Error(context.Background(), "failed to wire cron jobs", err)
		os.Exit(1)
	}

	metricsCollector := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)
	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey("cron-worker"), cfg.Sweep.Interval*5)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metricsCollector,
		Interval: cfg.Sweep.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"workerID":    instance.GetID(),
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func buildRegistry(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client) (*cron.Registry, error) {
	ordersRepo := orders.NewRepository(dbClient.DB())
	ordersSvc, err := orders.NewService(ordersRepo, dbClient)
	if err != nil {
		return nil, err
	}

	walletSvc, err := wallet.NewService(wallet.NewRepository(dbClient.DB()))
	if err != nil {
		return nil, err
	}

	refundSvc, err := refund.NewService(refund.ServiceParams{
		Logger:     logg,
		OrdersRepo: ordersRepo,
		Wallet:     walletSvc,
		TxRunner:   dbClient,
	})
	if err != nil {
		return nil, err
	}

	depositsSvc, err := deposits.NewService(deposits.ServiceParams{
		Logger:   logg,
		Repo:     deposits.NewRepository(dbClient.DB()),
		Wallet:   walletSvc,
		TxRunner: dbClient,
	})
	if err != nil {
		return nil, err
	}

	digiflazzAdapter, err := digiflazz.New(cfg.Digiflazz, logg)
	if err != nil {
		return nil, err
	}
	gamestoreAdapter, err := gamestore.New(cfg.Gamestore, logg)
	if err != nil {
		return nil, err
	}
	sosmedAdapter, err := sosmed.New(cfg.Sosmed, logg)
	if err != nil {
		return nil, err
	}
	virtusimAdapter, err := virtusim.New(cfg.Virtusim, logg)
	if err != nil {
		return nil, err
	}
	adapterRegistry := providers.NewRegistry(digiflazzAdapter, gamestoreAdapter, sosmedAdapter, virtusimAdapter)

	reconciler, err := reconcile.NewService(reconcile.ServiceParams{
		Logger:     logg,
		OrdersRepo: ordersRepo,
		OrdersSvc:  ordersSvc,
		Refunds:    refundSvc,
		TxRunner:   dbClient,
	})
	if err != nil {
		return nil, err
	}

	orderTimeout, err := cron.NewOrderTimeoutJob(cron.OrderTimeoutJobParams{
		Logger:     logg,
		OrdersRepo: ordersRepo,
		OrdersSvc:  ordersSvc,
		Refunds:    refundSvc,
		Grace:      cfg.Sweep.Grace,
		BatchSize:  cfg.Sweep.BatchSize,
	})
	if err != nil {
		return nil, err
	}
	depositTimeout, err := cron.NewDepositTimeoutJob(logg, depositsSvc, cfg.Sweep.BatchSize)
	if err != nil {
		return nil, err
	}
	statusPoll, err := cron.NewStatusPollJob(cron.StatusPollJobParams{
		Logger:     logg,
		OrdersRepo: ordersRepo,
		Registry:   adapterRegistry,
		Reconciler: reconciler,
		BatchSize:  cfg.Sweep.BatchSize,
	})
	if err != nil {
		return nil, err
	}

	return cron.NewRegistry(orderTimeout, depositTimeout, statusPoll), nil
}
