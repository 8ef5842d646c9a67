package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/garword/topupid-backend/api/routes"
	"github.com/garword/topupid-backend/internal/cron"
	"github.com/garword/topupid-backend/internal/deposits"
	"github.com/garword/topupid-backend/internal/fulfillment"
	"github.com/garword/topupid-backend/internal/orders"
	"github.com/garword/topupid-backend/internal/pricing"
	"github.com/garword/topupid-backend/internal/providers"
	"github.com/garword/topupid-backend/internal/providers/digiflazz"
	"github.com/garword/topupid-backend/internal/providers/gamestore"
	"github.com/garword/topupid-backend/internal/providers/sosmed"
	"github.com/garword/topupid-backend/internal/providers/virtusim"
	"github.com/garword/topupid-backend/internal/reconcile"
	"github.com/garword/topupid-backend/internal/refund"
	"github.com/garword/topupid-backend/internal/wallet"
	"github.com/garword/topupid-backend/internal/webhooks"
	"github.com/garword/topupid-backend/pkg/config"
	"github.com/garword/topupid-backend/pkg/db"
	"github.com/garword/topupid-backend/pkg/logger"
	"github.com/garword/topupid-backend/pkg/metrics"
	"github.com/garword/topupid-backend/pkg/migrate"
	"github.com/garword/topupid-backend/pkg/redis"
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

	webhookMetrics := metrics.NewWebhookMetrics(prometheus.DefaultRegisterer)

	app, err := buildApp(cfg, logg, dbClient, redisClient, webhookMetrics)
	if err != nil {
		logg.Error(context.Background(), "failed to wire services", err)
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
		Handler: routes.NewRouter(routes.Params{
			Logger:          logg,
			DBPinger:        dbClient,
			RedisPinger:     redisClient,
			Paygate:         app.paygate,
			Digiflazz:       app.digiflazz,
			Gamestore:       app.gamestore,
			Sosmed:          app.sosmed,
			Virtusim:        app.virtusim,
			Orchestrator:    app.orchestrator,
			Refunds:         app.refunds,
			Deposits:        app.deposits,
			Pricing:         app.pricing,
			Wallet:          app.wallet,
			SweepJob:        app.sweepJob,
			PollJob:         app.pollJob,
			MetricsGatherer: prometheus.DefaultGatherer,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

type app struct {
	paygate      *webhooks.PaygateService
	digiflazz    *webhooks.DigiflazzService
	gamestore    *webhooks.GamestoreService
	sosmed       *webhooks.SosmedService
	virtusim     *webhooks.VirtusimService
	orchestrator fulfillment.Orchestrator
	refunds      refund.Service
	deposits     deposits.Service
	pricing      pricing.Service
	wallet       wallet.Service
	sweepJob     cron.Job
	pollJob      cron.Job
}

func buildApp(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client, webhookMetrics *metrics.WebhookMetrics) (*app, error) {
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
	registry := providers.NewRegistry(digiflazzAdapter, gamestoreAdapter, sosmedAdapter, virtusimAdapter)

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

	orchestrator, err := fulfillment.NewOrchestrator(fulfillment.OrchestratorParams{
		Logger:     logg,
		OrdersRepo: ordersRepo,
		Registry:   registry,
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

	pricingSvc, err := pricing.NewService(pricing.ServiceParams{
		Logger:   logg,
		Repo:     pricing.NewRepository(dbClient.DB()),
		Cache:    redisClient,
		CacheTTL: cfg.Pricing.TierCacheTTL,
	})
	if err != nil {
		return nil, err
	}

	paygateSvc, err := webhooks.NewPaygateService(webhooks.PaygateParams{
		Logger:       logg,
		Config:       cfg.Paygate,
		Orders:       ordersSvc,
		Deposits:     depositsSvc,
		Orchestrator: orchestrator,
		Dedup:        redisClient,
		Metrics:      webhookMetrics,
	})
	if err != nil {
		return nil, err
	}
	digiflazzWebhook, err := webhooks.NewDigiflazzService(logg, cfg.Digiflazz, reconciler, webhookMetrics)
	if err != nil {
		return nil, err
	}
	gamestoreWebhook, err := webhooks.NewGamestoreService(logg, cfg.Gamestore, reconciler, webhookMetrics)
	if err != nil {
		return nil, err
	}
	sosmedWebhook, err := webhooks.NewSosmedService(logg, cfg.Sosmed, reconciler, webhookMetrics)
	if err != nil {
		return nil, err
	}
	virtusimWebhook, err := webhooks.NewVirtusimService(logg, cfg.Virtusim, reconciler, webhookMetrics)
	if err != nil {
		return nil, err
	}

	sweepJob, err := cron.NewOrderTimeoutJob(cron.OrderTimeoutJobParams{
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
	pollJob, err := cron.NewStatusPollJob(cron.StatusPollJobParams{
		Logger:     logg,
		OrdersRepo: ordersRepo,
		Registry:   registry,
		Reconciler: reconciler,
		BatchSize:  cfg.Sweep.BatchSize,
	})
	if err != nil {
		return nil, err
	}

	return &app{
		paygate:      paygateSvc,
		digiflazz:    digiflazzWebhook,
		gamestore:    gamestoreWebhook,
		sosmed:       sosmedWebhook,
		virtusim:     virtusimWebhook,
		orchestrator: orchestrator,
		refunds:      refundSvc,
		deposits:     depositsSvc,
		pricing:      pricingSvc,
		wallet:       walletSvc,
		sweepJob:     sweepJob,
		pollJob:      pollJob,
	}, nil
}
