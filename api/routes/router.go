package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/garword/topupid-backend/api/controllers"
	"github.com/garword/topupid-backend/api/middleware"
	"github.com/garword/topupid-backend/internal/cron"
	"github.com/garword/topupid-backend/internal/deposits"
	"github.com/garword/topupid-backend/internal/fulfillment"
	"github.com/garword/topupid-backend/internal/pricing"
	"github.com/garword/topupid-backend/internal/refund"
	"github.com/garword/topupid-backend/internal/wallet"
	"github.com/garword/topupid-backend/internal/webhooks"
	"github.com/garword/topupid-backend/pkg/db"
	"github.com/garword/topupid-backend/pkg/logger"
	"github.com/garword/topupid-backend/pkg/redis"
)

// Params bundle everything the router mounts.
type Params struct {
	Logger *logger.Logger

	DBPinger    db.Pinger
	RedisPinger redis.Pinger

	Paygate   *webhooks.PaygateService
	Digiflazz *webhooks.DigiflazzService
	Gamestore *webhooks.GamestoreService
	Sosmed    *webhooks.SosmedService
	Virtusim  *webhooks.VirtusimService

	Orchestrator fulfillment.Orchestrator
	Refunds      refund.Service
	Deposits     deposits.Service
	Pricing      pricing.Service
	Wallet       wallet.Service

	SweepJob cron.Job
	PollJob  cron.Job

	MetricsGatherer prometheus.Gatherer
}

// NewRouter assembles the HTTP surface: vendor and gateway callbacks,
// operator endpoints, and health probes.
func NewRouter(params Params) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(params.Logger),
		middleware.RequestID(params.Logger),
		middleware.Logging(params.Logger),
	)

	r.Route("/webhooks", func(r chi.Router) {
		r.Post("/paygate", controllers.PaygateWebhook(params.Paygate, params.Logger))
		r.Post("/digiflazz", controllers.DigiflazzWebhook(params.Digiflazz, params.Logger))
		r.Post("/gamestore", controllers.GamestoreWebhook(params.Gamestore, params.Logger))
		r.Post("/sosmed", controllers.SosmedWebhook(params.Sosmed, params.Logger))
		r.Post("/virtusim", controllers.VirtusimWebhook(params.Virtusim, params.Logger))
	})

	r.Route("/internal", func(r chi.Router) {
		r.Post("/sweep", controllers.RunJob(params.SweepJob, params.Logger))
		r.Post("/poll", controllers.RunJob(params.PollJob, params.Logger))
		r.Post("/orders/{orderID}/dispatch", controllers.DispatchOrder(params.Orchestrator, params.Logger))
		r.Post("/items/{itemID}/refill", controllers.RefillItem(params.Orchestrator, params.Logger))
		r.Post("/orders/{orderID}/refund", controllers.RefundOrder(params.Refunds, params.Logger))
		r.Post("/deposits", controllers.CreateDeposit(params.Deposits, params.Logger))
		r.Get("/users/{userID}/tier", controllers.UserTier(params.Pricing, params.Logger))
		r.Get("/users/{userID}/wallet", controllers.WalletBalance(params.Wallet, params.Logger))
		r.Get("/users/{userID}/wallet/transactions", controllers.WalletLedger(params.Wallet, params.Logger))
	})

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive())
		r.Get("/ready", controllers.HealthReady(params.Logger, params.DBPinger, params.RedisPinger))
	})

	if params.MetricsGatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(params.MetricsGatherer, promhttp.HandlerOpts{}))
	}

	return r
}
