package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/forkpoint/loyalty-backend/api/controllers"
	"github.com/forkpoint/loyalty-backend/api/middleware"
	"github.com/forkpoint/loyalty-backend/internal/campaigns"
	"github.com/forkpoint/loyalty-backend/internal/customers"
	"github.com/forkpoint/loyalty-backend/internal/ledger"
	"github.com/forkpoint/loyalty-backend/internal/notifications"
	"github.com/forkpoint/loyalty-backend/internal/rewards"
	"github.com/forkpoint/loyalty-backend/internal/settlement"
	"github.com/forkpoint/loyalty-backend/pkg/config"
	"github.com/forkpoint/loyalty-backend/pkg/db"
	"github.com/forkpoint/loyalty-backend/pkg/logger"
	"github.com/forkpoint/loyalty-backend/pkg/pubsub"
	"github.com/forkpoint/loyalty-backend/pkg/redis"
)

// pubsubPinger converts a possibly-nil client into a health check dependency.
func pubsubPinger(client *pubsub.Client) controllers.Pinger {
	if client == nil {
		return nil
	}
	return client
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	pubsubClient *pubsub.Client,
	registry *prometheus.Registry,
	settlementService settlement.Service,
	campaignsService campaigns.Service,
	rewardsService rewards.Service,
	ledgerService ledger.Service,
	customersRepo customers.Repository,
	notificationsService notifications.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisClient, pubsubPinger(pubsubClient)))
	})

	if registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/transactions", func(r chi.Router) {
			r.Post("/", controllers.SettleTransaction(settlementService, logg))
			r.Post("/{transactionId}/cancel", controllers.CancelTransaction(settlementService, logg))
		})

		r.Route("/customers/{customerId}", func(r chi.Router) {
			r.Get("/", controllers.GetCustomer(customersRepo, logg))
			r.Get("/points/history", controllers.ListPointHistory(ledgerService, logg))
			r.Route("/notifications", func(r chi.Router) {
				r.Get("/", controllers.ListNotifications(notificationsService, logg))
				r.Post("/{notificationId}/read", controllers.MarkNotificationRead(notificationsService, logg))
				r.Post("/read-all", controllers.MarkAllNotificationsRead(notificationsService, logg))
			})
		})

		r.Post("/campaigns/quote", controllers.QuoteCampaigns(campaignsService, logg))
		r.Post("/rewards/{grantId}/redeem", controllers.RedeemReward(rewardsService, logg))
	})

	return r
}
