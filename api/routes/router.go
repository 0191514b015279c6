package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/meterlane/billingdash-backend/api/controllers"
	billingcontrollers "github.com/meterlane/billingdash-backend/api/controllers/billing"
	subscriptioncontrollers "github.com/meterlane/billingdash-backend/api/controllers/subscriptions"
	usagecontrollers "github.com/meterlane/billingdash-backend/api/controllers/usage"
	usercontrollers "github.com/meterlane/billingdash-backend/api/controllers/users"
	webhookcontrollers "github.com/meterlane/billingdash-backend/api/controllers/webhooks"
	"github.com/meterlane/billingdash-backend/api/middleware"
	planssvc "github.com/meterlane/billingdash-backend/internal/plans"
	subscriptionsvc "github.com/meterlane/billingdash-backend/internal/subscriptions"
	"github.com/meterlane/billingdash-backend/internal/usage"
	stripewebhook "github.com/meterlane/billingdash-backend/internal/webhooks/stripe"
	"github.com/meterlane/billingdash-backend/pkg/config"
	"github.com/meterlane/billingdash-backend/pkg/db"
	"github.com/meterlane/billingdash-backend/pkg/logger"
	"github.com/meterlane/billingdash-backend/pkg/redis"
	"github.com/meterlane/billingdash-backend/pkg/stripe"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	planService planssvc.Service,
	subscriptionService subscriptionsvc.Service,
	usageCollector *usage.Collector,
	usageRecorder *usage.Recorder,
	stripeClient *stripe.Client,
	stripeWebhookService *stripewebhook.Service,
	stripeWebhookGuard *stripewebhook.IdempotencyGuard,
	userRepo usercontrollers.UserLookup,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.Billing.AppURL),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisClient))
	})

	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/stripe", webhookcontrollers.StripeWebhook(stripeWebhookService, stripeClient, stripeWebhookGuard, logg))
	})

	// Plan catalog is public so pricing pages can render without a session.
	r.Get("/api/v1/plans", billingcontrollers.PlansList(planService, logg))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Metering(usageRecorder, logg))

		r.Get("/me", usercontrollers.Profile(userRepo, logg))

		r.Route("/billing", func(r chi.Router) {
			r.Get("/overview", billingcontrollers.Overview(subscriptionService, logg))
			r.Get("/invoices", billingcontrollers.InvoicesList(subscriptionService, logg))
			r.Post("/checkout", billingcontrollers.CheckoutCreate(subscriptionService, logg))
			r.Post("/portal", billingcontrollers.PortalCreate(subscriptionService, logg))
		})

		r.Route("/subscriptions", func(r chi.Router) {
			r.Post("/change", subscriptioncontrollers.ChangePlan(subscriptionService, logg))
		})

		r.Get("/usage", usagecontrollers.Panel(subscriptionService, planService, usageCollector, logg))
	})

	return r
}
