package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/meterlane/billingdash-backend/api/routes"
	"github.com/meterlane/billingdash-backend/internal/billing"
	"github.com/meterlane/billingdash-backend/internal/plans"
	"github.com/meterlane/billingdash-backend/internal/subscriptions"
	"github.com/meterlane/billingdash-backend/internal/usage"
	"github.com/meterlane/billingdash-backend/internal/users"
	stripewebhook "github.com/meterlane/billingdash-backend/internal/webhooks/stripe"
	"github.com/meterlane/billingdash-backend/pkg/config"
	"github.com/meterlane/billingdash-backend/pkg/db"
	"github.com/meterlane/billingdash-backend/pkg/logger"
	"github.com/meterlane/billingdash-backend/pkg/metrics"
	"github.com/meterlane/billingdash-backend/pkg/migrate"
	"github.com/meterlane/billingdash-backend/pkg/redis"
	"github.com/meterlane/billingdash-backend/pkg/stripe"
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

	stripeClient, err := stripe.NewClient(context.Background(), cfg.Stripe, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap stripe client", err)
		os.Exit(1)
	}

	billingRepo := billing.NewRepository(dbClient.DB())
	userRepo := users.NewRepository(dbClient.DB())

	planService, err := plans.NewService(billingRepo, cfg.Usage, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create plan service", err)
		os.Exit(1)
	}
	if cfg.FeatureFlags.SeedPlans {
		if err := planService.Seed(context.Background()); err != nil {
			logg.Error(context.Background(), "failed to seed plan catalog", err)
			os.Exit(1)
		}
	}
	if err := planService.Reload(context.Background()); err != nil {
		logg.Warn(context.Background(), "plan catalog reload failed, serving fallback")
	}

	stripeBilling := subscriptions.NewStripeClient(stripeClient)

	subscriptionService, err := subscriptions.NewService(subscriptions.ServiceParams{
		BillingRepo:  billingRepo,
		PlanService:  planService,
		StripeClient: stripeBilling,
		Billing:      cfg.Billing,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create subscription service", err)
		os.Exit(1)
	}

	usageCollector, err := usage.NewCollector(redisClient)
	if err != nil {
		logg.Error(context.Background(), "failed to create usage collector", err)
		os.Exit(1)
	}

	usageRecorder, err := usage.NewRecorder(redisClient)
	if err != nil {
		logg.Error(context.Background(), "failed to create usage recorder", err)
		os.Exit(1)
	}

	webhookMetrics := metrics.NewWebhookMetrics(prometheus.DefaultRegisterer)

	webhookService, err := stripewebhook.NewService(stripewebhook.ServiceParams{
		BillingRepo:       billingRepo,
		PlanService:       planService,
		StripeClient:      stripeBilling,
		TransactionRunner: dbClient,
		Metrics:           webhookMetrics,
		Logger:            logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook service", err)
		os.Exit(1)
	}

	webhookGuard, err := stripewebhook.NewIdempotencyGuard(redisClient, cfg.Billing.WebhookIdempotencyTTL, "stripe")
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook idempotency guard", err)
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
			planService,
			subscriptionService,
			usageCollector,
			usageRecorder,
			stripeClient,
			webhookService,
			webhookGuard,
			userRepo,
		),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
