// File: cmd/app/main.go
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"legacygrid-billing/internal/config"
	"legacygrid-billing/internal/infra/db/postgres"
	"legacygrid-billing/internal/infra/gateway"
	"legacygrid-billing/internal/infra/logging"
	"legacygrid-billing/internal/infra/metrics"
	"legacygrid-billing/internal/infra/rates"
	red "legacygrid-billing/internal/infra/redis"
	"legacygrid-billing/internal/infra/sched"
	"legacygrid-billing/internal/infra/web"
	"legacygrid-billing/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, dev, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, dev)
	metrics.MustRegister()

	// ---- Postgres ----
	pool, err := postgres.NewPgxPool(ctx, cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis")
	}
	defer redisClient.Close()
	rateCache := red.NewRateCache(redisClient)

	// ---- Repositories ----
	txm := postgres.NewTxManager(pool)
	currencyRepo := postgres.NewCurrencyRepo(pool)
	tierRepo := postgres.NewTierRepoCacheDecorator(postgres.NewTierRepo(pool), redisClient)
	priceRepo := postgres.NewPriceRepo(pool)
	subRepo := postgres.NewSubscriptionRepo(pool)
	payRepo := postgres.NewPaymentRepo(pool)
	providerRepo := postgres.NewProviderRepo(pool)
	webhookRepo := postgres.NewWebhookEventRepo(pool)
	auditRepo := postgres.NewAuditLogRepo(pool)

	// ---- Adapters ----
	rateSource := rates.NewHTTPSource(cfg.Billing.RateAPIURL, cfg.Billing.RateAPITimeout)
	factory := gateway.NewFactory(cfg.Gateways)

	// ---- Use cases ----
	converter := usecase.NewCurrencyConverter(currencyRepo, rateCache, rateSource,
		cfg.Billing.BaseCurrency, cfg.Billing.RateCacheTTL, logger)
	subManager := usecase.NewSubscriptionManager(tierRepo, currencyRepo, subRepo, auditRepo, txm,
		cfg.Billing.BaseCurrency, logger)
	processor := usecase.NewPaymentProcessor(payRepo, priceRepo, tierRepo, currencyRepo, providerRepo,
		auditRepo, subManager, factory, txm, usecase.PaymentProcessorOptions{
			DemoMode:       cfg.Billing.DemoMode || dev,
			AutoActivate:   cfg.Billing.AutoActivate,
			GatewayTimeout: cfg.Billing.GatewayTimeout,
		}, logger)
	webhookProcessor := usecase.NewWebhookProcessor(providerRepo, webhookRepo, payRepo, auditRepo,
		subManager, factory, txm, logger)

	if cfg.Billing.DemoMode || dev {
		logger.Warn().Msg("demo mode enabled: charges succeed without calling gateways")
	}

	// ---- Workers ----
	expiry := sched.NewExpiryWorker(cfg.Billing.ExpirySweep, subManager, logger)
	go func() { _ = expiry.Run(ctx) }()

	rateRefresh := sched.NewRateRefreshWorker(cfg.Billing.RateRefresh, converter, logger)
	go func() { _ = rateRefresh.Run(ctx) }()

	renewal := sched.NewRenewalWorker(cfg.Billing.RenewalInterval, cfg.Billing.RenewalWindow, subRepo, processor, logger)
	go func() { _ = renewal.Run(ctx) }()

	reconcile := sched.NewReconcileWorker(cfg.Billing.ReconcileInterval, cfg.Billing.PendingAge, payRepo, processor, logger)
	go func() { _ = reconcile.Run(ctx) }()

	// ---- HTTP ----
	server := web.NewServer(processor, subManager, webhookProcessor, converter,
		tierRepo, priceRepo, currencyRepo, subRepo, webhookRepo, cfg.HTTP.AdminAPIKey, logger)
	go func() {
		if err := server.Start(ctx, cfg.HTTP.Port); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
			cancel()
		}
	}()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigc:
		logger.Info().Msg("shutdown requested")
	case <-ctx.Done():
	}
	cancel()
}
