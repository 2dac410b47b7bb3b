package main

import (
	"errors"
	"fmt"
	"log/slog"

	"sinew-backend/internal/client"
	"sinew-backend/internal/config"
	"sinew-backend/internal/metrics"
	"sinew-backend/internal/repository"
	"sinew-backend/internal/server"
	"sinew-backend/internal/service"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"gorm.io/gorm"
)

const devJWTSecret = "dev-only-secret-change-me"

type app struct {
	db         *gorm.DB
	registry   *prometheus.Registry
	products   repository.ProductRepository
	services   *server.Services
	reconciler *service.Reconciler
}

func newApp(cfg *config.Config) (*app, error) {
	jwtSecret := cfg.Auth.JWTSecret
	if jwtSecret == "" {
		if cfg.IsProduction() {
			return nil, errors.New("AUTH_JWT_SECRET is required in production")
		}
		slog.Warn("AUTH_JWT_SECRET not set, using development secret")
		jwtSecret = devJWTSecret
	}

	db, err := client.InitDBClient(&cfg.Database)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.NewCollector(registry)

	primary, fallback, err := client.NewMailTransports(&cfg.Mail)
	if err != nil {
		return nil, fmt.Errorf("init mail: %w", err)
	}
	if primary == nil && fallback == nil {
		slog.Warn("no mail transport configured, purchases will be granted without email")
	}

	paypalClient := client.NewPaypalClient(&cfg.Paypal, cfg.ProviderTimeout)
	mpClient := client.NewMercadoPagoClient(&cfg.MercadoPago, cfg.ProviderTimeout)

	userRepo := repository.NewUserRepository(db)
	purchaseRepo := repository.NewPurchaseRepository(db)
	downloadTokenRepo := repository.NewDownloadTokenRepository(db)
	courseAccessRepo := repository.NewCourseAccessRepository(db)
	passwordResetRepo := repository.NewPasswordResetRepository(db)
	productRepo := repository.NewProductRepository(db)
	webhookEventRepo := repository.NewWebhookEventRepository(db)

	notifier := service.NewNotificationService(primary, fallback, recorder)
	fulfillment := service.NewFulfillmentService(
		db,
		service.NewIdentityService(userRepo, cfg.Fulfillment.PlaceholderDomain),
		purchaseRepo,
		downloadTokenRepo,
		courseAccessRepo,
		productRepo,
		notifier,
		recorder,
		service.FulfillmentOptions{
			BaseURL:       cfg.BaseURL,
			FrontendURL:   cfg.FrontendURL,
			TokenTTL:      cfg.Download.TokenTTL,
			NotifyTimeout: cfg.Fulfillment.NotifyTimeout,
		},
	)

	if cfg.Paypal.WebhookID == "" {
		slog.Warn("PAYPAL_WEBHOOK_ID not set, paypal webhook signatures are not verified")
	}
	paypalService := service.NewPaypalService(
		paypalClient,
		fulfillment,
		webhookEventRepo,
		recorder,
		cfg.FrontendURL,
		cfg.Paypal.WebhookID != "",
	)
	mpService := service.NewMercadoPagoService(
		mpClient,
		fulfillment,
		webhookEventRepo,
		recorder,
		cfg.BaseURL,
		cfg.MercadoPago.WebhookSecret,
		cfg.MercadoPago.Sandbox,
	)
	tokens := service.NewTokenManager(jwtSecret, cfg.Auth.TokenTTL)

	return &app{
		db:       db,
		registry: registry,
		products: productRepo,
		services: &server.Services{
			Checkout:    service.NewCheckoutService(productRepo, paypalService, mpService, cfg.MercadoPago.DefaultCurrency),
			Paypal:      paypalService,
			MercadoPago: mpService,
			Download:    service.NewDownloadService(downloadTokenRepo, recorder),
			Course:      service.NewCourseService(userRepo, productRepo, courseAccessRepo, fulfillment),
			User: service.NewUserService(
				db,
				userRepo,
				passwordResetRepo,
				purchaseRepo,
				courseAccessRepo,
				tokens,
				notifier,
				cfg.FrontendURL,
				cfg.Auth.ResetTTL,
			),
			Tokens: tokens,
		},
		reconciler: service.NewReconciler(mpService, cfg.Reconcile.Interval, cfg.Reconcile.Window),
	}, nil
}

func (a *app) close() {
	if sqlDB, err := a.db.DB(); err == nil {
		sqlDB.Close()
	}
}
