package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"mockup/internal/app"
	"mockup/internal/billing"
	"mockup/internal/generate"
	"mockup/internal/mockup"
	u "mockup/internal/utils"
)

func main() {
	cfg := u.LoadConfig()
	u.InitLogger(
		cfg.Logger.File,
		cfg.Logger.MaxSizeMB,
		cfg.Logger.MaxBackups,
		cfg.Logger.MaxAgeDays,
		cfg.Logger.Compress,
		cfg.Logger.Level,
	)
	u.SetLogLevel(cfg.Logger.Level)

	registry, err := buildRegistry(cfg)
	if err != nil {
		u.Error("Invalid template configuration", "error", err)
		os.Exit(1)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr: cfg.Cache.RedisHost,
		DB:   cfg.Cache.MockupCacheDB,
	})

	idleConnsClosed := make(chan struct{})
	if err := u.LoadTokensFromPostgres(cfg.Auth.Postgres); err != nil {
		u.Error("Failed to load API tokens", "error", err)
	}
	go u.RefreshTokensPeriodically(cfg.Auth.Postgres, time.Minute, idleConnsClosed)

	app := app.SetupApp(cfg, app.Deps{
		Redis:    rdb,
		Registry: registry,
		Provider: generate.NewProvider(cfg),
		Billing:  setupBilling(cfg),
	})

	u.Info("Starting mockup service", "addr", cfg.Server.Host+cfg.Server.Port,
		"templates", len(registry.Products()), "generate_provider", cfg.Generate.Provider)
	startServer(app, cfg, idleConnsClosed)
	<-idleConnsClosed
}

// buildRegistry starts from the built-in templates and applies the ones
// from config, replacing entries for the same product.
func buildRegistry(cfg u.Config) (*mockup.Registry, error) {
	templates := mockup.DefaultTemplates()
	index := make(map[mockup.ProductType]int, len(templates))
	for i, t := range templates {
		index[t.Product] = i
	}

	for _, tc := range cfg.Templates {
		t := mockup.Template{
			Product: mockup.ProductType(tc.Product),
			Placement: mockup.Placement{
				X:        tc.X,
				Y:        tc.Y,
				Width:    tc.Width,
				Height:   tc.Height,
				Rotation: tc.Rotation,
			},
		}
		if tc.BasePath != "" {
			t.Base = mockup.FileSource{Path: tc.BasePath}
		} else {
			t.Base = mockup.URLSource{URL: tc.BaseURL}
		}

		if i, ok := index[t.Product]; ok {
			templates[i] = t
			continue
		}
		index[t.Product] = len(templates)
		templates = append(templates, t)
	}
	return mockup.NewRegistry(templates...)
}

// setupBilling returns nil, which disables the billing routes, unless both
// Stripe and the account database are available.
func setupBilling(cfg u.Config) *billing.Service {
	if cfg.Billing.SecretKey == "" {
		u.Warn("Billing disabled: no Stripe secret key configured")
		return nil
	}
	db, err := u.Postgres(cfg.Auth.Postgres)
	if err != nil {
		u.Error("Billing disabled: account database unavailable", "error", err)
		return nil
	}
	store := billing.NewStore(db)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := store.EnsureSchema(ctx); err != nil {
		u.Error("Billing disabled: cannot prepare accounts schema", "error", err)
		return nil
	}

	billing.SetKey(cfg.Billing.SecretKey)
	return billing.NewService(billing.NewStripeGateway(), store, billing.Config{
		WebhookSecret:       cfg.Billing.WebhookSecret,
		SubscriptionPriceID: cfg.Billing.SubscriptionPriceID,
		CreditsPriceID:      cfg.Billing.CreditsPriceID,
		SubscriptionCredits: cfg.Billing.SubscriptionCredits,
		CreditsPackCredits:  cfg.Billing.CreditsPackCredits,
		DefaultOrigin:       cfg.Billing.DefaultOrigin,
	})
}

// startServer starts the Fiber app and listens for shutdown signals
func startServer(app *fiber.App, cfg u.Config, idleConnsClosed chan struct{}) {
	go func() {
		if err := app.Listen(cfg.Server.Host + cfg.Server.Port); err != nil {
			u.Error("Server error", "error", err)
		}
	}()

	// Listen for OS termination signals
	sigint := make(chan os.Signal, 1)
	signal.Notify(sigint, syscall.SIGINT, syscall.SIGTERM)
	<-sigint

	u.Warn("Shutdown signal received, closing server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		u.Error("Server forced to shutdown", "error", err)
	}

	close(idleConnsClosed)
	u.Info("Server stopped cleanly")
}
