package app

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/redis/go-redis/v9"

	"mockup/internal/billing"
	"mockup/internal/generate"
	"mockup/internal/handlers"
	"mockup/internal/metrics"
	"mockup/internal/mockup"
	u "mockup/internal/utils"
)

const webhookPath = "/v1/billing/webhook"

// Deps are the long-lived collaborators built by main.
type Deps struct {
	Redis    *redis.Client
	Registry *mockup.Registry
	Provider generate.Provider
	Billing  *billing.Service
}

// SetupApp creates and configures a new Fiber app instance
func SetupApp(cfg u.Config, deps Deps) *fiber.App {
	app := fiber.New(fiber.Config{
		Prefork:               cfg.Server.Prefork,
		DisableStartupMessage: true,
		BodyLimit:             bodyLimit(cfg),
		ErrorHandler:          errorHandler,
	})

	RegisterMiddleware(app, cfg)
	RegisterRoutes(app, cfg, deps)

	// Ensure all responses, including 404s, return JSON
	app.Use(func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusNotFound, "Not Found")
	})

	return app
}

func bodyLimit(cfg u.Config) int {
	if cfg.Server.BodyLimitMB > 0 {
		return cfg.Server.BodyLimitMB << 20
	}
	return fiber.DefaultBodyLimit
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	msg := "Internal Server Error"

	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
		msg = e.Message
	}

	u.Warn("Request failed", "path", c.Path(), "status", code, "message", msg)

	return c.Status(code).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    code,
			"message": msg,
		},
	})
}

// RegisterRoutes mounts all route handlers to the app
func RegisterRoutes(app *fiber.App, cfg u.Config, deps Deps) {
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	v1 := app.Group("/v1")

	mockups := handlers.NewMockupService(cfg, deps.Redis, deps.Registry)
	v1.Post("/mockups", mockups.HandleComposite)
	v1.Get("/templates", mockups.HandleTemplates)

	if deps.Provider == nil {
		deps.Provider = generate.NewProvider(cfg)
	}
	gen := handlers.NewGenerateService(cfg, deps.Provider)
	v1.Get("/options", handlers.HandleOptions)
	v1.Post("/generate", gen.HandleGenerate)

	bill := handlers.NewBillingService(deps.Billing)
	v1.Post("/billing/checkout", bill.HandleCheckout)
	v1.Post("/billing/webhook", bill.HandleWebhook)
	v1.Get("/account", bill.HandleAccount)

	v1.Get("/monitor", monitor.New())
}
