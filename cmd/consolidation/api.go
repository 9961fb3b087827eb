package main

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/dukex/consolidation/pkg/web"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
)

// API serves the REST surface of the consolidation engine.
type API struct {
	logger   *slog.Logger
	handlers *web.APIHandlers
	app      *fiber.App
}

func NewAPI(logger *slog.Logger, handlers *web.APIHandlers) *API {
	return &API{
		logger:   logger,
		handlers: handlers,
	}
}

func (a *API) App() *fiber.App {
	if a.app != nil {
		return a.app
	}

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Consolidation API")
	})

	a.handlers.Register(app)
	a.app = app

	return app
}

func (a *API) Start(port int) error {
	a.logger.Info("Starting API server", "port", port)

	return a.App().Listen(":"+strconv.Itoa(port), fiber.ListenConfig{DisableStartupMessage: true})
}

func (a *API) Shutdown(ctx context.Context) error {
	if a.app == nil {
		return nil
	}

	return a.app.ShutdownWithContext(ctx)
}
