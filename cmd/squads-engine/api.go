package main

import (
	"github.com/cajasmota/zeroclaw-squads-sub001/pkg/web"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
)

// App registers every route of the engine API.
func App(handlers *web.APIHandlers) *fiber.App {
	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Squads Engine API")
	})

	app.Get("/health", handlers.HealthCheck)

	t := app.Group("/templates")
	t.Post("/validate", handlers.ValidateTemplate)
	t.Post("/:id/runs", handlers.TriggerRun)

	r := app.Group("/runs")
	r.Get("/", handlers.ListRuns)
	r.Get("/:id", handlers.GetRun)
	r.Post("/:id/nodes/:nodeId/decision", handlers.DecideApproval)
	r.Post("/:id/nodes/:nodeId/completion", handlers.CompleteAgentTask)

	app.Get("/projects/:projectId/events", handlers.ProjectEvents)

	return app
}
