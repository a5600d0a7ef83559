// Package main provides the Cascade API server.
package main

import (
	"log/slog"
	"strconv"

	"github.com/cascadehq/cascade/pkg/engine"
	"github.com/cascadehq/cascade/pkg/eventbus"
	"github.com/cascadehq/cascade/pkg/persistence"
	"github.com/cascadehq/cascade/pkg/services"
	"github.com/cascadehq/cascade/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	eventBus    eventbus.EventBus
	validate    *validator.Validate
}

func NewAPI(logger *slog.Logger, persistence persistence.Persistence, eventBus eventbus.EventBus) *API {
	return &API{
		logger:      logger,
		persistence: persistence,
		eventBus:    eventBus,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() (*fiber.App, error) {
	dispatcher := engine.NewDispatcher(a.eventBus, a.logger)
	runner := engine.NewRunner(a.persistence, dispatcher, a.logger)

	workflowService, err := services.NewWorkflows(a.persistence)
	if err != nil {
		return nil, err
	}

	triggerService := services.NewTrigger(a.persistence, runner, a.logger)
	executionService := services.NewExecutions(a.persistence)

	handlers := web.NewAPIHandlers(workflowService, triggerService, executionService, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Cascade API")
	})

	w := app.Group("/workflows")
	w.Post("/", handlers.CreateWorkflow)
	w.Get("/:id", handlers.GetWorkflow)
	w.Post("/:id/versions", handlers.SaveVersion)
	w.Post("/:id/versions/:versionId/activate", handlers.ActivateVersion)
	w.Post("/:id/webhook-token/rotate", handlers.RotateWebhookToken)
	w.Post("/:id/execute", handlers.ExecuteWorkflow)
	w.Post("/:id/webhook/:token", handlers.Webhook)
	w.Get("/:id/executions", handlers.ListExecutions)

	e := app.Group("/executions")
	e.Get("/:id", handlers.GetExecution)
	e.Get("/:id/logs", handlers.GetExecutionLogs)

	app.Get("/health", handlers.HealthCheck)

	return app, nil
}

func (a *API) Start(port int) error {
	app, err := a.App()
	if err != nil {
		return err
	}

	return app.Listen(":" + strconv.Itoa(port))
}
