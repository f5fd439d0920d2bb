package router

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/examify/submission-api/internal/config"
	"github.com/examify/submission-api/internal/handler"
	"github.com/examify/submission-api/internal/middleware"
	"github.com/examify/submission-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	SubmissionHandler *handler.SubmissionHandler
	UploadHandler     *handler.UploadHandler
	GradingHandler    *handler.GradingHandler
	MaterialsHandler  *handler.MaterialsHandler
	JWTMiddleware     fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg))
	app.Get("/metrics", observability.MetricsHandler())

	// Use provided JWT middleware, or a no-op if nil
	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	instructorOnly := middleware.RequireRole("instructor", "admin")
	intakeLimit := middleware.RateLimit("intake", 60, time.Minute)

	if deps.SubmissionHandler != nil {
		// Degrade-ladder endpoints must stay reachable without a token.
		deps.SubmissionHandler.RegisterEmergency(api)

		submissions := api.Group("/submissions")
		deps.SubmissionHandler.Register(submissions, jwtMiddleware, intakeLimit)
	}

	if deps.UploadHandler != nil {
		uploads := api.Group("/upload-pdf", jwtMiddleware)
		deps.UploadHandler.Register(uploads)
	}

	if deps.GradingHandler != nil {
		deps.GradingHandler.Register(api, jwtMiddleware, instructorOnly)
	}

	if deps.MaterialsHandler != nil {
		materials := api.Group("/materials", jwtMiddleware)
		deps.MaterialsHandler.Register(materials)
	}
}
