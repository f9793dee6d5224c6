package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/support-engine/internal/api/http/handlers"
	"github.com/spec-kit/support-engine/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Messages       *handlers.MessagesHandler
	Tickets        *handlers.TicketsHandler
	AuthMiddleware *auth.Middleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	app.Post("/auth/token", cfg.Auth.Token)

	protected := app.Group("/v1", cfg.AuthMiddleware.Handle)
	protected.Post("/messages", cfg.Messages.Handle)
	protected.Get("/tickets/:ref", cfg.Tickets.GetByRef)
}
