package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/repairdesk/internal/api/http/handlers"
	"github.com/spec-kit/repairdesk/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Admin          *handlers.AdminHandler
	Tickets        *handlers.TicketsHandler
	Metrics        *handlers.MetricsHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/metrics", cfg.Metrics.Snapshot)

	app.Post("/auth/login", cfg.Auth.Login)

	admin := app.Group("/admin", cfg.AuthMiddleware.Handle, auth.RequireRole(auth.RoleAdmin))
	admin.Get("/stats", cfg.Admin.Stats)

	admin.Get("/reporters", cfg.Admin.ListReporters)
	admin.Put("/reporters/:id/name", cfg.Admin.RenameReporter)
	admin.Delete("/reporters/:id", cfg.Admin.DeleteReporter)

	admin.Get("/technicians", cfg.Admin.ListTechnicians)
	admin.Post("/technicians", cfg.Admin.AddTechnician)
	admin.Delete("/technicians/:id", cfg.Admin.RemoveTechnician)
	admin.Put("/technicians/:id/name", cfg.Admin.RenameTechnician)

	admin.Post("/registry/reload", cfg.Admin.ReloadRegistry)
	admin.Post("/broadcast", cfg.Admin.Broadcast)
	admin.Post("/wipe", cfg.Admin.Wipe)

	admin.Get("/tickets/:id", cfg.Tickets.GetTicket)
	admin.Get("/tickets/:id/history", cfg.Admin.TicketHistory)
}
