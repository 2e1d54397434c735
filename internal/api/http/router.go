package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/spec-kit/helpdesk/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk/internal/auth"
	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Tickets        *handlers.TicketsHandler
	Incidents      *handlers.IncidentsHandler
	SLA            *handlers.SLAHandler
	Notifications  *handlers.NotificationsHandler
	Admin          *handlers.AdminHandler
	AuthMiddleware *auth.AuthMiddleware
	Metrics        *observability.Metrics
}

// RegisterRoutes wires HTTP routes. Role checks here only short-circuit obvious denials; the
// services apply the full guard.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if registry := cfg.Metrics.Registry(); registry != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	}

	api := app.Group("", cfg.AuthMiddleware.Handle)

	tickets := api.Group("/tickets")
	tickets.Post("/", cfg.Tickets.CreateTicket)
	tickets.Get("/", cfg.Tickets.ListTickets)
	tickets.Get("/:id", cfg.Tickets.GetTicket)
	tickets.Put("/:id", cfg.Tickets.UpdateTicket)
	tickets.Delete("/:id", cfg.Tickets.DeleteTicket)
	tickets.Post("/:id/comments", cfg.Tickets.AddComment)
	tickets.Post("/:id/convert", auth.RequireStaff(), cfg.Tickets.ConvertTicket)

	incidents := api.Group("/incidents")
	incidents.Post("/", cfg.Incidents.CreateIncident)
	incidents.Get("/", cfg.Incidents.ListIncidents)
	incidents.Get("/:id", cfg.Incidents.GetIncident)
	incidents.Put("/:id", cfg.Incidents.UpdateIncident)
	incidents.Post("/:id/timeline", cfg.Incidents.AddTimelineEntry)

	slaRules := api.Group("/sla")
	slaRules.Get("/", cfg.SLA.ListRules)
	slaRules.Post("/", cfg.SLA.CreateRule)
	slaRules.Put("/:id", cfg.SLA.UpdateRule)
	slaRules.Delete("/:id", cfg.SLA.DeleteRule)

	notifications := api.Group("/notifications")
	notifications.Get("/", cfg.Notifications.List)
	notifications.Put("/read-all", cfg.Notifications.MarkAllRead)
	notifications.Put("/:id/read", cfg.Notifications.MarkRead)

	api.Get("/branches", cfg.Admin.ListBranches)

	adminOnly := auth.RequireRole(domain.RoleAdministrator)
	actors := api.Group("/actors", adminOnly)
	actors.Post("/", cfg.Admin.CreateActor)
	actors.Get("/", cfg.Admin.ListActors)
	actors.Get("/:id", cfg.Admin.GetActor)
	actors.Put("/:id", cfg.Admin.UpdateActor)

	api.Get("/audit", adminOnly, cfg.Admin.ListAudit)
	api.Get("/admin/reconciliations", adminOnly, cfg.Admin.ListReconciliations)
}
