package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/spec-kit/support-bot/internal/api/http/handlers"
	"github.com/spec-kit/support-bot/internal/auth"
	"github.com/spec-kit/support-bot/internal/config"
	"github.com/spec-kit/support-bot/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Tickets        *handlers.TicketsHandler
	Admins         *handlers.AdminsHandler
	Analytics      *handlers.AnalyticsHandler
	AuthMiddleware *auth.AuthMiddleware
	Metrics        *observability.Metrics
}

// NewApp creates the fiber app with global middlewares attached.
func NewApp(cfg config.AppConfig, logger *zap.Logger, metrics *observability.Metrics) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               cfg.Name,
		DisableStartupMessage: true,
		ReadTimeout:           cfg.RequestTimeout(),
	})
	RegisterMiddlewares(app, logger, metrics, cfg.RequestTimeout())
	return app
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Metrics != nil && cfg.Metrics.Registry != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(cfg.Metrics.Registry, promhttp.HandlerOpts{})))
	}

	api := app.Group("/api/v1", cfg.AuthMiddleware.Handle, auth.RequireStaff())

	tickets := api.Group("/tickets")
	tickets.Get("/", cfg.Tickets.ListTickets)
	tickets.Get("/:id", cfg.Tickets.GetTicket)
	tickets.Get("/:id/history", cfg.Tickets.History)
	tickets.Post("/:id/claim", cfg.Tickets.Claim)
	tickets.Post("/:id/responses", cfg.Tickets.Respond)
	tickets.Post("/:id/close", cfg.Tickets.Close)
	tickets.Patch("/:id/priority", cfg.Tickets.SetPriority)

	api.Get("/analytics/tickets", cfg.Analytics.TicketStats)
	api.Get("/analytics/admins/me", cfg.Analytics.MyStats)
	api.Get("/analytics/sla", cfg.Analytics.SLAMetrics)
	api.Get("/analytics/hourly", cfg.Analytics.HourlyActivity)

	ownerOnly := auth.RequireOwner()
	api.Get("/admins", ownerOnly, cfg.Admins.List)
	api.Post("/admins", ownerOnly, cfg.Admins.Create)
	api.Get("/analytics/admins", ownerOnly, cfg.Analytics.AdminStats)
	api.Get("/analytics/missed", ownerOnly, cfg.Analytics.MissedStats)
	api.Get("/exports/tickets.csv", ownerOnly, cfg.Analytics.ExportTickets)
}
