package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/roadwatch/backend/internal/analytics"
)

// SetupRoutes configures all HTTP routes
func SetupRoutes(app *fiber.App, handler *Handler) {
	// Health check
	app.Get("/health", handler.HealthCheck)

	// API v1 routes
	api := app.Group("/api/v1")
	{
		api.Get("/health", handler.HealthCheck)
		api.Get("/dashboard", handler.GetDashboard)

		// Collisions; the static stats paths must precede /:id
		api.Get("/collisions", handler.ListCollisions)
		api.Get("/collisions/stats", handler.GetStats)
		api.Get("/collisions/stats/by-severity", handler.GetStatsBySeverity)
		api.Get("/collisions/:id", handler.GetCollision)

		api.Get("/lookups/:kind", handler.ListLookups)

		// Vega chart specs
		viz := api.Group("/viz")
		viz.Get("/collisions-by-severity", handler.GetSeverityChart)
		viz.Get("/most-dangerous", handler.GetMostDangerous)
		viz.Get("/most-dangerous-intersections", handler.MostDangerousFor(analytics.AddressIntersection))
		viz.Get("/most-dangerous-blocks", handler.MostDangerousFor(analytics.AddressBlock))
		viz.Get("/most-dangerous-alleys", handler.MostDangerousFor(analytics.AddressAlley))
		viz.Get("/collisions-over-time", handler.GetTimeSeries)
		viz.Get("/collision-heatmap", handler.GetHeatmap)
	}
}
