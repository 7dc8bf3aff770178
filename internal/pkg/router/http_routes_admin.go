package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/speedai/speedai/app/controllers"
	"github.com/speedai/speedai/internal/pkg/middleware"
)

func (h HttpRouter) registerAdminRoutes(app *fiber.App) {
	admin := controllers.NewAdminController(h.deps)

	adminGroup := app.Group("/api/admin", middleware.RequireAuth(h.deps.Repos.User), middleware.RequireAdmin)
	adminGroup.Get("/users", admin.HandleListUsers)
	adminGroup.Get("/users/:id", admin.HandleGetUser)
	adminGroup.Put("/users/:id/status", admin.HandleSetAccountStatus)

	// Maintenance + queue monitor
	adminGroup.Post("/calls/backfill-conversions", admin.HandleBackfillConversions)
	adminGroup.Get("/queues", admin.HandleQueueStats)
}
