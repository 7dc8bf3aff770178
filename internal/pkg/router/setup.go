package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/speedai/speedai/app/controllers"
)

type Router interface {
	InstallRouter(app *fiber.App)
}

func InstallRouter(app *fiber.App, deps *controllers.Deps) {
	// Install HttpRouter first to initialize the session store, oauth providers
	// and the global UserContext middleware. The API routes depend on that
	// middleware for RequireAuth.
	setup(app, NewHttpRouter(deps), NewApiRouter(deps))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
