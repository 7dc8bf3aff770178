package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/speedai/speedai/app/controllers"
	"github.com/speedai/speedai/internal/pkg/middleware"
	"github.com/speedai/speedai/internal/pkg/oauth"
	appsession "github.com/speedai/speedai/internal/pkg/session"
)

type HttpRouter struct {
	deps *controllers.Deps
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	// init session, unless a store was installed already (tests)
	store := appsession.GetSessionStore()
	if store == nil {
		store = appsession.NewSessionStore()
	}

	// init oauth providers
	if oauth.Enabled() {
		oauth.Setup()
	}

	// Apply UserContext middleware globally as first middleware
	app.Use(middleware.UserContextMiddleware(store))

	h.registerPublicRoutes(app)
	h.registerCSRFProtectedRoutes(app)
	h.registerAdminRoutes(app)
}

func NewHttpRouter(deps *controllers.Deps) *HttpRouter {
	return &HttpRouter{deps: deps}
}
