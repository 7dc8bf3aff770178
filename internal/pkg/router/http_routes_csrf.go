package router

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/csrf"

	"github.com/speedai/speedai/app/controllers"
	"github.com/speedai/speedai/internal/pkg/constants"
	"github.com/speedai/speedai/internal/pkg/env"
)

// oneClickUnsubscribe reports an RFC 8058 POST sent by a mail client, which
// never carries our CSRF cookie.
func oneClickUnsubscribe(c *fiber.Ctx) bool {
	return c.Method() == fiber.MethodPost &&
		strings.HasPrefix(c.Path(), constants.UnsubscribeRoute+"/") &&
		c.FormValue("List-Unsubscribe") == "One-Click"
}

func (h HttpRouter) registerCSRFProtectedRoutes(app *fiber.App) {
	csrfConf := csrf.Config{
		KeyLookup:      "form:_csrf",
		ContextKey:     "csrf",
		CookieName:     "csrf_",
		CookieSameSite: "Lax",
		Expiration:     1 * time.Hour,
		CookieSecure:   !env.IsDev(),
		Next: func(c *fiber.Ctx) bool {
			return strings.HasPrefix(c.Path(), "/api/") || oneClickUnsubscribe(c)
		},
	}

	auth := controllers.NewAuthController(h.deps)
	tracking := controllers.NewTrackingController(h.deps)

	group := app.Group("", csrf.New(csrfConf))
	group.Get(constants.VerifyEmailRoute, auth.HandleVerifyEmailPage)
	group.Get(constants.ResetPasswordRoute, auth.HandleResetPasswordPage)
	group.Post(constants.ResetPasswordRoute, auth.HandleResetPasswordForm)
	group.Get(constants.UnsubscribeRoute+"/:trackingId", tracking.HandleUnsubscribePage)
	group.Post(constants.UnsubscribeRoute+"/:trackingId", tracking.HandleUnsubscribeForm)
}
