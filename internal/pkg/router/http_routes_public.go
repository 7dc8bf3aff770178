package router

import (
	"github.com/gofiber/fiber/v2"
	gothfiber "github.com/shareed2k/goth_fiber"

	"github.com/speedai/speedai/app/controllers"
	"github.com/speedai/speedai/internal/pkg/constants"
)

func (h HttpRouter) registerPublicRoutes(app *fiber.App) {
	reviews := controllers.NewReviewController(h.deps)
	tracking := controllers.NewTrackingController(h.deps)
	billing := controllers.NewBillingController(h.deps)
	oauthCtl := controllers.NewOAuthController(h.deps)

	// Review short links printed on QR codes and sent by SMS
	app.Get(constants.ReviewLinkRoute+"/:code", reviews.HandleShortLink)

	// Campaign tracking, called from mail clients without a session
	track := app.Group("/api/marketing")
	track.Get("/track/open/:trackingId", tracking.HandleOpen)
	track.Get("/track/click/:trackingId", tracking.HandleClick)
	track.Get("/unsubscribe/:trackingId", tracking.HandleUnsubscribeInfo)
	track.Post("/unsubscribe/:trackingId", tracking.HandleUnsubscribe)

	// Social OAuth
	app.Get("/auth/:provider", gothfiber.BeginAuthHandler)
	app.Get("/auth/:provider/callback", oauthCtl.HandleCallback)

	// Billing provider webhooks (no CSRF, signature-verified in controller)
	app.Post(constants.StripeWebhookRoute, billing.HandleStripeWebhook)
}
