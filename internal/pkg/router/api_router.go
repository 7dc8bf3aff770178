package router

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	apiv1 "github.com/speedai/speedai/internal/api/v1"
	"github.com/speedai/speedai/app/controllers"
	"github.com/speedai/speedai/internal/pkg/env"
	"github.com/speedai/speedai/internal/pkg/middleware"
)

type ApiRouter struct {
	deps *controllers.Deps
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api",
		cors.New(cors.Config{
			AllowOrigins:     env.GetEnv("CORS_ORIGINS", env.BaseURL()),
			AllowCredentials: true,
		}),
		limiter.New(limiter.Config{
			Max:        env.GetEnvInt("API_RATE_LIMIT", 120),
			Expiration: 1 * time.Minute,
		}),
	)
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	// API v1 routes, authenticated with an API key. Registered before the
	// session routes so /api/v1/calls never reaches RequireAuth.
	v1 := api.Group("/v1", middleware.APIKeyAuth(h.deps.Repos.User), middleware.RequireActiveAccount(h.deps.Now))
	apiv1.RegisterHandlers(v1, apiv1.NewAPIServer(h.deps))

	h.registerAuthRoutes(api)
	h.registerAppRoutes(api)
}

func (h ApiRouter) registerAuthRoutes(api fiber.Router) {
	auth := controllers.NewAuthController(h.deps)

	// Tighter limit on credential endpoints
	strict := limiter.New(limiter.Config{
		Max:        env.GetEnvInt("AUTH_RATE_LIMIT", 10),
		Expiration: 1 * time.Minute,
	})

	g := api.Group("/auth")
	g.Post("/signup", strict, auth.HandleSignup)
	g.Post("/login", strict, auth.HandleLogin)
	g.Post("/logout", auth.HandleLogout)
	g.Get("/me", middleware.RequireAuth(h.deps.Repos.User), auth.HandleMe)
	g.Post("/verify-email", auth.HandleVerifyEmail)
	g.Post("/resend-verification", strict, auth.HandleResendVerification)
	g.Post("/forgot-password", strict, auth.HandleForgotPassword)
	g.Post("/reset-password", strict, auth.HandleResetPassword)
}

// registerAppRoutes mounts the tenant routes. Suspended and expired accounts
// keep access to their account settings only.
func (h ApiRouter) registerAppRoutes(api fiber.Router) {
	requireAuth := middleware.RequireAuth(h.deps.Repos.User)
	requireActive := middleware.RequireActiveAccount(h.deps.Now)

	account := controllers.NewAccountController(h.deps)
	acc := api.Group("/account", requireAuth)
	acc.Put("/profile", account.HandleUpdateProfile)
	acc.Put("/password", account.HandleChangePassword)
	acc.Delete("/", account.HandleDeleteAccount)
	acc.Get("/api-key", account.HandleAPIKeyStatus)
	acc.Post("/api-key", requireActive, account.HandleIssueAPIKey)
	acc.Delete("/api-key", account.HandleRevokeAPIKey)

	calls := controllers.NewCallController(h.deps)
	cg := api.Group("/calls", requireAuth, requireActive)
	cg.Get("/", calls.HandleList)
	cg.Post("/", calls.HandleCreate)
	cg.Get("/stats", calls.HandleStats)
	cg.Get("/chart", calls.HandleChart)
	cg.Get("/insights", calls.HandleInsights)
	cg.Get("/:id", calls.HandleGet)
	cg.Patch("/:id", calls.HandleUpdate)
	cg.Delete("/:id", calls.HandleDelete)

	notifications := controllers.NewNotificationController(h.deps)
	ng := api.Group("/notifications", requireAuth, requireActive)
	ng.Get("/", notifications.HandleList)
	ng.Get("/unread-count", notifications.HandleUnreadCount)
	ng.Post("/read-all", notifications.HandleMarkAllRead)
	ng.Post("/:id/read", notifications.HandleMarkRead)
	ng.Post("/:id/unread", notifications.HandleMarkUnread)
	ng.Delete("/:id", notifications.HandleDelete)

	rg := api.Group("/reports", requireAuth, requireActive)
	rg.Get("/", notifications.HandleListReports)
	rg.Get("/:period", notifications.HandleGetReport)

	h.registerMarketingRoutes(api.Group("/marketing", requireAuth, requireActive))
	h.registerReviewRoutes(api.Group("/reviews", requireAuth, requireActive))
	h.registerGuaranteeRoutes(api.Group("/guarantee", requireAuth, requireActive))
}

func (h ApiRouter) registerMarketingRoutes(g fiber.Router) {
	mc := controllers.NewMarketingController(h.deps)

	g.Get("/contacts", mc.HandleListContacts)
	g.Post("/contacts", mc.HandleCreateContact)
	g.Post("/contacts/bulk", mc.HandleBulkCreateContacts)
	g.Get("/contacts/:id", mc.HandleGetContact)
	g.Put("/contacts/:id", mc.HandleUpdateContact)
	g.Delete("/contacts/:id", mc.HandleDeleteContact)

	g.Get("/segments", mc.HandleListSegments)
	g.Post("/segments", mc.HandleCreateSegment)
	g.Put("/segments/:id", mc.HandleUpdateSegment)
	g.Delete("/segments/:id", mc.HandleDeleteSegment)
	g.Get("/segments/:id/preview", mc.HandleSegmentPreview)

	g.Get("/campaigns", mc.HandleListCampaigns)
	g.Post("/campaigns", mc.HandleCreateCampaign)
	g.Get("/campaigns/:id", mc.HandleGetCampaign)
	g.Put("/campaigns/:id", mc.HandleUpdateCampaign)
	g.Delete("/campaigns/:id", mc.HandleDeleteCampaign)
	g.Post("/campaigns/:id/schedule", mc.HandleScheduleCampaign)
	g.Post("/campaigns/:id/send", mc.HandleSendCampaign)
	g.Get("/campaigns/:id/stats", mc.HandleCampaignStats)
}

func (h ApiRouter) registerReviewRoutes(g fiber.Router) {
	rc := controllers.NewReviewController(h.deps)

	g.Get("/config", rc.HandleGetConfig)
	g.Put("/config", rc.HandleSaveConfig)

	g.Get("/incentives", rc.HandleListIncentives)
	g.Post("/incentives", rc.HandleCreateIncentive)
	g.Put("/incentives/:id", rc.HandleUpdateIncentive)
	g.Delete("/incentives/:id", rc.HandleDeleteIncentive)

	g.Get("/sources", rc.HandleListSources)
	g.Post("/sources", rc.HandleCreateSource)
	g.Put("/sources/:id", rc.HandleUpdateSource)
	g.Delete("/sources/:id", rc.HandleDeleteSource)
	g.Post("/sources/:id/sync", rc.HandleSyncSource)
	g.Get("/sync-logs", rc.HandleListSyncLogs)

	g.Get("/", rc.HandleListReviews)
	g.Get("/stats", rc.HandleStats)
	g.Post("/:id/respond", rc.HandleRespond)

	g.Get("/alerts", rc.HandleListAlerts)
	g.Post("/alerts/:id/read", rc.HandleMarkAlertRead)

	g.Get("/requests", rc.HandleListRequests)
	g.Post("/requests", rc.HandleCreateRequest)
	g.Post("/requests/:id/send", rc.HandleSendRequest)
	g.Get("/requests/:id/qrcode", rc.HandleQRCode)
}

func (h ApiRouter) registerGuaranteeRoutes(g fiber.Router) {
	gc := controllers.NewGuaranteeController(h.deps)

	g.Get("/stats", gc.HandleStats)
	g.Get("/sessions", gc.HandleListSessions)
	g.Post("/sessions", gc.HandleCreateSession)
	g.Get("/sessions/:id", gc.HandleGetSession)
	g.Put("/sessions/:id", gc.HandleUpdateSession)
	g.Delete("/sessions/:id", gc.HandleDeleteSession)
	g.Post("/sessions/:id/setup-card", gc.HandleSetupCard)
	g.Post("/sessions/:id/card", gc.HandleAttachCard)
	g.Post("/sessions/:id/status", gc.HandleTransition)
	g.Post("/sessions/:id/charge", gc.HandleCharge)
}

func NewApiRouter(deps *controllers.Deps) *ApiRouter {
	return &ApiRouter{deps: deps}
}
