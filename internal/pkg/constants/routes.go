package constants

// Public server-rendered routes, also used to build links in emails.
const (
	VerifyEmailRoute   = "/verify-email"
	ResetPasswordRoute = "/reset-password"
	UnsubscribeRoute   = "/unsubscribe"
	ReviewLinkRoute    = "/r"
	StripeWebhookRoute = "/webhooks/stripe"
	// Front-end pages the public routes redirect to.
	FrontendLoginPath     = "/login"
	FrontendDashboardPath = "/dashboard"
)
