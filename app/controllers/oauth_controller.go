package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	gothfiber "github.com/shareed2k/goth_fiber"
	"go.uber.org/zap"

	"github.com/speedai/speedai/internal/pkg/constants"
	"github.com/speedai/speedai/internal/pkg/oauth"
	"github.com/speedai/speedai/internal/pkg/session"
)

// OAuthController completes the social sign-in flow.
type OAuthController struct {
	*Deps
}

func NewOAuthController(deps *Deps) *OAuthController {
	return &OAuthController{Deps: deps}
}

// HandleCallback completes the provider flow, logs the user in and sends the
// browser back to the dashboard, or to the login page with an error code.
func (oc *OAuthController) HandleCallback(c *fiber.Ctx) error {
	fail := func(code string) error {
		return c.Redirect(oc.BaseURL+constants.FrontendLoginPath+"?error="+code, fiber.StatusSeeOther)
	}

	gu, err := gothfiber.CompleteUserAuth(c)
	if err != nil {
		zap.L().Warn("oauth completion failed", zap.String("provider", c.Params("provider")), zap.Error(err))
		return fail("oauth_failed")
	}

	user, created, err := oauth.ResolveUser(oc.Repos.User, gu)
	if errors.Is(err, oauth.ErrMissingEmail) {
		return fail("oauth_email_missing")
	}
	if err != nil {
		zap.L().Error("oauth user resolution failed", zap.String("provider", gu.Provider), zap.Error(err))
		return fail("oauth_failed")
	}

	if err := session.Login(c, user.ID, user.Email, user.IsAdmin()); err != nil {
		zap.L().Error("oauth session failed", zap.Uint("user_id", user.ID), zap.Error(err))
		return fail("session_failed")
	}
	zap.L().Info("oauth login",
		zap.Uint("user_id", user.ID),
		zap.String("provider", gu.Provider),
		zap.Bool("created", created))
	return c.Redirect(oc.BaseURL+constants.FrontendDashboardPath, fiber.StatusSeeOther)
}
