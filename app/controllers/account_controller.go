package controllers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/speedai/speedai/internal/pkg/apierror"
	"github.com/speedai/speedai/internal/pkg/session"
	"github.com/speedai/speedai/internal/pkg/usercontext"
)

// AccountController manages the profile, password and API key of the session user.
type AccountController struct {
	*Deps
}

func NewAccountController(deps *Deps) *AccountController {
	return &AccountController{Deps: deps}
}

type profileRequest struct {
	FirstName   *string `json:"firstName" validate:"omitempty,max=100"`
	LastName    *string `json:"lastName" validate:"omitempty,max=100"`
	CompanyName *string `json:"companyName" validate:"omitempty,max=200"`
	Phone       *string `json:"phone" validate:"omitempty,max=30"`
}

type passwordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,min=8,max=72"`
}

type deleteAccountRequest struct {
	Password string `json:"password"`
}

func trimPtr(s *string) string {
	return strings.TrimSpace(*s)
}

// HandleUpdateProfile applies the fields present in the body.
func (ac *AccountController) HandleUpdateProfile(c *fiber.Ctx) error {
	user := usercontext.User(c)
	var req profileRequest
	if err := bindJSON(c, &req); err != nil {
		return apierror.Respond(c, err)
	}
	if req.FirstName != nil {
		user.FirstName = trimPtr(req.FirstName)
	}
	if req.LastName != nil {
		user.LastName = trimPtr(req.LastName)
	}
	if req.CompanyName != nil {
		user.CompanyName = trimPtr(req.CompanyName)
	}
	if req.Phone != nil {
		user.Phone = trimPtr(req.Phone)
	}
	if err := ac.Repos.User.Update(user); err != nil {
		return apierror.Respond(c, err)
	}
	return c.JSON(userResponse(user, ac.Deps))
}

func (ac *AccountController) HandleChangePassword(c *fiber.Ctx) error {
	user := usercontext.User(c)
	var req passwordRequest
	if err := bindJSON(c, &req); err != nil {
		return apierror.Respond(c, err)
	}
	if !user.CheckPassword(req.CurrentPassword) {
		return apierror.Write(c, fiber.StatusBadRequest, "invalid_password", "Mot de passe actuel incorrect")
	}
	if err := user.SetPassword(req.NewPassword); err != nil {
		return apierror.Respond(c, err)
	}
	user.ClearResetToken()
	if err := ac.Repos.User.Update(user); err != nil {
		return apierror.Respond(c, err)
	}
	return c.JSON(fiber.Map{"message": "Mot de passe mis à jour"})
}

// HandleDeleteAccount removes the account and every row it owns. Accounts
// with a password must confirm it.
func (ac *AccountController) HandleDeleteAccount(c *fiber.Ctx) error {
	user := usercontext.User(c)
	var req deleteAccountRequest
	_ = c.BodyParser(&req)
	if user.Password != "" && !user.CheckPassword(req.Password) {
		return apierror.Write(c, fiber.StatusBadRequest, "invalid_password", "Mot de passe incorrect")
	}
	if err := ac.Repos.User.Delete(user.ID); err != nil {
		return apierror.Respond(c, err)
	}
	if err := session.Logout(c); err != nil {
		zap.L().Warn("logout after account deletion failed", zap.Error(err))
	}
	zap.L().Info("account deleted", zap.Uint("user_id", user.ID))
	return noContent(c)
}

// HandleAPIKeyStatus reports whether a key is issued, never the key itself.
func (ac *AccountController) HandleAPIKeyStatus(c *fiber.Ctx) error {
	user := usercontext.User(c)
	return c.JSON(fiber.Map{
		"hasApiKey":  user.HasAPIKey(),
		"prefix":     user.APIKeyPrefix,
		"createdAt":  user.APIKeyCreatedAt,
		"lastUsedAt": user.APIKeyLastUsedAt,
	})
}

// HandleIssueAPIKey replaces the key and returns the plaintext once.
func (ac *AccountController) HandleIssueAPIKey(c *fiber.Ctx) error {
	user := usercontext.User(c)
	key, err := user.IssueAPIKey()
	if err != nil {
		return apierror.Respond(c, err)
	}
	if err := ac.Repos.User.Update(user); err != nil {
		return apierror.Respond(c, err)
	}
	zap.L().Info("api key issued", zap.Uint("user_id", user.ID), zap.String("prefix", user.APIKeyPrefix))
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"apiKey":    key,
		"prefix":    user.APIKeyPrefix,
		"createdAt": user.APIKeyCreatedAt,
		"message":   "Copiez cette clé maintenant, elle ne sera plus affichée",
	})
}

func (ac *AccountController) HandleRevokeAPIKey(c *fiber.Ctx) error {
	user := usercontext.User(c)
	if !user.HasAPIKey() {
		return apierror.NotFound(c)
	}
	user.RevokeAPIKey()
	if err := ac.Repos.User.Update(user); err != nil {
		return apierror.Respond(c, err)
	}
	return noContent(c)
}
