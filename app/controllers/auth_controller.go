package controllers

import (
	"context"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/speedai/speedai/app/models"
	"github.com/speedai/speedai/internal/pkg/apierror"
	"github.com/speedai/speedai/internal/pkg/constants"
	"github.com/speedai/speedai/internal/pkg/entitlements"
	"github.com/speedai/speedai/internal/pkg/flash"
	"github.com/speedai/speedai/internal/pkg/mail"
	"github.com/speedai/speedai/internal/pkg/session"
	"github.com/speedai/speedai/internal/pkg/usercontext"
	"github.com/speedai/speedai/internal/pkg/utils"
)

// AuthController handles signup, login and the token based email flows.
type AuthController struct {
	*Deps
}

func NewAuthController(deps *Deps) *AuthController {
	return &AuthController{Deps: deps}
}

type signupRequest struct {
	Email        string `json:"email" form:"email" validate:"required,email,max=200"`
	Password     string `json:"password" form:"password" validate:"required,min=8,max=72"`
	FirstName    string `json:"firstName" form:"firstName" validate:"max=100"`
	LastName     string `json:"lastName" form:"lastName" validate:"max=100"`
	CompanyName  string `json:"companyName" form:"companyName" validate:"max=200"`
	Phone        string `json:"phone" form:"phone" validate:"max=30"`
	CaptchaToken string `json:"captchaToken" form:"h-captcha-response"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type emailRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type resetPasswordRequest struct {
	Token    string `json:"token" form:"token" validate:"required"`
	Password string `json:"password" form:"password" validate:"required,min=8,max=72"`
}

// userResponse is the account as the front-end sees it.
func userResponse(u *models.User, d *Deps) fiber.Map {
	now := d.now()
	return fiber.Map{
		"user":          u,
		"accountStatus": u.EffectiveAccountStatus(now),
		"trialDaysLeft": entitlements.TrialDaysLeft(u, now),
		"hasApiKey":     u.HasAPIKey(),
		"avatarUrl":     utils.AvatarURL(u.Email, 0),
	}
}

// HandleSignup creates a trial account and sends the verification email.
func (ac *AuthController) HandleSignup(c *fiber.Ctx) error {
	var req signupRequest
	if err := bindJSON(c, &req); err != nil {
		return apierror.Respond(c, err)
	}

	if ac.Captcha != nil && ac.Captcha.Enabled() {
		if err := ac.Captcha.Verify(req.CaptchaToken); err != nil {
			zap.L().Info("signup captcha rejected", zap.Error(err))
			return apierror.Write(c, fiber.StatusBadRequest, "captcha_failed", "Vérification anti-robot échouée")
		}
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if _, err := ac.Repos.User.GetByEmail(email); err == nil {
		return apierror.Write(c, fiber.StatusConflict, "email_taken", "Cette adresse email est déjà utilisée")
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return apierror.Respond(c, err)
	}

	user, err := models.NewUser(email, req.Password, req.FirstName, req.LastName, req.CompanyName)
	if err != nil {
		return apierror.Respond(c, err)
	}
	user.Phone = strings.TrimSpace(req.Phone)
	if err := user.GenerateVerificationToken(); err != nil {
		return apierror.Respond(c, err)
	}
	if err := ac.Repos.User.Create(user); err != nil {
		return apierror.Respond(c, err)
	}

	ac.sendVerification(c.UserContext(), user)

	if err := session.Login(c, user.ID, user.Email, user.IsAdmin()); err != nil {
		zap.L().Error("signup session failed", zap.Uint("user_id", user.ID), zap.Error(err))
		return apierror.Write(c, fiber.StatusInternalServerError, apierror.CodeInternal, "Erreur de connexion")
	}
	return c.Status(fiber.StatusCreated).JSON(userResponse(user, ac.Deps))
}

// HandleLogin checks the credentials and starts a session.
func (ac *AuthController) HandleLogin(c *fiber.Ctx) error {
	var req loginRequest
	if err := bindJSON(c, &req); err != nil {
		return apierror.Respond(c, err)
	}

	user, err := ac.Repos.User.GetByEmail(strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return apierror.Respond(c, err)
	}
	if user == nil || !user.CheckPassword(req.Password) {
		return apierror.Write(c, fiber.StatusUnauthorized, "invalid_credentials", "Email ou mot de passe incorrect")
	}

	if err := session.Login(c, user.ID, user.Email, user.IsAdmin()); err != nil {
		zap.L().Error("login session failed", zap.Uint("user_id", user.ID), zap.Error(err))
		return apierror.Write(c, fiber.StatusInternalServerError, apierror.CodeInternal, "Erreur de connexion")
	}
	if err := ac.Repos.User.UpdateFields(user.ID, map[string]interface{}{"last_login_at": ac.now()}); err != nil {
		zap.L().Warn("update last login failed", zap.Uint("user_id", user.ID), zap.Error(err))
	}
	return c.JSON(userResponse(user, ac.Deps))
}

func (ac *AuthController) HandleLogout(c *fiber.Ctx) error {
	if err := session.Logout(c); err != nil {
		zap.L().Warn("logout failed", zap.Error(err))
	}
	return c.JSON(fiber.Map{"message": "Déconnecté"})
}

// HandleMe returns the session user, including suspended and expired accounts.
func (ac *AuthController) HandleMe(c *fiber.Ctx) error {
	user := usercontext.User(c)
	if user == nil {
		return apierror.Unauthorized(c)
	}
	return c.JSON(userResponse(user, ac.Deps))
}

// HandleVerifyEmail confirms the address behind a verification token.
func (ac *AuthController) HandleVerifyEmail(c *fiber.Ctx) error {
	token := c.Query("token")
	if token == "" {
		var body struct {
			Token string `json:"token"`
		}
		_ = c.BodyParser(&body)
		token = body.Token
	}
	if _, err := ac.verify(token); err != nil {
		return apierror.Respond(c, err)
	}
	return c.JSON(fiber.Map{"message": "Email confirmé"})
}

var errInvalidToken = apierror.BadRequest("invalid_token", "Lien invalide ou expiré")

func (ac *AuthController) verify(token string) (*models.User, error) {
	if token == "" {
		return nil, errInvalidToken
	}
	user, err := ac.Repos.User.GetByVerificationToken(token)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errInvalidToken
	}
	if err != nil {
		return nil, err
	}
	if !user.IsVerificationTokenValid(token, ac.now()) {
		return nil, errInvalidToken
	}
	user.MarkVerified()
	if err := ac.Repos.User.Update(user); err != nil {
		return nil, err
	}
	return user, nil
}

// HandleVerifyEmailPage is the landing page of the verification link.
func (ac *AuthController) HandleVerifyEmailPage(c *fiber.Ctx) error {
	_, err := ac.verify(c.Query("token"))
	var bre *apierror.BadRequestError
	if err != nil && !errors.As(err, &bre) {
		zap.L().Error("email verification failed", zap.Error(err))
	}
	return c.Render("verify_email", fiber.Map{
		"Title":    "Confirmation de l'email",
		"Success":  err == nil,
		"LoginURL": ac.BaseURL + constants.FrontendLoginPath,
	}, "layouts/main")
}

// HandleResendVerification issues a fresh token for the session user.
func (ac *AuthController) HandleResendVerification(c *fiber.Ctx) error {
	user := usercontext.User(c)
	if user == nil {
		return apierror.Unauthorized(c)
	}
	if user.IsVerified {
		return apierror.Write(c, fiber.StatusBadRequest, "already_verified", "Email déjà confirmé")
	}
	if err := user.GenerateVerificationToken(); err != nil {
		return apierror.Respond(c, err)
	}
	if err := ac.Repos.User.Update(user); err != nil {
		return apierror.Respond(c, err)
	}
	ac.sendVerification(c.UserContext(), user)
	return c.JSON(fiber.Map{"message": "Email de confirmation envoyé"})
}

// HandleForgotPassword always answers 200 so the endpoint cannot be used to
// probe for accounts.
func (ac *AuthController) HandleForgotPassword(c *fiber.Ctx) error {
	var req emailRequest
	if err := bindJSON(c, &req); err != nil {
		return apierror.Respond(c, err)
	}
	ok := func() error {
		return c.JSON(fiber.Map{"message": "Si un compte existe, un email de réinitialisation a été envoyé"})
	}

	user, err := ac.Repos.User.GetByEmail(strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			zap.L().Error("forgot password lookup failed", zap.Error(err))
		}
		return ok()
	}
	if err := user.GenerateResetToken(); err != nil {
		zap.L().Error("reset token generation failed", zap.Error(err))
		return ok()
	}
	if err := ac.Repos.User.Update(user); err != nil {
		zap.L().Error("reset token save failed", zap.Uint("user_id", user.ID), zap.Error(err))
		return ok()
	}
	ac.sendTemplate(c.UserContext(), user.Email, mail.TemplateResetPassword, map[string]interface{}{
		"Name": user.DisplayName(),
		"Link": ac.BaseURL + constants.ResetPasswordRoute + "?token=" + user.ResetToken,
	})
	return ok()
}

func (ac *AuthController) resetPassword(req resetPasswordRequest) error {
	if err := validate.Struct(req); err != nil {
		return err
	}
	user, err := ac.Repos.User.GetByResetToken(req.Token)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errInvalidToken
	}
	if err != nil {
		return err
	}
	if !user.IsResetTokenValid(req.Token, ac.now()) {
		return errInvalidToken
	}
	if err := user.SetPassword(req.Password); err != nil {
		return err
	}
	user.ClearResetToken()
	return ac.Repos.User.Update(user)
}

// HandleResetPassword sets the new password of a reset token (JSON API).
func (ac *AuthController) HandleResetPassword(c *fiber.Ctx) error {
	var req resetPasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return apierror.Respond(c, apierror.BadRequest("invalid_body", "Corps de requête invalide"))
	}
	if err := ac.resetPassword(req); err != nil {
		return apierror.Respond(c, err)
	}
	return c.JSON(fiber.Map{"message": "Mot de passe mis à jour"})
}

// HandleResetPasswordPage renders the reset form.
func (ac *AuthController) HandleResetPasswordPage(c *fiber.Ctx) error {
	return c.Render("reset_password", fiber.Map{
		"Title": "Nouveau mot de passe",
		"Token": c.Query("token"),
		"Flash": flash.Get(c),
		"Csrf":  c.Locals("csrf"),
	}, "layouts/main")
}

// HandleResetPasswordForm processes the server-rendered reset form.
func (ac *AuthController) HandleResetPasswordForm(c *fiber.Ctx) error {
	req := resetPasswordRequest{Token: c.FormValue("token"), Password: c.FormValue("password")}
	back := constants.ResetPasswordRoute + "?token=" + req.Token
	if req.Password != c.FormValue("password_confirmation") {
		return flash.Error(c, back, "Les mots de passe ne correspondent pas")
	}
	err := ac.resetPassword(req)
	if err == nil {
		return flash.Success(c, ac.BaseURL+constants.FrontendLoginPath, "Mot de passe mis à jour")
	}
	if errors.Is(err, errInvalidToken) {
		return flash.Error(c, back, "Lien invalide ou expiré")
	}
	var bre *apierror.BadRequestError
	if errors.As(err, &bre) {
		return flash.Error(c, back, bre.Message)
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		return flash.Error(c, back, "Le mot de passe doit contenir au moins 8 caractères")
	}
	zap.L().Error("password reset failed", zap.Error(err))
	return flash.Error(c, back, apierror.MsgInternal)
}

func (ac *AuthController) sendVerification(ctx context.Context, user *models.User) {
	ac.sendTemplate(ctx, user.Email, mail.TemplateVerification, map[string]interface{}{
		"Name": user.DisplayName(),
		"Link": ac.BaseURL + constants.VerifyEmailRoute + "?token=" + user.VerificationToken,
	})
}

// sendTemplate renders and sends a transactional email. Failures are logged;
// the request that triggered the email still succeeds.
func (d *Deps) sendTemplate(ctx context.Context, to, name string, data map[string]interface{}) {
	if d.Mail == nil || d.Templates == nil {
		zap.L().Warn("mail not configured, email skipped", zap.String("template", name))
		return
	}
	subject, body, err := d.Templates.Render(name, data)
	if err != nil {
		zap.L().Error("email render failed", zap.String("template", name), zap.Error(err))
		return
	}
	if _, err := d.Mail.Send(ctx, mail.Message{To: to, Subject: subject, HTML: body}); err != nil {
		zap.L().Warn("email send failed", zap.String("template", name), zap.Error(err))
	}
}
