package middleware

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/speedai/speedai/app/repository"
	"github.com/speedai/speedai/internal/pkg/apierror"
	"github.com/speedai/speedai/internal/pkg/entitlements"
	"github.com/speedai/speedai/internal/pkg/usercontext"
)

// RequireAuth ensures a logged-in session and loads the user row. A session
// pointing at a deleted user counts as logged out.
func RequireAuth(users repository.UserRepository) fiber.Handler {
	return func(c *fiber.Ctx) error {
		uc := usercontext.GetUserContext(c)
		if !uc.IsLoggedIn {
			return apierror.Unauthorized(c)
		}
		user, err := users.GetByID(uc.UserID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apierror.Unauthorized(c)
			}
			zap.L().Error("load session user failed", zap.Uint("user_id", uc.UserID), zap.Error(err))
			return apierror.Write(c, fiber.StatusInternalServerError, apierror.CodeInternal, "Erreur de connexion")
		}
		// The role may have changed since login.
		uc.IsAdmin = user.IsAdmin()
		usercontext.Set(c, uc)
		usercontext.SetUser(c, user)
		return c.Next()
	}
}

// RequireActiveAccount rejects suspended and expired accounts. It runs after
// RequireAuth or APIKeyAuth.
func RequireActiveAccount(now func() time.Time) fiber.Handler {
	if now == nil {
		now = time.Now
	}
	return func(c *fiber.Ctx) error {
		user := usercontext.User(c)
		if user == nil {
			return apierror.Unauthorized(c)
		}
		if err := entitlements.CheckAccess(user, now()); err != nil {
			return apierror.Write(c, fiber.StatusForbidden, entitlements.Code(err), entitlements.Message(err))
		}
		return c.Next()
	}
}

// RequireAdmin ensures a logged-in admin. It runs after RequireAuth.
func RequireAdmin(c *fiber.Ctx) error {
	uc := usercontext.GetUserContext(c)
	if !uc.IsLoggedIn {
		return apierror.Unauthorized(c)
	}
	if !uc.IsAdmin {
		return apierror.Forbidden(c)
	}
	return c.Next()
}
