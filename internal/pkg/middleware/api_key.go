package middleware

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/speedai/speedai/app/models"
	"github.com/speedai/speedai/app/repository"
	"github.com/speedai/speedai/internal/pkg/apierror"
	"github.com/speedai/speedai/internal/pkg/apikey"
	"github.com/speedai/speedai/internal/pkg/usercontext"
)

// APIKeyAuth authenticates requests carrying "Authorization: Bearer <key>".
// The key format is checked first, then candidates sharing the lookup prefix
// are compared against their bcrypt hash.
func APIKeyAuth(users repository.UserRepository) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := extractAPIKeyFromHeader(c)
		if key == "" {
			return apierror.Write(c, fiber.StatusUnauthorized, apierror.CodeUnauthorized, "Clé API manquante")
		}
		if !apikey.IsValidFormat(key) {
			return apierror.Write(c, fiber.StatusUnauthorized, "invalid_api_key", "Clé API invalide")
		}

		candidates, err := users.GetByAPIKeyPrefix(apikey.LookupPrefix(key))
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			zap.L().Error("api key lookup failed", zap.Error(err))
			return apierror.Write(c, fiber.StatusInternalServerError, apierror.CodeInternal, "Erreur de connexion")
		}

		var user *models.User
		for i := range candidates {
			if candidates[i].MatchesAPIKey(key) {
				user = &candidates[i]
				break
			}
		}
		if user == nil {
			return apierror.Write(c, fiber.StatusUnauthorized, "invalid_api_key", "Clé API invalide")
		}

		if err := users.TouchAPIKey(user.ID, time.Now()); err != nil {
			zap.L().Warn("api key usage timestamp not updated", zap.Uint("user_id", user.ID), zap.Error(err))
		}

		usercontext.Set(c, usercontext.UserContext{
			UserID:     user.ID,
			Email:      user.Email,
			IsLoggedIn: true,
			IsAdmin:    user.IsAdmin(),
			ViaAPIKey:  true,
		})
		usercontext.SetUser(c, user)
		return c.Next()
	}
}

func extractAPIKeyFromHeader(c *fiber.Ctx) string {
	auth := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}
