package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/session"

	"github.com/speedai/speedai/internal/pkg/usercontext"
)

// UserContextMiddleware loads the session identity into the request context.
// It never rejects a request; RequireAuth does.
func UserContextMiddleware(store *session.Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		// Goth keeps its own session store on the OAuth routes.
		if strings.HasPrefix(c.Path(), "/auth/") || store == nil {
			return c.Next()
		}

		sess, err := store.Get(c)
		if err != nil {
			usercontext.Set(c, usercontext.UserContext{})
			return c.Next()
		}

		userID, ok := sess.Get(usercontext.KeyUserID).(uint)
		if !ok || userID == 0 {
			usercontext.Set(c, usercontext.UserContext{})
			return c.Next()
		}

		email, _ := sess.Get(usercontext.KeyEmail).(string)
		isAdmin, _ := sess.Get(usercontext.KeyIsAdmin).(bool)
		usercontext.Set(c, usercontext.UserContext{
			UserID:     userID,
			Email:      email,
			IsLoggedIn: true,
			IsAdmin:    isAdmin,
		})
		return c.Next()
	}
}
