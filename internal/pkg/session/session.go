package session

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/session"
	"github.com/gofiber/storage/redis"

	"github.com/speedai/speedai/internal/pkg/cache"
	"github.com/speedai/speedai/internal/pkg/env"
	"github.com/speedai/speedai/internal/pkg/usercontext"
)

const (
	CookieName = "speedai_session"
	Expiration = 7 * 24 * time.Hour
)

var sessionStore *session.Store

// NewSessionStore creates the Redis backed session store (DB 1, the cache
// uses DB 0) and installs it as the global store.
func NewSessionStore() *session.Store {
	sessionStore = NewStore(RedisStorage(1))
	return sessionStore
}

// NewStore builds a session store on storage. A nil storage keeps sessions in memory.
func NewStore(storage fiber.Storage) *session.Store {
	return session.New(session.Config{
		Storage:        storage,
		CookieHTTPOnly: true,
		CookieSecure:   !env.IsDev(),
		CookieSameSite: "Lax",
		Expiration:     Expiration,
		KeyLookup:      "cookie:" + CookieName,
	})
}

// RedisStorage returns fiber storage on database db of the cache server.
func RedisStorage(db int) fiber.Storage {
	// Get Redis client configuration from existing cache setup
	host := env.GetEnv("CACHE_HOST", "localhost")
	port, _ := strconv.Atoi(env.GetEnv("CACHE_PORT", "6379"))
	password := env.GetEnv("CACHE_PASSWORD", "")
	if cacheClient := cache.GetClient(); cacheClient != nil {
		if h, p, err := net.SplitHostPort(cacheClient.Options().Addr); err == nil {
			host = h
			if v, err := strconv.Atoi(p); err == nil {
				port = v
			}
		}
		// Prefer password from the underlying client if present
		if p := cacheClient.Options().Password; p != "" {
			password = p
		}
	}

	return redis.New(redis.Config{
		Host:     host,
		Port:     port,
		Password: password,
		Database: db,
		Reset:    false,
	})
}

func GetSessionStore() *session.Store {
	return sessionStore
}

// SetSessionStore replaces the global store (tests).
func SetSessionStore(store *session.Store) {
	sessionStore = store
}

// Login starts a fresh session for the user.
func Login(c *fiber.Ctx, userID uint, email string, isAdmin bool) error {
	if sessionStore == nil {
		return fmt.Errorf("session store not initialized")
	}
	sess, err := sessionStore.Get(c)
	if err != nil {
		return fmt.Errorf("failed to get session: %w", err)
	}
	if err := sess.Regenerate(); err != nil {
		return fmt.Errorf("failed to regenerate session: %w", err)
	}
	sess.Set(usercontext.KeyUserID, userID)
	sess.Set(usercontext.KeyEmail, email)
	sess.Set(usercontext.KeyIsAdmin, isAdmin)
	return sess.Save()
}

// Logout destroys the current session.
func Logout(c *fiber.Ctx) error {
	if sessionStore == nil {
		return nil
	}
	sess, err := sessionStore.Get(c)
	if err != nil {
		return err
	}
	return sess.Destroy()
}

// SetSessionValue stores a key-value pair in the user's individual session
func SetSessionValue(c *fiber.Ctx, key string, value string) error {
	if sessionStore == nil {
		return fmt.Errorf("session store not initialized")
	}

	sess, err := sessionStore.Get(c)
	if err != nil {
		return fmt.Errorf("failed to get session: %v", err)
	}

	sess.Set(key, value)
	return sess.Save()
}

// GetSessionValue retrieves a value by key from the user's individual session
func GetSessionValue(c *fiber.Ctx, key string) string {
	if sessionStore == nil {
		return ""
	}

	sess, err := sessionStore.Get(c)
	if err != nil {
		return ""
	}

	if strValue, ok := sess.Get(key).(string); ok {
		return strValue
	}
	return ""
}
