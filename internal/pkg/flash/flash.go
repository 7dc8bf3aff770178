// Package flash carries one-shot messages across the redirect of the
// server-rendered forms.
package flash

import (
	"github.com/gofiber/fiber/v2"
	sflash "github.com/sujit-baniya/flash"
)

// Flash message key in the view data
const FlashKey = "flash"

// Error redirects to path with an error message.
func Error(c *fiber.Ctx, path, message string) error {
	return sflash.WithError(c, fiber.Map{"type": "error", "message": message}).Redirect(path)
}

// Success redirects to path with an informational message.
func Success(c *fiber.Ctx, path, message string) error {
	return sflash.WithSuccess(c, fiber.Map{"type": "success", "message": message}).Redirect(path)
}

// Get returns the message carried by the current request, or nil.
func Get(c *fiber.Ctx) fiber.Map {
	data := sflash.Get(c)
	if len(data) == 0 {
		return nil
	}
	return data
}
