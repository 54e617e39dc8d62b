package middleware

import (
	"github.com/gofiber/fiber/v2"
)

// Identity resolves the calling user from request headers and stores it in
// request locals. Real authentication lives in the hosted auth provider the
// mobile client talks to; this boundary only carries its result.
func Identity() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Get("X-User-ID")
		profileID := c.Get("X-Poo-Profile")

		if userID == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Authentication required",
			})
		}

		c.Locals("user_id", userID)
		c.Locals("profile_id", profileID)
		return c.Next()
	}
}
