package middleware

import (
	"github.com/gofiber/fiber/v2"
)

// RequireAnyRole rejects callers holding none of roles. Must run after AuthMiddleware.
func RequireAnyRole(roles []string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		caller, ok := CallerOf(c)
		if !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Unauthorized",
			})
		}

		if !caller.HasAnyRole(roles) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "Access denied: Admin role required",
			})
		}

		return c.Next()
	}
}
