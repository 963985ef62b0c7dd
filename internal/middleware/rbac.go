package middleware

import (
	"context"

	"lead-routing/internal/common/models"

	"github.com/gofiber/fiber/v2"
)

// AppAccessChecker decides whether a caller may use the routing app at all.
type AppAccessChecker interface {
	HasAppAccess(ctx context.Context, caller models.Caller) (bool, error)
}

// RequireAppAccess gates a route group on AppAccessChecker.
func RequireAppAccess(checker AppAccessChecker) fiber.Handler {
	return func(c *fiber.Ctx) error {
		caller, ok := CallerOf(c)
		if !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Unauthorized",
			})
		}

		allowed, err := checker.HasAppAccess(c.UserContext(), caller)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Internal Server Error",
			})
		}

		if !allowed {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "Forbidden: no access to lead routing",
			})
		}

		return c.Next()
	}
}
