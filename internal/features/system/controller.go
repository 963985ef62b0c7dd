package system

import (
	"context"
	"time"

	"lead-routing/internal/common/models"
	"lead-routing/internal/database"
	"lead-routing/internal/features/access"
	"lead-routing/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type AccessReporter interface {
	IsAdmin(caller models.Caller) bool
	HasAppAccess(ctx context.Context, caller models.Caller) (bool, error)
}

type SystemController struct {
	DB     Pinger
	Access AccessReporter
}

func NewSystemController(db *database.MongodbDB, accessService access.AccessService) *SystemController {
	return &SystemController{
		DB:     db,
		Access: accessService,
	}
}

// Health reports whether the database answers within two seconds.
func (c *SystemController) Health(ctx *fiber.Ctx) error {
	pingCtx, cancel := context.WithTimeout(ctx.UserContext(), 2*time.Second)
	defer cancel()

	if err := c.DB.Ping(pingCtx); err != nil {
		return ctx.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "unavailable",
			"error":  err.Error(),
		})
	}
	return ctx.JSON(fiber.Map{"status": "ok"})
}

// GetCurrentUser echoes the caller decoded from the JWT and what the routing app grants them.
func (c *SystemController) GetCurrentUser(ctx *fiber.Ctx) error {
	caller, ok := middleware.CallerOf(ctx)
	if !ok {
		return fiber.ErrUnauthorized
	}

	appAccess, err := c.Access.HasAppAccess(ctx.UserContext(), caller)
	if err != nil {
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	return ctx.JSON(fiber.Map{
		"user_id":    caller.UserID,
		"roles":      caller.Roles,
		"is_admin":   c.Access.IsAdmin(caller),
		"app_access": appAccess,
	})
}
