package system

import (
	"lead-routing/internal/config"
	"lead-routing/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

type SystemApi struct {
	controller *SystemController
	config     *config.Config
}

func NewSystemApi(controller *SystemController, cfg *config.Config) *SystemApi {
	return &SystemApi{
		controller: controller,
		config:     cfg,
	}
}

// Setup registers health and debug routes
func (h *SystemApi) Setup(app *fiber.App) {
	app.Get("/api/health", h.controller.Health)

	debug := app.Group("/api/debug", middleware.AuthMiddleware(h.config.SkipAuth))
	debug.Get("/me", h.controller.GetCurrentUser)
}
