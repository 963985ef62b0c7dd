package user

import (
	"lead-routing/internal/config"
	"lead-routing/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

type UserApi struct {
	controller *UserController
	config     *config.Config
}

func NewUserApi(controller *UserController, config *config.Config) *UserApi {
	return &UserApi{
		controller: controller,
		config:     config,
	}
}

// Setup registers the directory lookups
func (h *UserApi) Setup(app *fiber.App) {
	users := app.Group("/api/routing/users", middleware.AuthMiddleware(h.config.SkipAuth))

	users.Get("/", h.controller.ListByRole)
	users.Get("/:id", h.controller.GetUser)
}
