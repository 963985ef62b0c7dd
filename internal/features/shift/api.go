package shift

import (
	"lead-routing/internal/config"
	"lead-routing/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

type ShiftApi struct {
	controller *ShiftController
	config     *config.Config
}

func NewShiftApi(controller *ShiftController, config *config.Config) *ShiftApi {
	return &ShiftApi{
		controller: controller,
		config:     config,
	}
}

func (h *ShiftApi) Setup(app *fiber.App) {
	shifts := app.Group("/api/routing/shifts", middleware.AuthMiddleware(h.config.SkipAuth))
	admin := middleware.RequireAnyRole(h.config.Routing.AdminRoles)

	shifts.Get("/resolve", h.controller.ResolveShift)
	shifts.Get("/", h.controller.ListShifts)
	shifts.Get("/:id", h.controller.GetShift)
	shifts.Post("/", admin, h.controller.CreateShift)
	shifts.Put("/:id", admin, h.controller.UpdateShift)
	shifts.Delete("/:id", admin, h.controller.DeleteShift)
}
