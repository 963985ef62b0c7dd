package pipeline

import (
	"lead-routing/internal/config"
	"lead-routing/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

type PipelineApi struct {
	controller *PipelineController
	config     *config.Config
}

func NewPipelineApi(controller *PipelineController, config *config.Config) *PipelineApi {
	return &PipelineApi{
		controller: controller,
		config:     config,
	}
}

func (h *PipelineApi) Setup(app *fiber.App) {
	routing := app.Group("/api/routing", middleware.AuthMiddleware(h.config.SkipAuth))
	admin := middleware.RequireAnyRole(h.config.Routing.AdminRoles)

	routing.Get("/stages", h.controller.ListStages)
	routing.Get("/stages/:id", h.controller.GetStage)
	routing.Get("/stages/:id/targets", h.controller.GetTransferTargets)
	routing.Post("/stages", admin, h.controller.CreateStage)
	routing.Put("/stages/:id", admin, h.controller.UpdateStage)
	routing.Delete("/stages/:id", admin, h.controller.DeleteStage)

	routing.Get("/rules", h.controller.ListRules)
	routing.Post("/rules", admin, h.controller.CreateRule)
	routing.Put("/rules/:id", admin, h.controller.UpdateRule)
	routing.Delete("/rules/:id", admin, h.controller.DeleteRule)

	routing.Get("/me/stages", h.controller.MyStages)
	routing.Get("/me/managed-stages", h.controller.MyManagedStages)
}
