package lead

import (
	"lead-routing/internal/config"
	"lead-routing/internal/features/access"
	"lead-routing/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

type LeadApi struct {
	controller *LeadController
	config     *config.Config
	access     access.AccessService
}

func NewLeadApi(controller *LeadController, config *config.Config, accessService access.AccessService) *LeadApi {
	return &LeadApi{
		controller: controller,
		config:     config,
		access:     accessService,
	}
}

func (h *LeadApi) Setup(app *fiber.App) {
	leads := app.Group("/api/leads",
		middleware.AuthMiddleware(h.config.SkipAuth),
		middleware.RequireAppAccess(h.access),
	)
	admin := middleware.RequireAnyRole(h.config.Routing.AdminRoles)

	leads.Get("/history/mine", h.controller.MyHistory)
	leads.Get("/history/export", admin, h.controller.ExportHistory)
	leads.Post("/resync", admin, h.controller.Resync)

	leads.Post("/", h.controller.CreateLead)
	leads.Get("/", h.controller.ListLeads)
	leads.Get("/:id", h.controller.GetLead)
	leads.Put("/:id", h.controller.UpdateLead)

	leads.Post("/:id/done", h.controller.MarkDone())
	leads.Post("/:id/send-back", h.controller.SendBack())
	leads.Post("/:id/reject", h.controller.Reject())
	leads.Post("/:id/override", h.controller.Override())

	leads.Get("/:id/history", h.controller.DepartmentHistory)
	leads.Get("/:id/timeline", h.controller.Timeline)
}
