package lead

import (
	"strconv"

	"lead-routing/internal/common/models"
	"lead-routing/internal/common/routingerr"
	"lead-routing/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

type LeadController struct {
	LeadService    LeadService
	Engine         TransferEngine
	HistoryService HistoryService
	BatchService   BatchService
}

func NewLeadController(leadService LeadService, engine TransferEngine, historyService HistoryService, batchService BatchService) *LeadController {
	return &LeadController{
		LeadService:    leadService,
		Engine:         engine,
		HistoryService: historyService,
		BatchService:   batchService,
	}
}

func (ctrl *LeadController) CreateLead(c *fiber.Ctx) error {
	cl, ok := middleware.CallerOf(c)
	if !ok {
		return fiber.ErrUnauthorized
	}

	var lead Lead
	if err := c.BodyParser(&lead); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	result, err := ctrl.LeadService.CreateLead(c.UserContext(), cl, &lead)
	if err != nil {
		return routingerr.Respond(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(result)
}

func (ctrl *LeadController) ListLeads(c *fiber.Ctx) error {
	cl, ok := middleware.CallerOf(c)
	if !ok {
		return fiber.ErrUnauthorized
	}

	page, _ := strconv.ParseInt(c.Query("page", "1"), 10, 64)
	limit, _ := strconv.ParseInt(c.Query("limit", "20"), 10, 64)

	leads, total, err := ctrl.LeadService.ListLeads(c.UserContext(), cl, page, limit)
	if err != nil {
		return routingerr.Respond(c, err)
	}
	return c.JSON(fiber.Map{
		"data":  leads,
		"total": total,
		"page":  page,
		"limit": limit,
	})
}

func (ctrl *LeadController) GetLead(c *fiber.Ctx) error {
	cl, ok := middleware.CallerOf(c)
	if !ok {
		return fiber.ErrUnauthorized
	}

	lead, err := ctrl.LeadService.GetLead(c.UserContext(), cl, c.Params("id"))
	if err != nil {
		return routingerr.Respond(c, err)
	}
	return c.JSON(lead)
}

func (ctrl *LeadController) UpdateLead(c *fiber.Ctx) error {
	cl, ok := middleware.CallerOf(c)
	if !ok {
		return fiber.ErrUnauthorized
	}

	var patch LeadPatch
	if err := c.BodyParser(&patch); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	lead, err := ctrl.LeadService.UpdateLead(c.UserContext(), cl, c.Params("id"), patch)
	if err != nil {
		return routingerr.Respond(c, err)
	}
	return c.JSON(fiber.Map{
		"message": "Lead updated successfully",
		"data":    lead,
	})
}

type transitionFunc func(ctrl *LeadController, c *fiber.Ctx, cl models.Caller, req TransferRequest) (*TransferResult, error)

// transition parses the optional request body and runs fn against the lead in the path.
func (ctrl *LeadController) transition(fn transitionFunc) fiber.Handler {
	return func(c *fiber.Ctx) error {
		cl, ok := middleware.CallerOf(c)
		if !ok {
			return fiber.ErrUnauthorized
		}

		var req TransferRequest
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&req); err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
			}
		}
		req.LeadID = c.Params("id")

		result, err := fn(ctrl, c, cl, req)
		if err != nil {
			return routingerr.Respond(c, err)
		}
		return c.JSON(result)
	}
}

func (ctrl *LeadController) MarkDone() fiber.Handler {
	return ctrl.transition(func(ctrl *LeadController, c *fiber.Ctx, cl models.Caller, req TransferRequest) (*TransferResult, error) {
		return ctrl.Engine.MarkDone(c.UserContext(), cl, req)
	})
}

func (ctrl *LeadController) SendBack() fiber.Handler {
	return ctrl.transition(func(ctrl *LeadController, c *fiber.Ctx, cl models.Caller, req TransferRequest) (*TransferResult, error) {
		return ctrl.Engine.SendBack(c.UserContext(), cl, req)
	})
}

func (ctrl *LeadController) Reject() fiber.Handler {
	return ctrl.transition(func(ctrl *LeadController, c *fiber.Ctx, cl models.Caller, req TransferRequest) (*TransferResult, error) {
		return ctrl.Engine.Reject(c.UserContext(), cl, req)
	})
}

func (ctrl *LeadController) Override() fiber.Handler {
	return ctrl.transition(func(ctrl *LeadController, c *fiber.Ctx, cl models.Caller, req TransferRequest) (*TransferResult, error) {
		if req.TargetStage == "" {
			return nil, routingerr.Validation("manager override", "target_stage is required")
		}
		return ctrl.Engine.ManagerOverride(c.UserContext(), cl, req)
	})
}

func (ctrl *LeadController) DepartmentHistory(c *fiber.Ctx) error {
	cl, ok := middleware.CallerOf(c)
	if !ok {
		return fiber.ErrUnauthorized
	}

	entries, err := ctrl.Engine.GetDepartmentHistory(c.UserContext(), cl, c.Params("id"))
	if err != nil {
		return routingerr.Respond(c, err)
	}
	return c.JSON(fiber.Map{"data": entries})
}

func (ctrl *LeadController) Timeline(c *fiber.Ctx) error {
	cl, ok := middleware.CallerOf(c)
	if !ok {
		return fiber.ErrUnauthorized
	}

	comments, err := ctrl.LeadService.Timeline(c.UserContext(), cl, c.Params("id"))
	if err != nil {
		return routingerr.Respond(c, err)
	}
	return c.JSON(fiber.Map{"data": comments})
}

func (ctrl *LeadController) MyHistory(c *fiber.Ctx) error {
	cl, ok := middleware.CallerOf(c)
	if !ok {
		return fiber.ErrUnauthorized
	}

	view, err := ctrl.HistoryService.GetMyLeadHistory(c.UserContext(), cl, c.Query("user"))
	if err != nil {
		return routingerr.Respond(c, err)
	}
	return c.JSON(view)
}

func (ctrl *LeadController) ExportHistory(c *fiber.Ctx) error {
	cl, ok := middleware.CallerOf(c)
	if !ok {
		return fiber.ErrUnauthorized
	}

	data, filename, err := ctrl.HistoryService.ExportGlobalHistory(c.UserContext(), cl)
	if err != nil {
		return routingerr.Respond(c, err)
	}

	c.Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Set("Content-Disposition", "attachment; filename=\""+filename+"\"")
	return c.Send(data)
}

type resyncRequest struct {
	LeadIDs []string `json:"lead_ids"`
}

// Resync reassigns the given leads, or sweeps every unassigned lead when none are given.
func (ctrl *LeadController) Resync(c *fiber.Ctx) error {
	cl, ok := middleware.CallerOf(c)
	if !ok {
		return fiber.ErrUnauthorized
	}

	var req resyncRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
		}
	}

	if len(req.LeadIDs) > 0 {
		return c.JSON(ctrl.BatchService.Resync(c.UserContext(), cl, req.LeadIDs))
	}

	result, err := ctrl.BatchService.SweepUnassigned(c.UserContext(), cl)
	if err != nil {
		return routingerr.Respond(c, err)
	}
	return c.JSON(result)
}
