package pipeline

import (
	"lead-routing/internal/common/models"
	"lead-routing/internal/common/routingerr"

	"github.com/gofiber/fiber/v2"
)

type PipelineController struct {
	PipelineService PipelineService
}

func NewPipelineController(pipelineService PipelineService) *PipelineController {
	return &PipelineController{PipelineService: pipelineService}
}

func badBody(c *fiber.Ctx) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": "Invalid request body",
	})
}

func (ctrl *PipelineController) CreateStage(c *fiber.Ctx) error {
	var stage Stage
	if err := c.BodyParser(&stage); err != nil {
		return badBody(c)
	}
	if err := ctrl.PipelineService.CreateStage(c.UserContext(), &stage); err != nil {
		return routingerr.Respond(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Stage created successfully",
		"data":    stage,
	})
}

func (ctrl *PipelineController) ListStages(c *fiber.Ctx) error {
	stages, err := ctrl.PipelineService.ListStages(c.UserContext())
	if err != nil {
		return routingerr.Respond(c, err)
	}
	return c.JSON(fiber.Map{"data": stages})
}

func (ctrl *PipelineController) GetStage(c *fiber.Ctx) error {
	stage, err := ctrl.PipelineService.GetStage(c.UserContext(), c.Params("id"))
	if err != nil {
		return routingerr.Respond(c, err)
	}
	return c.JSON(stage)
}

func (ctrl *PipelineController) UpdateStage(c *fiber.Ctx) error {
	var stage Stage
	if err := c.BodyParser(&stage); err != nil {
		return badBody(c)
	}
	if err := ctrl.PipelineService.UpdateStage(c.UserContext(), c.Params("id"), &stage); err != nil {
		return routingerr.Respond(c, err)
	}
	return c.JSON(fiber.Map{
		"message": "Stage updated successfully",
		"data":    stage,
	})
}

func (ctrl *PipelineController) DeleteStage(c *fiber.Ctx) error {
	if err := ctrl.PipelineService.DeleteStage(c.UserContext(), c.Params("id")); err != nil {
		return routingerr.Respond(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (ctrl *PipelineController) CreateRule(c *fiber.Ctx) error {
	var rule TransitionRule
	if err := c.BodyParser(&rule); err != nil {
		return badBody(c)
	}
	if err := ctrl.PipelineService.CreateRule(c.UserContext(), &rule); err != nil {
		return routingerr.Respond(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Transition rule created successfully",
		"data":    rule,
	})
}

func (ctrl *PipelineController) ListRules(c *fiber.Ctx) error {
	rules, err := ctrl.PipelineService.ListRules(c.UserContext())
	if err != nil {
		return routingerr.Respond(c, err)
	}
	return c.JSON(fiber.Map{"data": rules})
}

func (ctrl *PipelineController) UpdateRule(c *fiber.Ctx) error {
	var rule TransitionRule
	if err := c.BodyParser(&rule); err != nil {
		return badBody(c)
	}
	if err := ctrl.PipelineService.UpdateRule(c.UserContext(), c.Params("id"), &rule); err != nil {
		return routingerr.Respond(c, err)
	}
	return c.JSON(fiber.Map{
		"message": "Transition rule updated successfully",
		"data":    rule,
	})
}

func (ctrl *PipelineController) DeleteRule(c *fiber.Ctx) error {
	if err := ctrl.PipelineService.DeleteRule(c.UserContext(), c.Params("id")); err != nil {
		return routingerr.Respond(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// GetTransferTargets lists where a lead in stage :id can be moved.
func (ctrl *PipelineController) GetTransferTargets(c *fiber.Ctx) error {
	targets, err := ctrl.PipelineService.TransferTargets(c.UserContext(), c.Params("id"))
	if err != nil {
		return routingerr.Respond(c, err)
	}
	return c.JSON(fiber.Map{"data": targets})
}

func (ctrl *PipelineController) MyStages(c *fiber.Ctx) error {
	stages, err := ctrl.PipelineService.StagesFor(c.UserContext(), models.MustCaller(c.UserContext()))
	if err != nil {
		return routingerr.Respond(c, err)
	}
	return c.JSON(fiber.Map{"data": stages})
}

func (ctrl *PipelineController) MyManagedStages(c *fiber.Ctx) error {
	stages, err := ctrl.PipelineService.ManagedStagesFor(c.UserContext(), models.MustCaller(c.UserContext()))
	if err != nil {
		return routingerr.Respond(c, err)
	}
	return c.JSON(fiber.Map{"data": stages})
}
