package shift

import (
	"time"

	"lead-routing/internal/common/routingerr"

	"github.com/gofiber/fiber/v2"
)

type ShiftController struct {
	ShiftService ShiftService
}

func NewShiftController(shiftService ShiftService) *ShiftController {
	return &ShiftController{ShiftService: shiftService}
}

func (ctrl *ShiftController) CreateShift(c *fiber.Ctx) error {
	var shift Shift
	if err := c.BodyParser(&shift); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if err := ctrl.ShiftService.CreateShift(c.UserContext(), &shift); err != nil {
		return routingerr.Respond(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Shift created successfully",
		"data":    shift,
	})
}

func (ctrl *ShiftController) ListShifts(c *fiber.Ctx) error {
	shifts, err := ctrl.ShiftService.ListShifts(c.UserContext())
	if err != nil {
		return routingerr.Respond(c, err)
	}
	return c.JSON(fiber.Map{"data": shifts})
}

func (ctrl *ShiftController) GetShift(c *fiber.Ctx) error {
	shift, err := ctrl.ShiftService.GetShift(c.UserContext(), c.Params("id"))
	if err != nil {
		return routingerr.Respond(c, err)
	}
	return c.JSON(shift)
}

func (ctrl *ShiftController) UpdateShift(c *fiber.Ctx) error {
	var shift Shift
	if err := c.BodyParser(&shift); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if err := ctrl.ShiftService.UpdateShift(c.UserContext(), c.Params("id"), &shift); err != nil {
		return routingerr.Respond(c, err)
	}

	return c.JSON(fiber.Map{
		"message": "Shift updated successfully",
		"data":    shift,
	})
}

func (ctrl *ShiftController) DeleteShift(c *fiber.Ctx) error {
	if err := ctrl.ShiftService.DeleteShift(c.UserContext(), c.Params("id")); err != nil {
		return routingerr.Respond(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ResolveShift reports the shift active at ?at= (RFC 3339), defaulting to now.
func (ctrl *ShiftController) ResolveShift(c *fiber.Ctx) error {
	ts := time.Now()
	if raw := c.Query("at"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "at must be an RFC 3339 timestamp",
			})
		}
		ts = parsed
	}

	shift, err := ctrl.ShiftService.ResolveAt(c.UserContext(), ts)
	if err != nil {
		return routingerr.Respond(c, err)
	}
	return c.JSON(fiber.Map{"data": shift})
}
