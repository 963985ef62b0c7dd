package user

import (
	"lead-routing/internal/common/routingerr"

	"github.com/gofiber/fiber/v2"
)

type UserController struct {
	UserService UserService
}

func NewUserController(userService UserService) *UserController {
	return &UserController{UserService: userService}
}

// ListByRole returns the enabled holders of ?role=.
func (ctrl *UserController) ListByRole(c *fiber.Ctx) error {
	role := c.Query("role")
	if role == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "role query parameter is required",
		})
	}

	users, err := ctrl.UserService.UsersWithRole(c.UserContext(), role)
	if err != nil {
		return routingerr.Respond(c, err)
	}
	return c.JSON(fiber.Map{"data": users})
}

func (ctrl *UserController) GetUser(c *fiber.Ctx) error {
	u, err := ctrl.UserService.GetUserByID(c.UserContext(), c.Params("id"))
	if err != nil {
		return routingerr.Respond(c, err)
	}
	return c.JSON(u)
}
