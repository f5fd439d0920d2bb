package handler

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
)

func parseUintParam(c *fiber.Ctx, key string) (uint, error) {
	value := c.Params(key)
	if value == "" {
		return 0, errors.New("missing " + key)
	}

	parsed, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0, errors.New("invalid " + key)
	}

	return uint(parsed), nil
}

// currentUserID extracts the authenticated student id set by the JWT middleware.
func currentUserID(c *fiber.Ctx) (uint, bool) {
	if id, ok := c.Locals("user_id").(uint); ok && id > 0 {
		return id, true
	}

	return 0, false
}

// currentUserRole extracts the caller's role, if the identity token carried one.
func currentUserRole(c *fiber.Ctx) string {
	if role, ok := c.Locals("user_role").(string); ok {
		return role
	}

	return ""
}
