package controllers

import (
	"github.com/gofiber/fiber/v2"
)

// HandleApplyRateLimited answers the public form when the limiter trips
func HandleApplyRateLimited(c *fiber.Ctx) error {
	return flashError(c, "Too many submissions. Please wait a moment and try again.", "/apply/"+c.Params("slug"))
}
