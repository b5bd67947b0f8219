package middleware

import (
	"strings"

	icuser "github.com/ManuelReschke/FormFox/internal/pkg/usercontext"
	"github.com/gofiber/fiber/v2"
)

// RequireAuth ensures a logged-in web session; redirects to /login if missing.
func RequireAuth(c *fiber.Ctx) error {
	if !icuser.IsLoggedIn(c) {
		return c.Redirect("/login", fiber.StatusSeeOther)
	}
	return c.Next()
}

// RequireStaff ensures a logged-in staff user or superuser.
func RequireStaff(c *fiber.Ctx) error {
	if !icuser.IsLoggedIn(c) {
		if wantsJSON(c) {
			return unauthorized(c)
		}
		return c.Redirect("/login", fiber.StatusSeeOther)
	}
	if !icuser.IsStaff(c) {
		return forbidden(c)
	}
	return c.Next()
}

// RequireSuperuser ensures a logged-in superuser.
func RequireSuperuser(c *fiber.Ctx) error {
	if !icuser.IsLoggedIn(c) {
		return c.Redirect("/login", fiber.StatusSeeOther)
	}
	if !icuser.IsSuperuser(c) {
		return forbidden(c)
	}
	return c.Next()
}

// RequireAPISessionAuth ensures a logged-in session for API routes and returns JSON 401 instead of redirect.
func RequireAPISessionAuth(c *fiber.Ctx) error {
	if !icuser.IsLoggedIn(c) {
		return unauthorized(c)
	}
	return c.Next()
}

func unauthorized(c *fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"error":   "unauthorized",
		"message": "login required",
	})
}

func forbidden(c *fiber.Ctx) error {
	if wantsJSON(c) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden"})
	}
	return c.Status(fiber.StatusForbidden).SendString("Forbidden")
}

func wantsJSON(c *fiber.Ctx) bool {
	if strings.HasPrefix(c.Path(), "/api/") {
		return true
	}
	return c.Accepts(fiber.MIMETextHTML, fiber.MIMEApplicationJSON) == fiber.MIMEApplicationJSON
}
