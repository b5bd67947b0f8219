package controllers

import (
	"strings"

	"github.com/ManuelReschke/FormFox/internal/pkg/usercontext"
	"github.com/gofiber/fiber/v2"
	"github.com/sujit-baniya/flash"
)

const mainLayout = "layouts/main"

// render executes a view inside the main layout with the shared page data.
func render(c *fiber.Ctx, view string, data fiber.Map) error {
	if data == nil {
		data = fiber.Map{}
	}
	data["User"] = usercontext.GetUserContext(c)
	data["CSRF"] = csrfToken(c)
	data["Flash"] = flash.Get(c)
	if _, ok := data["Title"]; !ok {
		data["Title"] = "FormFox"
	}
	return c.Render(view, data, mainLayout)
}

func csrfToken(c *fiber.Ctx) string {
	if token, ok := c.Locals("csrf").(string); ok {
		return token
	}
	return ""
}

func flashError(c *fiber.Ctx, message, redirect string) error {
	return flash.WithError(c, fiber.Map{"type": "error", "message": message}).Redirect(redirect)
}

func flashSuccess(c *fiber.Ctx, message, redirect string) error {
	return flash.WithSuccess(c, fiber.Map{"type": "success", "message": message}).Redirect(redirect)
}

// GetClientIP returns the caller's IPv4 and IPv6 addresses, preferring
// Cloudflare and X-Forwarded-For over the socket address.
func GetClientIP(c *fiber.Ctx) (string, string) {
	var candidates []string
	if cf := strings.TrimSpace(c.Get("CF-Connecting-IP")); cf != "" {
		candidates = append(candidates, cf)
	}
	for _, ip := range strings.Split(c.Get("X-Forwarded-For"), ",") {
		if ip = strings.TrimSpace(ip); ip != "" {
			candidates = append(candidates, ip)
		}
	}
	candidates = append(candidates, c.IP())
	if real := strings.TrimSpace(c.Get("X-Real-IP")); real != "" {
		candidates = append(candidates, real)
	}

	ipv4, ipv6 := "", ""
	for _, ip := range candidates {
		// IPv4 mapped into IPv6 (::ffff:192.168.1.1)
		if strings.HasPrefix(ip, "::ffff:") && strings.Contains(ip, ".") {
			ip = strings.TrimPrefix(ip, "::ffff:")
		}
		if strings.Contains(ip, ":") {
			if ipv6 == "" {
				ipv6 = ip
			}
		} else if ipv4 == "" {
			ipv4 = ip
		}
	}
	return ipv4, ipv6
}
