package apiv1

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/FormFox/internal/pkg/billing"
	"github.com/ManuelReschke/FormFox/internal/pkg/entitlements"
	"github.com/ManuelReschke/FormFox/internal/pkg/usercontext"
)

// APIServer implements the ServerInterface
type APIServer struct{}

// NewAPIServer creates a new API server instance
func NewAPIServer() *APIServer {
	return &APIServer{}
}

// GetPing handles the ping endpoint
func (s *APIServer) GetPing(c *fiber.Ctx) error {
	response := Pong{
		Ping: "pong",
	}

	return c.Status(fiber.StatusOK).JSON(response)
}

// GetSchoolFlags returns the resolved flags and the billing state of the
// school loaded by the school middleware.
func (s *APIServer) GetSchoolFlags(c *fiber.Ctx, slug string) error {
	school := usercontext.GetSchool(c)
	if school == nil || !strings.EqualFold(school.Slug, slug) {
		return c.Status(fiber.StatusNotFound).JSON(Error{Error: "tenant_not_found", Message: "School not found."})
	}

	flags := entitlements.ResolveSchool(school)
	return c.JSON(SchoolFlags{
		School:       school.Slug,
		Plan:         string(entitlements.NormalizePlan(school.Plan)),
		IsActive:     school.IsActive,
		BillingState: string(billing.StateOf(school)),
		Flags:        flags,
		Enabled:      flags.Enabled(),
	})
}
