package middleware

import (
	"errors"
	"strings"

	"github.com/ManuelReschke/FormFox/app/models"
	"github.com/ManuelReschke/FormFox/app/repository"
	"github.com/ManuelReschke/FormFox/internal/pkg/access"
	"github.com/ManuelReschke/FormFox/internal/pkg/billing"
	"github.com/ManuelReschke/FormFox/internal/pkg/entitlements"
	icuser "github.com/ManuelReschke/FormFox/internal/pkg/usercontext"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
)

// Views rendered for gate denials.
const (
	ViewSchoolLocked  = "school_locked"
	ViewPlanRequired  = "plan_required"
	ViewNotFound      = "not_found"
	denialViewsLayout = "layouts/main"
)

// LoadSchool resolves the :slug route parameter to a school the caller may
// see. Staff only see their own school; superusers see every school. Unknown
// and foreign schools both answer 404.
func LoadSchool(schools repository.SchoolRepository) fiber.Handler {
	return func(c *fiber.Ctx) error {
		uc := icuser.GetUserContext(c)
		slug := strings.ToLower(strings.TrimSpace(c.Params("slug")))

		school, err := schools.GetBySlug(slug)
		if err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				log.Errorf("[School] Failed to load school %q: %v", slug, err)
				return fiber.ErrInternalServerError
			}
			school = nil
		}

		if school != nil && !uc.IsSuperuser {
			member, err := schools.IsMember(uc.UserID, school.ID)
			if err != nil {
				log.Errorf("[School] Membership check for user %d failed: %v", uc.UserID, err)
				return fiber.ErrInternalServerError
			}
			if !member {
				school = nil
			}
		}

		if school == nil {
			return Deny(c, access.Check(uc.Actor(), nil, ""))
		}
		icuser.SetSchool(c, school)
		return c.Next()
	}
}

// RequireFeature lets the request through only when the gate allows flag for
// the school loaded by LoadSchool.
func RequireFeature(flag string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		uc := icuser.GetUserContext(c)
		decision := access.Check(uc.Actor(), icuser.GetSchool(c), flag)
		if !decision.Allowed {
			return Deny(c, decision)
		}
		return c.Next()
	}
}

// Deny turns a gate decision into the explanation page, or JSON for API
// callers.
func Deny(c *fiber.Ctx, d access.Decision) error {
	status := fiber.StatusForbidden
	view := ViewPlanRequired
	switch d.Reason {
	case access.ReasonTenantNotFound:
		status = fiber.StatusNotFound
		view = ViewNotFound
	case access.ReasonTenantLocked:
		view = ViewSchoolLocked
	}

	if wantsJSON(c) {
		body := fiber.Map{"error": string(d.Reason), "message": d.Message()}
		if d.Flag != "" {
			body["flag"] = d.Flag
		}
		return c.Status(status).JSON(body)
	}

	school := icuser.GetSchool(c)
	data := fiber.Map{
		"Title":   "Not available",
		"Message": d.Message(),
		"Flag":    d.Flag,
		"School":  school,
		"User":    icuser.GetUserContext(c),
		"CSRF":    c.Locals("csrf"),
	}
	if def, ok := entitlements.Definition(d.Flag); ok {
		data["RequiredPlan"] = entitlements.Label(def.MinPlan)
	}
	if school != nil {
		data["CurrentPlan"] = entitlements.Label(entitlements.NormalizePlan(school.Plan))
		data["BillingState"] = string(billing.StateOf(school))
	}
	data["CanManageBilling"] = icuser.IsStaff(c) && school != nil
	return c.Status(status).Render(view, data, denialViewsLayout)
}

// CurrentSchool is a shorthand for the school loaded by LoadSchool.
func CurrentSchool(c *fiber.Ctx) *models.School {
	return icuser.GetSchool(c)
}
