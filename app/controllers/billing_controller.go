package controllers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/FormFox/app/models"
	"github.com/ManuelReschke/FormFox/internal/pkg/access"
	"github.com/ManuelReschke/FormFox/internal/pkg/billing"
	"github.com/ManuelReschke/FormFox/internal/pkg/entitlements"
	"github.com/ManuelReschke/FormFox/internal/pkg/usercontext"
)

const (
	webhookBodyLimit = 1 << 20
	webhookTimeout   = 15 * time.Second
	checkoutTimeout  = 20 * time.Second
)

type checkoutForm struct {
	PriceID string `form:"price_id" validate:"required,max=191"`
	School  string `form:"school" validate:"omitempty,max=64"`
}

// flagRow is one line of the effective flag table on the billing page.
type flagRow struct {
	Key         string
	Description string
	MinPlan     string
	Enabled     bool
}

// HandleStripeWebhook verifies and applies a Stripe delivery. Every handled
// outcome is acknowledged with 200 so Stripe only retries real failures.
func HandleStripeWebhook(c *fiber.Ctx) error {
	if deps.Billing == nil {
		log.Error("[Billing] Webhook received but billing is not initialized")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook_processing_failed"})
	}
	if len(c.Body()) > webhookBodyLimit {
		return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{"error": "payload_too_large"})
	}

	// fiber reuses the request buffer after the handler returns
	payload := append([]byte(nil), c.Body()...)
	signature := c.Get("Stripe-Signature")

	ctx, cancel := context.WithTimeout(context.Background(), webhookTimeout)
	defer cancel()

	res, err := deps.Billing.HandleWebhook(ctx, payload, signature)
	switch {
	case err == nil:
	case billing.IsClientError(err):
		log.Warnf("[Billing] Rejected webhook: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_signature"})
	case errors.Is(err, billing.ErrUnsupportedEvent):
		return c.JSON(fiber.Map{"ok": true, "ignored": true})
	default:
		log.Errorf("[Billing] Webhook processing failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook_processing_failed"})
	}

	log.Infof("[Billing] Webhook %s (%s) -> %s school=%q", res.EventID, res.Kind, res.Outcome, res.SchoolSlug)
	return c.JSON(fiber.Map{"ok": true, "outcome": res.Outcome})
}

// HandleBillingPage shows the plan, flags and purchase options of a school.
// It stays reachable for locked schools.
func HandleBillingPage(c *fiber.Ctx) error {
	school, err := billingSchool(c, c.Query("school"))
	if err != nil {
		return err
	}
	if school == nil {
		return render(c, "billing", fiber.Map{"Title": "Billing"})
	}

	plan := entitlements.NormalizePlan(school.Plan)
	effective := entitlements.ResolveSchool(school)
	rows := make([]flagRow, 0, len(effective))
	for _, def := range entitlements.Definitions() {
		rows = append(rows, flagRow{
			Key:         def.Key,
			Description: def.Description,
			MinPlan:     entitlements.Label(def.MinPlan),
			Enabled:     effective[def.Key],
		})
	}

	data := fiber.Map{
		"Title":           "Billing",
		"School":          school,
		"Plan":            entitlements.Label(plan),
		"State":           string(billing.StateOf(school)),
		"Flags":           rows,
		"CheckoutEnabled": deps.Billing != nil && deps.Billing.CheckoutEnabled(),
		"HasCustomer":     strings.TrimSpace(school.StripeCustomerID) != "",
		"CancelAt":        school.CancelEffectiveAt(),
	}
	if deps.Billing != nil {
		data["Prices"] = deps.Billing.Prices()
	}
	if usercontext.IsSuperuser(c) {
		schools, err := repos().School.List(0, schoolListLimit)
		if err != nil {
			log.Warnf("[Billing] Failed to list schools: %v", err)
		}
		data["Schools"] = schools
	}
	return render(c, "billing", data)
}

// HandleBillingCheckout redirects to a Stripe Checkout session for the chosen price.
func HandleBillingCheckout(c *fiber.Ctx) error {
	var form checkoutForm
	if err := c.BodyParser(&form); err != nil {
		return flashError(c, "Invalid request.", "/billing")
	}
	form.PriceID = strings.TrimSpace(form.PriceID)
	if err := validate.Struct(form); err != nil {
		return flashError(c, "Please choose a plan.", "/billing")
	}

	school, err := billingSchool(c, form.School)
	if err != nil {
		return err
	}
	if school == nil {
		return flashError(c, "No school is linked to your account.", "/billing")
	}
	if deps.Billing == nil {
		return flashError(c, "Online checkout is not available.", billingPath(c, school))
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), checkoutTimeout)
	defer cancel()

	uc := usercontext.GetUserContext(c)
	back := deps.BaseURL + billingPath(c, school)
	url, err := deps.Billing.StartCheckout(ctx, school, form.PriceID, uc.Email, back+checkoutParam(back, "success"), back+checkoutParam(back, "canceled"))
	if err != nil {
		return flashError(c, checkoutErrorMessage(school, err), billingPath(c, school))
	}
	return c.Redirect(url, fiber.StatusSeeOther)
}

// HandleBillingPortal redirects to the Stripe Billing Portal of the school's customer.
func HandleBillingPortal(c *fiber.Ctx) error {
	school, err := billingSchool(c, c.FormValue("school"))
	if err != nil {
		return err
	}
	if school == nil {
		return flashError(c, "No school is linked to your account.", "/billing")
	}
	if deps.Billing == nil {
		return flashError(c, "The billing portal is not available.", billingPath(c, school))
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), checkoutTimeout)
	defer cancel()

	url, err := deps.Billing.PortalURL(ctx, school, deps.BaseURL+billingPath(c, school))
	if err != nil {
		return flashError(c, checkoutErrorMessage(school, err), billingPath(c, school))
	}
	return c.Redirect(url, fiber.StatusSeeOther)
}

// billingSchool resolves the school a billing request is about. Staff always
// get their own school; superusers pick one with slug or get the first.
func billingSchool(c *fiber.Ctx, slug string) (*models.School, error) {
	uc := usercontext.GetUserContext(c)
	var (
		school *models.School
		err    error
	)
	switch {
	case uc.IsSuperuser && strings.TrimSpace(slug) != "":
		school, err = repos().School.GetBySlug(slug)
	case uc.IsSuperuser:
		var schools []models.School
		schools, err = repos().School.List(0, 1)
		if err == nil && len(schools) > 0 {
			school = &schools[0]
		}
	default:
		school, err = repos().School.SchoolForUser(uc.UserID)
	}

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		log.Errorf("[Billing] Failed to resolve school for user %d: %v", uc.UserID, err)
		return nil, fiber.ErrInternalServerError
	}
	if school == nil {
		return nil, nil
	}
	if d := access.Check(uc.Actor(), school, access.BillingManagement); !d.Allowed {
		return nil, fiber.NewError(fiber.StatusForbidden, d.Message())
	}
	return school, nil
}

func billingPath(c *fiber.Ctx, school *models.School) string {
	if usercontext.IsSuperuser(c) {
		return "/billing?school=" + school.Slug
	}
	return "/billing"
}

func checkoutParam(base, value string) string {
	if strings.Contains(base, "?") {
		return "&checkout=" + value
	}
	return "?checkout=" + value
}

func checkoutErrorMessage(school *models.School, err error) string {
	switch {
	case errors.Is(err, billing.ErrInvalidPrice):
		return "The selected plan is not available."
	case errors.Is(err, billing.ErrNotConfigured):
		return "Online billing is not configured."
	case errors.Is(err, billing.ErrNoCustomer):
		return "This school has no billing account yet. Choose a plan first."
	default:
		log.Errorf("[Billing] Stripe request for school %q failed: %v", school.Slug, err)
		return "Stripe is not reachable right now. Please try again later."
	}
}
