package router

import (
	"strings"
	"time"

	"github.com/ManuelReschke/FormFox/app/controllers"
	"github.com/ManuelReschke/FormFox/internal/pkg/entitlements"
	"github.com/ManuelReschke/FormFox/internal/pkg/env"
	"github.com/ManuelReschke/FormFox/internal/pkg/middleware"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/csrf"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

func (h HttpRouter) registerCSRFProtectedRoutes(app *fiber.App) {
	csrfConf := csrf.Config{
		KeyLookup:      "form:_csrf",
		ContextKey:     "csrf",
		CookieName:     "csrf_",
		CookieSameSite: "Lax",
		Expiration:     1 * time.Hour,
		CookieSecure:   !env.IsDev(),
		Next: func(c *fiber.Ctx) bool {
			return strings.HasPrefix(c.Path(), "/api/") || strings.HasPrefix(c.Path(), "/webhooks/")
		},
	}

	group := app.Group("", cors.New(), csrf.New(csrfConf))
	group.Get("/", controllers.HandleHome)
	group.Get("/login", controllers.HandleAuthLogin)
	group.Post("/login", controllers.HandleAuthLogin)
	group.Post("/logout", middleware.RequireAuth, controllers.HandleAuthLogout)

	// Public intake form
	group.Get("/apply/:slug", controllers.HandleApplyForm)
	group.Post("/apply/:slug", h.applyLimiter(), controllers.HandleApplySubmit)

	// Billing stays reachable for locked schools
	group.Get("/billing", middleware.RequireStaff, controllers.HandleBillingPage)
	group.Post("/billing/checkout", middleware.RequireStaff, controllers.HandleBillingCheckout)
	group.Post("/billing/portal", middleware.RequireStaff, controllers.HandleBillingPortal)

	// Staff surfaces of one school, each behind its capability
	school := group.Group("/schools/:slug", middleware.RequireStaff, middleware.LoadSchool(h.opts.Repos.School))
	school.Get("/submissions", middleware.RequireFeature(entitlements.FlagStatus), controllers.HandleSubmissionList)
	school.Post("/submissions/:public_id/status", middleware.RequireFeature(entitlements.FlagStatus), controllers.HandleSubmissionStatus)
	school.Get("/export.csv", middleware.RequireFeature(entitlements.FlagCSVExport), controllers.HandleSubmissionExport)
	school.Get("/reports", middleware.RequireFeature(entitlements.FlagReports), controllers.HandleReports)
	school.Get("/audit", middleware.RequireFeature(entitlements.FlagAuditLog), controllers.HandleAuditLog)
	school.Get("/branding", middleware.RequireFeature(entitlements.FlagCustomBranding), controllers.HandleBrandingForm)
	school.Post("/branding", middleware.RequireFeature(entitlements.FlagCustomBranding), controllers.HandleBrandingSave)
}

func (h HttpRouter) applyLimiter() fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        h.opts.ApplyLimit,
		Expiration: time.Minute,
		Storage:    h.opts.LimiterStorage,
		KeyGenerator: func(c *fiber.Ctx) string {
			ipv4, ipv6 := controllers.GetClientIP(c)
			return "apply:" + c.Params("slug") + ":" + ipv4 + ipv6
		},
		LimitReached: controllers.HandleApplyRateLimited,
	})
}
