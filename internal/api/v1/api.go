package apiv1

import (
	"github.com/gofiber/fiber/v2"
)

// Pong is the ping response
type Pong struct {
	Ping string `json:"ping"`
}

// Error is the body of every non-2xx API response
type Error struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Flag    string `json:"flag,omitempty"`
}

// SchoolFlags describes the effective capabilities of a school
type SchoolFlags struct {
	School       string          `json:"school"`
	Plan         string          `json:"plan"`
	IsActive     bool            `json:"is_active"`
	BillingState string          `json:"billing_state"`
	Flags        map[string]bool `json:"flags"`
	Enabled      []string        `json:"enabled"`
}

// ServerInterface represents all server handlers.
type ServerInterface interface {
	// (GET /ping)
	GetPing(c *fiber.Ctx) error
	// (GET /schools/{slug}/flags)
	GetSchoolFlags(c *fiber.Ctx, slug string) error
}

// ServerInterfaceWrapper converts contexts to parameters.
type ServerInterfaceWrapper struct {
	Handler ServerInterface
}

// GetPing operation middleware
func (siw *ServerInterfaceWrapper) GetPing(c *fiber.Ctx) error {
	return siw.Handler.GetPing(c)
}

// GetSchoolFlags operation middleware
func (siw *ServerInterfaceWrapper) GetSchoolFlags(c *fiber.Ctx) error {
	slug := c.Params("slug")
	if slug == "" {
		return c.Status(fiber.StatusBadRequest).JSON(Error{Error: "bad_request", Message: "slug missing"})
	}
	return siw.Handler.GetSchoolFlags(c, slug)
}

// FiberServerOptions provides options for the Fiber server.
type FiberServerOptions struct {
	BaseURL string
	// SchoolMiddlewares run before every /schools/{slug} operation.
	SchoolMiddlewares []fiber.Handler
}

// RegisterHandlers creates http.Handler with routing matching OpenAPI spec.
func RegisterHandlers(router fiber.Router, si ServerInterface) {
	RegisterHandlersWithOptions(router, si, FiberServerOptions{})
}

// RegisterHandlersWithOptions creates http.Handler with additional options
func RegisterHandlersWithOptions(router fiber.Router, si ServerInterface, options FiberServerOptions) {
	wrapper := ServerInterfaceWrapper{Handler: si}

	router.Get(options.BaseURL+"/ping", wrapper.GetPing)

	schoolHandlers := append(append([]fiber.Handler{}, options.SchoolMiddlewares...), wrapper.GetSchoolFlags)
	router.Get(options.BaseURL+"/schools/:slug/flags", schoolHandlers...)
}
