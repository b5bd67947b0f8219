package usercontext

import (
	"github.com/ManuelReschke/FormFox/app/models"
	"github.com/ManuelReschke/FormFox/internal/pkg/access"
	"github.com/gofiber/fiber/v2"
)

// UserContext represents the complete user context for a request
type UserContext struct {
	UserID      uint   `json:"user_id"`
	Email       string `json:"email"`
	Name        string `json:"name"`
	IsLoggedIn  bool   `json:"is_logged_in"`
	IsStaff     bool   `json:"is_staff"`
	IsSuperuser bool   `json:"is_superuser"`
	SchoolID    uint   `json:"school_id"`
}

// FromUser builds the context for a logged in user.
func FromUser(u *models.User, schoolID uint) UserContext {
	return UserContext{
		UserID:      u.ID,
		Email:       u.Email,
		Name:        u.Name,
		IsLoggedIn:  true,
		IsStaff:     u.IsStaff(),
		IsSuperuser: u.IsSuperuser(),
		SchoolID:    schoolID,
	}
}

// Actor returns the caller as seen by the access gate.
func (u UserContext) Actor() access.Actor {
	return access.Actor{UserID: u.UserID, IsSuperuser: u.IsLoggedIn && u.IsSuperuser}
}

// GetUserContext retrieves the user context from fiber context
// Returns a default anonymous context if none is set
func GetUserContext(c *fiber.Ctx) UserContext {
	if ctx, ok := c.Locals(KeyUserContext).(UserContext); ok {
		return ctx
	}
	return UserContext{}
}

// SetUserContext stores the user context on the request.
func SetUserContext(c *fiber.Ctx, uc UserContext) {
	c.Locals(KeyUserContext, uc)
	c.Locals(KeyFromProtected, uc.IsLoggedIn)
}

// IsLoggedIn checks if the current user is logged in
func IsLoggedIn(c *fiber.Ctx) bool {
	return GetUserContext(c).IsLoggedIn
}

// IsStaff checks if the current user may use the staff pages
func IsStaff(c *fiber.Ctx) bool {
	uc := GetUserContext(c)
	return uc.IsLoggedIn && uc.IsStaff
}

// IsSuperuser checks if the current user bypasses school gating
func IsSuperuser(c *fiber.Ctx) bool {
	uc := GetUserContext(c)
	return uc.IsLoggedIn && uc.IsSuperuser
}

// GetSchool returns the school loaded for the request, if any.
func GetSchool(c *fiber.Ctx) *models.School {
	if s, ok := c.Locals(KeySchool).(*models.School); ok {
		return s
	}
	return nil
}

// SetSchool stores the school the request operates on.
func SetSchool(c *fiber.Ctx, s *models.School) {
	c.Locals(KeySchool, s)
}
