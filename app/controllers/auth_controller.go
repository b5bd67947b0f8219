package controllers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/FormFox/internal/pkg/middleware"
	"github.com/ManuelReschke/FormFox/internal/pkg/usercontext"
)

type loginForm struct {
	Email    string `form:"email" validate:"required,email,max=200"`
	Password string `form:"password" validate:"required,max=200"`
}

// login failures never say which part was wrong
const loginFailedMessage = "Invalid email or password."

func HandleAuthLogin(c *fiber.Ctx) error {
	if c.Method() != fiber.MethodPost {
		if usercontext.IsLoggedIn(c) {
			return c.Redirect("/", fiber.StatusSeeOther)
		}
		return render(c, "auth/login", fiber.Map{"Title": "Log in"})
	}

	var form loginForm
	if err := c.BodyParser(&form); err != nil {
		return flashError(c, loginFailedMessage, "/login")
	}
	form.Email = strings.ToLower(strings.TrimSpace(form.Email))
	if err := validate.Struct(form); err != nil {
		return flashError(c, loginFailedMessage, "/login")
	}

	user, err := repos().User.GetByEmail(form.Email)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Errorf("[Auth] Failed to load user: %v", err)
		}
		return flashError(c, loginFailedMessage, "/login")
	}
	if !user.CheckPassword(form.Password) || !user.IsActive() || !user.IsStaff() {
		return flashError(c, loginFailedMessage, "/login")
	}

	var schoolID uint
	if school, err := repos().School.SchoolForUser(user.ID); err == nil {
		schoolID = school.ID
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		log.Errorf("[Auth] Failed to load membership of user %d: %v", user.ID, err)
		return flashError(c, "Login is temporarily unavailable.", "/login")
	}

	if err := middleware.StartUserSession(c, user, schoolID); err != nil {
		log.Errorf("[Auth] Failed to start session: %v", err)
		return flashError(c, "Login is temporarily unavailable.", "/login")
	}
	if err := repos().User.UpdateLastLogin(user.ID, deps.Now()); err != nil {
		log.Warnf("[Auth] Failed to update last login of user %d: %v", user.ID, err)
	}

	return flashSuccess(c, "Welcome back, "+user.Name+".", "/")
}

func HandleAuthLogout(c *fiber.Ctx) error {
	if err := middleware.EndUserSession(c); err != nil {
		log.Warnf("[Auth] Failed to destroy session: %v", err)
	}
	return flashSuccess(c, "You have been logged out.", "/login")
}
