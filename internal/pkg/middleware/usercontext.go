package middleware

import (
	"github.com/ManuelReschke/FormFox/app/models"
	"github.com/ManuelReschke/FormFox/internal/pkg/session"
	"github.com/ManuelReschke/FormFox/internal/pkg/usercontext"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
)

// UserContextMiddleware sets up the user context for every request from the
// session written at login.
func UserContextMiddleware(c *fiber.Ctx) error {
	store := session.GetSessionStore()
	if store == nil {
		usercontext.SetUserContext(c, usercontext.UserContext{})
		return c.Next()
	}

	sess, err := store.Get(c)
	if err != nil {
		log.Warnf("[Session] Failed to load session: %v", err)
		usercontext.SetUserContext(c, usercontext.UserContext{})
		return c.Next()
	}

	userID, ok := sess.Get(usercontext.KeyUserID).(uint)
	if !ok || userID == 0 {
		usercontext.SetUserContext(c, usercontext.UserContext{})
		return c.Next()
	}

	role, _ := sess.Get(usercontext.KeyRole).(string)
	email, _ := sess.Get(usercontext.KeyEmail).(string)
	name, _ := sess.Get(usercontext.KeyName).(string)
	schoolID, _ := sess.Get(usercontext.KeySchoolID).(uint)

	u := models.User{ID: userID, Email: email, Name: name, Role: role}
	usercontext.SetUserContext(c, usercontext.FromUser(&u, schoolID))
	return c.Next()
}

// StartUserSession writes the login state into a fresh session.
func StartUserSession(c *fiber.Ctx, u *models.User, schoolID uint) error {
	store := session.GetSessionStore()
	if store == nil {
		return fiber.NewError(fiber.StatusInternalServerError, "session store not initialized")
	}
	sess, err := store.Get(c)
	if err != nil {
		return err
	}
	if err := sess.Regenerate(); err != nil {
		return err
	}
	sess.Set(usercontext.KeyUserID, u.ID)
	sess.Set(usercontext.KeyEmail, u.Email)
	sess.Set(usercontext.KeyName, u.Name)
	sess.Set(usercontext.KeyRole, u.Role)
	sess.Set(usercontext.KeySchoolID, schoolID)
	return sess.Save()
}

// EndUserSession destroys the current session.
func EndUserSession(c *fiber.Ctx) error {
	store := session.GetSessionStore()
	if store == nil {
		return nil
	}
	sess, err := store.Get(c)
	if err != nil {
		return err
	}
	return sess.Destroy()
}
