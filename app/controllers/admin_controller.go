package controllers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
)

type reminderView struct {
	School      string `json:"school"`
	Name        string `json:"name"`
	Kind        string `json:"kind"`
	EffectiveAt string `json:"effective_at"`
}

// HandleAdminRunReminders runs the cancel-reminder sweep immediately and
// returns what it found.
func HandleAdminRunReminders(c *fiber.Ctx) error {
	if deps.Reminders == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "reminders_not_configured"})
	}

	reminders, err := deps.Reminders.RunReminderSweepOnce(c.UserContext(), deps.Now())
	if err != nil {
		log.Errorf("[Admin] Reminder sweep failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "sweep_failed"})
	}

	out := make([]reminderView, 0, len(reminders))
	for _, r := range reminders {
		out = append(out, reminderView{
			School:      r.Slug,
			Name:        r.Name,
			Kind:        string(r.Kind),
			EffectiveAt: r.EffectiveAt.UTC().Format(time.RFC3339),
		})
	}
	return c.JSON(fiber.Map{"ok": true, "reminders": out})
}
