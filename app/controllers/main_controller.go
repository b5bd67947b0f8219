package controllers

import (
	"github.com/ManuelReschke/FormFox/internal/pkg/usercontext"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
)

const schoolListLimit = 200

// HandleHome sends staff to their school and shows superusers every school.
func HandleHome(c *fiber.Ctx) error {
	uc := usercontext.GetUserContext(c)
	if !uc.IsLoggedIn {
		return c.Redirect("/login", fiber.StatusSeeOther)
	}

	if uc.IsSuperuser {
		schools, err := repos().School.List(0, schoolListLimit)
		if err != nil {
			log.Errorf("[Home] Failed to list schools: %v", err)
			return fiber.ErrInternalServerError
		}
		return render(c, "home", fiber.Map{"Title": "Schools", "Schools": schools})
	}

	if uc.SchoolID != 0 {
		if school, err := repos().School.GetByID(uc.SchoolID); err == nil {
			return c.Redirect("/schools/"+school.Slug+"/submissions", fiber.StatusSeeOther)
		}
	}
	return render(c, "home", fiber.Map{"Title": "No school"})
}
