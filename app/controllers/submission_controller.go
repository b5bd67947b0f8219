package controllers

import (
	"encoding/csv"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/FormFox/app/models"
	"github.com/ManuelReschke/FormFox/app/repository"
	"github.com/ManuelReschke/FormFox/internal/pkg/access"
	"github.com/ManuelReschke/FormFox/internal/pkg/entitlements"
	"github.com/ManuelReschke/FormFox/internal/pkg/middleware"
	"github.com/ManuelReschke/FormFox/internal/pkg/usercontext"
)

const (
	submissionsPerPage   = 50
	auditPerPage         = 100
	reportDays           = 30
	auditLabelSubmission = "submission"
	auditLabelSchool     = "school"
)

type statusForm struct {
	Status string `form:"status" validate:"required,max=64"`
}

type brandingForm struct {
	DisplayName        string `form:"display_name" validate:"max=255"`
	LogoURL            string `form:"logo_url" validate:"omitempty,url,max=500"`
	ThemePrimaryColor  string `form:"theme_primary_color" validate:"omitempty,hexcolor"`
	ThemeAccentColor   string `form:"theme_accent_color" validate:"omitempty,hexcolor"`
	NotificationEmails string `form:"notification_emails" validate:"max=1000"`
	CustomStatuses     string `form:"custom_statuses" validate:"max=2000"`
}

// HandleSubmissionList shows the submissions of the current school.
func HandleSubmissionList(c *fiber.Ctx) error {
	school := middleware.CurrentSchool(c)
	actor := usercontext.GetUserContext(c).Actor()

	filter := repository.SubmissionFilter{
		Status:  strings.TrimSpace(c.Query("status")),
		FormKey: strings.TrimSpace(c.Query("form")),
	}
	page := queryPage(c)

	total, err := repos().Submission.CountBySchool(school.ID, filter)
	if err != nil {
		log.Errorf("[Submissions] Failed to count submissions of %q: %v", school.Slug, err)
		return fiber.ErrInternalServerError
	}
	subs, err := repos().Submission.ListBySchool(school.ID, filter, (page-1)*submissionsPerPage, submissionsPerPage)
	if err != nil {
		log.Errorf("[Submissions] Failed to list submissions of %q: %v", school.Slug, err)
		return fiber.ErrInternalServerError
	}

	return render(c, "submissions", fiber.Map{
		"Title":          "Submissions",
		"School":         school,
		"Submissions":    subs,
		"Filter":         filter,
		"Statuses":       statusChoices(actor, school),
		"Page":           page,
		"PrevPage":       page - 1,
		"NextPage":       page + 1,
		"Total":          total,
		"HasNext":        int64(page*submissionsPerPage) < total,
		"CanExport":      access.Allowed(actor, school, entitlements.FlagCSVExport),
		"CanReports":     access.Allowed(actor, school, entitlements.FlagReports),
		"CanAudit":       access.Allowed(actor, school, entitlements.FlagAuditLog),
		"CanBranding":    access.Allowed(actor, school, entitlements.FlagCustomBranding),
		"CanMultiForm":   access.Allowed(actor, school, entitlements.FlagMultiForm),
		"CanCustomState": access.Allowed(actor, school, entitlements.FlagCustomStatuses),
	})
}

// HandleSubmissionStatus changes the status of one submission.
func HandleSubmissionStatus(c *fiber.Ctx) error {
	school := middleware.CurrentSchool(c)
	uc := usercontext.GetUserContext(c)
	back := "/schools/" + school.Slug + "/submissions"

	sub, err := repos().Submission.GetByPublicID(school.ID, c.Params("public_id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.ErrNotFound
		}
		log.Errorf("[Submissions] Failed to load submission: %v", err)
		return fiber.ErrInternalServerError
	}

	var form statusForm
	if err := c.BodyParser(&form); err != nil {
		return flashError(c, "Invalid request.", back)
	}
	form.Status = strings.TrimSpace(form.Status)
	if err := validate.Struct(form); err != nil {
		return flashError(c, "Please choose a status.", back)
	}

	if !isDefaultStatus(form.Status) {
		if d := access.Check(uc.Actor(), school, entitlements.FlagCustomStatuses); !d.Allowed {
			return middleware.Deny(c, d)
		}
		if !contains(school.StatusChoices(), form.Status) {
			return flashError(c, "Unknown status "+strconv.Quote(form.Status)+".", back)
		}
	}
	if form.Status == sub.Status {
		return c.Redirect(back, fiber.StatusSeeOther)
	}

	previous := sub.Status
	if err := repos().Submission.UpdateStatus(sub, form.Status); err != nil {
		log.Errorf("[Submissions] Failed to update status of %s: %v", sub.PublicID, err)
		return flashError(c, "The status could not be saved.", back)
	}

	if access.Allowed(uc.Actor(), school, entitlements.FlagAuditLog) {
		recordAudit(uc, school, models.AuditActionUpdate, auditLabelSubmission, sub.PublicID, map[string]models.FieldChange{
			"status": {From: previous, To: form.Status},
		})
	}
	return flashSuccess(c, "Status updated.", back)
}

// HandleSubmissionExport streams every submission of the school as CSV.
func HandleSubmissionExport(c *fiber.Ctx) error {
	school := middleware.CurrentSchool(c)
	uc := usercontext.GetUserContext(c)

	subs, err := repos().Submission.ListBySchool(school.ID, repository.SubmissionFilter{}, 0, 0)
	if err != nil {
		log.Errorf("[Submissions] Failed to export submissions of %q: %v", school.Slug, err)
		return fiber.ErrInternalServerError
	}

	filename := fmt.Sprintf("%s-submissions-%s.csv", school.Slug, deps.Now().UTC().Format("20060102"))
	c.Set(fiber.HeaderContentType, "text/csv; charset=utf-8")
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="`+filename+`"`)

	if err := writeSubmissionsCSV(c, subs); err != nil {
		log.Errorf("[Submissions] Failed to write CSV for %q: %v", school.Slug, err)
		return fiber.ErrInternalServerError
	}

	recordAudit(uc, school, models.AuditActionExport, auditLabelSubmission, "", map[string]models.FieldChange{
		"rows": {To: len(subs)},
	})
	return nil
}

func writeSubmissionsCSV(c *fiber.Ctx, subs []models.Submission) error {
	keySet := map[string]struct{}{}
	rows := make([]map[string]string, len(subs))
	for i := range subs {
		rows[i] = subs[i].Fields()
		for k := range rows[i] {
			keySet[k] = struct{}{}
		}
	}
	keys := make([]string, 0, len(keySet))
	for k := range keySet {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	w := csv.NewWriter(c)
	header := append([]string{"public_id", "created_at", "form_key", "status", "files"}, keys...)
	if err := w.Write(header); err != nil {
		return err
	}
	for i, s := range subs {
		record := []string{
			s.PublicID,
			s.CreatedAt.UTC().Format(time.RFC3339),
			s.FormKey,
			s.Status,
			strconv.Itoa(len(s.Files)),
		}
		for _, k := range keys {
			record = append(record, rows[i][k])
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// HandleReports shows submission counts by status and by day.
func HandleReports(c *fiber.Ctx) error {
	school := middleware.CurrentSchool(c)

	byStatus, err := repos().Submission.StatusCounts(school.ID)
	if err != nil {
		log.Errorf("[Reports] Failed to count statuses of %q: %v", school.Slug, err)
		return fiber.ErrInternalServerError
	}
	end := deps.Now().UTC()
	start := end.AddDate(0, 0, -reportDays)
	daily, err := repos().Submission.GetDailyStats(school.ID, start, end)
	if err != nil {
		log.Errorf("[Reports] Failed to load daily stats of %q: %v", school.Slug, err)
		return fiber.ErrInternalServerError
	}

	var total int
	for _, s := range byStatus {
		total += s.Count
	}
	return render(c, "reports", fiber.Map{
		"Title":    "Reports",
		"School":   school,
		"ByStatus": byStatus,
		"Daily":    daily,
		"Total":    total,
		"Days":     reportDays,
	})
}

// HandleAuditLog lists the staff actions recorded for the school.
func HandleAuditLog(c *fiber.Ctx) error {
	school := middleware.CurrentSchool(c)
	page := queryPage(c)

	total, err := repos().Audit.CountBySchool(school.ID)
	if err != nil {
		log.Errorf("[Audit] Failed to count entries of %q: %v", school.Slug, err)
		return fiber.ErrInternalServerError
	}
	entries, err := repos().Audit.ListBySchool(school.ID, (page-1)*auditPerPage, auditPerPage)
	if err != nil {
		log.Errorf("[Audit] Failed to list entries of %q: %v", school.Slug, err)
		return fiber.ErrInternalServerError
	}

	return render(c, "audit", fiber.Map{
		"Title":    "Audit log",
		"School":   school,
		"Entries":  entries,
		"Page":     page,
		"PrevPage": page - 1,
		"NextPage": page + 1,
		"HasNext":  int64(page*auditPerPage) < total,
	})
}

// HandleBrandingForm shows the branding and notification settings.
func HandleBrandingForm(c *fiber.Ctx) error {
	school := middleware.CurrentSchool(c)
	actor := usercontext.GetUserContext(c).Actor()
	return render(c, "branding", fiber.Map{
		"Title":             "Branding",
		"School":            school,
		"CanCustomStatuses": access.Allowed(actor, school, entitlements.FlagCustomStatuses),
		"CanNotify":         access.Allowed(actor, school, entitlements.FlagEmailNotifications),
	})
}

// HandleBrandingSave stores the branding settings.
func HandleBrandingSave(c *fiber.Ctx) error {
	school := middleware.CurrentSchool(c)
	uc := usercontext.GetUserContext(c)
	back := "/schools/" + school.Slug + "/branding"

	var form brandingForm
	if err := c.BodyParser(&form); err != nil {
		return flashError(c, "Invalid request.", back)
	}
	form.DisplayName = strings.TrimSpace(form.DisplayName)
	form.LogoURL = strings.TrimSpace(form.LogoURL)
	form.ThemePrimaryColor = strings.TrimSpace(form.ThemePrimaryColor)
	form.ThemeAccentColor = strings.TrimSpace(form.ThemeAccentColor)
	if err := validate.Struct(form); err != nil {
		return flashError(c, "Please check the logo URL and the colors.", back)
	}
	emails, err := normalizeEmails(form.NotificationEmails)
	if err != nil {
		return flashError(c, err.Error(), back)
	}

	updated := *school
	updated.DisplayName = form.DisplayName
	updated.LogoURL = form.LogoURL
	updated.ThemePrimaryColor = form.ThemePrimaryColor
	updated.ThemeAccentColor = form.ThemeAccentColor
	updated.NotificationEmails = emails
	if access.Allowed(uc.Actor(), school, entitlements.FlagCustomStatuses) {
		updated.CustomStatuses = normalizeList(form.CustomStatuses)
	}

	changes := brandingChanges(school, &updated)
	if len(changes) == 0 {
		return flashSuccess(c, "Nothing changed.", back)
	}
	if err := repos().School.Update(&updated); err != nil {
		log.Errorf("[Branding] Failed to save school %q: %v", school.Slug, err)
		return flashError(c, "The settings could not be saved.", back)
	}

	if access.Allowed(uc.Actor(), school, entitlements.FlagAuditLog) {
		recordAudit(uc, school, models.AuditActionUpdate, auditLabelSchool, strconv.FormatUint(uint64(school.ID), 10), changes)
	}
	return flashSuccess(c, "Settings saved.", back)
}

func brandingChanges(before, after *models.School) map[string]models.FieldChange {
	changes := map[string]models.FieldChange{}
	diff := func(field, from, to string) {
		if from != to {
			changes[field] = models.FieldChange{From: from, To: to}
		}
	}
	diff("display_name", before.DisplayName, after.DisplayName)
	diff("logo_url", before.LogoURL, after.LogoURL)
	diff("theme_primary_color", before.ThemePrimaryColor, after.ThemePrimaryColor)
	diff("theme_accent_color", before.ThemeAccentColor, after.ThemeAccentColor)
	diff("notification_emails", before.NotificationEmails, after.NotificationEmails)
	diff("custom_statuses", before.CustomStatuses, after.CustomStatuses)
	return changes
}

func recordAudit(uc usercontext.UserContext, school *models.School, action, label, objectID string, changes map[string]models.FieldChange) {
	entry := &models.AdminAuditLog{
		ActorID:    uc.UserID,
		SchoolID:   school.ID,
		Action:     action,
		ModelLabel: label,
		ObjectID:   objectID,
	}
	if err := entry.SetChanges(changes); err != nil {
		log.Warnf("[Audit] Failed to encode changes: %v", err)
	}
	if err := repos().Audit.Create(entry); err != nil {
		log.Errorf("[Audit] Failed to record %s %s for %q: %v", action, label, school.Slug, err)
	}
}

// statusChoices returns the statuses the actor may assign.
func statusChoices(actor access.Actor, school *models.School) []string {
	if access.Allowed(actor, school, entitlements.FlagCustomStatuses) {
		return school.StatusChoices()
	}
	return models.DefaultSubmissionStatuses
}

func isDefaultStatus(status string) bool {
	return contains(models.DefaultSubmissionStatuses, status)
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func queryPage(c *fiber.Ctx) int {
	page := c.QueryInt("page", 1)
	if page < 1 {
		return 1
	}
	return page
}

func normalizeEmails(raw string) (string, error) {
	list := normalizeList(raw)
	if list == "" {
		return "", nil
	}
	for _, e := range strings.Split(list, ",") {
		if err := validate.Var(e, "email"); err != nil {
			return "", fmt.Errorf("%q is not a valid email address", e)
		}
	}
	return strings.ToLower(list), nil
}

// normalizeList trims the entries of a comma separated list and drops empty ones.
func normalizeList(raw string) string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, ",")
}
