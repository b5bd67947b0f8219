package controllers

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/FormFox/app/models"
	"github.com/ManuelReschke/FormFox/internal/pkg/access"
	"github.com/ManuelReschke/FormFox/internal/pkg/entitlements"
	"github.com/ManuelReschke/FormFox/internal/pkg/middleware"
	"github.com/ManuelReschke/FormFox/internal/pkg/uploads"
	"github.com/ManuelReschke/FormFox/internal/pkg/usercontext"
)

const (
	maxUploadFiles = 5
	uploadTimeout  = 60 * time.Second
)

// applicationForm is the fixed field set of the public form. Rendering
// school specific forms is handled outside this service.
type applicationForm struct {
	FormKey      string `form:"form_key" validate:"omitempty,max=64,ascii"`
	Name         string `form:"name" validate:"required,min=2,max=150"`
	Email        string `form:"email" validate:"required,email,max=200"`
	Phone        string `form:"phone" validate:"omitempty,max=40"`
	Message      string `form:"message" validate:"omitempty,max=5000"`
	CaptchaToken string `form:"h-captcha-response"`
}

func (f *applicationForm) fields() map[string]string {
	out := map[string]string{"name": f.Name, "email": f.Email}
	if f.Phone != "" {
		out["phone"] = f.Phone
	}
	if f.Message != "" {
		out["message"] = f.Message
	}
	return out
}

// HandleApplyForm renders the public form of a school.
func HandleApplyForm(c *fiber.Ctx) error {
	school, err := publicSchool(c)
	if err != nil || school == nil {
		return err
	}

	anon := access.Actor{}
	return render(c, "apply", fiber.Map{
		"Title":          "Apply to " + school.Name(),
		"School":         school,
		"FormKey":        formKey(c.Query("form")),
		"UploadsEnabled": access.Allowed(anon, school, entitlements.FlagFileUploads) && deps.UploadConfig.IsEnabled(),
		"CaptchaSite":    captchaSite(),
	})
}

// HandleApplySubmit stores a submission from the public form.
func HandleApplySubmit(c *fiber.Ctx) error {
	school, err := publicSchool(c)
	if err != nil || school == nil {
		return err
	}
	back := "/apply/" + school.Slug

	var form applicationForm
	if err := c.BodyParser(&form); err != nil {
		return flashError(c, "The form could not be read. Please try again.", back)
	}
	form.Name = strings.TrimSpace(form.Name)
	form.Email = strings.ToLower(strings.TrimSpace(form.Email))
	form.Phone = strings.TrimSpace(form.Phone)
	form.Message = strings.TrimSpace(form.Message)
	form.FormKey = formKey(form.FormKey)
	if err := validate.Struct(form); err != nil {
		return flashError(c, "Please fill in your name and a valid email address.", back)
	}
	if !validFormKey(form.FormKey) {
		return flashError(c, "Unknown form.", back)
	}

	ipv4, ipv6 := GetClientIP(c)
	if deps.Captcha != nil && deps.Captcha.Enabled() {
		remote := ipv4
		if remote == "" {
			remote = ipv6
		}
		ok, err := deps.Captcha.Verify(c.UserContext(), form.CaptchaToken, remote)
		if err != nil {
			log.Warnf("[Apply] Captcha verification failed: %v", err)
		}
		if !ok {
			return flashError(c, "Please confirm that you are not a robot.", back)
		}
	}

	anon := access.Actor{}
	if form.FormKey != models.DefaultSubmissionFormKey {
		if d := access.Check(anon, school, entitlements.FlagMultiForm); !d.Allowed {
			return middleware.Deny(c, d)
		}
	}

	files, err := uploadedFiles(c)
	if err != nil {
		return flashError(c, "The attached files could not be read.", back)
	}
	if len(files) > 0 {
		if d := access.Check(anon, school, entitlements.FlagFileUploads); !d.Allowed {
			return middleware.Deny(c, d)
		}
		if len(files) > maxUploadFiles {
			return flashError(c, fmt.Sprintf("Please attach at most %d files.", maxUploadFiles), back)
		}
	}

	sub := &models.Submission{
		SchoolID: school.ID,
		FormKey:  form.FormKey,
		Status:   models.SubmissionStatusNew,
		IPv4:     ipv4,
		IPv6:     ipv6,
	}
	if err := sub.SetFields(form.fields()); err != nil {
		log.Errorf("[Apply] Failed to encode submission: %v", err)
		return fiber.ErrInternalServerError
	}

	if len(files) > 0 {
		stored, err := storeFiles(c.UserContext(), school, files)
		if err != nil {
			return flashError(c, uploadErrorMessage(err), back)
		}
		sub.Files = stored
	}

	if err := repos().Submission.Create(sub); err != nil {
		log.Errorf("[Apply] Failed to store submission for school %q: %v", school.Slug, err)
		return flashError(c, "Your application could not be saved. Please try again.", back)
	}
	log.Infof("[Apply] Stored submission %s for school %q (%d files)", sub.PublicID, school.Slug, len(sub.Files))

	notifySchool(c.UserContext(), school, sub, &form)
	return flashSuccess(c, "Thank you! Your application has been received.", back)
}

// publicSchool loads the school behind :slug for anonymous callers. A nil
// school with a nil error means the denial response was already written.
func publicSchool(c *fiber.Ctx) (*models.School, error) {
	slug := strings.ToLower(strings.TrimSpace(c.Params("slug")))
	school, err := repos().School.GetBySlug(slug)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Errorf("[Apply] Failed to load school %q: %v", slug, err)
			return nil, fiber.ErrInternalServerError
		}
		return nil, middleware.Deny(c, access.Check(access.Actor{}, nil, access.PublicIntake))
	}
	usercontext.SetSchool(c, school)
	if d := access.Check(access.Actor{}, school, access.PublicIntake); !d.Allowed {
		return nil, middleware.Deny(c, d)
	}
	return school, nil
}

func formKey(key string) string {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" {
		return models.DefaultSubmissionFormKey
	}
	return key
}

// validFormKey accepts lowercase letters, digits, dashes and underscores.
func validFormKey(key string) bool {
	for _, r := range key {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '-' && r != '_' {
			return false
		}
	}
	return key != ""
}

func captchaSite() string {
	if deps.Captcha == nil || !deps.Captcha.Enabled() {
		return ""
	}
	return deps.CaptchaSite
}

func uploadedFiles(c *fiber.Ctx) ([]*multipart.FileHeader, error) {
	if !strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		return nil, nil
	}
	mf, err := c.MultipartForm()
	if err != nil {
		return nil, err
	}
	var out []*multipart.FileHeader
	for _, headers := range mf.File {
		for _, fh := range headers {
			if fh.Size > 0 || fh.Filename != "" {
				out = append(out, fh)
			}
		}
	}
	return out, nil
}

func storeFiles(ctx context.Context, school *models.School, files []*multipart.FileHeader) ([]models.SubmissionFile, error) {
	if deps.Uploads == nil || !deps.UploadConfig.IsEnabled() {
		return nil, uploads.ErrDisabled
	}

	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	now := deps.Now()
	out := make([]models.SubmissionFile, 0, len(files))
	for _, fh := range files {
		contentType, err := deps.UploadConfig.Validate(fh.Filename, fh.Header.Get(fiber.HeaderContentType), fh.Size)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", fh.Filename, err)
		}
		key := uploads.ObjectKey(school.Slug, fh.Filename, now)
		if err := putFile(ctx, fh, key, contentType); err != nil {
			log.Errorf("[Apply] Failed to store %q for school %q: %v", fh.Filename, school.Slug, err)
			return nil, err
		}
		out = append(out, models.SubmissionFile{
			FieldKey:     fieldKey(fh),
			OriginalName: fh.Filename,
			ContentType:  contentType,
			Size:         fh.Size,
			ObjectKey:    key,
		})
	}
	return out, nil
}

func putFile(ctx context.Context, fh *multipart.FileHeader, key, contentType string) error {
	f, err := fh.Open()
	if err != nil {
		return err
	}
	defer f.Close()
	return deps.Uploads.Put(ctx, key, contentType, f, fh.Size)
}

// fieldKey recovers the form field name from the part header.
func fieldKey(fh *multipart.FileHeader) string {
	disposition := fh.Header.Get("Content-Disposition")
	for _, part := range strings.Split(disposition, ";") {
		part = strings.TrimSpace(part)
		if strings.HasPrefix(part, "name=") {
			return strings.Trim(strings.TrimPrefix(part, "name="), `"`)
		}
	}
	return "file"
}

func uploadErrorMessage(err error) string {
	switch {
	case errors.Is(err, uploads.ErrDisabled):
		return "File uploads are not available right now."
	case errors.Is(err, uploads.ErrTooLarge):
		return "One of the files is too large."
	case errors.Is(err, uploads.ErrTypeNotAllowed):
		return "Only PDF, JPEG and PNG files can be attached."
	case errors.Is(err, uploads.ErrEmptyUpload):
		return "One of the files is empty."
	default:
		return "The files could not be uploaded. Please try again."
	}
}

// notifySchool queues the new-submission mail when the school has it enabled.
func notifySchool(ctx context.Context, school *models.School, sub *models.Submission, form *applicationForm) {
	if deps.Mail == nil || !access.Allowed(access.Actor{}, school, entitlements.FlagEmailNotifications) {
		return
	}
	to := school.NotificationRecipients()
	if len(to) == 0 {
		return
	}

	var body strings.Builder
	fmt.Fprintf(&body, "A new application was submitted to %s.\n\n", school.Name())
	fmt.Fprintf(&body, "Name: %s\nEmail: %s\n", form.Name, form.Email)
	if form.Phone != "" {
		fmt.Fprintf(&body, "Phone: %s\n", form.Phone)
	}
	if form.FormKey != models.DefaultSubmissionFormKey {
		fmt.Fprintf(&body, "Form: %s\n", form.FormKey)
	}
	if len(sub.Files) > 0 {
		fmt.Fprintf(&body, "Attachments: %d\n", len(sub.Files))
	}
	if deps.BaseURL != "" {
		fmt.Fprintf(&body, "\n%s/schools/%s/submissions\n", deps.BaseURL, school.Slug)
	}

	subject := "New application: " + form.Name
	if err := deps.Mail.EnqueueMail(ctx, to, subject, body.String()); err != nil {
		log.Errorf("[Apply] Failed to queue notification for school %q: %v", school.Slug, err)
	}
}
