package controllers

import (
	"context"
	"fmt"
	"time"

	"github.com/ManuelReschke/FormFox/app/repository"
	"github.com/ManuelReschke/FormFox/internal/pkg/billing"
	"github.com/ManuelReschke/FormFox/internal/pkg/uploads"
	"github.com/go-playground/validator/v10"
)

// MailQueue queues outgoing email
type MailQueue interface {
	EnqueueMail(ctx context.Context, to []string, subject, body string) error
}

// CaptchaVerifier checks a solved captcha token
type CaptchaVerifier interface {
	Enabled() bool
	Verify(ctx context.Context, token, remoteIP string) (bool, error)
}

// ReminderRunner runs the cancel-reminder sweep on demand
type ReminderRunner interface {
	RunReminderSweepOnce(ctx context.Context, now time.Time) ([]billing.Reminder, error)
}

// Dependencies are the collaborators of the HTTP handlers
type Dependencies struct {
	Repos        *repository.Repositories
	Billing      *billing.Service
	Mail         MailQueue
	Uploads      uploads.Store
	UploadConfig *uploads.Config
	Reminders    ReminderRunner
	Captcha      CaptchaVerifier
	CaptchaSite  string
	BaseURL      string
	Now          func() time.Time
}

var (
	deps     Dependencies
	validate = validator.New()
)

// InitializeControllers wires the handler dependencies. It must run before
// the router serves requests. Without Repos the global factory is used.
func InitializeControllers(d Dependencies) error {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.UploadConfig == nil {
		d.UploadConfig = &uploads.Config{}
	}
	if d.Repos == nil {
		r, err := repository.GetGlobalRepositories()
		if err != nil {
			return fmt.Errorf("controllers: %w", err)
		}
		d.Repos = r
	}
	deps = d
	return nil
}

func repos() *repository.Repositories {
	return deps.Repos
}
