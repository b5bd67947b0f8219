package models

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

// Stripe subscription statuses stored on a school.
const (
	SubscriptionStatusNone     = "none"
	SubscriptionStatusActive   = "active"
	SubscriptionStatusTrialing = "trialing"
	SubscriptionStatusPastDue  = "past_due"
	SubscriptionStatusUnpaid   = "unpaid"
	SubscriptionStatusCanceled = "canceled"
)

// School is a tenant. Plan and billing fields are written by the billing
// webhook processor and by admins; IsActive=false locks every gated feature.
type School struct {
	ID                             uint       `gorm:"primaryKey" json:"id"`
	Slug                           string     `gorm:"type:varchar(64);uniqueIndex;not null" json:"slug" validate:"required,min=2,max=64"`
	DisplayName                    string     `gorm:"type:varchar(255);default:''" json:"display_name" validate:"max=255"`
	Plan                           string     `gorm:"type:varchar(16);not null;default:'trial';index" json:"plan" validate:"oneof=trial starter pro growth"`
	FeatureFlags                   string     `gorm:"type:text" json:"feature_flags"`
	IsActive                       bool       `gorm:"not null;index" json:"is_active"`
	StripeCustomerID               string     `gorm:"type:varchar(191);default:'';index" json:"stripe_customer_id"`
	StripeSubscriptionID           string     `gorm:"type:varchar(191);default:'';index" json:"stripe_subscription_id"`
	StripeSubscriptionStatus       string     `gorm:"type:varchar(32);not null;default:'none'" json:"stripe_subscription_status"`
	StripeCancelAt                 *time.Time `gorm:"type:timestamp;default:null" json:"stripe_cancel_at,omitempty"`
	StripeCancelAtPeriodEnd        bool       `gorm:"default:false" json:"stripe_cancel_at_period_end"`
	StripeCurrentPeriodEnd         *time.Time `gorm:"type:timestamp;default:null" json:"stripe_current_period_end,omitempty"`
	StripeTerminatedSubscriptionID string     `gorm:"type:varchar(191);default:''" json:"-"`
	StripeLastEventAt              *time.Time `gorm:"type:timestamp;default:null" json:"-"`
	LogoURL                        string     `gorm:"type:varchar(500);default:''" json:"logo_url" validate:"omitempty,url,max=500"`
	ThemePrimaryColor              string     `gorm:"type:varchar(20);default:''" json:"theme_primary_color" validate:"omitempty,hexcolor"`
	ThemeAccentColor               string     `gorm:"type:varchar(20);default:''" json:"theme_accent_color" validate:"omitempty,hexcolor"`
	NotificationEmails             string     `gorm:"type:varchar(1000);default:''" json:"notification_emails"`
	CustomStatuses                 string     `gorm:"type:text" json:"custom_statuses"`
	CreatedAt                      time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt                      time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (s *School) Validate() error {
	return validator.New().Struct(s)
}

// Name returns the display name, falling back to the slug.
func (s *School) Name() string {
	if strings.TrimSpace(s.DisplayName) != "" {
		return s.DisplayName
	}
	return s.Slug
}

// HasSubscription reports whether a Stripe subscription is linked.
func (s *School) HasSubscription() bool {
	return strings.TrimSpace(s.StripeSubscriptionID) != ""
}

// HasCancelScheduled reports whether the provider has a cancellation pending.
func (s *School) HasCancelScheduled() bool {
	return s.StripeCancelAt != nil || s.StripeCancelAtPeriodEnd
}

// CancelEffectiveAt returns when a scheduled cancellation takes effect, if known.
func (s *School) CancelEffectiveAt() *time.Time {
	if s.StripeCancelAt != nil {
		return s.StripeCancelAt
	}
	if s.StripeCancelAtPeriodEnd {
		return s.StripeCurrentPeriodEnd
	}
	return nil
}

// ClearCancelScheduling resets the provider cancellation fields.
func (s *School) ClearCancelScheduling() {
	s.StripeCancelAt = nil
	s.StripeCancelAtPeriodEnd = false
}

// NotificationRecipients splits the comma separated recipient list.
func (s *School) NotificationRecipients() []string {
	var out []string
	for _, p := range strings.Split(s.NotificationEmails, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// StatusChoices returns the default statuses followed by the school's custom ones.
func (s *School) StatusChoices() []string {
	out := append([]string(nil), DefaultSubmissionStatuses...)
	seen := make(map[string]struct{}, len(out))
	for _, v := range out {
		seen[v] = struct{}{}
	}
	for _, p := range strings.Split(s.CustomStatuses, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

// FindSchoolBySlug loads a school by slug.
func FindSchoolBySlug(db *gorm.DB, slug string) (*School, error) {
	var s School
	if err := db.Where("slug = ?", strings.TrimSpace(slug)).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// SchoolMembership scopes a staff user to exactly one school.
type SchoolMembership struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;uniqueIndex" json:"user_id"`
	SchoolID  uint      `gorm:"not null;index" json:"school_id"`
	School    School    `gorm:"foreignKey:SchoolID" json:"-"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}
