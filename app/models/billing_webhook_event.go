package models

import "time"

const BillingProviderStripe = "stripe"

// Webhook processing outcomes stored with each claimed event.
const (
	WebhookOutcomeApplied   = "applied"
	WebhookOutcomeIgnored   = "ignored"
	WebhookOutcomeStale     = "stale"
	WebhookOutcomeDuplicate = "duplicate"
)

// BillingWebhookEvent stores provider webhook payloads with deduplication
// metadata. A row is written in the same transaction as the school update it
// caused, so its presence means the event has been fully applied.
type BillingWebhookEvent struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	Provider        string     `gorm:"type:varchar(20);not null;index:ux_billing_webhook_events_provider_event,unique,priority:1;index" json:"provider"`
	ProviderEventID string     `gorm:"type:varchar(191);not null;default:'';index:ux_billing_webhook_events_provider_event,unique,priority:2" json:"provider_event_id"`
	EventType       string     `gorm:"type:varchar(100);not null;index" json:"event_type"`
	SchoolID        *uint      `gorm:"index" json:"school_id,omitempty"`
	SubscriptionID  string     `gorm:"type:varchar(191);default:'';index" json:"subscription_id"`
	PayloadJSON     string     `gorm:"type:longtext;not null" json:"payload_json"`
	SignatureValid  bool       `gorm:"default:false;index" json:"signature_valid"`
	Outcome         string     `gorm:"type:varchar(16);default:''" json:"outcome"`
	ProcessedAt     *time.Time `gorm:"type:timestamp;default:null" json:"processed_at,omitempty"`
	ProcessingError string     `gorm:"type:text" json:"processing_error"`
	CreatedAt       time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
