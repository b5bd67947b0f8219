package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	SubmissionStatusNew      = "New"
	SubmissionStatusInReview = "In Review"
	SubmissionStatusAccepted = "Accepted"
	SubmissionStatusRejected = "Rejected"
	DefaultSubmissionFormKey = "default"
)

// DefaultSubmissionStatuses are available to every school with status tracking.
var DefaultSubmissionStatuses = []string{
	SubmissionStatusNew,
	SubmissionStatusInReview,
	SubmissionStatusAccepted,
	SubmissionStatusRejected,
}

// Submission is one application received through a school's public form.
type Submission struct {
	ID        uint             `gorm:"primaryKey" json:"-"`
	PublicID  string           `gorm:"type:char(36);uniqueIndex;not null" json:"public_id"`
	SchoolID  uint             `gorm:"not null;index:idx_submissions_school_created,priority:1" json:"-"`
	FormKey   string           `gorm:"type:varchar(64);not null;default:'default';index" json:"form_key"`
	Data      string           `gorm:"type:longtext;not null" json:"-"`
	Status    string           `gorm:"type:varchar(64);not null;default:'New';index" json:"status"`
	IPv4      string           `gorm:"type:varchar(15);default:null" json:"-"`
	IPv6      string           `gorm:"type:varchar(45);default:null" json:"-"`
	Files     []SubmissionFile `gorm:"foreignKey:SubmissionID" json:"files,omitempty"`
	CreatedAt time.Time        `gorm:"autoCreateTime;index:idx_submissions_school_created,priority:2" json:"created_at"`
	UpdatedAt time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt   `gorm:"index" json:"-"`
}

// BeforeCreate assigns a public id.
func (s *Submission) BeforeCreate(tx *gorm.DB) error {
	if s.PublicID == "" {
		s.PublicID = uuid.NewString()
	}
	if s.FormKey == "" {
		s.FormKey = DefaultSubmissionFormKey
	}
	if s.Status == "" {
		s.Status = SubmissionStatusNew
	}
	return nil
}

// Fields decodes the stored form data.
func (s *Submission) Fields() map[string]string {
	out := map[string]string{}
	if s.Data == "" {
		return out
	}
	_ = json.Unmarshal([]byte(s.Data), &out)
	return out
}

// SetFields encodes form data for storage.
func (s *Submission) SetFields(fields map[string]string) error {
	b, err := json.Marshal(fields)
	if err != nil {
		return err
	}
	s.Data = string(b)
	return nil
}

// SubmissionFile references an uploaded file stored in object storage.
type SubmissionFile struct {
	ID           uint      `gorm:"primaryKey" json:"-"`
	SubmissionID uint      `gorm:"not null;index" json:"-"`
	FieldKey     string    `gorm:"type:varchar(120);not null" json:"field_key"`
	OriginalName string    `gorm:"type:varchar(255);default:''" json:"original_name"`
	ContentType  string    `gorm:"type:varchar(120);default:''" json:"content_type"`
	Size         int64     `gorm:"default:0" json:"size"`
	ObjectKey    string    `gorm:"type:varchar(500);not null" json:"-"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
}
