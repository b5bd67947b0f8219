package repository

import (
	"time"

	"github.com/ManuelReschke/FormFox/app/models"
	"gorm.io/gorm"
)

// UserRepository defines the interface for user-related database operations
type UserRepository interface {
	Create(user *models.User) error
	GetByID(id uint) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
	Update(user *models.User) error
	UpdateLastLogin(id uint, at time.Time) error
	Count() (int64, error)
}

// SchoolRepository defines the interface for school (tenant) lookups
type SchoolRepository interface {
	Create(school *models.School) error
	GetByID(id uint) (*models.School, error)
	GetBySlug(slug string) (*models.School, error)
	List(offset, limit int) ([]models.School, error)
	Update(school *models.School) error
	AddMember(userID, schoolID uint) error
	SchoolForUser(userID uint) (*models.School, error)
	IsMember(userID, schoolID uint) (bool, error)
}

// SubmissionFilter narrows submission listings
type SubmissionFilter struct {
	Status  string
	FormKey string
}

// SubmissionRepository defines the interface for submission-related database operations
type SubmissionRepository interface {
	Create(submission *models.Submission) error
	GetByPublicID(schoolID uint, publicID string) (*models.Submission, error)
	ListBySchool(schoolID uint, filter SubmissionFilter, offset, limit int) ([]models.Submission, error)
	CountBySchool(schoolID uint, filter SubmissionFilter) (int64, error)
	UpdateStatus(submission *models.Submission, status string) error
	StatusCounts(schoolID uint) ([]models.StatusStats, error)
	GetDailyStats(schoolID uint, startDate, endDate time.Time) ([]models.DailyStats, error)
}

// AuditRepository defines the interface for the staff audit trail
type AuditRepository interface {
	Create(entry *models.AdminAuditLog) error
	ListBySchool(schoolID uint, offset, limit int) ([]models.AdminAuditLog, error)
	CountBySchool(schoolID uint) (int64, error)
}

// Repositories struct holds all repository instances
type Repositories struct {
	User       UserRepository
	School     SchoolRepository
	Submission SubmissionRepository
	Audit      AuditRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		User:       NewUserRepository(db),
		School:     NewSchoolRepository(db),
		Submission: NewSubmissionRepository(db),
		Audit:      NewAuditRepository(db),
	}
}
