package repository

import (
	"strings"

	"github.com/ManuelReschke/FormFox/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// schoolRepository implements the SchoolRepository interface
type schoolRepository struct {
	db *gorm.DB
}

// NewSchoolRepository creates a new school repository instance
func NewSchoolRepository(db *gorm.DB) SchoolRepository {
	return &schoolRepository{db: db}
}

// Create creates a new school
func (r *schoolRepository) Create(school *models.School) error {
	return r.db.Create(school).Error
}

// GetByID retrieves a school by its ID
func (r *schoolRepository) GetByID(id uint) (*models.School, error) {
	var school models.School
	if err := r.db.First(&school, id).Error; err != nil {
		return nil, err
	}
	return &school, nil
}

// GetBySlug retrieves a school by its slug
func (r *schoolRepository) GetBySlug(slug string) (*models.School, error) {
	return models.FindSchoolBySlug(r.db, strings.ToLower(slug))
}

// List retrieves schools ordered by slug
func (r *schoolRepository) List(offset, limit int) ([]models.School, error) {
	var schools []models.School
	err := r.db.Order("slug").Offset(offset).Limit(limit).Find(&schools).Error
	return schools, err
}

// Update saves admin edits to a school. Billing fields are owned by the
// webhook processor and are never written here.
func (r *schoolRepository) Update(school *models.School) error {
	return r.db.Model(school).
		Select("display_name", "feature_flags", "logo_url", "theme_primary_color",
			"theme_accent_color", "notification_emails", "custom_statuses").
		Updates(school).Error
}

// AddMember assigns a user to a school, replacing any earlier membership
func (r *schoolRepository) AddMember(userID, schoolID uint) error {
	m := models.SchoolMembership{UserID: userID, SchoolID: schoolID}
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"school_id"}),
	}).Create(&m).Error
}

// SchoolForUser returns the school a staff user belongs to
func (r *schoolRepository) SchoolForUser(userID uint) (*models.School, error) {
	var m models.SchoolMembership
	if err := r.db.Preload("School").Where("user_id = ?", userID).First(&m).Error; err != nil {
		return nil, err
	}
	return &m.School, nil
}

// IsMember reports whether the user belongs to the school
func (r *schoolRepository) IsMember(userID, schoolID uint) (bool, error) {
	var count int64
	err := r.db.Model(&models.SchoolMembership{}).
		Where("user_id = ? AND school_id = ?", userID, schoolID).Count(&count).Error
	return count > 0, err
}
