package repository

import (
	"github.com/ManuelReschke/FormFox/app/models"
	"gorm.io/gorm"
)

// auditRepository implements the AuditRepository interface
type auditRepository struct {
	db *gorm.DB
}

// NewAuditRepository creates a new audit log repository instance
func NewAuditRepository(db *gorm.DB) AuditRepository {
	return &auditRepository{db: db}
}

// Create appends an audit entry
func (r *auditRepository) Create(entry *models.AdminAuditLog) error {
	return r.db.Create(entry).Error
}

// ListBySchool retrieves audit entries newest first
func (r *auditRepository) ListBySchool(schoolID uint, offset, limit int) ([]models.AdminAuditLog, error) {
	var entries []models.AdminAuditLog
	err := r.db.Where("school_id = ?", schoolID).
		Order("created_at DESC, id DESC").
		Offset(offset).Limit(limit).
		Find(&entries).Error
	return entries, err
}

// CountBySchool returns the number of audit entries of a school
func (r *auditRepository) CountBySchool(schoolID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.AdminAuditLog{}).Where("school_id = ?", schoolID).Count(&count).Error
	return count, err
}
