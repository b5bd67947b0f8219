package repository

import (
	"fmt"
	"time"

	"github.com/ManuelReschke/FormFox/app/models"
	"gorm.io/gorm"
)

// submissionRepository implements the SubmissionRepository interface
type submissionRepository struct {
	db *gorm.DB
}

// NewSubmissionRepository creates a new submission repository instance
func NewSubmissionRepository(db *gorm.DB) SubmissionRepository {
	return &submissionRepository{db: db}
}

// Create stores a submission together with its file references
func (r *submissionRepository) Create(submission *models.Submission) error {
	return r.db.Create(submission).Error
}

// GetByPublicID retrieves a submission of the given school
func (r *submissionRepository) GetByPublicID(schoolID uint, publicID string) (*models.Submission, error) {
	var submission models.Submission
	err := r.db.Preload("Files").
		Where("school_id = ? AND public_id = ?", schoolID, publicID).
		First(&submission).Error
	if err != nil {
		return nil, err
	}
	return &submission, nil
}

func (r *submissionRepository) filtered(schoolID uint, filter SubmissionFilter) *gorm.DB {
	q := r.db.Model(&models.Submission{}).Where("school_id = ?", schoolID)
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.FormKey != "" {
		q = q.Where("form_key = ?", filter.FormKey)
	}
	return q
}

// ListBySchool retrieves submissions newest first. A limit <= 0 returns all rows.
func (r *submissionRepository) ListBySchool(schoolID uint, filter SubmissionFilter, offset, limit int) ([]models.Submission, error) {
	var submissions []models.Submission
	q := r.filtered(schoolID, filter).Preload("Files").Order("created_at DESC, id DESC")
	if limit > 0 {
		q = q.Offset(offset).Limit(limit)
	}
	err := q.Find(&submissions).Error
	return submissions, err
}

// CountBySchool counts submissions matching the filter
func (r *submissionRepository) CountBySchool(schoolID uint, filter SubmissionFilter) (int64, error) {
	var count int64
	err := r.filtered(schoolID, filter).Count(&count).Error
	return count, err
}

// UpdateStatus sets a new status on the submission
func (r *submissionRepository) UpdateStatus(submission *models.Submission, status string) error {
	if err := r.db.Model(submission).Update("status", status).Error; err != nil {
		return err
	}
	submission.Status = status
	return nil
}

// StatusCounts returns the number of submissions per status
func (r *submissionRepository) StatusCounts(schoolID uint) ([]models.StatusStats, error) {
	var results []struct {
		Status string
		Count  int64
	}
	err := r.db.Model(&models.Submission{}).
		Select("status, COUNT(*) as count").
		Where("school_id = ?", schoolID).
		Group("status").
		Order("status").
		Find(&results).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get submission status counts: %w", err)
	}

	stats := make([]models.StatusStats, len(results))
	for i, result := range results {
		stats[i] = models.StatusStats{Status: result.Status, Count: int(result.Count)}
	}
	return stats, nil
}

// GetDailyStats returns daily submission counts for a date range. Days are
// bucketed in UTC here so the query stays portable across SQL dialects.
func (r *submissionRepository) GetDailyStats(schoolID uint, startDate, endDate time.Time) ([]models.DailyStats, error) {
	var createdAt []time.Time
	err := r.db.Model(&models.Submission{}).
		Where("school_id = ? AND created_at BETWEEN ? AND ?", schoolID, startDate, endDate).
		Order("created_at").
		Pluck("created_at", &createdAt).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get daily submission stats: %w", err)
	}

	var dailyStats []models.DailyStats
	for _, t := range createdAt {
		day := t.UTC().Format("2006-01-02")
		if n := len(dailyStats); n > 0 && dailyStats[n-1].Date == day {
			dailyStats[n-1].Count++
			continue
		}
		dailyStats = append(dailyStats, models.DailyStats{Date: day, Count: 1})
	}
	return dailyStats, nil
}
