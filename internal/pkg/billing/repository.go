package billing

import (
	"context"
	"errors"
	"strings"

	"github.com/ManuelReschke/FormFox/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store runs webhook processing inside a transaction.
type Store interface {
	Transact(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the set of operations available inside a billing transaction. Schools
// returned by the lookup methods are locked until the transaction ends.
type Tx interface {
	// ClaimEvent inserts the event record. It returns false when an event
	// with the same provider and id already exists.
	ClaimEvent(record *models.BillingWebhookEvent) (bool, error)
	// SaveEvent stores the outcome of a claimed event.
	SaveEvent(record *models.BillingWebhookEvent) error
	SchoolBySlug(slug string) (*models.School, error)
	SchoolBySubscriptionID(subscriptionID string) (*models.School, error)
	SaveSchool(school *models.School) error
}

type gormStore struct {
	db *gorm.DB
}

// NewStore creates a billing store backed by GORM.
func NewStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) Transact(ctx context.Context, fn func(tx Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTx{db: tx})
	})
}

type gormTx struct {
	db *gorm.DB
}

func (t *gormTx) ClaimEvent(record *models.BillingWebhookEvent) (bool, error) {
	res := t.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_event_id"},
		},
		DoNothing: true,
	}).Create(record)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (t *gormTx) SaveEvent(record *models.BillingWebhookEvent) error {
	return t.db.Model(&models.BillingWebhookEvent{}).
		Where("provider = ? AND provider_event_id = ?", record.Provider, record.ProviderEventID).
		Updates(map[string]interface{}{
			"school_id":        record.SchoolID,
			"outcome":          record.Outcome,
			"processed_at":     record.ProcessedAt,
			"processing_error": record.ProcessingError,
		}).Error
}

func (t *gormTx) SchoolBySlug(slug string) (*models.School, error) {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return nil, nil
	}
	return t.lockedSchool("slug = ?", slug)
}

func (t *gormTx) SchoolBySubscriptionID(subscriptionID string) (*models.School, error) {
	subscriptionID = strings.TrimSpace(subscriptionID)
	if subscriptionID == "" {
		return nil, nil
	}
	return t.lockedSchool("stripe_subscription_id = ?", subscriptionID)
}

// lockedSchool returns nil without error when no row matches.
func (t *gormTx) lockedSchool(query string, arg any) (*models.School, error) {
	var school models.School
	err := t.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where(query, arg).
		Order("id").
		First(&school).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &school, nil
}

func (t *gormTx) SaveSchool(school *models.School) error {
	return t.db.Save(school).Error
}
