package billing

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ManuelReschke/FormFox/app/models"
	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const (
	DefaultReminderWindow = 72 * time.Hour
	reminderKeyPrefix     = "billing:cancel_reminder:"
	reminderKeyTTL        = 24 * time.Hour
)

// ReminderKind classifies a scheduled cancellation.
type ReminderKind string

const (
	ReminderUpcoming ReminderKind = "upcoming"
	ReminderOverdue  ReminderKind = "overdue"
)

// Reminder is a school whose scheduled cancellation is near or past.
type Reminder struct {
	SchoolID    uint
	Slug        string
	Name        string
	Kind        ReminderKind
	EffectiveAt time.Time
}

// Notifier delivers a reminder digest.
type Notifier func(ctx context.Context, to, subject, body string) error

// ReminderSweep reports schools with scheduled cancellations. It never
// changes a school; locking stays with the webhook processor.
type ReminderSweep struct {
	db         *gorm.DB
	redis      *redis.Client
	alertEmail string
	window     time.Duration
	notify     Notifier
}

// NewReminderSweep creates a sweep. redis and notify may be nil, in which
// case reminders are only logged.
func NewReminderSweep(db *gorm.DB, rdb *redis.Client, alertEmail string, notify Notifier) *ReminderSweep {
	return &ReminderSweep{
		db:         db,
		redis:      rdb,
		alertEmail: strings.TrimSpace(alertEmail),
		window:     DefaultReminderWindow,
		notify:     notify,
	}
}

// WithWindow sets how far ahead upcoming cancellations are reported.
func (r *ReminderSweep) WithWindow(d time.Duration) *ReminderSweep {
	if d > 0 {
		r.window = d
	}
	return r
}

// Sweep lists active schools whose cancellation takes effect before
// now+window and sends one digest per school per day.
func (r *ReminderSweep) Sweep(ctx context.Context, now time.Time) ([]Reminder, error) {
	var schools []models.School
	err := r.db.WithContext(ctx).
		Where("is_active = ? AND stripe_subscription_id <> ''", true).
		Where("(stripe_cancel_at IS NOT NULL OR stripe_cancel_at_period_end = ?)", true).
		Order("id").
		Find(&schools).Error
	if err != nil {
		return nil, fmt.Errorf("list schools with scheduled cancellation: %w", err)
	}

	var reminders []Reminder
	for i := range schools {
		rem, ok := classify(&schools[i], now, r.window)
		if !ok {
			continue
		}
		reminders = append(reminders, rem)

		switch rem.Kind {
		case ReminderOverdue:
			log.Errorf("[BillingReminder] School %s cancellation was due %s; manual deactivation needed", rem.Slug, rem.EffectiveAt.Format(time.RFC3339))
		default:
			log.Warnf("[BillingReminder] School %s cancels at %s", rem.Slug, rem.EffectiveAt.Format(time.RFC3339))
		}

		if err := r.deliver(ctx, rem, now); err != nil {
			log.Errorf("[BillingReminder] Failed to send reminder for %s: %v", rem.Slug, err)
		}
	}
	sort.SliceStable(reminders, func(i, j int) bool {
		return reminders[i].EffectiveAt.Before(reminders[j].EffectiveAt)
	})
	return reminders, nil
}

func classify(s *models.School, now time.Time, window time.Duration) (Reminder, bool) {
	at := s.CancelEffectiveAt()
	if at == nil {
		return Reminder{}, false
	}
	rem := Reminder{SchoolID: s.ID, Slug: s.Slug, Name: s.Name(), EffectiveAt: at.UTC()}
	switch {
	case !at.After(now):
		rem.Kind = ReminderOverdue
	case !at.After(now.Add(window)):
		rem.Kind = ReminderUpcoming
	default:
		return Reminder{}, false
	}
	return rem, true
}

func (r *ReminderSweep) deliver(ctx context.Context, rem Reminder, now time.Time) error {
	if r.alertEmail == "" || r.notify == nil {
		return nil
	}
	if r.redis != nil {
		key := fmt.Sprintf("%s%d:%s:%s", reminderKeyPrefix, rem.SchoolID, rem.Kind, now.UTC().Format("2006-01-02"))
		ok, err := r.redis.SetNX(ctx, key, "1", reminderKeyTTL).Result()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
	}
	subject := fmt.Sprintf("[FormFox] %s cancellation for %s", rem.Kind, rem.Slug)
	body := fmt.Sprintf(
		"School %s (%s) has a scheduled cancellation effective %s.\nStatus: %s\n",
		rem.Name, rem.Slug, rem.EffectiveAt.Format(time.RFC1123), rem.Kind,
	)
	return r.notify(ctx, r.alertEmail, subject, body)
}
