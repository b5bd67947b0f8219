package billing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/ManuelReschke/FormFox/app/models"
	"github.com/ManuelReschke/FormFox/internal/pkg/entitlements"
	"github.com/gofiber/fiber/v2/log"
)

// Outcome describes what applying an event did.
type Outcome string

const (
	OutcomeApplied   Outcome = models.WebhookOutcomeApplied
	OutcomeIgnored   Outcome = models.WebhookOutcomeIgnored
	OutcomeStale     Outcome = models.WebhookOutcomeStale
	OutcomeDuplicate Outcome = models.WebhookOutcomeDuplicate
)

// Result is returned by Processor.Apply. Every outcome is a success from the
// provider's point of view; only errors should trigger a redelivery.
type Result struct {
	Outcome    Outcome
	EventID    string
	Kind       EventKind
	SchoolID   uint
	SchoolSlug string
	Plan       string
	From       State
	To         State
	// IllegalTransition is set when the event moved the school along an edge
	// outside the lifecycle. The change is applied and logged.
	IllegalTransition bool
	Reason            string
}

// Processor applies verified billing events to schools.
type Processor struct {
	store  Store
	prices *PriceCatalog
	now    func() time.Time
}

// NewProcessor creates a webhook processor.
func NewProcessor(store Store, prices *PriceCatalog) *Processor {
	return &Processor{store: store, prices: prices, now: time.Now}
}

// WithClock replaces the clock used to decide whether a canceled
// subscription still has a paid period left.
func (p *Processor) WithClock(now func() time.Time) *Processor {
	p.now = now
	return p
}

// Apply records the event and applies it in one transaction. Each event id is
// applied at most once. A returned error means nothing was stored.
func (p *Processor) Apply(ctx context.Context, ev Event) (Result, error) {
	if ev == nil {
		return Result{}, fmt.Errorf("%w: nil event", ErrUnsupportedEvent)
	}
	meta := ev.Meta()
	res := Result{EventID: eventKey(meta), Kind: ev.Kind()}

	err := p.store.Transact(ctx, func(tx Tx) error {
		res = Result{EventID: res.EventID, Kind: res.Kind}

		record := &models.BillingWebhookEvent{
			Provider:        models.BillingProviderStripe,
			ProviderEventID: res.EventID,
			EventType:       meta.Type,
			SubscriptionID:  subscriptionID(ev),
			PayloadJSON:     meta.RawPayload,
			SignatureValid:  true,
		}
		created, err := tx.ClaimEvent(record)
		if err != nil {
			return fmt.Errorf("claim event %s: %w", res.EventID, err)
		}
		if !created {
			res.Outcome = OutcomeDuplicate
			res.Reason = "event already processed"
			return nil
		}

		switch e := ev.(type) {
		case CheckoutCompleted:
			err = p.applyCheckout(tx, e, &res)
		case SubscriptionUpdated:
			err = p.applyUpdated(tx, e, &res)
		case SubscriptionDeleted:
			err = p.applyDeleted(tx, e, &res)
		default:
			err = fmt.Errorf("%w: %T", ErrUnsupportedEvent, ev)
		}
		if err != nil {
			return err
		}

		now := p.now()
		record.Outcome = string(res.Outcome)
		record.ProcessedAt = &now
		if res.SchoolID != 0 {
			id := res.SchoolID
			record.SchoolID = &id
		}
		if res.Outcome != OutcomeApplied {
			record.ProcessingError = res.Reason
		}
		return tx.SaveEvent(record)
	})
	if err != nil {
		log.Errorf("[Billing] Failed to apply %s event %s: %v", res.Kind, res.EventID, err)
		return Result{}, err
	}

	switch res.Outcome {
	case OutcomeApplied:
		log.Infof("[Billing] Applied %s event %s to school %s (%s -> %s, plan %s)", res.Kind, res.EventID, res.SchoolSlug, res.From, res.To, res.Plan)
	case OutcomeIgnored:
		log.Warnf("[Billing] Ignored %s event %s: %s", res.Kind, res.EventID, res.Reason)
	default:
		log.Infof("[Billing] Skipped %s event %s (%s): %s", res.Kind, res.EventID, res.Outcome, res.Reason)
	}
	return res, nil
}

func (p *Processor) applyCheckout(tx Tx, e CheckoutCompleted, res *Result) error {
	school, err := tx.SchoolBySlug(e.SchoolSlug)
	if err != nil {
		return err
	}
	if school == nil {
		res.Outcome = OutcomeIgnored
		res.Reason = fmt.Sprintf("no school for slug %q", e.SchoolSlug)
		return nil
	}
	p.bind(res, school)

	subID := strings.TrimSpace(e.SubscriptionID)
	if subID != "" && subID == school.StripeTerminatedSubscriptionID {
		res.Outcome = OutcomeStale
		res.Reason = fmt.Sprintf("subscription %s was already terminated", subID)
		return nil
	}
	if subID != "" && subID == school.StripeSubscriptionID && isOlder(e.CreatedAt, school.StripeLastEventAt) {
		res.Outcome = OutcomeStale
		res.Reason = "a newer event was already applied"
		return nil
	}

	if e.CustomerID != "" {
		school.StripeCustomerID = e.CustomerID
	}
	if subID != "" {
		if subID != school.StripeSubscriptionID {
			school.StripeCurrentPeriodEnd = nil
		}
		school.StripeSubscriptionID = subID
	}
	status := strings.ToLower(strings.TrimSpace(e.Status))
	if status == "" {
		status = models.SubscriptionStatusActive
	}
	school.StripeSubscriptionStatus = status
	p.applyPrice(school, e.PriceID, e.ID)
	school.IsActive = true
	school.ClearCancelScheduling()
	touch(school, e.CreatedAt)

	return p.save(tx, school, res)
}

func (p *Processor) applyUpdated(tx Tx, e SubscriptionUpdated, res *Result) error {
	sub := e.Subscription
	school, err := p.schoolForUpdate(tx, sub)
	if err != nil {
		return err
	}
	if school == nil {
		res.Outcome = OutcomeIgnored
		res.Reason = fmt.Sprintf("no school for subscription %q", sub.ID)
		return nil
	}
	p.bind(res, school)

	switch {
	case sub.ID == school.StripeTerminatedSubscriptionID:
		res.Outcome = OutcomeStale
		res.Reason = fmt.Sprintf("subscription %s was already terminated", sub.ID)
		return nil
	case !school.IsActive:
		res.Outcome = OutcomeStale
		res.Reason = "school is locked; only a new checkout unlocks it"
		return nil
	case isOlder(e.CreatedAt, school.StripeLastEventAt):
		res.Outcome = OutcomeStale
		res.Reason = "a newer event was already applied"
		return nil
	}

	school.StripeSubscriptionID = sub.ID
	if sub.CustomerID != "" {
		school.StripeCustomerID = sub.CustomerID
	}
	if sub.Status != "" {
		school.StripeSubscriptionStatus = strings.ToLower(sub.Status)
	}
	p.applyPrice(school, sub.PriceID, e.ID)
	school.StripeCancelAt = sub.CancelAt
	school.StripeCancelAtPeriodEnd = sub.CancelAtPeriodEnd
	school.StripeCurrentPeriodEnd = sub.CurrentPeriodEnd

	if school.StripeSubscriptionStatus == models.SubscriptionStatusCanceled && !periodRemains(sub.CurrentPeriodEnd, p.now()) {
		terminate(school, sub.ID)
	}
	touch(school, e.CreatedAt)

	return p.save(tx, school, res)
}

// schoolForUpdate looks up the school owning a subscription. The metadata
// slug is only used for schools that have no subscription linked yet, which
// happens when an update or deletion overtakes its checkout event.
func (p *Processor) schoolForUpdate(tx Tx, sub SubscriptionSnapshot) (*models.School, error) {
	school, err := tx.SchoolBySubscriptionID(sub.ID)
	if err != nil || school != nil {
		return school, err
	}
	if sub.SchoolSlug == "" {
		return nil, nil
	}
	school, err = tx.SchoolBySlug(sub.SchoolSlug)
	if err != nil || school == nil {
		return nil, err
	}
	if school.HasSubscription() {
		return nil, nil
	}
	return school, nil
}

func (p *Processor) applyDeleted(tx Tx, e SubscriptionDeleted, res *Result) error {
	sub := e.Subscription
	school, err := p.schoolForUpdate(tx, sub)
	if err != nil {
		return err
	}
	if school == nil {
		res.Outcome = OutcomeIgnored
		res.Reason = fmt.Sprintf("no school for subscription %q", sub.ID)
		return nil
	}
	p.bind(res, school)

	// The deletion overtook its checkout. Only the guard is recorded, so the
	// late checkout is stale and the school keeps its current state.
	if !school.HasSubscription() {
		school.StripeTerminatedSubscriptionID = sub.ID
		log.Warnf("[Billing] Subscription %s deleted before its checkout for school %s", sub.ID, school.Slug)
		return p.save(tx, school, res)
	}

	if !school.IsActive && school.StripeTerminatedSubscriptionID == sub.ID {
		res.Outcome = OutcomeDuplicate
		res.Reason = fmt.Sprintf("subscription %s already terminated", sub.ID)
		return nil
	}

	terminate(school, sub.ID)
	touch(school, e.CreatedAt)

	return p.save(tx, school, res)
}

func (p *Processor) bind(res *Result, school *models.School) {
	res.SchoolID = school.ID
	res.SchoolSlug = school.Slug
	res.Plan = school.Plan
	res.From = StateOf(school)
	res.To = res.From
}

func (p *Processor) applyPrice(school *models.School, priceID, eventID string) {
	if priceID == "" {
		return
	}
	plan, ok := p.prices.PlanForPrice(priceID)
	if !ok {
		log.Warnf("[Billing] Unknown price %s in event %s for school %s, keeping plan %s", priceID, eventID, school.Slug, school.Plan)
		return
	}
	school.Plan = string(plan)
}

func (p *Processor) save(tx Tx, school *models.School, res *Result) error {
	if err := tx.SaveSchool(school); err != nil {
		return fmt.Errorf("save school %s: %w", school.Slug, err)
	}
	res.Outcome = OutcomeApplied
	res.Plan = school.Plan
	res.To = StateOf(school)
	if !CanTransition(res.From, res.To) {
		res.IllegalTransition = true
		log.Warnf("[Billing] School %s moved %s -> %s outside the billing lifecycle", school.Slug, res.From, res.To)
	}
	return nil
}

// terminate locks the school and marks the subscription as ended so that
// late events for it are ignored.
func terminate(school *models.School, subscriptionID string) {
	school.IsActive = false
	school.Plan = string(entitlements.PlanTrial)
	school.StripeSubscriptionStatus = models.SubscriptionStatusCanceled
	school.ClearCancelScheduling()
	school.StripeCurrentPeriodEnd = nil
	school.StripeTerminatedSubscriptionID = subscriptionID
}

func touch(school *models.School, at time.Time) {
	if at.IsZero() {
		return
	}
	if school.StripeLastEventAt == nil || at.After(*school.StripeLastEventAt) {
		t := at.UTC()
		school.StripeLastEventAt = &t
	}
}

// isOlder reports whether an event created at t predates the last applied
// event. Events with equal timestamps are applied.
func isOlder(t time.Time, last *time.Time) bool {
	return last != nil && !t.IsZero() && t.Before(*last)
}

func periodRemains(end *time.Time, now time.Time) bool {
	return end != nil && end.After(now)
}

// eventKey returns the dedupe key for an event, hashing the payload when the
// provider id is missing.
func eventKey(meta EventMeta) string {
	if id := strings.TrimSpace(meta.ID); id != "" {
		return id
	}
	sum := sha256.Sum256([]byte(meta.RawPayload))
	return "hash:" + hex.EncodeToString(sum[:])
}
