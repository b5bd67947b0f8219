package billing

import "time"

// EventKind names a billing event variant.
type EventKind string

const (
	KindCheckoutCompleted   EventKind = "checkout_completed"
	KindSubscriptionUpdated EventKind = "subscription_updated"
	KindSubscriptionDeleted EventKind = "subscription_deleted"
)

// Event is a verified billing event. The set of implementations is closed:
// CheckoutCompleted, SubscriptionUpdated and SubscriptionDeleted.
type Event interface {
	Kind() EventKind
	Meta() EventMeta
	isEvent()
}

// EventMeta carries provider identifiers common to every event.
type EventMeta struct {
	ID         string
	Type       string
	CreatedAt  time.Time
	RawPayload string
}

// SubscriptionSnapshot is the subset of a provider subscription the
// processor needs.
type SubscriptionSnapshot struct {
	ID                string
	CustomerID        string
	Status            string
	PriceID           string
	CancelAt          *time.Time
	CancelAtPeriodEnd bool
	CurrentPeriodEnd  *time.Time
	SchoolSlug        string
}

// CheckoutCompleted is sent when a checkout session finishes.
type CheckoutCompleted struct {
	EventMeta
	SessionID      string
	CustomerID     string
	SubscriptionID string
	SchoolSlug     string
	// PriceID is empty unless the session carried line items or was
	// enriched from the subscription.
	PriceID string
	// Status is filled from the subscription when available.
	Status string
}

// SubscriptionUpdated is sent when a subscription changes.
type SubscriptionUpdated struct {
	EventMeta
	Subscription SubscriptionSnapshot
}

// SubscriptionDeleted is sent when a subscription has ended.
type SubscriptionDeleted struct {
	EventMeta
	Subscription SubscriptionSnapshot
}

func (CheckoutCompleted) Kind() EventKind   { return KindCheckoutCompleted }
func (SubscriptionUpdated) Kind() EventKind { return KindSubscriptionUpdated }
func (SubscriptionDeleted) Kind() EventKind { return KindSubscriptionDeleted }

func (e CheckoutCompleted) Meta() EventMeta   { return e.EventMeta }
func (e SubscriptionUpdated) Meta() EventMeta { return e.EventMeta }
func (e SubscriptionDeleted) Meta() EventMeta { return e.EventMeta }

func (CheckoutCompleted) isEvent()   {}
func (SubscriptionUpdated) isEvent() {}
func (SubscriptionDeleted) isEvent() {}

// subscriptionID returns the subscription an event refers to.
func subscriptionID(ev Event) string {
	switch e := ev.(type) {
	case CheckoutCompleted:
		return e.SubscriptionID
	case SubscriptionUpdated:
		return e.Subscription.ID
	case SubscriptionDeleted:
		return e.Subscription.ID
	default:
		return ""
	}
}
