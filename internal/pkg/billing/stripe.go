package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ManuelReschke/FormFox/app/models"
	"github.com/ManuelReschke/FormFox/internal/pkg/env"
	"github.com/stripe/stripe-go/v82"
	portalsession "github.com/stripe/stripe-go/v82/billingportal/session"
	checkoutsession "github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/subscription"
	"github.com/stripe/stripe-go/v82/webhook"
)

var (
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrUnsupportedEvent = errors.New("unsupported webhook event type")
	ErrNotConfigured    = errors.New("stripe is not configured")
	ErrInvalidPrice     = errors.New("invalid price selection")
	ErrNoCustomer       = errors.New("school has no stripe customer")
)

// Metadata keys set on checkout sessions and subscriptions.
const (
	MetadataSchoolSlug = "school_slug"
	MetadataSchoolID   = "school_id"
)

type stripeCheckoutSession struct {
	ID                string            `json:"id"`
	Customer          string            `json:"customer"`
	Subscription      string            `json:"subscription"`
	ClientReferenceID string            `json:"client_reference_id"`
	Metadata          map[string]string `json:"metadata"`
	LineItems         struct {
		Data []struct {
			Price struct {
				ID string `json:"id"`
			} `json:"price"`
		} `json:"data"`
	} `json:"line_items"`
}

type stripeSubscription struct {
	ID                string            `json:"id"`
	Customer          string            `json:"customer"`
	Status            string            `json:"status"`
	CancelAt          int64             `json:"cancel_at"`
	CancelAtPeriodEnd bool              `json:"cancel_at_period_end"`
	CurrentPeriodEnd  int64             `json:"current_period_end"`
	Metadata          map[string]string `json:"metadata"`
	Items             struct {
		Data []struct {
			CurrentPeriodEnd int64 `json:"current_period_end"`
			Price            struct {
				ID string `json:"id"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`
}

func (s stripeSubscription) snapshot() SubscriptionSnapshot {
	snap := SubscriptionSnapshot{
		ID:                strings.TrimSpace(s.ID),
		CustomerID:        strings.TrimSpace(s.Customer),
		Status:            strings.ToLower(strings.TrimSpace(s.Status)),
		CancelAt:          unixTime(s.CancelAt),
		CancelAtPeriodEnd: s.CancelAtPeriodEnd,
		CurrentPeriodEnd:  unixTime(s.CurrentPeriodEnd),
		SchoolSlug:        strings.TrimSpace(s.Metadata[MetadataSchoolSlug]),
	}
	if len(s.Items.Data) > 0 {
		item := s.Items.Data[0]
		snap.PriceID = strings.TrimSpace(item.Price.ID)
		// Newer API versions report the period on the item.
		if item.CurrentPeriodEnd > 0 {
			snap.CurrentPeriodEnd = unixTime(item.CurrentPeriodEnd)
		}
	}
	return snap
}

func unixTime(sec int64) *time.Time {
	if sec <= 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}

// ParseWebhook verifies a Stripe webhook payload and converts it into an
// Event. Verification always runs first; an empty secret never verifies.
func ParseWebhook(payload []byte, sigHeader, secret string) (Event, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" || strings.TrimSpace(sigHeader) == "" {
		return nil, ErrInvalidSignature
	}
	ev, err := webhook.ConstructEventWithOptions(payload, sigHeader, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if ev.Data == nil {
		return nil, fmt.Errorf("stripe event %s has no data", ev.ID)
	}

	meta := EventMeta{
		ID:         ev.ID,
		Type:       string(ev.Type),
		CreatedAt:  time.Unix(ev.Created, 0).UTC(),
		RawPayload: string(payload),
	}

	switch ev.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		var cs stripeCheckoutSession
		if err := json.Unmarshal(ev.Data.Raw, &cs); err != nil {
			return nil, fmt.Errorf("decode checkout session: %w", err)
		}
		out := CheckoutCompleted{
			EventMeta:      meta,
			SessionID:      cs.ID,
			CustomerID:     strings.TrimSpace(cs.Customer),
			SubscriptionID: strings.TrimSpace(cs.Subscription),
			SchoolSlug:     strings.TrimSpace(cs.Metadata[MetadataSchoolSlug]),
		}
		if out.SchoolSlug == "" {
			out.SchoolSlug = strings.TrimSpace(cs.ClientReferenceID)
		}
		if len(cs.LineItems.Data) > 0 {
			out.PriceID = strings.TrimSpace(cs.LineItems.Data[0].Price.ID)
		}
		return out, nil

	case stripe.EventTypeCustomerSubscriptionUpdated:
		var sub stripeSubscription
		if err := json.Unmarshal(ev.Data.Raw, &sub); err != nil {
			return nil, fmt.Errorf("decode subscription: %w", err)
		}
		return SubscriptionUpdated{EventMeta: meta, Subscription: sub.snapshot()}, nil

	case stripe.EventTypeCustomerSubscriptionDeleted:
		var sub stripeSubscription
		if err := json.Unmarshal(ev.Data.Raw, &sub); err != nil {
			return nil, fmt.Errorf("decode subscription: %w", err)
		}
		return SubscriptionDeleted{EventMeta: meta, Subscription: sub.snapshot()}, nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedEvent, ev.Type)
	}
}

// Gateway is the outbound Stripe API surface used by the billing pages.
type Gateway interface {
	CreateCheckoutSession(ctx context.Context, school *models.School, priceID, customerEmail, successURL, cancelURL string) (string, error)
	CreatePortalSession(ctx context.Context, school *models.School, returnURL string) (string, error)
	GetSubscription(ctx context.Context, subscriptionID string) (SubscriptionSnapshot, error)
	Configured() bool
}

type stripeGateway struct {
	apiKey         string
	publishableKey string

	newCheckoutSession func(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	newPortalSession   func(params *stripe.BillingPortalSessionParams) (*stripe.BillingPortalSession, error)
	getSubscription    func(id string, params *stripe.SubscriptionParams) (*stripe.Subscription, error)
}

// NewGatewayFromEnv creates a Stripe gateway from STRIPE_SECRET_KEY and
// STRIPE_PUBLISHABLE_KEY.
func NewGatewayFromEnv() Gateway {
	return NewGateway(env.GetEnv("STRIPE_SECRET_KEY", ""), env.GetEnv("STRIPE_PUBLISHABLE_KEY", ""))
}

// NewGateway creates a Stripe gateway with explicit keys.
func NewGateway(apiKey, publishableKey string) Gateway {
	return &stripeGateway{
		apiKey:             strings.TrimSpace(apiKey),
		publishableKey:     strings.TrimSpace(publishableKey),
		newCheckoutSession: checkoutsession.New,
		newPortalSession:   portalsession.New,
		getSubscription:    subscription.Get,
	}
}

func (g *stripeGateway) Configured() bool {
	return g.apiKey != "" && g.publishableKey != ""
}

func (g *stripeGateway) init() error {
	if g.apiKey == "" {
		return ErrNotConfigured
	}
	stripe.Key = g.apiKey
	return nil
}

func (g *stripeGateway) CreateCheckoutSession(ctx context.Context, school *models.School, priceID, customerEmail, successURL, cancelURL string) (string, error) {
	if err := g.init(); err != nil {
		return "", err
	}
	metadata := map[string]string{
		MetadataSchoolSlug: school.Slug,
		MetadataSchoolID:   strconv.FormatUint(uint64(school.ID), 10),
	}
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		SuccessURL:        stripe.String(successURL),
		CancelURL:         stripe.String(cancelURL),
		ClientReferenceID: stripe.String(school.Slug),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(priceID),
				Quantity: stripe.Int64(1),
			},
		},
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: metadata,
		},
	}
	params.Context = ctx
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}
	if school.StripeCustomerID != "" {
		params.Customer = stripe.String(school.StripeCustomerID)
	} else if strings.TrimSpace(customerEmail) != "" {
		params.CustomerEmail = stripe.String(strings.TrimSpace(customerEmail))
	}

	cs, err := g.newCheckoutSession(params)
	if err != nil {
		return "", fmt.Errorf("create checkout session for %s: %w", school.Slug, err)
	}
	return cs.URL, nil
}

func (g *stripeGateway) CreatePortalSession(ctx context.Context, school *models.School, returnURL string) (string, error) {
	if err := g.init(); err != nil {
		return "", err
	}
	if school.StripeCustomerID == "" {
		return "", ErrNoCustomer
	}
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(school.StripeCustomerID),
		ReturnURL: stripe.String(returnURL),
	}
	params.Context = ctx
	ps, err := g.newPortalSession(params)
	if err != nil {
		return "", fmt.Errorf("create portal session for %s: %w", school.Slug, err)
	}
	return ps.URL, nil
}

func (g *stripeGateway) GetSubscription(ctx context.Context, subscriptionID string) (SubscriptionSnapshot, error) {
	if err := g.init(); err != nil {
		return SubscriptionSnapshot{}, err
	}
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	sub, err := g.getSubscription(subscriptionID, params)
	if err != nil {
		return SubscriptionSnapshot{}, fmt.Errorf("fetch subscription %s: %w", subscriptionID, err)
	}
	return snapshotFromAPI(sub), nil
}

func snapshotFromAPI(sub *stripe.Subscription) SubscriptionSnapshot {
	snap := SubscriptionSnapshot{
		ID:                sub.ID,
		Status:            string(sub.Status),
		CancelAt:          unixTime(sub.CancelAt),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		SchoolSlug:        sub.Metadata[MetadataSchoolSlug],
	}
	if sub.Customer != nil {
		snap.CustomerID = sub.Customer.ID
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 {
		item := sub.Items.Data[0]
		if item.Price != nil {
			snap.PriceID = item.Price.ID
		}
		snap.CurrentPeriodEnd = unixTime(item.CurrentPeriodEnd)
	}
	return snap
}

// EnrichCheckout fills price and status from the subscription when the
// checkout payload carried no line items, which is the usual webhook shape.
func EnrichCheckout(ctx context.Context, gw Gateway, ev CheckoutCompleted) (CheckoutCompleted, error) {
	if ev.PriceID != "" || ev.SubscriptionID == "" || gw == nil || !gw.Configured() {
		return ev, nil
	}
	snap, err := gw.GetSubscription(ctx, ev.SubscriptionID)
	if err != nil {
		return ev, err
	}
	ev.PriceID = snap.PriceID
	ev.Status = snap.Status
	if ev.CustomerID == "" {
		ev.CustomerID = snap.CustomerID
	}
	return ev, nil
}
