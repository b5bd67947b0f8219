package billing

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/ManuelReschke/FormFox/app/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

const testWebhookSecret = "whsec_test_secret"

func signedEvent(t *testing.T, eventType string, object map[string]any) ([]byte, string) {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"id":      "evt_test_1",
		"object":  "event",
		"type":    eventType,
		"created": int64(1767225600),
		"data":    map[string]any{"object": object},
	})
	require.NoError(t, err)

	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    testWebhookSecret,
		Timestamp: time.Now(),
		Scheme:    "v1",
	})
	return signed.Payload, signed.Header
}

func TestParseWebhookCheckout(t *testing.T) {
	payload, header := signedEvent(t, "checkout.session.completed", map[string]any{
		"id":           "cs_1",
		"object":       "checkout.session",
		"customer":     "cus_1",
		"subscription": "sub_1",
		"metadata":     map[string]any{"school_slug": "north"},
	})

	ev, err := ParseWebhook(payload, header, testWebhookSecret)
	require.NoError(t, err)
	cc, ok := ev.(CheckoutCompleted)
	require.True(t, ok)
	assert.Equal(t, KindCheckoutCompleted, cc.Kind())
	assert.Equal(t, "evt_test_1", cc.ID)
	assert.Equal(t, "north", cc.SchoolSlug)
	assert.Equal(t, "cus_1", cc.CustomerID)
	assert.Equal(t, "sub_1", cc.SubscriptionID)
	assert.Equal(t, time.Unix(1767225600, 0).UTC(), cc.CreatedAt)
	assert.Equal(t, string(payload), cc.RawPayload)
}

func TestParseWebhookCheckoutClientReference(t *testing.T) {
	payload, header := signedEvent(t, "checkout.session.completed", map[string]any{
		"id":                  "cs_1",
		"object":              "checkout.session",
		"client_reference_id": "east",
		"line_items": map[string]any{
			"data": []any{map[string]any{"price": map[string]any{"id": "price_pro"}}},
		},
	})

	ev, err := ParseWebhook(payload, header, testWebhookSecret)
	require.NoError(t, err)
	cc := ev.(CheckoutCompleted)
	assert.Equal(t, "east", cc.SchoolSlug)
	assert.Equal(t, "price_pro", cc.PriceID)
}

func TestParseWebhookSubscription(t *testing.T) {
	object := map[string]any{
		"id":                   "sub_1",
		"object":               "subscription",
		"customer":             "cus_1",
		"status":               "active",
		"cancel_at":            nil,
		"cancel_at_period_end": true,
		"metadata":             map[string]any{"school_slug": "north"},
		"items": map[string]any{
			"data": []any{map[string]any{
				"current_period_end": int64(1769904000),
				"price":              map[string]any{"id": "price_starter"},
			}},
		},
	}

	payload, header := signedEvent(t, "customer.subscription.updated", object)
	ev, err := ParseWebhook(payload, header, testWebhookSecret)
	require.NoError(t, err)
	up, ok := ev.(SubscriptionUpdated)
	require.True(t, ok)
	assert.Equal(t, "sub_1", up.Subscription.ID)
	assert.Equal(t, "active", up.Subscription.Status)
	assert.Equal(t, "price_starter", up.Subscription.PriceID)
	assert.True(t, up.Subscription.CancelAtPeriodEnd)
	assert.Nil(t, up.Subscription.CancelAt)
	require.NotNil(t, up.Subscription.CurrentPeriodEnd)
	assert.Equal(t, int64(1769904000), up.Subscription.CurrentPeriodEnd.Unix())
	assert.Equal(t, "north", up.Subscription.SchoolSlug)

	object["status"] = "canceled"
	payload, header = signedEvent(t, "customer.subscription.deleted", object)
	ev, err = ParseWebhook(payload, header, testWebhookSecret)
	require.NoError(t, err)
	del, ok := ev.(SubscriptionDeleted)
	require.True(t, ok)
	assert.Equal(t, KindSubscriptionDeleted, del.Kind())
	assert.Equal(t, "sub_1", del.Subscription.ID)
}

func TestParseWebhookRejectsBadSignatures(t *testing.T) {
	payload, header := signedEvent(t, "checkout.session.completed", map[string]any{"id": "cs_1"})
	tampered := append(append([]byte(nil), payload...), ' ')

	tests := []struct {
		name    string
		payload []byte
		header  string
		secret  string
	}{
		{"wrong secret", payload, header, "whsec_other"},
		{"empty secret", payload, header, ""},
		{"missing header", payload, "", testWebhookSecret},
		{"tampered payload", tampered, header, testWebhookSecret},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := ParseWebhook(tt.payload, tt.header, tt.secret)
			assert.Nil(t, ev)
			assert.ErrorIs(t, err, ErrInvalidSignature)
			assert.True(t, IsClientError(err))
		})
	}
}

func TestParseWebhookUnsupportedType(t *testing.T) {
	payload, header := signedEvent(t, "invoice.paid", map[string]any{"id": "in_1"})
	_, err := ParseWebhook(payload, header, testWebhookSecret)
	assert.ErrorIs(t, err, ErrUnsupportedEvent)
	assert.False(t, IsClientError(err))
}

type fakeGateway struct {
	configured bool
	snapshot   SubscriptionSnapshot
	err        error
	calls      int
}

func (f *fakeGateway) CreateCheckoutSession(ctx context.Context, school *models.School, priceID, customerEmail, successURL, cancelURL string) (string, error) {
	return "https://checkout.stripe.test/" + school.Slug + "/" + priceID, f.err
}

func (f *fakeGateway) CreatePortalSession(ctx context.Context, school *models.School, returnURL string) (string, error) {
	return "https://billing.stripe.test/" + school.StripeCustomerID, f.err
}

func (f *fakeGateway) GetSubscription(ctx context.Context, subscriptionID string) (SubscriptionSnapshot, error) {
	f.calls++
	return f.snapshot, f.err
}

func (f *fakeGateway) Configured() bool { return f.configured }

func TestEnrichCheckout(t *testing.T) {
	gw := &fakeGateway{configured: true, snapshot: SubscriptionSnapshot{ID: "sub_1", PriceID: "price_pro", Status: "trialing", CustomerID: "cus_9"}}
	ev := CheckoutCompleted{SubscriptionID: "sub_1", SchoolSlug: "north"}

	out, err := EnrichCheckout(context.Background(), gw, ev)
	require.NoError(t, err)
	assert.Equal(t, "price_pro", out.PriceID)
	assert.Equal(t, "trialing", out.Status)
	assert.Equal(t, "cus_9", out.CustomerID)

	// A price on the session skips the lookup.
	gw.calls = 0
	ev.PriceID = "price_starter"
	out, err = EnrichCheckout(context.Background(), gw, ev)
	require.NoError(t, err)
	assert.Equal(t, "price_starter", out.PriceID)
	assert.Equal(t, 0, gw.calls)

	gw.err = errors.New("stripe down")
	_, err = EnrichCheckout(context.Background(), gw, CheckoutCompleted{SubscriptionID: "sub_1"})
	assert.Error(t, err)

	out, err = EnrichCheckout(context.Background(), &fakeGateway{}, CheckoutCompleted{SubscriptionID: "sub_1"})
	require.NoError(t, err)
	assert.Empty(t, out.PriceID)
}

func TestStripeGatewayCheckoutParams(t *testing.T) {
	gw := NewGateway("sk_test_1", "pk_test_1").(*stripeGateway)
	var captured *stripe.CheckoutSessionParams
	gw.newCheckoutSession = func(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
		captured = params
		return &stripe.CheckoutSession{URL: "https://checkout.stripe.test/cs_1"}, nil
	}

	school := &models.School{ID: 3, Slug: "north"}
	url, err := gw.CreateCheckoutSession(context.Background(), school, "price_pro", "head@north.test", "https://app.test/billing?ok=1", "https://app.test/billing")
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.stripe.test/cs_1", url)
	require.NotNil(t, captured)
	assert.Equal(t, string(stripe.CheckoutSessionModeSubscription), *captured.Mode)
	assert.Equal(t, "north", *captured.ClientReferenceID)
	assert.Equal(t, "head@north.test", *captured.CustomerEmail)
	assert.Nil(t, captured.Customer)
	assert.Equal(t, "price_pro", *captured.LineItems[0].Price)
	assert.Equal(t, "north", captured.SubscriptionData.Metadata[MetadataSchoolSlug])
	assert.Equal(t, "3", captured.Metadata[MetadataSchoolID])

	school.StripeCustomerID = "cus_1"
	_, err = gw.CreateCheckoutSession(context.Background(), school, "price_pro", "head@north.test", "s", "c")
	require.NoError(t, err)
	assert.Equal(t, "cus_1", *captured.Customer)
	assert.Nil(t, captured.CustomerEmail)
}

func TestStripeGatewayNotConfigured(t *testing.T) {
	gw := NewGateway("", "")
	assert.False(t, gw.Configured())
	_, err := gw.CreatePortalSession(context.Background(), &models.School{StripeCustomerID: "cus_1"}, "/billing")
	assert.ErrorIs(t, err, ErrNotConfigured)
	_, err = gw.GetSubscription(context.Background(), "sub_1")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestStripeGatewayGetSubscription(t *testing.T) {
	gw := NewGateway("sk_test_1", "pk_test_1").(*stripeGateway)
	gw.getSubscription = func(id string, params *stripe.SubscriptionParams) (*stripe.Subscription, error) {
		return &stripe.Subscription{
			ID:                id,
			Status:            stripe.SubscriptionStatusActive,
			Customer:          &stripe.Customer{ID: "cus_1"},
			CancelAtPeriodEnd: true,
			Metadata:          map[string]string{MetadataSchoolSlug: "north"},
			Items: &stripe.SubscriptionItemList{Data: []*stripe.SubscriptionItem{
				{Price: &stripe.Price{ID: "price_growth"}, CurrentPeriodEnd: 1769904000},
			}},
		}, nil
	}

	snap, err := gw.GetSubscription(context.Background(), "sub_1")
	require.NoError(t, err)
	assert.Equal(t, "sub_1", snap.ID)
	assert.Equal(t, "active", snap.Status)
	assert.Equal(t, "cus_1", snap.CustomerID)
	assert.Equal(t, "price_growth", snap.PriceID)
	assert.True(t, snap.CancelAtPeriodEnd)
	assert.Equal(t, "north", snap.SchoolSlug)
	require.NotNil(t, snap.CurrentPeriodEnd)
	assert.Equal(t, int64(1769904000), snap.CurrentPeriodEnd.Unix())
}
