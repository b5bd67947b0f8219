package controllers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/ManuelReschke/FormFox/app/models"
	"github.com/ManuelReschke/FormFox/internal/pkg/billing"
	"github.com/ManuelReschke/FormFox/internal/pkg/usercontext"
)

func stripeEvent(t *testing.T, id, eventType string, object map[string]any) *http.Request {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"id":      id,
		"object":  "event",
		"type":    eventType,
		"created": testNow.Unix(),
		"data":    map[string]any{"object": object},
	})
	require.NoError(t, err)

	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    testWebhookSecret,
		Timestamp: time.Now(),
		Scheme:    "v1",
	})
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(string(signed.Payload)))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	req.Header.Set("Stripe-Signature", signed.Header)
	return req
}

func checkoutObject(slug, priceID string) map[string]any {
	obj := map[string]any{
		"id":           "cs_" + slug,
		"object":       "checkout.session",
		"customer":     "cus_" + slug,
		"subscription": "sub_" + slug,
		"metadata":     map[string]any{"school_slug": slug},
	}
	if priceID != "" {
		obj["line_items"] = map[string]any{
			"data": []any{map[string]any{"price": map[string]any{"id": priceID}}},
		}
	}
	return obj
}

func decodeJSON(t *testing.T, body string) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(body), &out))
	return out
}

func TestStripeWebhookAppliesCheckoutOnce(t *testing.T) {
	env := newTestEnv(t)
	app := env.app(nil)

	resp, body := do(t, app, stripeEvent(t, "evt_1", "checkout.session.completed", checkoutObject("south", "price_pro")))
	require.Equal(t, fiber.StatusOK, resp.StatusCode, body)
	assert.Equal(t, map[string]any{"ok": true, "outcome": "applied"}, decodeJSON(t, body))

	south := env.reload(t, env.south)
	assert.True(t, south.IsActive)
	assert.Equal(t, "pro", south.Plan)
	assert.Equal(t, "cus_south", south.StripeCustomerID)
	assert.Equal(t, "sub_south", south.StripeSubscriptionID)

	resp, body = do(t, app, stripeEvent(t, "evt_1", "checkout.session.completed", checkoutObject("south", "price_pro")))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "duplicate", decodeJSON(t, body)["outcome"])

	var events int64
	require.NoError(t, env.db.Model(&models.BillingWebhookEvent{}).Count(&events).Error)
	assert.Equal(t, int64(1), events)
}

func TestStripeWebhookDeletionLocksSchool(t *testing.T) {
	env := newTestEnv(t)
	app := env.app(nil)

	resp, _ := do(t, app, stripeEvent(t, "evt_1", "checkout.session.completed", checkoutObject("north", "price_starter")))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, body := do(t, app, stripeEvent(t, "evt_2", "customer.subscription.deleted", map[string]any{
		"id":       "sub_north",
		"object":   "subscription",
		"customer": "cus_north",
		"status":   "canceled",
		"metadata": map[string]any{"school_slug": "north"},
	}))
	require.Equal(t, fiber.StatusOK, resp.StatusCode, body)
	assert.Equal(t, "applied", decodeJSON(t, body)["outcome"])

	north := env.reload(t, env.north)
	assert.False(t, north.IsActive)
	assert.Equal(t, billing.StateLocked, billing.StateOf(north))
}

func TestStripeWebhookRejectsBadSignature(t *testing.T) {
	env := newTestEnv(t)
	app := env.app(nil)

	req := stripeEvent(t, "evt_1", "checkout.session.completed", checkoutObject("south", "price_pro"))
	req.Header.Set("Stripe-Signature", "t=1,v1=deadbeef")
	resp, body := do(t, app, req)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_signature", decodeJSON(t, body)["error"])
	assert.False(t, env.reload(t, env.south).IsActive)

	req = httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(`{"id":"evt_x"}`))
	resp, _ = do(t, app, req)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestStripeWebhookIgnoresUnsupportedTypes(t *testing.T) {
	env := newTestEnv(t)

	resp, body := do(t, env.app(nil), stripeEvent(t, "evt_1", "invoice.paid", map[string]any{"id": "in_1", "object": "invoice"}))
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]any{"ok": true, "ignored": true}, decodeJSON(t, body))
}

func TestStripeWebhookEnrichmentFailureIsRetried(t *testing.T) {
	env := newTestEnv(t)
	env.gateway.err = errors.New("stripe unavailable")

	resp, body := do(t, env.app(nil), stripeEvent(t, "evt_1", "checkout.session.completed", checkoutObject("south", "")))
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "webhook_processing_failed", decodeJSON(t, body)["error"])
	assert.False(t, env.reload(t, env.south).IsActive)

	// The failed delivery left no dedupe record, so the retry applies.
	env.gateway.err = nil
	resp, body = do(t, env.app(nil), stripeEvent(t, "evt_1", "checkout.session.completed", checkoutObject("south", "")))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "applied", decodeJSON(t, body)["outcome"])
	assert.Equal(t, "starter", env.reload(t, env.south).Plan)
}

func TestBillingPageReachableWhenLocked(t *testing.T) {
	env := newTestEnv(t)

	resp, body := get(t, env.app(staffOf(11, env.south)), "/billing")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "This school is locked")
	assert.Contains(t, body, "Pro Monthly")
	assert.Contains(t, body, string(billing.StateLocked))
}

func TestBillingPageSuperuserPicksSchool(t *testing.T) {
	env := newTestEnv(t)

	resp, body := get(t, env.app(superuser()), "/billing?school=east")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Manage subscription")
	assert.Contains(t, body, `value="east" selected`)
}

func TestBillingPageRequiresStaff(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := get(t, env.app(&usercontext.UserContext{}), "/billing")
	assert.Equal(t, fiber.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Location"))
}

func TestBillingCheckout(t *testing.T) {
	env := newTestEnv(t)
	app := env.app(staffOf(11, env.south))

	resp, _ := do(t, app, postForm("/billing/checkout", url.Values{"price_id": {"price_pro"}}))
	assert.Equal(t, fiber.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "https://checkout.stripe.test/south/price_pro", resp.Header.Get("Location"))

	resp, _ = do(t, app, postForm("/billing/checkout", url.Values{"price_id": {"price_unknown"}}))
	assert.Equal(t, fiber.StatusFound, resp.StatusCode)
	assert.Equal(t, "/billing", resp.Header.Get("Location"))

	// Staff cannot buy for another school.
	resp, _ = do(t, app, postForm("/billing/checkout", url.Values{"price_id": {"price_pro"}, "school": {"east"}}))
	assert.Equal(t, "https://checkout.stripe.test/south/price_pro", resp.Header.Get("Location"))
}

func TestBillingPortal(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := do(t, env.app(staffOf(12, env.east)), postForm("/billing/portal", url.Values{}))
	assert.Equal(t, fiber.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "https://billing.stripe.test/cus_east", resp.Header.Get("Location"))

	resp, _ = do(t, env.app(staffOf(10, env.north)), postForm("/billing/portal", url.Values{}))
	assert.Equal(t, fiber.StatusFound, resp.StatusCode)
	assert.Equal(t, "/billing", resp.Header.Get("Location"))
}

func TestAdminRunReminders(t *testing.T) {
	env := newTestEnv(t)
	runner := &fakeReminders{reminders: []billing.Reminder{
		{Slug: "east", Name: "east", Kind: billing.ReminderUpcoming, EffectiveAt: testNow.Add(48 * time.Hour)},
	}}
	deps.Reminders = runner

	resp, body := do(t, env.app(superuser()), postForm("/admin/billing/reminders", url.Values{}))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	out := decodeJSON(t, body)
	require.Len(t, out["reminders"], 1)
	assert.Equal(t, "upcoming", out["reminders"].([]any)[0].(map[string]any)["kind"])
	assert.Equal(t, testNow, runner.at)

	resp, _ = do(t, env.app(staffOf(12, env.east)), postForm("/admin/billing/reminders", url.Values{}))
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}
