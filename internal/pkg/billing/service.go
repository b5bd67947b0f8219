package billing

import (
	"context"
	"errors"
	"strings"

	"github.com/ManuelReschke/FormFox/app/models"
	"github.com/ManuelReschke/FormFox/internal/pkg/env"
	"gorm.io/gorm"
)

// Service bundles webhook processing with the outbound Stripe calls used by
// the billing pages.
type Service struct {
	processor     *Processor
	gateway       Gateway
	prices        *PriceCatalog
	webhookSecret string
}

// NewService creates a billing service from injected collaborators.
func NewService(processor *Processor, gateway Gateway, prices *PriceCatalog, webhookSecret string) *Service {
	return &Service{
		processor:     processor,
		gateway:       gateway,
		prices:        prices,
		webhookSecret: strings.TrimSpace(webhookSecret),
	}
}

// NewServiceFromDB creates a billing service from a GORM DB handle and the
// STRIPE_* environment.
func NewServiceFromDB(db *gorm.DB) *Service {
	prices := NewPriceCatalogFromEnv()
	return NewService(
		NewProcessor(NewStore(db), prices),
		NewGatewayFromEnv(),
		prices,
		env.GetEnv("STRIPE_WEBHOOK_SECRET", ""),
	)
}

// HandleWebhook verifies, parses and applies a raw webhook delivery.
// ErrInvalidSignature and ErrUnsupportedEvent are returned before anything
// is stored.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) (Result, error) {
	ev, err := ParseWebhook(payload, signature, s.webhookSecret)
	if err != nil {
		return Result{}, err
	}
	if cc, ok := ev.(CheckoutCompleted); ok {
		enriched, err := EnrichCheckout(ctx, s.gateway, cc)
		if err != nil {
			return Result{}, err
		}
		ev = enriched
	}
	return s.processor.Apply(ctx, ev)
}

// StartCheckout creates a hosted checkout session for one of the configured prices.
func (s *Service) StartCheckout(ctx context.Context, school *models.School, priceID, customerEmail, successURL, cancelURL string) (string, error) {
	if !s.CheckoutEnabled() {
		return "", ErrNotConfigured
	}
	priceID = strings.TrimSpace(priceID)
	if !s.prices.Valid(priceID) {
		return "", ErrInvalidPrice
	}
	return s.gateway.CreateCheckoutSession(ctx, school, priceID, customerEmail, successURL, cancelURL)
}

// PortalURL returns a Stripe customer portal link for the school.
func (s *Service) PortalURL(ctx context.Context, school *models.School, returnURL string) (string, error) {
	if s.gateway == nil || !s.gateway.Configured() {
		return "", ErrNotConfigured
	}
	if strings.TrimSpace(school.StripeCustomerID) == "" {
		return "", ErrNoCustomer
	}
	return s.gateway.CreatePortalSession(ctx, school, returnURL)
}

// CheckoutEnabled reports whether keys and at least one price are configured.
func (s *Service) CheckoutEnabled() bool {
	return s.gateway != nil && s.gateway.Configured() && len(s.prices.Options()) > 0
}

// Prices returns the purchasable prices.
func (s *Service) Prices() []PriceOption {
	return s.prices.Options()
}

// IsClientError reports whether a webhook error should be answered with 400
// instead of 500.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidSignature)
}
