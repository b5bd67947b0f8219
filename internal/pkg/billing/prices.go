package billing

import (
	"strings"

	"github.com/ManuelReschke/FormFox/internal/pkg/entitlements"
	"github.com/ManuelReschke/FormFox/internal/pkg/env"
)

// PriceOption is a purchasable Stripe price shown on the billing page.
type PriceOption struct {
	Key      string `json:"key"`
	PriceID  string `json:"price_id"`
	Name     string `json:"name"`
	Plan     string `json:"plan"`
	Interval string `json:"interval"`
}

// PriceCatalog maps Stripe price ids to plans.
type PriceCatalog struct {
	options []PriceOption
	byPrice map[string]PriceOption
}

// NewPriceCatalog builds a catalog from options. Options without a price id
// are skipped.
func NewPriceCatalog(options ...PriceOption) *PriceCatalog {
	c := &PriceCatalog{byPrice: make(map[string]PriceOption, len(options))}
	for _, o := range options {
		o.PriceID = strings.TrimSpace(o.PriceID)
		if o.PriceID == "" {
			continue
		}
		if _, dup := c.byPrice[o.PriceID]; dup {
			continue
		}
		c.options = append(c.options, o)
		c.byPrice[o.PriceID] = o
	}
	return c
}

// NewPriceCatalogFromEnv reads STRIPE_PRICE_<PLAN>_<MONTHLY|ANNUAL>.
func NewPriceCatalogFromEnv() *PriceCatalog {
	var options []PriceOption
	for _, plan := range []entitlements.Plan{entitlements.PlanStarter, entitlements.PlanPro, entitlements.PlanGrowth} {
		upper := strings.ToUpper(string(plan))
		label := entitlements.Label(plan)
		options = append(options,
			PriceOption{
				Key:      string(plan) + "_monthly",
				PriceID:  env.GetEnv("STRIPE_PRICE_"+upper+"_MONTHLY", ""),
				Name:     label + " Monthly",
				Plan:     string(plan),
				Interval: "month",
			},
			PriceOption{
				Key:      string(plan) + "_annual",
				PriceID:  env.GetEnv("STRIPE_PRICE_"+upper+"_ANNUAL", ""),
				Name:     label + " Annual",
				Plan:     string(plan),
				Interval: "year",
			},
		)
	}
	return NewPriceCatalog(options...)
}

// PlanForPrice returns the plan a price grants.
func (c *PriceCatalog) PlanForPrice(priceID string) (entitlements.Plan, bool) {
	if c == nil {
		return "", false
	}
	o, ok := c.byPrice[strings.TrimSpace(priceID)]
	if !ok {
		return "", false
	}
	return entitlements.Plan(o.Plan), true
}

// Valid reports whether a price may be used for checkout.
func (c *PriceCatalog) Valid(priceID string) bool {
	_, ok := c.PlanForPrice(priceID)
	return ok
}

// Options returns the configured prices in display order.
func (c *PriceCatalog) Options() []PriceOption {
	if c == nil {
		return nil
	}
	out := make([]PriceOption, len(c.options))
	copy(out, c.options)
	return out
}
