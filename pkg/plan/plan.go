package plan

import (
	"slices"

	"github.com/shopspring/decimal"
)

// Interval represents the billing duration of a subscription plan.
type Interval string

const (
	IntervalMonthly  Interval = "monthly"
	IntervalYearly   Interval = "yearly"
	IntervalLifetime Interval = "lifetime"
)

// Plan describes a purchasable subscription tier.
// The ProductID field should be set to the billing provider's price ID
// to enable direct mapping during purchase.
//
// Plan is a value type: derived plans (e.g. after a promo discount) are new
// values created via WithPrice, never in-place mutations.
type Plan struct {
	ID              string
	Name            string
	Description     string
	Price           decimal.Decimal
	Currency        string // ISO 4217 currency code
	Interval        Interval
	Features        []string // ordered for display
	OriginalPrice   *decimal.Decimal
	DiscountPercent int
	Popular         bool
	ProductID       string // provider's price ID (e.g. price_pro_monthly)
}

// WithPrice derives a new plan value with the given price. The returned plan
// keeps the receiver's price as OriginalPrice unless one is already set, so
// chained derivations still point at the true base price.
func (p Plan) WithPrice(price decimal.Decimal) Plan {
	derived := p
	derived.Features = slices.Clone(p.Features)
	derived.Price = price

	if p.OriginalPrice == nil {
		original := p.Price
		derived.OriginalPrice = &original
	}
	return derived
}

// HasFeature reports whether the plan includes the given feature.
func (p Plan) HasFeature(feature string) bool {
	return slices.Contains(p.Features, feature)
}

// Equal reports whether two plans are the same value, including pricing.
func (p Plan) Equal(other Plan) bool {
	if p.ID != other.ID || p.Name != other.Name || p.Currency != other.Currency ||
		p.Interval != other.Interval || p.ProductID != other.ProductID {
		return false
	}
	if !p.Price.Equal(other.Price) {
		return false
	}
	if (p.OriginalPrice == nil) != (other.OriginalPrice == nil) {
		return false
	}
	if p.OriginalPrice != nil && !p.OriginalPrice.Equal(*other.OriginalPrice) {
		return false
	}
	return slices.Equal(p.Features, other.Features)
}

// clone deep-copies a plan so sources never leak shared slices to callers.
func (p Plan) clone() Plan {
	c := p
	c.Features = slices.Clone(p.Features)
	if p.OriginalPrice != nil {
		original := *p.OriginalPrice
		c.OriginalPrice = &original
	}
	return c
}

func validate(p Plan) error {
	if p.ID == "" {
		return ErrInvalidPlanConfiguration
	}
	if p.Price.IsNegative() {
		return ErrInvalidPlanConfiguration
	}
	switch p.Interval {
	case IntervalMonthly, IntervalYearly, IntervalLifetime:
		return nil
	default:
		return ErrInvalidPlanConfiguration
	}
}
