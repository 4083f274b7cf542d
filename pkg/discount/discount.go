package discount

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Kind enumerates the supported discount strategies.
type Kind string

const (
	// KindPercentage reduces the base price by a percentage of itself.
	KindPercentage Kind = "percentage"
	// KindFixed subtracts a fixed monetary amount, capped at the base price.
	KindFixed Kind = "fixed"
	// KindFreeTrial prices the purchase at zero; TrialDays carries the trial
	// length for display layers only.
	KindFreeTrial Kind = "free_trial"
)

// Rule defines how a price is reduced.
type Rule struct {
	Kind      Kind
	Value     decimal.Decimal
	TrialDays int // free_trial only
}

var oneHundred = decimal.NewFromInt(100)

// ComputePrice returns the discounted price for a non-negative base price.
// The result is clamped at zero for every kind; unknown kinds leave the base
// price unchanged. Negative base prices are a caller error and are not
// handled here.
func ComputePrice(base decimal.Decimal, rule Rule) decimal.Decimal {
	var discounted decimal.Decimal

	switch rule.Kind {
	case KindPercentage:
		discounted = base.Sub(base.Mul(rule.Value).Div(oneHundred))
	case KindFixed:
		discounted = base.Sub(rule.Value)
	case KindFreeTrial:
		return decimal.Zero
	default:
		return base
	}

	if discounted.IsNegative() {
		return decimal.Zero
	}
	return discounted
}

// Describe returns a short human-readable label for the rule,
// e.g. "20% off", "5.00 off" or "14-day free trial".
func (r Rule) Describe() string {
	switch r.Kind {
	case KindPercentage:
		return fmt.Sprintf("%s%% off", r.Value.String())
	case KindFixed:
		return fmt.Sprintf("%s off", r.Value.StringFixed(2))
	case KindFreeTrial:
		return fmt.Sprintf("%d-day free trial", r.TrialDays)
	default:
		return ""
	}
}
