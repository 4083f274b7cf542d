package promo

import (
	"slices"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"

	"github.com/dmitrymomot/paywallkit/pkg/discount"
	"github.com/dmitrymomot/paywallkit/pkg/plan"
)

// Code describes a promotional discount code as stored in the catalog.
type Code struct {
	ID               string
	Code             string // canonical form, see Canonicalize
	Discount         discount.Rule
	MaxUses          int // 0 means unlimited
	CurrentUses      int
	ValidFrom        time.Time // zero means no lower bound
	ValidUntil       time.Time // zero means no upper bound
	Active           bool
	ApplicablePlans  []string // plan IDs; empty means applies to all plans
	NewCustomersOnly bool
}

// AppliesTo reports whether the code may be used with the given plan.
func (c Code) AppliesTo(planID string) bool {
	if len(c.ApplicablePlans) == 0 {
		return true
	}
	return slices.Contains(c.ApplicablePlans, planID)
}

// Exhausted reports whether the code's usage limit has been reached.
func (c Code) Exhausted() bool {
	return c.MaxUses > 0 && c.CurrentUses >= c.MaxUses
}

// WithinWindow reports whether now falls inside the code's validity window.
func (c Code) WithinWindow(now time.Time) bool {
	if !c.ValidFrom.IsZero() && now.Before(c.ValidFrom) {
		return false
	}
	if !c.ValidUntil.IsZero() && now.After(c.ValidUntil) {
		return false
	}
	return true
}

func (c Code) clone() Code {
	cp := c
	cp.ApplicablePlans = slices.Clone(c.ApplicablePlans)
	return cp
}

// Validation is the value-typed outcome of a code check. A Validation with
// Valid=false carries no trustworthy discount fields; callers must only read
// Code and DiscountedPrice when Valid is true.
type Validation struct {
	Valid           bool
	Code            *Code
	DiscountedPrice *decimal.Decimal
	Message         string // human-readable, suitable for direct display
	Reason          Reason
}

// Application binds a validated code to the plan it was applied to. It is the
// only durable evidence within a session that a discount is live.
type Application struct {
	Code           Code
	OriginalPlan   plan.Plan
	DiscountedPlan plan.Plan
	AppliedAt      time.Time
}

// Canonicalize normalizes user input into the catalog's code form:
// surrounding whitespace is trimmed, inner whitespace removed, and the result
// uppercased. Codes are case-insensitive by contract.
func Canonicalize(code string) string {
	var b strings.Builder
	b.Grow(len(code))
	for _, r := range strings.TrimSpace(code) {
		if unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(unicode.ToUpper(r))
	}
	return b.String()
}
