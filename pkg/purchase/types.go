package purchase

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// Info describes a completed purchase as reported by the billing collaborator.
type Info struct {
	TransactionID  string
	ProductID      string
	PurchaseDate   time.Time
	ExpirationDate *time.Time // nil for lifetime purchases
	FinalPrice     decimal.Decimal
	Currency       string
}

// Status is the billing collaborator's view of the user's subscription.
type Status struct {
	Active         bool
	Entitlements   []string
	ExpirationDate *time.Time
	WillRenew      bool
	TrialPeriod    bool
}

// PremiumEntitlement unlocks every gated feature when present.
const PremiumEntitlement = "premium"

// Unlocks reports whether the status grants access to the given feature:
// the status must be active and carry either the feature's entitlement or the
// premium entitlement.
func (s Status) Unlocks(featureID string) bool {
	if !s.Active {
		return false
	}
	return slices.Contains(s.Entitlements, featureID) ||
		slices.Contains(s.Entitlements, PremiumEntitlement)
}

func (s Status) clone() Status {
	c := s
	c.Entitlements = slices.Clone(s.Entitlements)
	if s.ExpirationDate != nil {
		exp := *s.ExpirationDate
		c.ExpirationDate = &exp
	}
	return c
}
