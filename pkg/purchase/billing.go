package purchase

import (
	"context"

	"github.com/dmitrymomot/paywallkit/pkg/plan"
)

// Billing is the payment collaborator interface. Implementations wrap a
// payment provider SDK (Paddle, StoreKit bridge, Play Billing bridge) and own
// their request timeouts; the orchestrator adds no timeout layer but
// propagates failures as typed errors.
type Billing interface {
	// Purchase executes payment for the plan. promoCode is the canonical
	// applied code, or empty when no promo is live.
	Purchase(ctx context.Context, p plan.Plan, promoCode string) (*Info, error)

	// Restore re-fetches previously completed purchases for the current user.
	Restore(ctx context.Context) ([]Info, error)

	// GetStatus returns the current subscription status.
	GetStatus(ctx context.Context) (*Status, error)
}
