package purchase

import "errors"

var (
	ErrNoPlanSelected     = errors.New("no plan selected")
	ErrSelectPlanFirst    = errors.New("select a plan before applying a promo code")
	ErrPurchaseInProgress = errors.New("a purchase is already processing")
	ErrPromoInProgress    = errors.New("a promo code is already being applied")
	ErrNoPromoEngine      = errors.New("no promo engine configured")
	ErrPurchaseFailed     = errors.New("purchase failed")
	ErrRestoreFailed      = errors.New("failed to restore purchases")
	ErrStatusFetch        = errors.New("failed to fetch subscription status")
	ErrNoStatus           = errors.New("subscription status not available")
)
