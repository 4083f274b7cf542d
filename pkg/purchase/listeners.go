package purchase

import (
	"github.com/dmitrymomot/paywallkit/pkg/plan"
	"github.com/dmitrymomot/paywallkit/pkg/promo"
)

// Listeners is an optional set of lifecycle callbacks invoked synchronously
// at well-defined points. All fields are optional and none is required for
// correctness; they exist for analytics and presentation side channels.
type Listeners struct {
	OnPurchaseStarted   func(p plan.Plan)
	OnPurchaseCompleted func(info Info)
	OnPurchaseFailed    func(p plan.Plan, err error)

	OnPromoApplied func(app promo.Application)
	OnPromoRemoved func(app promo.Application)
	OnPromoError   func(code string, err error)

	OnRestoreStarted   func()
	OnRestoreCompleted func(infos []Info)
	OnRestoreFailed    func(err error)

	OnStatusRefreshed func(status Status)
}

func (l Listeners) purchaseStarted(p plan.Plan) {
	if l.OnPurchaseStarted != nil {
		l.OnPurchaseStarted(p)
	}
}

func (l Listeners) purchaseCompleted(info Info) {
	if l.OnPurchaseCompleted != nil {
		l.OnPurchaseCompleted(info)
	}
}

func (l Listeners) purchaseFailed(p plan.Plan, err error) {
	if l.OnPurchaseFailed != nil {
		l.OnPurchaseFailed(p, err)
	}
}

func (l Listeners) promoApplied(app promo.Application) {
	if l.OnPromoApplied != nil {
		l.OnPromoApplied(app)
	}
}

func (l Listeners) promoRemoved(app promo.Application) {
	if l.OnPromoRemoved != nil {
		l.OnPromoRemoved(app)
	}
}

func (l Listeners) promoError(code string, err error) {
	if l.OnPromoError != nil {
		l.OnPromoError(code, err)
	}
}

func (l Listeners) restoreStarted() {
	if l.OnRestoreStarted != nil {
		l.OnRestoreStarted()
	}
}

func (l Listeners) restoreCompleted(infos []Info) {
	if l.OnRestoreCompleted != nil {
		l.OnRestoreCompleted(infos)
	}
}

func (l Listeners) restoreFailed(err error) {
	if l.OnRestoreFailed != nil {
		l.OnRestoreFailed(err)
	}
}

func (l Listeners) statusRefreshed(status Status) {
	if l.OnStatusRefreshed != nil {
		l.OnStatusRefreshed(status)
	}
}
