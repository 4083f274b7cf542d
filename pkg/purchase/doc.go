// Package purchase implements the purchase lifecycle orchestrator for the
// paywall: plan selection, the purchase state machine, promo coordination and
// subscription status reconciliation.
//
// The Orchestrator serializes overlapping user actions through the state
// machine's preconditions rather than through queuing: a second Purchase call
// while one is processing is rejected, never interleaved. Promo application
// and removal follow strict coordination rules: a successful apply replaces
// the selection with the discounted plan and remove restores the original,
// while a successful purchase redeems and clears the applied promo.
//
//	orch := purchase.NewOrchestrator(billing,
//		purchase.WithPromoEngine(engine),
//		purchase.WithListeners(purchase.Listeners{
//			OnPurchaseCompleted: func(info purchase.Info) { /* analytics */ },
//		}),
//	)
//
//	orch.SelectPlan(monthly)
//	if err := orch.ApplyPromo(ctx, "SAVE20"); err != nil {
//		// invalid code; original pricing still selected
//	}
//	if err := orch.Purchase(ctx); err != nil {
//		// state is error; selection and promo are kept for retry
//	}
//
// Success and error are transient states: callers either call Reset when
// dismissing the result, or construct the orchestrator with WithAutoReset to
// return to idle after a delay.
package purchase
