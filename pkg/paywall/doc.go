// Package paywall wires the promo engine, the purchase orchestrator and the
// session store into a bootstrapped paywall session.
//
// A Session is created once at app startup. Bootstrap provisions a stable
// per-device user identifier (a UUID persisted through the Store), hydrates
// the orchestrator with the last-fetched subscription status so gated
// features resolve before the first network round-trip, and registers a
// write-through listener that persists every subsequent status refresh.
//
//	cfg, err := paywall.LoadConfig()
//	store := paywall.NewMemoryStore() // or NewRedisStore(client)
//
//	session, err := paywall.NewSession(ctx, paywall.Deps{
//		Config:  cfg,
//		Billing: billing,
//		Plans:   plansSource,
//		Catalog: catalog,
//		Store:   store,
//	})
//
//	session.Orchestrator().SelectPlan(monthly)
//
// The session exposes the orchestrator's full action set bound to the
// provisioned user id; presentation layers read the orchestrator's state and
// call its actions directly.
package paywall
