// Package promo implements promo code validation, discount application and
// redemption tracking for the paywall.
//
// The Engine validates codes against a Catalog collaborator, memoizes every
// validation outcome (including negative ones) in a TTL-bounded cache, and
// derives discounted plan values through the discount package. Validation is
// value-typed: Validate always returns a Validation, never an error, so
// callers can render the outcome directly.
//
// # Quick start
//
//	catalog := promo.NewInMemCatalog(promo.Code{
//		Code: "SAVE20",
//		Discount: discount.Rule{Kind: discount.KindPercentage, Value: decimal.NewFromInt(20)},
//		Active:   true,
//	})
//
//	engine, err := promo.NewEngine(ctx, plansSource, catalog)
//	if err != nil {
//		// handle error
//	}
//
//	v := engine.Validate(ctx, "save20", "monthly", userID)
//	if v.Valid {
//		app, err := engine.Apply(ctx, "save20", selectedPlan, userID)
//		// feed app.DiscountedPlan back into the purchase orchestrator
//	}
//
// Validation outcomes carry a machine Reason alongside a human-readable
// Message, so presentation layers never need to translate errors themselves.
//
// # Caching
//
// Results are keyed by (code, plan, user) and expire strictly after the
// configured TTL (default 5 minutes), measured from insertion. A negative
// result is cached too, avoiding repeated catalog round-trips for mistyped
// codes. Concurrent validations for the same key are collapsed into a single
// catalog request.
package promo
