// Package plan defines subscription plan values and the sources they are
// loaded from.
//
// A Plan is an immutable value. Discounted pricing never mutates a plan in
// place; WithPrice derives a new value that remembers the original price so
// display layers can render strikethrough pricing.
//
// Plans are loaded through the Source interface. NewInMemSource serves a
// fixed set of plans (useful for tests and local development), while
// NewYAMLSource reads a plan catalog file:
//
//	plans:
//	  - id: monthly
//	    name: Monthly
//	    price: "9.99"
//	    currency: USD
//	    interval: monthly
//	    product_id: price_monthly_999
//	    features: [premium]
//
// Sources validate plans on load so misconfigured catalogs fail at startup
// rather than at checkout.
package plan
