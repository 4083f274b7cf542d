// Package discount provides pure price arithmetic for promo code discounts.
//
// ComputePrice is total over non-negative base prices and never returns a
// negative amount: percentage values above 100 and fixed amounts above the
// base price both clamp the result to zero instead of failing.
package discount
