package promo

import "errors"

var (
	ErrCodeNotFound     = errors.New("promo code not found")
	ErrInvalidPromoCode = errors.New("promo code is not valid")
	ErrRedeemFailed     = errors.New("failed to redeem promo code")
	ErrNetwork          = errors.New("promo catalog request failed")
)

// Reason is the machine-readable outcome of a validation, carried inside the
// Validation value rather than returned as an error.
type Reason string

const (
	ReasonNone              Reason = ""
	ReasonValidationError   Reason = "VALIDATION_ERROR"
	ReasonCodeNotFound      Reason = "CODE_NOT_FOUND"
	ReasonCodeExpired       Reason = "CODE_EXPIRED"
	ReasonCodeExhausted     Reason = "CODE_EXHAUSTED"
	ReasonPlanNotApplicable Reason = "PLAN_NOT_APPLICABLE"
)
