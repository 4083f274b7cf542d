package paywall

import "errors"

var (
	ErrUserIDNotFound   = errors.New("paywall user ID not found")
	ErrStatusNotFound   = errors.New("cached subscription status not found")
	ErrFailedToLoadEnv  = errors.New("failed to load paywall configuration")
	ErrStoreUnavailable = errors.New("paywall store unavailable")
)
