package domain

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrAlreadyRunning  = errors.New("monitoring already running for this target")
	ErrLimitExceeded   = errors.New("session limit exceeded")
	ErrStaleQuote      = errors.New("quote is stale")
	ErrDataUnavailable = errors.New("market data unavailable")
	ErrDataInvalid     = errors.New("market data invalid")
	ErrUnsupported     = errors.New("exchange or symbol unsupported")
	ErrNotEditable     = errors.New("message not editable")
	ErrDeliveryFailed  = errors.New("notification delivery failed")
	ErrSessionClosed   = errors.New("session closed")
	ErrRateLimited     = errors.New("rate limited")
)

// IsTransient reports whether an error is worth retrying: the data may come
// back on the next cycle. Permanent errors (unsupported exchange/symbol)
// should fail the caller instead.
func IsTransient(err error) bool {
	switch {
	case errors.Is(err, ErrDataUnavailable),
		errors.Is(err, ErrDataInvalid),
		errors.Is(err, ErrStaleQuote),
		errors.Is(err, ErrRateLimited),
		errors.Is(err, ErrNotFound):
		return true
	default:
		return false
	}
}
