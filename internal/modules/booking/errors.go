package booking

import (
	"errors"

	"pgstay/internal/domain"
)

var (
	ErrUnauthenticated  = errors.New("unauthenticated")
	ErrInvalidSignature = errors.New("invalid payment signature")
	ErrUnknownProperty  = errors.New("unknown property or room")
	ErrInvalidAmounts   = errors.New("invalid amounts")
	ErrValidation       = errors.New("validation error")
	ErrConfig           = errors.New("payment verification is not configured")
	ErrForbidden        = errors.New("forbidden")
	ErrNotAssignable    = errors.New("booking is not awaiting room assignment")

	ErrNoCapacity       = domain.ErrNoCapacity
	ErrBookingNotFound  = domain.ErrBookingNotFound
	ErrStoreUnavailable = domain.ErrStoreUnavailable
)

// CapacityError carries the booking that was kept when the room turned out to be full
// under the reject policy.
type CapacityError struct {
	BookingID string
}

func (e *CapacityError) Error() string { return "no capacity for booking " + e.BookingID }
func (e *CapacityError) Unwrap() error { return ErrNoCapacity }
