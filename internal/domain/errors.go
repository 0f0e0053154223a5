package domain

import "errors"

var (
	ErrNoCapacity       = errors.New("no capacity")
	ErrRoomNotFound     = errors.New("room not found")
	ErrPropertyNotFound = errors.New("property not found")
	ErrBookingNotFound  = errors.New("booking not found")
	// ErrStoreUnavailable wraps transient persistence failures. Safe for the client to retry.
	ErrStoreUnavailable = errors.New("store unavailable")
)
