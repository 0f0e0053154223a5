package webhook

import (
	"errors"

	"pgstay/internal/domain"
)

var (
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrMalformed        = errors.New("malformed webhook payload")
	ErrConfig           = errors.New("webhook secret is not configured")

	ErrStoreUnavailable = domain.ErrStoreUnavailable
)
