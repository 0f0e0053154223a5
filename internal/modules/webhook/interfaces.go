package webhook

import (
	"context"

	"pgstay/internal/domain"
	"pgstay/internal/modules/notification"
)

type WebhookVerifier interface {
	VerifyWebhook(body []byte, signature string) error
}

// EventLedger records deliveries by gateway event id.
type EventLedger interface {
	RecordIfNew(ctx context.Context, e *domain.WebhookEvent) (*domain.WebhookEvent, bool, error)
	MarkStatus(ctx context.Context, id string, status domain.WebhookEventStatus, reason string) error
	ListDeferred(ctx context.Context, limit int) ([]domain.WebhookEvent, error)
	ListDeferredByPayment(ctx context.Context, paymentID string) ([]domain.WebhookEvent, error)
}

type BookingStore interface {
	FindByPaymentID(ctx context.Context, paymentID string) (*domain.Booking, error)
	TransitionStatus(ctx context.Context, paymentID string, from []domain.PaymentStatus, ps domain.PaymentStatus, bs domain.BookingStatus) (bool, error)
}

// InventoryReleaser restores a booking's bed at most once.
type InventoryReleaser interface {
	ReleaseForBooking(ctx context.Context, bookingID string) (bool, error)
}

type PropertyReader interface {
	GetByID(ctx context.Context, id string) (*domain.Property, error)
}

type Notifier interface {
	Notify(ctx context.Context, e notification.Event)
}
