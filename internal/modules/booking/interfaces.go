package booking

import (
	"context"

	"pgstay/internal/domain"
	"pgstay/internal/modules/notification"
)

// BookingStore is the durable booking record keyed by payment id.
type BookingStore interface {
	FindByPaymentID(ctx context.Context, paymentID string) (*domain.Booking, error)
	CreateIfAbsent(ctx context.Context, draft *domain.Booking) (*domain.Booking, bool, error)
	GetByID(ctx context.Context, id string) (*domain.Booking, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]domain.Booking, error)
	ListAwaitingAssignment(ctx context.Context, ownerUserID string) ([]domain.Booking, error)
}

type PropertyReader interface {
	GetByID(ctx context.Context, id string) (*domain.Property, error)
}

type RoomReader interface {
	GetByID(ctx context.Context, roomID string) (*domain.Room, error)
}

// InventoryLedger moves a booking's inventory marker together with the room counter.
type InventoryLedger interface {
	HoldForBooking(ctx context.Context, bookingID, roomID string, from domain.InventoryStatus) (*domain.Booking, error)
	HoldOrCancel(ctx context.Context, bookingID, roomID string, from domain.InventoryStatus) (*domain.Booking, error)
	MarkUnassigned(ctx context.Context, bookingID string) (*domain.Booking, error)
}

type PaymentVerifier interface {
	VerifyPayment(orderID, paymentID, signature string) error
}

type Notifier interface {
	Notify(ctx context.Context, e notification.Event)
}

// DeferredReplayer re-applies gateway events that arrived before the booking existed.
type DeferredReplayer interface {
	ReplayForPayment(ctx context.Context, paymentID string) (int, error)
}
