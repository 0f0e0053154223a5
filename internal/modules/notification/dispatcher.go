package notification

import (
	"context"
	"time"
)

const (
	EventBookingConfirmed = "booking.confirmed"
	EventBookingCancelled = "booking.cancelled"
)

// Event is what owners receive over the websocket and what goes on the exchange.
type Event struct {
	Type         string    `json:"type"`
	BookingID    string    `json:"booking_id"`
	PaymentID    string    `json:"payment_id"`
	PropertyID   string    `json:"property_id"`
	PropertyName string    `json:"property_name,omitempty"`
	OwnerUserID  string    `json:"-"`
	GuestName    string    `json:"guest_name,omitempty"`
	RoomID       string    `json:"room_id,omitempty"`
	RoomAssigned bool      `json:"room_assigned"`
	OccurredAt   time.Time `json:"occurred_at"`
}

type Publisher interface {
	PublishJSON(ctx context.Context, key string, v any) error
}

type Pusher interface {
	SendToUser(userID string, message interface{}) bool
}

// Dispatcher fans booking events out to the message bus and the owner's websocket.
// Delivery is best-effort: failures are logged and never reach the caller.
type Dispatcher struct {
	publisher Publisher
	pusher    Pusher
	timeout   time.Duration
	loggerf   func(format string, args ...interface{})
}

// NewDispatcher accepts nil publisher or pusher to disable that channel.
func NewDispatcher(publisher Publisher, pusher Pusher, loggerf func(format string, args ...interface{})) *Dispatcher {
	if loggerf == nil {
		loggerf = func(string, ...interface{}) {}
	}
	return &Dispatcher{publisher: publisher, pusher: pusher, timeout: 5 * time.Second, loggerf: loggerf}
}

// Notify dispatches in the background, detached from the request's cancellation.
func (d *Dispatcher) Notify(ctx context.Context, e Event) {
	ctx = context.WithoutCancel(ctx)
	go d.Dispatch(ctx, e)
}

// Dispatch delivers synchronously and reports how many channels accepted the event.
func (d *Dispatcher) Dispatch(ctx context.Context, e Event) int {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	delivered := 0

	if d.publisher != nil {
		pctx, cancel := context.WithTimeout(ctx, d.timeout)
		err := d.publisher.PublishJSON(pctx, e.Type, e)
		cancel()
		if err != nil {
			d.loggerf("level=warn msg=notification_publish_failed type=%s booking_id=%s err=%v", e.Type, e.BookingID, err)
		} else {
			delivered++
		}
	}

	if d.pusher != nil && e.OwnerUserID != "" {
		if d.pusher.SendToUser(e.OwnerUserID, e) {
			delivered++
		}
	}

	d.loggerf("level=info msg=notification_dispatched type=%s booking_id=%s channels=%d", e.Type, e.BookingID, delivered)
	return delivered
}
