package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"pgstay/internal/config"
	"pgstay/internal/domain"
	"pgstay/internal/modules/notification"
	"pgstay/internal/modules/payment"
	"pgstay/internal/pkg/validator"
)

// Service materializes verified payments into bookings and serves the booking views.
type Service struct {
	bookings   BookingStore
	properties PropertyReader
	rooms      RoomReader
	ledger     InventoryLedger
	verifier   PaymentVerifier
	notifier   Notifier
	replayer   DeferredReplayer

	capacityPolicy string
	group          singleflight.Group
	tracer         trace.Tracer
	now            func() time.Time
	loggerf        func(format string, args ...interface{})
}

func NewService(
	bookings BookingStore,
	properties PropertyReader,
	rooms RoomReader,
	ledger InventoryLedger,
	verifier PaymentVerifier,
	capacityPolicy string,
	loggerf func(format string, args ...interface{}),
) *Service {
	if loggerf == nil {
		loggerf = func(string, ...interface{}) {}
	}
	if capacityPolicy == "" {
		capacityPolicy = config.CapacityAssignLater
	}
	return &Service{
		bookings:       bookings,
		properties:     properties,
		rooms:          rooms,
		ledger:         ledger,
		verifier:       verifier,
		capacityPolicy: capacityPolicy,
		tracer:         otel.Tracer("pgstay/booking"),
		now:            time.Now,
		loggerf:        loggerf,
	}
}

// SetNotifier enables booking.confirmed notifications.
func (s *Service) SetNotifier(n Notifier) { s.notifier = n }

// SetReplayer enables replay of deferred webhook events right after a booking is created.
func (s *Service) SetReplayer(r DeferredReplayer) { s.replayer = r }

// Materialize turns a verified client payment into exactly one booking. Calls with the same
// payment id return the same booking, and the room counter is adjusted at most once for it.
func (s *Service) Materialize(ctx context.Context, userID string, req VerifyPaymentRequest) (*Result, error) {
	ctx, span := s.tracer.Start(ctx, "booking.materialize", trace.WithAttributes(
		attribute.String("payment.id", req.PaymentID),
		attribute.String("property.id", req.BookingDetails.PropertyID),
	))
	defer span.End()

	res, err := s.materialize(ctx, userID, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return res, err
	}
	span.SetAttributes(
		attribute.String("booking.id", res.Booking.ID),
		attribute.Bool("booking.idempotent_replay", res.IdempotentReplay),
	)
	return res, nil
}

func (s *Service) materialize(ctx context.Context, userID string, req VerifyPaymentRequest) (*Result, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}

	if err := s.verifier.VerifyPayment(req.OrderID, req.PaymentID, req.Signature); err != nil {
		if errors.Is(err, payment.ErrSecretNotConfigured) {
			s.loggerf("level=error msg=payment_secret_missing payment_id=%s", req.PaymentID)
			return nil, ErrConfig
		}
		s.loggerf("level=warn msg=payment_signature_rejected payment_id=%s order_id=%s user_id=%s", req.PaymentID, req.OrderID, userID)
		return nil, ErrInvalidSignature
	}

	d := req.BookingDetails
	if err := validator.Struct(d); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	property, err := s.resolveProperty(ctx, d.PropertyID, d.RoomID)
	if err != nil {
		return nil, err
	}

	// Collapsed callers share one run. It is detached from the first caller's
	// cancellation so one disconnecting client does not fail the others.
	work := context.WithoutCancel(ctx)
	ch := s.group.DoChan(req.PaymentID, func() (interface{}, error) {
		return s.createOrReplay(work, userID, req, property)
	})
	var r singleflight.Result
	select {
	case r = <-ch:
	case <-ctx.Done():
		s.loggerf("level=warn msg=booking_caller_gone payment_id=%s err=%v", req.PaymentID, ctx.Err())
		return nil, s.unavailable("await booking", ctx.Err())
	}
	v, err := r.Val, r.Err
	if err != nil {
		var capErr *CapacityError
		if errors.As(err, &capErr) {
			if r, ok := v.(*Result); ok {
				return r, err
			}
		}
		return nil, err
	}
	return v.(*Result), nil
}

// resolveProperty checks the requested property and room. Unknown references are reported;
// nothing is substituted.
func (s *Service) resolveProperty(ctx context.Context, propertyID, roomID string) (*domain.Property, error) {
	property, err := s.properties.GetByID(ctx, propertyID)
	if errors.Is(err, domain.ErrPropertyNotFound) {
		return nil, ErrUnknownProperty
	}
	if err != nil {
		return nil, s.unavailable("get property", err)
	}
	if roomID == "" {
		return property, nil
	}

	room, err := s.rooms.GetByID(ctx, roomID)
	if errors.Is(err, domain.ErrRoomNotFound) {
		return nil, ErrUnknownProperty
	}
	if err != nil {
		return nil, s.unavailable("get room", err)
	}
	if room.PropertyID != property.ID {
		return nil, ErrUnknownProperty
	}
	return property, nil
}

func (s *Service) createOrReplay(ctx context.Context, userID string, req VerifyPaymentRequest, property *domain.Property) (*Result, error) {
	existing, err := s.bookings.FindByPaymentID(ctx, req.PaymentID)
	if err != nil {
		return nil, s.unavailable("find booking", err)
	}
	if existing != nil {
		return s.replay(ctx, userID, existing, property)
	}

	d := req.BookingDetails
	if d.AmountPaid <= 0 || d.AmountDue < 0 || d.AmountPaid+d.AmountDue != d.TotalAmount {
		return nil, ErrInvalidAmounts
	}

	now := s.now().UTC()
	draft := &domain.Booking{
		PaymentID:                req.PaymentID,
		OrderID:                  req.OrderID,
		PropertyID:               property.ID,
		RequestedRoomID:          d.RoomID,
		SharingType:              d.SharingType,
		UserID:                   userID,
		GuestName:                d.GuestName,
		GuestEmail:               d.GuestEmail,
		GuestPhone:               d.GuestPhone,
		PricePerPerson:           d.PricePerPerson,
		SecurityDepositPerPerson: d.SecurityDepositPerPerson,
		TotalAmount:              d.TotalAmount,
		AmountPaid:               d.AmountPaid,
		AmountDue:                d.AmountDue,
		PaymentStatus:            domain.PaymentPartial,
		BookingStatus:            domain.BookingConfirmed,
		InventoryStatus:          domain.InventoryPending,
		PaymentDate:              &now,
	}

	b, created, err := s.bookings.CreateIfAbsent(ctx, draft)
	if err != nil {
		return nil, s.unavailable("create booking", err)
	}
	if !created {
		return s.replay(ctx, userID, b, property)
	}
	s.loggerf("level=info msg=booking_created booking_id=%s payment_id=%s property_id=%s user_id=%s", b.ID, b.PaymentID, b.PropertyID, userID)

	b, err = s.settleInventory(ctx, b)
	if err != nil && !errors.Is(err, ErrNoCapacity) {
		return nil, err
	}
	capErr := err

	if s.replayer != nil {
		if n, rerr := s.replayer.ReplayForPayment(ctx, b.PaymentID); rerr != nil {
			s.loggerf("level=warn msg=deferred_replay_failed payment_id=%s err=%v", b.PaymentID, rerr)
		} else if n > 0 {
			if fresh, ferr := s.bookings.GetByID(ctx, b.ID); ferr == nil {
				b = fresh
			}
		}
	}

	if s.notifier != nil && b.BookingStatus == domain.BookingConfirmed {
		s.notifier.Notify(ctx, notification.Event{
			Type:         notification.EventBookingConfirmed,
			BookingID:    b.ID,
			PaymentID:    b.PaymentID,
			PropertyID:   b.PropertyID,
			PropertyName: property.Name,
			OwnerUserID:  property.OwnerUserID,
			GuestName:    b.GuestName,
			RoomID:       b.RoomIDValue(),
			RoomAssigned: b.HasRoom(),
		})
	}

	res := &Result{Booking: b, Property: property}
	if capErr != nil {
		return res, &CapacityError{BookingID: b.ID}
	}
	return res, nil
}

// replay returns an existing booking. A booking left pending by an interrupted earlier call
// gets its inventory settled now.
func (s *Service) replay(ctx context.Context, userID string, b *domain.Booking, property *domain.Property) (*Result, error) {
	if b.UserID != userID {
		s.loggerf("level=warn msg=booking_replay_foreign_user booking_id=%s payment_id=%s user_id=%s", b.ID, b.PaymentID, userID)
		return nil, ErrForbidden
	}

	var capErr error
	if b.InventoryStatus == domain.InventoryPending {
		settled, err := s.settleInventory(ctx, b)
		if err != nil && !errors.Is(err, ErrNoCapacity) {
			return nil, err
		}
		b, capErr = settled, err
	}

	res := &Result{Booking: b, Property: property, IdempotentReplay: true}
	if capErr != nil || (b.RefundRequired && b.BookingStatus == domain.BookingCancelled) {
		return res, &CapacityError{BookingID: b.ID}
	}
	s.loggerf("level=info msg=booking_replayed booking_id=%s payment_id=%s", b.ID, b.PaymentID)
	return res, nil
}

// settleInventory takes a bed for a pending booking and applies the capacity policy when
// none is left. It returns ErrNoCapacity only under the reject policy.
func (s *Service) settleInventory(ctx context.Context, b *domain.Booking) (*domain.Booking, error) {
	if b.RequestedRoomID == "" {
		out, err := s.ledger.MarkUnassigned(ctx, b.ID)
		if err != nil {
			return nil, s.unavailable("mark unassigned", err)
		}
		return out, nil
	}

	if s.capacityPolicy == config.CapacityReject {
		out, err := s.ledger.HoldOrCancel(ctx, b.ID, b.RequestedRoomID, domain.InventoryPending)
		if err == nil {
			return out, nil
		}
		if !errors.Is(err, domain.ErrNoCapacity) && !errors.Is(err, domain.ErrRoomNotFound) {
			return nil, s.unavailable("hold bed", err)
		}
		s.loggerf("level=warn msg=booking_rejected_no_capacity booking_id=%s payment_id=%s requested_room_id=%s refund_required=%t", b.ID, b.PaymentID, b.RequestedRoomID, out.RefundRequired)
		return out, ErrNoCapacity
	}

	out, err := s.ledger.HoldForBooking(ctx, b.ID, b.RequestedRoomID, domain.InventoryPending)
	if err == nil {
		return out, nil
	}
	if !errors.Is(err, domain.ErrNoCapacity) && !errors.Is(err, domain.ErrRoomNotFound) {
		return nil, s.unavailable("hold bed", err)
	}
	s.loggerf("level=warn msg=booking_needs_room_assignment booking_id=%s payment_id=%s requested_room_id=%s", b.ID, b.PaymentID, b.RequestedRoomID)
	return out, nil
}

// AssignRoom lets the property owner place an unassigned booking into one of their rooms.
func (s *Service) AssignRoom(ctx context.Context, ownerUserID, bookingID, roomID string) (*domain.Booking, error) {
	b, err := s.bookings.GetByID(ctx, bookingID)
	if errors.Is(err, domain.ErrBookingNotFound) {
		return nil, ErrBookingNotFound
	}
	if err != nil {
		return nil, s.unavailable("get booking", err)
	}

	property, err := s.properties.GetByID(ctx, b.PropertyID)
	if errors.Is(err, domain.ErrPropertyNotFound) {
		return nil, ErrUnknownProperty
	}
	if err != nil {
		return nil, s.unavailable("get property", err)
	}
	if property.OwnerUserID != ownerUserID {
		return nil, ErrForbidden
	}
	if b.BookingStatus != domain.BookingConfirmed || b.InventoryStatus != domain.InventoryUnassigned {
		return nil, ErrNotAssignable
	}

	room, err := s.rooms.GetByID(ctx, roomID)
	if errors.Is(err, domain.ErrRoomNotFound) {
		return nil, ErrUnknownProperty
	}
	if err != nil {
		return nil, s.unavailable("get room", err)
	}
	if room.PropertyID != b.PropertyID {
		return nil, ErrUnknownProperty
	}

	out, err := s.ledger.HoldForBooking(ctx, b.ID, roomID, domain.InventoryUnassigned)
	if errors.Is(err, domain.ErrNoCapacity) || errors.Is(err, domain.ErrRoomNotFound) {
		return nil, ErrNoCapacity
	}
	if err != nil {
		return nil, s.unavailable("hold bed", err)
	}
	if out.InventoryStatus != domain.InventoryHeld {
		return nil, ErrNotAssignable
	}
	s.loggerf("level=info msg=booking_room_assigned booking_id=%s room_id=%s owner_user_id=%s", b.ID, roomID, ownerUserID)
	return out, nil
}

func (s *Service) ListMine(ctx context.Context, userID string, limit, offset int) ([]domain.Booking, error) {
	out, err := s.bookings.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, s.unavailable("list bookings", err)
	}
	return out, nil
}

func (s *Service) ListUnassigned(ctx context.Context, ownerUserID string) ([]domain.Booking, error) {
	out, err := s.bookings.ListAwaitingAssignment(ctx, ownerUserID)
	if err != nil {
		return nil, s.unavailable("list unassigned", err)
	}
	return out, nil
}

func (s *Service) unavailable(op string, err error) error {
	if errors.Is(err, domain.ErrStoreUnavailable) {
		return err
	}
	s.loggerf("level=error msg=store_failed op=%q err=%v", op, err)
	return fmt.Errorf("%s: %w: %w", op, domain.ErrStoreUnavailable, err)
}
