package inventory

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"pgstay/internal/domain"
	"pgstay/internal/repository"
)

// Ledger owns room bed counters. Per-booking operations move the booking's
// inventory_status marker and the counter in the same transaction, so a retried call
// can never decrement or restore twice for one booking.
type Ledger struct {
	db      *gorm.DB
	rooms   *repository.RoomRepository
	loggerf func(format string, args ...interface{})
}

func NewLedger(db *gorm.DB, loggerf func(format string, args ...interface{})) *Ledger {
	if loggerf == nil {
		loggerf = func(string, ...interface{}) {}
	}
	return &Ledger{db: db, rooms: repository.NewRoomRepository(db), loggerf: loggerf}
}

// TryDecrement takes one bed from the room. Exactly one of two concurrent callers wins the
// last bed; the other gets domain.ErrNoCapacity.
func (l *Ledger) TryDecrement(ctx context.Context, roomID string) (int, error) {
	return l.rooms.TryDecrement(ctx, roomID)
}

// Increment restores one bed. It never fails the caller: a missing room or store error is
// logged and reported as restored=false.
func (l *Ledger) Increment(ctx context.Context, roomID string) bool {
	count, restored, err := l.rooms.Increment(ctx, roomID)
	if err != nil {
		l.loggerf("level=warn msg=inventory_increment_failed room_id=%s err=%v", roomID, err)
		return false
	}
	if !restored {
		l.loggerf("level=warn msg=inventory_increment_capped room_id=%s available_beds=%d", roomID, count)
	}
	return restored
}

func (l *Ledger) AvailableBeds(ctx context.Context, roomID string) (int, error) {
	return l.rooms.AvailableBeds(ctx, roomID)
}

// HoldForBooking claims the booking's marker from `from` to held and takes one bed in
// roomID. When the room is full or gone the booking is left unassigned and flagged for
// manual assignment, and the capacity error is returned alongside the committed booking.
// If the marker is no longer `from`, or the booking is cancelled, nothing changes and the
// current booking is returned.
func (l *Ledger) HoldForBooking(ctx context.Context, bookingID, roomID string, from domain.InventoryStatus) (*domain.Booking, error) {
	return l.hold(ctx, bookingID, roomID, from, domain.InventoryUnassigned, map[string]interface{}{
		"room_id":               nil,
		"needs_room_assignment": true,
	})
}

// HoldOrCancel is HoldForBooking for the reject capacity policy. A full or missing room
// cancels the booking and flags it for refund in the same transaction that gives up the
// claim, so a failed write never leaves a confirmed booking without a bed.
func (l *Ledger) HoldOrCancel(ctx context.Context, bookingID, roomID string, from domain.InventoryStatus) (*domain.Booking, error) {
	return l.hold(ctx, bookingID, roomID, from, domain.InventoryReleased, map[string]interface{}{
		"room_id":               nil,
		"needs_room_assignment": false,
		"booking_status":        domain.BookingCancelled,
		"refund_required":       true,
	})
}

func (l *Ledger) hold(ctx context.Context, bookingID, roomID string, from, onFull domain.InventoryStatus, onFullCols map[string]interface{}) (*domain.Booking, error) {
	var (
		out     *domain.Booking
		holdErr error
	)
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		bookings := repository.NewBookingRepository(tx)
		rooms := repository.NewRoomRepository(tx)

		claimed, err := bookings.ClaimInventory(ctx, bookingID, from, domain.InventoryHeld, map[string]interface{}{
			"room_id":               roomID,
			"needs_room_assignment": false,
		})
		if err != nil {
			return err
		}
		if claimed {
			if _, err := rooms.TryDecrement(ctx, roomID); err != nil {
				if !errors.Is(err, domain.ErrNoCapacity) && !errors.Is(err, domain.ErrRoomNotFound) {
					return err
				}
				holdErr = err
				if _, err := bookings.TransitionInventory(ctx, bookingID, domain.InventoryHeld, onFull, onFullCols); err != nil {
					return err
				}
			}
		}

		b, err := bookings.GetByID(ctx, bookingID)
		if err != nil {
			return err
		}
		out = b
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("hold bed for booking %s: %w", bookingID, err)
	}

	if holdErr != nil {
		l.loggerf("level=warn msg=inventory_hold_failed booking_id=%s room_id=%s inventory_status=%s err=%v", bookingID, roomID, out.InventoryStatus, holdErr)
	} else if out.InventoryStatus == domain.InventoryHeld && out.RoomIDValue() == roomID {
		l.loggerf("level=info msg=inventory_held booking_id=%s room_id=%s", bookingID, roomID)
	}
	return out, holdErr
}

// MarkUnassigned flags a pending booking that never requested a room.
func (l *Ledger) MarkUnassigned(ctx context.Context, bookingID string) (*domain.Booking, error) {
	bookings := repository.NewBookingRepository(l.db)
	if _, err := bookings.TransitionInventory(ctx, bookingID, domain.InventoryPending, domain.InventoryUnassigned, map[string]interface{}{
		"needs_room_assignment": true,
	}); err != nil {
		return nil, err
	}
	return bookings.GetByID(ctx, bookingID)
}

// releaseAttempts bounds re-reads when a concurrent hold moves the marker between the
// locked read and the conditional update. Postgres holds the row lock, so in practice
// the first attempt wins.
const releaseAttempts = 3

// ReleaseForBooking moves the booking's marker to released. A held bed is restored exactly
// once; bookings that never held a bed are released without touching any counter.
func (l *Ledger) ReleaseForBooking(ctx context.Context, bookingID string) (bool, error) {
	restored := false
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		bookings := repository.NewBookingRepository(tx)
		rooms := repository.NewRoomRepository(tx)

		for attempt := 1; attempt <= releaseAttempts; attempt++ {
			b, err := bookings.GetByIDForUpdate(ctx, bookingID)
			if err != nil {
				return err
			}
			if b.InventoryStatus == domain.InventoryReleased {
				return nil
			}

			claimed, err := bookings.TransitionInventory(ctx, bookingID, b.InventoryStatus, domain.InventoryReleased, map[string]interface{}{
				"needs_room_assignment": false,
			})
			if err != nil {
				return err
			}
			if !claimed {
				l.loggerf("level=info msg=inventory_release_retry booking_id=%s seen=%s attempt=%d", bookingID, b.InventoryStatus, attempt)
				continue
			}
			if b.InventoryStatus != domain.InventoryHeld {
				return nil
			}

			roomID := b.RoomIDValue()
			count, ok, err := rooms.Increment(ctx, roomID)
			if errors.Is(err, domain.ErrRoomNotFound) {
				l.loggerf("level=warn msg=inventory_release_room_missing booking_id=%s room_id=%s", bookingID, roomID)
				return nil
			}
			if err != nil {
				return err
			}
			if !ok {
				l.loggerf("level=warn msg=inventory_increment_capped booking_id=%s room_id=%s available_beds=%d", bookingID, roomID, count)
			}
			restored = ok
			return nil
		}
		return fmt.Errorf("inventory marker kept moving after %d attempts", releaseAttempts)
	})
	if err != nil {
		return false, fmt.Errorf("release bed for booking %s: %w", bookingID, err)
	}
	if restored {
		l.loggerf("level=info msg=inventory_restored booking_id=%s", bookingID)
	}
	return restored, nil
}
