package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pgstay/internal/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BookingRepository is the booking store. The unique index on payment_id is the
// idempotency boundary for materialization.
type BookingRepository struct {
	db *gorm.DB
}

func NewBookingRepository(db *gorm.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

// WithTx returns a repository bound to an open transaction.
func (r *BookingRepository) WithTx(tx *gorm.DB) *BookingRepository {
	return &BookingRepository{db: tx}
}

// FindByPaymentID returns nil, nil when no booking exists for the payment.
func (r *BookingRepository) FindByPaymentID(ctx context.Context, paymentID string) (*domain.Booking, error) {
	var b domain.Booking
	err := r.db.WithContext(ctx).Where("payment_id = ?", paymentID).First(&b).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *BookingRepository) GetByID(ctx context.Context, id string) (*domain.Booking, error) {
	var b domain.Booking
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&b).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrBookingNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// GetByIDForUpdate reads the booking under a row lock. Only meaningful inside a transaction.
func (r *BookingRepository) GetByIDForUpdate(ctx context.Context, id string) (*domain.Booking, error) {
	var b domain.Booking
	err := r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).First(&b).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrBookingNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// CreateIfAbsent inserts the draft unless a booking with the same payment_id exists.
// The loser of a concurrent insert observes the unique violation and returns the
// winner's row. created reports whether this call inserted the row.
func (r *BookingRepository) CreateIfAbsent(ctx context.Context, draft *domain.Booking) (*domain.Booking, bool, error) {
	existing, err := r.FindByPaymentID(ctx, draft.PaymentID)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	b := *draft
	if err := r.db.WithContext(ctx).Create(&b).Error; err != nil {
		if !isUniqueConstraintError(err) {
			return nil, false, err
		}
		winner, ferr := r.FindByPaymentID(ctx, draft.PaymentID)
		if ferr != nil {
			return nil, false, ferr
		}
		if winner == nil {
			return nil, false, fmt.Errorf("unique violation on payment_id %s but no row found: %w", draft.PaymentID, err)
		}
		return winner, false, nil
	}
	return &b, true, nil
}

// UpdateStatus sets both statuses unconditionally.
func (r *BookingRepository) UpdateStatus(ctx context.Context, paymentID string, ps domain.PaymentStatus, bs domain.BookingStatus) error {
	res := r.db.WithContext(ctx).Model(&domain.Booking{}).
		Where("payment_id = ?", paymentID).
		Updates(map[string]interface{}{
			"payment_status": ps,
			"booking_status": bs,
			"updated_at":     time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrBookingNotFound
	}
	return nil
}

// TransitionStatus updates statuses only while the current payment status is one of from.
// It returns false when the guard did not match, which callers treat as already applied.
func (r *BookingRepository) TransitionStatus(ctx context.Context, paymentID string, from []domain.PaymentStatus, ps domain.PaymentStatus, bs domain.BookingStatus) (bool, error) {
	if len(from) == 0 {
		return false, nil
	}
	res := r.db.WithContext(ctx).Model(&domain.Booking{}).
		Where("payment_id = ? AND payment_status IN ?", paymentID, from).
		Updates(map[string]interface{}{
			"payment_status": ps,
			"booking_status": bs,
			"updated_at":     time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// TransitionInventory moves the inventory marker from one state to another, applying extra
// column updates in the same statement. Only one caller can win a given transition.
func (r *BookingRepository) TransitionInventory(ctx context.Context, bookingID string, from, to domain.InventoryStatus, extra map[string]interface{}) (bool, error) {
	updates := map[string]interface{}{
		"inventory_status": to,
		"updated_at":       time.Now().UTC(),
	}
	for k, v := range extra {
		updates[k] = v
	}
	res := r.db.WithContext(ctx).Model(&domain.Booking{}).
		Where("id = ? AND inventory_status = ?", bookingID, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ClaimInventory is TransitionInventory restricted to bookings that are not cancelled.
// A cancelled booking must never take a bed.
func (r *BookingRepository) ClaimInventory(ctx context.Context, bookingID string, from, to domain.InventoryStatus, extra map[string]interface{}) (bool, error) {
	updates := map[string]interface{}{
		"inventory_status": to,
		"updated_at":       time.Now().UTC(),
	}
	for k, v := range extra {
		updates[k] = v
	}
	res := r.db.WithContext(ctx).Model(&domain.Booking{}).
		Where("id = ? AND inventory_status = ? AND booking_status <> ?", bookingID, from, domain.BookingCancelled).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *BookingRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]domain.Booking, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	var out []domain.Booking
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc").
		Limit(limit).
		Offset(offset).
		Find(&out).Error
	return out, err
}

// ListAwaitingAssignment returns confirmed bookings without a room on the owner's properties.
func (r *BookingRepository) ListAwaitingAssignment(ctx context.Context, ownerUserID string) ([]domain.Booking, error) {
	var out []domain.Booking
	err := r.db.WithContext(ctx).
		Model(&domain.Booking{}).
		Joins("JOIN properties ON properties.id = bookings.property_id").
		Where("properties.owner_user_id = ?", ownerUserID).
		Where("bookings.needs_room_assignment = ? AND bookings.booking_status = ?", true, domain.BookingConfirmed).
		Order("bookings.created_at asc").
		Find(&out).Error
	return out, err
}

func (r *BookingRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&domain.Booking{}).Count(&n).Error
	return n, err
}
