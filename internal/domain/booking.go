package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingCancelled BookingStatus = "cancelled"
)

type PaymentStatus string

const (
	PaymentPending    PaymentStatus = "pending"
	PaymentAuthorized PaymentStatus = "authorized"
	PaymentPartial    PaymentStatus = "partial"
	PaymentCompleted  PaymentStatus = "completed"
	PaymentFailed     PaymentStatus = "failed"
)

// Rank orders non-terminal payment statuses. Failed has no rank.
func (s PaymentStatus) Rank() int {
	switch s {
	case PaymentPending:
		return 0
	case PaymentAuthorized:
		return 1
	case PaymentPartial:
		return 2
	case PaymentCompleted:
		return 3
	}
	return -1
}

// InventoryStatus tracks whether a booking currently holds a bed.
type InventoryStatus string

const (
	InventoryPending    InventoryStatus = "pending"
	InventoryHeld       InventoryStatus = "held"
	InventoryUnassigned InventoryStatus = "unassigned"
	InventoryReleased   InventoryStatus = "released"
)

type Booking struct {
	ID        string `json:"id" gorm:"type:varchar(36);primaryKey"`
	PaymentID string `json:"payment_id" gorm:"type:varchar(64);not null;uniqueIndex:ux_bookings_payment_id"`
	OrderID   string `json:"order_id" gorm:"type:varchar(64);not null;index"`

	PropertyID      string  `json:"property_id" gorm:"type:varchar(64);not null;index"`
	RoomID          *string `json:"room_id" gorm:"type:varchar(64);index"`
	RequestedRoomID string  `json:"requested_room_id,omitempty" gorm:"type:varchar(64)"`
	SharingType     string  `json:"sharing_type" gorm:"type:varchar(32)"`

	UserID     string `json:"user_id" gorm:"type:varchar(64);not null;index"`
	GuestName  string `json:"guest_name" gorm:"type:varchar(255)"`
	GuestEmail string `json:"guest_email" gorm:"type:varchar(255)"`
	GuestPhone string `json:"guest_phone" gorm:"type:varchar(32)"`

	// Pricing snapshot, smallest currency unit. Never recomputed after creation.
	PricePerPerson           int64 `json:"price_per_person" gorm:"not null"`
	SecurityDepositPerPerson int64 `json:"security_deposit_per_person" gorm:"not null"`
	TotalAmount              int64 `json:"total_amount" gorm:"not null"`
	AmountPaid               int64 `json:"amount_paid" gorm:"not null"`
	AmountDue                int64 `json:"amount_due" gorm:"not null"`

	PaymentStatus PaymentStatus `json:"payment_status" gorm:"type:varchar(20);not null;index"`
	BookingStatus BookingStatus `json:"booking_status" gorm:"type:varchar(20);not null;index"`

	InventoryStatus     InventoryStatus `json:"inventory_status" gorm:"type:varchar(20);not null;default:'pending';index"`
	NeedsRoomAssignment bool            `json:"needs_room_assignment" gorm:"not null;default:false;index"`
	RefundRequired      bool            `json:"refund_required" gorm:"not null;default:false"`

	PaymentDate *time.Time `json:"payment_date,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (Booking) TableName() string { return "bookings" }

func (b *Booking) BeforeCreate(_ *gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	return nil
}

// HasRoom reports whether the booking currently holds a bed in a room.
func (b *Booking) HasRoom() bool {
	return b.RoomID != nil && b.InventoryStatus == InventoryHeld
}

func (b *Booking) RoomIDValue() string {
	if b.RoomID == nil {
		return ""
	}
	return *b.RoomID
}
