package booking

import (
	"fmt"
	"strings"

	"pgstay/internal/domain"
)

type VerifyPaymentRequest struct {
	OrderID        string         `json:"order_id" binding:"required"`
	PaymentID      string         `json:"payment_id" binding:"required"`
	Signature      string         `json:"signature" binding:"required"`
	BookingDetails BookingDetails `json:"booking_details"`
}

// BookingDetails is the client's proposed booking. Amounts are in the smallest currency unit.
type BookingDetails struct {
	PropertyID               string `json:"property_id" validate:"required,max=64"`
	RoomID                   string `json:"room_id,omitempty" validate:"omitempty,max=64"`
	SharingType              string `json:"sharing_type" validate:"omitempty,max=32"`
	PricePerPerson           int64  `json:"price_per_person" validate:"gte=0"`
	SecurityDepositPerPerson int64  `json:"security_deposit_per_person" validate:"gte=0"`
	TotalAmount              int64  `json:"total_amount" validate:"gt=0"`
	AmountPaid               int64  `json:"amount_paid"`
	AmountDue                int64  `json:"amount_due"`
	GuestName                string `json:"guest_name" validate:"required,max=255"`
	GuestEmail               string `json:"guest_email" validate:"required,email,max=255"`
	GuestPhone               string `json:"guest_phone" validate:"required,max=32"`
}

type AssignRoomRequest struct {
	RoomID string `json:"room_id" binding:"required"`
}

type OwnerContact struct {
	Name         string `json:"name"`
	Phone        string `json:"phone"`
	Email        string `json:"email"`
	Instructions string `json:"instructions"`
}

type VerifyPaymentResponse struct {
	BookingID        string               `json:"booking_id"`
	PaymentID        string               `json:"payment_id"`
	PropertyName     string               `json:"property_name"`
	OwnerContact     OwnerContact         `json:"owner_contact"`
	PaymentStatus    domain.PaymentStatus `json:"payment_status"`
	BookingStatus    domain.BookingStatus `json:"booking_status"`
	RoomID           *string              `json:"room_id"`
	RoomAssigned     bool                 `json:"room_assigned"`
	AmountPaid       int64                `json:"amount_paid"`
	AmountDue        int64                `json:"amount_due"`
	IdempotentReplay bool                 `json:"idempotent_replay"`
}

// Result is what the materializer produced for one verify call.
type Result struct {
	Booking          *domain.Booking
	Property         *domain.Property
	IdempotentReplay bool
}

func (r *Result) Response() VerifyPaymentResponse {
	b := r.Booking
	resp := VerifyPaymentResponse{
		BookingID:        b.ID,
		PaymentID:        b.PaymentID,
		PaymentStatus:    b.PaymentStatus,
		BookingStatus:    b.BookingStatus,
		RoomID:           b.RoomID,
		RoomAssigned:     b.HasRoom(),
		AmountPaid:       b.AmountPaid,
		AmountDue:        b.AmountDue,
		IdempotentReplay: r.IdempotentReplay,
	}
	if r.Property != nil {
		resp.PropertyName = r.Property.Name
		resp.OwnerContact = redactedContact(r.Property, b)
	}
	return resp
}

func redactedContact(p *domain.Property, b *domain.Booking) OwnerContact {
	instructions := fmt.Sprintf("%s will contact you before move-in to collect the remaining balance of %s.", ownerName(p), formatMinor(b.AmountDue))
	if !b.HasRoom() {
		instructions = fmt.Sprintf("%s will assign your room and contact you before move-in to collect the remaining balance of %s.", ownerName(p), formatMinor(b.AmountDue))
	}
	return OwnerContact{
		Name:         p.OwnerName,
		Phone:        maskPhone(p.OwnerPhone),
		Email:        maskEmail(p.OwnerEmail),
		Instructions: instructions,
	}
}

func ownerName(p *domain.Property) string {
	if strings.TrimSpace(p.OwnerName) == "" {
		return "The property owner"
	}
	return p.OwnerName
}

// maskPhone keeps the last four digits.
func maskPhone(phone string) string {
	digits := make([]rune, 0, len(phone))
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			digits = append(digits, r)
		}
	}
	if len(digits) <= 4 {
		return strings.Repeat("*", len(digits))
	}
	return strings.Repeat("*", len(digits)-4) + string(digits[len(digits)-4:])
}

// maskEmail keeps the first character of the local part and the domain.
func maskEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return ""
	}
	local := []rune(email[:at])
	return string(local[0]) + strings.Repeat("*", 3) + email[at:]
}

func formatMinor(amount int64) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	return fmt.Sprintf("%s%d.%02d", sign, amount/100, amount%100)
}

type BookingView struct {
	ID                  string                 `json:"id"`
	PaymentID           string                 `json:"payment_id"`
	PropertyID          string                 `json:"property_id"`
	RoomID              *string                `json:"room_id"`
	RequestedRoomID     string                 `json:"requested_room_id,omitempty"`
	SharingType         string                 `json:"sharing_type"`
	GuestName           string                 `json:"guest_name"`
	TotalAmount         int64                  `json:"total_amount"`
	AmountPaid          int64                  `json:"amount_paid"`
	AmountDue           int64                  `json:"amount_due"`
	PaymentStatus       domain.PaymentStatus   `json:"payment_status"`
	BookingStatus       domain.BookingStatus   `json:"booking_status"`
	InventoryStatus     domain.InventoryStatus `json:"inventory_status"`
	NeedsRoomAssignment bool                   `json:"needs_room_assignment"`
	RefundRequired      bool                   `json:"refund_required"`
	CreatedAt           string                 `json:"created_at"`
}

func toView(b domain.Booking) BookingView {
	return BookingView{
		ID:                  b.ID,
		PaymentID:           b.PaymentID,
		PropertyID:          b.PropertyID,
		RoomID:              b.RoomID,
		RequestedRoomID:     b.RequestedRoomID,
		SharingType:         b.SharingType,
		GuestName:           b.GuestName,
		TotalAmount:         b.TotalAmount,
		AmountPaid:          b.AmountPaid,
		AmountDue:           b.AmountDue,
		PaymentStatus:       b.PaymentStatus,
		BookingStatus:       b.BookingStatus,
		InventoryStatus:     b.InventoryStatus,
		NeedsRoomAssignment: b.NeedsRoomAssignment,
		RefundRequired:      b.RefundRequired,
		CreatedAt:           b.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
}

func toViews(in []domain.Booking) []BookingView {
	out := make([]BookingView, 0, len(in))
	for _, b := range in {
		out = append(out, toView(b))
	}
	return out
}
