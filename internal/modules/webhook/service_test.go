package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"pgstay/internal/config"
	"pgstay/internal/domain"
	"pgstay/internal/modules/booking"
	"pgstay/internal/modules/inventory"
	"pgstay/internal/modules/payment"
	"pgstay/internal/repository"
	"pgstay/internal/testutil"
)

const (
	keySecret  = "key_secret"
	hookSecret = "hook_secret"
)

type fixture struct {
	db       *gorm.DB
	svc      *Service
	ledger   *inventory.Ledger
	bookings *repository.BookingRepository
	events   *repository.WebhookEventRepository
}

func newFixture(t *testing.T, beds int) *fixture {
	t.Helper()
	db := testutil.NewDB(t)
	testutil.SeedProperty(t, db, "P1", "owner-1")
	testutil.SeedRoom(t, db, "R1", "P1", beds)

	ledger := inventory.NewLedger(db, testutil.Quiet)
	bookings := repository.NewBookingRepository(db)
	events := repository.NewWebhookEventRepository(db)
	svc := NewService(payment.NewVerifier(keySecret, hookSecret), events, bookings, ledger, testutil.Quiet)
	return &fixture{db: db, svc: svc, ledger: ledger, bookings: bookings, events: events}
}

// heldBooking creates a booking for paymentID holding one bed in R1.
func (f *fixture) heldBooking(t *testing.T, paymentID string) *domain.Booking {
	t.Helper()
	ctx := context.Background()
	b, _, err := f.bookings.CreateIfAbsent(ctx, &domain.Booking{
		PaymentID: paymentID, OrderID: "order_" + paymentID, PropertyID: "P1", RequestedRoomID: "R1", UserID: "user-1",
		TotalAmount: 45000, AmountPaid: 9000, AmountDue: 36000,
		PaymentStatus: domain.PaymentPartial, BookingStatus: domain.BookingConfirmed, InventoryStatus: domain.InventoryPending,
	})
	require.NoError(t, err)
	b, err = f.ledger.HoldForBooking(ctx, b.ID, "R1", domain.InventoryPending)
	require.NoError(t, err)
	return b
}

func (f *fixture) booking(t *testing.T, paymentID string) *domain.Booking {
	t.Helper()
	b, err := f.bookings.FindByPaymentID(context.Background(), paymentID)
	require.NoError(t, err)
	require.NotNil(t, b)
	return b
}

func eventBody(event, paymentID, id string) []byte {
	env := map[string]interface{}{
		"entity": "event",
		"event":  event,
		"payload": map[string]interface{}{
			"payment": map[string]interface{}{
				"entity": map[string]interface{}{
					"id":       paymentID,
					"order_id": "order_" + paymentID,
					"status":   "x",
					"amount":   9000,
				},
			},
		},
	}
	if id != "" {
		env["id"] = id
	}
	b, _ := json.Marshal(env)
	return b
}

func (f *fixture) deliver(t *testing.T, event, paymentID, deliveryID string) *Result {
	t.Helper()
	body := eventBody(event, paymentID, "")
	res, err := f.svc.HandleDelivery(context.Background(), body, payment.SignWebhook(body, hookSecret), deliveryID)
	require.NoError(t, err)
	return res
}

func TestFailedTwiceRestoresOnce(t *testing.T) {
	f := newFixture(t, 1)
	f.heldBooking(t, "pay_1")
	require.Equal(t, 0, testutil.Beds(t, f.db, "R1"))

	res := f.deliver(t, EventPaymentFailed, "pay_1", "evt_1")
	assert.Equal(t, OutcomeProcessed, res.Outcome)
	assert.Equal(t, 1, testutil.Beds(t, f.db, "R1"))

	b := f.booking(t, "pay_1")
	assert.Equal(t, domain.PaymentFailed, b.PaymentStatus)
	assert.Equal(t, domain.BookingCancelled, b.BookingStatus)
	assert.Equal(t, domain.InventoryReleased, b.InventoryStatus)

	// same delivery redelivered, then a second delivery id for the same failure
	assert.Equal(t, OutcomeDuplicate, f.deliver(t, EventPaymentFailed, "pay_1", "evt_1").Outcome)
	assert.Equal(t, OutcomeProcessed, f.deliver(t, EventPaymentFailed, "pay_1", "evt_2").Outcome)
	assert.Equal(t, 1, testutil.Beds(t, f.db, "R1"))
}

func TestFailedConcurrentDeliveries(t *testing.T) {
	f := newFixture(t, 2)
	f.heldBooking(t, "pay_1")
	require.Equal(t, 1, testutil.Beds(t, f.db, "R1"))

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			body := eventBody(EventPaymentFailed, "pay_1", "")
			_, err := f.svc.HandleDelivery(context.Background(), body, payment.SignWebhook(body, hookSecret), fmt.Sprintf("evt_%d", i))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 2, testutil.Beds(t, f.db, "R1"))
}

func TestFailedWhileHoldLandsRestoresBed(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	b, _, err := f.bookings.CreateIfAbsent(ctx, &domain.Booking{
		PaymentID: "pay_1", OrderID: "order_pay_1", PropertyID: "P1", RequestedRoomID: "R1", UserID: "user-1",
		TotalAmount: 45000, AmountPaid: 9000, AmountDue: 36000,
		PaymentStatus: domain.PaymentPartial, BookingStatus: domain.BookingConfirmed, InventoryStatus: domain.InventoryPending,
	})
	require.NoError(t, err)

	// the materializer's hold commits after the release read the pending marker
	testutil.AfterTxRead(t, f.db, "bookings", func(tx *gorm.DB) {
		require.NoError(t, tx.Exec("UPDATE bookings SET inventory_status = ?, room_id = ? WHERE id = ?", domain.InventoryHeld, "R1", b.ID).Error)
		require.NoError(t, tx.Exec("UPDATE rooms SET available_beds = available_beds - 1 WHERE id = ?", "R1").Error)
	})

	assert.Equal(t, OutcomeProcessed, f.deliver(t, EventPaymentFailed, "pay_1", "evt_1").Outcome)

	got := f.booking(t, "pay_1")
	assert.Equal(t, domain.BookingCancelled, got.BookingStatus)
	assert.Equal(t, domain.InventoryReleased, got.InventoryStatus)
	assert.Equal(t, 1, testutil.Beds(t, f.db, "R1"))

	// redelivery is deduplicated; the bed was already back
	assert.Equal(t, OutcomeDuplicate, f.deliver(t, EventPaymentFailed, "pay_1", "evt_1").Outcome)
	assert.Equal(t, 1, testutil.Beds(t, f.db, "R1"))
}

func TestHoldAfterFailedTakesNoBed(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	b, _, err := f.bookings.CreateIfAbsent(ctx, &domain.Booking{
		PaymentID: "pay_1", OrderID: "order_pay_1", PropertyID: "P1", RequestedRoomID: "R1", UserID: "user-1",
		TotalAmount: 45000, AmountPaid: 9000, AmountDue: 36000,
		PaymentStatus: domain.PaymentPartial, BookingStatus: domain.BookingConfirmed, InventoryStatus: domain.InventoryPending,
	})
	require.NoError(t, err)
	// cancel without the release having run yet
	require.NoError(t, f.bookings.UpdateStatus(ctx, "pay_1", domain.PaymentFailed, domain.BookingCancelled))

	got, err := f.ledger.HoldForBooking(ctx, b.ID, "R1", domain.InventoryPending)
	require.NoError(t, err)
	assert.False(t, got.HasRoom())
	assert.Equal(t, 1, testutil.Beds(t, f.db, "R1"))

	assert.Equal(t, OutcomeProcessed, f.deliver(t, EventPaymentFailed, "pay_1", "evt_1").Outcome)
	assert.Equal(t, domain.InventoryReleased, f.booking(t, "pay_1").InventoryStatus)
	assert.Equal(t, 1, testutil.Beds(t, f.db, "R1"))
}

func TestCapturedIsIdempotent(t *testing.T) {
	f := newFixture(t, 2)
	f.heldBooking(t, "pay_1")

	f.deliver(t, EventPaymentCaptured, "pay_1", "evt_c1")
	f.deliver(t, EventPaymentCaptured, "pay_1", "evt_c2")

	b := f.booking(t, "pay_1")
	assert.Equal(t, domain.PaymentCompleted, b.PaymentStatus)
	assert.Equal(t, domain.BookingConfirmed, b.BookingStatus)
	assert.Equal(t, 1, testutil.Beds(t, f.db, "R1"))
}

func TestOutOfOrderEvents(t *testing.T) {
	f := newFixture(t, 2)
	f.heldBooking(t, "pay_1")

	f.deliver(t, EventPaymentCaptured, "pay_1", "evt_1")
	f.deliver(t, EventPaymentAuthorized, "pay_1", "evt_2")
	assert.Equal(t, domain.PaymentCompleted, f.booking(t, "pay_1").PaymentStatus)

	res := f.deliver(t, EventPaymentFailed, "pay_1", "evt_3")
	assert.Equal(t, OutcomeIgnored, res.Outcome)
	b := f.booking(t, "pay_1")
	assert.Equal(t, domain.PaymentCompleted, b.PaymentStatus)
	assert.Equal(t, domain.InventoryHeld, b.InventoryStatus)
	assert.Equal(t, 1, testutil.Beds(t, f.db, "R1"))
}

func TestCapturedAfterFailedIsIgnored(t *testing.T) {
	f := newFixture(t, 2)
	f.heldBooking(t, "pay_1")

	f.deliver(t, EventPaymentFailed, "pay_1", "evt_1")
	res := f.deliver(t, EventPaymentCaptured, "pay_1", "evt_2")
	assert.Equal(t, OutcomeIgnored, res.Outcome)

	b := f.booking(t, "pay_1")
	assert.Equal(t, domain.PaymentFailed, b.PaymentStatus)
	assert.Equal(t, domain.BookingCancelled, b.BookingStatus)
	assert.Equal(t, 2, testutil.Beds(t, f.db, "R1"))
}

func TestAuthorizedDoesNotRegressPartial(t *testing.T) {
	f := newFixture(t, 2)
	f.heldBooking(t, "pay_1")

	res := f.deliver(t, EventPaymentAuthorized, "pay_1", "evt_1")
	assert.Equal(t, OutcomeProcessed, res.Outcome)
	assert.Equal(t, domain.PaymentPartial, f.booking(t, "pay_1").PaymentStatus)
}

func TestEventBeforeBookingIsDeferredAndReplayed(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()

	res := f.deliver(t, EventPaymentCaptured, "pay_early", "evt_1")
	assert.Equal(t, OutcomeDeferred, res.Outcome)

	stored, err := f.events.GetByEventID(ctx, "evt_1")
	require.NoError(t, err)
	assert.Equal(t, domain.WebhookDeferred, stored.Status)

	// redelivery while still absent stays deferred and is not treated as a duplicate
	assert.Equal(t, OutcomeDeferred, f.deliver(t, EventPaymentCaptured, "pay_early", "evt_1").Outcome)

	f.heldBooking(t, "pay_early")
	n, err := f.svc.ReplayForPayment(ctx, "pay_early")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, domain.PaymentCompleted, f.booking(t, "pay_early").PaymentStatus)

	stored, err = f.events.GetByEventID(ctx, "evt_1")
	require.NoError(t, err)
	assert.Equal(t, domain.WebhookProcessed, stored.Status)
	assert.NotNil(t, stored.ProcessedAt)

	n, err = f.svc.ReplayForPayment(ctx, "pay_early")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestFailedBeforeVerifyCancelsOnMaterialize(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	assert.Equal(t, OutcomeDeferred, f.deliver(t, EventPaymentFailed, "pay_late", "evt_f").Outcome)

	bookingSvc := booking.NewService(f.bookings, repository.NewPropertyRepository(f.db), repository.NewRoomRepository(f.db),
		f.ledger, payment.NewVerifier(keySecret, hookSecret), config.CapacityAssignLater, testutil.Quiet)
	bookingSvc.SetReplayer(f.svc)

	res, err := bookingSvc.Materialize(ctx, "user-1", booking.VerifyPaymentRequest{
		OrderID:   "order_pay_late",
		PaymentID: "pay_late",
		Signature: payment.Sign("order_pay_late", "pay_late", keySecret),
		BookingDetails: booking.BookingDetails{
			PropertyID: "P1", RoomID: "R1", TotalAmount: 45000, AmountPaid: 9000, AmountDue: 36000,
			GuestName: "Asha", GuestEmail: "asha@example.com", GuestPhone: "+919000000001",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.BookingCancelled, res.Booking.BookingStatus)
	assert.Equal(t, domain.PaymentFailed, res.Booking.PaymentStatus)
	assert.Equal(t, domain.InventoryReleased, res.Booking.InventoryStatus)
	assert.Equal(t, 1, testutil.Beds(t, f.db, "R1"))
}

func TestRejectedDeliveries(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	body := eventBody(EventPaymentFailed, "pay_1", "")

	_, err := f.svc.HandleDelivery(ctx, body, payment.SignWebhook(body, keySecret), "evt_1")
	assert.ErrorIs(t, err, ErrInvalidSignature)

	_, err = f.svc.HandleDelivery(ctx, body, "", "evt_1")
	assert.ErrorIs(t, err, ErrInvalidSignature)

	garbage := []byte("{not json")
	_, err = f.svc.HandleDelivery(ctx, garbage, payment.SignWebhook(garbage, hookSecret), "evt_2")
	assert.ErrorIs(t, err, ErrMalformed)

	stored, err := f.events.GetByEventID(ctx, "evt_1")
	require.NoError(t, err)
	assert.Nil(t, stored)

	f.svc.verifier = payment.NewVerifier(keySecret, "")
	_, err = f.svc.HandleDelivery(ctx, body, payment.SignWebhook(body, hookSecret), "evt_1")
	assert.ErrorIs(t, err, ErrConfig)
}

func TestIgnoredEvents(t *testing.T) {
	f := newFixture(t, 1)
	assert.Equal(t, OutcomeIgnored, f.deliver(t, "refund.created", "pay_1", "evt_1").Outcome)
	assert.Equal(t, OutcomeIgnored, f.deliver(t, EventOrderPaid, "pay_unknown", "evt_2").Outcome)

	f.heldBooking(t, "pay_1")
	assert.Equal(t, OutcomeProcessed, f.deliver(t, EventOrderPaid, "pay_1", "evt_3").Outcome)
	assert.Equal(t, domain.PaymentPartial, f.booking(t, "pay_1").PaymentStatus)
}

func TestEventIDFallbacks(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	withID := eventBody(EventPaymentCaptured, "pay_1", "evt_payload")
	res, err := f.svc.HandleDelivery(ctx, withID, payment.SignWebhook(withID, hookSecret), "")
	require.NoError(t, err)
	assert.Equal(t, "evt_payload", res.EventID)

	noID := eventBody(EventPaymentAuthorized, "pay_2", "")
	res, err = f.svc.HandleDelivery(ctx, noID, payment.SignWebhook(noID, hookSecret), "")
	require.NoError(t, err)
	assert.Contains(t, res.EventID, "sha256:")

	f.heldBooking(t, "pay_3")
	body := eventBody(EventPaymentCaptured, "pay_3", "")
	first, err := f.svc.HandleDelivery(ctx, body, payment.SignWebhook(body, hookSecret), "")
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, first.Outcome)
	again, err := f.svc.HandleDelivery(ctx, body, payment.SignWebhook(body, hookSecret), "")
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, again.Outcome)
}

func TestReplayDeferredAndWorker(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()

	f.deliver(t, EventPaymentCaptured, "pay_a", "evt_a")
	f.deliver(t, EventPaymentCaptured, "pay_b", "evt_b")

	stats, err := f.svc.ReplayDeferred(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, ReplayStats{Scanned: 2, StillDeferred: 2}, stats)

	f.heldBooking(t, "pay_a")
	f.heldBooking(t, "pay_b")

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		NewWorker(f.svc, 20*time.Millisecond, 10, nil).Run(runCtx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		a, _ := f.bookings.FindByPaymentID(ctx, "pay_a")
		b, _ := f.bookings.FindByPaymentID(ctx, "pay_b")
		return a.PaymentStatus == domain.PaymentCompleted && b.PaymentStatus == domain.PaymentCompleted
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}

	left, err := f.events.ListDeferred(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, left)
}
