package webhook

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"pgstay/internal/domain"
	"pgstay/internal/modules/notification"
	"pgstay/internal/modules/payment"
)

// Service reconciles asynchronous gateway events with bookings. Every handler tolerates
// redelivery and any ordering relative to the synchronous verify call.
type Service struct {
	verifier   WebhookVerifier
	events     EventLedger
	bookings   BookingStore
	inventory  InventoryReleaser
	properties PropertyReader
	notifier   Notifier
	tracer     trace.Tracer
	loggerf    func(format string, args ...interface{})
}

func NewService(
	verifier WebhookVerifier,
	events EventLedger,
	bookings BookingStore,
	inventory InventoryReleaser,
	loggerf func(format string, args ...interface{}),
) *Service {
	if loggerf == nil {
		loggerf = func(string, ...interface{}) {}
	}
	return &Service{
		verifier:  verifier,
		events:    events,
		bookings:  bookings,
		inventory: inventory,
		tracer:    otel.Tracer("pgstay/webhook"),
		loggerf:   loggerf,
	}
}

// SetNotifier enables booking.cancelled notifications. properties resolves the owner to notify.
func (s *Service) SetNotifier(n Notifier, properties PropertyReader) {
	s.notifier = n
	s.properties = properties
}

// HandleDelivery verifies, records and applies one webhook delivery.
func (s *Service) HandleDelivery(ctx context.Context, body []byte, signature, deliveryID string) (*Result, error) {
	ctx, span := s.tracer.Start(ctx, "webhook.handle")
	defer span.End()

	res, err := s.handleDelivery(ctx, body, signature, deliveryID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.String("webhook.event", res.Event),
		attribute.String("webhook.outcome", string(res.Outcome)),
		attribute.String("payment.id", res.PaymentID),
	)
	return res, nil
}

func (s *Service) handleDelivery(ctx context.Context, body []byte, signature, deliveryID string) (*Result, error) {
	if err := s.verifier.VerifyWebhook(body, signature); err != nil {
		if errors.Is(err, payment.ErrSecretNotConfigured) {
			s.loggerf("level=error msg=webhook_secret_missing")
			return nil, ErrConfig
		}
		s.loggerf("level=warn msg=webhook_signature_rejected delivery_id=%s", deliveryID)
		return nil, ErrInvalidSignature
	}

	env, err := parseEnvelope(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	rec := &domain.WebhookEvent{
		EventID:     eventID(deliveryID, env, body),
		EventType:   env.Event,
		PaymentID:   env.PaymentID(),
		PayloadJSON: string(body),
		Status:      domain.WebhookReceived,
	}
	stored, created, err := s.events.RecordIfNew(ctx, rec)
	if err != nil {
		return nil, s.unavailable("record event", err)
	}

	res := &Result{EventID: stored.EventID, Event: env.Event, PaymentID: stored.PaymentID}
	if !created && (stored.Status == domain.WebhookProcessed || stored.Status == domain.WebhookIgnored) {
		s.loggerf("level=info msg=webhook_duplicate event_id=%s event=%s status=%s", stored.EventID, env.Event, stored.Status)
		res.Outcome = OutcomeDuplicate
		return res, nil
	}

	outcome, err := s.process(ctx, stored, env)
	if err != nil {
		return nil, err
	}
	res.Outcome = outcome
	return res, nil
}

// process applies the event and records the outcome on the ledger row.
func (s *Service) process(ctx context.Context, rec *domain.WebhookEvent, env *Envelope) (Outcome, error) {
	outcome, reason, err := s.apply(ctx, env)
	if err != nil {
		// Row stays received/deferred so redelivery or replay retries it.
		return "", err
	}

	status := domain.WebhookProcessed
	switch outcome {
	case OutcomeDeferred:
		status = domain.WebhookDeferred
	case OutcomeIgnored:
		status = domain.WebhookIgnored
	}
	if err := s.events.MarkStatus(ctx, rec.ID, status, reason); err != nil {
		return "", s.unavailable("mark event", err)
	}
	s.loggerf("level=info msg=webhook_applied event_id=%s event=%s payment_id=%s outcome=%s reason=%q", rec.EventID, env.Event, env.PaymentID(), outcome, reason)
	return outcome, nil
}

func (s *Service) apply(ctx context.Context, env *Envelope) (Outcome, string, error) {
	switch env.Event {
	case EventPaymentAuthorized, EventPaymentCaptured, EventPaymentFailed, EventOrderPaid:
	default:
		return OutcomeIgnored, "unsupported event", nil
	}

	paymentID := env.PaymentID()
	if paymentID == "" {
		return OutcomeIgnored, "no payment entity", nil
	}

	b, err := s.bookings.FindByPaymentID(ctx, paymentID)
	if err != nil {
		return "", "", s.unavailable("find booking", err)
	}
	if b == nil {
		if env.Event == EventOrderPaid {
			return OutcomeIgnored, "informational, no booking", nil
		}
		return OutcomeDeferred, "booking not found", nil
	}

	switch env.Event {
	case EventPaymentAuthorized:
		return s.advance(ctx, b, domain.PaymentAuthorized, b.BookingStatus)
	case EventPaymentCaptured:
		if b.PaymentStatus == domain.PaymentFailed {
			s.loggerf("level=warn msg=webhook_captured_after_failed booking_id=%s payment_id=%s manual_review=true", b.ID, b.PaymentID)
			return OutcomeIgnored, "captured after failed, manual review", nil
		}
		return s.advance(ctx, b, domain.PaymentCompleted, domain.BookingConfirmed)
	case EventPaymentFailed:
		return s.fail(ctx, b, env)
	default:
		// order.paid: advance-only model, amounts never change after creation.
		return OutcomeProcessed, "informational", nil
	}
}

// advance applies a forward move in payment status. Stale or repeated events are no-ops.
func (s *Service) advance(ctx context.Context, b *domain.Booking, to domain.PaymentStatus, bs domain.BookingStatus) (Outcome, string, error) {
	from := lowerRanked(to)
	applied, err := s.bookings.TransitionStatus(ctx, b.PaymentID, from, to, bs)
	if err != nil {
		return "", "", s.unavailable("transition status", err)
	}
	if !applied {
		return OutcomeProcessed, "already at or past " + string(to), nil
	}
	return OutcomeProcessed, "", nil
}

// fail cancels the booking and restores its bed. The release runs on every delivery so a
// crash between the two steps is repaired by redelivery; the inventory marker keeps it to
// one increment.
func (s *Service) fail(ctx context.Context, b *domain.Booking, env *Envelope) (Outcome, string, error) {
	if b.PaymentStatus == domain.PaymentCompleted {
		s.loggerf("level=warn msg=webhook_failed_after_capture booking_id=%s payment_id=%s", b.ID, b.PaymentID)
		return OutcomeIgnored, "failed after capture", nil
	}

	applied, err := s.bookings.TransitionStatus(ctx, b.PaymentID, lowerRanked(domain.PaymentCompleted), domain.PaymentFailed, domain.BookingCancelled)
	if err != nil {
		return "", "", s.unavailable("transition status", err)
	}
	if !applied {
		fresh, err := s.bookings.FindByPaymentID(ctx, b.PaymentID)
		if err != nil {
			return "", "", s.unavailable("find booking", err)
		}
		if fresh == nil || fresh.PaymentStatus != domain.PaymentFailed {
			return OutcomeIgnored, "failed after capture", nil
		}
	}

	restored, err := s.inventory.ReleaseForBooking(ctx, b.ID)
	if err != nil {
		return "", "", s.unavailable("release inventory", err)
	}

	if applied {
		p := env.Payload.Payment.Entity
		s.loggerf("level=info msg=booking_cancelled booking_id=%s payment_id=%s error_code=%s bed_restored=%t", b.ID, b.PaymentID, p.ErrorCode, restored)
		s.notifyCancelled(ctx, b)
		return OutcomeProcessed, "", nil
	}
	return OutcomeProcessed, "already failed", nil
}

func (s *Service) notifyCancelled(ctx context.Context, b *domain.Booking) {
	if s.notifier == nil {
		return
	}
	e := notification.Event{
		Type:       notification.EventBookingCancelled,
		BookingID:  b.ID,
		PaymentID:  b.PaymentID,
		PropertyID: b.PropertyID,
		GuestName:  b.GuestName,
		RoomID:     b.RoomIDValue(),
	}
	if s.properties != nil {
		if p, err := s.properties.GetByID(ctx, b.PropertyID); err == nil {
			e.PropertyName = p.Name
			e.OwnerUserID = p.OwnerUserID
		}
	}
	s.notifier.Notify(ctx, e)
}

// lowerRanked lists the non-terminal statuses strictly below to.
func lowerRanked(to domain.PaymentStatus) []domain.PaymentStatus {
	all := []domain.PaymentStatus{domain.PaymentPending, domain.PaymentAuthorized, domain.PaymentPartial, domain.PaymentCompleted}
	out := make([]domain.PaymentStatus, 0, len(all))
	for _, st := range all {
		if st.Rank() < to.Rank() {
			out = append(out, st)
		}
	}
	return out
}

// ReplayForPayment re-applies deferred events for one payment, oldest first.
func (s *Service) ReplayForPayment(ctx context.Context, paymentID string) (int, error) {
	events, err := s.events.ListDeferredByPayment(ctx, paymentID)
	if err != nil {
		return 0, s.unavailable("list deferred", err)
	}
	stats := s.replay(ctx, events)
	if stats.Failed > 0 {
		return stats.Applied, fmt.Errorf("%d deferred events for %s failed: %w", stats.Failed, paymentID, ErrStoreUnavailable)
	}
	return stats.Applied, nil
}

// ReplayDeferred re-applies up to limit deferred events.
func (s *Service) ReplayDeferred(ctx context.Context, limit int) (ReplayStats, error) {
	events, err := s.events.ListDeferred(ctx, limit)
	if err != nil {
		return ReplayStats{}, s.unavailable("list deferred", err)
	}
	return s.replay(ctx, events), nil
}

func (s *Service) replay(ctx context.Context, events []domain.WebhookEvent) ReplayStats {
	stats := ReplayStats{Scanned: len(events)}
	for i := range events {
		rec := &events[i]
		env, err := parseEnvelope([]byte(rec.PayloadJSON))
		if err != nil {
			s.loggerf("level=warn msg=webhook_replay_unparseable event_id=%s err=%v", rec.EventID, err)
			if merr := s.events.MarkStatus(ctx, rec.ID, domain.WebhookIgnored, "unparseable payload"); merr != nil {
				stats.Failed++
			}
			continue
		}

		outcome, err := s.process(ctx, rec, env)
		switch {
		case err != nil:
			s.loggerf("level=warn msg=webhook_replay_failed event_id=%s err=%v", rec.EventID, err)
			stats.Failed++
		case outcome == OutcomeDeferred:
			stats.StillDeferred++
		default:
			stats.Applied++
		}
	}
	if stats.Scanned > 0 {
		s.loggerf("level=info msg=webhook_replay scanned=%d applied=%d still_deferred=%d failed=%d", stats.Scanned, stats.Applied, stats.StillDeferred, stats.Failed)
	}
	return stats
}

func (s *Service) unavailable(op string, err error) error {
	if errors.Is(err, domain.ErrStoreUnavailable) {
		return err
	}
	s.loggerf("level=error msg=store_failed op=%q err=%v", op, err)
	return fmt.Errorf("%s: %w: %w", op, domain.ErrStoreUnavailable, err)
}
