package webhook

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

const (
	EventPaymentAuthorized = "payment.authorized"
	EventPaymentCaptured   = "payment.captured"
	EventPaymentFailed     = "payment.failed"
	EventOrderPaid         = "order.paid"
)

// Envelope is the gateway's webhook body. Only the fields the reconciler reads are mapped.
type Envelope struct {
	ID        string  `json:"id,omitempty"`
	Event     string  `json:"event"`
	Payload   Payload `json:"payload"`
	CreatedAt int64   `json:"created_at,omitempty"`
}

type Payload struct {
	Payment *PaymentWrapper `json:"payment,omitempty"`
	Order   *OrderWrapper   `json:"order,omitempty"`
}

type PaymentWrapper struct {
	Entity PaymentEntity `json:"entity"`
}

type OrderWrapper struct {
	Entity OrderEntity `json:"entity"`
}

type PaymentEntity struct {
	ID               string `json:"id"`
	OrderID          string `json:"order_id"`
	Status           string `json:"status"`
	Amount           int64  `json:"amount"`
	Currency         string `json:"currency,omitempty"`
	ErrorCode        string `json:"error_code,omitempty"`
	ErrorDescription string `json:"error_description,omitempty"`
}

type OrderEntity struct {
	ID         string `json:"id"`
	Status     string `json:"status"`
	Amount     int64  `json:"amount"`
	AmountPaid int64  `json:"amount_paid"`
	AmountDue  int64  `json:"amount_due"`
}

func parseEnvelope(body []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, err
	}
	if env.Event == "" {
		return nil, ErrMalformed
	}
	return &env, nil
}

// PaymentID is the booking key the event refers to, or empty.
func (e *Envelope) PaymentID() string {
	if e.Payload.Payment != nil {
		return e.Payload.Payment.Entity.ID
	}
	return ""
}

// eventID prefers the gateway's delivery id, then the payload id, then a digest of the body.
func eventID(header string, env *Envelope, body []byte) string {
	if header != "" {
		return header
	}
	if env.ID != "" {
		return env.ID
	}
	sum := sha256.Sum256(body)
	return "sha256:" + hex.EncodeToString(sum[:])
}

type Outcome string

const (
	OutcomeProcessed Outcome = "processed"
	OutcomeDeferred  Outcome = "deferred"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeDuplicate Outcome = "duplicate"
)

type Result struct {
	EventID   string  `json:"event_id"`
	Event     string  `json:"event"`
	PaymentID string  `json:"payment_id,omitempty"`
	Outcome   Outcome `json:"outcome"`
}

type ReplayStats struct {
	Scanned       int `json:"scanned"`
	Applied       int `json:"applied"`
	StillDeferred int `json:"still_deferred"`
	Failed        int `json:"failed"`
}
