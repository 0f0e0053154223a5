package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type WebhookEventStatus string

const (
	WebhookReceived  WebhookEventStatus = "received"
	WebhookProcessed WebhookEventStatus = "processed"
	WebhookDeferred  WebhookEventStatus = "deferred"
	WebhookIgnored   WebhookEventStatus = "ignored"
)

// WebhookEvent stores verified gateway deliveries, deduplicated by the gateway event id.
// Deferred rows reference a payment that had no booking yet and are replayed later.
type WebhookEvent struct {
	ID              string             `json:"id" gorm:"type:varchar(36);primaryKey"`
	EventID         string             `json:"event_id" gorm:"type:varchar(128);not null;uniqueIndex:ux_webhook_events_event_id"`
	EventType       string             `json:"event_type" gorm:"type:varchar(64);not null;index"`
	PaymentID       string             `json:"payment_id" gorm:"type:varchar(64);index"`
	PayloadJSON     string             `json:"payload_json" gorm:"type:text;not null"`
	Status          WebhookEventStatus `json:"status" gorm:"type:varchar(20);not null;default:'received';index"`
	Attempts        int                `json:"attempts" gorm:"not null;default:0"`
	ProcessingError string             `json:"processing_error" gorm:"type:text"`
	ProcessedAt     *time.Time         `json:"processed_at,omitempty"`
	CreatedAt       time.Time          `json:"created_at" gorm:"index"`
	UpdatedAt       time.Time          `json:"updated_at"`
}

func (WebhookEvent) TableName() string { return "webhook_events" }

func (e *WebhookEvent) BeforeCreate(_ *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return nil
}
