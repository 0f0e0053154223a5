package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pgstay/internal/domain"

	"gorm.io/gorm"
)

type WebhookEventRepository struct {
	db *gorm.DB
}

func NewWebhookEventRepository(db *gorm.DB) *WebhookEventRepository {
	return &WebhookEventRepository{db: db}
}

// RecordIfNew stores the event unless its event_id was seen before, in which case the
// stored row is returned with created=false.
func (r *WebhookEventRepository) RecordIfNew(ctx context.Context, e *domain.WebhookEvent) (*domain.WebhookEvent, bool, error) {
	existing, err := r.GetByEventID(ctx, e.EventID)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	if e.Status == "" {
		e.Status = domain.WebhookReceived
	}
	if err := r.db.WithContext(ctx).Create(e).Error; err != nil {
		if !isUniqueConstraintError(err) {
			return nil, false, err
		}
		winner, ferr := r.GetByEventID(ctx, e.EventID)
		if ferr != nil {
			return nil, false, ferr
		}
		if winner == nil {
			return nil, false, fmt.Errorf("unique violation on event_id %s but no row found: %w", e.EventID, err)
		}
		return winner, false, nil
	}
	return e, true, nil
}

func (r *WebhookEventRepository) GetByEventID(ctx context.Context, eventID string) (*domain.WebhookEvent, error) {
	var e domain.WebhookEvent
	err := r.db.WithContext(ctx).Where("event_id = ?", eventID).First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// MarkStatus records the outcome of one processing attempt.
func (r *WebhookEventRepository) MarkStatus(ctx context.Context, id string, status domain.WebhookEventStatus, reason string) error {
	updates := map[string]interface{}{
		"status":           status,
		"processing_error": reason,
		"attempts":         gorm.Expr("attempts + 1"),
		"updated_at":       time.Now().UTC(),
	}
	if status == domain.WebhookProcessed || status == domain.WebhookIgnored {
		updates["processed_at"] = time.Now().UTC()
	}
	return r.db.WithContext(ctx).Model(&domain.WebhookEvent{}).Where("id = ?", id).UpdateColumns(updates).Error
}

// ListDeferred returns the oldest deferred events first.
func (r *WebhookEventRepository) ListDeferred(ctx context.Context, limit int) ([]domain.WebhookEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	var out []domain.WebhookEvent
	err := r.db.WithContext(ctx).
		Where("status = ?", domain.WebhookDeferred).
		Order("created_at asc").
		Limit(limit).
		Find(&out).Error
	return out, err
}

func (r *WebhookEventRepository) ListDeferredByPayment(ctx context.Context, paymentID string) ([]domain.WebhookEvent, error) {
	var out []domain.WebhookEvent
	err := r.db.WithContext(ctx).
		Where("status = ? AND payment_id = ?", domain.WebhookDeferred, paymentID).
		Order("created_at asc").
		Find(&out).Error
	return out, err
}
