package webhooks

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"reserver/internal/shared/apperrors"
)

type Repository interface {
	Create(ctx context.Context, webhook *Webhook) error
	GetByID(ctx context.Context, id int64) (*Webhook, error)
	ListForUser(ctx context.Context, userID int64) ([]Webhook, error)
	ListActive(ctx context.Context) ([]Webhook, error)
	Update(ctx context.Context, id int64, updates map[string]interface{}) error
	Delete(ctx context.Context, id int64) error

	CreateDelivery(ctx context.Context, delivery *WebhookDelivery) error
	GetDelivery(ctx context.Context, id int64) (*WebhookDelivery, error)
	ListDeliveries(ctx context.Context, webhookID int64, query DeliveryListQuery) ([]WebhookDelivery, int64, error)

	// DueDeliveries returns pending rows whose retry time has come, oldest
	// first. Fresh rows with no retry time scheduled are included so
	// deliveries that never made it into the in-memory queue get picked up.
	DueDeliveries(ctx context.Context, now time.Time, limit int) ([]WebhookDelivery, error)

	MarkDelivered(ctx context.Context, id int64, statusCode int, responseBody string, at time.Time) error
	MarkAttemptFailed(ctx context.Context, id int64, statusCode int, responseBody, errorMessage string, retryCount int, nextRetryAt *time.Time, final bool) error
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, webhook *Webhook) error {
	if err := r.db.WithContext(ctx).Create(webhook).Error; err != nil {
		return apperrors.Wrap(apperrors.KindStore, "failed to create webhook", err)
	}
	return nil
}

func (r *repository) GetByID(ctx context.Context, id int64) (*Webhook, error) {
	var webhook Webhook
	err := r.db.WithContext(ctx).First(&webhook, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.Newf(apperrors.KindNotFound, "webhook %d not found", id)
		}
		return nil, apperrors.Wrap(apperrors.KindStore, "failed to load webhook", err)
	}
	return &webhook, nil
}

func (r *repository) ListForUser(ctx context.Context, userID int64) ([]Webhook, error) {
	var webhooks []Webhook
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&webhooks).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindStore, "failed to list webhooks", err)
	}
	return webhooks, nil
}

func (r *repository) ListActive(ctx context.Context) ([]Webhook, error) {
	var webhooks []Webhook
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Find(&webhooks).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindStore, "failed to list active webhooks", err)
	}
	return webhooks, nil
}

func (r *repository) Update(ctx context.Context, id int64, updates map[string]interface{}) error {
	result := r.db.WithContext(ctx).Model(&Webhook{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return apperrors.Wrap(apperrors.KindStore, "failed to update webhook", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.Newf(apperrors.KindNotFound, "webhook %d not found", id)
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, id int64) error {
	result := r.db.WithContext(ctx).Delete(&Webhook{}, id)
	if result.Error != nil {
		return apperrors.Wrap(apperrors.KindStore, "failed to delete webhook", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.Newf(apperrors.KindNotFound, "webhook %d not found", id)
	}
	return nil
}

func (r *repository) CreateDelivery(ctx context.Context, delivery *WebhookDelivery) error {
	if err := r.db.WithContext(ctx).Create(delivery).Error; err != nil {
		return apperrors.Wrap(apperrors.KindStore, "failed to create webhook delivery", err)
	}
	return nil
}

func (r *repository) GetDelivery(ctx context.Context, id int64) (*WebhookDelivery, error) {
	var delivery WebhookDelivery
	err := r.db.WithContext(ctx).First(&delivery, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.Newf(apperrors.KindNotFound, "webhook delivery %d not found", id)
		}
		return nil, apperrors.Wrap(apperrors.KindStore, "failed to load webhook delivery", err)
	}
	return &delivery, nil
}

func (r *repository) ListDeliveries(ctx context.Context, webhookID int64, query DeliveryListQuery) ([]WebhookDelivery, int64, error) {
	base := r.db.WithContext(ctx).Model(&WebhookDelivery{}).Where("webhook_id = ?", webhookID)

	var totalCount int64
	if err := base.Count(&totalCount).Error; err != nil {
		return nil, 0, apperrors.Wrap(apperrors.KindStore, "failed to count webhook deliveries", err)
	}

	var deliveries []WebhookDelivery
	offset := (query.Page - 1) * query.Limit
	err := base.Order("created_at DESC").Offset(offset).Limit(query.Limit).Find(&deliveries).Error
	if err != nil {
		return nil, 0, apperrors.Wrap(apperrors.KindStore, "failed to list webhook deliveries", err)
	}
	return deliveries, totalCount, nil
}

func (r *repository) DueDeliveries(ctx context.Context, now time.Time, limit int) ([]WebhookDelivery, error) {
	var deliveries []WebhookDelivery
	err := r.db.WithContext(ctx).
		Where("status = ? AND (next_retry_at IS NULL OR next_retry_at <= ?)", DeliveryPending, now).
		Order("created_at ASC").
		Limit(limit).
		Find(&deliveries).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindStore, "failed to list due deliveries", err)
	}
	return deliveries, nil
}

func (r *repository) MarkDelivered(ctx context.Context, id int64, statusCode int, responseBody string, at time.Time) error {
	err := r.db.WithContext(ctx).Model(&WebhookDelivery{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":        DeliveryDelivered,
			"status_code":   statusCode,
			"response_body": responseBody,
			"error_message": "",
			"delivered_at":  at,
		}).Error
	if err != nil {
		return apperrors.Wrap(apperrors.KindStore, "failed to mark delivery succeeded", err)
	}
	return nil
}

func (r *repository) MarkAttemptFailed(ctx context.Context, id int64, statusCode int, responseBody, errorMessage string, retryCount int, nextRetryAt *time.Time, final bool) error {
	status := DeliveryPending
	if final {
		status = DeliveryFailed
	}
	err := r.db.WithContext(ctx).Model(&WebhookDelivery{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":        status,
			"status_code":   statusCode,
			"response_body": responseBody,
			"error_message": errorMessage,
			"retry_count":   retryCount,
			"next_retry_at": nextRetryAt,
		}).Error
	if err != nil {
		return apperrors.Wrap(apperrors.KindStore, "failed to record delivery attempt", err)
	}
	return nil
}
