package notifications

import (
	"context"

	"gorm.io/gorm"

	"reserver/internal/shared/apperrors"
)

type Repository interface {
	Create(ctx context.Context, notification *Notification) error
	ListForUser(ctx context.Context, userID int64, query NotificationListQuery) ([]Notification, int64, error)
	UnreadCount(ctx context.Context, userID int64) (int64, error)
	MarkRead(ctx context.Context, userID, notificationID int64) error
	MarkAllRead(ctx context.Context, userID int64) (int64, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, notification *Notification) error {
	if err := r.db.WithContext(ctx).Create(notification).Error; err != nil {
		return apperrors.Wrap(apperrors.KindStore, "failed to create notification", err)
	}
	return nil
}

func (r *repository) ListForUser(ctx context.Context, userID int64, query NotificationListQuery) ([]Notification, int64, error) {
	base := r.db.WithContext(ctx).Model(&Notification{}).Where("user_id = ?", userID)
	if query.UnreadOnly {
		base = base.Where("read = ?", false)
	}

	var totalCount int64
	if err := base.Count(&totalCount).Error; err != nil {
		return nil, 0, apperrors.Wrap(apperrors.KindStore, "failed to count notifications", err)
	}

	var notifications []Notification
	offset := (query.Page - 1) * query.Limit
	err := base.Order("created_at DESC").Offset(offset).Limit(query.Limit).Find(&notifications).Error
	if err != nil {
		return nil, 0, apperrors.Wrap(apperrors.KindStore, "failed to list notifications", err)
	}
	return notifications, totalCount, nil
}

func (r *repository) UnreadCount(ctx context.Context, userID int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&Notification{}).
		Where("user_id = ? AND read = ?", userID, false).
		Count(&count).Error
	if err != nil {
		return 0, apperrors.Wrap(apperrors.KindStore, "failed to count unread notifications", err)
	}
	return count, nil
}

func (r *repository) MarkRead(ctx context.Context, userID, notificationID int64) error {
	result := r.db.WithContext(ctx).Model(&Notification{}).
		Where("id = ? AND user_id = ?", notificationID, userID).
		Update("read", true)
	if result.Error != nil {
		return apperrors.Wrap(apperrors.KindStore, "failed to mark notification read", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.Newf(apperrors.KindNotFound, "notification %d not found", notificationID)
	}
	return nil
}

func (r *repository) MarkAllRead(ctx context.Context, userID int64) (int64, error) {
	result := r.db.WithContext(ctx).Model(&Notification{}).
		Where("user_id = ? AND read = ?", userID, false).
		Update("read", true)
	if result.Error != nil {
		return 0, apperrors.Wrap(apperrors.KindStore, "failed to mark notifications read", result.Error)
	}
	return result.RowsAffected, nil
}
