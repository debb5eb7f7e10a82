package resources

import (
	"context"
	"errors"
	"strings"
	"time"

	"reserver/internal/shared/apperrors"

	"gorm.io/gorm"
)

type Repository interface {
	Create(ctx context.Context, resource *Resource) error
	GetByID(ctx context.Context, id int64) (*Resource, error)
	GetByName(ctx context.Context, name string) (*Resource, error)
	List(ctx context.Context, query ResourceListQuery) ([]Resource, int64, error)
	Update(ctx context.Context, id int64, updates map[string]interface{}) (*Resource, error)
	SetStatus(ctx context.Context, id int64, status ResourceStatus, unavailableSince *time.Time) error

	GetBusinessHours(ctx context.Context, resourceID int64) ([]BusinessHours, error)
	ReplaceBusinessHours(ctx context.Context, resourceID int64, hours []BusinessHours) error
	ListBlackoutDates(ctx context.Context, resourceID int64) ([]BlackoutDate, error)
	AddBlackoutDate(ctx context.Context, blackout *BlackoutDate) error
	DeleteBlackoutDate(ctx context.Context, resourceID, blackoutID int64) error

	HasActiveReservationAt(ctx context.Context, resourceID int64, at time.Time) (bool, error)
	AutoResetDue(ctx context.Context, now time.Time) ([]Resource, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, resource *Resource) error {
	err := r.db.WithContext(ctx).Create(resource).Error
	if err != nil && isUniqueViolation(err) {
		return apperrors.Newf(apperrors.KindConflict, "resource name %q already exists", resource.Name)
	}
	return err
}

func (r *repository) GetByID(ctx context.Context, id int64) (*Resource, error) {
	var resource Resource
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&resource).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.Newf(apperrors.KindNotFound, "resource %d not found", id)
		}
		return nil, err
	}
	return &resource, nil
}

func (r *repository) GetByName(ctx context.Context, name string) (*Resource, error) {
	var resource Resource
	err := r.db.WithContext(ctx).Where("name = ?", name).First(&resource).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.Newf(apperrors.KindNotFound, "resource %q not found", name)
		}
		return nil, err
	}
	return &resource, nil
}

func (r *repository) List(ctx context.Context, query ResourceListQuery) ([]Resource, int64, error) {
	var items []Resource
	var totalCount int64

	db := r.db.WithContext(ctx).Model(&Resource{})

	if query.Search != "" {
		searchTerm := "%" + strings.ToLower(query.Search) + "%"
		db = db.Where("LOWER(name) LIKE ? OR LOWER(description) LIKE ?", searchTerm, searchTerm)
	}
	if query.Status != "" {
		db = db.Where("status = ?", query.Status)
	}
	if query.Tag != "" {
		db = db.Where("tags::text LIKE ?", "%\""+query.Tag+"\"%")
	}

	if err := db.Count(&totalCount).Error; err != nil {
		return nil, 0, err
	}

	if query.Page == 0 {
		query.Page = 1
	}
	if query.Limit == 0 {
		query.Limit = 10
	}
	offset := (query.Page - 1) * query.Limit

	err := db.Order("name ASC").Offset(offset).Limit(query.Limit).Find(&items).Error
	return items, totalCount, err
}

func (r *repository) Update(ctx context.Context, id int64, updates map[string]interface{}) (*Resource, error) {
	var resource Resource
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&resource).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.Newf(apperrors.KindNotFound, "resource %d not found", id)
		}
		return nil, err
	}

	if err := r.db.WithContext(ctx).Model(&resource).Updates(updates).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, apperrors.New(apperrors.KindConflict, "resource name already exists")
		}
		return nil, err
	}

	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&resource).Error; err != nil {
		return nil, err
	}
	return &resource, nil
}

func (r *repository) SetStatus(ctx context.Context, id int64, status ResourceStatus, unavailableSince *time.Time) error {
	return r.db.WithContext(ctx).Model(&Resource{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":            status,
			"unavailable_since": unavailableSince,
		}).Error
}

func (r *repository) GetBusinessHours(ctx context.Context, resourceID int64) ([]BusinessHours, error) {
	var hours []BusinessHours
	err := r.db.WithContext(ctx).
		Where("resource_id = ?", resourceID).
		Order("day_of_week ASC").
		Find(&hours).Error
	return hours, err
}

func (r *repository) ReplaceBusinessHours(ctx context.Context, resourceID int64, hours []BusinessHours) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("resource_id = ?", resourceID).Delete(&BusinessHours{}).Error; err != nil {
			return err
		}
		if len(hours) == 0 {
			return nil
		}
		return tx.Create(&hours).Error
	})
}

func (r *repository) ListBlackoutDates(ctx context.Context, resourceID int64) ([]BlackoutDate, error) {
	var blackouts []BlackoutDate
	err := r.db.WithContext(ctx).
		Where("resource_id = ?", resourceID).
		Order("start_date ASC").
		Find(&blackouts).Error
	return blackouts, err
}

func (r *repository) AddBlackoutDate(ctx context.Context, blackout *BlackoutDate) error {
	return r.db.WithContext(ctx).Create(blackout).Error
}

func (r *repository) DeleteBlackoutDate(ctx context.Context, resourceID, blackoutID int64) error {
	result := r.db.WithContext(ctx).
		Where("id = ? AND resource_id = ?", blackoutID, resourceID).
		Delete(&BlackoutDate{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return apperrors.Newf(apperrors.KindNotFound, "blackout %d not found", blackoutID)
	}
	return nil
}

// HasActiveReservationAt checks the reservations table directly by name; the
// reservations package depends on this one, not the other way around.
func (r *repository) HasActiveReservationAt(ctx context.Context, resourceID int64, at time.Time) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Table("reservations").
		Where("resource_id = ? AND status = ? AND start_time <= ? AND end_time > ?",
			resourceID, "active", at, at).
		Count(&count).Error
	return count > 0, err
}

func (r *repository) AutoResetDue(ctx context.Context, now time.Time) ([]Resource, error) {
	var items []Resource
	err := r.db.WithContext(ctx).
		Where("status = ? AND unavailable_since IS NOT NULL", StatusUnavailable).
		Where("unavailable_since + (auto_reset_hours * interval '1 hour') <= ?", now).
		Find(&items).Error
	return items, err
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "23505")
}
