package approvals

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"reserver/internal/shared/apperrors"
)

type Repository interface {
	Create(ctx context.Context, request *ApprovalRequest) error
	GetByID(ctx context.Context, id int64) (*ApprovalRequest, error)
	GetPendingByReservation(ctx context.Context, reservationID int64) (*ApprovalRequest, error)
	ListPendingForApprover(ctx context.Context, approverID int64, query ApprovalListQuery) ([]ApprovalRequest, int64, error)

	// Resolve flips a pending request to a terminal status. A request that
	// is no longer pending is reported as already resolved, never
	// overwritten.
	Resolve(ctx context.Context, id int64, status RequestStatus, responseMessage string, now time.Time) (*ApprovalRequest, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, request *ApprovalRequest) error {
	if err := r.db.WithContext(ctx).Create(request).Error; err != nil {
		return apperrors.Wrap(apperrors.KindStore, "failed to create approval request", err)
	}
	return nil
}

func (r *repository) GetByID(ctx context.Context, id int64) (*ApprovalRequest, error) {
	var request ApprovalRequest
	err := r.db.WithContext(ctx).First(&request, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.Newf(apperrors.KindNotFound, "approval request %d not found", id)
		}
		return nil, apperrors.Wrap(apperrors.KindStore, "failed to load approval request", err)
	}
	return &request, nil
}

func (r *repository) GetPendingByReservation(ctx context.Context, reservationID int64) (*ApprovalRequest, error) {
	var request ApprovalRequest
	err := r.db.WithContext(ctx).
		Where("reservation_id = ? AND status = ?", reservationID, StatusPending).
		First(&request).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.Newf(apperrors.KindNotFound,
				"no pending approval request for reservation %d", reservationID)
		}
		return nil, apperrors.Wrap(apperrors.KindStore, "failed to load approval request", err)
	}
	return &request, nil
}

func (r *repository) ListPendingForApprover(ctx context.Context, approverID int64, query ApprovalListQuery) ([]ApprovalRequest, int64, error) {
	base := r.db.WithContext(ctx).Model(&ApprovalRequest{}).
		Where("approver_id = ? AND status = ?", approverID, StatusPending)

	var totalCount int64
	if err := base.Count(&totalCount).Error; err != nil {
		return nil, 0, apperrors.Wrap(apperrors.KindStore, "failed to count approval requests", err)
	}

	var requests []ApprovalRequest
	offset := (query.Page - 1) * query.Limit
	err := base.Order("created_at ASC").Offset(offset).Limit(query.Limit).Find(&requests).Error
	if err != nil {
		return nil, 0, apperrors.Wrap(apperrors.KindStore, "failed to list approval requests", err)
	}
	return requests, totalCount, nil
}

func (r *repository) Resolve(ctx context.Context, id int64, status RequestStatus, responseMessage string, now time.Time) (*ApprovalRequest, error) {
	result := r.db.WithContext(ctx).Model(&ApprovalRequest{}).
		Where("id = ? AND status = ?", id, StatusPending).
		Updates(map[string]interface{}{
			"status":           status,
			"response_message": responseMessage,
			"responded_at":     now,
		})
	if result.Error != nil {
		return nil, apperrors.Wrap(apperrors.KindStore, "failed to resolve approval request", result.Error)
	}
	if result.RowsAffected == 0 {
		existing, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		return nil, apperrors.Newf(apperrors.KindAlreadyResolved,
			"approval request %d already %s", id, existing.Status)
	}
	return r.GetByID(ctx, id)
}
