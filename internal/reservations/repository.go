package reservations

import (
	"context"
	"errors"
	"fmt"
	"time"

	"reserver/internal/resources"
	"reserver/internal/shared/apperrors"
	"reserver/internal/shared/database"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ReminderCandidate pairs a due reservation with the context the reminder
// notification needs.
type ReminderCandidate struct {
	Reservation  Reservation
	ResourceName string
}

type Repository interface {
	// CreateWithConflictCheck inserts the reservation inside a transaction
	// that locks the resource row, verifies no active overlap exists,
	// appends an audit entry and recomputes the resource status. The single
	// conflict-detection primitive; every booking path goes through it.
	CreateWithConflictCheck(ctx context.Context, reservation *Reservation, actorID int64, now time.Time) error

	// CreateSeriesWithConflictCheck validates every occurrence before
	// inserting any; partial series are never created.
	CreateSeriesWithConflictCheck(ctx context.Context, rule *RecurrenceRule, items []*Reservation, actorID int64, now time.Time) error

	// ActivatePending flips a pending_approval reservation to active after
	// re-checking for conflicts. On conflict the reservation is committed
	// as rejected and a ConflictError is returned alongside it.
	ActivatePending(ctx context.Context, reservationID, actorID int64, now time.Time) (*Reservation, error)

	MarkRejected(ctx context.Context, reservationID int64, reason string, actorID int64, now time.Time) (*Reservation, error)
	Cancel(ctx context.Context, reservationID int64, reason string, actorID int64, now time.Time) (*Reservation, error)

	GetByID(ctx context.Context, id int64) (*Reservation, error)
	ListByUser(ctx context.Context, userID int64, query ReservationListQuery) ([]Reservation, int64, error)
	ListByResourceWindow(ctx context.Context, resourceID int64, from, to time.Time) ([]Reservation, error)
	ListSeries(ctx context.Context, parentID int64) ([]Reservation, error)
	ListAudit(ctx context.Context, reservationID int64) ([]AuditEntry, error)

	ExpireBatch(ctx context.Context, now time.Time, limit int) ([]Reservation, error)
	ReminderCandidates(ctx context.Context, now time.Time, defaultHours, limit int) ([]ReminderCandidate, error)
	MarkReminderSent(ctx context.Context, id int64) error
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) CreateWithConflictCheck(ctx context.Context, reservation *Reservation, actorID int64, now time.Time) error {
	return database.WithTx(ctx, r.db, func(tx *gorm.DB) error {
		if _, err := lockResource(tx, reservation.ResourceID); err != nil {
			return err
		}

		overlaps, err := findOverlapping(tx, reservation.ResourceID, reservation.StartTime, reservation.EndTime, 0)
		if err != nil {
			return err
		}
		if len(overlaps) > 0 {
			return conflictError(reservation.ResourceID, overlaps)
		}

		if err := tx.Create(reservation).Error; err != nil {
			return err
		}

		action := "created"
		if reservation.Status == StatusPendingApproval {
			action = "approval requested"
		}
		if err := appendAudit(tx, reservation.ID, action, "", actorID); err != nil {
			return err
		}

		return recomputeResourceStatus(tx, reservation.ResourceID, now)
	})
}

func (r *repository) CreateSeriesWithConflictCheck(ctx context.Context, rule *RecurrenceRule, items []*Reservation, actorID int64, now time.Time) error {
	if len(items) == 0 {
		return apperrors.New(apperrors.KindValidation, "empty series")
	}
	resourceID := items[0].ResourceID

	return database.WithTx(ctx, r.db, func(tx *gorm.DB) error {
		if _, err := lockResource(tx, resourceID); err != nil {
			return err
		}

		// Validate the whole series before touching anything; a single
		// occupied occurrence rejects the lot.
		var conflicts []Reservation
		for _, item := range items {
			overlaps, err := findOverlapping(tx, resourceID, item.StartTime, item.EndTime, 0)
			if err != nil {
				return err
			}
			conflicts = append(conflicts, overlaps...)
		}
		if len(conflicts) > 0 {
			return conflictError(resourceID, conflicts)
		}

		if err := tx.Create(rule).Error; err != nil {
			return err
		}

		parent := items[0]
		parent.RecurrenceRuleID = &rule.ID
		if err := tx.Create(parent).Error; err != nil {
			return err
		}
		if err := appendAudit(tx, parent.ID, "created", "series parent", actorID); err != nil {
			return err
		}

		for _, item := range items[1:] {
			item.RecurrenceRuleID = &rule.ID
			item.ParentReservationID = &parent.ID
			if err := tx.Create(item).Error; err != nil {
				return err
			}
			if err := appendAudit(tx, item.ID, "created", fmt.Sprintf("series of %d", parent.ID), actorID); err != nil {
				return err
			}
		}

		return recomputeResourceStatus(tx, resourceID, now)
	})
}

func (r *repository) ActivatePending(ctx context.Context, reservationID, actorID int64, now time.Time) (*Reservation, error) {
	var reservation Reservation
	var conflict *apperrors.ConflictError

	err := database.WithTx(ctx, r.db, func(tx *gorm.DB) error {
		conflict = nil
		if err := tx.Where("id = ?", reservationID).First(&reservation).Error; err != nil {
			return notFoundOr(err, reservationID)
		}
		if reservation.Status != StatusPendingApproval {
			return apperrors.Newf(apperrors.KindAlreadyResolved,
				"reservation %d is %s, not pending approval", reservationID, reservation.Status)
		}

		if _, err := lockResource(tx, reservation.ResourceID); err != nil {
			return err
		}

		overlaps, err := findOverlapping(tx, reservation.ResourceID, reservation.StartTime, reservation.EndTime, reservation.ID)
		if err != nil {
			return err
		}
		if len(overlaps) > 0 {
			// Someone booked the window while the request sat pending. The
			// rejection is committed; the conflict is reported out-of-band
			// so the rollback does not undo it.
			conflict = conflictError(reservation.ResourceID, overlaps)
			reservation.Status = StatusRejected
			reservation.CancellationReason = "conflict on approval"
			if err := tx.Model(&Reservation{}).Where("id = ?", reservation.ID).Updates(map[string]interface{}{
				"status":              StatusRejected,
				"cancellation_reason": "conflict on approval",
			}).Error; err != nil {
				return err
			}
			return appendAudit(tx, reservation.ID, "rejected", "conflict on approval", actorID)
		}

		reservation.Status = StatusActive
		if err := tx.Model(&Reservation{}).Where("id = ?", reservation.ID).
			Update("status", StatusActive).Error; err != nil {
			return err
		}
		if err := appendAudit(tx, reservation.ID, "approved", "", actorID); err != nil {
			return err
		}
		return recomputeResourceStatus(tx, reservation.ResourceID, now)
	})
	if err != nil {
		return nil, err
	}
	if conflict != nil {
		return &reservation, conflict
	}
	return &reservation, nil
}

func (r *repository) MarkRejected(ctx context.Context, reservationID int64, reason string, actorID int64, now time.Time) (*Reservation, error) {
	var reservation Reservation

	err := database.WithTx(ctx, r.db, func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", reservationID).First(&reservation).Error; err != nil {
			return notFoundOr(err, reservationID)
		}
		if reservation.Status != StatusPendingApproval {
			return apperrors.Newf(apperrors.KindAlreadyResolved,
				"reservation %d is %s, not pending approval", reservationID, reservation.Status)
		}

		reservation.Status = StatusRejected
		reservation.CancellationReason = reason
		if err := tx.Model(&Reservation{}).Where("id = ?", reservation.ID).Updates(map[string]interface{}{
			"status":              StatusRejected,
			"cancellation_reason": reason,
		}).Error; err != nil {
			return err
		}
		return appendAudit(tx, reservation.ID, "rejected", reason, actorID)
	})
	if err != nil {
		return nil, err
	}
	return &reservation, nil
}

func (r *repository) Cancel(ctx context.Context, reservationID int64, reason string, actorID int64, now time.Time) (*Reservation, error) {
	var reservation Reservation

	err := database.WithTx(ctx, r.db, func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", reservationID).First(&reservation).Error; err != nil {
			return notFoundOr(err, reservationID)
		}
		if reservation.Status == StatusCancelled {
			return apperrors.Newf(apperrors.KindAlreadyResolved, "reservation %d already cancelled", reservationID)
		}
		if reservation.Status.IsTerminal() {
			return apperrors.Newf(apperrors.KindAlreadyResolved,
				"reservation %d is %s and cannot be cancelled", reservationID, reservation.Status)
		}

		if _, err := lockResource(tx, reservation.ResourceID); err != nil {
			return err
		}

		reservation.Status = StatusCancelled
		reservation.CancelledAt = &now
		reservation.CancellationReason = reason
		if err := tx.Model(&Reservation{}).Where("id = ?", reservation.ID).Updates(map[string]interface{}{
			"status":              StatusCancelled,
			"cancelled_at":        now,
			"cancellation_reason": reason,
		}).Error; err != nil {
			return err
		}
		if err := appendAudit(tx, reservation.ID, "cancelled", reason, actorID); err != nil {
			return err
		}
		return recomputeResourceStatus(tx, reservation.ResourceID, now)
	})
	if err != nil {
		return nil, err
	}
	return &reservation, nil
}

func (r *repository) GetByID(ctx context.Context, id int64) (*Reservation, error) {
	var reservation Reservation
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&reservation).Error; err != nil {
		return nil, notFoundOr(err, id)
	}
	return &reservation, nil
}

func (r *repository) ListByUser(ctx context.Context, userID int64, query ReservationListQuery) ([]Reservation, int64, error) {
	var items []Reservation
	var totalCount int64

	db := r.db.WithContext(ctx).Model(&Reservation{}).Where("user_id = ?", userID)
	if query.Status != "" {
		db = db.Where("status = ?", query.Status)
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

	err := db.Order("start_time DESC").Offset(offset).Limit(query.Limit).Find(&items).Error
	return items, totalCount, err
}

func (r *repository) ListByResourceWindow(ctx context.Context, resourceID int64, from, to time.Time) ([]Reservation, error) {
	var items []Reservation
	err := r.db.WithContext(ctx).
		Where("resource_id = ? AND status IN ? AND end_time > ? AND start_time < ?",
			resourceID, []ReservationStatus{StatusActive, StatusPendingApproval}, from, to).
		Order("start_time ASC").
		Find(&items).Error
	return items, err
}

func (r *repository) ListSeries(ctx context.Context, parentID int64) ([]Reservation, error) {
	var items []Reservation
	err := r.db.WithContext(ctx).
		Where("id = ? OR parent_reservation_id = ?", parentID, parentID).
		Order("start_time ASC").
		Find(&items).Error
	return items, err
}

func (r *repository) ListAudit(ctx context.Context, reservationID int64) ([]AuditEntry, error) {
	var entries []AuditEntry
	err := r.db.WithContext(ctx).
		Where("reservation_id = ?", reservationID).
		Order("created_at ASC").
		Find(&entries).Error
	return entries, err
}

func (r *repository) ExpireBatch(ctx context.Context, now time.Time, limit int) ([]Reservation, error) {
	var expired []Reservation

	err := database.WithTx(ctx, r.db, func(tx *gorm.DB) error {
		expired = expired[:0]
		if err := tx.Where("status = ? AND end_time < ?", StatusActive, now).
			Order("end_time ASC").
			Limit(limit).
			Find(&expired).Error; err != nil {
			return err
		}
		if len(expired) == 0 {
			return nil
		}

		ids := make([]int64, len(expired))
		touched := map[int64]bool{}
		for i := range expired {
			ids[i] = expired[i].ID
			touched[expired[i].ResourceID] = true
		}

		if err := tx.Model(&Reservation{}).Where("id IN ?", ids).
			Update("status", StatusExpired).Error; err != nil {
			return err
		}
		for i := range expired {
			expired[i].Status = StatusExpired
			detail := "expired at " + now.UTC().Format(time.RFC3339)
			if err := appendAudit(tx, expired[i].ID, "expired", detail, 0); err != nil {
				return err
			}
		}

		for resourceID := range touched {
			if err := recomputeResourceStatus(tx, resourceID, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return expired, nil
}

func (r *repository) ReminderCandidates(ctx context.Context, now time.Time, defaultHours, limit int) ([]ReminderCandidate, error) {
	type row struct {
		Reservation
		ResourceName string `gorm:"column:resource_name"`
	}

	var rows []row
	err := r.db.WithContext(ctx).
		Table("reservations").
		Select("reservations.*, resources.name AS resource_name").
		Joins("JOIN users ON users.id = reservations.user_id").
		Joins("JOIN resources ON resources.id = reservations.resource_id").
		Where("reservations.status = ? AND reservations.reminder_sent = ?", StatusActive, false).
		Where("reservations.start_time > ?", now).
		Where("reservations.start_time <= ? + (COALESCE(NULLIF(users.reminder_hours, 0), ?) * interval '1 hour')",
			now, defaultHours).
		Order("reservations.start_time ASC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]ReminderCandidate, len(rows))
	for i, rr := range rows {
		out[i] = ReminderCandidate{Reservation: rr.Reservation, ResourceName: rr.ResourceName}
	}
	return out, nil
}

func (r *repository) MarkReminderSent(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Model(&Reservation{}).
		Where("id = ?", id).
		Update("reminder_sent", true).Error
}

// lockResource acquires the row lock that serializes all booking mutations
// for one resource.
func lockResource(tx *gorm.DB, resourceID int64) (*resources.Resource, error) {
	var resource resources.Resource
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", resourceID).
		First(&resource).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.Newf(apperrors.KindNotFound, "resource %d not found", resourceID)
		}
		return nil, err
	}
	return &resource, nil
}

// findOverlapping returns active reservations intersecting [start, end).
// Half-open intervals: existing.end > start AND existing.start < end.
func findOverlapping(tx *gorm.DB, resourceID int64, start, end time.Time, excludeID int64) ([]Reservation, error) {
	var overlaps []Reservation
	q := tx.Where("resource_id = ? AND status = ? AND end_time > ? AND start_time < ?",
		resourceID, StatusActive, start, end)
	if excludeID > 0 {
		q = q.Where("id <> ?", excludeID)
	}
	err := q.Order("start_time ASC").Find(&overlaps).Error
	return overlaps, err
}

func conflictError(resourceID int64, overlaps []Reservation) *apperrors.ConflictError {
	windows := make([]apperrors.TimeWindow, len(overlaps))
	for i, o := range overlaps {
		windows[i] = apperrors.TimeWindow{Start: o.StartTime, End: o.EndTime}
	}
	return &apperrors.ConflictError{ResourceID: resourceID, Windows: windows}
}

func appendAudit(tx *gorm.DB, reservationID int64, action, detail string, actorID int64) error {
	return tx.Create(&AuditEntry{
		ReservationID: reservationID,
		Action:        action,
		Detail:        detail,
		ActorID:       actorID,
	}).Error
}

// recomputeResourceStatus re-derives the resource status inside the booking
// transaction, while the row lock is still held.
func recomputeResourceStatus(tx *gorm.DB, resourceID int64, now time.Time) error {
	var resource resources.Resource
	if err := tx.Where("id = ?", resourceID).First(&resource).Error; err != nil {
		return err
	}

	var activeNow int64
	if err := tx.Model(&Reservation{}).
		Where("resource_id = ? AND status = ? AND start_time <= ? AND end_time > ?",
			resourceID, StatusActive, now, now).
		Count(&activeNow).Error; err != nil {
		return err
	}

	var hours []resources.BusinessHours
	if err := tx.Where("resource_id = ?", resourceID).Find(&hours).Error; err != nil {
		return err
	}
	var blackouts []resources.BlackoutDate
	if err := tx.Where("resource_id = ?", resourceID).Find(&blackouts).Error; err != nil {
		return err
	}

	computed := resources.ComputeStatus(resources.StatusInput{
		UnavailableSince: resource.UnavailableSince,
		AutoResetHours:   resource.AutoResetHours,
		HasActiveNow:     activeNow > 0,
		ScheduleClosed:   resources.ScheduleClosed(hours, blackouts, now),
	}, now)

	if computed == resource.Status {
		return nil
	}
	since := resource.UnavailableSince
	if computed != resources.StatusUnavailable {
		since = nil
	}
	return tx.Model(&resources.Resource{}).Where("id = ?", resourceID).
		Updates(map[string]interface{}{
			"status":            computed,
			"unavailable_since": since,
		}).Error
}

func notFoundOr(err error, id int64) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperrors.Newf(apperrors.KindNotFound, "reservation %d not found", id)
	}
	return err
}
