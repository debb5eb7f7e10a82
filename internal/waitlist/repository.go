package waitlist

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"reserver/internal/shared/apperrors"
	"reserver/internal/shared/database"
)

type Repository interface {
	// Join appends the entry to the resource queue, assigning the next
	// dense position among waiting entries. A user already waiting or
	// holding an offer for the same resource and desired window cannot
	// join again; different windows on the same resource are fine.
	Join(ctx context.Context, entry *WaitlistEntry) error

	GetByID(ctx context.Context, id int64) (*WaitlistEntry, error)
	ListForUser(ctx context.Context, userID int64) ([]WaitlistEntry, error)
	QueueSize(ctx context.Context, resourceID int64) (int64, error)

	// CandidatesForWindow returns queued entries matching a freed window in
	// position order. Exact entries must match the window precisely;
	// flexible entries match on any overlap.
	CandidatesForWindow(ctx context.Context, resourceID int64, start, end time.Time) ([]WaitlistEntry, error)

	// MarkOffered flips a waiting entry to offered. The entry leaves the
	// waiting line: its position is cleared and the waiting entries behind
	// it move up so positions stay dense over waiting alone.
	MarkOffered(ctx context.Context, id int64, offerStart, offerEnd, offeredAt, expiresAt time.Time) (*WaitlistEntry, error)

	// Settle moves the entry to a terminal status. An entry settled while
	// still waiting closes the gap it leaves in the line; offered entries
	// already vacated it.
	Settle(ctx context.Context, id int64, status EntryStatus) (*WaitlistEntry, error)

	ExpiredOffers(ctx context.Context, now time.Time, limit int) ([]WaitlistEntry, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Join(ctx context.Context, entry *WaitlistEntry) error {
	return database.WithTx(ctx, r.db, func(tx *gorm.DB) error {
		var existing int64
		err := tx.Model(&WaitlistEntry{}).
			Where("user_id = ? AND resource_id = ? AND desired_start = ? AND desired_end = ? AND status IN ?",
				entry.UserID, entry.ResourceID, entry.DesiredStart, entry.DesiredEnd,
				[]EntryStatus{StatusWaiting, StatusOffered}).
			Count(&existing).Error
		if err != nil {
			return apperrors.Wrap(apperrors.KindStore, "failed to check waitlist membership", err)
		}
		if existing > 0 {
			return apperrors.Newf(apperrors.KindConflict,
				"user %d is already on the waitlist for resource %d over that window", entry.UserID, entry.ResourceID)
		}

		var waiting int64
		err = tx.Model(&WaitlistEntry{}).
			Where("resource_id = ? AND status = ?", entry.ResourceID, StatusWaiting).
			Count(&waiting).Error
		if err != nil {
			return apperrors.Wrap(apperrors.KindStore, "failed to size waitlist queue", err)
		}

		entry.Status = StatusWaiting
		entry.Position = int(waiting) + 1
		if err := tx.Create(entry).Error; err != nil {
			return apperrors.Wrap(apperrors.KindStore, "failed to create waitlist entry", err)
		}
		return nil
	})
}

func (r *repository) GetByID(ctx context.Context, id int64) (*WaitlistEntry, error) {
	var entry WaitlistEntry
	err := r.db.WithContext(ctx).First(&entry, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.Newf(apperrors.KindNotFound, "waitlist entry %d not found", id)
		}
		return nil, apperrors.Wrap(apperrors.KindStore, "failed to load waitlist entry", err)
	}
	return &entry, nil
}

func (r *repository) ListForUser(ctx context.Context, userID int64) ([]WaitlistEntry, error) {
	var entries []WaitlistEntry
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND status IN ?", userID, []EntryStatus{StatusWaiting, StatusOffered}).
		Order("created_at ASC").
		Find(&entries).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindStore, "failed to list waitlist entries", err)
	}
	return entries, nil
}

func (r *repository) QueueSize(ctx context.Context, resourceID int64) (int64, error) {
	var waiting int64
	err := r.db.WithContext(ctx).Model(&WaitlistEntry{}).
		Where("resource_id = ? AND status = ?", resourceID, StatusWaiting).
		Count(&waiting).Error
	if err != nil {
		return 0, apperrors.Wrap(apperrors.KindStore, "failed to size waitlist queue", err)
	}
	return waiting, nil
}

func (r *repository) CandidatesForWindow(ctx context.Context, resourceID int64, start, end time.Time) ([]WaitlistEntry, error) {
	var entries []WaitlistEntry
	err := r.db.WithContext(ctx).
		Where("resource_id = ? AND status = ?", resourceID, StatusWaiting).
		Where("(desired_start = ? AND desired_end = ?) OR (flexible_time = ? AND desired_start <= ? AND desired_end >= ?)",
			start, end, true, end, start).
		Order("position ASC").
		Find(&entries).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindStore, "failed to find waitlist candidates", err)
	}
	return entries, nil
}

func (r *repository) MarkOffered(ctx context.Context, id int64, offerStart, offerEnd, offeredAt, expiresAt time.Time) (*WaitlistEntry, error) {
	var offered *WaitlistEntry
	err := database.WithTx(ctx, r.db, func(tx *gorm.DB) error {
		offered = nil

		var entry WaitlistEntry
		if err := tx.First(&entry, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.Newf(apperrors.KindNotFound, "waitlist entry %d not found", id)
			}
			return apperrors.Wrap(apperrors.KindStore, "failed to load waitlist entry", err)
		}

		result := tx.Model(&WaitlistEntry{}).
			Where("id = ? AND status = ?", id, StatusWaiting).
			Updates(map[string]interface{}{
				"status":           StatusOffered,
				"position":         0,
				"offer_start":      offerStart,
				"offer_end":        offerEnd,
				"offered_at":       offeredAt,
				"offer_expires_at": expiresAt,
			})
		if result.Error != nil {
			return apperrors.Wrap(apperrors.KindStore, "failed to mark waitlist offer", result.Error)
		}
		if result.RowsAffected == 0 {
			return apperrors.Newf(apperrors.KindAlreadyResolved, "waitlist entry %d is no longer waiting", id)
		}

		// The entry left the waiting line; everyone behind it moves up.
		err := tx.Model(&WaitlistEntry{}).
			Where("resource_id = ? AND status = ? AND position > ?",
				entry.ResourceID, StatusWaiting, entry.Position).
			UpdateColumn("position", gorm.Expr("position - 1")).Error
		if err != nil {
			return apperrors.Wrap(apperrors.KindStore, "failed to compact waitlist positions", err)
		}

		entry.Status = StatusOffered
		entry.Position = 0
		entry.OfferStart = &offerStart
		entry.OfferEnd = &offerEnd
		entry.OfferedAt = &offeredAt
		entry.OfferExpiresAt = &expiresAt
		offered = &entry
		return nil
	})
	if err != nil {
		return nil, err
	}
	return offered, nil
}

func (r *repository) Settle(ctx context.Context, id int64, status EntryStatus) (*WaitlistEntry, error) {
	var settled *WaitlistEntry
	err := database.WithTx(ctx, r.db, func(tx *gorm.DB) error {
		settled = nil

		var entry WaitlistEntry
		if err := tx.First(&entry, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.Newf(apperrors.KindNotFound, "waitlist entry %d not found", id)
			}
			return apperrors.Wrap(apperrors.KindStore, "failed to load waitlist entry", err)
		}
		if !entry.Status.InQueue() {
			return apperrors.Newf(apperrors.KindAlreadyResolved,
				"waitlist entry %d is already %s", id, entry.Status)
		}

		wasWaiting := entry.Status == StatusWaiting
		vacated := entry.Position

		updates := map[string]interface{}{"status": status}
		if wasWaiting {
			updates["position"] = 0
		}
		if err := tx.Model(&entry).Updates(updates).Error; err != nil {
			return apperrors.Wrap(apperrors.KindStore, "failed to settle waitlist entry", err)
		}

		// An entry settled straight out of the waiting line leaves a gap;
		// offered entries vacated the line when the offer was made.
		if wasWaiting {
			err := tx.Model(&WaitlistEntry{}).
				Where("resource_id = ? AND status = ? AND position > ?",
					entry.ResourceID, StatusWaiting, vacated).
				UpdateColumn("position", gorm.Expr("position - 1")).Error
			if err != nil {
				return apperrors.Wrap(apperrors.KindStore, "failed to compact waitlist positions", err)
			}
			entry.Position = 0
		}

		entry.Status = status
		settled = &entry
		return nil
	})
	if err != nil {
		return nil, err
	}
	return settled, nil
}

func (r *repository) ExpiredOffers(ctx context.Context, now time.Time, limit int) ([]WaitlistEntry, error) {
	var entries []WaitlistEntry
	err := r.db.WithContext(ctx).
		Where("status = ? AND offer_expires_at <= ?", StatusOffered, now).
		Order("offer_expires_at ASC").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindStore, "failed to list expired offers", err)
	}
	return entries, nil
}
