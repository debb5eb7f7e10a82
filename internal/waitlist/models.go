package waitlist

import "time"

type EntryStatus string

const (
	StatusWaiting   EntryStatus = "waiting"
	StatusOffered   EntryStatus = "offered"
	StatusFulfilled EntryStatus = "fulfilled"
	StatusExpired   EntryStatus = "expired"
	StatusCancelled EntryStatus = "cancelled"
)

// InQueue reports whether the entry still occupies a queue position.
func (s EntryStatus) InQueue() bool {
	return s == StatusWaiting || s == StatusOffered
}

type WaitlistEntry struct {
	ID           int64       `json:"id" gorm:"primaryKey;autoIncrement"`
	UserID       int64       `json:"user_id" gorm:"not null;index"`
	ResourceID   int64       `json:"resource_id" gorm:"not null;index"`
	DesiredStart time.Time   `json:"desired_start" gorm:"not null"`
	DesiredEnd   time.Time   `json:"desired_end" gorm:"not null"`
	FlexibleTime bool        `json:"flexible_time" gorm:"default:false"`
	Status       EntryStatus `json:"status" gorm:"type:varchar(20);not null;default:'waiting';index"`

	// Position is 1-based and dense across waiting entries of a resource.
	// Offered and settled entries carry 0; they are out of the line.
	Position int `json:"position" gorm:"not null"`

	// The window actually offered; for flexible entries it can differ from
	// the desired window. Needed to re-offer the slot when an offer lapses.
	OfferStart     *time.Time `json:"offer_start,omitempty"`
	OfferEnd       *time.Time `json:"offer_end,omitempty"`
	OfferedAt      *time.Time `json:"offered_at,omitempty"`
	OfferExpiresAt *time.Time `json:"offer_expires_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (WaitlistEntry) TableName() string {
	return "waitlist_entries"
}

type JoinWaitlistRequest struct {
	ResourceID   int64     `json:"resource_id" binding:"required"`
	DesiredStart time.Time `json:"desired_start" binding:"required"`
	DesiredEnd   time.Time `json:"desired_end" binding:"required"`
	FlexibleTime bool      `json:"flexible_time"`
}

type WaitlistEntryResponse struct {
	ID             int64       `json:"id"`
	UserID         int64       `json:"user_id"`
	ResourceID     int64       `json:"resource_id"`
	DesiredStart   time.Time   `json:"desired_start"`
	DesiredEnd     time.Time   `json:"desired_end"`
	FlexibleTime   bool        `json:"flexible_time"`
	Status         EntryStatus `json:"status"`
	Position       int         `json:"position"`
	OfferStart     *time.Time  `json:"offer_start,omitempty"`
	OfferEnd       *time.Time  `json:"offer_end,omitempty"`
	OfferExpiresAt *time.Time  `json:"offer_expires_at,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
}

func (e *WaitlistEntry) ToResponse() WaitlistEntryResponse {
	return WaitlistEntryResponse{
		ID:             e.ID,
		UserID:         e.UserID,
		ResourceID:     e.ResourceID,
		DesiredStart:   e.DesiredStart,
		DesiredEnd:     e.DesiredEnd,
		FlexibleTime:   e.FlexibleTime,
		Status:         e.Status,
		Position:       e.Position,
		OfferStart:     e.OfferStart,
		OfferEnd:       e.OfferEnd,
		OfferExpiresAt: e.OfferExpiresAt,
		CreatedAt:      e.CreatedAt,
	}
}

type PositionResponse struct {
	ResourceID int64 `json:"resource_id"`
	Position   int   `json:"position"`
	QueueSize  int64 `json:"queue_size"`
}
