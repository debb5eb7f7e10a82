package notifications

import "time"

const (
	TypeReservationConfirmed = "reservation_confirmed"
	TypeReservationCancelled = "reservation_cancelled"
	TypeReservationReminder  = "reservation_reminder"
	TypeResourceAvailable    = "resource_available"
	TypeSystemAnnouncement   = "system_announcement"
)

type Notification struct {
	ID        int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	UserID    int64     `json:"user_id" gorm:"not null;index"`
	Type      string    `json:"type" gorm:"type:varchar(50);not null"`
	Title     string    `json:"title" gorm:"size:200;not null"`
	Message   string    `json:"message" gorm:"size:1000"`
	Link      string    `json:"link,omitempty" gorm:"size:255"`
	Read      bool      `json:"read" gorm:"default:false;index"`
	CreatedAt time.Time `json:"created_at"`
}

func (Notification) TableName() string {
	return "notifications"
}

type NotificationListQuery struct {
	Page       int  `form:"page,default=1" binding:"omitempty,min=1"`
	Limit      int  `form:"limit,default=20" binding:"omitempty,min=1,max=100"`
	UnreadOnly bool `form:"unread_only"`
}

type PaginatedNotifications struct {
	Notifications []Notification `json:"notifications"`
	UnreadCount   int64          `json:"unread_count"`
	TotalCount    int64          `json:"total_count"`
	Page          int            `json:"page"`
	Limit         int            `json:"limit"`
	TotalPages    int            `json:"total_pages"`
}
