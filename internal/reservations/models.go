package reservations

import (
	"time"
)

type ReservationStatus string

const (
	StatusActive          ReservationStatus = "active"
	StatusCancelled       ReservationStatus = "cancelled"
	StatusExpired         ReservationStatus = "expired"
	StatusPendingApproval ReservationStatus = "pending_approval"
	StatusRejected        ReservationStatus = "rejected"
)

// IsTerminal reports whether no further transitions are allowed.
func (s ReservationStatus) IsTerminal() bool {
	return s == StatusCancelled || s == StatusExpired || s == StatusRejected
}

// Reservation is a user's claim on a resource for the half-open window
// [StartTime, EndTime). Active reservations on the same resource never
// overlap; the repository enforces this under a row lock.
type Reservation struct {
	ID         int64             `json:"id" gorm:"primaryKey;autoIncrement"`
	UserID     int64             `json:"user_id" gorm:"not null;index:idx_reservations_user"`
	ResourceID int64             `json:"resource_id" gorm:"not null;index:idx_reservations_window"`
	StartTime  time.Time         `json:"start" gorm:"column:start_time;not null;index:idx_reservations_window"`
	EndTime    time.Time         `json:"end" gorm:"column:end_time;not null"`
	Status     ReservationStatus `json:"status" gorm:"type:varchar(20);not null;default:'active';index:idx_reservations_window"`

	CancelledAt        *time.Time `json:"cancelled_at,omitempty"`
	CancellationReason string     `json:"cancellation_reason,omitempty" gorm:"size:500"`

	RecurrenceRuleID    *int64 `json:"recurrence_rule_id,omitempty"`
	ParentReservationID *int64 `json:"parent_reservation_id,omitempty" gorm:"index:idx_reservations_parent"`
	IsRecurringInstance bool   `json:"is_recurring_instance" gorm:"not null;default:false"`

	ReminderSent bool `json:"reminder_sent" gorm:"not null;default:false"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (Reservation) TableName() string {
	return "reservations"
}

// Covers reports whether the reservation's window contains the instant.
func (r *Reservation) Covers(at time.Time) bool {
	return !r.StartTime.After(at) && r.EndTime.After(at)
}

type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
)

type EndType string

const (
	EndNever      EndType = "never"
	EndOnDate     EndType = "on_date"
	EndAfterCount EndType = "after_count"
)

// RecurrenceRule is owned by the first reservation of a series; children
// reference it via recurrence_rule_id. Cancelling a series keeps the rule
// row so the series shape stays auditable.
type RecurrenceRule struct {
	ID              int64      `json:"id" gorm:"primaryKey;autoIncrement"`
	Frequency       Frequency  `json:"frequency" gorm:"type:varchar(10);not null"`
	Interval        int        `json:"interval" gorm:"not null;default:1;check:interval >= 1"`
	DaysOfWeek      []int      `json:"days_of_week,omitempty" gorm:"serializer:json"`
	EndType         EndType    `json:"end_type" gorm:"type:varchar(15);not null;default:'never'"`
	EndDate         *time.Time `json:"end_date,omitempty"`
	OccurrenceCount *int       `json:"occurrence_count,omitempty"`
	CreatedAt       time.Time  `json:"created_at" gorm:"autoCreateTime"`
}

func (RecurrenceRule) TableName() string {
	return "recurrence_rules"
}

// AuditEntry records every reservation state transition. Append-only.
type AuditEntry struct {
	ID            int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	ReservationID int64     `json:"reservation_id" gorm:"not null;index:idx_audit_reservation"`
	Action        string    `json:"action" gorm:"size:100;not null"`
	Detail        string    `json:"detail" gorm:"size:500"`
	ActorID       int64     `json:"actor_id"`
	CreatedAt     time.Time `json:"created_at" gorm:"autoCreateTime"`
}

func (AuditEntry) TableName() string {
	return "reservation_audit"
}

type CreateReservationRequest struct {
	ResourceID int64     `json:"resource_id" binding:"required"`
	Start      time.Time `json:"start" binding:"required"`
	End        time.Time `json:"end" binding:"required"`
}

type RecurrenceRuleRequest struct {
	Frequency       Frequency  `json:"frequency" binding:"required,oneof=daily weekly monthly"`
	Interval        int        `json:"interval" binding:"omitempty,min=1"`
	DaysOfWeek      []int      `json:"days_of_week" binding:"omitempty,max=7,dive,min=0,max=6"`
	EndType         EndType    `json:"end_type" binding:"required,oneof=never on_date after_count"`
	EndDate         *time.Time `json:"end_date"`
	OccurrenceCount *int       `json:"occurrence_count" binding:"omitempty,min=1,max=100"`
}

type CreateRecurringRequest struct {
	ResourceID int64                 `json:"resource_id" binding:"required"`
	Start      time.Time             `json:"start" binding:"required"`
	End        time.Time             `json:"end" binding:"required"`
	Rule       RecurrenceRuleRequest `json:"rule" binding:"required"`
}

type CancelReservationRequest struct {
	Reason string `json:"reason" binding:"max=500"`
}

type ReservationListQuery struct {
	Page   int    `form:"page" binding:"omitempty,min=1"`
	Limit  int    `form:"limit" binding:"omitempty,min=1,max=100"`
	Status string `form:"status" binding:"omitempty,oneof=active cancelled expired pending_approval rejected"`
}

type ReservationResponse struct {
	ID                  int64             `json:"id"`
	UserID              int64             `json:"user_id"`
	ResourceID          int64             `json:"resource_id"`
	ResourceName        string            `json:"resource_name,omitempty"`
	Start               time.Time         `json:"start"`
	End                 time.Time         `json:"end"`
	Status              ReservationStatus `json:"status"`
	CancelledAt         *time.Time        `json:"cancelled_at,omitempty"`
	CancellationReason  string            `json:"cancellation_reason,omitempty"`
	RecurrenceRuleID    *int64            `json:"recurrence_rule_id,omitempty"`
	ParentReservationID *int64            `json:"parent_reservation_id,omitempty"`
	IsRecurringInstance bool              `json:"is_recurring_instance,omitempty"`
	CreatedAt           time.Time         `json:"created_at"`
}

type PaginatedReservations struct {
	Reservations []ReservationResponse `json:"reservations"`
	TotalCount   int64                 `json:"total_count"`
	Page         int                   `json:"page"`
	Limit        int                   `json:"limit"`
	TotalPages   int                   `json:"total_pages"`
}

// ResourceDayResponse is the availability view for one resource and day.
type ResourceDayResponse struct {
	ResourceID int64        `json:"resource_id"`
	Date       string       `json:"date"`
	Windows    []TimeWindow `json:"windows"`
}

type TimeWindow struct {
	Start  time.Time         `json:"start"`
	End    time.Time         `json:"end"`
	Status ReservationStatus `json:"status"`
}

func (r *Reservation) ToResponse() ReservationResponse {
	return ReservationResponse{
		ID:                  r.ID,
		UserID:              r.UserID,
		ResourceID:          r.ResourceID,
		Start:               r.StartTime,
		End:                 r.EndTime,
		Status:              r.Status,
		CancelledAt:         r.CancelledAt,
		CancellationReason:  r.CancellationReason,
		RecurrenceRuleID:    r.RecurrenceRuleID,
		ParentReservationID: r.ParentReservationID,
		IsRecurringInstance: r.IsRecurringInstance,
		CreatedAt:           r.CreatedAt,
	}
}
