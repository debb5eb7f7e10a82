package resources

import (
	"time"
)

type ResourceStatus string

const (
	StatusAvailable   ResourceStatus = "available"
	StatusInUse       ResourceStatus = "in_use"
	StatusUnavailable ResourceStatus = "unavailable"
)

// Resource is a bookable entity. Status is recomputed on read; Available is
// the admin-controlled hard kill switch and is independent of Status.
type Resource struct {
	ID                int64          `json:"id" gorm:"primaryKey;autoIncrement"`
	Name              string         `json:"name" gorm:"not null;uniqueIndex;size:200"`
	Description       string         `json:"description" gorm:"type:text"`
	Available         bool           `json:"available" gorm:"not null;default:true"`
	Status            ResourceStatus `json:"status" gorm:"type:varchar(20);not null;default:'available'"`
	UnavailableSince  *time.Time     `json:"unavailable_since"`
	AutoResetHours    int            `json:"auto_reset_hours" gorm:"not null;default:24;check:auto_reset_hours > 0"`
	RequiresApproval  bool           `json:"requires_approval" gorm:"not null;default:false"`
	DefaultApproverID *int64         `json:"default_approver_id"`
	Tags              []string       `json:"tags" gorm:"serializer:json"`

	CreatedBy int64     `json:"created_by" gorm:"not null"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (Resource) TableName() string {
	return "resources"
}

// CanAcceptBookings reports whether the resource may take new reservations.
func (r *Resource) CanAcceptBookings() bool {
	return r.Available && r.Status != StatusUnavailable
}

// BusinessHours describes the weekly open window for one weekday (0=Sunday).
// Times are "HH:MM" in UTC. A day with IsClosed=true takes no bookings.
type BusinessHours struct {
	ID         int64  `json:"id" gorm:"primaryKey;autoIncrement"`
	ResourceID int64  `json:"resource_id" gorm:"not null;index:idx_business_hours_resource"`
	DayOfWeek  int    `json:"day_of_week" gorm:"not null;check:day_of_week >= 0 AND day_of_week <= 6"`
	OpenTime   string `json:"open_time" gorm:"size:5;default:'09:00'"`
	CloseTime  string `json:"close_time" gorm:"size:5;default:'17:00'"`
	IsClosed   bool   `json:"is_closed" gorm:"not null;default:false"`
}

func (BusinessHours) TableName() string {
	return "business_hours"
}

// BlackoutDate blocks a resource over [StartDate, EndDate) for maintenance
// or similar. Consulted by status computation and booking validation.
type BlackoutDate struct {
	ID         int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	ResourceID int64     `json:"resource_id" gorm:"not null;index:idx_blackout_dates_resource"`
	StartDate  time.Time `json:"start_date" gorm:"not null"`
	EndDate    time.Time `json:"end_date" gorm:"not null"`
	Reason     string    `json:"reason" gorm:"size:500"`
	CreatedBy  int64     `json:"created_by" gorm:"not null"`
	CreatedAt  time.Time `json:"created_at" gorm:"autoCreateTime"`
}

func (BlackoutDate) TableName() string {
	return "blackout_dates"
}

type CreateResourceRequest struct {
	Name              string   `json:"name" binding:"required,min=1,max=200"`
	Description       string   `json:"description" binding:"max=2000"`
	AutoResetHours    int      `json:"auto_reset_hours" binding:"omitempty,min=1"`
	RequiresApproval  bool     `json:"requires_approval"`
	DefaultApproverID *int64   `json:"default_approver_id"`
	Tags              []string `json:"tags"`
}

type UpdateResourceRequest struct {
	Name              *string  `json:"name" binding:"omitempty,min=1,max=200"`
	Description       *string  `json:"description" binding:"omitempty,max=2000"`
	Available         *bool    `json:"available"`
	AutoResetHours    *int     `json:"auto_reset_hours" binding:"omitempty,min=1"`
	RequiresApproval  *bool    `json:"requires_approval"`
	DefaultApproverID *int64   `json:"default_approver_id"`
	Tags              []string `json:"tags"`
}

type ResourceListQuery struct {
	Page   int    `form:"page" binding:"omitempty,min=1"`
	Limit  int    `form:"limit" binding:"omitempty,min=1,max=100"`
	Search string `form:"search"`
	Status string `form:"status" binding:"omitempty,oneof=available in_use unavailable"`
	Tag    string `form:"tag"`
}

type BusinessHoursRequest struct {
	Hours []BusinessHoursDay `json:"hours" binding:"required,min=1,max=7,dive"`
}

type BusinessHoursDay struct {
	DayOfWeek int    `json:"day_of_week" binding:"min=0,max=6"`
	OpenTime  string `json:"open_time" binding:"omitempty,len=5"`
	CloseTime string `json:"close_time" binding:"omitempty,len=5"`
	IsClosed  bool   `json:"is_closed"`
}

type BlackoutDateRequest struct {
	StartDate time.Time `json:"start_date" binding:"required"`
	EndDate   time.Time `json:"end_date" binding:"required"`
	Reason    string    `json:"reason" binding:"max=500"`
}

type ResourceResponse struct {
	ID                int64          `json:"id"`
	Name              string         `json:"name"`
	Description       string         `json:"description"`
	Available         bool           `json:"available"`
	Status            ResourceStatus `json:"status"`
	UnavailableSince  *time.Time     `json:"unavailable_since,omitempty"`
	AutoResetHours    int            `json:"auto_reset_hours"`
	RequiresApproval  bool           `json:"requires_approval"`
	DefaultApproverID *int64         `json:"default_approver_id,omitempty"`
	Tags              []string       `json:"tags"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

type PaginatedResources struct {
	Resources  []ResourceResponse `json:"resources"`
	TotalCount int64              `json:"total_count"`
	Page       int                `json:"page"`
	Limit      int                `json:"limit"`
	TotalPages int                `json:"total_pages"`
}

func (r *Resource) ToResponse() ResourceResponse {
	tags := r.Tags
	if tags == nil {
		tags = []string{}
	}
	return ResourceResponse{
		ID:                r.ID,
		Name:              r.Name,
		Description:       r.Description,
		Available:         r.Available,
		Status:            r.Status,
		UnavailableSince:  r.UnavailableSince,
		AutoResetHours:    r.AutoResetHours,
		RequiresApproval:  r.RequiresApproval,
		DefaultApproverID: r.DefaultApproverID,
		Tags:              tags,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
}
