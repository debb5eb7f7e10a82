package approvals

import "time"

type RequestStatus string

const (
	StatusPending  RequestStatus = "pending"
	StatusApproved RequestStatus = "approved"
	StatusRejected RequestStatus = "rejected"
)

type ApprovalRequest struct {
	ID              int64         `json:"id" gorm:"primaryKey;autoIncrement"`
	ReservationID   int64         `json:"reservation_id" gorm:"not null;index"`
	RequesterID     int64         `json:"requester_id" gorm:"not null;index"`
	ApproverID      int64         `json:"approver_id" gorm:"not null;index"`
	Status          RequestStatus `json:"status" gorm:"type:varchar(20);not null;default:'pending'"`
	RequestMessage  string        `json:"request_message,omitempty" gorm:"size:500"`
	ResponseMessage string        `json:"response_message,omitempty" gorm:"size:500"`
	CreatedAt       time.Time     `json:"created_at"`
	RespondedAt     *time.Time    `json:"responded_at,omitempty"`
}

func (ApprovalRequest) TableName() string {
	return "approval_requests"
}

type DecisionRequest struct {
	Message string `json:"message" binding:"omitempty,max=500"`
}

type ApprovalListQuery struct {
	Page  int `form:"page,default=1" binding:"omitempty,min=1"`
	Limit int `form:"limit,default=10" binding:"omitempty,min=1,max=100"`
}

type ApprovalResponse struct {
	ID              int64         `json:"id"`
	ReservationID   int64         `json:"reservation_id"`
	RequesterID     int64         `json:"requester_id"`
	ApproverID      int64         `json:"approver_id"`
	Status          RequestStatus `json:"status"`
	RequestMessage  string        `json:"request_message,omitempty"`
	ResponseMessage string        `json:"response_message,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	RespondedAt     *time.Time    `json:"responded_at,omitempty"`
}

func (r *ApprovalRequest) ToResponse() ApprovalResponse {
	return ApprovalResponse{
		ID:              r.ID,
		ReservationID:   r.ReservationID,
		RequesterID:     r.RequesterID,
		ApproverID:      r.ApproverID,
		Status:          r.Status,
		RequestMessage:  r.RequestMessage,
		ResponseMessage: r.ResponseMessage,
		CreatedAt:       r.CreatedAt,
		RespondedAt:     r.RespondedAt,
	}
}

type PaginatedApprovals struct {
	Requests   []ApprovalResponse `json:"requests"`
	TotalCount int64              `json:"total_count"`
	Page       int                `json:"page"`
	Limit      int                `json:"limit"`
	TotalPages int                `json:"total_pages"`
}
