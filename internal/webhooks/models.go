package webhooks

import "time"

type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "pending"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryFailed    DeliveryStatus = "failed"
)

type Webhook struct {
	ID        int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	UserID    int64     `json:"user_id" gorm:"not null;index"`
	URL       string    `json:"url" gorm:"size:500;not null"`
	Secret    string    `json:"secret" gorm:"size:64;not null"`
	Events    []string  `json:"events" gorm:"serializer:json"`
	IsActive  bool      `json:"is_active" gorm:"default:true"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Webhook) TableName() string {
	return "webhooks"
}

// SubscribesTo reports whether the webhook wants the event type. An empty
// events list subscribes to everything.
func (w *Webhook) SubscribesTo(eventType string) bool {
	if len(w.Events) == 0 {
		return true
	}
	for _, e := range w.Events {
		if e == eventType {
			return true
		}
	}
	return false
}

type WebhookDelivery struct {
	ID           int64          `json:"id" gorm:"primaryKey;autoIncrement"`
	DeliveryID   string         `json:"delivery_id" gorm:"size:36;uniqueIndex;not null"`
	WebhookID    int64          `json:"webhook_id" gorm:"not null;index"`
	EventType    string         `json:"event_type" gorm:"size:50;not null"`
	Payload      string         `json:"payload" gorm:"type:text;not null"`
	Status       DeliveryStatus `json:"status" gorm:"type:varchar(20);not null;default:'pending';index"`
	StatusCode   int            `json:"status_code,omitempty"`
	ResponseBody string         `json:"response_body,omitempty" gorm:"size:1000"`
	ErrorMessage string         `json:"error_message,omitempty" gorm:"size:500"`
	RetryCount   int            `json:"retry_count" gorm:"default:0"`
	NextRetryAt  *time.Time     `json:"next_retry_at,omitempty" gorm:"index"`
	DeliveredAt  *time.Time     `json:"delivered_at,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

func (WebhookDelivery) TableName() string {
	return "webhook_deliveries"
}

type CreateWebhookRequest struct {
	URL    string   `json:"url" binding:"required,url,max=500"`
	Events []string `json:"events"`
}

type UpdateWebhookRequest struct {
	URL      *string   `json:"url,omitempty" binding:"omitempty,url,max=500"`
	Events   *[]string `json:"events,omitempty"`
	IsActive *bool     `json:"is_active,omitempty"`
}

type DeliveryListQuery struct {
	Page  int `form:"page,default=1" binding:"omitempty,min=1"`
	Limit int `form:"limit,default=20" binding:"omitempty,min=1,max=100"`
}

type PaginatedDeliveries struct {
	Deliveries []WebhookDelivery `json:"deliveries"`
	TotalCount int64             `json:"total_count"`
	Page       int               `json:"page"`
	Limit      int               `json:"limit"`
	TotalPages int               `json:"total_pages"`
}
