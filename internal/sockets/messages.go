package sockets

import "time"

// Message types pushed to connected clients.
const (
	MessageReservationCreated    = "reservation_created"
	MessageReservationCancelled  = "reservation_cancelled"
	MessageReservationApproved   = "reservation_approved"
	MessageReservationRejected   = "reservation_rejected"
	MessageReservationExpired    = "reservation_expired"
	MessageApprovalRequest       = "approval_request"
	MessageWaitlistOffer         = "waitlist_offer"
	MessageResourceStatusChanged = "resource_status_changed"
	MessageResourceUpdated       = "resource_updated"
)

// Message is the envelope every socket push is wrapped in.
type Message struct {
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}
