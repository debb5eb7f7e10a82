package bus

import (
	"encoding/json"
	"time"
)

// Event types emitted by the core. These strings are the wire `event` field
// for webhook payloads and the Kafka mirror.
const (
	EventReservationCreated   = "reservation.created"
	EventReservationCancelled = "reservation.cancelled"
	EventReservationUpdated   = "reservation.updated"
	EventReservationExpired   = "reservation.expired"

	EventResourceCreated     = "resource.created"
	EventResourceUpdated     = "resource.updated"
	EventResourceUnavailable = "resource.unavailable"
	EventResourceAvailable   = "resource.available"

	EventWaitlistOffer    = "waitlist.offer"
	EventWaitlistAccepted = "waitlist.accepted"
	EventWaitlistExpired  = "waitlist.expired"
)

// Event is a domain event carried on the in-process bus. The Store is the
// source of truth; events are notifications and may be dropped under
// backpressure.
type Event struct {
	Type      string
	Seq       uint64
	Timestamp time.Time
	Data      interface{}
}

// Envelope is the canonical wire schema for webhook payloads and the Kafka
// mirror.
type Envelope struct {
	Event     string      `json:"event"`
	Timestamp string      `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// MarshalEnvelope serializes an event into its canonical JSON wire form.
func MarshalEnvelope(ev Event) ([]byte, error) {
	return json.Marshal(Envelope{
		Event:     ev.Type,
		Timestamp: ev.Timestamp.UTC().Format(time.RFC3339),
		Data:      ev.Data,
	})
}

// ReservationData is the payload for reservation.* events.
type ReservationData struct {
	ReservationID int64     `json:"reservation_id"`
	ResourceID    int64     `json:"resource_id"`
	ResourceName  string    `json:"resource_name,omitempty"`
	UserID        int64     `json:"user_id"`
	ApproverID    int64     `json:"approver_id,omitempty"`
	Start         time.Time `json:"start"`
	End           time.Time `json:"end"`
	Status        string    `json:"status"`
	Reason        string    `json:"reason,omitempty"`
}

// ResourceData is the payload for resource.* events.
type ResourceData struct {
	ResourceID int64  `json:"resource_id"`
	Name       string `json:"name"`
	Status     string `json:"status"`
}

// WaitlistData is the payload for waitlist.* events.
type WaitlistData struct {
	EntryID        int64      `json:"entry_id"`
	ResourceID     int64      `json:"resource_id"`
	ResourceName   string     `json:"resource_name,omitempty"`
	UserID         int64      `json:"user_id"`
	DesiredStart   time.Time  `json:"desired_start"`
	DesiredEnd     time.Time  `json:"desired_end"`
	Position       int        `json:"position,omitempty"`
	OfferExpiresAt *time.Time `json:"offer_expires_at,omitempty"`
}
