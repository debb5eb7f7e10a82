package notifications

import (
	"context"
	"fmt"

	"reserver/internal/bus"
	"reserver/pkg/logger"
)

// Subscriber turns reservation lifecycle events into stored notifications.
// Waitlist offers are not handled here; the waitlist engine writes those
// itself because the notification carries the offer deadline.
type Subscriber struct {
	service Service
	log     *logger.Logger
}

func NewSubscriber(service Service, log *logger.Logger) *Subscriber {
	return &Subscriber{service: service, log: log}
}

func (s *Subscriber) HandleEvent(ev bus.Event) {
	data, ok := ev.Data.(bus.ReservationData)
	if !ok {
		return
	}
	ctx := context.Background()

	var (
		notificationType string
		title            string
		message          string
	)
	switch ev.Type {
	case bus.EventReservationCreated:
		notificationType = TypeReservationConfirmed
		title = "Reservation confirmed"
		message = fmt.Sprintf("Your reservation for %s from %s to %s is confirmed",
			s.resourceLabel(data),
			data.Start.UTC().Format("15:04 on Jan 2"),
			data.End.UTC().Format("15:04"))
	case bus.EventReservationCancelled:
		notificationType = TypeReservationCancelled
		title = "Reservation cancelled"
		message = fmt.Sprintf("Your reservation for %s on %s was cancelled",
			s.resourceLabel(data), data.Start.UTC().Format("Jan 2"))
		if data.Reason != "" {
			message += ": " + data.Reason
		}
	case bus.EventReservationExpired:
		notificationType = TypeSystemAnnouncement
		title = "Reservation completed"
		message = fmt.Sprintf("Your reservation for %s has ended", s.resourceLabel(data))
	default:
		return
	}

	link := fmt.Sprintf("/reservations/%d", data.ReservationID)
	if err := s.service.Notify(ctx, data.UserID, notificationType, title, message, link); err != nil {
		s.log.Error("event notification failed",
			"event", ev.Type, "reservation_id", data.ReservationID, "error", err)
	}
}

func (s *Subscriber) resourceLabel(data bus.ReservationData) string {
	if data.ResourceName != "" {
		return data.ResourceName
	}
	return fmt.Sprintf("resource %d", data.ResourceID)
}
