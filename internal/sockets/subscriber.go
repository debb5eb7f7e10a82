package sockets

import (
	"reserver/internal/bus"
)

// Subscriber maps bus events onto realtime socket pushes.
type Subscriber struct {
	hub *Hub
}

func NewSubscriber(hub *Hub) *Subscriber {
	return &Subscriber{hub: hub}
}

func (s *Subscriber) HandleEvent(ev bus.Event) {
	switch data := ev.Data.(type) {
	case bus.ReservationData:
		s.hub.SendToUser(data.UserID, Message{
			Type:      reservationMessageType(ev.Type, data.Status),
			Timestamp: ev.Timestamp,
			Data:      data,
		})
	case bus.WaitlistData:
		if ev.Type != bus.EventWaitlistOffer {
			return
		}
		s.hub.SendToUser(data.UserID, Message{
			Type:      MessageWaitlistOffer,
			Timestamp: ev.Timestamp,
			Data:      data,
		})
	case bus.ResourceData:
		msgType := MessageResourceUpdated
		if ev.Type == bus.EventResourceUnavailable || ev.Type == bus.EventResourceAvailable {
			msgType = MessageResourceStatusChanged
		}
		s.hub.Broadcast(Message{
			Type:      msgType,
			Timestamp: ev.Timestamp,
			Data:      data,
		})
	}
}

func reservationMessageType(eventType, status string) string {
	switch eventType {
	case bus.EventReservationCreated:
		return MessageReservationCreated
	case bus.EventReservationCancelled:
		if status == "rejected" {
			return MessageReservationRejected
		}
		return MessageReservationCancelled
	case bus.EventReservationUpdated:
		if status == "rejected" {
			return MessageReservationRejected
		}
		return MessageReservationApproved
	case bus.EventReservationExpired:
		return MessageReservationExpired
	default:
		return eventType
	}
}
