package notifications

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"reserver/internal/bus"
	"reserver/pkg/logger"
)

type recordingService struct {
	Service
	types    []string
	messages []string
	users    []int64
}

func (r *recordingService) Notify(ctx context.Context, userID int64, notificationType, title, message, link string) error {
	r.types = append(r.types, notificationType)
	r.messages = append(r.messages, message)
	r.users = append(r.users, userID)
	return nil
}

func TestSubscriberTranslatesReservationEvents(t *testing.T) {
	svc := &recordingService{}
	sub := NewSubscriber(svc, logger.GetDefault())

	data := bus.ReservationData{
		ReservationID: 7,
		ResourceID:    1,
		ResourceName:  "Room A",
		UserID:        10,
		Start:         time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC),
		End:           time.Date(2025, 6, 2, 11, 0, 0, 0, time.UTC),
	}

	sub.HandleEvent(bus.Event{Type: bus.EventReservationCreated, Data: data})
	sub.HandleEvent(bus.Event{Type: bus.EventReservationCancelled, Data: data})
	sub.HandleEvent(bus.Event{Type: bus.EventReservationExpired, Data: data})

	assert.Equal(t, []string{
		TypeReservationConfirmed,
		TypeReservationCancelled,
		TypeSystemAnnouncement,
	}, svc.types)
	assert.Equal(t, []int64{10, 10, 10}, svc.users)
	assert.Contains(t, svc.messages[0], "Room A")
}

func TestSubscriberIgnoresOtherEvents(t *testing.T) {
	svc := &recordingService{}
	sub := NewSubscriber(svc, logger.GetDefault())

	sub.HandleEvent(bus.Event{Type: bus.EventResourceUpdated, Data: bus.ResourceData{ResourceID: 1}})
	sub.HandleEvent(bus.Event{Type: bus.EventWaitlistOffer, Data: bus.WaitlistData{EntryID: 1}})

	assert.Empty(t, svc.types)
}
