package sockets

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reserver/internal/bus"
	"reserver/pkg/clock"
	"reserver/pkg/logger"
)

// fakeConn records written messages and can be told to fail writes.
type fakeConn struct {
	mu       sync.Mutex
	messages []Message
	failNext bool
	closed   bool
	written  chan struct{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{written: make(chan struct{}, 64)}
}

func (f *fakeConn) WriteJSON(v interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext {
		return assert.AnError
	}
	if msg, ok := v.(Message); ok {
		f.messages = append(f.messages, msg)
	}
	select {
	case f.written <- struct{}{}:
	default:
	}
	return nil
}

func (f *fakeConn) WriteControl(messageType int, data []byte, deadline time.Time) error {
	return nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConn) await(t *testing.T) Message {
	t.Helper()
	select {
	case <-f.written:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for socket write")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.messages[len(f.messages)-1]
}

func newTestHub() *Hub {
	return NewHub(clock.NewFake(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)), logger.GetDefault())
}

func TestSendToUserReachesAllSessions(t *testing.T) {
	hub := newTestHub()
	first, second := newFakeConn(), newFakeConn()

	detachFirst := hub.Attach(10, first)
	defer detachFirst()
	detachSecond := hub.Attach(10, second)
	defer detachSecond()
	assert.Equal(t, 2, hub.SessionCount(10))

	hub.SendToUser(10, Message{Type: MessageReservationCreated, Data: "payload"})

	assert.Equal(t, MessageReservationCreated, first.await(t).Type)
	assert.Equal(t, MessageReservationCreated, second.await(t).Type)
}

func TestSendToUserIgnoresOtherUsers(t *testing.T) {
	hub := newTestHub()
	mine, theirs := newFakeConn(), newFakeConn()

	detachMine := hub.Attach(10, mine)
	defer detachMine()
	detachTheirs := hub.Attach(11, theirs)
	defer detachTheirs()

	hub.SendToUser(10, Message{Type: MessageReservationCreated})
	mine.await(t)

	theirs.mu.Lock()
	defer theirs.mu.Unlock()
	assert.Empty(t, theirs.messages)
}

func TestBroadcastReachesEveryone(t *testing.T) {
	hub := newTestHub()
	first, second := newFakeConn(), newFakeConn()

	detachFirst := hub.Attach(10, first)
	defer detachFirst()
	detachSecond := hub.Attach(11, second)
	defer detachSecond()

	hub.Broadcast(Message{Type: MessageResourceStatusChanged})

	assert.Equal(t, MessageResourceStatusChanged, first.await(t).Type)
	assert.Equal(t, MessageResourceStatusChanged, second.await(t).Type)
}

func TestDetachRemovesSession(t *testing.T) {
	hub := newTestHub()
	c := newFakeConn()

	detach := hub.Attach(10, c)
	require.Equal(t, 1, hub.SessionCount(10))

	detach()
	assert.Equal(t, 0, hub.SessionCount(10))

	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	assert.True(t, closed)

	// Detaching twice is harmless.
	detach()
}

func TestFailingSessionIsDetached(t *testing.T) {
	hub := newTestHub()
	c := newFakeConn()
	c.failNext = true

	detach := hub.Attach(10, c)
	defer detach()

	hub.SendToUser(10, Message{Type: MessageReservationCreated})

	require.Eventually(t, func() bool {
		return hub.SessionCount(10) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWrapStampsTimestamp(t *testing.T) {
	hub := newTestHub()
	c := newFakeConn()

	detach := hub.Attach(10, c)
	defer detach()

	hub.SendToUser(10, map[string]interface{}{"type": "reservation_reminder", "reservation_id": int64(7)})

	msg := c.await(t)
	assert.Equal(t, "reservation_reminder", msg.Type)
	assert.Equal(t, time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC), msg.Timestamp)
}

func TestSubscriberRoutesEvents(t *testing.T) {
	hub := newTestHub()
	sub := NewSubscriber(hub)
	c := newFakeConn()

	detach := hub.Attach(10, c)
	defer detach()

	sub.HandleEvent(bus.Event{
		Type: bus.EventReservationUpdated,
		Data: bus.ReservationData{ReservationID: 7, UserID: 10, Status: "active"},
	})
	assert.Equal(t, MessageReservationApproved, c.await(t).Type)

	sub.HandleEvent(bus.Event{
		Type: bus.EventReservationUpdated,
		Data: bus.ReservationData{ReservationID: 7, UserID: 10, Status: "rejected"},
	})
	assert.Equal(t, MessageReservationRejected, c.await(t).Type)

	sub.HandleEvent(bus.Event{
		Type: bus.EventWaitlistOffer,
		Data: bus.WaitlistData{EntryID: 3, UserID: 10},
	})
	assert.Equal(t, MessageWaitlistOffer, c.await(t).Type)

	sub.HandleEvent(bus.Event{
		Type: bus.EventResourceUnavailable,
		Data: bus.ResourceData{ResourceID: 1, Status: "unavailable"},
	})
	assert.Equal(t, MessageResourceStatusChanged, c.await(t).Type)
}
