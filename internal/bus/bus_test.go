package bus

import (
	"sync"
	"testing"
	"time"

	"reserver/pkg/clock"
	"reserver/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBus() (*Bus, *clock.Fake) {
	clk := clock.NewFake(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	return New(clk, logger.GetDefault()), clk
}

func TestPublishDeliversInOrder(t *testing.T) {
	b, _ := newTestBus()

	var mu sync.Mutex
	var received []Event
	b.Subscribe("test", 16, func(ev Event) {
		mu.Lock()
		received = append(received, ev)
		mu.Unlock()
	})

	b.Publish(EventReservationCreated, ReservationData{ReservationID: 1})
	b.Publish(EventReservationCancelled, ReservationData{ReservationID: 1})
	b.Publish(EventWaitlistOffer, WaitlistData{EntryID: 7})

	b.Close()

	require.Len(t, received, 3)
	assert.Equal(t, EventReservationCreated, received[0].Type)
	assert.Equal(t, EventReservationCancelled, received[1].Type)
	assert.Equal(t, EventWaitlistOffer, received[2].Type)

	// Sequence numbers are monotonic across the publish stream.
	assert.Less(t, received[0].Seq, received[1].Seq)
	assert.Less(t, received[1].Seq, received[2].Seq)
}

func TestPublishFansOutToAllSubscribers(t *testing.T) {
	b, _ := newTestBus()

	var mu sync.Mutex
	counts := map[string]int{}
	for _, name := range []string{"notifications", "sockets", "webhooks"} {
		name := name
		b.Subscribe(name, 16, func(ev Event) {
			mu.Lock()
			counts[name]++
			mu.Unlock()
		})
	}

	for i := 0; i < 5; i++ {
		b.Publish(EventResourceUpdated, ResourceData{ResourceID: int64(i)})
	}
	b.Close()

	assert.Equal(t, 5, counts["notifications"])
	assert.Equal(t, 5, counts["sockets"])
	assert.Equal(t, 5, counts["webhooks"])
}

func TestPublishNeverBlocksOnSlowSubscriber(t *testing.T) {
	b, _ := newTestBus()

	gate := make(chan struct{})
	var mu sync.Mutex
	var received []Event
	b.Subscribe("slow", 4, func(ev Event) {
		<-gate
		mu.Lock()
		received = append(received, ev)
		mu.Unlock()
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 50; i++ {
			b.Publish(EventReservationCreated, ReservationData{ReservationID: int64(i)})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}

	close(gate)
	b.Close()

	mu.Lock()
	defer mu.Unlock()

	// Some events were dropped, but delivered events stay in publish order.
	require.NotEmpty(t, received)
	assert.Less(t, len(received), 50)
	for i := 1; i < len(received); i++ {
		assert.Less(t, received[i-1].Seq, received[i].Seq)
	}
	// The newest event survives; drops discard the oldest queued one.
	last := received[len(received)-1].Data.(ReservationData)
	assert.Equal(t, int64(49), last.ReservationID)
}

func TestPublishAfterCloseIsNoOp(t *testing.T) {
	b, _ := newTestBus()

	var mu sync.Mutex
	count := 0
	b.Subscribe("test", 4, func(ev Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	b.Close()
	b.Publish(EventReservationCreated, ReservationData{ReservationID: 1})
	b.Close()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 0, count)
}

func TestMarshalEnvelope(t *testing.T) {
	ev := Event{
		Type:      EventWaitlistOffer,
		Seq:       3,
		Timestamp: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Data: WaitlistData{
			EntryID:      7,
			ResourceID:   2,
			UserID:       11,
			DesiredStart: time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC),
			DesiredEnd:   time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC),
		},
	}

	payload, err := MarshalEnvelope(ev)
	require.NoError(t, err)

	assert.Contains(t, string(payload), `"event":"waitlist.offer"`)
	assert.Contains(t, string(payload), `"timestamp":"2025-06-01T12:00:00Z"`)
	assert.Contains(t, string(payload), `"entry_id":7`)
}
