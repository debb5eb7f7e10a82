package bus

import (
	"sync"
	"sync/atomic"

	"reserver/pkg/clock"
	"reserver/pkg/logger"
	"reserver/pkg/metrics"
)

// DefaultBuffer is the per-subscriber channel capacity.
const DefaultBuffer = 1024

// Bus fans domain events out to in-process subscribers. Publish never
// blocks: each subscriber has a bounded channel, and when it is full the
// oldest queued event is dropped and a counter increments. Delivery order
// per subscriber is publish order.
type Bus struct {
	mu     sync.RWMutex
	subs   []*subscriber
	seq    atomic.Uint64
	closed bool
	wg     sync.WaitGroup

	clock clock.Clock
	log   *logger.Logger
}

type subscriber struct {
	name string
	ch   chan Event
}

// New creates an event bus.
func New(clk clock.Clock, log *logger.Logger) *Bus {
	return &Bus{
		clock: clk,
		log:   log,
	}
}

// Subscribe registers a handler under a name used for drop accounting. The
// handler runs on its own goroutine and receives events in publish order.
// Must be called before Publish traffic starts.
func (b *Bus) Subscribe(name string, buffer int, handler func(Event)) {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}

	sub := &subscriber{
		name: name,
		ch:   make(chan Event, buffer),
	}

	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for ev := range sub.ch {
			handler(ev)
		}
	}()
}

// Publish enqueues an event for every subscriber. It never blocks the
// caller; a full subscriber loses its oldest queued event.
func (b *Bus) Publish(eventType string, data interface{}) {
	ev := Event{
		Type:      eventType,
		Seq:       b.seq.Add(1),
		Timestamp: b.clock.Now(),
		Data:      data,
	}

	metrics.BusEventsPublished.WithLabelValues(eventType).Inc()

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}

	for _, sub := range b.subs {
		select {
		case sub.ch <- ev:
		default:
			// Channel full: drop the oldest event to make room. The store
			// is the source of truth, so a dropped notification is safe.
			select {
			case <-sub.ch:
				metrics.BusEventsDropped.WithLabelValues(sub.name).Inc()
			default:
			}
			select {
			case sub.ch <- ev:
			default:
				metrics.BusEventsDropped.WithLabelValues(sub.name).Inc()
			}
		}
	}
}

// Close stops delivery and waits for subscriber goroutines to drain.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for _, sub := range b.subs {
		close(sub.ch)
	}
	b.mu.Unlock()

	b.wg.Wait()
}
