package scheduler

import (
	"context"
	"sync"
	"time"

	"reserver/internal/shared/config"
	"reserver/pkg/clock"
	"reserver/pkg/logger"
	"reserver/pkg/metrics"
)

// ReservationLifecycle covers the reservation steps the scheduler drives.
type ReservationLifecycle interface {
	ExpireFinished(ctx context.Context) (int, error)
	FireReminders(ctx context.Context) (int, error)
}

// OfferLifecycle lapses overdue waitlist offers.
type OfferLifecycle interface {
	ExpireStaleOffers(ctx context.Context) (int, error)
}

// ResourceLifecycle resets explicit unavailability that has run its course.
type ResourceLifecycle interface {
	AutoResetUnavailable(ctx context.Context) (int, error)
}

// Scheduler drives the time-based lifecycle work on a fixed tick. Step
// order matters: reservations expire first so freed windows exist before
// offers are re-evaluated, and reminders run last against settled state.
type Scheduler struct {
	reservations ReservationLifecycle
	offers       OfferLifecycle
	resources    ResourceLifecycle
	clock        clock.Clock
	log          *logger.Logger
	interval     time.Duration

	done chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

func New(
	reservations ReservationLifecycle,
	offers OfferLifecycle,
	resources ResourceLifecycle,
	clk clock.Clock,
	log *logger.Logger,
	cfg *config.Config,
) *Scheduler {
	return &Scheduler{
		reservations: reservations,
		offers:       offers,
		resources:    resources,
		clock:        clk,
		log:          log,
		interval:     cfg.Scheduler.TickInterval,
		done:         make(chan struct{}),
	}
}

func (s *Scheduler) Start() {
	s.wg.Add(1)
	go s.run()
}

// Stop halts the tick loop. A tick already in progress finishes first.
func (s *Scheduler) Stop() {
	s.once.Do(func() { close(s.done) })
	s.wg.Wait()
}

func (s *Scheduler) run() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Tick(context.Background())
		case <-s.done:
			return
		}
	}
}

// Tick runs one full lifecycle pass. A failing step is logged and the rest
// of the pass continues; the next tick retries naturally.
func (s *Scheduler) Tick(ctx context.Context) {
	started := s.clock.Now()

	expired, err := s.reservations.ExpireFinished(ctx)
	if err != nil {
		s.log.Error("reservation expiry step failed", "error", err)
	}

	offers, err := s.offers.ExpireStaleOffers(ctx)
	if err != nil {
		s.log.Error("offer expiry step failed", "error", err)
	}

	resets, err := s.resources.AutoResetUnavailable(ctx)
	if err != nil {
		s.log.Error("auto-reset step failed", "error", err)
	}

	reminders, err := s.reservations.FireReminders(ctx)
	if err != nil {
		s.log.Error("reminder step failed", "error", err)
	}

	duration := s.clock.Now().Sub(started)
	metrics.SchedulerTickDuration.Observe(duration.Seconds())
	s.log.LogSchedulerTick(ctx, expired, offers, resets, reminders, duration)
}
