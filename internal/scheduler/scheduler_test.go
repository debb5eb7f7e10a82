package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"reserver/internal/shared/config"
	"reserver/pkg/clock"
	"reserver/pkg/logger"
)

type stepRecorder struct {
	mu    sync.Mutex
	calls []string

	expireErr error
}

func (r *stepRecorder) record(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, name)
}

func (r *stepRecorder) ExpireFinished(ctx context.Context) (int, error) {
	r.record("expire")
	if r.expireErr != nil {
		return 0, r.expireErr
	}
	return 2, nil
}

func (r *stepRecorder) FireReminders(ctx context.Context) (int, error) {
	r.record("reminders")
	return 1, nil
}

func (r *stepRecorder) ExpireStaleOffers(ctx context.Context) (int, error) {
	r.record("offers")
	return 1, nil
}

func (r *stepRecorder) AutoResetUnavailable(ctx context.Context) (int, error) {
	r.record("resets")
	return 0, nil
}

func (r *stepRecorder) recorded() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.calls))
	copy(out, r.calls)
	return out
}

func newTestScheduler(rec *stepRecorder) *Scheduler {
	cfg := &config.Config{Scheduler: config.SchedulerConfig{TickInterval: 10 * time.Millisecond, BatchSize: 200}}
	clk := clock.NewFake(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	return New(rec, rec, rec, clk, logger.GetDefault(), cfg)
}

func TestTickRunsStepsInOrder(t *testing.T) {
	rec := &stepRecorder{}
	s := newTestScheduler(rec)

	s.Tick(context.Background())

	assert.Equal(t, []string{"expire", "offers", "resets", "reminders"}, rec.recorded())
}

func TestTickContinuesPastFailingStep(t *testing.T) {
	rec := &stepRecorder{expireErr: assert.AnError}
	s := newTestScheduler(rec)

	s.Tick(context.Background())

	assert.Equal(t, []string{"expire", "offers", "resets", "reminders"}, rec.recorded())
}

func TestStartStopTicksAtInterval(t *testing.T) {
	rec := &stepRecorder{}
	s := newTestScheduler(rec)

	s.Start()
	assert.Eventually(t, func() bool {
		return len(rec.recorded()) >= 4
	}, 2*time.Second, 5*time.Millisecond)
	s.Stop()

	// Stopping twice is harmless.
	s.Stop()

	after := len(rec.recorded())
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, after, len(rec.recorded()))
}
