package clock

import (
	"sync"
	"time"
)

// Clock is the single source of "now" for the application. Components never
// read the wall clock directly so tests can substitute a controllable clock.
type Clock interface {
	Now() time.Time
}

// Real returns UTC wall-clock time.
type Real struct{}

func (Real) Now() time.Time {
	return time.Now().UTC()
}

// New returns the production clock.
func New() Clock {
	return Real{}
}

// Fake is a manually advanced clock for tests.
type Fake struct {
	mu  sync.Mutex
	now time.Time
}

// NewFake creates a fake clock frozen at t (normalized to UTC).
func NewFake(t time.Time) *Fake {
	return &Fake{now: t.UTC()}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Advance moves the fake clock forward by d.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

// Set pins the fake clock to t.
func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = t.UTC()
}
