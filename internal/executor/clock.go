package executor

import (
	"sync"
	"time"
)

// Clock provides time operations that can be replaced in tests.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

// RealClock uses the standard time package.
type RealClock struct{}

func (RealClock) Now() time.Time                         { return time.Now() }
func (RealClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// FakeClock never blocks: After moves the clock forward by d and fires
// immediately, so waits complete instantly while Now reflects the time that
// would have passed.
type FakeClock struct {
	mu      sync.Mutex
	current time.Time
	slept   []time.Duration
	// OnAfter, when set, runs after every advance (with the new time).
	OnAfter func(now time.Time)
}

func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{current: start}
}

func (f *FakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

func (f *FakeClock) After(d time.Duration) <-chan time.Time {
	f.mu.Lock()
	if d > 0 {
		f.current = f.current.Add(d)
	}
	f.slept = append(f.slept, d)
	now := f.current
	hook := f.OnAfter
	f.mu.Unlock()

	if hook != nil {
		hook(now)
	}
	ch := make(chan time.Time, 1)
	ch <- now
	return ch
}

// Advance moves the clock without recording a sleep.
func (f *FakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = f.current.Add(d)
}

// Sleeps returns every duration passed to After, in order.
func (f *FakeClock) Sleeps() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Duration(nil), f.slept...)
}
