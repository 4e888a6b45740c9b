// Package clock abstracts the time source used by the speed test sequencer so
// that elapsed-time arithmetic, sampling ticks and delayed signals can be
// driven manually in tests.
package clock

import "time"

// Clock provides the current time and timer primitives.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) Ticker
	AfterFunc(d time.Duration, f func()) Timer
}

// Ticker delivers ticks on C at a fixed interval until stopped.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// Timer is a pending call scheduled with AfterFunc.
type Timer interface {
	// Stop prevents the call from running. It reports whether the call was
	// stopped before it ran.
	Stop() bool
}

// Real is the wall clock.
type Real struct{}

// New returns the wall clock.
func New() Clock {
	return Real{}
}

// Now returns time.Now().
func (Real) Now() time.Time {
	return time.Now()
}

// NewTicker wraps time.NewTicker.
func (Real) NewTicker(d time.Duration) Ticker {
	return realTicker{t: time.NewTicker(d)}
}

// AfterFunc wraps time.AfterFunc.
func (Real) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

type realTicker struct {
	t *time.Ticker
}

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }
