package clock

import (
	"sort"
	"sync"
	"time"
)

// Fake is a manually advanced Clock. Tickers and after-funcs fire only when
// Advance moves the clock past their deadline.
type Fake struct {
	mu      sync.Mutex
	now     time.Time
	waiters []*fakeWaiter
}

type fakeWaiter struct {
	at      time.Time
	period  time.Duration // zero for one-shot after-funcs
	ch      chan time.Time
	fn      func()
	stopped bool
}

// NewFake returns a Fake clock set to start.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

// Now returns the fake current time.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// NewTicker returns a ticker that fires every d of fake time.
// Like time.Ticker, ticks are dropped when the receiver falls behind.
func (f *Fake) NewTicker(d time.Duration) Ticker {
	if d <= 0 {
		panic("clock: non-positive interval for NewTicker")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	w := &fakeWaiter{at: f.now.Add(d), period: d, ch: make(chan time.Time, 1)}
	f.waiters = append(f.waiters, w)
	return &fakeTicker{clock: f, w: w}
}

// AfterFunc schedules fn to run once d of fake time has passed. fn runs on
// the goroutine calling Advance.
func (f *Fake) AfterFunc(d time.Duration, fn func()) Timer {
	f.mu.Lock()
	defer f.mu.Unlock()
	w := &fakeWaiter{at: f.now.Add(d), fn: fn}
	f.waiters = append(f.waiters, w)
	return &fakeTimer{clock: f, w: w}
}

// Pending returns the number of live tickers and unfired after-funcs.
func (f *Fake) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, w := range f.waiters {
		if !w.stopped {
			n++
		}
	}
	return n
}

// Advance moves the clock forward by d, firing everything that falls due in
// deadline order.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	target := f.now.Add(d)
	f.mu.Unlock()

	for {
		f.mu.Lock()
		w := f.nextDue(target)
		if w == nil {
			f.now = target
			f.compact()
			f.mu.Unlock()
			return
		}
		f.now = w.at
		fireAt := w.at
		if w.period > 0 {
			w.at = w.at.Add(w.period)
		} else {
			w.stopped = true
		}
		fn, ch := w.fn, w.ch
		f.mu.Unlock()

		if fn != nil {
			fn()
			continue
		}
		select {
		case ch <- fireAt:
		default:
		}
	}
}

// nextDue returns the earliest live waiter due at or before target. Caller
// holds f.mu.
func (f *Fake) nextDue(target time.Time) *fakeWaiter {
	live := make([]*fakeWaiter, 0, len(f.waiters))
	for _, w := range f.waiters {
		if !w.stopped && !w.at.After(target) {
			live = append(live, w)
		}
	}
	if len(live) == 0 {
		return nil
	}
	sort.SliceStable(live, func(i, j int) bool { return live[i].at.Before(live[j].at) })
	return live[0]
}

func (f *Fake) compact() {
	kept := f.waiters[:0]
	for _, w := range f.waiters {
		if !w.stopped {
			kept = append(kept, w)
		}
	}
	f.waiters = kept
}

func (f *Fake) stop(w *fakeWaiter) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if w.stopped {
		return false
	}
	w.stopped = true
	return true
}

type fakeTicker struct {
	clock *Fake
	w     *fakeWaiter
}

func (t *fakeTicker) C() <-chan time.Time { return t.w.ch }
func (t *fakeTicker) Stop()               { t.clock.stop(t.w) }

type fakeTimer struct {
	clock *Fake
	w     *fakeWaiter
}

func (t *fakeTimer) Stop() bool { return t.clock.stop(t.w) }
