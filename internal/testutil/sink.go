package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/thruflo/gauge/internal/speedtest"
)

// Call is one recorded sink call.
type Call struct {
	Kind    string
	State   speedtest.State
	Sample  speedtest.Sample
	Session speedtest.Session
	Message string
	At      time.Time
}

// Call kinds.
const (
	CallPhase  = "phase"
	CallSample = "sample"
	CallResult = "result"
	CallError  = "error"
	CallReset  = "reset"
)

// RecordingSink records every call it receives.
type RecordingSink struct {
	mu      sync.Mutex
	calls   []Call
	changed chan struct{}
}

// NewRecordingSink returns an empty RecordingSink.
func NewRecordingSink() *RecordingSink {
	return &RecordingSink{changed: make(chan struct{})}
}

func (r *RecordingSink) record(c Call) {
	c.At = time.Now()
	r.mu.Lock()
	r.calls = append(r.calls, c)
	close(r.changed)
	r.changed = make(chan struct{})
	r.mu.Unlock()
}

func (r *RecordingSink) PhaseChanged(state speedtest.State) {
	r.record(Call{Kind: CallPhase, State: state})
}

func (r *RecordingSink) Sample(sample speedtest.Sample) {
	r.record(Call{Kind: CallSample, Sample: sample})
}

func (r *RecordingSink) Result(session speedtest.Session) {
	r.record(Call{Kind: CallResult, Session: session})
}

func (r *RecordingSink) Error(message string) {
	r.record(Call{Kind: CallError, Message: message})
}

func (r *RecordingSink) Reset() {
	r.record(Call{Kind: CallReset})
}

// Calls returns a copy of all recorded calls.
func (r *RecordingSink) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// States returns the states passed to PhaseChanged, in order.
func (r *RecordingSink) States() []speedtest.State {
	var states []speedtest.State
	for _, c := range r.Calls() {
		if c.Kind == CallPhase {
			states = append(states, c.State)
		}
	}
	return states
}

// Samples returns every recorded sample, in order.
func (r *RecordingSink) Samples() []speedtest.Sample {
	var samples []speedtest.Sample
	for _, c := range r.Calls() {
		if c.Kind == CallSample {
			samples = append(samples, c.Sample)
		}
	}
	return samples
}

// Results returns every session passed to Result.
func (r *RecordingSink) Results() []speedtest.Session {
	var results []speedtest.Session
	for _, c := range r.Calls() {
		if c.Kind == CallResult {
			results = append(results, c.Session)
		}
	}
	return results
}

// Errors returns every message passed to Error.
func (r *RecordingSink) Errors() []string {
	var messages []string
	for _, c := range r.Calls() {
		if c.Kind == CallError {
			messages = append(messages, c.Message)
		}
	}
	return messages
}

// Count returns the number of calls of the given kind.
func (r *RecordingSink) Count(kind string) int {
	n := 0
	for _, c := range r.Calls() {
		if c.Kind == kind {
			n++
		}
	}
	return n
}

// Clear drops all recorded calls.
func (r *RecordingSink) Clear() {
	r.mu.Lock()
	r.calls = nil
	r.mu.Unlock()
}

// WaitFor blocks until cond holds for the recorded calls or timeout passes.
func (r *RecordingSink) WaitFor(t *testing.T, timeout time.Duration, cond func([]Call) bool) {
	t.Helper()
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		r.mu.Lock()
		calls := append([]Call(nil), r.calls...)
		changed := r.changed
		r.mu.Unlock()

		if cond(calls) {
			return
		}
		select {
		case <-changed:
		case <-timer.C:
			t.Fatalf("timed out after %v waiting for sink calls; got %d calls", timeout, len(calls))
			return
		}
	}
}

// WaitForState blocks until PhaseChanged(state) has been recorded.
func (r *RecordingSink) WaitForState(t *testing.T, state speedtest.State, timeout time.Duration) {
	t.Helper()
	r.WaitFor(t, timeout, func(calls []Call) bool {
		for _, c := range calls {
			if c.Kind == CallPhase && c.State == state {
				return true
			}
		}
		return false
	})
}

// WaitForResets blocks until at least n Reset calls have been recorded.
func (r *RecordingSink) WaitForResets(t *testing.T, n int, timeout time.Duration) {
	t.Helper()
	r.WaitFor(t, timeout, func(calls []Call) bool {
		count := 0
		for _, c := range calls {
			if c.Kind == CallReset {
				count++
			}
		}
		return count >= n
	})
}
