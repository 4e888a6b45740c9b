package stream

import (
	"context"
	"sync"
	"time"

	"github.com/thruflo/gauge/internal/gauge"
	"github.com/thruflo/gauge/internal/speedtest"
)

// DefaultBacklog is the number of events a Hub keeps for late subscribers.
const DefaultBacklog = 1024

// Reading is the needle position observers should currently display.
type Reading struct {
	// Seq is the sequence number of the last event appended. Observers
	// subscribe from Seq+1 to follow only what happens next.
	Seq   uint64          `json:"seq"`
	State speedtest.State `json:"state"`
	Phase speedtest.Phase `json:"phase,omitempty"`
	Mbps  float64         `json:"mbps"`
	Angle float64         `json:"angle"`
}

// Hub keeps a bounded backlog of events and fans them out to subscribers.
// It implements speedtest.Sink, so a Sequencer can publish into it directly.
type Hub struct {
	mapping gauge.Mapping

	mu      sync.Mutex
	events  []*Event
	backlog int
	nextSeq uint64
	reading Reading
	closed  bool

	waiters *waiters
}

// waiters manages channels waiting for new events.
type waiters struct {
	mu  sync.Mutex
	chs []chan struct{}
}

func (w *waiters) notify() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, ch := range w.chs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (w *waiters) register(ch chan struct{}) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.chs = append(w.chs, ch)
}

func (w *waiters) unregister(ch chan struct{}) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i, c := range w.chs {
		if c == ch {
			w.chs = append(w.chs[:i], w.chs[i+1:]...)
			break
		}
	}
}

// NewHub creates a Hub that keeps up to backlog events and maps rates onto
// needle angles with mapping. A non-positive backlog uses DefaultBacklog.
func NewHub(backlog int, mapping gauge.Mapping) *Hub {
	if backlog <= 0 {
		backlog = DefaultBacklog
	}
	return &Hub{
		mapping: mapping,
		backlog: backlog,
		nextSeq: 1,
		reading: Reading{State: speedtest.StateIdle, Angle: gauge.MinAngle},
		waiters: &waiters{},
	}
}

// Append assigns the next sequence number to event, stores it and wakes
// subscribers. Events appended after Close are dropped.
func (h *Hub) Append(event *Event) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	event.Seq = h.nextSeq
	h.reading.Seq = event.Seq
	h.nextSeq++
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	h.events = append(h.events, event)
	if over := len(h.events) - h.backlog; over > 0 {
		h.events = append(h.events[:0:0], h.events[over:]...)
	}
	h.mu.Unlock()

	h.waiters.notify()
}

// Read returns retained events with Seq >= fromSeq, oldest first.
func (h *Hub) Read(fromSeq uint64) []*Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	var out []*Event
	for _, e := range h.events {
		if e.Seq >= fromSeq {
			out = append(out, e)
		}
	}
	return out
}

// LastSeq returns the sequence number of the last event appended,
// or 0 if no events have been appended.
func (h *Hub) LastSeq() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.nextSeq - 1
}

// Reading returns the current needle position.
func (h *Hub) Reading() Reading {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.reading
}

// Subscribe returns a channel that receives events with Seq >= fromSeq,
// starting with the retained backlog. Use 0 or 1 for everything retained.
// The channel is closed when ctx is done or the Hub is closed.
func (h *Hub) Subscribe(ctx context.Context, fromSeq uint64) <-chan *Event {
	ch := make(chan *Event, 100)

	notifyCh := make(chan struct{}, 1)
	h.waiters.register(notifyCh)

	go func() {
		defer close(ch)
		defer h.waiters.unregister(notifyCh)

		nextSeq := max(fromSeq, 1)
		for {
			for _, event := range h.Read(nextSeq) {
				select {
				case <-ctx.Done():
					return
				case ch <- event:
					nextSeq = event.Seq + 1
				}
			}
			if h.isClosed() {
				return
			}

			select {
			case <-ctx.Done():
				return
			case <-notifyCh:
			}
		}
	}()

	return ch
}

func (h *Hub) isClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// Close ends all subscriptions after they drain the backlog.
// It is safe to call Close multiple times.
func (h *Hub) Close() error {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()
	h.waiters.notify()
	return nil
}

func (h *Hub) setReading(fn func(*Reading)) {
	h.mu.Lock()
	fn(&h.reading)
	h.mu.Unlock()
}

// PhaseChanged implements speedtest.Sink. A new session or an explicit
// reset returns the needle to zero.
func (h *Hub) PhaseChanged(state speedtest.State) {
	h.setReading(func(r *Reading) {
		r.State = state
		phase, ok := state.Phase()
		switch {
		case state == speedtest.StatePinging || state == speedtest.StateIdle:
			r.Phase = phase
			r.Mbps = 0
			r.Angle = gauge.MinAngle
		case ok:
			r.Phase = phase
		}
	})
	h.Append(MustNewEvent(MessageTypePhase, PhaseEvent{State: state}))
}

// Sample implements speedtest.Sink.
func (h *Hub) Sample(sample speedtest.Sample) {
	angle := h.mapping.Angle(sample.Mbps)
	h.setReading(func(r *Reading) {
		r.Phase = sample.Phase
		r.Mbps = sample.Mbps
		r.Angle = angle
	})
	h.Append(MustNewEvent(MessageTypeSample, SampleEvent{
		Phase:     sample.Phase,
		Mbps:      sample.Mbps,
		ElapsedMs: sample.Elapsed.Milliseconds(),
		Progress:  sample.Progress,
		Angle:     angle,
	}))
}

// Result implements speedtest.Sink.
func (h *Hub) Result(session speedtest.Session) {
	h.Append(MustNewEvent(MessageTypeResult, session))
}

// Error implements speedtest.Sink.
func (h *Hub) Error(message string) {
	h.Append(MustNewEvent(MessageTypeError, ErrorEvent{Message: message}))
}

// Reset implements speedtest.Sink. The gauge returns to zero.
func (h *Hub) Reset() {
	h.setReading(func(r *Reading) {
		r.Phase = ""
		r.Mbps = 0
		r.Angle = gauge.MinAngle
	})
	h.Append(MustNewEvent(MessageTypeReset, struct{}{}))
}
