package speedtest

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/google/uuid"

	"github.com/thruflo/gauge/internal/clock"
	"github.com/thruflo/gauge/internal/logging"
)

var (
	// ErrReset is the cancellation cause for a run stopped by Reset.
	ErrReset = errors.New("speed test reset")
	// ErrClosed is returned once the Sequencer has been closed.
	ErrClosed = errors.New("sequencer closed")
)

// Sequencer runs speed test sessions one at a time and reports progress to a
// Sink. It is safe for concurrent use.
type Sequencer struct {
	opts  Options
	sink  Sink
	clock clock.Clock
	log   *logging.Logger

	// emitMu serializes sink calls. It is always taken before mu.
	emitMu sync.Mutex

	mu         sync.Mutex
	session    Session
	current    *run
	resetTimer clock.Timer
	closed     bool

	randMu sync.Mutex
	rng    *rand.Rand

	wg sync.WaitGroup
}

// run is the handle for one session. Emissions from a run are dropped once it
// is no longer the Sequencer's current run.
type run struct {
	ctx    context.Context
	cancel context.CancelCauseFunc
	phase  Phase
}

// New creates a Sequencer reporting to sink. A nil sink discards progress.
func New(opts Options, sink Sink) *Sequencer {
	opts = opts.withDefaults()
	if sink == nil {
		sink = NopSink{}
	}
	return &Sequencer{
		opts:    opts,
		sink:    sink,
		clock:   opts.Clock,
		log:     opts.Logger.Named("speedtest"),
		session: Session{State: StateIdle},
		rng:     opts.Rand,
	}
}

// Options returns the effective options.
func (s *Sequencer) Options() Options {
	return s.opts
}

// Session returns a snapshot of the current or most recent session.
func (s *Sequencer) Session() Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}

// Start begins a new session in the background. It returns ErrSessionActive
// if a session is already running. PhaseChanged(StatePinging) has been
// delivered to the sink by the time Start returns.
func (s *Sequencer) Start() error {
	r, err := s.begin(context.Background())
	if err != nil {
		return err
	}
	go func() {
		defer s.wg.Done()
		_, _ = s.execute(r)
	}()
	return nil
}

// Run executes a session on the calling goroutine and returns its final
// snapshot. Cancelling ctx fails the session. The returned error is non-nil
// when the session did not complete.
func (s *Sequencer) Run(ctx context.Context) (Session, error) {
	r, err := s.begin(ctx)
	if err != nil {
		return Session{}, err
	}
	defer s.wg.Done()

	snap, err := s.execute(r)
	if err != nil {
		return s.Session(), err
	}
	return snap, nil
}

// Reset stops any running session, discards the session record and tells the
// sink to zero its gauge.
func (s *Sequencer) Reset() {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.stopLocked(ErrReset)
	s.session = Session{State: StateIdle}
	s.mu.Unlock()

	s.sink.Reset()
	s.sink.PhaseChanged(StateIdle)
}

// Close stops any running session and waits for it to exit. Further calls to
// Start and Run return ErrClosed.
func (s *Sequencer) Close() error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		s.stopLocked(ErrClosed)
	}
	s.mu.Unlock()

	s.wg.Wait()
	return nil
}

// stopLocked cancels the current run and the pending reset signal.
func (s *Sequencer) stopLocked(cause error) {
	if s.resetTimer != nil {
		s.resetTimer.Stop()
		s.resetTimer = nil
	}
	if s.current != nil {
		s.current.cancel(cause)
		s.current = nil
	}
}

func (s *Sequencer) begin(parent context.Context) (*run, error) {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	if s.session.State.Active() {
		s.mu.Unlock()
		return nil, ErrSessionActive
	}
	s.stopLocked(context.Canceled)

	ctx, cancel := context.WithCancelCause(parent)
	r := &run{ctx: ctx, cancel: cancel, phase: PhasePing}
	s.current = r
	s.session = Session{
		ID:        uuid.NewString(),
		State:     StatePinging,
		StartedAt: s.clock.Now(),
	}
	s.wg.Add(1)
	id := s.session.ID
	s.mu.Unlock()

	s.log.Debug("session started", "session", id)
	s.sink.PhaseChanged(StatePinging)
	return r, nil
}

// execute runs the three phases and returns the completed session.
func (s *Sequencer) execute(r *run) (snap Session, err error) {
	defer r.cancel(nil)
	defer func() {
		if p := recover(); p != nil {
			err = &PhaseError{Kind: KindUnexpected, Phase: r.phase, Err: fmt.Errorf("panic: %v", p)}
		}
		if err != nil {
			s.fail(r, err)
		}
	}()

	pingMs, fallback, err := s.runPing(r)
	if err != nil {
		return Session{}, err
	}
	r.phase = PhaseDownload
	if !s.transition(r, StateDownloading, func(ss *Session) {
		ss.PingMs = pingMs
		ss.PingFallback = fallback
	}) {
		return Session{}, stopped(r)
	}

	downloadMbps, downloadErr, err := s.runDownload(r)
	if err != nil {
		return Session{}, err
	}
	r.phase = PhaseUpload
	if !s.transition(r, StateUploading, func(ss *Session) {
		ss.DownloadMbps = downloadMbps
		ss.DownloadError = downloadErr
	}) {
		return Session{}, stopped(r)
	}

	uploadMbps, err := s.runUpload(r, downloadMbps)
	if err != nil {
		return Session{}, err
	}

	snap, ok := s.finish(r, uploadMbps)
	if !ok {
		return Session{}, stopped(r)
	}
	return snap, nil
}

// stopped returns why a run lost its place as the current run.
func stopped(r *run) error {
	if cause := context.Cause(r.ctx); cause != nil {
		return cause
	}
	return ErrReset
}

func (s *Sequencer) runPing(r *run) (float64, bool, error) {
	ms, err := s.measurePing(r.ctx)
	if err == nil {
		s.log.Debug("ping measured", "ping_ms", ms)
		return ms, false, nil
	}
	if KindOf(err) != KindProbeUnavailable {
		return 0, false, err
	}
	fallback := s.fallbackPing()
	s.log.Warn("ping probe unavailable, using fallback", "error", err, "ping_ms", fallback)
	return fallback, true, nil
}

func (s *Sequencer) runDownload(r *run) (float64, string, error) {
	mbps, err := s.measureDownload(r.ctx, func(sample Sample) { s.sample(r, sample) })
	if err == nil {
		return mbps, "", nil
	}
	if KindOf(err) != KindDownloadTransport {
		return 0, "", err
	}
	s.log.Warn("download failed, recording 0 Mbps", "error", err)
	return 0, err.Error(), nil
}

func (s *Sequencer) runUpload(r *run, downloadMbps float64) (float64, error) {
	target := s.uploadTarget(downloadMbps)
	if err := s.simulateUpload(r.ctx, target, func(sample Sample) { s.sample(r, sample) }); err != nil {
		return 0, err
	}
	return target, nil
}

// emit applies mutate to the session and then calls notify, provided r is
// still the current run. It reports whether r was current.
func (s *Sequencer) emit(r *run, mutate func(*Session), notify func(Sink)) bool {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	s.mu.Lock()
	if s.current != r {
		s.mu.Unlock()
		return false
	}
	if mutate != nil {
		mutate(&s.session)
	}
	s.mu.Unlock()

	if notify != nil {
		notify(s.sink)
	}
	return true
}

func (s *Sequencer) transition(r *run, state State, mutate func(*Session)) bool {
	return s.emit(r, func(ss *Session) {
		if mutate != nil {
			mutate(ss)
		}
		ss.State = state
	}, func(sink Sink) {
		sink.PhaseChanged(state)
	})
}

func (s *Sequencer) sample(r *run, sample Sample) {
	s.emit(r, nil, func(sink Sink) { sink.Sample(sample) })
}

// finish completes the session and schedules the reset signal.
func (s *Sequencer) finish(r *run, uploadMbps float64) (Session, bool) {
	var snap Session
	ok := s.emit(r, func(ss *Session) {
		ss.UploadMbps = uploadMbps
		ss.UploadSimulated = true
		ss.State = StateCompleted
		ss.FinishedAt = s.clock.Now()
		snap = *ss
		s.resetTimer = s.clock.AfterFunc(s.opts.ResetDelay, func() { s.autoReset(r) })
	}, func(sink Sink) {
		sink.PhaseChanged(StateCompleted)
		sink.Result(snap)
	})
	return snap, ok
}

// autoReset zeroes the gauge after a completed session. The session record
// stays queryable.
func (s *Sequencer) autoReset(r *run) {
	s.emit(r, func(*Session) {
		s.resetTimer = nil
	}, func(sink Sink) {
		sink.Reset()
	})
}

func (s *Sequencer) fail(r *run, err error) {
	message := "speed test failed: " + err.Error()
	ok := s.emit(r, func(ss *Session) {
		ss.State = StateFailed
		ss.Error = message
		ss.FinishedAt = s.clock.Now()
	}, func(sink Sink) {
		sink.PhaseChanged(StateFailed)
		sink.Error(message)
	})
	if ok {
		s.log.Error("speed test failed", "phase", r.phase, "error", err)
	}
}

// float returns a uniform value in [0, 1).
func (s *Sequencer) float() float64 {
	s.randMu.Lock()
	defer s.randMu.Unlock()
	return s.rng.Float64()
}

func (s *Sequencer) between(lo, hi float64) float64 {
	return lo + s.float()*(hi-lo)
}

func (s *Sequencer) fallbackPing() float64 {
	return s.between(s.opts.PingFallbackMinMs, s.opts.PingFallbackMaxMs)
}
