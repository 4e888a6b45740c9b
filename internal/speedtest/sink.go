package speedtest

import "github.com/thruflo/gauge/internal/logging"

// Sink receives progress from a Sequencer. Calls are serialized per
// Sequencer, so implementations only need locking if they are read from
// other goroutines.
type Sink interface {
	// PhaseChanged is called on every state transition, including Completed,
	// Failed and the return to Idle after Reset.
	PhaseChanged(state State)
	// Sample is called for each rate reading during download and upload.
	Sample(sample Sample)
	// Result is called once when a session completes.
	Result(session Session)
	// Error is called after PhaseChanged(StateFailed) with a readable message.
	Error(message string)
	// Reset tells the presentation layer to zero its gauge.
	Reset()
}

// Sinks fans each call out to every sink in order.
type Sinks []Sink

func (s Sinks) PhaseChanged(state State) {
	for _, sink := range s {
		sink.PhaseChanged(state)
	}
}

func (s Sinks) Sample(sample Sample) {
	for _, sink := range s {
		sink.Sample(sample)
	}
}

func (s Sinks) Result(session Session) {
	for _, sink := range s {
		sink.Result(session)
	}
}

func (s Sinks) Error(message string) {
	for _, sink := range s {
		sink.Error(message)
	}
}

func (s Sinks) Reset() {
	for _, sink := range s {
		sink.Reset()
	}
}

// NopSink discards everything.
type NopSink struct{}

func (NopSink) PhaseChanged(State) {}
func (NopSink) Sample(Sample)      {}
func (NopSink) Result(Session)     {}
func (NopSink) Error(string)       {}
func (NopSink) Reset()             {}

// LogSink writes progress to a logger. Samples are logged at debug level.
type LogSink struct {
	Logger *logging.Logger
}

// NewLogSink returns a LogSink writing to logger, or the default logger if nil.
func NewLogSink(logger *logging.Logger) *LogSink {
	if logger == nil {
		logger = logging.Default()
	}
	return &LogSink{Logger: logger.Named("speedtest")}
}

func (l *LogSink) PhaseChanged(state State) {
	l.Logger.Info("phase changed", "state", state)
}

func (l *LogSink) Sample(sample Sample) {
	if !l.Logger.Enabled(logging.LevelDebug) {
		return
	}
	l.Logger.Debug("sample",
		"phase", sample.Phase,
		"mbps", sample.Mbps,
		"elapsed", sample.Elapsed,
		"progress", sample.Progress,
	)
}

func (l *LogSink) Result(session Session) {
	l.Logger.Info("speed test completed",
		"session", session.ID,
		"ping_ms", session.PingMs,
		"download_mbps", session.DownloadMbps,
		"upload_mbps", session.UploadMbps,
		"ping_fallback", session.PingFallback,
	)
}

func (l *LogSink) Error(message string) {
	l.Logger.Error(message)
}

func (l *LogSink) Reset() {
	l.Logger.Debug("gauge reset")
}
