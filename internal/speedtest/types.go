package speedtest

import (
	"fmt"
	"time"
)

// State is the lifecycle state of a session.
type State int

const (
	StateIdle State = iota
	StatePinging
	StateDownloading
	StateUploading
	StateCompleted
	StateFailed
)

var stateNames = map[State]string{
	StateIdle:        "idle",
	StatePinging:     "pinging",
	StateDownloading: "downloading",
	StateUploading:   "uploading",
	StateCompleted:   "completed",
	StateFailed:      "failed",
}

// String returns the lower-case state name.
func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(text []byte) error {
	for state, name := range stateNames {
		if name == string(text) {
			*s = state
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", text)
}

// Active reports whether a session in this state is still running. A new
// session may only start when the current one is not active.
func (s State) Active() bool {
	switch s {
	case StatePinging, StateDownloading, StateUploading:
		return true
	default:
		return false
	}
}

// Phase returns the measurement phase running in this state, if any.
func (s State) Phase() (Phase, bool) {
	switch s {
	case StatePinging:
		return PhasePing, true
	case StateDownloading:
		return PhaseDownload, true
	case StateUploading:
		return PhaseUpload, true
	default:
		return "", false
	}
}

// Phase names one stage of the measurement sequence.
type Phase string

const (
	PhasePing     Phase = "ping"
	PhaseDownload Phase = "download"
	PhaseUpload   Phase = "upload"
)

// Session is one run of the sequence.
type Session struct {
	ID           string    `json:"id"`
	State        State     `json:"state"`
	PingMs       float64   `json:"ping_ms"`
	DownloadMbps float64   `json:"download_mbps"`
	UploadMbps   float64   `json:"upload_mbps"`
	StartedAt    time.Time `json:"started_at,omitzero"`
	FinishedAt   time.Time `json:"finished_at,omitzero"`

	// PingFallback is set when the probe failed and PingMs is synthetic.
	PingFallback bool `json:"ping_fallback,omitempty"`
	// DownloadError describes a download transport failure; DownloadMbps is 0 then.
	DownloadError string `json:"download_error,omitempty"`
	// UploadSimulated is always true once the upload phase ran.
	UploadSimulated bool `json:"upload_simulated,omitempty"`
	// Error is the message reported when the session failed.
	Error string `json:"error,omitempty"`
}

// Duration returns how long the session ran, or zero if it has not finished.
func (s Session) Duration() time.Duration {
	if s.StartedAt.IsZero() || s.FinishedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

// Sample is a transient rate reading taken during the download or upload phase.
type Sample struct {
	Phase   Phase         `json:"phase"`
	Mbps    float64       `json:"mbps"`
	Elapsed time.Duration `json:"elapsed"`
	// Progress is the fraction of the payload received, or 0 when the size
	// is unknown. Always 0 for upload samples.
	Progress float64 `json:"progress,omitempty"`
}

// RateMbps converts a byte count over an elapsed time to megabits per second
// using decimal mega (1,000,000). Non-positive elapsed times yield 0.
func RateMbps(bytes int64, elapsed time.Duration) float64 {
	if elapsed <= 0 || bytes <= 0 {
		return 0
	}
	return float64(bytes) * 8 / elapsed.Seconds() / 1_000_000
}
