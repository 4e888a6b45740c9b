package speedtest

import (
	"errors"
	"fmt"
)

// ErrSessionActive is returned by Start and Run while a session is running.
var ErrSessionActive = errors.New("speed test already running")

// Kind classifies a phase failure.
type Kind int

const (
	// KindProbeUnavailable means the ping probe could not reach its endpoint.
	// Recovered with a fallback value.
	KindProbeUnavailable Kind = iota
	// KindDownloadTransport means the payload fetch or a body read failed.
	// Recovered by recording a rate of 0.
	KindDownloadTransport
	// KindUnexpected is any other failure. The session moves to Failed.
	KindUnexpected
)

func (k Kind) String() string {
	switch k {
	case KindProbeUnavailable:
		return "probe unavailable"
	case KindDownloadTransport:
		return "download transport error"
	default:
		return "unexpected failure"
	}
}

// PhaseError wraps a failure with the phase it happened in.
type PhaseError struct {
	Kind  Kind
	Phase Phase
	Err   error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Phase, e.Kind, e.Err)
}

func (e *PhaseError) Unwrap() error {
	return e.Err
}

// IsUnexpected reports whether err is a failure that ends the session.
// Errors that are not PhaseErrors count as unexpected.
func IsUnexpected(err error) bool {
	if err == nil {
		return false
	}
	var pe *PhaseError
	if errors.As(err, &pe) {
		return pe.Kind == KindUnexpected
	}
	return true
}

// KindOf returns the Kind of err, or KindUnexpected if err is not a PhaseError.
func KindOf(err error) Kind {
	var pe *PhaseError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindUnexpected
}
