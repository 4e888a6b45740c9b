// Package stream carries speed test progress between the sequencer and its
// observers (terminal and browser) as a sequence of numbered events.
package stream

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/thruflo/gauge/internal/speedtest"
)

// MessageType identifies the type of message in the stream.
type MessageType string

const (
	// MessageTypePhase is a session state transition.
	MessageTypePhase MessageType = "phase"
	// MessageTypeSample is a rate reading during download or upload.
	MessageTypeSample MessageType = "sample"
	// MessageTypeResult carries the completed session.
	MessageTypeResult MessageType = "result"
	// MessageTypeError carries the message of a failed session.
	MessageTypeError MessageType = "error"
	// MessageTypeReset tells observers to zero the gauge.
	MessageTypeReset MessageType = "reset"
)

// Event represents a message in the stream.
type Event struct {
	// Seq is the sequence number assigned by the Hub.
	// Zero for events not yet appended.
	Seq uint64 `json:"seq,omitempty"`

	// Type identifies what kind of event this is.
	Type MessageType `json:"type"`

	// Timestamp is when the event was created.
	Timestamp time.Time `json:"timestamp"`

	// Data contains the type-specific payload.
	// Use the typed accessor methods to get the concrete type.
	Data json.RawMessage `json:"data"`
}

// NewEvent creates a new Event with the given type and data.
func NewEvent(msgType MessageType, data any) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event data: %w", err)
	}

	return &Event{
		Type:      msgType,
		Timestamp: time.Now().UTC(),
		Data:      dataBytes,
	}, nil
}

// MustNewEvent creates a new Event, panicking on error.
// Use only when the data is known to be serializable.
func MustNewEvent(msgType MessageType, data any) *Event {
	e, err := NewEvent(msgType, data)
	if err != nil {
		panic(err)
	}
	return e
}

// Marshal serializes the event to JSON bytes.
func (e *Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// UnmarshalEvent deserializes an Event from JSON bytes.
func UnmarshalEvent(data []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}
	return &e, nil
}

func decode[T any](e *Event, want MessageType) (*T, error) {
	if e.Type != want {
		return nil, fmt.Errorf("event is not a %s event: %s", want, e.Type)
	}
	var data T
	if len(e.Data) == 0 {
		return &data, nil
	}
	if err := json.Unmarshal(e.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s data: %w", want, err)
	}
	return &data, nil
}

// PhaseData returns the phase data if this is a phase event.
func (e *Event) PhaseData() (*PhaseEvent, error) {
	return decode[PhaseEvent](e, MessageTypePhase)
}

// SampleData returns the sample data if this is a sample event.
func (e *Event) SampleData() (*SampleEvent, error) {
	return decode[SampleEvent](e, MessageTypeSample)
}

// ResultData returns the completed session if this is a result event.
func (e *Event) ResultData() (*speedtest.Session, error) {
	return decode[speedtest.Session](e, MessageTypeResult)
}

// ErrorData returns the error data if this is an error event.
func (e *Event) ErrorData() (*ErrorEvent, error) {
	return decode[ErrorEvent](e, MessageTypeError)
}

// PhaseEvent reports a state transition.
type PhaseEvent struct {
	State speedtest.State `json:"state"`
}

// SampleEvent is a rate reading together with its needle position.
type SampleEvent struct {
	Phase     speedtest.Phase `json:"phase"`
	Mbps      float64         `json:"mbps"`
	ElapsedMs int64           `json:"elapsed_ms"`
	Progress  float64         `json:"progress,omitempty"`
	Angle     float64         `json:"angle"`
}

// ErrorEvent carries the message of a failed session.
type ErrorEvent struct {
	Message string `json:"message"`
}

// Action names an operation a client can request from the server.
type Action string

const (
	ActionStartTest Action = "start-test"
	ActionResetTest Action = "reset-test"
)

// ParseAction validates an action name.
func ParseAction(s string) (Action, error) {
	switch Action(s) {
	case ActionStartTest, ActionResetTest:
		return Action(s), nil
	default:
		return "", fmt.Errorf("unknown action %q", s)
	}
}

// AckStatus represents the result of action processing.
type AckStatus string

const (
	AckStatusAccepted AckStatus = "accepted"
	AckStatusRejected AckStatus = "rejected"
)

// Ack is the server's reply to an action.
type Ack struct {
	Action  Action            `json:"action"`
	Status  AckStatus         `json:"status"`
	Error   string            `json:"error,omitempty"`
	Session speedtest.Session `json:"session"`
}

// NewAcceptedAck creates an accepted acknowledgment.
func NewAcceptedAck(action Action, session speedtest.Session) *Ack {
	return &Ack{Action: action, Status: AckStatusAccepted, Session: session}
}

// NewRejectedAck creates a rejected acknowledgment.
func NewRejectedAck(action Action, session speedtest.Session, err error) *Ack {
	return &Ack{Action: action, Status: AckStatusRejected, Error: err.Error(), Session: session}
}
