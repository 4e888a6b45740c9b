package stream

import (
	"context"
	"errors"
	"fmt"

	"github.com/thruflo/gauge/internal/speedtest"
)

// ErrStreamClosed is returned by AwaitOutcome when the event channel closes
// before the session ends.
var ErrStreamClosed = errors.New("event stream closed before the session ended")

// SessionFailedError carries the message of a failed session.
type SessionFailedError struct {
	Message string
}

func (e *SessionFailedError) Error() string {
	return e.Message
}

// AwaitOutcome consumes events until the session ends. It returns the
// session from a result event, or a *SessionFailedError for an error event.
// Every event seen, including the final one, is passed to onEvent if it is
// not nil.
func AwaitOutcome(ctx context.Context, events <-chan *Event, onEvent func(*Event)) (*speedtest.Session, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case event, ok := <-events:
			if !ok {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				return nil, ErrStreamClosed
			}
			if onEvent != nil {
				onEvent(event)
			}

			switch event.Type {
			case MessageTypeResult:
				session, err := event.ResultData()
				if err != nil {
					return nil, fmt.Errorf("malformed result event %d: %w", event.Seq, err)
				}
				return session, nil
			case MessageTypeError:
				data, err := event.ErrorData()
				if err != nil {
					return nil, fmt.Errorf("malformed error event %d: %w", event.Seq, err)
				}
				return nil, &SessionFailedError{Message: data.Message}
			}
		}
	}
}
