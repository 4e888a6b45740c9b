package stream

import (
	"fmt"
	"time"

	"github.com/thruflo/gauge/internal/speedtest"
)

// Replay delivers event to sink as the Sink call that produced it, so a
// remote observer can drive the same views as a local Sequencer.
func Replay(event *Event, sink speedtest.Sink) error {
	switch event.Type {
	case MessageTypePhase:
		data, err := event.PhaseData()
		if err != nil {
			return err
		}
		sink.PhaseChanged(data.State)
	case MessageTypeSample:
		data, err := event.SampleData()
		if err != nil {
			return err
		}
		sink.Sample(speedtest.Sample{
			Phase:    data.Phase,
			Mbps:     data.Mbps,
			Elapsed:  time.Duration(data.ElapsedMs) * time.Millisecond,
			Progress: data.Progress,
		})
	case MessageTypeResult:
		session, err := event.ResultData()
		if err != nil {
			return err
		}
		sink.Result(*session)
	case MessageTypeError:
		data, err := event.ErrorData()
		if err != nil {
			return err
		}
		sink.Error(data.Message)
	case MessageTypeReset:
		sink.Reset()
	default:
		return fmt.Errorf("unknown event type %q", event.Type)
	}
	return nil
}
