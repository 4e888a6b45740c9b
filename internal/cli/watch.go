package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/thruflo/gauge/internal/gauge"
	"github.com/thruflo/gauge/internal/speedtest"
	"github.com/thruflo/gauge/internal/stream"
	"github.com/thruflo/gauge/internal/tui"
)

var (
	watchStart     bool
	watchJSON      bool
	watchBell      bool
	watchReconnect time.Duration
)

var watchCmd = &cobra.Command{
	Use:   "watch <url>",
	Short: "Follow a running gauge server in the terminal",
	Long: `Watch connects to a server started with 'gauge serve' and draws its
gauge in the terminal until the next session ends.

With --start a new session is requested first. If one is already running,
watch follows it instead.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().BoolVar(&watchStart, "start", false, "start a new session instead of waiting for one")
	watchCmd.Flags().BoolVar(&watchJSON, "json", false, "print the final session as JSON instead of drawing the gauge")
	watchCmd.Flags().BoolVar(&watchBell, "bell", false, "ring the terminal bell when the test ends")
	watchCmd.Flags().DurationVar(&watchReconnect, "reconnect", 2*time.Second, "wait between reconnection attempts")
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := stream.NewClient(args[0], stream.WithReconnectInterval(watchReconnect))
	reading, err := client.Reading(ctx)
	if err != nil {
		return fmt.Errorf("failed to reach gauge server at %s: %w", client.BaseURL(), err)
	}

	out := cmd.OutOrStdout()
	var sink speedtest.Sink = speedtest.NopSink{}
	if !watchJSON {
		view := tui.NewGaugeView(out, gauge.New(cfg.Gauge.MaxMbps), tui.WithBell(watchBell))
		defer view.Close()
		view.PhaseChanged(reading.State)
		if reading.Phase != "" && reading.State.Active() {
			view.Sample(speedtest.Sample{Phase: reading.Phase, Mbps: reading.Mbps})
		}
		sink = view
	}

	events, errs := client.Subscribe(ctx, reading.Seq+1)

	if watchStart {
		ack, err := client.StartTest(ctx)
		if err != nil {
			return err
		}
		if ack.Status == stream.AckStatusRejected {
			logger.Warn("session already running, following it", "session", ack.Session.ID, "reason", ack.Error)
		}
	}

	session, err := stream.AwaitOutcome(ctx, events, func(event *stream.Event) {
		if err := stream.Replay(event, sink); err != nil {
			logger.Warn("skipping malformed event", "seq", event.Seq, "error", err)
		}
	})
	if errors.Is(err, stream.ErrStreamClosed) {
		if streamErr, ok := <-errs; ok && streamErr != nil {
			err = streamErr
		}
	}

	if err != nil {
		return err
	}

	if watchJSON {
		data, err := json.MarshalIndent(session, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode session: %w", err)
		}
		fmt.Fprintln(out, string(data))
	}
	return nil
}
