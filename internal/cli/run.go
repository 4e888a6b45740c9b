package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/thruflo/gauge/internal/config"
	"github.com/thruflo/gauge/internal/gauge"
	"github.com/thruflo/gauge/internal/logging"
	"github.com/thruflo/gauge/internal/speedtest"
	"github.com/thruflo/gauge/internal/tui"
)

var (
	runPingURL    string
	runPayloadURL string
	runGaugeMax   float64
	runJSON       bool
	runBell       bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one speed test in the terminal",
	Long: `Run measures ping, download and upload once and draws the gauge in
the terminal while it runs.

With --json the gauge is not drawn and the final session is printed as JSON.
The command exits non-zero when the session fails.`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runPingURL, "ping-url", "", "URL probed to time the round trip (overrides config)")
	runCmd.Flags().StringVar(&runPayloadURL, "payload-url", "", "URL downloaded to measure throughput (overrides config)")
	runCmd.Flags().Float64Var(&runGaugeMax, "gauge-max", 0, "full-scale gauge reading in Mbps (overrides config)")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "print the final session as JSON instead of drawing the gauge")
	runCmd.Flags().BoolVar(&runBell, "bell", false, "ring the terminal bell when the test ends")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("ping-url") {
		cfg.Test.PingURL = runPingURL
	}
	if cmd.Flags().Changed("payload-url") {
		cfg.Test.PayloadURL = runPayloadURL
	}
	if cmd.Flags().Changed("gauge-max") {
		cfg.Gauge.MaxMbps = runGaugeMax
	}
	if err := config.ValidateConfig(cfg); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	var sinks speedtest.Sinks
	if !runJSON {
		view := tui.NewGaugeView(out, gauge.New(cfg.Gauge.MaxMbps), tui.WithBell(runBell))
		defer view.Close()
		// Info logs would tear an in-place redraw.
		if view.Interactive() && !cmd.Flags().Changed("log-level") {
			logger.SetLevel(logging.LevelWarn)
		}
		sinks = append(sinks, view)
	}
	sinks = append(sinks, speedtest.NewLogSink(logger))

	opts := speedtest.OptionsFromConfig(cfg.Test)
	opts.Logger = logger
	seq := speedtest.New(opts, sinks)
	defer seq.Close()

	session, runErr := seq.Run(ctx)

	if runJSON {
		data, err := json.MarshalIndent(session, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode session: %w", err)
		}
		fmt.Fprintln(out, string(data))
	}

	if runErr != nil {
		return fmt.Errorf("speed test failed: %w", runErr)
	}
	return nil
}
