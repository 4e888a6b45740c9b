package cli

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/thruflo/gauge/internal/config"
	"github.com/thruflo/gauge/internal/server"
)

var (
	servePort         int
	servePayloadBytes int64
	serveSelf         bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the browser gauge",
	Long: `Serve starts an HTTP server with the gauge page. Pressing start in the
browser runs a session on the server and streams its progress to every
open page.

By default the server measures against its own /ping and /payload
endpoints. Pass --self=false to use the URLs from the config instead.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntVarP(&servePort, "port", "p", config.DefaultServerPort, "port to listen on (0 picks a free port)")
	serveCmd.Flags().Int64Var(&servePayloadBytes, "payload-bytes", config.DefaultPayloadBytes, "size of the /payload download in bytes")
	serveCmd.Flags().BoolVar(&serveSelf, "self", true, "measure against this server's own /ping and /payload")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = servePort
	}
	if cmd.Flags().Changed("payload-bytes") {
		cfg.Server.PayloadBytes = servePayloadBytes
	}
	if serveSelf {
		cfg.Test.PingURL = ""
		cfg.Test.PayloadURL = ""
	}
	if err := config.ValidateConfig(cfg); err != nil {
		return err
	}

	srv, err := server.NewServerFromConfig(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	if err := srv.Listen(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(cmd.OutOrStdout(), "gauge serving on %s\n", displayURL(srv.ListenAddr()))
	return srv.Start(ctx)
}

// displayURL turns a listen address into a URL a browser on this machine can open.
func displayURL(addr string) string {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://" + addr
	}
	return "http://localhost:" + port
}
