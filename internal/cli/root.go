package cli

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/thruflo/gauge/internal/config"
	"github.com/thruflo/gauge/internal/logging"
)

// Version is set at build time via ldflags.
var Version = "dev"

var (
	configPath string
	envFile    string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "gauge",
	Short: "Bandwidth speed test with an animated gauge",
	Long: `Gauge measures ping, download and upload speed and shows the rate
on a needle gauge, either in the terminal (gauge run), in a browser
(gauge serve) or by following a running server (gauge watch).`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.Version = Version
	rootCmd.SetVersionTemplate("gauge version {{.Version}}\n")

	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultConfigPath, "path to the YAML config file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "path to a .env file with GAUGE_* overrides")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn or error")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig loads the config file and env overrides, applies --log-level
// and returns a logger writing to the command's stderr.
func loadConfig(cmd *cobra.Command) (*config.Config, *logging.Logger, error) {
	cfg, err := config.Load(configPath, envFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Log.Level = logLevel
	}

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, nil, err
	}

	logger := logging.New()
	logger.SetLevel(level)
	logger.SetOutput(log.New(cmd.ErrOrStderr(), "", log.LstdFlags))
	return cfg, logger, nil
}
