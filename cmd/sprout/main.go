package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/sprout-iot/sprout/internal/errors"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const banner = `
   ___ _ __  _ __ ___  _   _| |_
  / __| '_ \| '__/ _ \| | | | __|
  \__ \ |_) | | | (_) | |_| | |_
  |___/ .__/|_|  \___/ \__,_|\__|
      |_|
`

// globalFlags are shared by every command.
type globalFlags struct {
	configPath string
	logLevel   string
	logFormat  string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		errors.PrintError(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var flags globalFlags

	rootCmd := &cobra.Command{
		Use:   "sprout",
		Short: "Sensor telemetry gateway",
		Long: `Sprout reads sensor state frames from a serial device, validates
them, keeps the latest reading and broadcasts it to every connected
subscriber.

  • Serial ingestion with automatic reconnect
  • Discrete submissions over HTTP
  • WebSocket broadcast with a periodic heartbeat
  • Optional MQTT, Kafka and S3 fan-out`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flags.configPath, "config", "c", "", "Config file (default: sprout.json or sprout.yaml in the working directory)")
	pf.StringVar(&flags.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	pf.StringVar(&flags.logFormat, "log-format", "", "Log format: text or json")

	rootCmd.AddCommand(
		serveCmd(&flags),
		replayCmd(&flags),
		portsCmd(),
		configCmd(&flags),
		versionCmd(),
	)
	return rootCmd
}

// newLogger builds the process logger.
func newLogger(level, format string, w io.Writer) (*slog.Logger, error) {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "", "info":
		lvl = slog.LevelInfo
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		return nil, errors.New("E601").WithDetailf("unknown log level %q", level)
	}

	opts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, errors.New("E601").WithDetailf("unknown log format %q", format)
	}
}

// printBanner prints the ASCII art banner.
func printBanner(w io.Writer) {
	fmt.Fprint(w, banner)
}
