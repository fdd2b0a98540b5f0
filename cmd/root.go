// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"io"
	"time"

	"github.com/Thermoquad/peristat/internal/config"
	"github.com/Thermoquad/peristat/internal/logging"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	configPath string

	// Serial connection flags
	portName string
	baudRate int

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	// Protocol flags
	pumpAddress     int
	discardTimeout  time.Duration
	responseTimeout time.Duration
	reconnect       bool

	// Ambient flags
	logLevel    string
	logFormat   string
	metricsAddr string
	tracePath   string
)

// Resolved by PersistentPreRunE
var (
	settings  *config.Config
	logger    *logrus.Logger
	logCloser io.Closer
)

var rootCmd = &cobra.Command{
	Use:   "peristat",
	Short: "Masterflex peristaltic pump controller",
	Long: `Peristat - A CLI tool for driving Masterflex peristaltic pumps over their
serial command protocol.

Provides an interactive console, one-shot commands, a connectivity probe, a
passive line monitor and a terminal control panel.

Connection modes:
  Serial:    --port /dev/ttyUSB0 [--baud 9600]
  WebSocket: --url ws://host/path [--username user]

Settings are read from --config, or peristat.yaml in the working directory
when present. Flags override the file.

For WebSocket authentication, the password is read from the PERISTAT_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.`,
	Version:           "1.0.0",
	SilenceUsage:      true,
	PersistentPreRunE: loadSettings,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logCloser != nil {
			logCloser.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default peristat.yaml if present)")

	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 9600, "Baud rate (serial only)")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	// Protocol flags
	rootCmd.PersistentFlags().IntVarP(&pumpAddress, "address", "a", 1, "Pump address (1-8)")
	rootCmd.PersistentFlags().DurationVar(&discardTimeout, "discard-timeout", 2*time.Second, "Drop a partial reply after this long (0 disables)")
	rootCmd.PersistentFlags().DurationVar(&responseTimeout, "response-timeout", 3*time.Second, "Fail a command with no reply after this long (0 waits forever)")
	rootCmd.PersistentFlags().BoolVar(&reconnect, "reconnect", true, "Reconnect with backoff when the link drops")

	// Ambient flags
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format (text, json)")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	rootCmd.PersistentFlags().StringVar(&tracePath, "trace", "", "Record protocol events to this CBOR file")
}

// loadSettings reads the config file and applies the flags the user set
func loadSettings(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadDefault(configPath)
	if err != nil {
		return err
	}
	applyFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	log, closer, err := logging.Setup(cfg.Log)
	if err != nil {
		return err
	}

	settings = cfg
	logger = log
	logCloser = closer
	return nil
}

func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	set := func(name string, apply func()) {
		if flags.Changed(name) {
			apply()
		}
	}

	set("port", func() { cfg.Link.Port = portName })
	set("baud", func() { cfg.Link.Baud = baudRate })
	set("url", func() { cfg.Link.URL = wsURL })
	set("username", func() { cfg.Link.Username = wsUsername })
	set("no-ssl-verify", func() { cfg.Link.NoSSLVerify = wsNoSSLVerify })
	set("address", func() { cfg.Link.Address = pumpAddress })
	set("discard-timeout", func() { cfg.Link.DiscardTimeout = discardTimeout })
	set("response-timeout", func() { cfg.Link.ResponseTimeout = responseTimeout })
	set("reconnect", func() { cfg.Link.Reconnect = reconnect })
	set("log-level", func() { cfg.Log.Level = logLevel })
	set("log-format", func() { cfg.Log.Format = logFormat })
	set("metrics-addr", func() { cfg.Metrics.Addr = metricsAddr })
	set("trace", func() { cfg.Trace = tracePath })
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
