// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/Thermoquad/peristat/pkg/masterflex"
	"github.com/spf13/cobra"
)

// Probe exit codes
const (
	probeOK        = 0
	probeNoReply   = 1
	probeLinkError = 2
)

var probeTimeout int

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Test the link by asking the pump for its status",
	Long: `Send a STATUS query and wait for a decodable reply until timeout.

This command connects to a serial port or WebSocket, sends one STATUS query
to the configured pump address and checks that a data reply comes back.

Exit codes:
  0 - Status reply received before timeout
  1 - Timeout, or the pump answered with something other than status data
  2 - Connection error

Useful for checking cabling, baud rate and pump address before a run.`,
	RunE: runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)
	probeCmd.Flags().IntVar(&probeTimeout, "timeout", 10, "Timeout in seconds for connecting and the reply")
}

func runProbe(cmd *cobra.Command, args []string) error {
	s, err := newSession(settings, logger, false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(probeLinkError)
	}

	fmt.Printf("Peristat - Probe\n")
	fmt.Printf("Connection: %s\n", s.info)
	fmt.Printf("Pump address: %d\n", settings.Link.Address)
	fmt.Printf("Timeout: %d seconds\n", probeTimeout)
	fmt.Printf("Querying status...\n\n")

	timeout := time.Duration(probeTimeout) * time.Second
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var res masterflex.Result
	var connected bool
	err = s.run(ctx, func(ctx context.Context) error {
		if err := s.waitReady(ctx); err != nil {
			return err
		}
		connected = true
		status, err := s.client.Status(ctx)
		res = status
		return err
	})

	code := probeExitCode(res, err, connected)
	switch code {
	case probeOK:
		fmt.Printf("SUCCESS: %s\n", masterflex.FormatResult(res))
		if stats := s.stats.Snapshot(); stats.Replies > 0 {
			fmt.Printf("  Round trip: %s\n", stats.MaxLatency.Round(time.Millisecond))
		}
	case probeNoReply:
		if err != nil {
			fmt.Fprintf(os.Stderr, "NO REPLY: %v\n", err)
		} else {
			fmt.Fprintf(os.Stderr, "UNEXPECTED REPLY: %s\n", masterflex.FormatResult(res))
		}
	default:
		if err == nil {
			err = errors.New("link not established")
		}
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
	}

	logCloser.Close()
	os.Exit(code)
	return nil
}

// probeExitCode classifies the probe outcome
func probeExitCode(res masterflex.Result, err error, connected bool) int {
	switch {
	case !connected:
		return probeLinkError
	case errors.Is(err, masterflex.ErrNotConnected), errors.Is(err, masterflex.ErrLinkLost):
		return probeLinkError
	case err != nil:
		return probeNoReply
	case res.IsData():
		return probeOK
	default:
		return probeNoReply
	}
}
