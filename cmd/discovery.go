// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/Thermoquad/peristat/pkg/masterflex"
	"github.com/spf13/cobra"
)

var (
	discoveryTimeout      int
	discoveryReplyTimeout int
)

var discoveryCmd = &cobra.Command{
	Use:   "discovery",
	Short: "Find pumps on a shared serial line",
	Long: `Send a STATUS query to every pump address (1-8) and list the ones
that answer.

Pumps chained on one RS-232 line each listen on their own address. Each
address gets one query; an address that stays silent for the reply window
is treated as empty. The configured pump address is not changed.

Examples:
  # Scan a daisy chain on a USB adapter
  peristat discovery --port /dev/ttyUSB0

  # Scan through a WebSocket bridge with a shorter per-address window
  peristat discovery --url ws://bridge.local/serial --reply-timeout 300

Exit codes:
  0 - Discovery successful (at least one pump found)
  1 - Discovery failed (no pumps answered)
  2 - Connection error`,
	RunE: runDiscovery,
}

func init() {
	rootCmd.AddCommand(discoveryCmd)
	discoveryCmd.Flags().IntVar(&discoveryTimeout, "timeout", 30, "Timeout in seconds for the whole scan")
	discoveryCmd.Flags().IntVar(&discoveryReplyTimeout, "reply-timeout", 500, "Reply window per address in milliseconds")
}

func runDiscovery(cmd *cobra.Command, args []string) error {
	cfg := *settings
	cfg.Link.ResponseTimeout = time.Duration(discoveryReplyTimeout) * time.Millisecond

	s, err := newSession(&cfg, logger, false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(probeLinkError)
	}

	fmt.Printf("Peristat - Pump Discovery\n")
	fmt.Printf("Connection: %s\n", s.info)
	fmt.Printf("Addresses: %d-%d\n", masterflex.MinAddress, masterflex.MaxAddress)
	fmt.Printf("Reply window: %s\n\n", cfg.Link.ResponseTimeout)

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(discoveryTimeout)*time.Second)
	defer cancel()

	var found []discoveredPump
	var connected bool
	err = s.run(ctx, func(ctx context.Context) error {
		if err := s.waitReady(ctx); err != nil {
			return err
		}
		connected = true
		found, err = scanPumps(ctx, s.client, os.Stdout)
		return err
	})

	code := discoveryExitCode(found, err, connected)

	fmt.Printf("\n--- Discovery summary ---\n")
	fmt.Printf("Pumps found: %d\n", len(found))
	switch code {
	case probeOK:
		if err != nil {
			fmt.Fprintf(os.Stderr, "Scan stopped early: %v\n", err)
		}
	case probeNoReply:
		fmt.Printf("No pumps answered. Check cabling, baud rate and that the pumps are in serial mode.\n")
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

type discoveredPump struct {
	address   int
	motor     string
	direction string
}

// scanPumps queries each address in turn, printing every pump that answers
func scanPumps(ctx context.Context, client *masterflex.Client, out io.Writer) ([]discoveredPump, error) {
	var found []discoveredPump
	for addr := masterflex.MinAddress; addr <= masterflex.MaxAddress; addr++ {
		res, err := client.StatusAt(ctx, addr)
		switch {
		case errors.Is(err, masterflex.ErrTimeout):
			continue
		case err != nil:
			return found, err
		case !res.IsData():
			fmt.Fprintf(out, "Address %d: %s\n", addr, masterflex.FormatResult(res))
			continue
		}

		pump := discoveredPump{address: addr}
		pump.motor, _ = res.GetString(masterflex.FieldMotorStatus)
		pump.direction, _ = res.GetString(masterflex.FieldDirection)
		found = append(found, pump)

		fmt.Fprintf(out, "\nPump found:\n")
		fmt.Fprintf(out, "  Address: %d\n", pump.address)
		fmt.Fprintf(out, "  Motor: %s\n", pump.motor)
		fmt.Fprintf(out, "  Direction: %s\n", pump.direction)
	}
	return found, nil
}

func discoveryExitCode(found []discoveredPump, err error, connected bool) int {
	switch {
	case len(found) > 0:
		return probeOK
	case !connected:
		return probeLinkError
	case errors.Is(err, masterflex.ErrNotConnected), errors.Is(err, masterflex.ErrLinkLost):
		return probeLinkError
	default:
		return probeNoReply
	}
}
