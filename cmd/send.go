// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/Thermoquad/peristat/pkg/masterflex"
	"github.com/fxamacker/cbor/v2"
	"github.com/spf13/cobra"
)

var sendOutput string

var sendCmd = &cobra.Command{
	Use:   "send <command> [value]",
	Short: "Send one command and print the reply",
	Long: `Send a single pump command and print the decoded reply.

The command word is the console name (see "peristat console" help) or the
protocol label. A value turns a dual query/set command into a set.

Output formats:
  text - one line, status followed by fields
  json - the result as a JSON object
  cbor - the result as a CBOR map on stdout

Examples:
  peristat send status --port /dev/ttyUSB0
  peristat send speedp 25 --url ws://bridge/pump -o json`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runSend,
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().StringVarP(&sendOutput, "output", "o", "text", "Output format (text, json, cbor)")
}

func runSend(cmd *cobra.Command, args []string) error {
	command, err := masterflex.ParseCommand(args[0])
	if err != nil {
		return err
	}
	switch sendOutput {
	case "text", "json", "cbor":
	default:
		return fmt.Errorf("unknown output format %q", sendOutput)
	}

	s, err := newSession(settings, logger, false)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return s.run(ctx, func(ctx context.Context) error {
		if err := s.waitReady(ctx); err != nil {
			return err
		}
		res, err := s.client.Invoke(ctx, command, args[1:]...)
		if err != nil {
			return err
		}
		return writeResult(os.Stdout, res, sendOutput)
	})
}

// writeResult renders res in the requested output format
func writeResult(w io.Writer, res masterflex.Result, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	case "cbor":
		return cbor.NewEncoder(w).Encode(res)
	default:
		_, err := fmt.Fprintln(w, masterflex.FormatResult(res))
		return err
	}
}
