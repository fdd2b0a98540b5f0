// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/Thermoquad/peristat/pkg/masterflex"
	"github.com/spf13/cobra"
)

var traceKinds []string

var traceCmd = &cobra.Command{
	Use:   "trace <file>",
	Short: "Print a recorded protocol trace",
	Long: `Print a CBOR trace file written with --trace.

Each record is shown in the same form as the console's --echo output.
Use --kind to limit the output to some event kinds (sent, received,
rejected, timeout, canceled, unsolicited, discarded, link).`,
	Args: cobra.ExactArgs(1),
	RunE: runTrace,
}

func init() {
	rootCmd.AddCommand(traceCmd)
	traceCmd.Flags().StringSliceVar(&traceKinds, "kind", nil, "Only show these event kinds")
}

func runTrace(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	n, err := printTrace(os.Stdout, f, traceKinds)
	if err != nil {
		return fmt.Errorf("trace %s: record %d: %w", args[0], n+1, err)
	}
	return nil
}

// printTrace formats every record matching kinds and returns how many
// records were read
func printTrace(w io.Writer, r io.Reader, kinds []string) (int, error) {
	want := make(map[string]bool, len(kinds))
	for _, k := range kinds {
		want[k] = true
	}

	n := 0
	err := masterflex.ReadTrace(r, func(rec masterflex.TraceRecord) error {
		n++
		if len(want) > 0 && !want[rec.Kind] {
			return nil
		}
		_, err := fmt.Fprintln(w, masterflex.FormatTraceRecord(rec))
		return err
	})
	return n, err
}
