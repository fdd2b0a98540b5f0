// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Thermoquad/peristat/internal/link"
	"github.com/Thermoquad/peristat/internal/transport"
	"github.com/Thermoquad/peristat/pkg/masterflex"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var monitorRaw bool

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Display inbound frames without sending anything",
	Long: `Passively display every frame arriving on the link.

Nothing is written to the pump, so this is safe to run against a line that
another controller is driving (through a tap or a bridge that fans out).
Acknowledgements and data replies are shown as they arrive, partial frames
are reported when the discard timer drops them.

Supports both serial and WebSocket connections.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().BoolVar(&monitorRaw, "raw", false, "Also print every raw chunk as received")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	tc, err := transportConfig(settings)
	if err != nil {
		return err
	}

	fmt.Printf("Peristat - Monitor\n")
	fmt.Printf("Connection: %s\n", tc.Describe())
	fmt.Printf("Press Ctrl+C to exit\n\n")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mon := newFrameMonitor(os.Stdout, settings.Link.DiscardTimeout, monitorRaw)
	m := &link.Manager{
		Dial:      transport.Dialer(tc),
		Sink:      mon.feed,
		Logger:    logger,
		Reconnect: settings.Link.Reconnect,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return m.Run(gctx)
	})
	g.Go(func() error {
		for ev := range m.Events() {
			mon.link(ev)
		}
		return nil
	})

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

// frameMonitor prints frames assembled from a passive byte stream
type frameMonitor struct {
	out    io.Writer
	framer *masterflex.Framer
	raw    bool
}

func newFrameMonitor(out io.Writer, discard time.Duration, raw bool) *frameMonitor {
	m := &frameMonitor{out: out, raw: raw}
	m.framer = masterflex.NewFramer(
		masterflex.WithFramerTimeout(discard),
		masterflex.WithDiscardHandler(func(partial []byte) {
			fmt.Fprintf(m.out, "[%s] ?? discarded partial frame %s\n", stamp(), masterflex.FormatFrame(partial))
		}),
	)
	return m
}

func (m *frameMonitor) feed(chunk []byte) error {
	if m.raw {
		fmt.Fprintf(m.out, "[%s] .. %s\n", stamp(), masterflex.FormatFrame(chunk))
	}
	for _, frame := range m.framer.Feed(chunk) {
		fmt.Fprintf(m.out, "[%s] << %-10s %s\n", stamp(), classifyFrame(frame), frame)
	}
	return nil
}

func (m *frameMonitor) link(ev masterflex.LinkEvent) {
	m.framer.Reset()
	line := fmt.Sprintf("[%s] -- link %s", stamp(), ev.State)
	if ev.Info != "" {
		line += " (" + ev.Info + ")"
	}
	if ev.Err != nil {
		line += fmt.Sprintf(": %v", ev.Err)
	}
	fmt.Fprintln(m.out, line)
}

// classifyFrame names a reply by its acknowledgement form
func classifyFrame(frame string) string {
	switch frame {
	case masterflex.AckOK:
		return "OK"
	case masterflex.AckInvalid:
		return "INVALID"
	case masterflex.AckNotInSerialMode:
		return "NOT-SERIAL"
	default:
		return "DATA"
	}
}

func stamp() string {
	return time.Now().Format("15:04:05.000")
}
