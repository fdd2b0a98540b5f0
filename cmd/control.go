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

	"github.com/Thermoquad/peristat/pkg/masterflex"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

var controlCmd = &cobra.Command{
	Use:   "control",
	Short: "Interactive TUI for controlling a pump",
	Long: `Control a Masterflex pump via an interactive terminal UI.

Features:
  - Status panel polled every second (motor, direction, speed)
  - Quick actions (start, stop, direction, enable, disable)
  - Command line accepting any console command
  - Statistics bar
  - Event log of every command, reply and link change
  - Automatic reconnection on connection loss

Tab switches between the quick action list and the command line.

Supports both serial and WebSocket connections.`,
	RunE: runControl,
}

func init() {
	rootCmd.AddCommand(controlCmd)
}

// eventForwarder hands protocol events to the TUI without blocking the
// client. Events are dropped while the buffer is full.
type eventForwarder struct {
	events chan masterflex.Event
}

func newEventForwarder() *eventForwarder {
	return &eventForwarder{events: make(chan masterflex.Event, 256)}
}

func (f *eventForwarder) Observe(ev masterflex.Event) {
	select {
	case f.events <- ev:
	default:
	}
}

// pump sends batches to p until ctx is done
func (f *eventForwarder) pump(ctx context.Context, p *tea.Program) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-f.events:
			batch := controlEventBatchMsg{ev}
		drain:
			for {
				select {
				case ev := <-f.events:
					batch = append(batch, ev)
				default:
					break drain
				}
			}
			p.Send(batch)
		}
	}
}

func runControl(cmd *cobra.Command, args []string) error {
	fwd := newEventForwarder()
	s, err := newSession(settings, logger, settings.Link.Reconnect, fwd)
	if err != nil {
		return err
	}

	// The alt screen owns the terminal; route logs away from it unless a
	// file was configured
	if settings.Log.Output != "file" {
		logger.SetOutput(io.Discard)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return s.run(ctx, func(ctx context.Context) error {
		m := initialControlModel(ctx, s.client, s.stats, s.info)
		p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))

		go fwd.pump(ctx, p)

		if _, err := p.Run(); err != nil && ctx.Err() == nil {
			return fmt.Errorf("TUI error: %v", err)
		}
		return nil
	})
}
