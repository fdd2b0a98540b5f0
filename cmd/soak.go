// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/Thermoquad/peristat/pkg/masterflex"
	"github.com/spf13/cobra"
)

var (
	showAll       bool
	statsInterval int
	soakInterval  int
	soakCount     int
	soakSpeed     bool
)

var soakCmd = &cobra.Command{
	Use:   "soak",
	Short: "Poll the pump continuously and report link anomalies",
	Long: `Send STATUS queries at a fixed interval and track every anomaly with statistics.

This command exercises the link for as long as it runs and detects:
  - Reply timeouts and replies outside the response window
  - Error acknowledgements (invalid command, pump not in serial mode)
  - Malformed replies and partial frames discarded by the framer
  - Connection loss and reconnection

By default, only anomalies are displayed. Use --show-all to display every
exchange too.

Periodic statistics summaries are displayed at a configurable interval, and a
final summary is printed on exit.`,
	RunE: runSoak,
}

func init() {
	rootCmd.AddCommand(soakCmd)
	soakCmd.Flags().BoolVar(&showAll, "show-all", false, "Show all exchanges (not just anomalies)")
	soakCmd.Flags().IntVar(&statsInterval, "stats-interval", 10, "Statistics update interval (seconds)")
	soakCmd.Flags().IntVar(&soakInterval, "interval", 250, "Delay between queries (milliseconds)")
	soakCmd.Flags().IntVar(&soakCount, "count", 0, "Number of polls before stopping (0 runs until interrupted)")
	soakCmd.Flags().BoolVar(&soakSpeed, "speed", false, "Also query the speed setting on every poll")
}

func runSoak(cmd *cobra.Command, args []string) error {
	reporter := newSoakReporter(os.Stdout, showAll)
	s, err := newSession(settings, logger, settings.Link.Reconnect, reporter)
	if err != nil {
		return err
	}

	fmt.Printf("Peristat - Soak Test\n")
	fmt.Printf("Connection: %s\n", s.info)
	fmt.Printf("Poll interval: %d ms\n", soakInterval)
	fmt.Printf("Statistics interval: %d seconds\n", statsInterval)
	if showAll {
		fmt.Printf("Mode: All exchanges\n")
	} else {
		fmt.Printf("Mode: Anomalies only\n")
	}
	fmt.Printf("Press Ctrl+C to exit\n\n")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = s.run(ctx, func(ctx context.Context) error {
		if err := s.waitReady(ctx); err != nil {
			return err
		}
		return soakLoop(ctx, s.client, s.stats, reporter, soakOptions{
			interval:      time.Duration(soakInterval) * time.Millisecond,
			statsInterval: time.Duration(statsInterval) * time.Second,
			count:         soakCount,
			speed:         soakSpeed,
		})
	})

	reporter.printf("\n--- Soak summary ---\n")
	reporter.printf("Polls: %d\n", reporter.polls())
	reporter.printf("Anomalies: %d\n", reporter.anomalies())
	s.stats.CalculateRates()
	reporter.printf("%s", s.stats.String())
	return err
}

type soakOptions struct {
	interval      time.Duration
	statsInterval time.Duration
	count         int
	speed         bool
}

// soakLoop polls until ctx is done or opts.count polls have completed.
// Poll failures are anomalies, not errors; only a canceled context ends
// the loop early.
func soakLoop(ctx context.Context, client *masterflex.Client, stats *masterflex.Statistics, r *soakReporter, opts soakOptions) error {
	var statsC <-chan time.Time
	if opts.statsInterval > 0 {
		statsTicker := time.NewTicker(opts.statsInterval)
		defer statsTicker.Stop()
		statsC = statsTicker.C
	}

	for n := 0; opts.count == 0 || n < opts.count; n++ {
		r.countPoll()
		if _, err := client.Status(ctx); err != nil && ctx.Err() != nil {
			return ctx.Err()
		}
		if opts.speed {
			if _, err := client.SpeedPercent(ctx); err != nil && ctx.Err() != nil {
				return ctx.Err()
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-statsC:
			stats.CalculateRates()
			r.printf("\n%s\n", stats.String())
		case <-time.After(opts.interval):
		}
	}
	return nil
}

// soakReporter prints anomalies (and with showAll every exchange) as the
// client reports them
type soakReporter struct {
	mu       sync.Mutex
	out      io.Writer
	showAll  bool
	nPolls   int
	nAnomaly int
}

func newSoakReporter(out io.Writer, showAll bool) *soakReporter {
	return &soakReporter{out: out, showAll: showAll}
}

func (r *soakReporter) Observe(ev masterflex.Event) {
	anomaly := isAnomaly(ev)

	r.mu.Lock()
	defer r.mu.Unlock()
	if anomaly {
		r.nAnomaly++
		fmt.Fprintf(r.out, "\033[1;31mANOMALY\033[0m %s\n", masterflex.FormatEvent(ev))
		return
	}
	if r.showAll {
		fmt.Fprintln(r.out, masterflex.FormatEvent(ev))
	}
}

// isAnomaly reports whether ev indicates a problem on the link
func isAnomaly(ev masterflex.Event) bool {
	switch ev.Kind {
	case masterflex.EventTimeout, masterflex.EventRejected,
		masterflex.EventUnsolicited, masterflex.EventDiscarded:
		return true
	case masterflex.EventReceived:
		return ev.Result != nil && !ev.Result.Success() && !ev.Result.IsData()
	case masterflex.EventLink:
		return ev.State == masterflex.LinkDisconnected && ev.Err != nil
	default:
		return false
	}
}

func (r *soakReporter) printf(format string, args ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.out, format, args...)
}

func (r *soakReporter) countPoll() {
	r.mu.Lock()
	r.nPolls++
	r.mu.Unlock()
}

func (r *soakReporter) polls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.nPolls
}

func (r *soakReporter) anomalies() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.nAnomaly
}
