// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/Thermoquad/peristat/pkg/masterflex"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const consolePrompt = "mflx# "

var consoleEcho bool

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Interactive command prompt",
	Long: `Send pump commands from an interactive prompt.

Each line is a command word with an optional parameter, for example:

  enable
  status
  speedp 50
  on-time 01:02:03.4
  id 3

A command given a parameter is sent as a set; the same word without one is
sent as a query where the pump supports it. Quote parameters that contain
spaces. Type "help" for the command list and "quit" to leave.

Supports both serial and WebSocket connections.`,
	RunE: runConsole,
}

func init() {
	rootCmd.AddCommand(consoleCmd)
	consoleCmd.Flags().BoolVar(&consoleEcho, "echo", false, "Print every protocol event as it happens")
}

func runConsole(cmd *cobra.Command, args []string) error {
	var extra []masterflex.Observer
	if consoleEcho {
		extra = append(extra, masterflex.ObserverFunc(func(ev masterflex.Event) {
			fmt.Println(masterflex.FormatEvent(ev))
		}))
	}

	s, err := newSession(settings, logger, settings.Link.Reconnect, extra...)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Peristat - Console\n")
	fmt.Printf("Connection: %s\n", s.info)
	fmt.Printf("Pump address: %d\n", settings.Link.Address)
	fmt.Printf("Type \"help\" for commands, \"quit\" to exit\n\n")

	interactive := term.IsTerminal(int(os.Stdin.Fd()))
	return s.run(ctx, func(ctx context.Context) error {
		if err := s.waitReady(ctx); err != nil {
			return err
		}
		return consoleLoop(ctx, s, os.Stdin, os.Stdout, interactive)
	})
}

// consoleLoop executes lines from in until quit, EOF or cancellation
func consoleLoop(ctx context.Context, s *session, in io.Reader, out io.Writer, prompt bool) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		if prompt {
			fmt.Fprint(out, consolePrompt)
		}

		var line string
		var ok bool
		select {
		case <-ctx.Done():
			fmt.Fprintln(out)
			return nil
		case line, ok = <-lines:
			if !ok {
				return nil
			}
		}

		quit, err := execLine(ctx, s.client, s.stats, out, line)
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
		}
		if quit {
			return nil
		}
	}
}

// execLine runs one console line. It reports true when the user asked to
// leave.
func execLine(ctx context.Context, client *masterflex.Client, stats *masterflex.Statistics, out io.Writer, line string) (bool, error) {
	words, err := splitWords(line)
	if err != nil {
		return false, err
	}
	if len(words) == 0 {
		return false, nil
	}

	switch strings.ToLower(words[0]) {
	case "quit", "exit":
		return true, nil
	case "help", "?":
		printConsoleHelp(out)
		return false, nil
	case "stats":
		fmt.Fprint(out, stats.String())
		return false, nil
	}

	command, err := masterflex.ParseCommand(words[0])
	if err != nil {
		return false, err
	}

	res, err := client.Invoke(ctx, command, words[1:]...)
	if err != nil {
		return false, err
	}
	fmt.Fprintln(out, masterflex.FormatResult(res))
	return false, nil
}

func printConsoleHelp(out io.Writer) {
	fmt.Fprintln(out, "Commands:")
	for _, c := range masterflex.Commands() {
		usage := ""
		switch {
		case c.TakesParam() && c.Modes()&masterflex.ModeQuery != 0:
			usage = "[value]"
		case c.TakesParam():
			usage = "<value>"
		}
		fmt.Fprintf(out, "  %-22s %-8s %s\n", c.Name(), usage, c)
	}
	fmt.Fprintf(out, "  %-22s %-8s %s\n", "stats", "", "session statistics")
	fmt.Fprintf(out, "  %-22s %-8s %s\n", "help", "", "this list")
	fmt.Fprintf(out, "  %-22s %-8s %s\n", "quit", "", "leave the console")
}

var errUnterminatedQuote = errors.New("unterminated quote")

// splitWords splits a console line on whitespace. Single or double quotes
// group words and a backslash escapes the next character outside single
// quotes.
func splitWords(line string) ([]string, error) {
	var words []string
	var cur strings.Builder
	inWord := false
	var quote rune

	runes := []rune(line)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case quote != 0:
			switch {
			case r == quote:
				quote = 0
			case r == '\\' && quote == '"' && i+1 < len(runes):
				i++
				cur.WriteRune(runes[i])
			default:
				cur.WriteRune(r)
			}
		case r == '"' || r == '\'':
			quote = r
			inWord = true
		case r == '\\' && i+1 < len(runes):
			i++
			cur.WriteRune(runes[i])
			inWord = true
		case r == ' ' || r == '\t':
			if inWord {
				words = append(words, cur.String())
				cur.Reset()
				inWord = false
			}
		default:
			cur.WriteRune(r)
			inWord = true
		}
	}

	if quote != 0 {
		return nil, errUnterminatedQuote
	}
	if inWord {
		words = append(words, cur.String())
	}
	return words, nil
}
