// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package masterflex

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"
)

// manualClock fires timers only when advanced
type manualClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*manualTimer

	// leaky timers ignore Stop, modelling a callback already in flight
	leaky bool
}

type manualTimer struct {
	clock   *manualClock
	at      time.Time
	fn      func()
	stopped bool
	fired   bool
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTimer{clock: c, at: c.now.Add(d), fn: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *manualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.clock.leaky || t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// Advance moves time forward and runs every timer that came due, in
// deadline order, outside the clock lock
func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*manualTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.at.After(c.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	sort.SliceStable(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
	for _, t := range due {
		t.fn()
	}
}

// Active counts timers that are neither stopped nor fired
func (c *manualClock) Active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// wire records every frame the client writes
type wire struct {
	mu     sync.Mutex
	frames []string
	writes chan string
	err    error
}

func newWire() *wire {
	return &wire{writes: make(chan string, 32)}
}

func (w *wire) Write(p []byte) (int, error) {
	w.mu.Lock()
	err := w.err
	if err == nil {
		w.frames = append(w.frames, string(p))
	}
	w.mu.Unlock()
	if err != nil {
		return 0, err
	}
	w.writes <- string(p)
	return len(p), nil
}

func (w *wire) fail(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.err = err
}

func (w *wire) Frames() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.frames...)
}

// next waits for the next written frame
func (w *wire) next(t *testing.T) string {
	t.Helper()
	select {
	case f := <-w.writes:
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a write")
		return ""
	}
}

// responder answers each written frame by feeding a scripted reply back
// into the client
type responder struct {
	client *Client
	reply  func(frame string) string

	mu     sync.Mutex
	frames []string
}

func (r *responder) Write(p []byte) (int, error) {
	frame := string(p)
	r.mu.Lock()
	r.frames = append(r.frames, frame)
	r.mu.Unlock()
	if answer := r.reply(frame); answer != "" {
		go r.client.Feed([]byte(answer + "\r"))
	}
	return len(p), nil
}

func (r *responder) Frames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.frames...)
}

// eventLog is an Observer that keeps every event
type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) Observe(ev Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) Kinds() []EventKind {
	l.mu.Lock()
	defer l.mu.Unlock()
	kinds := make([]EventKind, 0, len(l.events))
	for _, ev := range l.events {
		kinds = append(kinds, ev.Kind)
	}
	return kinds
}

func (l *eventLog) Count(kind EventKind) int {
	n := 0
	for _, k := range l.Kinds() {
		if k == kind {
			n++
		}
	}
	return n
}

type reply struct {
	result Result
	err    error
}

func invokeAsync(ctx context.Context, fn func(ctx context.Context) (Result, error)) <-chan reply {
	ch := make(chan reply, 1)
	go func() {
		res, err := fn(ctx)
		ch <- reply{res, err}
	}()
	return ch
}

func await(t *testing.T, ch <-chan reply) reply {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a reply")
		return reply{}
	}
}

// connectedClient returns a client attached to a recording wire
func connectedClient(opts ...ClientOption) (*Client, *wire, *eventLog) {
	events := &eventLog{}
	w := newWire()
	c := NewClient(append([]ClientOption{WithObserver(events)}, opts...)...)
	c.Update(LinkEvent{State: LinkConnected, Writer: w, Info: "test"})
	return c, w, events
}

var errBrokenPipe = errors.New("broken pipe")
