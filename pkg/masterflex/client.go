// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package masterflex

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Client pairs each outgoing command with the next inbound frame.
//
// The wire carries no request identifiers, so at most one command is in
// flight. Concurrent callers queue on a single slot and are served in
// arrival order. Inbound bytes arrive through Feed; the connection itself is
// owned by whoever publishes LinkEvents to Update or Follow.
type Client struct {
	clock           Clock
	framer          *Framer
	log             logrus.FieldLogger
	observer        Observer
	responseTimeout time.Duration
	discardTimeout  time.Duration

	slot chan struct{}

	mu      sync.Mutex
	state   LinkState
	info    string
	writer  io.Writer
	pending *pending
	address int
}

type outcome struct {
	result Result
	err    error
}

// pending is the single in-flight command. done is buffered so the resolver
// never blocks on a waiter that already left.
type pending struct {
	req  Request
	sent time.Time
	done chan outcome
}

// ClientOption configures a Client
type ClientOption func(*Client)

// WithAddress sets the pump address (1-8)
func WithAddress(address int) ClientOption {
	return func(c *Client) {
		c.address = address
	}
}

// WithClock replaces the system clock
func WithClock(clock Clock) ClientOption {
	return func(c *Client) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithDiscardTimeout sets how long a partial frame may wait for its
// delimiter. Zero disables discarding.
func WithDiscardTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.discardTimeout = d
	}
}

// WithResponseTimeout bounds the wait for a reply. Zero waits until the
// context is done or the link drops.
func WithResponseTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.responseTimeout = d
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(log logrus.FieldLogger) ClientOption {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// WithObserver receives every protocol event
func WithObserver(obs Observer) ClientOption {
	return func(c *Client) {
		c.observer = obs
	}
}

// NewClient creates a disconnected client
func NewClient(opts ...ClientOption) *Client {
	quiet := logrus.New()
	quiet.SetOutput(io.Discard)

	c := &Client{
		clock:           SystemClock(),
		log:             quiet,
		responseTimeout: DefaultResponseTimeout,
		discardTimeout:  DefaultDiscardTimeout,
		slot:            make(chan struct{}, 1),
		address:         DefaultAddress,
	}
	for _, o := range opts {
		o(c)
	}

	c.framer = NewFramer(
		WithFramerClock(c.clock),
		WithFramerTimeout(c.discardTimeout),
		WithDiscardHandler(c.onDiscard),
	)
	return c
}

// Address returns the pump address commands are sent to
func (c *Client) Address() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.address
}

// State returns the last published link state
func (c *Client) State() LinkState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connected reports whether a writer is attached
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == LinkConnected && c.writer != nil
}

// Pending returns the command awaiting a reply, if any
func (c *Client) Pending() (Command, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == nil {
		return 0, false
	}
	return c.pending.req.Command, true
}

// Invoke validates args, sends cmd and waits for its reply.
//
// A rejected parameter returns an Invalid result with a nil error and
// nothing is written. Link, timeout and cancellation failures return an
// error and a zero Result.
func (c *Client) Invoke(ctx context.Context, cmd Command, args ...string) (Result, error) {
	req, invalid := NewRequest(cmd, args...)
	if invalid != nil {
		c.log.WithFields(logrus.Fields{
			"command": cmd.String(),
			"error":   invalid.Error,
		}).Debug("parameter rejected")
		c.notify(Event{Kind: EventRejected, Command: cmd, Result: invalid})
		return *invalid, nil
	}
	return c.Do(ctx, req)
}

// Do sends an already resolved request
func (c *Client) Do(ctx context.Context, req Request) (Result, error) {
	return c.do(ctx, req, 0)
}

// do sends req to address, or to the client address when address is 0
func (c *Client) do(ctx context.Context, req Request, address int) (Result, error) {
	if !c.Connected() {
		return Result{}, ErrNotConnected
	}

	select {
	case c.slot <- struct{}{}:
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
	defer func() { <-c.slot }()

	c.mu.Lock()
	w := c.writer
	if c.state != LinkConnected || w == nil {
		c.mu.Unlock()
		return Result{}, ErrNotConnected
	}
	if address == 0 {
		address = c.address
	}
	frame, err := EncodeRequest(address, req)
	if err != nil {
		c.mu.Unlock()
		return Result{}, err
	}
	p := &pending{req: req, sent: c.clock.Now(), done: make(chan outcome, 1)}
	c.pending = p
	c.mu.Unlock()

	log := c.log.WithFields(logrus.Fields{
		"command": req.Command.String(),
		"frame":   strconv.Quote(string(frame)),
	})

	// Announced before the write so observers never see the reply first
	log.Debug("sending")
	c.notify(Event{Kind: EventSent, Command: req.Command, Frame: strings.TrimSpace(string(frame))})

	if _, err := w.Write(frame); err != nil {
		c.clearPending(p)
		log.WithError(err).Warn("write failed")
		return Result{}, fmt.Errorf("%w: write %s: %w", ErrLinkLost, req.Command, err)
	}

	var expired <-chan struct{}
	if c.responseTimeout > 0 {
		ch := make(chan struct{})
		t := c.clock.AfterFunc(c.responseTimeout, func() { close(ch) })
		defer t.Stop()
		expired = ch
	}

	var out outcome
	select {
	case out = <-p.done:
	case <-ctx.Done():
		if !c.clearPending(p) {
			out = <-p.done
			break
		}
		log.Debug("canceled")
		c.notify(Event{Kind: EventCanceled, Command: req.Command, Err: ctx.Err()})
		return Result{}, ctx.Err()
	case <-expired:
		if !c.clearPending(p) {
			out = <-p.done
			break
		}
		log.Warn("no reply")
		c.notify(Event{Kind: EventTimeout, Command: req.Command, Err: ErrTimeout})
		return Result{}, ErrTimeout
	}

	if out.err == nil && req.Command == CmdSetAddress && out.result.Success() {
		if addr, err := strconv.Atoi(req.Payload); err == nil {
			c.mu.Lock()
			c.address = addr
			c.mu.Unlock()
			c.log.WithField("address", addr).Info("pump address changed")
		}
	}
	return out.result, out.err
}

// clearPending releases the slot owner's request. It reports false when a
// reply or link loss already resolved p.
func (c *Client) clearPending(p *pending) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending != p {
		return false
	}
	c.pending = nil
	return true
}

// Feed is the sink for inbound bytes. Every complete frame resolves the
// pending command; frames with nothing pending are reported as
// ErrUnsolicited and otherwise ignored.
func (c *Client) Feed(chunk []byte) error {
	var errs []error
	for _, frame := range c.framer.Feed(chunk) {
		if err := c.deliver(frame); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *Client) deliver(frame string) error {
	c.mu.Lock()
	p := c.pending
	c.pending = nil
	c.mu.Unlock()

	if p == nil {
		c.log.WithField("frame", strconv.Quote(frame)).Warn("unsolicited frame")
		c.notify(Event{Kind: EventUnsolicited, Frame: frame, Err: ErrUnsolicited})
		return fmt.Errorf("%w: %q", ErrUnsolicited, frame)
	}

	result := Decode(p.req, frame)
	latency := c.clock.Now().Sub(p.sent)

	c.log.WithFields(logrus.Fields{
		"command": p.req.Command.String(),
		"frame":   strconv.Quote(frame),
		"result":  result.Status,
		"latency": latency,
	}).Debug("received")
	c.notify(Event{
		Kind:    EventReceived,
		Command: p.req.Command,
		Frame:   frame,
		Result:  &result,
		Latency: latency,
	})

	p.done <- outcome{result: result}
	return nil
}

func (c *Client) onDiscard(partial []byte) {
	frame := strings.ToValidUTF8(string(partial), "")
	c.log.WithField("bytes", len(partial)).Warn("partial frame discarded")
	c.notify(Event{Kind: EventDiscarded, Frame: frame})
}

// Update applies a connection state change. Anything other than
// LinkConnected detaches the writer and fails the pending command with
// ErrLinkLost. The framer is reset on every transition.
func (c *Client) Update(ev LinkEvent) {
	c.mu.Lock()
	prev := c.state
	c.state = ev.State
	var lost *pending
	if ev.State == LinkConnected {
		c.writer = ev.Writer
		c.info = ev.Info
	} else {
		c.writer = nil
		lost = c.pending
		c.pending = nil
	}
	c.mu.Unlock()

	c.framer.Reset()

	log := c.log.WithFields(logrus.Fields{
		"state": ev.State.String(),
		"from":  prev.String(),
	})
	if ev.Info != "" {
		log = log.WithField("link", ev.Info)
	}
	switch ev.State {
	case LinkConnected:
		log.Info("link connected")
	case LinkDisconnected:
		if ev.Err != nil {
			log = log.WithError(ev.Err)
		}
		log.Warn("link down")
	default:
		log.Debug("link state")
	}
	c.notify(Event{Kind: EventLink, State: ev.State, Err: ev.Err})

	if lost != nil {
		err := ErrLinkLost
		if ev.Err != nil {
			err = fmt.Errorf("%w: %w", ErrLinkLost, ev.Err)
		}
		lost.done <- outcome{err: err}
	}
}

// Follow applies link events until ctx is done. A closed channel is treated
// as a final disconnect.
func (c *Client) Follow(ctx context.Context, events <-chan LinkEvent) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				c.Update(LinkEvent{State: LinkDisconnected})
				return nil
			}
			c.Update(ev)
		}
	}
}

// LinkInfo describes the attached link, if any
func (c *Client) LinkInfo() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.info
}

func (c *Client) notify(ev Event) {
	if c.observer == nil {
		return
	}
	if ev.Time.IsZero() {
		ev.Time = c.clock.Now()
	}
	c.observer.Observe(ev)
}
