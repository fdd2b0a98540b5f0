// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package link owns the pump connection: it opens the transport, pumps
// inbound bytes into a sink and republishes connection state as
// masterflex.LinkEvents, reconnecting with backoff when the link drops.
package link

import (
	"context"
	"sync"
	"time"

	"github.com/Thermoquad/peristat/internal/transport"
	"github.com/Thermoquad/peristat/pkg/masterflex"
	"github.com/sirupsen/logrus"
)

// Reconnect backoff defaults
const (
	DefaultMinBackoff = 1 * time.Second
	DefaultMaxBackoff = 30 * time.Second
)

// DialFunc opens a connection and describes it
type DialFunc func(ctx context.Context) (transport.Conn, string, error)

// Manager handles connection lifecycle and reconnection.
//
// Run publishes LinkConnecting before each attempt, LinkConnected with the
// connection as Writer once it is open, and LinkDisconnected with the cause
// when the attempt or the read loop fails. The event channel is closed when
// Run returns.
type Manager struct {
	Dial       DialFunc
	Sink       func(chunk []byte) error
	Logger     logrus.FieldLogger
	MinBackoff time.Duration
	MaxBackoff time.Duration
	Reconnect  bool

	once   sync.Once
	events chan masterflex.LinkEvent
}

func (m *Manager) init() {
	m.once.Do(func() {
		m.events = make(chan masterflex.LinkEvent, 16)
		if m.Logger == nil {
			m.Logger = logrus.StandardLogger()
		}
		if m.MinBackoff <= 0 {
			m.MinBackoff = DefaultMinBackoff
		}
		if m.MaxBackoff < m.MinBackoff {
			m.MaxBackoff = DefaultMaxBackoff
			if m.MaxBackoff < m.MinBackoff {
				m.MaxBackoff = m.MinBackoff
			}
		}
	})
}

// Events returns the link state channel
func (m *Manager) Events() <-chan masterflex.LinkEvent {
	m.init()
	return m.events
}

// Run connects and reads until ctx is done, or until the first failure when
// Reconnect is off
func (m *Manager) Run(ctx context.Context) error {
	m.init()
	defer close(m.events)

	backoff := m.MinBackoff
	for {
		m.publish(ctx, masterflex.LinkEvent{State: masterflex.LinkConnecting})

		conn, info, err := m.Dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			m.Logger.WithError(err).WithField("retry_in", backoff).Warn("connect failed")
			m.publish(ctx, masterflex.LinkEvent{State: masterflex.LinkDisconnected, Err: err})
			if !m.Reconnect {
				return err
			}
		} else {
			backoff = m.MinBackoff
			log := m.Logger.WithField("link", info)
			log.Info("connected")
			m.publish(ctx, masterflex.LinkEvent{State: masterflex.LinkConnected, Writer: conn, Info: info})

			err = m.readLoop(ctx, conn)
			conn.Close()

			if ctx.Err() != nil {
				m.publish(ctx, masterflex.LinkEvent{State: masterflex.LinkDisconnected, Info: info})
				return ctx.Err()
			}
			log.WithError(err).Warn("connection lost")
			m.publish(ctx, masterflex.LinkEvent{State: masterflex.LinkDisconnected, Info: info, Err: err})
			if !m.Reconnect {
				return err
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		// Exponential backoff
		backoff *= 2
		if backoff > m.MaxBackoff {
			backoff = m.MaxBackoff
		}
	}
}

// readLoop feeds the sink until a read fails. Closing the connection on
// cancellation unblocks the pending Read.
func (m *Manager) readLoop(ctx context.Context, conn transport.Conn) error {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	buf := make([]byte, 256)
	for {
		n, err := conn.Read(buf)
		if n > 0 && m.Sink != nil {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			if sinkErr := m.Sink(chunk); sinkErr != nil {
				m.Logger.WithError(sinkErr).Debug("sink rejected frame")
			}
		}
		if err != nil {
			return err
		}
	}
}

// publish delivers ev unless ctx ends first
func (m *Manager) publish(ctx context.Context, ev masterflex.LinkEvent) {
	select {
	case m.events <- ev:
	case <-ctx.Done():
		// Best effort so followers still learn about the final disconnect
		select {
		case m.events <- ev:
		default:
		}
	}
}
