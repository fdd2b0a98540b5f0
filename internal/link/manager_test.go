// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Thermoquad/peristat/internal/transport"
	"github.com/Thermoquad/peristat/pkg/masterflex"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePump answers status queries over an in-memory pipe
type fakePump struct {
	r  *io.PipeReader
	w  *io.PipeWriter
	mu sync.Mutex
}

func newFakePump() *fakePump {
	r, w := io.Pipe()
	return &fakePump{r: r, w: w}
}

func (p *fakePump) Read(b []byte) (int, error) {
	return p.r.Read(b)
}

func (p *fakePump) Write(b []byte) (int, error) {
	frame := string(b)
	go func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		switch {
		case strings.HasSuffix(frame, "RC\r"):
			// Reply in two chunks to exercise reassembly
			p.w.Write([]byte("1,1"))
			p.w.Write([]byte(",0\r"))
		default:
			p.w.Write([]byte("*\r"))
		}
	}()
	return len(b), nil
}

func (p *fakePump) Close() error {
	p.w.CloseWithError(io.ErrClosedPipe)
	return p.r.Close()
}

// drop simulates the cable being pulled
func (p *fakePump) drop(err error) {
	p.w.CloseWithError(err)
}

func quietLogger() logrus.FieldLogger {
	log, _ := test.NewNullLogger()
	return log
}

func nextEvent(t *testing.T, events <-chan masterflex.LinkEvent) masterflex.LinkEvent {
	t.Helper()
	select {
	case ev, ok := <-events:
		require.True(t, ok, "event channel closed")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a link event")
		return masterflex.LinkEvent{}
	}
}

func TestManager_PublishesLifecycle(t *testing.T) {
	pump := newFakePump()
	var mu sync.Mutex
	var received []byte

	m := &Manager{
		Dial: func(context.Context) (transport.Conn, string, error) {
			return pump, "fake", nil
		},
		Sink: func(chunk []byte) error {
			mu.Lock()
			defer mu.Unlock()
			received = append(received, chunk...)
			return nil
		},
		Logger: quietLogger(),
	}
	events := m.Events()

	done := make(chan error, 1)
	go func() { done <- m.Run(context.Background()) }()

	assert.Equal(t, masterflex.LinkConnecting, nextEvent(t, events).State)
	connected := nextEvent(t, events)
	require.Equal(t, masterflex.LinkConnected, connected.State)
	assert.Equal(t, "fake", connected.Info)
	require.NotNil(t, connected.Writer)

	_, err := connected.Writer.Write([]byte("1RC\r"))
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return string(received) == "1,1,0\r"
	}, time.Second, time.Millisecond)

	cause := errors.New("cable pulled")
	pump.drop(cause)

	lost := nextEvent(t, events)
	assert.Equal(t, masterflex.LinkDisconnected, lost.State)
	assert.ErrorIs(t, lost.Err, cause)
	assert.ErrorIs(t, <-done, cause)

	_, open := <-events
	assert.False(t, open, "event channel left open after Run returned")
}

func TestManager_ReconnectsWithBackoff(t *testing.T) {
	var mu sync.Mutex
	var attempts []time.Time
	pump := newFakePump()

	m := &Manager{
		Dial: func(context.Context) (transport.Conn, string, error) {
			mu.Lock()
			defer mu.Unlock()
			attempts = append(attempts, time.Now())
			if len(attempts) < 3 {
				return nil, "", errors.New("no such device")
			}
			return pump, "fake", nil
		},
		Logger:     quietLogger(),
		MinBackoff: 10 * time.Millisecond,
		MaxBackoff: 15 * time.Millisecond,
		Reconnect:  true,
	}
	events := m.Events()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	want := []masterflex.LinkState{
		masterflex.LinkConnecting, masterflex.LinkDisconnected,
		masterflex.LinkConnecting, masterflex.LinkDisconnected,
		masterflex.LinkConnecting, masterflex.LinkConnected,
	}
	for i, state := range want {
		ev := nextEvent(t, events)
		require.Equal(t, state, ev.State, "event %d", i)
		if state == masterflex.LinkDisconnected {
			assert.EqualError(t, ev.Err, "no such device")
		}
	}

	mu.Lock()
	require.Len(t, attempts, 3)
	assert.GreaterOrEqual(t, attempts[1].Sub(attempts[0]), 10*time.Millisecond)
	assert.GreaterOrEqual(t, attempts[2].Sub(attempts[1]), 15*time.Millisecond)
	mu.Unlock()

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestManager_NoReconnectReturnsDialError(t *testing.T) {
	m := &Manager{
		Dial: func(context.Context) (transport.Conn, string, error) {
			return nil, "", errors.New("permission denied")
		},
		Logger: quietLogger(),
	}
	events := m.Events()

	err := m.Run(context.Background())
	assert.EqualError(t, err, "permission denied")

	assert.Equal(t, masterflex.LinkConnecting, nextEvent(t, events).State)
	assert.Equal(t, masterflex.LinkDisconnected, nextEvent(t, events).State)
}

func TestManager_DrivesClient(t *testing.T) {
	pump := newFakePump()
	client := masterflex.NewClient(masterflex.WithLogger(quietLogger()))

	m := &Manager{
		Dial: func(context.Context) (transport.Conn, string, error) {
			return pump, "fake", nil
		},
		Sink:      client.Feed,
		Logger:    quietLogger(),
		Reconnect: true,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runDone := make(chan error, 1)
	followDone := make(chan error, 1)
	go func() { runDone <- m.Run(ctx) }()
	go func() { followDone <- client.Follow(ctx, m.Events()) }()

	require.Eventually(t, client.Connected, 2*time.Second, time.Millisecond)

	res, err := client.Status(ctx)
	require.NoError(t, err)
	motor, _ := res.GetString(masterflex.FieldMotorStatus)
	assert.Equal(t, "running", motor)

	res, err = client.Start(ctx)
	require.NoError(t, err)
	assert.True(t, res.Success())

	cancel()
	assert.ErrorIs(t, <-runDone, context.Canceled)
	<-followDone
}
