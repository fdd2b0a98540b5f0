// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Thermoquad/peristat/pkg/masterflex"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSoakLoop(t *testing.T) {
	var out bytes.Buffer
	reporter := newSoakReporter(&out, false)
	stats := masterflex.NewStatistics()
	c := masterflex.NewClient(masterflex.WithObserver(masterflex.Observers(stats, reporter)))
	pump := &scriptedPump{client: c, replies: map[string]string{
		"1RC\r": "1,1,0",
		"1S\r":  "~",
	}}
	c.Update(masterflex.LinkEvent{State: masterflex.LinkConnected, Writer: pump, Info: "test"})

	err := soakLoop(context.Background(), c, stats, reporter, soakOptions{
		interval: time.Millisecond,
		count:    2,
		speed:    true,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"1RC\r", "1S\r", "1RC\r", "1S\r"}, pump.frames)
	assert.Equal(t, 2, reporter.polls())
	assert.Equal(t, 2, reporter.anomalies())
	assert.Equal(t, 2, strings.Count(out.String(), "ANOMALY"))
	assert.Equal(t, uint64(4), stats.Snapshot().Sent)
}

func TestSoakLoop_StopsOnCancel(t *testing.T) {
	c, stats, _ := newConsoleClient(t, nil)
	reporter := newSoakReporter(&bytes.Buffer{}, false)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := soakLoop(ctx, c, stats, reporter, soakOptions{interval: time.Hour})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSoakReporter_ShowAll(t *testing.T) {
	var out bytes.Buffer
	r := newSoakReporter(&out, true)

	r.Observe(masterflex.Event{Kind: masterflex.EventSent, Command: masterflex.CmdStatus, Frame: "1RC"})
	r.Observe(masterflex.Event{Kind: masterflex.EventLink, State: masterflex.LinkConnected})
	assert.Equal(t, 0, r.anomalies())
	assert.Equal(t, 2, strings.Count(out.String(), "\n"))

	r.Observe(masterflex.Event{Kind: masterflex.EventLink, State: masterflex.LinkDisconnected, Err: errors.New("eof")})
	assert.Equal(t, 1, r.anomalies())
	assert.Contains(t, out.String(), "ANOMALY")
}

func TestIsAnomaly(t *testing.T) {
	ok := masterflex.Result{Status: masterflex.StatusOK}
	data := masterflex.Result{Status: masterflex.StatusData}
	invalid := masterflex.Result{Status: masterflex.StatusInvalid}

	tests := []struct {
		name string
		ev   masterflex.Event
		want bool
	}{
		{"sent", masterflex.Event{Kind: masterflex.EventSent}, false},
		{"ack", masterflex.Event{Kind: masterflex.EventReceived, Result: &ok}, false},
		{"data", masterflex.Event{Kind: masterflex.EventReceived, Result: &data}, false},
		{"invalid", masterflex.Event{Kind: masterflex.EventReceived, Result: &invalid}, true},
		{"timeout", masterflex.Event{Kind: masterflex.EventTimeout}, true},
		{"unsolicited", masterflex.Event{Kind: masterflex.EventUnsolicited}, true},
		{"discarded", masterflex.Event{Kind: masterflex.EventDiscarded}, true},
		{"canceled", masterflex.Event{Kind: masterflex.EventCanceled}, false},
		{"closed", masterflex.Event{Kind: masterflex.EventLink, State: masterflex.LinkDisconnected}, false},
		{"dropped", masterflex.Event{Kind: masterflex.EventLink, State: masterflex.LinkDisconnected, Err: errors.New("eof")}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isAnomaly(tt.ev))
		})
	}
}

func TestScanPumps(t *testing.T) {
	c, _, pump := newConsoleClient(t, map[string]string{
		"1RC\r": "1,1,0",
		"3RC\r": "3,0,1",
		"4RC\r": "~",
	})

	var out bytes.Buffer
	found, err := scanPumps(context.Background(), c, &out)
	require.NoError(t, err)

	assert.Equal(t, []discoveredPump{
		{address: 1, motor: "running", direction: "cw"},
		{address: 3, motor: "stopped", direction: "ccw"},
	}, found)
	assert.Len(t, pump.frames, masterflex.MaxAddress)
	assert.Contains(t, out.String(), "Address 4: Not in Serial Comms mode")
	assert.Equal(t, 1, c.Address())

	assert.Equal(t, probeOK, discoveryExitCode(found, nil, true))
	assert.Equal(t, probeNoReply, discoveryExitCode(nil, nil, true))
	assert.Equal(t, probeLinkError, discoveryExitCode(nil, nil, false))
	assert.Equal(t, probeLinkError, discoveryExitCode(nil, masterflex.ErrLinkLost, true))
}
