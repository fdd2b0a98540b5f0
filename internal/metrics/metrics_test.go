// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package metrics

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Thermoquad/peristat/pkg/masterflex"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_CountsEvents(t *testing.T) {
	c := NewCollector()
	ok := masterflex.Result{Command: masterflex.CmdStart, Status: masterflex.StatusOK}
	bad := masterflex.Result{Command: masterflex.CmdStatus, Status: masterflex.StatusInvalid}

	c.Observe(masterflex.Event{Kind: masterflex.EventSent, Command: masterflex.CmdStart})
	c.Observe(masterflex.Event{Kind: masterflex.EventReceived, Command: masterflex.CmdStart, Result: &ok, Latency: 20 * time.Millisecond})
	c.Observe(masterflex.Event{Kind: masterflex.EventSent, Command: masterflex.CmdStatus})
	c.Observe(masterflex.Event{Kind: masterflex.EventReceived, Command: masterflex.CmdStatus, Result: &bad, Latency: 30 * time.Millisecond})
	c.Observe(masterflex.Event{Kind: masterflex.EventTimeout, Command: masterflex.CmdStatus})
	c.Observe(masterflex.Event{Kind: masterflex.EventDiscarded, Frame: "1,"})

	start := masterflex.CmdStart.String()
	status := masterflex.CmdStatus.String()

	assert.Equal(t, 1.0, testutil.ToFloat64(c.events.WithLabelValues("sent", start)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.events.WithLabelValues("timeout", status)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.replies.WithLabelValues(start, "OK")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.replies.WithLabelValues(status, "Invalid")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.discarded))
	assert.Equal(t, 2, testutil.CollectAndCount(c.roundTrip))
}

func TestCollector_LinkDrops(t *testing.T) {
	c := NewCollector()
	for _, state := range []masterflex.LinkState{
		masterflex.LinkConnecting,
		masterflex.LinkConnected,
		masterflex.LinkDisconnected,
		masterflex.LinkConnecting,
		masterflex.LinkConnected,
	} {
		c.Observe(masterflex.Event{Kind: masterflex.EventLink, State: state})
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(c.linkState))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.linkDrops))
	assert.Equal(t, 5.0, testutil.ToFloat64(c.events.WithLabelValues("link", "")))
}

func TestServer_Handler(t *testing.T) {
	c := NewCollector()
	c.Observe(masterflex.Event{Kind: masterflex.EventSent, Command: masterflex.CmdStatus})

	srv := httptest.NewServer((&Server{Collector: c}).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", string(body))

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(body), "peristat_events_total")
	assert.Contains(t, string(body), `kind="sent"`)
}

func TestServer_RunStopsOnCancel(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	l.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- (&Server{Addr: addr, Collector: NewCollector()}).Run(ctx)
	}()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal(errors.New("server did not stop"))
	}
}
