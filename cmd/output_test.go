// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Thermoquad/peristat/pkg/masterflex"
	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func statusResult() masterflex.Result {
	return masterflex.Result{
		Command: masterflex.CmdStatus,
		Status:  masterflex.StatusData,
		Data: map[string]interface{}{
			masterflex.FieldAddress:     "1",
			masterflex.FieldMotorStatus: "running",
			masterflex.FieldDirection:   "cw",
		},
	}
}

func TestWriteResult(t *testing.T) {
	res := statusResult()

	var text bytes.Buffer
	require.NoError(t, writeResult(&text, res, "text"))
	assert.Equal(t, "data address=1 direction=cw motor_status=running\n", text.String())

	var js bytes.Buffer
	require.NoError(t, writeResult(&js, res, "json"))
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(js.Bytes(), &decoded))
	assert.Equal(t, "data", decoded["result"])
	assert.Equal(t, "running", decoded["motor_status"])

	var cb bytes.Buffer
	require.NoError(t, writeResult(&cb, res, "cbor"))
	var fromCBOR map[string]interface{}
	require.NoError(t, cbor.Unmarshal(cb.Bytes(), &fromCBOR))
	assert.Equal(t, "cw", fromCBOR["direction"])
}

func TestProbeExitCode(t *testing.T) {
	ack := masterflex.Result{Command: masterflex.CmdStatus, Status: masterflex.StatusOK}
	tests := []struct {
		name      string
		res       masterflex.Result
		err       error
		connected bool
		want      int
	}{
		{"data", statusResult(), nil, true, probeOK},
		{"never connected", masterflex.Result{}, errors.New("no such device"), false, probeLinkError},
		{"link lost", masterflex.Result{}, masterflex.ErrLinkLost, true, probeLinkError},
		{"timeout", masterflex.Result{}, masterflex.ErrTimeout, true, probeNoReply},
		{"ack instead of data", ack, nil, true, probeNoReply},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, probeExitCode(tt.res, tt.err, tt.connected))
		})
	}
}

func TestFrameMonitor(t *testing.T) {
	var out bytes.Buffer
	mon := newFrameMonitor(&out, 0, false)

	require.NoError(t, mon.feed([]byte("*\r1,1")))
	require.NoError(t, mon.feed([]byte(",0\r#\r")))
	mon.link(masterflex.LinkEvent{State: masterflex.LinkDisconnected, Info: "Serial: /dev/ttyUSB0 @ 9600 baud", Err: errors.New("eof")})

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[0], "OK")
	assert.Contains(t, lines[1], "DATA")
	assert.Contains(t, lines[1], "1,1,0")
	assert.Contains(t, lines[2], "INVALID")
	assert.Contains(t, lines[3], "link disconnected (Serial: /dev/ttyUSB0 @ 9600 baud): eof")
}

func TestPrintTrace(t *testing.T) {
	var buf bytes.Buffer
	rec := masterflex.NewTraceRecorder(&buf)
	res := statusResult()
	now := time.Now()

	rec.Observe(masterflex.Event{Time: now, Kind: masterflex.EventSent, Command: masterflex.CmdStatus, Frame: "1RC"})
	rec.Observe(masterflex.Event{Time: now, Kind: masterflex.EventReceived, Command: masterflex.CmdStatus, Frame: "1,1,0", Result: &res, Latency: 15 * time.Millisecond})
	rec.Observe(masterflex.Event{Time: now, Kind: masterflex.EventLink, State: masterflex.LinkDisconnected})
	require.NoError(t, rec.Err())

	var out bytes.Buffer
	n, err := printTrace(&out, bytes.NewReader(buf.Bytes()), nil)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 3, strings.Count(out.String(), "\n"))
	assert.Contains(t, out.String(), "STATUS")

	out.Reset()
	n, err = printTrace(&out, bytes.NewReader(buf.Bytes()), []string{"link"})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 1, strings.Count(out.String(), "\n"))
	assert.Contains(t, out.String(), "disconnected")
}
